package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/testbay/testbay/pkg/db/pagination"
	"gorm.io/gorm"
)

// Repository covers the membership-aware queries the generic store cannot
// express.
type Repository interface {
	ListVisibleToMember(ctx context.Context, db *gorm.DB, accountID, userID snowflake.ID, page pagination.Pagination) ([]*Project, int64, error)
	ListOwned(ctx context.Context, db *gorm.DB, accountID, ownerID snowflake.ID, page pagination.Pagination) ([]*Project, int64, error)
	HasMember(ctx context.Context, db *gorm.DB, projectID, userID snowflake.ID) (bool, error)
	AddMember(ctx context.Context, db *gorm.DB, member *ProjectMember) error
	RemoveMember(ctx context.Context, db *gorm.DB, projectID, userID snowflake.ID) error
}
