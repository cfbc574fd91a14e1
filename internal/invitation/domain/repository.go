package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByToken(ctx context.Context, db *gorm.DB, token string) (*Invitation, error)
	FindLiveByEmail(ctx context.Context, db *gorm.DB, accountID snowflake.ID, email string, now time.Time) (*Invitation, error)
	ExpireStalePending(ctx context.Context, db *gorm.DB, accountID snowflake.ID, email string, now time.Time) error
}
