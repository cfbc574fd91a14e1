package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/testbay/testbay/pkg/db/option"
	"github.com/testbay/testbay/pkg/db/pagination"
	"gorm.io/gorm"
)

// Repository is a tenant-scoped CRUD store. Every read and mutation carries an
// account_id predicate so rows never leak across tenants, even when the row id
// itself matches.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]

	List(ctx context.Context, accountID snowflake.ID, page pagination.Pagination, opts ...option.QueryOption) ([]*T, int64, error)
	Get(ctx context.Context, accountID, id snowflake.ID) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, accountID, id snowflake.ID, values any) error
	Delete(ctx context.Context, accountID, id snowflake.ID) error
	SoftDelete(ctx context.Context, accountID, id snowflake.ID) error
}
