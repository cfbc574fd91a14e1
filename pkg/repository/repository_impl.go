package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/testbay/testbay/pkg/db/option"
	"github.com/testbay/testbay/pkg/db/pagination"
	"gorm.io/gorm"
)

const defaultOrder = "created_at DESC"

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (r *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	return &store[T]{db: tx}
}

func (r *store[T]) List(ctx context.Context, accountID snowflake.ID, page pagination.Pagination, opts ...option.QueryOption) ([]*T, int64, error) {
	page = page.Normalize()

	stmt := r.scoped(ctx, accountID)
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}

	var total int64
	if err := stmt.Session(&gorm.Session{}).Model(new(T)).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var result []*T
	err := stmt.
		Order(defaultOrder).
		Offset(page.Skip).
		Limit(page.Take).
		Find(&result).Error
	if err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (r *store[T]) Get(ctx context.Context, accountID, id snowflake.ID) (*T, error) {
	var result T
	err := r.scoped(ctx, accountID).Where("id = ?", id).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *store[T]) Create(ctx context.Context, resource *T) error {
	return r.db.WithContext(ctx).Create(resource).Error
}

func (r *store[T]) Update(ctx context.Context, accountID, id snowflake.ID, values any) error {
	return r.scoped(ctx, accountID).
		Model(new(T)).
		Where("id = ?", id).
		Updates(values).Error
}

func (r *store[T]) Delete(ctx context.Context, accountID, id snowflake.ID) error {
	var dummy T
	return r.scoped(ctx, accountID).Where("id = ?", id).Delete(&dummy).Error
}

func (r *store[T]) SoftDelete(ctx context.Context, accountID, id snowflake.ID) error {
	return r.scoped(ctx, accountID).
		Model(new(T)).
		Where("id = ?", id).
		Update("deleted_at", time.Now().UTC()).Error
}

func (r *store[T]) scoped(ctx context.Context, accountID snowflake.ID) *gorm.DB {
	return r.db.WithContext(ctx).Where("account_id = ?", accountID)
}
