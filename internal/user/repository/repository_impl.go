package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/testbay/testbay/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Create(user).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("account_id = ? AND id = ?", accountID, id).
		First(&u).Error
	return handleResult(&u, err)
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("external_id = ?", strings.TrimSpace(externalID)).
		First(&u).Error
	return handleResult(&u, err)
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("lower(email) = lower(?)", strings.TrimSpace(email)).
		First(&u).Error
	return handleResult(&u, err)
}

func (r *repo) FindByEmailInAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, email string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("account_id = ? AND lower(email) = lower(?)", accountID, strings.TrimSpace(email)).
		First(&u).Error
	return handleResult(&u, err)
}

func handleResult(u *domain.User, err error) (*domain.User, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}
