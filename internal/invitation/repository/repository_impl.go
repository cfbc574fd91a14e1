package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/testbay/testbay/internal/invitation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByToken(ctx context.Context, db *gorm.DB, token string) (*domain.Invitation, error) {
	var invitation domain.Invitation
	err := db.WithContext(ctx).
		Where("token = ?", token).
		First(&invitation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invitation, nil
}

func (r *repo) ExpireStalePending(ctx context.Context, db *gorm.DB, accountID snowflake.ID, email string, now time.Time) error {
	return db.WithContext(ctx).Model(&domain.Invitation{}).
		Where("account_id = ? AND lower(email) = lower(?) AND status = ? AND expires_at <= ?",
			accountID, email, domain.StatusPending, now).
		Updates(map[string]any{
			"status":     domain.StatusExpired,
			"updated_at": now,
		}).Error
}

func (r *repo) FindLiveByEmail(ctx context.Context, db *gorm.DB, accountID snowflake.ID, email string, now time.Time) (*domain.Invitation, error) {
	var invitation domain.Invitation
	err := db.WithContext(ctx).
		Where("account_id = ? AND lower(email) = lower(?) AND status = ? AND expires_at > ?",
			accountID, email, domain.StatusPending, now).
		First(&invitation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invitation, nil
}
