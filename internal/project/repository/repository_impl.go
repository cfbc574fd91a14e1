package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/testbay/testbay/internal/project/domain"
	"github.com/testbay/testbay/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListVisibleToMember(ctx context.Context, db *gorm.DB, accountID, userID snowflake.ID, page pagination.Pagination) ([]*domain.Project, int64, error) {
	page = page.Normalize()

	base := db.WithContext(ctx).
		Model(&domain.Project{}).
		Joins("JOIN project_members pm ON pm.project_id = projects.id").
		Where("projects.account_id = ? AND pm.user_id = ? AND projects.deleted_at IS NULL", accountID, userID)

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []*domain.Project
	err := base.
		Order("projects.created_at DESC").
		Offset(page.Skip).
		Limit(page.Take).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repo) ListOwned(ctx context.Context, db *gorm.DB, accountID, ownerID snowflake.ID, page pagination.Pagination) ([]*domain.Project, int64, error) {
	page = page.Normalize()

	base := db.WithContext(ctx).
		Model(&domain.Project{}).
		Where("account_id = ? AND owner_id = ? AND deleted_at IS NULL", accountID, ownerID)

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []*domain.Project
	err := base.
		Order("created_at DESC").
		Offset(page.Skip).
		Limit(page.Take).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repo) HasMember(ctx context.Context, db *gorm.DB, projectID, userID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) AddMember(ctx context.Context, db *gorm.DB, member *domain.ProjectMember) error {
	return db.WithContext(ctx).Create(member).Error
}

func (r *repo) RemoveMember(ctx context.Context, db *gorm.DB, projectID, userID snowflake.ID) error {
	return db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Delete(&domain.ProjectMember{}).Error
}
