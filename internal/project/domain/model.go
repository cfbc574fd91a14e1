package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type ProjectStatus string

const (
	StatusDraft     ProjectStatus = "draft"
	StatusActive    ProjectStatus = "active"
	StatusTesting   ProjectStatus = "testing"
	StatusCompleted ProjectStatus = "completed"
	StatusArchived  ProjectStatus = "archived"
)

// ValidStatus reports whether raw is a known project status.
func ValidStatus(raw string) bool {
	switch ProjectStatus(raw) {
	case StatusDraft, StatusActive, StatusTesting, StatusCompleted, StatusArchived:
		return true
	default:
		return false
	}
}

type Project struct {
	ID          snowflake.ID  `json:"id" gorm:"primaryKey"`
	AccountID   snowflake.ID  `json:"account_id" gorm:"not null;index"`
	OwnerID     snowflake.ID  `json:"owner_id" gorm:"not null;index"`
	Name        string        `json:"name" gorm:"type:text;not null"`
	Description *string       `json:"description,omitempty" gorm:"type:text"`
	Status      ProjectStatus `json:"status" gorm:"type:text;not null;default:draft"`
	DeletedAt   *time.Time    `json:"deleted_at,omitempty" gorm:"index"`
	CreatedAt   time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time     `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Project) TableName() string { return "projects" }

// ProjectMember is the membership edge granting restricted members visibility
// into a project.
type ProjectMember struct {
	ProjectID snowflake.ID `json:"project_id" gorm:"primaryKey;autoIncrement:false"`
	UserID    snowflake.ID `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	AccountID snowflake.ID `json:"account_id" gorm:"not null;index"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ProjectMember) TableName() string { return "project_members" }
