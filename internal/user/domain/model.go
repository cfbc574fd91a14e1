package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/testbay/testbay/pkg/tenantctx"
	"gorm.io/gorm"
)

// User is the local mirror of an identity-provider record. The external_id
// column is written by a synchronization trigger on the provider side; rows
// here are only created directly during invitation acceptance and signup.
type User struct {
	ID         snowflake.ID   `json:"id" gorm:"primaryKey"`
	ExternalID string         `json:"external_id" gorm:"type:text;uniqueIndex;not null"`
	Email      string         `json:"email" gorm:"type:text;uniqueIndex;not null"`
	Name       string         `json:"name" gorm:"type:text"`
	Role       tenantctx.Role `json:"role" gorm:"type:text;not null"`
	AccountID  snowflake.ID   `json:"account_id" gorm:"not null;index"`
	CreatedAt  time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (User) TableName() string { return "users" }

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*User, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*User, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error)
	FindByEmailInAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, email string) (*User, error)
}
