package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Account is the tenant root. Every other entity is scoped to exactly one
// account through an account_id foreign key.
type Account struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Account) TableName() string { return "accounts" }
