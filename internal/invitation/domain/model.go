package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/testbay/testbay/pkg/tenantctx"
)

type InvitationStatus string

const (
	StatusPending  InvitationStatus = "pending"
	StatusAccepted InvitationStatus = "accepted"
	StatusExpired  InvitationStatus = "expired"
	StatusRevoked  InvitationStatus = "revoked"
)

func ValidStatus(raw string) bool {
	switch InvitationStatus(raw) {
	case StatusPending, StatusAccepted, StatusExpired, StatusRevoked:
		return true
	default:
		return false
	}
}

// Invitation invites an email address into an account with a fixed role. The
// token is the only credential the invitee holds, so it is unique and
// regenerated on every resend.
type Invitation struct {
	ID         snowflake.ID     `json:"id" gorm:"primaryKey"`
	AccountID  snowflake.ID     `json:"account_id" gorm:"not null;index"`
	InviterID  snowflake.ID     `json:"inviter_id" gorm:"not null"`
	Email      string           `json:"email" gorm:"type:text;not null;index"`
	Token      string           `json:"-" gorm:"type:text;uniqueIndex;not null"`
	Role       tenantctx.Role   `json:"role" gorm:"type:text;not null"`
	Status     InvitationStatus `json:"status" gorm:"type:text;not null;default:pending"`
	ExpiresAt  time.Time        `json:"expires_at" gorm:"not null"`
	AcceptedAt *time.Time       `json:"accepted_at,omitempty"`
	CreatedAt  time.Time        `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time        `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Invitation) TableName() string { return "invitations" }

// Live reports whether the invitation can still be accepted at the given
// instant. A pending row past its expiry is dead even before the lazy status
// flip lands.
func (i *Invitation) Live(now time.Time) bool {
	return i.Status == StatusPending && now.Before(i.ExpiresAt)
}
