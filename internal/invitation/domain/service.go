package domain

import (
	"context"
	"errors"
	"time"

	"github.com/testbay/testbay/pkg/db/pagination"
)

type Service interface {
	Send(ctx context.Context, req SendRequest) (*Response, error)
	List(ctx context.Context, status string, page pagination.Pagination) (*ListResponse, error)
	Revoke(ctx context.Context, id string) error
	Resend(ctx context.Context, id string) (*Response, error)

	// Validate and Accept are token-authenticated: the caller holds an
	// invitation token instead of a principal.
	Validate(ctx context.Context, token string) (*Response, error)
	Accept(ctx context.Context, req AcceptRequest) (*AcceptResponse, error)
}

type SendRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type AcceptRequest struct {
	Token      string `json:"token"`
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
}

type Response struct {
	ID           string     `json:"id"`
	AccountID    string     `json:"account_id"`
	AccountName  string     `json:"account_name,omitempty"`
	InviterID    string     `json:"inviter_id"`
	InviterEmail string     `json:"inviter_email,omitempty"`
	Email        string     `json:"email"`
	Role         string     `json:"role"`
	Status       string     `json:"status"`
	Token        string     `json:"token,omitempty"`
	AcceptURL    string     `json:"accept_url,omitempty"`
	ExpiresAt    time.Time  `json:"expires_at"`
	AcceptedAt   *time.Time `json:"accepted_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type ListResponse struct {
	Items    []Response          `json:"items"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type AcceptResponse struct {
	UserID    string `json:"user_id"`
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

var (
	ErrNotFound      = errors.New("invitation_not_found")
	ErrInvalidID     = errors.New("invalid_invitation_id")
	ErrInvalidEmail  = errors.New("invalid_email")
	ErrInvalidRole   = errors.New("invalid_invitation_role")
	ErrInvalidStatus = errors.New("invalid_invitation_status")
	ErrInvalidToken  = errors.New("invalid_invitation_token")
	ErrUserExists    = errors.New("user_already_exists")
	ErrPendingExists = errors.New("invitation_already_pending")
	ErrExpired       = errors.New("invitation_expired")
	ErrNotPending    = errors.New("invitation_not_pending")
)
