package domain

import (
	"context"
	"errors"
	"time"

	"github.com/testbay/testbay/pkg/db/pagination"
)

type Service interface {
	List(ctx context.Context, page pagination.Pagination) (*ListResponse, error)
	Mine(ctx context.Context, page pagination.Pagination) (*ListResponse, error)
	Get(ctx context.Context, id string) (*Response, error)
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Response, error)
	Delete(ctx context.Context, id string) error
	AddMember(ctx context.Context, projectID, userID string) error
	RemoveMember(ctx context.Context, projectID, userID string) error
}

type CreateRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

type UpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

type Response struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ListResponse struct {
	Items    []Response          `json:"items"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

var (
	ErrNotFound       = errors.New("project_not_found")
	ErrInvalidID      = errors.New("invalid_project_id")
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidStatus  = errors.New("invalid_status")
	ErrInvalidUser    = errors.New("invalid_user")
	ErrMemberExists   = errors.New("member_exists")
	ErrMemberNotFound = errors.New("member_not_found")
)
