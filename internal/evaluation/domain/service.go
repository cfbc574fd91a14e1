package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/testbay/testbay/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	ListByProject(ctx context.Context, projectID string, page pagination.Pagination) (*ListResponse, error)
	Get(ctx context.Context, id string) (*DetailResponse, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Response, error)
	Delete(ctx context.Context, id string) error
	AddQuestion(ctx context.Context, evaluationID string, req QuestionRequest) (*QuestionResponse, error)
	Join(ctx context.Context, evaluationID string) (*ParticipationResponse, error)
	SubmitFeedback(ctx context.Context, evaluationID string, req FeedbackRequest) error
	Mine(ctx context.Context, req MyEvaluationsRequest) (*MyEvaluationsResponse, error)
}

type QuestionRequest struct {
	Text     string `json:"text"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Order    *int   `json:"order"`
}

type CreateRequest struct {
	ProjectID    string            `json:"project_id"`
	Title        string            `json:"title"`
	Description  *string           `json:"description"`
	Instructions *string           `json:"instructions"`
	Status       *string           `json:"status"`
	Questions    []QuestionRequest `json:"questions"`
}

type UpdateRequest struct {
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	Instructions *string `json:"instructions"`
	Status       *string `json:"status"`
}

type AnswerRequest struct {
	QuestionID string          `json:"question_id"`
	Value      json.RawMessage `json:"value"`
}

type FeedbackRequest struct {
	Answers []AnswerRequest `json:"answers"`
}

type MyEvaluationsRequest struct {
	Status string `json:"status"`
	Page   pagination.Pagination
}

type QuestionResponse struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Order    int    `json:"order"`
}

type Response struct {
	ID           string             `json:"id"`
	AccountID    string             `json:"account_id"`
	ProjectID    string             `json:"project_id"`
	CreatorID    string             `json:"creator_id"`
	Title        string             `json:"title"`
	Description  *string            `json:"description,omitempty"`
	Instructions *string            `json:"instructions,omitempty"`
	Status       string             `json:"status"`
	Questions    []QuestionResponse `json:"questions,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

type ListResponse struct {
	Items    []Response          `json:"items"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

// ResponseEntry is a single submitted answer, visible to owners.
type ResponseEntry struct {
	UserID      string          `json:"user_id"`
	UserEmail   string          `json:"user_email"`
	Answer      json.RawMessage `json:"answer"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// QuestionSummary aggregates the responses to one question.
type QuestionSummary struct {
	QuestionID    string          `json:"question_id"`
	ResponseCount int             `json:"response_count"`
	Responses     []ResponseEntry `json:"responses"`
}

// ParticipationResponse reports the caller's own participation state.
type ParticipationResponse struct {
	EvaluationID string     `json:"evaluation_id"`
	Status       string     `json:"status"`
	JoinedAt     time.Time  `json:"joined_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// DetailResponse is role-dependent: owners get response summaries, testers get
// their own participation flags.
type DetailResponse struct {
	Response

	Summaries []QuestionSummary `json:"summaries,omitempty"`

	Joined    *bool `json:"joined,omitempty"`
	Completed *bool `json:"completed,omitempty"`
}

// MyEvaluationItem annotates a participation with its evaluation.
type MyEvaluationItem struct {
	EvaluationID  string     `json:"evaluation_id"`
	Title         string     `json:"title"`
	ProjectID     string     `json:"project_id"`
	Status        string     `json:"evaluation_status"`
	Participation string     `json:"participation_status"`
	QuestionCount int        `json:"question_count"`
	JoinedAt      time.Time  `json:"joined_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	RejectedAt    *time.Time `json:"rejected_at,omitempty"`
}

// ParticipationCounts aggregates the caller's participations by status.
type ParticipationCounts struct {
	Pending  int64 `json:"pending"`
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
}

type MyEvaluationsResponse struct {
	Items    []MyEvaluationItem  `json:"items"`
	Counts   ParticipationCounts `json:"counts"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

var (
	ErrNotFound         = errors.New("evaluation_not_found")
	ErrInvalidID        = errors.New("invalid_evaluation_id")
	ErrInvalidProject   = errors.New("invalid_project")
	ErrInvalidTitle     = errors.New("invalid_title")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrInvalidQuestion  = errors.New("invalid_question")
	ErrQuestionNotOwned = errors.New("question_not_in_evaluation")
	ErrNotActive        = errors.New("evaluation_not_active")
	ErrAlreadyJoined    = errors.New("already_joined")
	ErrNotJoined        = errors.New("not_joined")
	ErrAlreadyCompleted = errors.New("already_completed")
	ErrEmptyFeedback    = errors.New("empty_feedback")
)
