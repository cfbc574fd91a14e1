package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type EvaluationStatus string

const (
	StatusDraft     EvaluationStatus = "draft"
	StatusActive    EvaluationStatus = "active"
	StatusCompleted EvaluationStatus = "completed"
)

func ValidStatus(raw string) bool {
	switch EvaluationStatus(raw) {
	case StatusDraft, StatusActive, StatusCompleted:
		return true
	default:
		return false
	}
}

type QuestionType string

const (
	QuestionBoolean QuestionType = "boolean"
	QuestionText    QuestionType = "text"
	QuestionRating  QuestionType = "rating"
)

func ValidQuestionType(raw string) bool {
	switch QuestionType(raw) {
	case QuestionBoolean, QuestionText, QuestionRating:
		return true
	default:
		return false
	}
}

type ParticipantStatus string

const (
	ParticipantPending  ParticipantStatus = "pending"
	ParticipantAccepted ParticipantStatus = "accepted"
	ParticipantRejected ParticipantStatus = "rejected"
)

func ValidParticipantStatus(raw string) bool {
	switch ParticipantStatus(raw) {
	case ParticipantPending, ParticipantAccepted, ParticipantRejected:
		return true
	default:
		return false
	}
}

type Evaluation struct {
	ID           snowflake.ID     `json:"id" gorm:"primaryKey"`
	AccountID    snowflake.ID     `json:"account_id" gorm:"not null;index"`
	ProjectID    snowflake.ID     `json:"project_id" gorm:"not null;index"`
	CreatorID    snowflake.ID     `json:"creator_id" gorm:"not null"`
	Title        string           `json:"title" gorm:"type:text;not null"`
	Description  *string          `json:"description,omitempty" gorm:"type:text"`
	Instructions *string          `json:"instructions,omitempty" gorm:"type:text"`
	Status       EvaluationStatus `json:"status" gorm:"type:text;not null;default:draft"`
	CreatedAt    time.Time        `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time        `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Evaluation) TableName() string { return "evaluations" }

type EvaluationQuestion struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	EvaluationID snowflake.ID `json:"evaluation_id" gorm:"not null;index"`
	AccountID    snowflake.ID `json:"account_id" gorm:"not null;index"`
	Text         string       `json:"text" gorm:"type:text;not null"`
	Type         QuestionType `json:"type" gorm:"type:text;not null"`
	Required     bool         `json:"required" gorm:"not null;default:false"`
	Order        int          `json:"order" gorm:"column:display_order;not null"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (EvaluationQuestion) TableName() string { return "evaluation_questions" }

// EvaluationParticipant is the join row between a user and an evaluation. The
// composite primary key doubles as the uniqueness guard against duplicate
// joins.
type EvaluationParticipant struct {
	EvaluationID snowflake.ID      `json:"evaluation_id" gorm:"primaryKey;autoIncrement:false"`
	UserID       snowflake.ID      `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	AccountID    snowflake.ID      `json:"account_id" gorm:"not null;index"`
	Status       ParticipantStatus `json:"status" gorm:"type:text;not null;default:pending"`
	JoinedAt     time.Time         `json:"joined_at" gorm:"not null"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	RejectedAt   *time.Time        `json:"rejected_at,omitempty"`
}

func (EvaluationParticipant) TableName() string { return "evaluation_participants" }

type EvaluationResponse struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	QuestionID  snowflake.ID   `json:"question_id" gorm:"not null;index:ux_responses_question_user,unique,priority:1"`
	UserID      snowflake.ID   `json:"user_id" gorm:"not null;index:ux_responses_question_user,unique,priority:2"`
	AccountID   snowflake.ID   `json:"account_id" gorm:"not null;index"`
	Answer      datatypes.JSON `json:"answer" gorm:"not null"`
	SubmittedAt time.Time      `json:"submitted_at" gorm:"not null"`
}

func (EvaluationResponse) TableName() string { return "evaluation_responses" }
