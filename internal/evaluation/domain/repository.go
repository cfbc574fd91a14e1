package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/testbay/testbay/pkg/db/pagination"
	"gorm.io/gorm"
)

// ResponseRow joins a submitted answer with its submitting user.
type ResponseRow struct {
	QuestionID  snowflake.ID `gorm:"column:question_id"`
	UserID      snowflake.ID `gorm:"column:user_id"`
	UserEmail   string       `gorm:"column:user_email"`
	Answer      []byte       `gorm:"column:answer"`
	SubmittedAt time.Time    `gorm:"column:submitted_at"`
}

// ParticipationRow joins a participation with its evaluation metadata.
type ParticipationRow struct {
	Participant   EvaluationParticipant
	Evaluation    Evaluation
	QuestionCount int64
}

type Repository interface {
	Questions(ctx context.Context, db *gorm.DB, evaluationID snowflake.ID) ([]EvaluationQuestion, error)
	Participant(ctx context.Context, db *gorm.DB, evaluationID, userID snowflake.ID) (*EvaluationParticipant, error)
	ResponsesByEvaluation(ctx context.Context, db *gorm.DB, evaluationID snowflake.ID) ([]ResponseRow, error)
	ParticipationsByUser(ctx context.Context, db *gorm.DB, accountID, userID snowflake.ID, status ParticipantStatus, page pagination.Pagination) ([]ParticipationRow, int64, error)
	ParticipationCounts(ctx context.Context, db *gorm.DB, accountID, userID snowflake.ID) (ParticipationCounts, error)
}
