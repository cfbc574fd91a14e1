package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/testbay/testbay/internal/evaluation/domain"
	"github.com/testbay/testbay/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Questions(ctx context.Context, db *gorm.DB, evaluationID snowflake.ID) ([]domain.EvaluationQuestion, error) {
	var questions []domain.EvaluationQuestion
	err := db.WithContext(ctx).
		Where("evaluation_id = ?", evaluationID).
		Order("display_order ASC").
		Find(&questions).Error
	if err != nil {
		return nil, err
	}
	return questions, nil
}

func (r *repo) Participant(ctx context.Context, db *gorm.DB, evaluationID, userID snowflake.ID) (*domain.EvaluationParticipant, error) {
	var participant domain.EvaluationParticipant
	err := db.WithContext(ctx).
		Where("evaluation_id = ? AND user_id = ?", evaluationID, userID).
		First(&participant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &participant, nil
}

func (r *repo) ResponsesByEvaluation(ctx context.Context, db *gorm.DB, evaluationID snowflake.ID) ([]domain.ResponseRow, error) {
	var rows []domain.ResponseRow
	err := db.WithContext(ctx).Raw(
		`SELECT r.question_id, r.user_id, u.email AS user_email, r.answer, r.submitted_at
		 FROM evaluation_responses r
		 JOIN evaluation_questions q ON q.id = r.question_id
		 JOIN users u ON u.id = r.user_id
		 WHERE q.evaluation_id = ?
		 ORDER BY r.submitted_at ASC`,
		evaluationID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ParticipationsByUser(ctx context.Context, db *gorm.DB, accountID, userID snowflake.ID, status domain.ParticipantStatus, page pagination.Pagination) ([]domain.ParticipationRow, int64, error) {
	page = page.Normalize()

	base := db.WithContext(ctx).
		Model(&domain.EvaluationParticipant{}).
		Where("evaluation_participants.account_id = ? AND evaluation_participants.user_id = ?", accountID, userID)
	if status != "" {
		base = base.Where("evaluation_participants.status = ?", status)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var participants []domain.EvaluationParticipant
	err := base.
		Order("evaluation_participants.joined_at DESC").
		Offset(page.Skip).
		Limit(page.Take).
		Find(&participants).Error
	if err != nil {
		return nil, 0, err
	}

	rows := make([]domain.ParticipationRow, 0, len(participants))
	for _, participant := range participants {
		var evaluation domain.Evaluation
		if err := db.WithContext(ctx).
			Where("id = ? AND account_id = ?", participant.EvaluationID, accountID).
			First(&evaluation).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, 0, err
		}

		var questionCount int64
		if err := db.WithContext(ctx).
			Model(&domain.EvaluationQuestion{}).
			Where("evaluation_id = ?", participant.EvaluationID).
			Count(&questionCount).Error; err != nil {
			return nil, 0, err
		}

		rows = append(rows, domain.ParticipationRow{
			Participant:   participant,
			Evaluation:    evaluation,
			QuestionCount: questionCount,
		})
	}
	return rows, total, nil
}

func (r *repo) ParticipationCounts(ctx context.Context, db *gorm.DB, accountID, userID snowflake.ID) (domain.ParticipationCounts, error) {
	var rows []struct {
		Status string `gorm:"column:status"`
		Count  int64  `gorm:"column:count"`
	}
	err := db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS count
		 FROM evaluation_participants
		 WHERE account_id = ? AND user_id = ?
		 GROUP BY status`,
		accountID,
		userID,
	).Scan(&rows).Error
	if err != nil {
		return domain.ParticipationCounts{}, err
	}

	var counts domain.ParticipationCounts
	for _, row := range rows {
		switch domain.ParticipantStatus(row.Status) {
		case domain.ParticipantPending:
			counts.Pending = row.Count
		case domain.ParticipantAccepted:
			counts.Accepted = row.Count
		case domain.ParticipantRejected:
			counts.Rejected = row.Count
		}
	}
	return counts, nil
}
