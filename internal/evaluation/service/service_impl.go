package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/testbay/testbay/internal/authorization"
	"github.com/testbay/testbay/internal/evaluation/domain"
	projectdomain "github.com/testbay/testbay/internal/project/domain"
	"github.com/testbay/testbay/pkg/db"
	"github.com/testbay/testbay/pkg/db/option"
	"github.com/testbay/testbay/pkg/db/pagination"
	"github.com/testbay/testbay/pkg/repository"
	"github.com/testbay/testbay/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Authz    authorization.Service
	Store    repository.Repository[domain.Evaluation]
	Repo     domain.Repository
	Projects repository.Repository[projectdomain.Project]
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	authz    authorization.Service
	store    repository.Repository[domain.Evaluation]
	repo     domain.Repository
	projects repository.Repository[projectdomain.Project]
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("evaluation.service"),
		genID:    p.GenID,
		authz:    p.Authz,
		store:    p.Store,
		repo:     p.Repo,
		projects: p.Projects,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	principal, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, principal, authorization.ObjectEvaluation, authorization.ActionEvaluationCreate); err != nil {
		return nil, err
	}

	projectID, err := parseID(req.ProjectID)
	if err != nil {
		return nil, domain.ErrInvalidProject
	}
	project, err := s.projects.Get(ctx, principal.AccountID, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil || project.DeletedAt != nil {
		return nil, domain.ErrInvalidProject
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, domain.ErrInvalidTitle
	}

	status := domain.StatusDraft
	if req.Status != nil {
		raw := strings.ToLower(strings.TrimSpace(*req.Status))
		if !domain.ValidStatus(raw) {
			return nil, domain.ErrInvalidStatus
		}
		status = domain.EvaluationStatus(raw)
	}

	now := time.Now().UTC()
	evaluation := &domain.Evaluation{
		ID:           s.genID.Generate(),
		AccountID:    principal.AccountID,
		ProjectID:    project.ID,
		CreatorID:    principal.UserID,
		Title:        title,
		Description:  trimPtr(req.Description),
		Instructions: trimPtr(req.Instructions),
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	questions := make([]domain.EvaluationQuestion, 0, len(req.Questions))
	for i, q := range req.Questions {
		question, err := s.buildQuestion(principal, evaluation.ID, q, i, now)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *question)
	}

	// The evaluation and its question set land together or not at all.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.store.WithTrx(tx).Create(ctx, evaluation); err != nil {
			return err
		}
		if len(questions) > 0 {
			if err := tx.Create(&questions).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp := toResponse(evaluation, questions)
	return &resp, nil
}

func (s *Service) ListByProject(ctx context.Context, projectID string, page pagination.Pagination) (*domain.ListResponse, error) {
	principal, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, principal, authorization.ObjectEvaluation, authorization.ActionEvaluationView); err != nil {
		return nil, err
	}

	parsedID, err := parseID(projectID)
	if err != nil {
		return nil, domain.ErrInvalidProject
	}
	project, err := s.projects.Get(ctx, principal.AccountID, parsedID)
	if err != nil {
		return nil, err
	}
	if project == nil || project.DeletedAt != nil {
		return nil, domain.ErrInvalidProject
	}

	opts := []option.QueryOption{option.WithWhere("project_id = ?", parsedID)}
	if principal.Role != tenantctx.RoleOwner {
		// Testers and members only see evaluations open for participation.
		opts = append(opts, option.WithWhere("status = ?", domain.StatusActive))
	}

	items, total, err := s.store.List(ctx, principal.AccountID, page, opts...)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(items))
	for _, item := range items {
		resp = append(resp, toResponse(item, nil))
	}
	return &domain.ListResponse{
		Items:    resp,
		PageInfo: pagination.BuildPageInfo(page.Normalize(), total),
	}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.DetailResponse, error) {
	principal, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, principal, authorization.ObjectEvaluation, authorization.ActionEvaluationView); err != nil {
		return nil, err
	}

	evaluation, err := s.fetch(ctx, principal, id)
	if err != nil {
		return nil, err
	}

	if principal.Role != tenantctx.RoleOwner && evaluation.Status != domain.StatusActive {
		return nil, domain.ErrNotActive
	}

	questions, err := s.repo.Questions(ctx, s.db, evaluation.ID)
	if err != nil {
		return nil, err
	}

	detail := &domain.DetailResponse{Response: toResponse(evaluation, questions)}

	if principal.Role == tenantctx.RoleOwner {
		rows, err := s.repo.ResponsesByEvaluation(ctx, s.db, evaluation.ID)
		if err != nil {
			return nil, err
		}
		detail.Summaries = summarize(questions, rows)
		return detail, nil
	}

	participant, err := s.repo.Participant(ctx, s.db, evaluation.ID, principal.UserID)
	if err != nil {
		return nil, err
	}
	joined := participant != nil
	completed := participant != nil && participant.CompletedAt != nil
	detail.Joined = &joined
	detail.Completed = &completed
	return detail, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdateRequest) (*domain.Response, error) {
	principal, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, principal, authorization.ObjectEvaluation, authorization.ActionEvaluationUpdate); err != nil {
		return nil, err
	}

	evaluation, err := s.fetch(ctx, principal, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, domain.ErrInvalidTitle
		}
		evaluation.Title = title
	}
	if req.Description != nil {
		evaluation.Description = trimPtr(req.Description)
	}
	if req.Instructions != nil {
		evaluation.Instructions = trimPtr(req.Instructions)
	}
	if req.Status != nil {
		raw := strings.ToLower(strings.TrimSpace(*req.Status))
		if !domain.ValidStatus(raw) {
			return nil, domain.ErrInvalidStatus
		}
		evaluation.Status = domain.EvaluationStatus(raw)
	}

	// A map keeps cleared nullable columns in the UPDATE.
	evaluation.UpdatedAt = time.Now().UTC()
	err = s.store.Update(ctx, principal.AccountID, evaluation.ID, map[string]any{
		"title":        evaluation.Title,
		"description":  evaluation.Description,
		"instructions": evaluation.Instructions,
		"status":       evaluation.Status,
		"updated_at":   evaluation.UpdatedAt,
	})
	if err != nil {
		return nil, err
	}

	resp := toResponse(evaluation, nil)
	return &resp, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	principal, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}
	if err := s.authz.Authorize(ctx, principal, authorization.ObjectEvaluation, authorization.ActionEvaluationDelete); err != nil {
		return err
	}

	evaluation, err := s.fetch(ctx, principal, id)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, principal.AccountID, evaluation.ID)
}

func (s *Service) AddQuestion(ctx context.Context, evaluationID string, req domain.QuestionRequest) (*domain.QuestionResponse, error) {
	principal, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, principal, authorization.ObjectEvaluation, authorization.ActionEvaluationQuestionAdd); err != nil {
		return nil, err
	}

	evaluation, err := s.fetch(ctx, principal, evaluationID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.Questions(ctx, s.db, evaluation.ID)
	if err != nil {
		return nil, err
	}

	question, err := s.buildQuestion(principal, evaluation.ID, req, len(existing), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(question).Error; err != nil {
		return nil, err
	}

	resp := toQuestionResponse(*question)
	return &resp, nil
}

func (s *Service) Join(ctx context.Context, evaluationID string) (*domain.ParticipationResponse, error) {
	principal, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, principal, authorization.ObjectEvaluation, authorization.ActionEvaluationJoin); err != nil {
		return nil, err
	}

	evaluation, err := s.fetch(ctx, principal, evaluationID)
	if err != nil {
		return nil, err
	}
	if evaluation.Status != domain.StatusActive {
		// Inactive evaluations are invisible to joining testers.
		return nil, domain.ErrNotFound
	}

	existing, err := s.repo.Participant(ctx, s.db, evaluation.ID, principal.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrAlreadyJoined
	}

	participant := &domain.EvaluationParticipant{
		EvaluationID: evaluation.ID,
		UserID:       principal.UserID,
		AccountID:    principal.AccountID,
		Status:       domain.ParticipantPending,
		JoinedAt:     time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(participant).Error; err != nil {
		// Concurrent joins race to the composite primary key.
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrAlreadyJoined
		}
		return nil, err
	}

	return &domain.ParticipationResponse{
		EvaluationID: evaluation.ID.String(),
		Status:       string(participant.Status),
		JoinedAt:     participant.JoinedAt,
	}, nil
}

func (s *Service) SubmitFeedback(ctx context.Context, evaluationID string, req domain.FeedbackRequest) error {
	principal, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}
	if err := s.authz.Authorize(ctx, principal, authorization.ObjectEvaluation, authorization.ActionEvaluationFeedback); err != nil {
		return err
	}

	evaluation, err := s.fetch(ctx, principal, evaluationID)
	if err != nil {
		return err
	}

	participant, err := s.repo.Participant(ctx, s.db, evaluation.ID, principal.UserID)
	if err != nil {
		return err
	}
	if participant == nil {
		return domain.ErrNotJoined
	}
	if participant.CompletedAt != nil {
		return domain.ErrAlreadyCompleted
	}
	if evaluation.Status != domain.StatusActive {
		return domain.ErrNotActive
	}
	if len(req.Answers) == 0 {
		return domain.ErrEmptyFeedback
	}

	questions, err := s.repo.Questions(ctx, s.db, evaluation.ID)
	if err != nil {
		return err
	}
	byID := make(map[snowflake.ID]domain.EvaluationQuestion, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	now := time.Now().UTC()
	responses := make([]domain.EvaluationResponse, 0, len(req.Answers))
	for _, answer := range req.Answers {
		questionID, err := parseID(answer.QuestionID)
		if err != nil {
			return fmt.Errorf("%w: %s", domain.ErrQuestionNotOwned, answer.QuestionID)
		}
		question, ok := byID[questionID]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrQuestionNotOwned, answer.QuestionID)
		}
		if err := validateAnswer(question.Type, answer.Value); err != nil {
			return err
		}
		responses = append(responses, domain.EvaluationResponse{
			ID:          s.genID.Generate(),
			QuestionID:  questionID,
			UserID:      principal.UserID,
			AccountID:   principal.AccountID,
			Answer:      []byte(answer.Value),
			SubmittedAt: now,
		})
	}

	// Answers and the participation flip are one unit.
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&responses).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrAlreadyCompleted
			}
			return err
		}
		return tx.Model(&domain.EvaluationParticipant{}).
			Where("evaluation_id = ? AND user_id = ?", evaluation.ID, principal.UserID).
			Updates(map[string]any{
				"status":       domain.ParticipantAccepted,
				"completed_at": now,
			}).Error
	})
}

func (s *Service) Mine(ctx context.Context, req domain.MyEvaluationsRequest) (*domain.MyEvaluationsResponse, error) {
	principal, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, principal, authorization.ObjectEvaluation, authorization.ActionEvaluationMine); err != nil {
		return nil, err
	}

	var status domain.ParticipantStatus
	if raw := strings.ToLower(strings.TrimSpace(req.Status)); raw != "" {
		if !domain.ValidParticipantStatus(raw) {
			return nil, domain.ErrInvalidStatus
		}
		status = domain.ParticipantStatus(raw)
	}

	rows, total, err := s.repo.ParticipationsByUser(ctx, s.db, principal.AccountID, principal.UserID, status, req.Page)
	if err != nil {
		return nil, err
	}

	counts, err := s.repo.ParticipationCounts(ctx, s.db, principal.AccountID, principal.UserID)
	if err != nil {
		return nil, err
	}

	items := make([]domain.MyEvaluationItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, domain.MyEvaluationItem{
			EvaluationID:  row.Evaluation.ID.String(),
			Title:         row.Evaluation.Title,
			ProjectID:     row.Evaluation.ProjectID.String(),
			Status:        string(row.Evaluation.Status),
			Participation: string(row.Participant.Status),
			QuestionCount: int(row.QuestionCount),
			JoinedAt:      row.Participant.JoinedAt,
			CompletedAt:   row.Participant.CompletedAt,
			RejectedAt:    row.Participant.RejectedAt,
		})
	}

	return &domain.MyEvaluationsResponse{
		Items:    items,
		Counts:   counts,
		PageInfo: pagination.BuildPageInfo(req.Page.Normalize(), total),
	}, nil
}

func (s *Service) fetch(ctx context.Context, principal tenantctx.Principal, id string) (*domain.Evaluation, error) {
	evaluationID, err := parseID(id)
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	evaluation, err := s.store.Get(ctx, principal.AccountID, evaluationID)
	if err != nil {
		return nil, err
	}
	if evaluation == nil {
		return nil, domain.ErrNotFound
	}
	return evaluation, nil
}

func (s *Service) buildQuestion(principal tenantctx.Principal, evaluationID snowflake.ID, req domain.QuestionRequest, position int, now time.Time) (*domain.EvaluationQuestion, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, domain.ErrInvalidQuestion
	}
	questionType := strings.ToLower(strings.TrimSpace(req.Type))
	if !domain.ValidQuestionType(questionType) {
		return nil, domain.ErrInvalidQuestion
	}

	order := position
	if req.Order != nil {
		order = *req.Order
	}

	return &domain.EvaluationQuestion{
		ID:           s.genID.Generate(),
		EvaluationID: evaluationID,
		AccountID:    principal.AccountID,
		Text:         text,
		Type:         domain.QuestionType(questionType),
		Required:     req.Required,
		Order:        order,
		CreatedAt:    now,
	}, nil
}

func validateAnswer(questionType domain.QuestionType, value json.RawMessage) error {
	if len(value) == 0 {
		return domain.ErrInvalidQuestion
	}
	switch questionType {
	case domain.QuestionBoolean:
		var v bool
		if err := json.Unmarshal(value, &v); err != nil {
			return domain.ErrInvalidQuestion
		}
	case domain.QuestionText:
		var v string
		if err := json.Unmarshal(value, &v); err != nil {
			return domain.ErrInvalidQuestion
		}
	case domain.QuestionRating:
		var v float64
		if err := json.Unmarshal(value, &v); err != nil {
			return domain.ErrInvalidQuestion
		}
	}
	return nil
}

func summarize(questions []domain.EvaluationQuestion, rows []domain.ResponseRow) []domain.QuestionSummary {
	byQuestion := make(map[snowflake.ID][]domain.ResponseEntry, len(questions))
	for _, row := range rows {
		byQuestion[row.QuestionID] = append(byQuestion[row.QuestionID], domain.ResponseEntry{
			UserID:      row.UserID.String(),
			UserEmail:   row.UserEmail,
			Answer:      json.RawMessage(row.Answer),
			SubmittedAt: row.SubmittedAt,
		})
	}

	summaries := make([]domain.QuestionSummary, 0, len(questions))
	for _, q := range questions {
		entries := byQuestion[q.ID]
		summaries = append(summaries, domain.QuestionSummary{
			QuestionID:    q.ID.String(),
			ResponseCount: len(entries),
			Responses:     entries,
		})
	}
	return summaries
}

func toResponse(e *domain.Evaluation, questions []domain.EvaluationQuestion) domain.Response {
	resp := domain.Response{
		ID:           e.ID.String(),
		AccountID:    e.AccountID.String(),
		ProjectID:    e.ProjectID.String(),
		CreatorID:    e.CreatorID.String(),
		Title:        e.Title,
		Description:  e.Description,
		Instructions: e.Instructions,
		Status:       string(e.Status),
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
	for _, q := range questions {
		resp.Questions = append(resp.Questions, toQuestionResponse(q))
	}
	return resp
}

func toQuestionResponse(q domain.EvaluationQuestion) domain.QuestionResponse {
	return domain.QuestionResponse{
		ID:       q.ID.String(),
		Text:     q.Text,
		Type:     string(q.Type),
		Required: q.Required,
		Order:    q.Order,
	}
}

func trimPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
