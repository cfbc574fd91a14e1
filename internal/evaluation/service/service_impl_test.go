package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"github.com/testbay/testbay/internal/authorization"
	"github.com/testbay/testbay/internal/evaluation/domain"
	evalrepo "github.com/testbay/testbay/internal/evaluation/repository"
	"github.com/testbay/testbay/internal/migration"
	projectdomain "github.com/testbay/testbay/internal/project/domain"
	userdomain "github.com/testbay/testbay/internal/user/domain"
	"github.com/testbay/testbay/pkg/db/pagination"
	"github.com/testbay/testbay/pkg/repository"
	"github.com/testbay/testbay/pkg/tenantctx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	svc     domain.Service
	tenant  snowflake.ID
	owner   tenantctx.Principal
	tester  tenantctx.Principal
	project *projectdomain.Project
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer})

	svc := New(Params{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Authz:    authz,
		Store:    repository.ProvideStore[domain.Evaluation](conn),
		Repo:     evalrepo.Provide(),
		Projects: repository.ProvideStore[projectdomain.Project](conn),
	})

	f := &fixture{db: conn, node: node, svc: svc, tenant: node.Generate()}
	f.owner = f.seedUser(t, "owner@acme.test", tenantctx.RoleOwner)
	f.tester = f.seedUser(t, "tester@acme.test", tenantctx.RoleTester)

	f.project = &projectdomain.Project{
		ID:        node.Generate(),
		AccountID: f.tenant,
		OwnerID:   f.owner.UserID,
		Name:      "Device Lab",
		Status:    projectdomain.StatusActive,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, conn.Create(f.project).Error)
	return f
}

func (f *fixture) seedUser(t *testing.T, email string, role tenantctx.Role) tenantctx.Principal {
	t.Helper()

	user := &userdomain.User{
		ID:         f.node.Generate(),
		ExternalID: "ext-" + email,
		Email:      email,
		Role:       role,
		AccountID:  f.tenant,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	require.NoError(t, f.db.Create(user).Error)
	return tenantctx.Principal{
		UserID:     user.ID,
		ExternalID: user.ExternalID,
		Email:      user.Email,
		Role:       role,
		AccountID:  f.tenant,
	}
}

func (f *fixture) ctx(p tenantctx.Principal) context.Context {
	return tenantctx.WithPrincipal(context.Background(), p)
}

func (f *fixture) createEvaluation(t *testing.T, status string, questions ...domain.QuestionRequest) *domain.Response {
	t.Helper()
	resp, err := f.svc.Create(f.ctx(f.owner), domain.CreateRequest{
		ProjectID: f.project.ID.String(),
		Title:     "Onboarding Survey",
		Status:    &status,
		Questions: questions,
	})
	require.NoError(t, err)
	return resp
}

func boolAnswer(questionID string, value bool) domain.AnswerRequest {
	raw, _ := json.Marshal(value)
	return domain.AnswerRequest{QuestionID: questionID, Value: raw}
}

func textAnswer(questionID, value string) domain.AnswerRequest {
	raw, _ := json.Marshal(value)
	return domain.AnswerRequest{QuestionID: questionID, Value: raw}
}

func TestCreateWithQuestionsKeepsOrder(t *testing.T) {
	f := newFixture(t)

	resp := f.createEvaluation(t, "draft",
		domain.QuestionRequest{Text: "Did onboarding finish?", Type: "boolean"},
		domain.QuestionRequest{Text: "What confused you?", Type: "text"},
		domain.QuestionRequest{Text: "Rate the flow", Type: "rating"},
	)

	require.Len(t, resp.Questions, 3)
	require.Equal(t, 0, resp.Questions[0].Order)
	require.Equal(t, 1, resp.Questions[1].Order)
	require.Equal(t, 2, resp.Questions[2].Order)
	require.Equal(t, "draft", resp.Status)
}

func TestCreateRejectsUnknownQuestionType(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(f.ctx(f.owner), domain.CreateRequest{
		ProjectID: f.project.ID.String(),
		Title:     "Bad",
		Questions: []domain.QuestionRequest{{Text: "?", Type: "multiple_choice"}},
	})
	require.ErrorIs(t, err, domain.ErrInvalidQuestion)

	// Nothing from the failed create may linger.
	var count int64
	require.NoError(t, f.db.Model(&domain.Evaluation{}).Count(&count).Error)
	require.EqualValues(t, 0, count)
}

func TestCreateRejectsForeignProject(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(f.ctx(f.owner), domain.CreateRequest{
		ProjectID: f.node.Generate().String(),
		Title:     "Orphan",
	})
	require.ErrorIs(t, err, domain.ErrInvalidProject)
}

func TestTesterListOnlySeesActive(t *testing.T) {
	f := newFixture(t)

	f.createEvaluation(t, "draft")
	active := f.createEvaluation(t, "active")

	list, err := f.svc.ListByProject(f.ctx(f.tester), f.project.ID.String(), pagination.Pagination{})
	require.NoError(t, err)
	require.EqualValues(t, 1, list.PageInfo.Total)
	require.Equal(t, active.ID, list.Items[0].ID)

	list, err = f.svc.ListByProject(f.ctx(f.owner), f.project.ID.String(), pagination.Pagination{})
	require.NoError(t, err)
	require.EqualValues(t, 2, list.PageInfo.Total)
}

func TestTesterGetNonActiveIsForbidden(t *testing.T) {
	f := newFixture(t)
	draft := f.createEvaluation(t, "draft")

	_, err := f.svc.Get(f.ctx(f.tester), draft.ID)
	require.ErrorIs(t, err, domain.ErrNotActive)

	// The owner still sees it.
	_, err = f.svc.Get(f.ctx(f.owner), draft.ID)
	require.NoError(t, err)
}

func TestJoinRequiresActive(t *testing.T) {
	f := newFixture(t)
	draft := f.createEvaluation(t, "draft")

	_, err := f.svc.Join(f.ctx(f.tester), draft.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJoinTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	active := f.createEvaluation(t, "active")

	part, err := f.svc.Join(f.ctx(f.tester), active.ID)
	require.NoError(t, err)
	require.Equal(t, "pending", part.Status)

	_, err = f.svc.Join(f.ctx(f.tester), active.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyJoined)
}

func TestJoinIsTesterOnly(t *testing.T) {
	f := newFixture(t)
	active := f.createEvaluation(t, "active")

	_, err := f.svc.Join(f.ctx(f.owner), active.ID)
	require.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestSubmitFeedbackWithoutJoining(t *testing.T) {
	f := newFixture(t)
	active := f.createEvaluation(t, "active",
		domain.QuestionRequest{Text: "Done?", Type: "boolean"},
	)

	err := f.svc.SubmitFeedback(f.ctx(f.tester), active.ID, domain.FeedbackRequest{
		Answers: []domain.AnswerRequest{boolAnswer(active.Questions[0].ID, true)},
	})
	require.ErrorIs(t, err, domain.ErrNotJoined)
}

func TestSubmitFeedbackCompletesParticipation(t *testing.T) {
	f := newFixture(t)
	active := f.createEvaluation(t, "active",
		domain.QuestionRequest{Text: "Done?", Type: "boolean"},
		domain.QuestionRequest{Text: "Notes", Type: "text"},
	)

	_, err := f.svc.Join(f.ctx(f.tester), active.ID)
	require.NoError(t, err)

	err = f.svc.SubmitFeedback(f.ctx(f.tester), active.ID, domain.FeedbackRequest{
		Answers: []domain.AnswerRequest{
			boolAnswer(active.Questions[0].ID, true),
			textAnswer(active.Questions[1].ID, "smooth"),
		},
	})
	require.NoError(t, err)

	detail, err := f.svc.Get(f.ctx(f.tester), active.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Joined)
	require.True(t, *detail.Joined)
	require.NotNil(t, detail.Completed)
	require.True(t, *detail.Completed)

	// Second submission conflicts.
	err = f.svc.SubmitFeedback(f.ctx(f.tester), active.ID, domain.FeedbackRequest{
		Answers: []domain.AnswerRequest{boolAnswer(active.Questions[0].ID, false)},
	})
	require.ErrorIs(t, err, domain.ErrAlreadyCompleted)
}

func TestSubmitFeedbackRejectsForeignQuestion(t *testing.T) {
	f := newFixture(t)
	active := f.createEvaluation(t, "active",
		domain.QuestionRequest{Text: "Done?", Type: "boolean"},
	)
	other := f.createEvaluation(t, "active",
		domain.QuestionRequest{Text: "Elsewhere", Type: "text"},
	)

	_, err := f.svc.Join(f.ctx(f.tester), active.ID)
	require.NoError(t, err)

	err = f.svc.SubmitFeedback(f.ctx(f.tester), active.ID, domain.FeedbackRequest{
		Answers: []domain.AnswerRequest{
			boolAnswer(active.Questions[0].ID, true),
			textAnswer(other.Questions[0].ID, "wrong survey"),
		},
	})
	require.ErrorIs(t, err, domain.ErrQuestionNotOwned)
	require.Contains(t, err.Error(), other.Questions[0].ID)

	// The rejected batch left no partial answers behind.
	var count int64
	require.NoError(t, f.db.Model(&domain.EvaluationResponse{}).Count(&count).Error)
	require.EqualValues(t, 0, count)
}

func TestSubmitFeedbackValidatesAnswerShape(t *testing.T) {
	f := newFixture(t)
	active := f.createEvaluation(t, "active",
		domain.QuestionRequest{Text: "Done?", Type: "boolean"},
	)

	_, err := f.svc.Join(f.ctx(f.tester), active.ID)
	require.NoError(t, err)

	err = f.svc.SubmitFeedback(f.ctx(f.tester), active.ID, domain.FeedbackRequest{
		Answers: []domain.AnswerRequest{textAnswer(active.Questions[0].ID, "yes")},
	})
	require.ErrorIs(t, err, domain.ErrInvalidQuestion)
}

func TestOwnerGetIncludesSummaries(t *testing.T) {
	f := newFixture(t)
	active := f.createEvaluation(t, "active",
		domain.QuestionRequest{Text: "Done?", Type: "boolean"},
	)

	_, err := f.svc.Join(f.ctx(f.tester), active.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.SubmitFeedback(f.ctx(f.tester), active.ID, domain.FeedbackRequest{
		Answers: []domain.AnswerRequest{boolAnswer(active.Questions[0].ID, true)},
	}))

	detail, err := f.svc.Get(f.ctx(f.owner), active.ID)
	require.NoError(t, err)
	require.Len(t, detail.Summaries, 1)
	require.Equal(t, active.Questions[0].ID, detail.Summaries[0].QuestionID)
	require.Equal(t, 1, detail.Summaries[0].ResponseCount)
	require.Equal(t, "tester@acme.test", detail.Summaries[0].Responses[0].UserEmail)
}

func TestUpdateClearsInstructions(t *testing.T) {
	f := newFixture(t)

	instructions := "Use the staging build"
	created, err := f.svc.Create(f.ctx(f.owner), domain.CreateRequest{
		ProjectID:    f.project.ID.String(),
		Title:        "Install Flow",
		Instructions: &instructions,
	})
	require.NoError(t, err)
	require.NotNil(t, created.Instructions)

	empty := ""
	updated, err := f.svc.Update(f.ctx(f.owner), created.ID, domain.UpdateRequest{Instructions: &empty})
	require.NoError(t, err)
	require.Nil(t, updated.Instructions)

	// The cleared column survives a re-read.
	got, err := f.svc.Get(f.ctx(f.owner), created.ID)
	require.NoError(t, err)
	require.Nil(t, got.Instructions)
}

func TestAddQuestionAppendsAfterExisting(t *testing.T) {
	f := newFixture(t)
	evaluation := f.createEvaluation(t, "draft",
		domain.QuestionRequest{Text: "First", Type: "text"},
	)

	question, err := f.svc.AddQuestion(f.ctx(f.owner), evaluation.ID, domain.QuestionRequest{
		Text: "Second",
		Type: "rating",
	})
	require.NoError(t, err)
	require.Equal(t, 1, question.Order)
}

func TestMineCountsParticipations(t *testing.T) {
	f := newFixture(t)
	first := f.createEvaluation(t, "active",
		domain.QuestionRequest{Text: "Done?", Type: "boolean"},
	)
	second := f.createEvaluation(t, "active")

	_, err := f.svc.Join(f.ctx(f.tester), first.ID)
	require.NoError(t, err)
	_, err = f.svc.Join(f.ctx(f.tester), second.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.SubmitFeedback(f.ctx(f.tester), first.ID, domain.FeedbackRequest{
		Answers: []domain.AnswerRequest{boolAnswer(first.Questions[0].ID, true)},
	}))

	mine, err := f.svc.Mine(f.ctx(f.tester), domain.MyEvaluationsRequest{})
	require.NoError(t, err)
	require.Len(t, mine.Items, 2)
	require.EqualValues(t, 1, mine.Counts.Pending)
	require.EqualValues(t, 1, mine.Counts.Accepted)
	require.EqualValues(t, 0, mine.Counts.Rejected)

	accepted, err := f.svc.Mine(f.ctx(f.tester), domain.MyEvaluationsRequest{Status: "accepted"})
	require.NoError(t, err)
	require.Len(t, accepted.Items, 1)
	require.Equal(t, first.ID, accepted.Items[0].EvaluationID)
	require.Equal(t, 1, accepted.Items[0].QuestionCount)
}
