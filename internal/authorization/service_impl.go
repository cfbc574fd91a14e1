package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/testbay/testbay/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectProject    = "project"
	ObjectEvaluation = "evaluation"
	ObjectInvitation = "invitation"
)

const (
	ActionProjectView         = "project.view"
	ActionProjectCreate       = "project.create"
	ActionProjectUpdate       = "project.update"
	ActionProjectDelete       = "project.delete"
	ActionProjectMemberManage = "project.member_manage"

	ActionEvaluationView        = "evaluation.view"
	ActionEvaluationCreate      = "evaluation.create"
	ActionEvaluationUpdate      = "evaluation.update"
	ActionEvaluationDelete      = "evaluation.delete"
	ActionEvaluationQuestionAdd = "evaluation.question_add"
	ActionEvaluationJoin        = "evaluation.join"
	ActionEvaluationFeedback    = "evaluation.feedback"
	ActionEvaluationMine        = "evaluation.mine"

	ActionInvitationView   = "invitation.view"
	ActionInvitationSend   = "invitation.send"
	ActionInvitationRevoke = "invitation.revoke"
	ActionInvitationResend = "invitation.resend"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

// Service answers "may this role perform this action on this entity". The
// policy set is the per-entity permission table consulted before every
// service operation.
type Service interface {
	Authorize(ctx context.Context, principal tenantctx.Principal, object, action string) error
}

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, principal tenantctx.Principal, object, action string) error {
	_ = ctx

	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := roleSubject(principal.Role)
	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("role", string(principal.Role)),
			zap.String("object", object),
			zap.String("action", action),
		)
		return fmt.Errorf("%w: %s on %s", ErrForbidden, action, object)
	}
	return nil
}

func roleSubject(role tenantctx.Role) string {
	return "role:" + string(role)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Owners administer everything inside their account.
		{"role:owner", ObjectProject, ActionProjectView},
		{"role:owner", ObjectProject, ActionProjectCreate},
		{"role:owner", ObjectProject, ActionProjectUpdate},
		{"role:owner", ObjectProject, ActionProjectDelete},
		{"role:owner", ObjectProject, ActionProjectMemberManage},
		{"role:owner", ObjectEvaluation, ActionEvaluationView},
		{"role:owner", ObjectEvaluation, ActionEvaluationCreate},
		{"role:owner", ObjectEvaluation, ActionEvaluationUpdate},
		{"role:owner", ObjectEvaluation, ActionEvaluationDelete},
		{"role:owner", ObjectEvaluation, ActionEvaluationQuestionAdd},
		{"role:owner", ObjectInvitation, ActionInvitationView},
		{"role:owner", ObjectInvitation, ActionInvitationSend},
		{"role:owner", ObjectInvitation, ActionInvitationRevoke},
		{"role:owner", ObjectInvitation, ActionInvitationResend},

		// Testers read and participate.
		{"role:tester", ObjectProject, ActionProjectView},
		{"role:tester", ObjectEvaluation, ActionEvaluationView},
		{"role:tester", ObjectEvaluation, ActionEvaluationJoin},
		{"role:tester", ObjectEvaluation, ActionEvaluationFeedback},
		{"role:tester", ObjectEvaluation, ActionEvaluationMine},

		// Restricted members read only; project listing is additionally
		// filtered to membership edges at the service layer.
		{"role:member", ObjectProject, ActionProjectView},
		{"role:member", ObjectEvaluation, ActionEvaluationView},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
