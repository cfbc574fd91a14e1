package authorization

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"github.com/testbay/testbay/pkg/tenantctx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T) Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)

	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func principalWithRole(role tenantctx.Role) tenantctx.Principal {
	return tenantctx.Principal{Role: role}
}

func TestOwnerMayManageProjects(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	owner := principalWithRole(tenantctx.RoleOwner)

	for _, action := range []string{
		ActionProjectView, ActionProjectCreate, ActionProjectUpdate,
		ActionProjectDelete, ActionProjectMemberManage,
	} {
		require.NoError(t, svc.Authorize(ctx, owner, ObjectProject, action))
	}
}

func TestTesterParticipatesButNeverAdministers(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	tester := principalWithRole(tenantctx.RoleTester)

	require.NoError(t, svc.Authorize(ctx, tester, ObjectEvaluation, ActionEvaluationView))
	require.NoError(t, svc.Authorize(ctx, tester, ObjectEvaluation, ActionEvaluationJoin))
	require.NoError(t, svc.Authorize(ctx, tester, ObjectEvaluation, ActionEvaluationFeedback))
	require.NoError(t, svc.Authorize(ctx, tester, ObjectEvaluation, ActionEvaluationMine))

	err := svc.Authorize(ctx, tester, ObjectEvaluation, ActionEvaluationCreate)
	require.ErrorIs(t, err, ErrForbidden)
	require.Contains(t, err.Error(), ActionEvaluationCreate)
	require.Contains(t, err.Error(), ObjectEvaluation)

	require.ErrorIs(t, svc.Authorize(ctx, tester, ObjectInvitation, ActionInvitationSend), ErrForbidden)
}

func TestMemberOnlyReads(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	member := principalWithRole(tenantctx.RoleMember)

	require.NoError(t, svc.Authorize(ctx, member, ObjectProject, ActionProjectView))
	require.NoError(t, svc.Authorize(ctx, member, ObjectEvaluation, ActionEvaluationView))

	require.ErrorIs(t, svc.Authorize(ctx, member, ObjectEvaluation, ActionEvaluationJoin), ErrForbidden)
	require.ErrorIs(t, svc.Authorize(ctx, member, ObjectProject, ActionProjectCreate), ErrForbidden)
}

func TestAuthorizeRejectsBlankInputs(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	owner := principalWithRole(tenantctx.RoleOwner)

	require.ErrorIs(t, svc.Authorize(ctx, owner, "", ActionProjectView), ErrInvalidObject)
	require.ErrorIs(t, svc.Authorize(ctx, owner, ObjectProject, " "), ErrInvalidAction)
}
