package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"github.com/testbay/testbay/internal/authorization"
	"github.com/testbay/testbay/internal/migration"
	"github.com/testbay/testbay/internal/project/domain"
	projectrepo "github.com/testbay/testbay/internal/project/repository"
	userdomain "github.com/testbay/testbay/internal/user/domain"
	userrepo "github.com/testbay/testbay/internal/user/repository"
	"github.com/testbay/testbay/pkg/db/pagination"
	"github.com/testbay/testbay/pkg/repository"
	"github.com/testbay/testbay/pkg/tenantctx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	node   *snowflake.Node
	svc    domain.Service
	tenant snowflake.ID
	owner  tenantctx.Principal
	tester tenantctx.Principal
	member tenantctx.Principal
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

	users := userrepo.Provide()
	svc := New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Authz: authz,
		Store: repository.ProvideStore[domain.Project](conn),
		Repo:  projectrepo.Provide(),
		Users: users,
	})

	f := &fixture{db: conn, node: node, svc: svc, tenant: node.Generate()}
	f.owner = f.seedUser(t, "owner@acme.test", tenantctx.RoleOwner)
	f.tester = f.seedUser(t, "tester@acme.test", tenantctx.RoleTester)
	f.member = f.seedUser(t, "member@acme.test", tenantctx.RoleMember)
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

func (f *fixture) createProject(t *testing.T, name string) *domain.Response {
	t.Helper()
	resp, err := f.svc.Create(f.ctx(f.owner), domain.CreateRequest{Name: name})
	require.NoError(t, err)
	return resp
}

func TestCreateDefaultsToDraft(t *testing.T) {
	f := newFixture(t)

	resp := f.createProject(t, "Mobile App Beta")
	require.Equal(t, "draft", resp.Status)
	require.Equal(t, f.owner.UserID.String(), resp.OwnerID)
	require.Equal(t, f.tenant.String(), resp.AccountID)
}

func TestCreateRejectsTester(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(f.ctx(f.tester), domain.CreateRequest{Name: "nope"})
	require.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestMemberListOnlySeesJoinedProjects(t *testing.T) {
	f := newFixture(t)

	visible := f.createProject(t, "Visible")
	f.createProject(t, "Hidden")

	require.NoError(t, f.svc.AddMember(f.ctx(f.owner), visible.ID, f.member.UserID.String()))

	list, err := f.svc.List(f.ctx(f.member), pagination.Pagination{})
	require.NoError(t, err)
	require.EqualValues(t, 1, list.PageInfo.Total)
	require.Len(t, list.Items, 1)
	require.Equal(t, visible.ID, list.Items[0].ID)

	// The same call from the owner sees both.
	list, err = f.svc.List(f.ctx(f.owner), pagination.Pagination{})
	require.NoError(t, err)
	require.EqualValues(t, 2, list.PageInfo.Total)
}

func TestMemberGetHonorsMembership(t *testing.T) {
	f := newFixture(t)

	joined := f.createProject(t, "Joined")
	other := f.createProject(t, "Other")
	require.NoError(t, f.svc.AddMember(f.ctx(f.owner), joined.ID, f.member.UserID.String()))

	resp, err := f.svc.Get(f.ctx(f.member), joined.ID)
	require.NoError(t, err)
	require.Equal(t, joined.ID, resp.ID)

	_, err = f.svc.Get(f.ctx(f.member), other.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAddMemberIsOwnerOnly(t *testing.T) {
	f := newFixture(t)
	project := f.createProject(t, "Gatekept")

	err := f.svc.AddMember(f.ctx(f.tester), project.ID, f.member.UserID.String())
	require.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestAddMemberTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	project := f.createProject(t, "Crowded")

	require.NoError(t, f.svc.AddMember(f.ctx(f.owner), project.ID, f.tester.UserID.String()))
	err := f.svc.AddMember(f.ctx(f.owner), project.ID, f.tester.UserID.String())
	require.ErrorIs(t, err, domain.ErrMemberExists)
}

func TestAddMemberUnknownUser(t *testing.T) {
	f := newFixture(t)
	project := f.createProject(t, "Empty")

	err := f.svc.AddMember(f.ctx(f.owner), project.ID, f.node.Generate().String())
	require.ErrorIs(t, err, domain.ErrInvalidUser)
}

func TestRemoveMemberRequiresExistingEdge(t *testing.T) {
	f := newFixture(t)
	project := f.createProject(t, "Sparse")

	err := f.svc.RemoveMember(f.ctx(f.owner), project.ID, f.tester.UserID.String())
	require.ErrorIs(t, err, domain.ErrMemberNotFound)

	require.NoError(t, f.svc.AddMember(f.ctx(f.owner), project.ID, f.tester.UserID.String()))
	require.NoError(t, f.svc.RemoveMember(f.ctx(f.owner), project.ID, f.tester.UserID.String()))
}

func TestDeleteSoftDeletes(t *testing.T) {
	f := newFixture(t)
	project := f.createProject(t, "Doomed")

	require.NoError(t, f.svc.Delete(f.ctx(f.owner), project.ID))

	_, err := f.svc.Get(f.ctx(f.owner), project.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	// The row survives under the soft-delete marker.
	var raw domain.Project
	require.NoError(t, f.db.First(&raw, "name = ?", "Doomed").Error)
	require.NotNil(t, raw.DeletedAt)

	list, err := f.svc.List(f.ctx(f.owner), pagination.Pagination{})
	require.NoError(t, err)
	require.EqualValues(t, 0, list.PageInfo.Total)
}

func TestUpdateValidatesStatus(t *testing.T) {
	f := newFixture(t)
	project := f.createProject(t, "Mutable")

	bad := "launched"
	_, err := f.svc.Update(f.ctx(f.owner), project.ID, domain.UpdateRequest{Status: &bad})
	require.ErrorIs(t, err, domain.ErrInvalidStatus)

	good := "active"
	resp, err := f.svc.Update(f.ctx(f.owner), project.ID, domain.UpdateRequest{Status: &good})
	require.NoError(t, err)
	require.Equal(t, "active", resp.Status)
}

func TestUpdateClearsDescription(t *testing.T) {
	f := newFixture(t)

	description := "First cut"
	created, err := f.svc.Create(f.ctx(f.owner), domain.CreateRequest{Name: "Docs", Description: &description})
	require.NoError(t, err)
	require.NotNil(t, created.Description)

	empty := ""
	updated, err := f.svc.Update(f.ctx(f.owner), created.ID, domain.UpdateRequest{Description: &empty})
	require.NoError(t, err)
	require.Nil(t, updated.Description)

	// The cleared column survives a re-read.
	got, err := f.svc.Get(f.ctx(f.owner), created.ID)
	require.NoError(t, err)
	require.Nil(t, got.Description)
}

func TestCrossTenantLookupIsNotFound(t *testing.T) {
	f := newFixture(t)
	project := f.createProject(t, "Private")

	stranger := tenantctx.Principal{
		UserID:    f.node.Generate(),
		Role:      tenantctx.RoleOwner,
		AccountID: f.node.Generate(),
	}
	_, err := f.svc.Get(f.ctx(stranger), project.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
