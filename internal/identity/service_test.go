package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	accountdomain "github.com/testbay/testbay/internal/account/domain"
	"github.com/testbay/testbay/internal/migration"
	userdomain "github.com/testbay/testbay/internal/user/domain"
	userrepo "github.com/testbay/testbay/internal/user/repository"
	"github.com/testbay/testbay/pkg/tenantctx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeVerifier struct {
	claims *Claims
	err    error
}

func (f *fakeVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.claims, nil
}

type fakeAdmin struct {
	createErr  error
	signInErr  error
	created    []string
	deleted    []string
	signedOut  []string
	nextUserID string
}

func (f *fakeAdmin) CreateUser(ctx context.Context, email, password, name string) (*AdminUser, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, email)
	return &AdminUser{ID: f.nextUserID, Email: email}, nil
}

func (f *fakeAdmin) SignIn(ctx context.Context, email, password string) (*TokenPair, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return &TokenPair{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 3600}, nil
}

func (f *fakeAdmin) SignOut(ctx context.Context, refreshToken string) error {
	f.signedOut = append(f.signedOut, refreshToken)
	return nil
}

func (f *fakeAdmin) DeleteUser(ctx context.Context, externalID string) error {
	f.deleted = append(f.deleted, externalID)
	return nil
}

func newService(t *testing.T, verifier TokenVerifier, admin AdminClient) (Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Verifier: verifier,
		Admin:    admin,
		Users:    userrepo.Provide(),
	})
	return svc, conn, node
}

func TestSignupCreatesAccountAndOwner(t *testing.T) {
	admin := &fakeAdmin{nextUserID: "ext-new"}
	svc, conn, _ := newService(t, &fakeVerifier{}, admin)

	resp, err := svc.Signup(context.Background(), SignupRequest{
		AccountName: "Acme QA",
		Email:       "Founder@acme.test",
		Password:    "s3cret-pw",
		Name:        "Founder",
	})
	require.NoError(t, err)
	require.Equal(t, "owner", resp.User.Role)
	require.Equal(t, "founder@acme.test", resp.User.Email)
	require.Equal(t, "Acme QA", resp.User.AccountName)
	require.Equal(t, "access", resp.Tokens.AccessToken)

	var user userdomain.User
	require.NoError(t, conn.First(&user, "email = ?", "founder@acme.test").Error)
	require.Equal(t, "ext-new", user.ExternalID)
	require.Equal(t, tenantctx.RoleOwner, user.Role)
}

func TestSignupCompensatesAccountOnProviderFailure(t *testing.T) {
	admin := &fakeAdmin{createErr: errors.New("provider down")}
	svc, conn, _ := newService(t, &fakeVerifier{}, admin)

	_, err := svc.Signup(context.Background(), SignupRequest{
		AccountName: "Doomed Inc",
		Email:       "doomed@acme.test",
		Password:    "s3cret-pw",
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, conn.Model(&accountdomain.Account{}).Count(&count).Error)
	require.EqualValues(t, 0, count)
}

func TestSignupRejectsExistingEmail(t *testing.T) {
	admin := &fakeAdmin{nextUserID: "ext-1"}
	svc, _, _ := newService(t, &fakeVerifier{}, admin)

	_, err := svc.Signup(context.Background(), SignupRequest{
		AccountName: "First", Email: "same@acme.test", Password: "s3cret-pw",
	})
	require.NoError(t, err)

	_, err = svc.Signup(context.Background(), SignupRequest{
		AccountName: "Second", Email: "same@acme.test", Password: "s3cret-pw",
	})
	require.ErrorIs(t, err, ErrEmailTaken)
	require.Empty(t, admin.deleted)
}

func TestSignupValidatesInput(t *testing.T) {
	svc, _, _ := newService(t, &fakeVerifier{}, &fakeAdmin{})
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupRequest{Email: "a@b.c", Password: "s3cret-pw"})
	require.ErrorIs(t, err, ErrInvalidAccountName)

	_, err = svc.Signup(ctx, SignupRequest{AccountName: "x", Email: "not-an-email", Password: "s3cret-pw"})
	require.ErrorIs(t, err, ErrInvalidEmail)

	_, err = svc.Signup(ctx, SignupRequest{AccountName: "x", Email: "a@b.c", Password: "short"})
	require.ErrorIs(t, err, ErrWeakPassword)
}

func TestResolveRequiresLocalMirror(t *testing.T) {
	verifier := &fakeVerifier{claims: &Claims{Subject: "ext-ghost", Email: "ghost@acme.test"}}
	svc, conn, node := newService(t, verifier, &fakeAdmin{})

	_, err := svc.Resolve(context.Background(), "token")
	require.ErrorIs(t, err, ErrUnauthenticated)

	tenant := node.Generate()
	user := &userdomain.User{
		ID:         node.Generate(),
		ExternalID: "ext-ghost",
		Email:      "ghost@acme.test",
		Role:       tenantctx.RoleTester,
		AccountID:  tenant,
	}
	require.NoError(t, conn.Create(user).Error)

	principal, err := svc.Resolve(context.Background(), "token")
	require.NoError(t, err)
	require.Equal(t, user.ID, principal.UserID)
	require.Equal(t, tenant, principal.AccountID)
	require.Equal(t, tenantctx.RoleTester, principal.Role)
}

func TestLogoutSwallowsProviderErrors(t *testing.T) {
	admin := &fakeAdmin{}
	svc, _, _ := newService(t, &fakeVerifier{}, admin)

	require.NoError(t, svc.Logout(context.Background(), "refresh"))
	require.Equal(t, []string{"refresh"}, admin.signedOut)

	// Blank tokens are a no-op, not an error.
	require.NoError(t, svc.Logout(context.Background(), ""))
}
