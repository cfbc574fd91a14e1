package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/testbay/testbay/internal/config"
	evaluationdomain "github.com/testbay/testbay/internal/evaluation/domain"
	"github.com/testbay/testbay/internal/identity"
	invitationdomain "github.com/testbay/testbay/internal/invitation/domain"
	projectdomain "github.com/testbay/testbay/internal/project/domain"
	"github.com/testbay/testbay/pkg/db/pagination"
	"github.com/testbay/testbay/pkg/tenantctx"
)

type fakeIdentity struct {
	identity.Service
	principals map[string]tenantctx.Principal
}

func (f *fakeIdentity) Resolve(ctx context.Context, rawToken string) (tenantctx.Principal, error) {
	principal, ok := f.principals[rawToken]
	if !ok {
		return tenantctx.Principal{}, identity.ErrUnauthenticated
	}
	return principal, nil
}

type fakeProjects struct {
	projectdomain.Service
	listCalls int
	createErr error
}

func (f *fakeProjects) List(ctx context.Context, page pagination.Pagination) (*projectdomain.ListResponse, error) {
	f.listCalls++
	return &projectdomain.ListResponse{Items: []projectdomain.Response{}}, nil
}

func (f *fakeProjects) Create(ctx context.Context, req projectdomain.CreateRequest) (*projectdomain.Response, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &projectdomain.Response{ID: "1", Name: req.Name}, nil
}

func (f *fakeProjects) Get(ctx context.Context, id string) (*projectdomain.Response, error) {
	return nil, projectdomain.ErrNotFound
}

type fakeEvaluations struct {
	evaluationdomain.Service
	joined []string
}

func (f *fakeEvaluations) Join(ctx context.Context, evaluationID string) (*evaluationdomain.ParticipationResponse, error) {
	f.joined = append(f.joined, evaluationID)
	return &evaluationdomain.ParticipationResponse{EvaluationID: evaluationID, Status: "pending"}, nil
}

type fakeInvitations struct {
	invitationdomain.Service
	validated []string
}

func (f *fakeInvitations) Validate(ctx context.Context, token string) (*invitationdomain.Response, error) {
	f.validated = append(f.validated, token)
	return &invitationdomain.Response{Email: "invitee@acme.test", Status: "pending"}, nil
}

type testHarness struct {
	server      *Server
	projects    *fakeProjects
	evaluations *fakeEvaluations
	invitations *fakeInvitations
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	tenant := node.Generate()

	ident := &fakeIdentity{principals: map[string]tenantctx.Principal{
		"owner-token":  {UserID: node.Generate(), Role: tenantctx.RoleOwner, AccountID: tenant},
		"tester-token": {UserID: node.Generate(), Role: tenantctx.RoleTester, AccountID: tenant},
		"member-token": {UserID: node.Generate(), Role: tenantctx.RoleMember, AccountID: tenant},
	}}

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	h := &testHarness{
		projects:    &fakeProjects{},
		evaluations: &fakeEvaluations{},
		invitations: &fakeInvitations{},
	}
	h.server = NewServer(ServerParams{
		Gin:           engine,
		Cfg:           config.Config{},
		IdentitySvc:   ident,
		ProjectSvc:    h.projects,
		EvaluationSvc: h.evaluations,
		InvitationSvc: h.invitations,
	})
	return h
}

func (h *testHarness) request(method, path, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.server.Engine().ServeHTTP(rec, req)
	return rec
}

func TestMissingTokenIsUnauthorized(t *testing.T) {
	h := newHarness(t)

	rec := h.request(http.MethodGet, "/projects", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "unauthenticated", body.Error.Type)
}

func TestMemberWritesBlockedOnEveryVerb(t *testing.T) {
	h := newHarness(t)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/projects"},
		{http.MethodPut, "/projects/1"},
		{http.MethodDelete, "/projects/1"},
		{http.MethodPost, "/evaluations"},
		{http.MethodPost, "/evaluations/1/join"},
		{http.MethodDelete, "/invitations/1"},
	} {
		rec := h.request(tc.method, tc.path, "member-token", `{}`)
		require.Equalf(t, http.StatusForbidden, rec.Code, "%s %s", tc.method, tc.path)
	}

	// Reads still pass through to the service.
	rec := h.request(http.MethodGet, "/projects", "member-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, h.projects.listCalls)
}

func TestTesterMayJoin(t *testing.T) {
	h := newHarness(t)

	rec := h.request(http.MethodPost, "/evaluations/42/join", "tester-token", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, []string{"42"}, h.evaluations.joined)
}

func TestNotFoundMapsTo404(t *testing.T) {
	h := newHarness(t)

	rec := h.request(http.MethodGet, "/projects/999", "owner-token", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidateInvitationIsPublic(t *testing.T) {
	h := newHarness(t)

	rec := h.request(http.MethodGet, "/invitations/validate/tok-abc", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"tok-abc"}, h.invitations.validated)
}

func TestMalformedBodyIsValidationError(t *testing.T) {
	h := newHarness(t)

	rec := h.request(http.MethodPost, "/projects", "owner-token", `{"name": 12`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error struct {
			Type   string            `json:"type"`
			Errors []ValidationError `json:"errors"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "validation_error", body.Error.Type)
	require.NotEmpty(t, body.Error.Errors)
}
