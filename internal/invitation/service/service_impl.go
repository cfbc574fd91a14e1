package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/testbay/testbay/internal/account/domain"
	"github.com/testbay/testbay/internal/authorization"
	"github.com/testbay/testbay/internal/clock"
	"github.com/testbay/testbay/internal/config"
	"github.com/testbay/testbay/internal/invitation/domain"
	userdomain "github.com/testbay/testbay/internal/user/domain"
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

	Config config.Config
	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Authz  authorization.Service
	Store  repository.Repository[domain.Invitation]
	Repo   domain.Repository
	Users  userdomain.Repository
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	authz     authorization.Service
	store     repository.Repository[domain.Invitation]
	repo      domain.Repository
	users     userdomain.Repository
	ttl       time.Duration
	publicURL string
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("invitation.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		authz:     p.Authz,
		store:     p.Store,
		repo:      p.Repo,
		users:     p.Users,
		ttl:       p.Config.InvitationTTL,
		publicURL: p.Config.PublicURL,
	}
}

func (s *Service) Send(ctx context.Context, req domain.SendRequest) (*domain.Response, error) {
	principal, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, principal, authorization.ObjectInvitation, authorization.ActionInvitationSend); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidEmail
	}

	role, ok := tenantctx.ParseRole(req.Role)
	if !ok || role == tenantctx.RoleOwner {
		// Ownership is granted at signup, never by invitation.
		return nil, domain.ErrInvalidRole
	}

	existing, err := s.users.FindByEmailInAccount(ctx, s.db, principal.AccountID, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrUserExists
	}

	// A stale pending invitation for the same address moves to expired
	// instead of blocking the new one.
	now := s.clock.Now()
	if err := s.repo.ExpireStalePending(ctx, s.db, principal.AccountID, email, now); err != nil {
		return nil, err
	}
	live, err := s.repo.FindLiveByEmail(ctx, s.db, principal.AccountID, email, now)
	if err != nil {
		return nil, err
	}
	if live != nil {
		return nil, domain.ErrPendingExists
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}

	invitation := &domain.Invitation{
		ID:        s.genID.Generate(),
		AccountID: principal.AccountID,
		InviterID: principal.UserID,
		Email:     email,
		Token:     token,
		Role:      role,
		Status:    domain.StatusPending,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, invitation); err != nil {
		return nil, err
	}

	s.log.Info("invitation sent",
		zap.String("invitation_id", invitation.ID.String()),
		zap.String("email", email),
		zap.String("role", string(role)),
	)

	resp := toResponse(invitation, true)
	resp.AcceptURL = s.acceptURL(invitation.Token)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, status string, page pagination.Pagination) (*domain.ListResponse, error) {
	principal, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, principal, authorization.ObjectInvitation, authorization.ActionInvitationView); err != nil {
		return nil, err
	}

	var opts []option.QueryOption
	if raw := strings.ToLower(strings.TrimSpace(status)); raw != "" {
		if !domain.ValidStatus(raw) {
			return nil, domain.ErrInvalidStatus
		}
		opts = append(opts, option.WithWhere("status = ?", raw))
	}

	items, total, err := s.store.List(ctx, principal.AccountID, page, opts...)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(items))
	for _, item := range items {
		resp = append(resp, toResponse(item, false))
	}
	return &domain.ListResponse{
		Items:    resp,
		PageInfo: pagination.BuildPageInfo(page.Normalize(), total),
	}, nil
}

func (s *Service) Revoke(ctx context.Context, id string) error {
	principal, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}
	if err := s.authz.Authorize(ctx, principal, authorization.ObjectInvitation, authorization.ActionInvitationRevoke); err != nil {
		return err
	}

	invitation, err := s.fetch(ctx, principal, id)
	if err != nil {
		return err
	}
	if invitation.Status != domain.StatusPending {
		return domain.ErrNotPending
	}

	return s.store.Update(ctx, principal.AccountID, invitation.ID, map[string]any{
		"status":     domain.StatusRevoked,
		"updated_at": s.clock.Now(),
	})
}

func (s *Service) Resend(ctx context.Context, id string) (*domain.Response, error) {
	principal, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, principal, authorization.ObjectInvitation, authorization.ActionInvitationResend); err != nil {
		return nil, err
	}

	invitation, err := s.fetch(ctx, principal, id)
	if err != nil {
		return nil, err
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}

	// Resend reopens the invitation from any prior state.
	now := s.clock.Now()
	invitation.Token = token
	invitation.Status = domain.StatusPending
	invitation.ExpiresAt = now.Add(s.ttl)
	invitation.AcceptedAt = nil
	invitation.UpdatedAt = now
	err = s.store.Update(ctx, principal.AccountID, invitation.ID, map[string]any{
		"token":       invitation.Token,
		"status":      invitation.Status,
		"expires_at":  invitation.ExpiresAt,
		"accepted_at": nil,
		"updated_at":  invitation.UpdatedAt,
	})
	if err != nil {
		return nil, err
	}

	resp := toResponse(invitation, true)
	resp.AcceptURL = s.acceptURL(invitation.Token)
	return &resp, nil
}

func (s *Service) Validate(ctx context.Context, token string) (*domain.Response, error) {
	invitation, err := s.lookupLive(ctx, token)
	if err != nil {
		return nil, err
	}

	resp := toResponse(invitation, false)
	var account accountdomain.Account
	if err := s.db.WithContext(ctx).First(&account, "id = ?", invitation.AccountID).Error; err == nil {
		resp.AccountName = account.Name
	}
	if inviter, err := s.users.FindByID(ctx, s.db, invitation.AccountID, invitation.InviterID); err == nil && inviter != nil {
		resp.InviterEmail = inviter.Email
	}
	return &resp, nil
}

func (s *Service) Accept(ctx context.Context, req domain.AcceptRequest) (*domain.AcceptResponse, error) {
	invitation, err := s.lookupLive(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	externalID := strings.TrimSpace(req.ExternalID)
	if externalID == "" {
		return nil, domain.ErrInvalidToken
	}

	now := s.clock.Now()
	user := &userdomain.User{
		ID:         s.genID.Generate(),
		ExternalID: externalID,
		Email:      invitation.Email,
		Name:       strings.TrimSpace(req.Name),
		Role:       invitation.Role,
		AccountID:  invitation.AccountID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// The membership and the invitation state flip land together.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.users.Create(ctx, tx, user); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrUserExists
			}
			return err
		}
		return tx.Model(&domain.Invitation{}).
			Where("id = ? AND status = ?", invitation.ID, domain.StatusPending).
			Updates(map[string]any{
				"status":      domain.StatusAccepted,
				"accepted_at": now,
				"updated_at":  now,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invitation accepted",
		zap.String("invitation_id", invitation.ID.String()),
		zap.String("user_id", user.ID.String()),
	)

	return &domain.AcceptResponse{
		UserID:    user.ID.String(),
		AccountID: invitation.AccountID.String(),
		Email:     invitation.Email,
		Role:      string(invitation.Role),
	}, nil
}

// lookupLive resolves a token to a pending, unexpired invitation, lazily
// flipping stale rows to expired on the way.
func (s *Service) lookupLive(ctx context.Context, token string) (*domain.Invitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrInvalidToken
	}

	invitation, err := s.repo.FindByToken(ctx, s.db, token)
	if err != nil {
		return nil, err
	}
	if invitation == nil {
		return nil, domain.ErrInvalidToken
	}

	now := s.clock.Now()
	if invitation.Status == domain.StatusPending && !now.Before(invitation.ExpiresAt) {
		if err := s.db.WithContext(ctx).Model(&domain.Invitation{}).
			Where("id = ? AND status = ?", invitation.ID, domain.StatusPending).
			Updates(map[string]any{
				"status":     domain.StatusExpired,
				"updated_at": now,
			}).Error; err != nil {
			s.log.Warn("expiring stale invitation failed", zap.Error(err))
		}
		return nil, domain.ErrExpired
	}

	switch invitation.Status {
	case domain.StatusPending:
		return invitation, nil
	case domain.StatusExpired:
		return nil, domain.ErrExpired
	default:
		return nil, domain.ErrInvalidToken
	}
}

func (s *Service) fetch(ctx context.Context, principal tenantctx.Principal, id string) (*domain.Invitation, error) {
	invitationID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || invitationID == 0 {
		return nil, domain.ErrInvalidID
	}
	invitation, err := s.store.Get(ctx, principal.AccountID, invitationID)
	if err != nil {
		return nil, err
	}
	if invitation == nil {
		return nil, domain.ErrNotFound
	}
	return invitation, nil
}

// acceptURL builds the link a mailer would embed; nothing is delivered here.
func (s *Service) acceptURL(token string) string {
	if s.publicURL == "" {
		return ""
	}
	return s.publicURL + "/invitations/accept?token=" + token
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func toResponse(i *domain.Invitation, withToken bool) domain.Response {
	resp := domain.Response{
		ID:         i.ID.String(),
		AccountID:  i.AccountID.String(),
		InviterID:  i.InviterID.String(),
		Email:      i.Email,
		Role:       string(i.Role),
		Status:     string(i.Status),
		ExpiresAt:  i.ExpiresAt,
		AcceptedAt: i.AcceptedAt,
		CreatedAt:  i.CreatedAt,
	}
	if withToken {
		resp.Token = i.Token
	}
	return resp
}
