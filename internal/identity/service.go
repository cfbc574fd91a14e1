package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/testbay/testbay/internal/account/domain"
	userdomain "github.com/testbay/testbay/internal/user/domain"
	"github.com/testbay/testbay/pkg/db"
	"github.com/testbay/testbay/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrInvalidCredentials  = errors.New("invalid_credentials")
	ErrEmailTaken          = errors.New("email_taken")
	ErrInvalidAccountName  = errors.New("invalid_account_name")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrWeakPassword        = errors.New("weak_password")
	ErrProviderUnavailable = errors.New("identity_provider_unavailable")
)

type SignupRequest struct {
	AccountName string `json:"account_name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Name        string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Profile struct {
	UserID      string `json:"user_id"`
	ExternalID  string `json:"external_id"`
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	Role        string `json:"role"`
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name,omitempty"`
}

type SessionResponse struct {
	User   Profile   `json:"user"`
	Tokens TokenPair `json:"tokens"`
}

// Service bridges the external identity provider and the local user mirror.
type Service interface {
	Resolve(ctx context.Context, rawToken string) (tenantctx.Principal, error)
	Signup(ctx context.Context, req SignupRequest) (*SessionResponse, error)
	Login(ctx context.Context, req LoginRequest) (*SessionResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context) (*Profile, error)
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Verifier TokenVerifier
	Admin    AdminClient
	Users    userdomain.Repository
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	verifier TokenVerifier
	admin    AdminClient
	users    userdomain.Repository
}

func New(p Params) Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("identity.service"),
		genID:    p.GenID,
		verifier: p.Verifier,
		admin:    p.Admin,
		users:    p.Users,
	}
}

func (s *service) Resolve(ctx context.Context, rawToken string) (tenantctx.Principal, error) {
	claims, err := s.verifier.Verify(ctx, rawToken)
	if err != nil {
		return tenantctx.Principal{}, err
	}

	user, err := s.users.FindByExternalID(ctx, s.db, claims.Subject)
	if err != nil {
		return tenantctx.Principal{}, err
	}
	if user == nil {
		// Valid provider token with no local mirror: the subject never
		// signed up or accepted an invitation here.
		return tenantctx.Principal{}, ErrUnauthenticated
	}

	return tenantctx.Principal{
		UserID:     user.ID,
		ExternalID: user.ExternalID,
		Email:      user.Email,
		Role:       user.Role,
		AccountID:  user.AccountID,
	}, nil
}

func (s *service) Signup(ctx context.Context, req SignupRequest) (*SessionResponse, error) {
	accountName := strings.TrimSpace(req.AccountName)
	if accountName == "" {
		return nil, ErrInvalidAccountName
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}

	existing, err := s.users.FindByEmail(ctx, s.db, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	now := time.Now().UTC()
	account := &accountdomain.Account{
		ID:        s.genID.Generate(),
		Name:      accountName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		return nil, err
	}

	external, err := s.admin.CreateUser(ctx, email, req.Password, strings.TrimSpace(req.Name))
	if err != nil {
		s.compensateAccount(ctx, account.ID)
		return nil, err
	}

	user := &userdomain.User{
		ID:         s.genID.Generate(),
		ExternalID: external.ID,
		Email:      email,
		Name:       strings.TrimSpace(req.Name),
		Role:       tenantctx.RoleOwner,
		AccountID:  account.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.users.Create(ctx, s.db, user); err != nil {
		// Roll the provider-side user and the account back so the email
		// can retry signup from scratch.
		if delErr := s.admin.DeleteUser(ctx, external.ID); delErr != nil {
			s.log.Warn("provider user cleanup failed",
				zap.String("external_id", external.ID), zap.Error(delErr))
		}
		s.compensateAccount(ctx, account.ID)
		if db.IsDuplicateKeyErr(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	tokens, err := s.admin.SignIn(ctx, email, req.Password)
	if err != nil {
		// The user exists on both sides; surface the session failure and
		// let them log in normally.
		return nil, err
	}

	s.log.Info("account signed up",
		zap.String("account_id", account.ID.String()),
		zap.String("user_id", user.ID.String()),
	)

	return &SessionResponse{
		User: Profile{
			UserID:      user.ID.String(),
			ExternalID:  user.ExternalID,
			Email:       user.Email,
			Name:        user.Name,
			Role:        string(user.Role),
			AccountID:   account.ID.String(),
			AccountName: account.Name,
		},
		Tokens: *tokens,
	}, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*SessionResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	tokens, err := s.admin.SignIn(ctx, email, req.Password)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, s.db, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnauthenticated
	}

	return &SessionResponse{
		User: Profile{
			UserID:     user.ID.String(),
			ExternalID: user.ExternalID,
			Email:      user.Email,
			Name:       user.Name,
			Role:       string(user.Role),
			AccountID:  user.AccountID.String(),
		},
		Tokens: *tokens,
	}, nil
}

func (s *service) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	if err := s.admin.SignOut(ctx, refreshToken); err != nil {
		// Logout never fails from the caller's perspective.
		s.log.Warn("provider sign-out failed", zap.Error(err))
	}
	return nil
}

func (s *service) Me(ctx context.Context) (*Profile, error) {
	principal, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	user, err := s.users.FindByID(ctx, s.db, principal.AccountID, principal.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnauthenticated
	}

	var account accountdomain.Account
	accountName := ""
	if err := s.db.WithContext(ctx).First(&account, "id = ?", principal.AccountID).Error; err == nil {
		accountName = account.Name
	}

	return &Profile{
		UserID:      user.ID.String(),
		ExternalID:  user.ExternalID,
		Email:       user.Email,
		Name:        user.Name,
		Role:        string(user.Role),
		AccountID:   user.AccountID.String(),
		AccountName: accountName,
	}, nil
}

func (s *service) compensateAccount(ctx context.Context, accountID snowflake.ID) {
	if err := s.db.WithContext(ctx).
		Delete(&accountdomain.Account{}, "id = ?", accountID).Error; err != nil {
		s.log.Warn("account cleanup failed",
			zap.String("account_id", accountID.String()), zap.Error(err))
	}
}
