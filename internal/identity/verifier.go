package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/testbay/testbay/internal/config"
)

// Claims is the subset of ID-token claims the platform cares about.
type Claims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// TokenVerifier checks a raw bearer token against the identity provider's
// signing keys and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Claims, error)
}

type oidcVerifier struct {
	issuerURL string
	clientID  string

	mu       sync.Mutex
	verifier *oidc.IDTokenVerifier
}

// NewVerifier builds a TokenVerifier backed by OIDC discovery. Discovery is
// deferred to the first Verify call so the process can start while the
// provider is still coming up.
func NewVerifier(cfg config.Config) TokenVerifier {
	return &oidcVerifier{
		issuerURL: cfg.Identity.IssuerURL,
		clientID:  cfg.Identity.ClientID,
	}
}

func (v *oidcVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	verifier, err := v.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	token, err := verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	var claims Claims
	if err := token.Claims(&claims); err != nil {
		return nil, ErrUnauthenticated
	}
	if claims.Subject == "" {
		claims.Subject = token.Subject
	}
	return &claims, nil
}

func (v *oidcVerifier) load(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.verifier != nil {
		return v.verifier, nil
	}

	provider, err := oidc.NewProvider(ctx, v.issuerURL)
	if err != nil {
		return nil, err
	}
	v.verifier = provider.Verifier(&oidc.Config{ClientID: v.clientID})
	return v.verifier, nil
}
