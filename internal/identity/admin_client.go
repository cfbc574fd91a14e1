package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/testbay/testbay/internal/config"
)

// AdminUser is the provider-side record for a managed user.
type AdminUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// TokenPair is an issued session.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// AdminClient drives the identity provider's admin API with the service key.
type AdminClient interface {
	CreateUser(ctx context.Context, email, password, name string) (*AdminUser, error)
	SignIn(ctx context.Context, email, password string) (*TokenPair, error)
	SignOut(ctx context.Context, refreshToken string) error
	DeleteUser(ctx context.Context, externalID string) error
}

type adminClient struct {
	baseURL    string
	serviceKey string
	http       *http.Client
}

func NewAdminClient(cfg config.Config) AdminClient {
	return &adminClient{
		baseURL:    cfg.Identity.AdminBaseURL,
		serviceKey: cfg.Identity.ServiceKey,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *adminClient) CreateUser(ctx context.Context, email, password, name string) (*AdminUser, error) {
	var out AdminUser
	err := c.do(ctx, http.MethodPost, "/admin/users", map[string]string{
		"email":    email,
		"password": password,
		"name":     name,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *adminClient) SignIn(ctx context.Context, email, password string) (*TokenPair, error) {
	var out TokenPair
	err := c.do(ctx, http.MethodPost, "/token/sign-in", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *adminClient) SignOut(ctx context.Context, refreshToken string) error {
	return c.do(ctx, http.MethodPost, "/token/sign-out", map[string]string{
		"refresh_token": refreshToken,
	}, nil)
}

func (c *adminClient) DeleteUser(ctx context.Context, externalID string) error {
	return c.do(ctx, http.MethodDelete, "/admin/users/"+externalID, nil, nil)
}

func (c *adminClient) do(ctx context.Context, method, path string, body any, out any) error {
	var payload *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(encoded)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	case resp.StatusCode == http.StatusConflict:
		return ErrEmailTaken
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusBadRequest:
		return ErrInvalidCredentials
	case resp.StatusCode == http.StatusNotFound:
		return ErrUnauthenticated
	default:
		return fmt.Errorf("%w: %s returned %d", ErrProviderUnavailable, path, resp.StatusCode)
	}
}
