package tenantctx

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// ErrNoPrincipal is returned when an operation runs without an authenticated
// principal in its context.
var ErrNoPrincipal = errors.New("no_principal")

// Role is the membership role a user holds inside an account.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleTester Role = "tester"
	RoleMember Role = "member"
)

// ParseRole normalizes a raw role string to a known Role.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleOwner:
		return RoleOwner, true
	case RoleTester:
		return RoleTester, true
	case RoleMember:
		return RoleMember, true
	default:
		return "", false
	}
}

// Principal is the authenticated caller. It is resolved once per request from a
// verified token and threaded explicitly through every service call.
type Principal struct {
	UserID     snowflake.ID
	ExternalID string
	Email      string
	Role       Role
	AccountID  snowflake.ID
}

type principalKey struct{}

// WithPrincipal stores the principal in the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal from context, if set.
func FromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || p.AccountID == 0 {
		return Principal{}, false
	}
	return p, true
}

// Require returns the principal or ErrNoPrincipal.
func Require(ctx context.Context) (Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return Principal{}, ErrNoPrincipal
	}
	return p, nil
}
