package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/testbay/testbay/internal/authorization"
	"github.com/testbay/testbay/internal/identity"
	"github.com/testbay/testbay/internal/observability/obscontext"
	"github.com/testbay/testbay/pkg/tenantctx"
)

// AuthRequired resolves the bearer token into a Principal and threads it
// through the request context. Requests without a resolvable principal stop
// here.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			AbortWithError(c, identity.ErrUnauthenticated)
			return
		}

		principal, err := s.identitySvc.Resolve(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := tenantctx.WithPrincipal(c.Request.Context(), principal)
		ctx = obscontext.WithAccountID(ctx, principal.AccountID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// BlockMemberWrites rejects every mutating verb for the restricted member
// role before any handler-level permission check runs.
func (s *Server) BlockMemberWrites() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			c.Next()
			return
		}

		principal, ok := tenantctx.FromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, identity.ErrUnauthenticated)
			return
		}
		if principal.Role == tenantctx.RoleMember {
			AbortWithError(c, authorization.ErrForbidden)
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
