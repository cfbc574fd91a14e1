package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/testbay/testbay/internal/authorization"
	evaluationdomain "github.com/testbay/testbay/internal/evaluation/domain"
	"github.com/testbay/testbay/internal/identity"
	invitationdomain "github.com/testbay/testbay/internal/invitation/domain"
	projectdomain "github.com/testbay/testbay/internal/project/domain"
	"github.com/testbay/testbay/pkg/tenantctx"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware converts the last error attached to the context
// into a status-coded JSON body. Handlers report errors, this maps them.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{Field: field, Code: code, Message: message},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	var validation *ValidationErrors
	if errors.As(err, &validation) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  validation.Errors,
		}
	}

	switch {
	case errors.Is(err, tenantctx.ErrNoPrincipal),
		errors.Is(err, identity.ErrUnauthenticated),
		errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorPayload{Type: "unauthenticated", Message: err.Error()}

	case errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, evaluationdomain.ErrNotActive),
		errors.Is(err, evaluationdomain.ErrNotJoined):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: err.Error()}

	case errors.Is(err, projectdomain.ErrNotFound),
		errors.Is(err, projectdomain.ErrMemberNotFound),
		errors.Is(err, evaluationdomain.ErrNotFound),
		errors.Is(err, invitationdomain.ErrNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}

	case errors.Is(err, projectdomain.ErrMemberExists),
		errors.Is(err, evaluationdomain.ErrAlreadyJoined),
		errors.Is(err, evaluationdomain.ErrAlreadyCompleted),
		errors.Is(err, invitationdomain.ErrUserExists),
		errors.Is(err, invitationdomain.ErrPendingExists),
		errors.Is(err, invitationdomain.ErrNotPending),
		errors.Is(err, identity.ErrEmailTaken):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: err.Error()}

	case errors.Is(err, invitationdomain.ErrExpired),
		errors.Is(err, invitationdomain.ErrInvalidToken):
		return http.StatusGone, errorPayload{Type: "invitation_invalid", Message: err.Error()}

	case errors.Is(err, projectdomain.ErrInvalidID),
		errors.Is(err, projectdomain.ErrInvalidName),
		errors.Is(err, projectdomain.ErrInvalidStatus),
		errors.Is(err, projectdomain.ErrInvalidUser),
		errors.Is(err, evaluationdomain.ErrInvalidID),
		errors.Is(err, evaluationdomain.ErrInvalidProject),
		errors.Is(err, evaluationdomain.ErrInvalidTitle),
		errors.Is(err, evaluationdomain.ErrInvalidStatus),
		errors.Is(err, evaluationdomain.ErrInvalidQuestion),
		errors.Is(err, evaluationdomain.ErrQuestionNotOwned),
		errors.Is(err, evaluationdomain.ErrEmptyFeedback),
		errors.Is(err, invitationdomain.ErrInvalidID),
		errors.Is(err, invitationdomain.ErrInvalidEmail),
		errors.Is(err, invitationdomain.ErrInvalidRole),
		errors.Is(err, invitationdomain.ErrInvalidStatus),
		errors.Is(err, identity.ErrInvalidAccountName),
		errors.Is(err, identity.ErrInvalidEmail),
		errors.Is(err, identity.ErrWeakPassword):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: err.Error()}

	case errors.Is(err, identity.ErrProviderUnavailable):
		return http.StatusBadGateway, errorPayload{Type: "provider_unavailable", Message: err.Error()}
	}

	return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal error"}
}
