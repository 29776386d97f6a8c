package api

import (
	"errors"
	"net/http"

	"github.com/uticket/backend/internal/auth"
	"github.com/uticket/backend/internal/domain"
	"github.com/uticket/backend/pkg/response"
	"github.com/uticket/backend/pkg/validator"
	"go.uber.org/zap"
)

var identityStatus = []struct {
	err    error
	status int
	code   string
}{
	{auth.ErrWrongPassword, http.StatusUnauthorized, "WRONG_PASSWORD"},
	{auth.ErrUserNotFound, http.StatusUnauthorized, "USER_NOT_FOUND"},
	{auth.ErrInvalidCredential, http.StatusUnauthorized, "INVALID_CREDENTIAL"},
	{auth.ErrInvalidEmail, http.StatusBadRequest, "INVALID_EMAIL"},
	{auth.ErrWeakPassword, http.StatusBadRequest, "WEAK_PASSWORD"},
	{auth.ErrUserDisabled, http.StatusForbidden, "USER_DISABLED"},
	{auth.ErrEmailDomainNotAllowed, http.StatusForbidden, "EMAIL_DOMAIN_NOT_ALLOWED"},
	{auth.ErrEmailInUse, http.StatusConflict, "EMAIL_IN_USE"},
	{auth.ErrTooManyRequests, http.StatusTooManyRequests, "TOO_MANY_REQUESTS"},
	{auth.ErrNetwork, http.StatusServiceUnavailable, "NETWORK_ERROR"},
}

// writeError maps service errors to HTTP responses. Identity failures carry
// the user-facing message; anything unrecognised is logged and reported as
// an internal error.
func writeError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		response.ValidationFailed(w, verrs)
		return
	}
	for _, s := range identityStatus {
		if errors.Is(err, s.err) {
			response.Error(w, s.status, s.code, auth.UserMessage(err))
			return
		}
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		response.Unauthorized(w, "token has expired")
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, domain.ErrTokenRevoked),
		errors.Is(err, domain.ErrTokenNotFound):
		response.Unauthorized(w, "invalid token")
	case errors.Is(err, domain.ErrSessionExpired), errors.Is(err, domain.ErrSessionNotFound):
		response.Unauthorized(w, "session is no longer active")
	case errors.Is(err, domain.ErrListingNotFound):
		response.NotFound(w, "listing not found")
	case errors.Is(err, domain.ErrNotificationNotFound):
		response.NotFound(w, "notification not found")
	case errors.Is(err, domain.ErrProfileNotFound):
		response.NotFound(w, "profile not found")
	case errors.Is(err, domain.ErrNotWishlisted):
		response.NotFound(w, "listing is not in your wishlist")
	case errors.Is(err, domain.ErrNotListingOwner):
		response.Forbidden(w, "you can only change your own listings")
	case errors.Is(err, domain.ErrOwnListing):
		response.BadRequest(w, "you cannot purchase your own listing")
	case errors.Is(err, domain.ErrListingSold):
		response.Conflict(w, "this ticket has already been sold")
	case errors.Is(err, domain.ErrTogglePending):
		response.Conflict(w, "a wishlist change is already in progress")
	default:
		logger.Error(op+" failed", zap.Error(err))
		response.InternalError(w, op+" failed")
	}
}
