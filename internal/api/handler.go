package api

import (
	"context"
	"net/http"

	"github.com/uticket/backend/internal/auth"
	"github.com/uticket/backend/internal/domain"
	"github.com/uticket/backend/internal/middleware"
	"github.com/uticket/backend/pkg/response"
	"go.uber.org/zap"
)

// SessionResolver returns the running UserSession behind access token claims.
type SessionResolver interface {
	UserSession(ctx context.Context, claims *auth.Claims) (*domain.UserSession, error)
}

// userSession resolves the caller's session or writes a 401.
func userSession(w http.ResponseWriter, r *http.Request, sessions SessionResolver, logger *zap.Logger) (*domain.UserSession, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return nil, false
	}
	sess, err := sessions.UserSession(r.Context(), claims)
	if err != nil {
		writeError(w, logger, "session lookup", err)
		return nil, false
	}
	return sess, true
}

func currentUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
	}
	return userID, ok
}

func statusOK(w http.ResponseWriter) {
	response.OK(w, map[string]string{"status": "success"})
}
