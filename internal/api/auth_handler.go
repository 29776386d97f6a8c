package api

import (
	"encoding/json"
	"net/http"

	"github.com/uticket/backend/internal/auth"
	"github.com/uticket/backend/internal/domain"
	"github.com/uticket/backend/internal/middleware"
	"github.com/uticket/backend/pkg/response"
	"github.com/uticket/backend/pkg/validator"
	"go.uber.org/zap"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *domain.AuthService
	jwtManager  *auth.JWTManager
	logger      *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *domain.AuthService, jwtManager *auth.JWTManager, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		jwtManager:  jwtManager,
		logger:      logger,
	}
}

type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type GoogleLoginRequest struct {
	IDToken string `json:"id_token"`
}

func clientInfo(r *http.Request) domain.ClientInfo {
	return domain.ClientInfo{
		DeviceInfo: validator.SanitizeString(r.Header.Get("X-Device-Info"), 255),
		IPAddress:  r.RemoteAddr,
		UserAgent:  validator.SanitizeString(r.UserAgent(), 512),
	}
}

// SignUp registers a campus account.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	req.Email = validator.SanitizeEmail(req.Email)
	if !validator.ValidateEmail(req.Email) {
		writeError(w, h.logger, "sign up", auth.ErrInvalidEmail)
		return
	}

	result, err := h.authService.SignUp(r.Context(), req.Email, req.Password, validator.SanitizeString(req.Name, 100), clientInfo(r))
	if err != nil {
		writeError(w, h.logger, "sign up", err)
		return
	}
	response.Created(w, result)
}

// SignIn authenticates with email and password. A valid bearer token for the
// same account lets the call recover from a stale-credential error.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	req.Email = validator.SanitizeEmail(req.Email)
	if !validator.ValidateEmail(req.Email) {
		writeError(w, h.logger, "sign in", auth.ErrInvalidEmail)
		return
	}
	if req.Password == "" {
		response.BadRequest(w, "password is required")
		return
	}

	current, _ := middleware.GetClaims(r.Context())
	result, err := h.authService.SignIn(r.Context(), req.Email, req.Password, current, clientInfo(r))
	if err != nil {
		writeError(w, h.logger, "sign in", err)
		return
	}
	response.OK(w, result)
}

// Refresh rotates the refresh token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.RefreshToken == "" {
		response.BadRequest(w, "refresh_token is required")
		return
	}

	result, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, h.logger, "token refresh", err)
		return
	}
	response.OK(w, result)
}

// SignOut ends the session the refresh token belongs to. It always reports
// success so a client can clear its state even with a stale token.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.RefreshToken == "" {
		response.BadRequest(w, "refresh_token is required")
		return
	}

	claims, err := h.jwtManager.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		h.logger.Debug("sign out with unusable refresh token", zap.Error(err))
		statusOK(w)
		return
	}
	if err := h.authService.SignOut(r.Context(), claims.SessionID); err != nil {
		h.logger.Warn("sign out failed", zap.String("session_id", claims.SessionID.String()), zap.Error(err))
	}
	statusOK(w)
}

// SignOutAll ends every session of the caller.
func (h *AuthHandler) SignOutAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	if err := h.authService.SignOutAll(r.Context(), userID); err != nil {
		writeError(w, h.logger, "sign out", err)
		return
	}
	statusOK(w)
}

// GoogleLogin exchanges a Google ID token from a native client.
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req GoogleLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.IDToken == "" {
		response.BadRequest(w, "id_token is required")
		return
	}

	result, err := h.authService.GoogleLogin(r.Context(), req.IDToken, clientInfo(r))
	if err != nil {
		writeError(w, h.logger, "google login", err)
		return
	}
	response.OK(w, result)
}

type MeResponse struct {
	User          domain.User `json:"user"`
	SessionID     string      `json:"session_id"`
	Listening     bool        `json:"listening"`
	WishlistCount int         `json:"wishlist_count"`
}

// Me returns the caller and the state of their session.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := userSession(w, r, h.authService, h.logger)
	if !ok {
		return
	}
	email, _ := middleware.GetEmail(r.Context())
	response.OK(w, MeResponse{
		User:          domain.User{ID: sess.UserID, Email: email},
		SessionID:     sess.ID,
		Listening:     sess.Engine.Listening(),
		WishlistCount: len(sess.Wishlist.IDs()),
	})
}
