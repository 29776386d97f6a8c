package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/uticket/backend/internal/auth"
	"github.com/uticket/backend/internal/config"
	"github.com/uticket/backend/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const oauthStateCookie = "uticket_oauth_state"

// GoogleOAuthHandler handles the browser-based Google OAuth flow and hands
// the resulting tokens to the app through its deep link scheme.
type GoogleOAuthHandler struct {
	config      *oauth2.Config
	authService *domain.AuthService
	logger      *zap.Logger
	appScheme   string
	secure      bool
}

func NewGoogleOAuthHandler(cfg *config.Config, authService *domain.AuthService, logger *zap.Logger) *GoogleOAuthHandler {
	clientID := ""
	if len(cfg.Google.ClientIDs) > 0 {
		clientID = cfg.Google.ClientIDs[0]
	}

	return &GoogleOAuthHandler{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
			Scopes: []string{
				"openid",
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		authService: authService,
		logger:      logger,
		appScheme:   cfg.Google.AppScheme,
		secure:      cfg.IsProduction(),
	}
}

func newOAuthState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GoogleOAuthLogin redirects to Google's consent screen.
func (h *GoogleOAuthHandler) GoogleOAuthLogin(w http.ResponseWriter, r *http.Request) {
	state, err := newOAuthState()
	if err != nil {
		h.logger.Error("failed to generate oauth state", zap.Error(err))
		h.redirectWithError(w, r, auth.UserMessage(err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	authURL := h.config.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.SetAuthURLParam("prompt", "select_account"))
	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// GoogleOAuthCallback exchanges the code and signs the user in.
func (h *GoogleOAuthHandler) GoogleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(q.Get("state"))) != 1 {
		h.logger.Warn("oauth state mismatch")
		h.redirectWithError(w, r, auth.UserMessage(auth.ErrInvalidCredential))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/", MaxAge: -1})

	code := q.Get("code")
	if code == "" {
		h.redirectWithError(w, r, auth.UserMessage(auth.ErrInvalidCredential))
		return
	}

	token, err := h.config.Exchange(ctx, code)
	if err != nil {
		h.logger.Error("failed to exchange code for token", zap.Error(err))
		h.redirectWithError(w, r, auth.UserMessage(auth.ErrNetwork))
		return
	}
	idToken, ok := token.Extra("id_token").(string)
	if !ok {
		h.logger.Error("no id_token in google token response")
		h.redirectWithError(w, r, auth.UserMessage(auth.ErrInvalidCredential))
		return
	}

	result, err := h.authService.GoogleLogin(ctx, idToken, clientInfo(r))
	if err != nil {
		h.logger.Warn("google sign-in rejected", zap.Error(err))
		h.redirectWithError(w, r, auth.UserMessage(err))
		return
	}

	h.redirect(w, r, url.Values{
		"access_token":  {result.AccessToken},
		"refresh_token": {result.RefreshToken},
		"user_id":       {result.User.ID},
	})
}

func (h *GoogleOAuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, msg string) {
	h.redirect(w, r, url.Values{"error": {msg}})
}

func (h *GoogleOAuthHandler) redirect(w http.ResponseWriter, r *http.Request, params url.Values) {
	appURL := fmt.Sprintf("%s://auth/callback?%s", h.appScheme, params.Encode())
	http.Redirect(w, r, appURL, http.StatusTemporaryRedirect)
}
