package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uticket/backend/internal/auth"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTokenNotFound   = errors.New("refresh token not found")
	ErrTokenRevoked    = errors.New("token has been revoked")
	ErrSessionExpired  = errors.New("session has expired")
)

// AuthRepository stores server sessions and refresh tokens.
type AuthRepository interface {
	CreateSession(ctx context.Context, params CreateSessionParams) (*AuthSession, error)
	GetSessionByID(ctx context.Context, id uuid.UUID) (*AuthSession, error)
	TouchSession(ctx context.Context, id uuid.UUID) error
	DeactivateSession(ctx context.Context, id uuid.UUID) error
	DeactivateUserSessions(ctx context.Context, userID string) error
	UpdateSessionFCMToken(ctx context.Context, sessionID uuid.UUID, fcmToken string) error

	CreateRefreshToken(ctx context.Context, params CreateRefreshTokenParams) (*RefreshToken, error)
	GetRefreshTokenByHash(ctx context.Context, hash string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id uuid.UUID) error
	RevokeSessionRefreshTokens(ctx context.Context, sessionID uuid.UUID) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

type CreateSessionParams struct {
	UserID     string
	Email      string
	DeviceInfo *string
	IPAddress  *string
	UserAgent  *string
	ExpiresAt  time.Time
}

type CreateRefreshTokenParams struct {
	UserID    string
	SessionID uuid.UUID
	TokenHash string
	ExpiresAt time.Time
}

// ClientInfo describes the device a session is opened from.
type ClientInfo struct {
	DeviceInfo string
	IPAddress  string
	UserAgent  string
}

// AuthResult is returned by every successful sign in.
type AuthResult struct {
	User         *User     `json:"user"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	SessionID    uuid.UUID `json:"session_id"`
	ExpiresAt    time.Time `json:"expires_at"`
	IsNewUser    bool      `json:"is_new_user"`
	Recovered    bool      `json:"recovered,omitempty"`
}

// AuthService signs users in through an IdentityProvider and issues session
// tokens. Each server session owns a UserSession in the SessionManager.
type AuthService struct {
	repo          AuthRepository
	identity      auth.IdentityProvider
	jwt           *auth.JWTManager
	sessions      *SessionManager
	allowedDomain string
	logger        *zap.Logger
}

func NewAuthService(repo AuthRepository, identity auth.IdentityProvider, jwt *auth.JWTManager, sessions *SessionManager, allowedDomain string, logger *zap.Logger) *AuthService {
	return &AuthService{
		repo:          repo,
		identity:      identity,
		jwt:           jwt,
		sessions:      sessions,
		allowedDomain: allowedDomain,
		logger:        logger,
	}
}

// SignUp creates an account. Only addresses in the allowed domain may sign up.
func (s *AuthService) SignUp(ctx context.Context, email, password, displayName string, client ClientInfo) (*AuthResult, error) {
	if !auth.EmailAllowed(email, s.allowedDomain) {
		return nil, auth.ErrEmailDomainNotAllowed
	}
	id, err := s.identity.SignUp(ctx, email, password, displayName)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, id, client)
}

// SignIn authenticates with email and password. If the provider rejects the
// credential as invalid or expired but current holds a still-valid session
// for the same email, that session is kept and new tokens are issued for it.
func (s *AuthService) SignIn(ctx context.Context, email, password string, current *auth.Claims, client ClientInfo) (*AuthResult, error) {
	id, err := s.identity.SignIn(ctx, email, password)
	if err == nil {
		return s.issue(ctx, id, client)
	}
	if !errors.Is(err, auth.ErrInvalidCredential) || current == nil || !strings.EqualFold(current.Email, strings.TrimSpace(email)) {
		return nil, err
	}

	sess, lookupErr := s.repo.GetSessionByID(ctx, current.SessionID)
	if lookupErr != nil || !sess.Valid(time.Now()) || sess.UserID != current.UserID {
		return nil, err
	}
	s.logger.Info("reusing existing session after credential error",
		zap.String("user_id", sess.UserID),
		zap.String("session_id", sess.ID.String()),
	)
	result, err := s.reissue(ctx, sess)
	if err != nil {
		return nil, err
	}
	result.Recovered = true
	return result, nil
}

// GoogleLogin signs in with a Google ID token.
func (s *AuthService) GoogleLogin(ctx context.Context, idToken string, client ClientInfo) (*AuthResult, error) {
	id, err := s.identity.SignInWithGoogle(ctx, idToken)
	if err != nil {
		return nil, err
	}
	if !auth.EmailAllowed(id.Email, s.allowedDomain) {
		return nil, auth.ErrEmailDomainNotAllowed
	}
	return s.issue(ctx, id, client)
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func (s *AuthService) issue(ctx context.Context, id *auth.Identity, client ClientInfo) (*AuthResult, error) {
	sess, err := s.repo.CreateSession(ctx, CreateSessionParams{
		UserID:     id.UserID,
		Email:      id.Email,
		DeviceInfo: optional(client.DeviceInfo),
		IPAddress:  optional(client.IPAddress),
		UserAgent:  optional(client.UserAgent),
		ExpiresAt:  time.Now().Add(s.jwt.RefreshExpiry()),
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	result, err := s.reissue(ctx, sess)
	if err != nil {
		return nil, err
	}
	result.User.DisplayName = id.DisplayName
	result.IsNewUser = id.IsNew
	return result, nil
}

// reissue mints a token pair for an existing session and makes sure its
// UserSession is running.
func (s *AuthService) reissue(ctx context.Context, sess *AuthSession) (*AuthResult, error) {
	pair, err := s.jwt.GenerateTokenPair(sess.UserID, sess.Email, sess.ID)
	if err != nil {
		return nil, err
	}
	_, err = s.repo.CreateRefreshToken(ctx, CreateRefreshTokenParams{
		UserID:    sess.UserID,
		SessionID: sess.ID,
		TokenHash: auth.HashToken(pair.RefreshToken),
		ExpiresAt: pair.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	if _, err := s.sessions.Ensure(ctx, sess.ID.String(), sess.UserID, sess.ExpiresAt); err != nil {
		s.logger.Warn("failed to start user session", zap.String("session_id", sess.ID.String()), zap.Error(err))
	}

	return &AuthResult{
		User:         &User{ID: sess.UserID, Email: sess.Email},
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		SessionID:    sess.ID,
		ExpiresAt:    pair.ExpiresAt,
	}, nil
}

// Refresh rotates a refresh token. Presenting a revoked token signs the user
// out everywhere.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	stored, err := s.repo.GetRefreshTokenByHash(ctx, auth.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, ErrTokenRevoked
		}
		return nil, err
	}
	if stored.Revoked {
		s.logger.Warn("refresh token reuse detected", zap.String("user_id", claims.UserID))
		if err := s.SignOutAll(ctx, claims.UserID); err != nil {
			s.logger.Error("failed to revoke sessions after token reuse", zap.Error(err))
		}
		return nil, ErrTokenRevoked
	}

	sess, err := s.repo.GetSessionByID(ctx, stored.SessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Valid(time.Now()) {
		return nil, ErrSessionExpired
	}

	if err := s.repo.RevokeRefreshToken(ctx, stored.ID); err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}
	return s.reissue(ctx, sess)
}

// SignOut ends one session and drops its caches.
func (s *AuthService) SignOut(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.repo.RevokeSessionRefreshTokens(ctx, sessionID); err != nil {
		return err
	}
	if err := s.repo.DeactivateSession(ctx, sessionID); err != nil {
		return err
	}
	s.sessions.Close(sessionID.String())
	return nil
}

// SignOutAll ends every session of userID.
func (s *AuthService) SignOutAll(ctx context.Context, userID string) error {
	if err := s.repo.RevokeUserRefreshTokens(ctx, userID); err != nil {
		return err
	}
	if err := s.repo.DeactivateUserSessions(ctx, userID); err != nil {
		return err
	}
	s.sessions.CloseUser(userID)
	return nil
}

// ValidateSession checks the server session behind an access token.
func (s *AuthService) ValidateSession(ctx context.Context, sessionID uuid.UUID) (*AuthSession, error) {
	sess, err := s.repo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Valid(time.Now()) {
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// UserSession returns the running session for claims, starting it if needed.
func (s *AuthService) UserSession(ctx context.Context, claims *auth.Claims) (*UserSession, error) {
	sess, err := s.ValidateSession(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.TouchSession(ctx, sess.ID); err != nil {
		s.logger.Debug("failed to touch session", zap.Error(err))
	}
	return s.sessions.Ensure(ctx, sess.ID.String(), sess.UserID, sess.ExpiresAt)
}

// UpdateFCMToken registers the device push token for a session.
func (s *AuthService) UpdateFCMToken(ctx context.Context, sessionID uuid.UUID, token string) error {
	return s.repo.UpdateSessionFCMToken(ctx, sessionID, token)
}

// FCMToken returns the push token registered for sessionID, if any.
func (s *AuthService) FCMToken(ctx context.Context, sessionID uuid.UUID) (string, error) {
	sess, err := s.repo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess.FCMToken == nil || !sess.IsActive {
		return "", nil
	}
	return *sess.FCMToken, nil
}
