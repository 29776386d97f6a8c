package domain

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uticket/backend/internal/auth"
	"github.com/uticket/backend/internal/docstore"
	"go.uber.org/zap/zaptest"
)

type memAuthRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*AuthSession
	tokens   map[string]*RefreshToken
}

func newMemAuthRepo() *memAuthRepo {
	return &memAuthRepo{
		sessions: make(map[uuid.UUID]*AuthSession),
		tokens:   make(map[string]*RefreshToken),
	}
}

func (r *memAuthRepo) CreateSession(ctx context.Context, p CreateSessionParams) (*AuthSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &AuthSession{
		ID: uuid.New(), UserID: p.UserID, Email: p.Email, DeviceInfo: p.DeviceInfo,
		IsActive: true, CreatedAt: time.Now(), ExpiresAt: p.ExpiresAt,
	}
	r.sessions[s.ID] = s
	cp := *s
	return &cp, nil
}

func (r *memAuthRepo) GetSessionByID(ctx context.Context, id uuid.UUID) (*AuthSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memAuthRepo) TouchSession(ctx context.Context, id uuid.UUID) error { return nil }

func (r *memAuthRepo) DeactivateSession(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.IsActive = false
	}
	return nil
}

func (r *memAuthRepo) DeactivateUserSessions(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.UserID == userID {
			s.IsActive = false
		}
	}
	return nil
}

func (r *memAuthRepo) UpdateSessionFCMToken(ctx context.Context, id uuid.UUID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.FCMToken = &token
	return nil
}

func (r *memAuthRepo) CreateRefreshToken(ctx context.Context, p CreateRefreshTokenParams) (*RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &RefreshToken{ID: uuid.New(), UserID: p.UserID, SessionID: p.SessionID, TokenHash: p.TokenHash, ExpiresAt: p.ExpiresAt}
	r.tokens[p.TokenHash] = t
	return t, nil
}

func (r *memAuthRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (*RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[hash]
	if !ok {
		return nil, ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memAuthRepo) revokeWhere(match func(*RefreshToken) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if match(t) {
			t.Revoked = true
		}
	}
}

func (r *memAuthRepo) RevokeRefreshToken(ctx context.Context, id uuid.UUID) error {
	r.revokeWhere(func(t *RefreshToken) bool { return t.ID == id })
	return nil
}

func (r *memAuthRepo) RevokeSessionRefreshTokens(ctx context.Context, id uuid.UUID) error {
	r.revokeWhere(func(t *RefreshToken) bool { return t.SessionID == id })
	return nil
}

func (r *memAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	r.revokeWhere(func(t *RefreshToken) bool { return t.UserID == userID })
	return nil
}

// stubIdentity accepts a single account and can be told to fail sign in.
type stubIdentity struct {
	email     string
	password  string
	signInErr error
}

func (s *stubIdentity) SignUp(ctx context.Context, email, password, displayName string) (*auth.Identity, error) {
	if len(password) < 6 {
		return nil, auth.ErrWeakPassword
	}
	return &auth.Identity{UserID: "uid-" + email, Email: email, DisplayName: displayName, IsNew: true}, nil
}

func (s *stubIdentity) SignIn(ctx context.Context, email, password string) (*auth.Identity, error) {
	if s.signInErr != nil {
		return nil, s.signInErr
	}
	if email != s.email {
		return nil, auth.ErrUserNotFound
	}
	if password != s.password {
		return nil, auth.ErrWrongPassword
	}
	return &auth.Identity{UserID: "uid-" + email, Email: email}, nil
}

func (s *stubIdentity) SignInWithGoogle(ctx context.Context, idToken string) (*auth.Identity, error) {
	email, ok := strings.CutPrefix(idToken, "google:")
	if !ok {
		return nil, auth.ErrInvalidCredential
	}
	return &auth.Identity{UserID: "uid-" + email, Email: email}, nil
}

type authFixture struct {
	svc      *AuthService
	repo     *memAuthRepo
	identity *stubIdentity
	sessions *SessionManager
	jwt      *auth.JWTManager
}

func newAuthFixture(t *testing.T) *authFixture {
	store := docstore.NewMemoryStore()
	logger := zaptest.NewLogger(t)
	sessions := NewSessionManager(store, NewNotificationService(store, logger, 0), nil, false, logger)
	t.Cleanup(sessions.Shutdown)
	f := &authFixture{
		repo:     newMemAuthRepo(),
		identity: &stubIdentity{email: "bevo@utexas.edu", password: "hookem"},
		sessions: sessions,
		jwt:      auth.NewJWTManager("test-secret", 15*time.Minute, 24*time.Hour),
	}
	f.svc = NewAuthService(f.repo, f.identity, f.jwt, sessions, "@utexas.edu", logger)
	return f
}

func TestAuthService_SignUpDomainRestriction(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SignUp(ctx, "someone@gmail.com", "hookem", "Someone", ClientInfo{}); !errors.Is(err, auth.ErrEmailDomainNotAllowed) {
		t.Fatalf("err = %v", err)
	}
	res, err := f.svc.SignUp(ctx, "new@UTEXAS.edu", "hookem", "New", ClientInfo{DeviceInfo: "iPhone"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsNewUser || res.User.DisplayName != "New" || f.sessions.Count() != 1 {
		t.Errorf("result = %+v sessions=%d", res, f.sessions.Count())
	}
	if _, err := f.svc.GoogleLogin(ctx, "google:x@gmail.com", ClientInfo{}); !errors.Is(err, auth.ErrEmailDomainNotAllowed) {
		t.Errorf("google err = %v", err)
	}
}

func TestAuthService_SignInAndRecovery(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.svc.SignIn(ctx, "bevo@utexas.edu", "hookem", nil, ClientInfo{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := f.sessions.Get(res.SessionID.String()); !ok {
		t.Fatal("user session not started")
	}
	claims, err := f.jwt.ValidateAccessToken(res.AccessToken)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.SignIn(ctx, "bevo@utexas.edu", "wrong", claims, ClientInfo{}); !errors.Is(err, auth.ErrWrongPassword) {
		t.Fatalf("wrong password err = %v", err)
	}

	f.identity.signInErr = auth.ErrInvalidCredential
	if _, err := f.svc.SignIn(ctx, "other@utexas.edu", "hookem", claims, ClientInfo{}); !errors.Is(err, auth.ErrInvalidCredential) {
		t.Fatalf("mismatched email err = %v", err)
	}
	recovered, err := f.svc.SignIn(ctx, "BEVO@utexas.edu", "hookem", claims, ClientInfo{})
	if err != nil {
		t.Fatal(err)
	}
	if !recovered.Recovered || recovered.SessionID != res.SessionID {
		t.Errorf("recovery = %+v", recovered)
	}

	if err := f.svc.SignOut(ctx, res.SessionID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SignIn(ctx, "bevo@utexas.edu", "hookem", claims, ClientInfo{}); !errors.Is(err, auth.ErrInvalidCredential) {
		t.Errorf("recovery after sign out err = %v", err)
	}
	if f.sessions.Count() != 0 {
		t.Errorf("sessions after sign out = %d", f.sessions.Count())
	}
}

func TestAuthService_RefreshRotationAndReuse(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	first, err := f.svc.SignIn(ctx, "bevo@utexas.edu", "hookem", nil, ClientInfo{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatal(err)
	}
	if second.SessionID != first.SessionID {
		t.Error("refresh moved to a new session")
	}

	if _, err := f.svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("reuse err = %v", err)
	}
	if _, err := f.svc.ValidateSession(ctx, first.SessionID); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("session survived token reuse: %v", err)
	}
	if f.sessions.Count() != 0 {
		t.Error("user sessions left running after reuse")
	}
	if _, err := f.svc.Refresh(ctx, second.AccessToken); err == nil {
		t.Error("access token accepted as refresh token")
	}
}

func TestAuthService_FCMToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res, err := f.svc.SignIn(ctx, "bevo@utexas.edu", "hookem", nil, ClientInfo{})
	if err != nil {
		t.Fatal(err)
	}
	if tok, _ := f.svc.FCMToken(ctx, res.SessionID); tok != "" {
		t.Errorf("token before registration = %q", tok)
	}
	if err := f.svc.UpdateFCMToken(ctx, res.SessionID, "fcm-123"); err != nil {
		t.Fatal(err)
	}
	if tok, _ := f.svc.FCMToken(ctx, res.SessionID); tok != "fcm-123" {
		t.Errorf("token = %q", tok)
	}
}
