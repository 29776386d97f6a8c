package domain

import (
	"context"
	"sync"
	"time"

	"github.com/uticket/backend/internal/docstore"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DeliveryFunc receives notification events emitted for a session and
// reports whether a client took them.
type DeliveryFunc func(sessionID, userID string, ev NotificationEvent) bool

// UserSession holds the caches and the notification listener of one
// authenticated session.
type UserSession struct {
	ID        string
	UserID    string
	ExpiresAt time.Time

	Engine   *NotificationSyncEngine
	Wishlist *WishlistService
	Catalog  *ListingCatalog

	logger  *zap.Logger
	mu      sync.Mutex
	toggles map[string]*WishlistToggle
}

// Toggle returns the toggle state machine for listingID, creating it from the
// cached wishlist membership on first use.
func (s *UserSession) Toggle(listingID string) *WishlistToggle {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.toggles[listingID]
	if !ok {
		t = NewWishlistToggle(s.Wishlist.IsWishlisted(listingID))
		s.toggles[listingID] = t
	}
	return t
}

// ToggleWishlist flips the wishlist membership of listingID optimistically.
// A failed store write reverts the toggle and resynchronizes the wishlist
// cache. It returns the membership shown after the call.
func (s *UserSession) ToggleWishlist(ctx context.Context, listingID string) (bool, error) {
	t := s.Toggle(listingID)
	t.Sync(s.Wishlist.IsWishlisted(listingID))

	adding, err := t.Begin()
	if err != nil {
		return t.Wishlisted(), err
	}

	if adding {
		err = s.Wishlist.Add(ctx, s.UserID, listingID)
	} else {
		err = s.Wishlist.Remove(ctx, s.UserID, listingID)
	}
	if err != nil {
		t.Revert()
		if refreshErr := s.Wishlist.Refresh(ctx, s.UserID); refreshErr != nil {
			s.logger.Warn("wishlist resync failed", zap.String("user_id", s.UserID), zap.Error(refreshErr))
		}
		return t.Wishlisted(), err
	}
	t.Commit()
	return t.Wishlisted(), nil
}

// Acknowledge marks a notification this session has shown as read.
func (s *UserSession) Acknowledge(ctx context.Context, notificationID string) bool {
	if !s.Engine.WasShown(notificationID) {
		return false
	}
	s.Engine.MarkAsRead(ctx, notificationID)
	return true
}

func (s *UserSession) close() {
	s.Engine.StopListening()
	s.Wishlist.Reset()
	s.Catalog.Reset()
	s.mu.Lock()
	s.toggles = make(map[string]*WishlistToggle)
	s.mu.Unlock()
}

// SessionManager owns every live UserSession.
type SessionManager struct {
	store         docstore.Store
	prefs         PreferenceReader
	deliver       DeliveryFunc
	compositeKeys bool
	logger        *zap.Logger

	opens    singleflight.Group
	mu       sync.Mutex
	sessions map[string]*UserSession
}

func NewSessionManager(store docstore.Store, prefs PreferenceReader, deliver DeliveryFunc, compositeKeys bool, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		store:         store,
		prefs:         prefs,
		deliver:       deliver,
		compositeKeys: compositeKeys,
		logger:        logger,
		sessions:      make(map[string]*UserSession),
	}
}

// Open starts a session: the notification listener runs and the wishlist
// cache is warmed. An existing session with the same ID is replaced.
// Concurrent opens of one session ID share a single result.
func (m *SessionManager) Open(ctx context.Context, sessionID, userID string, expiresAt time.Time) (*UserSession, error) {
	return m.openOnce(sessionID, func() (*UserSession, error) {
		return m.open(ctx, sessionID, userID, expiresAt)
	})
}

func (m *SessionManager) openOnce(sessionID string, fn func() (*UserSession, error)) (*UserSession, error) {
	v, err, _ := m.opens.Do(sessionID, func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	return v.(*UserSession), nil
}

func (m *SessionManager) open(ctx context.Context, sessionID, userID string, expiresAt time.Time) (*UserSession, error) {
	m.Close(sessionID)

	sess := m.newSession(sessionID, userID, expiresAt)
	if err := sess.Engine.StartListening(userID); err != nil {
		return nil, err
	}
	if err := sess.Wishlist.Refresh(ctx, userID); err != nil {
		m.logger.Warn("initial wishlist load failed", zap.String("session_id", sessionID), zap.Error(err))
	}

	m.mu.Lock()
	if prev, ok := m.sessions[sessionID]; ok {
		defer prev.close()
	}
	m.sessions[sessionID] = sess
	m.mu.Unlock()

	m.logger.Info("session opened", zap.String("session_id", sessionID), zap.String("user_id", userID))
	return sess, nil
}

func (m *SessionManager) newSession(sessionID, userID string, expiresAt time.Time) *UserSession {
	logger := m.logger.With(zap.String("session_id", sessionID))
	sess := &UserSession{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: expiresAt,
		Wishlist:  NewWishlistService(m.store, logger, m.compositeKeys),
		Catalog:   NewListingCatalog(m.store, logger),
		logger:    logger,
		toggles:   make(map[string]*WishlistToggle),
	}
	sess.Engine = NewNotificationSyncEngine(m.store, m.prefs, logger, func(ev NotificationEvent) bool {
		return m.deliver != nil && m.deliver(sessionID, userID, ev)
	})
	return sess
}

// Ensure returns the live session, opening it when the process has none (for
// example after a restart while the token is still valid).
func (m *SessionManager) Ensure(ctx context.Context, sessionID, userID string, expiresAt time.Time) (*UserSession, error) {
	if sess, ok := m.Get(sessionID); ok && sess.UserID == userID {
		return sess, nil
	}
	return m.openOnce(sessionID, func() (*UserSession, error) {
		if sess, ok := m.Get(sessionID); ok && sess.UserID == userID {
			return sess, nil
		}
		return m.open(ctx, sessionID, userID, expiresAt)
	})
}

// Replay gives the session's listener another pass over its latest snapshot,
// typically once a stream client has attached.
func (m *SessionManager) Replay(ctx context.Context, sessionID string) {
	if sess, ok := m.Get(sessionID); ok {
		sess.Engine.Replay(ctx)
	}
}

func (m *SessionManager) Get(sessionID string) (*UserSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	return sess, ok
}

// Close stops the session's listener and drops its caches.
func (m *SessionManager) Close(sessionID string) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if ok {
		sess.close()
		m.logger.Info("session closed", zap.String("session_id", sessionID))
	}
}

// CloseUser closes every session of userID.
func (m *SessionManager) CloseUser(userID string) int {
	m.mu.Lock()
	var closing []*UserSession
	for id, sess := range m.sessions {
		if sess.UserID == userID {
			closing = append(closing, sess)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, sess := range closing {
		sess.close()
	}
	return len(closing)
}

// CloseExpired closes sessions whose expiry is before now.
func (m *SessionManager) CloseExpired(now time.Time) int {
	m.mu.Lock()
	var expired []*UserSession
	for id, sess := range m.sessions {
		if !sess.ExpiresAt.IsZero() && sess.ExpiresAt.Before(now) {
			expired = append(expired, sess)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, sess := range expired {
		sess.close()
	}
	return len(expired)
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StartSweeper closes expired sessions every interval until ctx ends.
func (m *SessionManager) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := m.CloseExpired(now); n > 0 {
					m.logger.Info("expired sessions closed", zap.Int("count", n))
				}
			}
		}
	}()
}

// Shutdown closes every session.
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	all := make([]*UserSession, 0, len(m.sessions))
	for _, sess := range m.sessions {
		all = append(all, sess)
	}
	m.sessions = make(map[string]*UserSession)
	m.mu.Unlock()
	for _, sess := range all {
		sess.close()
	}
}
