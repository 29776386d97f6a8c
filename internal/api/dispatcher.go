package api

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uticket/backend/internal/domain"
	"go.uber.org/zap"
)

// PushSender delivers a device push notification.
type PushSender interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

// TokenSource looks up the push token registered for a session.
type TokenSource interface {
	FCMToken(ctx context.Context, sessionID uuid.UUID) (string, error)
}

// NotificationDispatcher hands notification events to the session's live
// websocket connections and falls back to a push when none is connected.
type NotificationDispatcher struct {
	ws     *WebSocketManager
	push   PushSender
	tokens TokenSource
	logger *zap.Logger
}

// NewNotificationDispatcher builds a dispatcher. push may be nil, in which
// case events for offline sessions are refused and replayed when a stream
// client connects.
func NewNotificationDispatcher(ws *WebSocketManager, push PushSender, tokens TokenSource, logger *zap.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{ws: ws, push: push, tokens: tokens, logger: logger}
}

// Deliver has the signature of domain.DeliveryFunc. It reports whether the
// event reached a websocket or was pushed to the session's device.
func (d *NotificationDispatcher) Deliver(sessionID, userID string, ev domain.NotificationEvent) bool {
	if d.ws.SendToSession(sessionID, WSEvent{Type: "notification", Payload: ev}) {
		return true
	}
	if d.push == nil || d.tokens == nil {
		return false
	}
	sid, err := uuid.Parse(sessionID)
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	token, err := d.tokens.FCMToken(ctx, sid)
	if err != nil {
		d.logger.Warn("push token lookup failed", zap.String("session_id", sessionID), zap.Error(err))
		return false
	}
	if token == "" {
		return false
	}
	data := map[string]string{
		"notificationId": ev.ID,
		"listingId":      ev.ListingID,
		"type":           string(ev.Type),
	}
	if err := d.push.Send(ctx, token, ev.Title, ev.Message, data); err != nil {
		return false
	}
	d.logger.Debug("notification pushed",
		zap.String("user_id", userID),
		zap.String("notification_id", ev.ID),
	)
	return true
}
