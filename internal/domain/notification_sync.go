package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/uticket/backend/internal/docstore"
	"go.uber.org/zap"
)

// EventSink receives an emitted notification and reports whether it reached
// a consumer. Refused events are not recorded as shown.
type EventSink func(NotificationEvent) bool

// NotificationSyncEngine watches one user's notifications and emits each
// unread notification at most once for as long as it keeps listening.
type NotificationSyncEngine struct {
	store   docstore.Store
	prefs   PreferenceReader
	logger  *zap.Logger
	onEvent EventSink

	// handling serializes snapshot processing between the listener and Replay.
	handling sync.Mutex

	mu     sync.Mutex
	userID string
	shown  map[string]struct{}
	last   *docstore.Snapshot
	sub    docstore.Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

// NewNotificationSyncEngine creates an engine that hands events to onEvent.
// onEvent runs on the engine's goroutine and must not call StopListening.
func NewNotificationSyncEngine(store docstore.Store, prefs PreferenceReader, logger *zap.Logger, onEvent EventSink) *NotificationSyncEngine {
	return &NotificationSyncEngine{
		store:   store,
		prefs:   prefs,
		logger:  logger,
		onEvent: onEvent,
		shown:   make(map[string]struct{}),
	}
}

// StartListening subscribes to userID's notifications, replacing any earlier
// subscription and forgetting which notifications were already shown.
func (e *NotificationSyncEngine) StartListening(userID string) error {
	e.StopListening()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := e.store.Subscribe(ctx, CollectionNotifications, docstore.Where("userId", userID))
	if err != nil {
		cancel()
		e.logger.Error("failed to subscribe to notifications", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("subscribe notifications: %w", err)
	}

	done := make(chan struct{})
	e.mu.Lock()
	e.userID = userID
	e.shown = make(map[string]struct{})
	e.last = nil
	e.sub = sub
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	go e.run(ctx, userID, sub, done)
	return nil
}

// StopListening tears down the subscription. It is a no-op when not listening.
func (e *NotificationSyncEngine) StopListening() {
	e.mu.Lock()
	sub, cancel, done := e.sub, e.cancel, e.done
	e.sub, e.cancel, e.done = nil, nil, nil
	e.userID = ""
	e.last = nil
	e.mu.Unlock()

	if sub == nil {
		return
	}
	sub.Stop()
	cancel()
	<-done
}

// Listening reports whether a subscription is active.
func (e *NotificationSyncEngine) Listening() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sub != nil
}

// ShownCount is the number of notifications emitted since StartListening.
func (e *NotificationSyncEngine) ShownCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.shown)
}

// WasShown reports whether notificationID was emitted since StartListening.
func (e *NotificationSyncEngine) WasShown(notificationID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.shown[notificationID]
	return ok
}

// Replay runs the latest server snapshot through the pipeline again so that
// notifications refused by the sink earlier get another chance. It is a no-op
// when not listening or before the first server snapshot.
func (e *NotificationSyncEngine) Replay(ctx context.Context) {
	e.mu.Lock()
	userID, snap := e.userID, e.last
	e.mu.Unlock()
	if snap == nil {
		return
	}
	e.handleSnapshot(ctx, userID, snap)
}

func (e *NotificationSyncEngine) run(ctx context.Context, userID string, sub docstore.Subscription, done chan struct{}) {
	defer close(done)
	for {
		snap, err := sub.Next()
		if err != nil {
			if !errors.Is(err, docstore.ErrSubscriptionClosed) {
				e.logger.Error("notification subscription failed",
					zap.String("user_id", userID),
					zap.Error(err),
				)
			}
			return
		}
		e.handleSnapshot(ctx, userID, snap)
	}
}

func (e *NotificationSyncEngine) handleSnapshot(ctx context.Context, userID string, snap *docstore.Snapshot) {
	if snap.FromCache {
		return
	}

	e.handling.Lock()
	defer e.handling.Unlock()

	e.mu.Lock()
	if e.userID != userID {
		e.mu.Unlock()
		return
	}
	e.last = snap
	shown := e.shown
	e.mu.Unlock()

	enabled, err := e.prefs.NotificationsEnabled(ctx, userID)
	if err != nil {
		e.logger.Warn("failed to read notification preference, delivering anyway",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		enabled = true
	}
	if !enabled {
		return
	}

	var pending []NotificationEvent
	for _, doc := range snap.Documents {
		var n Notification
		if err := doc.DataTo(&n); err != nil {
			e.logger.Warn("skipping undecodable notification",
				zap.String("notification_id", doc.ID()),
				zap.Error(err),
			)
			continue
		}
		if n.IsRead {
			continue
		}
		e.mu.Lock()
		_, seen := shown[doc.ID()]
		e.mu.Unlock()
		if seen {
			continue
		}
		pending = append(pending, NotificationEvent{ID: doc.ID(), Notification: n})
	}

	sortNewestFirst(pending)

	for _, ev := range pending {
		if e.onEvent == nil || !e.onEvent(ev) {
			continue
		}
		e.mu.Lock()
		shown[ev.ID] = struct{}{}
		e.mu.Unlock()
	}
}

// sortNewestFirst orders events by creation time, newest first. Events
// without a timestamp sort last.
func sortNewestFirst(events []NotificationEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].CreatedAt, events[j].CreatedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}

// MarkAsRead flags a notification as read. Failures are logged only.
func (e *NotificationSyncEngine) MarkAsRead(ctx context.Context, notificationID string) {
	err := e.store.Update(ctx, CollectionNotifications, notificationID, map[string]interface{}{
		"isRead": true,
	})
	if err != nil {
		e.logger.Warn("failed to mark notification read",
			zap.String("notification_id", notificationID),
			zap.Error(err),
		)
	}
}
