package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/uticket/backend/internal/docstore"
	"go.uber.org/zap"
)

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationService writes notifications and manages the per-user
// notification preference.
type NotificationService struct {
	store     docstore.Store
	logger    *zap.Logger
	batchSize int
}

func NewNotificationService(store docstore.Store, logger *zap.Logger, batchSize int) *NotificationService {
	if batchSize <= 0 || batchSize > docstore.MaxBatchSize {
		batchSize = docstore.MaxBatchSize
	}
	return &NotificationService{
		store:     store,
		logger:    logger,
		batchSize: batchSize,
	}
}

// NotificationsEnabled reads users/{userID}.notificationsEnabled. A missing
// user or field means enabled. On a read error it still returns true along
// with the error so callers can choose to fail open.
func (s *NotificationService) NotificationsEnabled(ctx context.Context, userID string) (bool, error) {
	doc, err := s.store.Get(ctx, CollectionUsers, userID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return true, nil
		}
		return true, fmt.Errorf("read notification preference: %w", err)
	}
	return preferenceFromData(doc.Data()), nil
}

func preferenceFromData(data map[string]interface{}) bool {
	if enabled, ok := data["notificationsEnabled"].(bool); ok {
		return enabled
	}
	return true
}

// SetNotificationsEnabled stores the preference with a merge write.
func (s *NotificationService) SetNotificationsEnabled(ctx context.Context, userID string, enabled bool) error {
	err := s.store.Set(ctx, CollectionUsers, userID, map[string]interface{}{
		"notificationsEnabled": enabled,
	}, true)
	if err != nil {
		return fmt.Errorf("save notification preference: %w", err)
	}
	return nil
}

// FanOutResult summarizes a new-listing fan-out.
type FanOutResult struct {
	Recipients   int `json:"recipients"`
	Created      int `json:"created"`
	FailedChunks int `json:"failedChunks"`
}

// FanOutNewListing notifies every user except the seller and users who
// turned notifications off. Writes are committed in independent chunks; a
// failed chunk is logged and counted and does not undo earlier chunks.
func (s *NotificationService) FanOutNewListing(ctx context.Context, event ListingCreatedEvent) (*FanOutResult, error) {
	users, err := s.store.Query(ctx, CollectionUsers)
	if err != nil {
		s.logger.Error("failed to fetch users for fan-out", zap.String("listing_id", event.ListingID), zap.Error(err))
		return nil, fmt.Errorf("fetch users: %w", err)
	}

	result := &FanOutResult{}
	batch := s.store.Batch()
	commit := func() {
		n := batch.Len()
		if n == 0 {
			return
		}
		if err := batch.Commit(ctx); err != nil {
			result.FailedChunks++
			s.logger.Error("failed to commit notification chunk",
				zap.String("listing_id", event.ListingID),
				zap.Int("size", n),
				zap.Error(err),
			)
		} else {
			result.Created += n
		}
		batch = s.store.Batch()
	}

	for _, user := range users {
		userID := user.ID()
		if userID == event.SellerID || !preferenceFromData(user.Data()) {
			continue
		}
		result.Recipients++
		batch.Set(CollectionNotifications, s.store.NewID(CollectionNotifications), notificationData(Notification{
			UserID:    userID,
			Type:      NotificationNewListing,
			Title:     "New Ticket Available",
			Message:   fmt.Sprintf("%s is now available for purchase", event.EventName),
			ListingID: event.ListingID,
		}))
		if batch.Len() >= s.batchSize {
			commit()
		}
	}
	commit()

	s.logger.Info("new listing fan-out finished",
		zap.String("listing_id", event.ListingID),
		zap.Int("recipients", result.Recipients),
		zap.Int("created", result.Created),
		zap.Int("failed_chunks", result.FailedChunks),
	)
	return result, nil
}

// NotifyPurchaseInterest tells the seller that buyerID wants the listing.
// It returns without writing when the seller disabled notifications.
func (s *NotificationService) NotifyPurchaseInterest(ctx context.Context, listing ListingRecord, buyerID string) error {
	enabled, err := s.NotificationsEnabled(ctx, listing.SellerID)
	if err != nil {
		return err
	}
	if !enabled {
		s.logger.Debug("seller has notifications disabled", zap.String("seller_id", listing.SellerID))
		return nil
	}

	buyer := buyerID
	_, err = s.store.Add(ctx, CollectionNotifications, notificationData(Notification{
		UserID:    listing.SellerID,
		Type:      NotificationPurchaseInterest,
		Title:     "Purchase Interest",
		Message:   fmt.Sprintf("Someone is interested in purchasing %s", listing.EventName),
		ListingID: listing.ID,
		BuyerID:   &buyer,
	}))
	if err != nil {
		return fmt.Errorf("create purchase interest notification: %w", err)
	}
	return nil
}

// MarkAsRead flags a notification read after checking it belongs to userID.
func (s *NotificationService) MarkAsRead(ctx context.Context, userID, notificationID string) error {
	doc, err := s.store.Get(ctx, CollectionNotifications, notificationID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrNotificationNotFound
		}
		return err
	}
	var n Notification
	if err := doc.DataTo(&n); err != nil || n.UserID != userID {
		return ErrNotificationNotFound
	}
	return s.store.Update(ctx, CollectionNotifications, notificationID, map[string]interface{}{"isRead": true})
}

// InlineFanOut runs fan-out on a goroutine in this process. It is used when
// no message broker is configured.
type InlineFanOut struct {
	notifications *NotificationService
	logger        *zap.Logger
}

func NewInlineFanOut(notifications *NotificationService, logger *zap.Logger) *InlineFanOut {
	return &InlineFanOut{notifications: notifications, logger: logger}
}

func (p *InlineFanOut) PublishListingCreated(_ context.Context, event ListingCreatedEvent) error {
	go func() {
		if _, err := p.notifications.FanOutNewListing(context.Background(), event); err != nil {
			p.logger.Error("inline fan-out failed", zap.String("listing_id", event.ListingID), zap.Error(err))
		}
	}()
	return nil
}
