package domain

import (
	"context"
	"time"

	"github.com/uticket/backend/internal/docstore"
)

type NotificationType string

const (
	NotificationNewListing       NotificationType = "new_listing"
	NotificationPurchaseInterest NotificationType = "purchase_interest"
)

// Notification is a server-created message addressed to one user.
type Notification struct {
	UserID    string           `json:"userId" firestore:"userId"`
	Type      NotificationType `json:"type" firestore:"type"`
	Title     string           `json:"title" firestore:"title"`
	Message   string           `json:"message" firestore:"message"`
	ListingID string           `json:"listingId" firestore:"listingId"`
	BuyerID   *string          `json:"buyerId,omitempty" firestore:"buyerId"`
	IsRead    bool             `json:"isRead" firestore:"isRead"`
	CreatedAt *time.Time       `json:"createdAt,omitempty" firestore:"createdAt"`
}

// NotificationEvent is emitted once per unread notification per session.
type NotificationEvent struct {
	ID string `json:"id"`
	Notification
}

// PreferenceReader reports whether a user wants notifications.
type PreferenceReader interface {
	NotificationsEnabled(ctx context.Context, userID string) (bool, error)
}

func notificationData(n Notification) map[string]interface{} {
	data := map[string]interface{}{
		"userId":    n.UserID,
		"type":      string(n.Type),
		"title":     n.Title,
		"message":   n.Message,
		"listingId": n.ListingID,
		"isRead":    false,
		"createdAt": docstore.ServerTimestamp,
	}
	if n.BuyerID != nil {
		data["buyerId"] = *n.BuyerID
	}
	return data
}
