package domain

import (
	"context"
	"io"
	"strings"
	"time"
)

// Collection names in the document store.
const (
	CollectionListings      = "ticketListings"
	CollectionWishlists     = "wishlists"
	CollectionNotifications = "notifications"
	CollectionUsers         = "users"
)

// Listing is a ticket offered for sale by a seller.
type Listing struct {
	EventName   string     `json:"eventName" firestore:"eventName"`
	Price       string     `json:"price" firestore:"price"`
	EventDate   *string    `json:"eventDate,omitempty" firestore:"eventDate"`
	EventTime   string     `json:"eventTime" firestore:"eventTime"`
	SeatDetails string     `json:"seatDetails" firestore:"seatDetails"`
	ImageURL    string     `json:"imageURL" firestore:"imageURL"`
	SellerID    string     `json:"sellerID" firestore:"sellerID"`
	CreatedAt   *time.Time `json:"createdAt,omitempty" firestore:"createdAt"`
	IsSold      bool       `json:"isSold" firestore:"isSold"`
}

// ListingRecord pairs a listing with its store-assigned document ID.
type ListingRecord struct {
	ID string `json:"id"`
	Listing
}

// NormalizePrice renders a price with a leading "$".
func NormalizePrice(price string) string {
	price = strings.TrimSpace(price)
	if price == "" || strings.HasPrefix(price, "$") {
		return price
	}
	return "$" + price
}

// Matches reports whether any searchable field contains query, ignoring case.
// query must already be lower-cased.
func (l *Listing) Matches(query string) bool {
	fields := []string{l.EventName, l.SeatDetails, l.Price, l.EventTime}
	if l.EventDate != nil {
		fields = append(fields, *l.EventDate)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}

// CreateListingParams holds the seller's input for a new listing.
type CreateListingParams struct {
	SellerID    string
	EventName   string
	Price       string
	EventDate   *string
	EventTime   string
	SeatDetails string
}

// ListingCreatedEvent is published after a listing is written.
type ListingCreatedEvent struct {
	ListingID string `json:"listingId"`
	SellerID  string `json:"sellerId"`
	EventName string `json:"eventName"`
	Price     string `json:"price"`
}

// ListingEventPublisher hands listing events to the fan-out worker.
type ListingEventPublisher interface {
	PublishListingCreated(ctx context.Context, event ListingCreatedEvent) error
}

// BlobStore is the object storage used for listing and profile images.
type BlobStore interface {
	Put(ctx context.Context, path string, r io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, path string) error
}
