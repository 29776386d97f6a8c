package domain

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	ErrListingSold = errors.New("listing already sold")
	ErrOwnListing  = errors.New("cannot purchase your own listing")
)

// PurchaseIntent is what a buyer needs to continue to checkout.
type PurchaseIntent struct {
	ListingID   string `json:"listingId"`
	CheckoutURL string `json:"checkoutUrl"`
}

// PurchaseService starts purchases. Payment happens on a hosted checkout page
// and completion is not tracked.
type PurchaseService struct {
	listings      *ListingService
	notifications *NotificationService
	checkoutURL   string
	logger        *zap.Logger
}

func NewPurchaseService(listings *ListingService, notifications *NotificationService, checkoutURL string, logger *zap.Logger) *PurchaseService {
	return &PurchaseService{
		listings:      listings,
		notifications: notifications,
		checkoutURL:   checkoutURL,
		logger:        logger,
	}
}

// InitiatePurchase loads the listing, notifies the seller and returns the
// checkout link, in that order. Any failing step stops the chain.
func (s *PurchaseService) InitiatePurchase(ctx context.Context, buyerID, listingID string) (*PurchaseIntent, error) {
	listing, err := s.listings.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.IsSold {
		return nil, ErrListingSold
	}
	if listing.SellerID == buyerID {
		return nil, ErrOwnListing
	}

	if err := s.notifications.NotifyPurchaseInterest(ctx, *listing, buyerID); err != nil {
		s.logger.Error("failed to notify seller",
			zap.String("listing_id", listingID),
			zap.String("seller_id", listing.SellerID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("notify seller: %w", err)
	}

	return &PurchaseIntent{
		ListingID:   listing.ID,
		CheckoutURL: s.checkoutURL,
	}, nil
}
