package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/uticket/backend/internal/docstore"
	"go.uber.org/zap/zaptest"
)

const testCheckoutURL = "https://buy.stripe.com/test_checkout"

func newPurchaseFixture(t *testing.T) (*docstore.MemoryStore, *PurchaseService) {
	store := docstore.NewMemoryStore()
	logger := zaptest.NewLogger(t)
	listings := NewListingService(store, newMemBlobs(), &recordingPublisher{}, logger)
	notifications := NewNotificationService(store, logger, 0)
	return store, NewPurchaseService(listings, notifications, testCheckoutURL, logger)
}

func TestInitiatePurchase(t *testing.T) {
	store, svc := newPurchaseFixture(t)
	seedListing(t, store, "l1", "seller", "ACL Weekend One", false)

	intent, err := svc.InitiatePurchase(context.Background(), "buyer", "l1")
	if err != nil {
		t.Fatal(err)
	}
	if intent.CheckoutURL != testCheckoutURL || intent.ListingID != "l1" {
		t.Errorf("intent = %+v", intent)
	}
	if got := notificationsFor(t, store, "seller"); len(got) != 1 || got[0].Type != NotificationPurchaseInterest {
		t.Errorf("seller notifications = %+v", got)
	}
}

func TestInitiatePurchase_Rejections(t *testing.T) {
	store, svc := newPurchaseFixture(t)
	seedListing(t, store, "sold", "seller", "A", true)
	seedListing(t, store, "mine", "buyer", "B", false)

	tests := []struct {
		listing string
		want    error
	}{
		{"missing", ErrListingNotFound},
		{"sold", ErrListingSold},
		{"mine", ErrOwnListing},
	}
	for _, tt := range tests {
		if _, err := svc.InitiatePurchase(context.Background(), "buyer", tt.listing); !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.listing, err, tt.want)
		}
	}
	if store.Count(CollectionNotifications) != 0 {
		t.Error("rejected purchase notified seller")
	}
}

func TestInitiatePurchase_SellerOptedOut(t *testing.T) {
	store, svc := newPurchaseFixture(t)
	seedListing(t, store, "l1", "seller", "A", false)
	seedUsers(t, store, map[string]interface{}{"seller": false})

	intent, err := svc.InitiatePurchase(context.Background(), "buyer", "l1")
	if err != nil || intent == nil {
		t.Fatalf("intent = %v, %v", intent, err)
	}
	if store.Count(CollectionNotifications) != 0 {
		t.Error("opted-out seller notified")
	}
}

func TestInitiatePurchase_PreferenceFailureStopsChain(t *testing.T) {
	store, svc := newPurchaseFixture(t)
	seedListing(t, store, "l1", "seller", "A", false)
	store.SetFault(func(op docstore.Op, collection, id string) error {
		if op == docstore.OpGet && collection == CollectionUsers {
			return errors.New("offline")
		}
		return nil
	})

	if intent, err := svc.InitiatePurchase(context.Background(), "buyer", "l1"); err == nil {
		t.Fatalf("intent = %+v, want error", intent)
	}
}
