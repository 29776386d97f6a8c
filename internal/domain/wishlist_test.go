package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/uticket/backend/internal/docstore"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestWishlist_AddRefreshRemove(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	w := NewWishlistService(store, zaptest.NewLogger(t), false)

	if err := w.Add(ctx, "u1", "l1"); err != nil {
		t.Fatal(err)
	}
	if err := w.Add(ctx, "u2", "l2"); err != nil {
		t.Fatal(err)
	}
	if !w.IsWishlisted("l1") {
		t.Fatal("add did not update cache")
	}

	fresh := NewWishlistService(store, zaptest.NewLogger(t), false)
	if err := fresh.Refresh(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if got := fresh.IDs(); !equalStrings(got, []string{"l1"}) {
		t.Fatalf("refresh = %v, want [l1]", got)
	}

	if err := fresh.Remove(ctx, "u1", "l1"); err != nil {
		t.Fatal(err)
	}
	if fresh.IsWishlisted("l1") {
		t.Error("remove left cache entry")
	}
	if store.Count(CollectionWishlists) != 1 {
		t.Errorf("entries left = %d, want only u2's", store.Count(CollectionWishlists))
	}
}

func TestWishlist_RemoveDeletesDuplicates(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	w := NewWishlistService(store, zaptest.NewLogger(t), false)

	for i := 0; i < 2; i++ {
		if err := w.Add(ctx, "u1", "l1"); err != nil {
			t.Fatal(err)
		}
	}
	if store.Count(CollectionWishlists) != 2 {
		t.Fatalf("want duplicate entries, got %d", store.Count(CollectionWishlists))
	}
	if err := w.Remove(ctx, "u1", "l1"); err != nil {
		t.Fatal(err)
	}
	if store.Count(CollectionWishlists) != 0 {
		t.Errorf("entries left = %d", store.Count(CollectionWishlists))
	}
}

func TestWishlist_RemoveUnknownListing(t *testing.T) {
	ctx := context.Background()
	w := NewWishlistService(docstore.NewMemoryStore(), zaptest.NewLogger(t), false)
	if err := w.Add(ctx, "u1", "l1"); err != nil {
		t.Fatal(err)
	}

	if err := w.Remove(ctx, "u1", "never"); !errors.Is(err, ErrNotWishlisted) {
		t.Fatalf("err = %v, want ErrNotWishlisted", err)
	}
	if got := w.IDs(); !equalStrings(got, []string{"l1"}) {
		t.Errorf("cache changed: %v", got)
	}
}

func TestWishlist_FailedWritesKeepCache(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	w := NewWishlistService(store, zaptest.NewLogger(t), false)
	if err := w.Add(ctx, "u1", "l1"); err != nil {
		t.Fatal(err)
	}

	store.SetFault(func(op docstore.Op, collection, id string) error {
		if op == docstore.OpAdd || op == docstore.OpDelete {
			return errors.New("offline")
		}
		return nil
	})

	if err := w.Add(ctx, "u1", "l2"); err == nil {
		t.Fatal("expected add error")
	}
	if w.IsWishlisted("l2") {
		t.Error("failed add reached cache")
	}
	if err := w.Remove(ctx, "u1", "l1"); err == nil {
		t.Fatal("expected remove error")
	}
	if !w.IsWishlisted("l1") {
		t.Error("failed remove dropped cache entry")
	}
}

func TestWishlist_RefreshErrorKeepsCache(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	w := NewWishlistService(store, zaptest.NewLogger(t), false)
	if err := w.Add(ctx, "u1", "l1"); err != nil {
		t.Fatal(err)
	}
	store.SetFault(func(op docstore.Op, collection, id string) error {
		if op == docstore.OpQuery {
			return errors.New("offline")
		}
		return nil
	})
	if err := w.Refresh(ctx, "u1"); err == nil {
		t.Fatal("expected refresh error")
	}
	if !w.IsWishlisted("l1") {
		t.Error("cache dropped on failed refresh")
	}
}

func TestWishlist_CompositeKeys(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	w := NewWishlistService(store, zaptest.NewLogger(t), true)

	for i := 0; i < 3; i++ {
		if err := w.Add(ctx, "u1", "l1"); err != nil {
			t.Fatal(err)
		}
	}
	if store.Count(CollectionWishlists) != 1 {
		t.Fatalf("entries = %d, want 1", store.Count(CollectionWishlists))
	}
	if _, err := store.Get(ctx, CollectionWishlists, "u1_l1"); err != nil {
		t.Errorf("composite entry missing: %v", err)
	}

	w.Reset()
	if len(w.IDs()) != 0 {
		t.Error("reset kept entries")
	}
}

func TestWishlist_RemoveLogsUndecodableEntries(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	if err := store.Set(ctx, CollectionWishlists, "bad", map[string]interface{}{"userId": "u1", "listingId": 42}, false); err != nil {
		t.Fatal(err)
	}
	core, logs := observer.New(zap.WarnLevel)
	w := NewWishlistService(store, zap.New(core), false)
	if err := w.Add(ctx, "u1", "l1"); err != nil {
		t.Fatal(err)
	}

	if err := w.Remove(ctx, "u1", "l1"); err != nil {
		t.Fatal(err)
	}
	entries := logs.FilterMessage("skipping undecodable wishlist entry").All()
	if len(entries) != 1 || entries[0].ContextMap()["entry_id"] != "bad" {
		t.Errorf("warn entries = %+v", entries)
	}
	if store.Count(CollectionWishlists) != 1 {
		t.Errorf("undecodable entry was deleted")
	}
}
