package domain

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/uticket/backend/internal/docstore"
)

type memBlobs struct {
	mu      sync.Mutex
	objects map[string]string
	deleted []string
	putErr  error
	delErr  error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: make(map[string]string)}
}

func (b *memBlobs) Put(ctx context.Context, path string, r io.Reader, contentType string) (string, error) {
	if b.putErr != nil {
		return "", b.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[path] = string(data)
	return "https://blobs.test/" + path, nil
}

func (b *memBlobs) Delete(ctx context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, path)
	if b.delErr != nil {
		return b.delErr
	}
	delete(b.objects, path)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []ListingCreatedEvent
	err    error
}

func (p *recordingPublisher) PublishListingCreated(ctx context.Context, ev ListingCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

// countingPrefs answers a fixed preference and signals every lookup.
type countingPrefs struct {
	mu      sync.Mutex
	enabled bool
	err     error
	calls   chan struct{}
}

func newCountingPrefs(enabled bool) *countingPrefs {
	return &countingPrefs{enabled: enabled, calls: make(chan struct{}, 64)}
}

func (p *countingPrefs) set(enabled bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled, p.err = enabled, err
}

func (p *countingPrefs) NotificationsEnabled(ctx context.Context, userID string) (bool, error) {
	p.mu.Lock()
	enabled, err := p.enabled, p.err
	p.mu.Unlock()
	p.calls <- struct{}{}
	return enabled, err
}

func waitCalls(t *testing.T, ch <-chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for call %d of %d", i+1, n)
		}
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func at(minute int) *time.Time {
	ts := time.Date(2026, 3, 1, 12, minute, 0, 0, time.UTC)
	return &ts
}

func seedNotification(t *testing.T, store docstore.Store, id, userID string, isRead bool, createdAt *time.Time) {
	t.Helper()
	data := map[string]interface{}{
		"userId":    userID,
		"type":      string(NotificationNewListing),
		"title":     "New Ticket Available",
		"message":   id,
		"listingId": "listing-" + id,
		"isRead":    isRead,
	}
	if createdAt != nil {
		data["createdAt"] = *createdAt
	}
	if err := store.Set(context.Background(), CollectionNotifications, id, data, false); err != nil {
		t.Fatal(err)
	}
}

func seedListing(t *testing.T, store docstore.Store, id, sellerID, name string, sold bool) {
	t.Helper()
	err := store.Set(context.Background(), CollectionListings, id, map[string]interface{}{
		"eventName":   name,
		"price":       "25",
		"eventDate":   "2026-09-05",
		"eventTime":   "7:00 PM",
		"seatDetails": "Section 12, Row F",
		"imageURL":    "https://blobs.test/ticket_images/" + id + ".jpg",
		"sellerID":    sellerID,
		"isSold":      sold,
	}, false)
	if err != nil {
		t.Fatal(err)
	}
}

func eventIDs(events []NotificationEvent) []string {
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	return ids
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
