package domain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/uticket/backend/internal/docstore"
	"go.uber.org/zap/zaptest"
)

type deliveryLog struct {
	mu   sync.Mutex
	seen []string
}

func (d *deliveryLog) deliver(sessionID, userID string, ev NotificationEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = append(d.seen, sessionID+"/"+userID+"/"+ev.ID)
	return true
}

func (d *deliveryLog) snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.seen...)
}

func newTestManager(t *testing.T) (*docstore.MemoryStore, *SessionManager, *deliveryLog) {
	store := docstore.NewMemoryStore()
	logger := zaptest.NewLogger(t)
	log := &deliveryLog{}
	m := NewSessionManager(store, NewNotificationService(store, logger, 0), log.deliver, false, logger)
	t.Cleanup(m.Shutdown)
	return store, m, log
}

func TestSessionManager_OpenDeliversAndWarmsWishlist(t *testing.T) {
	ctx := context.Background()
	store, m, log := newTestManager(t)
	if _, err := store.Add(ctx, CollectionWishlists, map[string]interface{}{"userId": "u1", "listingId": "l1"}); err != nil {
		t.Fatal(err)
	}
	seedNotification(t, store, "n1", "u1", false, at(1))

	sess, err := m.Open(ctx, "s1", "u1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if !sess.Wishlist.IsWishlisted("l1") {
		t.Error("wishlist not warmed")
	}
	eventually(t, func() bool { return len(log.snapshot()) == 1 })
	if got := log.snapshot()[0]; got != "s1/u1/n1" {
		t.Errorf("delivered %q", got)
	}

	same, err := m.Ensure(ctx, "s1", "u1", time.Now().Add(time.Hour))
	if err != nil || same != sess {
		t.Error("ensure replaced a live session")
	}

	if !sess.Acknowledge(ctx, "n1") {
		t.Fatal("shown notification not acknowledged")
	}
	if sess.Acknowledge(ctx, "never-shown") {
		t.Error("acknowledged a notification the session never showed")
	}
	doc, _ := store.Get(ctx, CollectionNotifications, "n1")
	if doc.Data()["isRead"] != true {
		t.Error("acknowledge did not mark read")
	}
}

func TestUserSession_ToggleWishlist(t *testing.T) {
	ctx := context.Background()
	store, m, _ := newTestManager(t)
	sess, err := m.Open(ctx, "s1", "u1", time.Time{})
	if err != nil {
		t.Fatal(err)
	}

	on, err := sess.ToggleWishlist(ctx, "l1")
	if err != nil || !on || store.Count(CollectionWishlists) != 1 {
		t.Fatalf("add: on=%v err=%v count=%d", on, err, store.Count(CollectionWishlists))
	}
	on, err = sess.ToggleWishlist(ctx, "l1")
	if err != nil || on || store.Count(CollectionWishlists) != 0 {
		t.Fatalf("remove: on=%v err=%v count=%d", on, err, store.Count(CollectionWishlists))
	}

	store.SetFault(func(op docstore.Op, collection, id string) error {
		if op == docstore.OpAdd {
			return errors.New("offline")
		}
		return nil
	})
	on, err = sess.ToggleWishlist(ctx, "l1")
	if err == nil || on {
		t.Fatalf("failed add: on=%v err=%v", on, err)
	}
	if st := sess.Toggle("l1").State(); st != ToggleReverted {
		t.Errorf("state = %s", st)
	}
}

func TestSessionManager_Closing(t *testing.T) {
	ctx := context.Background()
	_, m, _ := newTestManager(t)
	now := time.Now()

	for _, s := range []struct {
		id, user string
		exp      time.Time
	}{
		{"a", "u1", now.Add(-time.Minute)},
		{"b", "u1", now.Add(time.Hour)},
		{"c", "u2", now.Add(time.Hour)},
		{"d", "u3", time.Time{}},
	} {
		if _, err := m.Open(ctx, s.id, s.user, s.exp); err != nil {
			t.Fatal(err)
		}
	}

	if n := m.CloseExpired(now); n != 1 {
		t.Errorf("expired closed = %d", n)
	}
	if n := m.CloseUser("u1"); n != 1 {
		t.Errorf("user closed = %d", n)
	}
	sess, _ := m.Get("c")
	m.Close("c")
	if sess.Engine.Listening() {
		t.Error("closed session still listening")
	}
	if m.Count() != 1 {
		t.Errorf("count = %d, want 1", m.Count())
	}
	m.Shutdown()
	if m.Count() != 0 {
		t.Error("shutdown left sessions")
	}
}

func TestSessionManager_ConcurrentEnsureOpensOnce(t *testing.T) {
	ctx := context.Background()
	store, m, log := newTestManager(t)
	seedNotification(t, store, "n1", "u1", false, at(1))

	got := make([]*UserSession, 8)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			sess, err := m.Ensure(ctx, "s1", "u1", time.Time{})
			if err != nil {
				t.Error(err)
				return
			}
			got[i] = sess
		}(i)
	}
	close(start)
	wg.Wait()

	for _, sess := range got[1:] {
		if sess != got[0] {
			t.Fatal("concurrent Ensure opened more than one session")
		}
	}
	eventually(t, func() bool { return len(log.snapshot()) > 0 })
	time.Sleep(50 * time.Millisecond)
	if seen := log.snapshot(); len(seen) != 1 {
		t.Errorf("deliveries = %v, want exactly one", seen)
	}
}
