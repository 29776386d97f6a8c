package domain

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/uticket/backend/internal/docstore"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type engineHarness struct {
	store  *docstore.MemoryStore
	prefs  *countingPrefs
	events chan NotificationEvent
	engine *NotificationSyncEngine
}

func newEngineHarness(t *testing.T, logger *zap.Logger) *engineHarness {
	h := &engineHarness{
		store:  docstore.NewMemoryStore(),
		prefs:  newCountingPrefs(true),
		events: make(chan NotificationEvent, 64),
	}
	if logger == nil {
		logger = zaptest.NewLogger(t)
	}
	h.engine = NewNotificationSyncEngine(h.store, h.prefs, logger, func(ev NotificationEvent) bool {
		h.events <- ev
		return true
	})
	t.Cleanup(h.engine.StopListening)
	return h
}

func (h *engineHarness) recv(t *testing.T, n int) []NotificationEvent {
	t.Helper()
	out := make([]NotificationEvent, 0, n)
	for len(out) < n {
		select {
		case ev := <-h.events:
			out = append(out, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d events, want %d", len(out), n)
		}
	}
	return out
}

func (h *engineHarness) expectEmpty(t *testing.T) {
	t.Helper()
	select {
	case ev := <-h.events:
		t.Fatalf("unexpected event %s", ev.ID)
	default:
	}
}

func TestEngine_EmitsUnreadNewestFirst(t *testing.T) {
	h := newEngineHarness(t, nil)
	seedNotification(t, h.store, "n1", "u1", false, at(1))
	seedNotification(t, h.store, "n2", "u1", false, at(3))
	seedNotification(t, h.store, "n3", "u1", true, at(5))
	seedNotification(t, h.store, "n4", "u1", false, nil)
	seedNotification(t, h.store, "n5", "u2", false, at(9))

	if err := h.engine.StartListening("u1"); err != nil {
		t.Fatal(err)
	}
	got := eventIDs(h.recv(t, 3))
	if want := []string{"n2", "n1", "n4"}; !equalStrings(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	if h.engine.ShownCount() != 3 || !h.engine.WasShown("n1") || h.engine.WasShown("n3") {
		t.Errorf("shown bookkeeping wrong: count=%d", h.engine.ShownCount())
	}
}

func TestEngine_RedeliveryDoesNotRepeat(t *testing.T) {
	h := newEngineHarness(t, nil)
	seedNotification(t, h.store, "n1", "u1", false, at(1))

	if err := h.engine.StartListening("u1"); err != nil {
		t.Fatal(err)
	}
	h.recv(t, 1)

	h.store.Redeliver(CollectionNotifications, false)
	h.store.Redeliver(CollectionNotifications, true)
	seedNotification(t, h.store, "n2", "u1", false, at(2))

	got := eventIDs(h.recv(t, 1))
	if got[0] != "n2" {
		t.Fatalf("after redelivery got %v, want only n2", got)
	}
	h.expectEmpty(t)
}

func TestEngine_TwoUnreadThenOneRead(t *testing.T) {
	h := newEngineHarness(t, nil)
	seedNotification(t, h.store, "older", "u1", false, at(10))
	seedNotification(t, h.store, "newer", "u1", false, at(20))

	if err := h.engine.StartListening("u1"); err != nil {
		t.Fatal(err)
	}
	got := eventIDs(h.recv(t, 2))
	if !equalStrings(got, []string{"newer", "older"}) {
		t.Fatalf("got %v", got)
	}

	h.engine.MarkAsRead(context.Background(), "newer")
	doc, err := h.store.Get(context.Background(), CollectionNotifications, "newer")
	if err != nil || doc.Data()["isRead"] != true {
		t.Fatalf("isRead not persisted: %v %v", doc, err)
	}

	// A fresh listener still emits only what is unread.
	if err := h.engine.StartListening("u1"); err != nil {
		t.Fatal(err)
	}
	got = eventIDs(h.recv(t, 1))
	if got[0] != "older" {
		t.Errorf("after restart got %v, want [older]", got)
	}
}

func TestEngine_DisabledPreferenceDefersDelivery(t *testing.T) {
	h := newEngineHarness(t, nil)
	h.prefs.set(false, nil)
	seedNotification(t, h.store, "n1", "u1", false, at(1))

	if err := h.engine.StartListening("u1"); err != nil {
		t.Fatal(err)
	}
	waitCalls(t, h.prefs.calls, 1)
	h.expectEmpty(t)
	if h.engine.ShownCount() != 0 {
		t.Fatal("suppressed notification was marked shown")
	}

	h.prefs.set(true, nil)
	h.store.Redeliver(CollectionNotifications, false)
	if got := eventIDs(h.recv(t, 1)); got[0] != "n1" {
		t.Errorf("got %v", got)
	}
}

func TestEngine_PreferenceErrorFailsOpen(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := newEngineHarness(t, zap.New(core))
	h.prefs.set(false, errors.New("unavailable"))
	seedNotification(t, h.store, "n1", "u1", false, at(1))

	if err := h.engine.StartListening("u1"); err != nil {
		t.Fatal(err)
	}
	h.recv(t, 1)
	if logs.FilterMessage("failed to read notification preference, delivering anyway").Len() == 0 {
		t.Error("preference failure not logged")
	}
}

func TestEngine_SkipsUndecodable(t *testing.T) {
	h := newEngineHarness(t, nil)
	err := h.store.Set(context.Background(), CollectionNotifications, "bad", map[string]interface{}{
		"userId": "u1",
		"isRead": "not-a-bool",
	}, false)
	if err != nil {
		t.Fatal(err)
	}
	seedNotification(t, h.store, "good", "u1", false, at(1))

	if err := h.engine.StartListening("u1"); err != nil {
		t.Fatal(err)
	}
	if got := eventIDs(h.recv(t, 1)); got[0] != "good" {
		t.Errorf("got %v", got)
	}
	h.expectEmpty(t)
}

func TestEngine_CacheSnapshotsIgnored(t *testing.T) {
	h := newEngineHarness(t, nil)
	h.prefs.set(false, nil)
	seedNotification(t, h.store, "n1", "u1", false, at(1))
	if err := h.engine.StartListening("u1"); err != nil {
		t.Fatal(err)
	}
	waitCalls(t, h.prefs.calls, 1)

	h.prefs.set(true, nil)
	h.store.Redeliver(CollectionNotifications, true)
	time.Sleep(50 * time.Millisecond)
	h.expectEmpty(t)
	if len(h.prefs.calls) != 0 {
		t.Fatal("cache snapshot was processed")
	}

	h.store.Redeliver(CollectionNotifications, false)
	if got := eventIDs(h.recv(t, 1)); got[0] != "n1" {
		t.Errorf("got %v", got)
	}
}

func TestEngine_StopAndRestart(t *testing.T) {
	h := newEngineHarness(t, nil)
	h.engine.StopListening()
	if h.engine.Listening() {
		t.Fatal("idle engine reports listening")
	}

	seedNotification(t, h.store, "n1", "u1", false, at(1))
	if err := h.engine.StartListening("u1"); err != nil {
		t.Fatal(err)
	}
	h.recv(t, 1)
	h.engine.StopListening()
	if h.engine.Listening() {
		t.Fatal("still listening after stop")
	}

	seedNotification(t, h.store, "n2", "u1", false, at(2))
	h.expectEmpty(t)

	if err := h.engine.StartListening("u1"); err != nil {
		t.Fatal(err)
	}
	got := eventIDs(h.recv(t, 2))
	if !equalStrings(got, []string{"n2", "n1"}) {
		t.Errorf("after restart got %v", got)
	}
}

func TestEngine_MarkAsReadFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := newEngineHarness(t, zap.New(core))
	h.store.SetFault(func(op docstore.Op, collection, id string) error {
		if op == docstore.OpUpdate {
			return errors.New("offline")
		}
		return nil
	})
	h.engine.MarkAsRead(context.Background(), "missing")
	if logs.FilterMessage("failed to mark notification read").Len() != 1 {
		t.Error("failure not logged")
	}
}

func TestEngine_OnlyUnreadFires(t *testing.T) {
	h := newEngineHarness(t, nil)
	seedNotification(t, h.store, "read", "u1", true, at(5))
	seedNotification(t, h.store, "unread", "u1", false, at(1))

	if err := h.engine.StartListening("u1"); err != nil {
		t.Fatal(err)
	}
	waitCalls(t, h.prefs.calls, 1)
	got := eventIDs(h.recv(t, 1))
	if got[0] != "unread" {
		t.Fatalf("got %v", got)
	}
	h.expectEmpty(t)
}

func TestEngine_RefusedEventsStayPending(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	var accept atomic.Bool
	attempts := make(chan string, 16)
	engine := NewNotificationSyncEngine(store, newCountingPrefs(true), zaptest.NewLogger(t), func(ev NotificationEvent) bool {
		attempts <- ev.ID
		return accept.Load()
	})
	t.Cleanup(engine.StopListening)

	engine.Replay(ctx)
	seedNotification(t, store, "n1", "u1", false, at(1))
	if err := engine.StartListening("u1"); err != nil {
		t.Fatal(err)
	}
	select {
	case id := <-attempts:
		if id != "n1" {
			t.Fatalf("attempted %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery attempt")
	}
	if engine.WasShown("n1") {
		t.Fatal("refused notification recorded as shown")
	}

	accept.Store(true)
	engine.Replay(ctx)
	if id := <-attempts; id != "n1" || !engine.WasShown("n1") {
		t.Fatalf("replay attempted %s, shown=%v", id, engine.WasShown("n1"))
	}

	engine.Replay(ctx)
	select {
	case id := <-attempts:
		t.Fatalf("delivered notification emitted again: %s", id)
	default:
	}
}
