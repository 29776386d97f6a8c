package docstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_SetGetUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })

	if err := s.Set(ctx, "users", "u1", map[string]interface{}{"fullName": "Ann", "createdAt": ServerTimestamp}, false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	doc, err := s.Get(ctx, "users", "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := doc.Data()["createdAt"]; got != fixed {
		t.Errorf("createdAt = %v, want %v", got, fixed)
	}

	if err := s.Set(ctx, "users", "u1", map[string]interface{}{"phone": "555"}, true); err != nil {
		t.Fatalf("merge Set: %v", err)
	}
	doc, _ = s.Get(ctx, "users", "u1")
	if doc.Data()["fullName"] != "Ann" || doc.Data()["phone"] != "555" {
		t.Errorf("merge lost fields: %v", doc.Data())
	}

	if err := s.Update(ctx, "users", "u1", map[string]interface{}{"phone": Delete}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	doc, _ = s.Get(ctx, "users", "u1")
	if _, ok := doc.Data()["phone"]; ok {
		t.Errorf("phone not deleted: %v", doc.Data())
	}

	if err := s.Update(ctx, "users", "missing", map[string]interface{}{"a": 1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update missing = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, "users", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_QueryPreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, id := range []string{"c", "a", "b"} {
		owner := "u1"
		if id == "a" {
			owner = "u2"
		}
		if err := s.Set(ctx, "wishlists", id, map[string]interface{}{"userId": owner}, false); err != nil {
			t.Fatal(err)
		}
	}

	docs, err := s.Query(ctx, "wishlists", Where("userId", "u1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[0].ID() != "c" || docs[1].ID() != "b" {
		t.Errorf("unexpected query result: %v", ids(docs))
	}

	all, _ := s.Query(ctx, "wishlists")
	if len(all) != 3 {
		t.Errorf("full scan returned %d docs, want 3", len(all))
	}
}

func TestMemoryStore_AddAssignsIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id1, err := s.Add(ctx, "notifications", map[string]interface{}{"x": 1})
	if err != nil {
		t.Fatal(err)
	}
	id2, _ := s.Add(ctx, "notifications", map[string]interface{}{"x": 2})
	if id1 == "" || id1 == id2 || len(id1) != 20 {
		t.Errorf("bad ids %q %q", id1, id2)
	}
	if s.Count("notifications") != 2 {
		t.Errorf("Count = %d, want 2", s.Count("notifications"))
	}
}

func TestMemoryStore_Fault(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	boom := errors.New("boom")
	s.SetFault(func(op Op, collection, id string) error {
		if op == OpSet {
			return boom
		}
		return nil
	})
	if err := s.Set(ctx, "c", "1", map[string]interface{}{}, false); !errors.Is(err, boom) {
		t.Errorf("Set = %v, want boom", err)
	}
	if s.Count("c") != 0 {
		t.Error("faulted write touched state")
	}
	s.SetFault(nil)
	if err := s.Set(ctx, "c", "1", map[string]interface{}{}, false); err != nil {
		t.Errorf("Set after clearing fault: %v", err)
	}
}

func TestMemoryStore_BatchLimit(t *testing.T) {
	s := NewMemoryStore()
	b := s.Batch()
	for i := 0; i <= MaxBatchSize; i++ {
		b.Set("n", s.NewID("n"), map[string]interface{}{"i": i})
	}
	if err := b.Commit(context.Background()); !errors.Is(err, ErrBatchTooLarge) {
		t.Errorf("Commit = %v, want ErrBatchTooLarge", err)
	}
	if s.Count("n") != 0 {
		t.Error("oversized batch wrote documents")
	}
}

func TestMemoryStore_SubscribeDeliversFullState(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Set(ctx, "notifications", "n1", map[string]interface{}{"userId": "u1"}, false)

	sub, err := s.Subscribe(ctx, "notifications", Where("userId", "u1"))
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Stop()

	snap, err := sub.Next()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Documents) != 1 {
		t.Fatalf("initial snapshot has %d docs, want 1", len(snap.Documents))
	}

	_ = s.Set(ctx, "notifications", "n2", map[string]interface{}{"userId": "u2"}, false)
	_ = s.Set(ctx, "notifications", "n3", map[string]interface{}{"userId": "u1"}, false)

	// The two writes coalesce into one pending snapshot.
	snap, err = sub.Next()
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(snap.Documents); len(got) != 2 || got[0] != "n1" || got[1] != "n3" {
		t.Errorf("snapshot ids = %v, want [n1 n3]", got)
	}

	s.Redeliver("notifications", true)
	snap, _ = sub.Next()
	if !snap.FromCache {
		t.Error("redelivery not flagged as cached")
	}
}

func TestMemoryStore_CacheRedeliveryKeepsPendingServerSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sub, err := s.Subscribe(ctx, "notifications")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Stop()
	if _, err := sub.Next(); err != nil {
		t.Fatal(err)
	}

	_ = s.Set(ctx, "notifications", "n1", map[string]interface{}{"userId": "u1"}, false)
	s.Redeliver("notifications", true)
	snap, err := sub.Next()
	if err != nil {
		t.Fatal(err)
	}
	if snap.FromCache || len(snap.Documents) != 1 {
		t.Errorf("got FromCache=%v with %d docs, want the server snapshot", snap.FromCache, len(snap.Documents))
	}

	s.Redeliver("notifications", true)
	s.Redeliver("notifications", false)
	if snap, _ = sub.Next(); snap.FromCache {
		t.Error("server redelivery replaced by nothing newer")
	}
}

func TestMemoryStore_SubscriptionStop(t *testing.T) {
	s := NewMemoryStore()
	sub, _ := s.Subscribe(context.Background(), "notifications")
	if _, err := sub.Next(); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := sub.Next()
		done <- err
	}()
	sub.Stop()
	sub.Stop()

	select {
	case err := <-done:
		if !errors.Is(err, ErrSubscriptionClosed) {
			t.Errorf("Next after Stop = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Stop")
	}
}

func TestMapDocument_DataTo(t *testing.T) {
	var out struct {
		Name   string `json:"eventName"`
		IsSold bool   `json:"isSold"`
	}
	doc := NewDocument("x", map[string]interface{}{"eventName": "Game", "isSold": true})
	if err := doc.DataTo(&out); err != nil {
		t.Fatal(err)
	}
	if out.Name != "Game" || !out.IsSold {
		t.Errorf("decoded %+v", out)
	}

	bad := NewDocument("y", map[string]interface{}{"isSold": "nope"})
	if err := bad.DataTo(&out); err == nil {
		t.Error("expected decode error for mistyped field")
	}
}

func ids(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID()
	}
	return out
}
