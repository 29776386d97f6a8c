package domain

import (
	"errors"
	"testing"
)

func TestWishlistToggle(t *testing.T) {
	tg := NewWishlistToggle(false)

	adding, err := tg.Begin()
	if err != nil || !adding || !tg.Wishlisted() || tg.State() != TogglePending {
		t.Fatalf("begin: adding=%v err=%v state=%s", adding, err, tg.State())
	}
	if _, err := tg.Begin(); !errors.Is(err, ErrTogglePending) {
		t.Fatalf("second begin err = %v", err)
	}
	tg.Sync(false)
	if !tg.Wishlisted() {
		t.Fatal("sync overwrote a pending change")
	}

	tg.Revert()
	if tg.Wishlisted() || tg.State() != ToggleReverted {
		t.Fatalf("revert: wishlisted=%v state=%s", tg.Wishlisted(), tg.State())
	}

	if _, err := tg.Begin(); err != nil {
		t.Fatal(err)
	}
	tg.Commit()
	if !tg.Wishlisted() || tg.State() != ToggleCommitted {
		t.Fatalf("commit: wishlisted=%v state=%s", tg.Wishlisted(), tg.State())
	}
	tg.Revert()
	if !tg.Wishlisted() {
		t.Error("revert after commit changed value")
	}

	tg.Sync(false)
	if tg.Wishlisted() {
		t.Error("sync ignored while idle")
	}
}
