package domain

import (
	"errors"
	"sync"
)

var ErrTogglePending = errors.New("wishlist change already in progress")

// ToggleState is the lifecycle of one optimistic wishlist change.
type ToggleState string

const (
	ToggleIdle      ToggleState = "idle"
	TogglePending   ToggleState = "pending"
	ToggleCommitted ToggleState = "committed"
	ToggleReverted  ToggleState = "reverted"
)

// WishlistToggle tracks the displayed wishlist state of a single listing
// while a change is in flight.
type WishlistToggle struct {
	mu        sync.Mutex
	state     ToggleState
	displayed bool
	previous  bool
}

func NewWishlistToggle(wishlisted bool) *WishlistToggle {
	return &WishlistToggle{state: ToggleIdle, displayed: wishlisted}
}

// Begin flips the displayed value and enters pending. It returns the new
// displayed value, which is true when the change is an add.
func (t *WishlistToggle) Begin() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TogglePending {
		return t.displayed, ErrTogglePending
	}
	t.previous = t.displayed
	t.displayed = !t.displayed
	t.state = TogglePending
	return t.displayed, nil
}

// Commit keeps the displayed value.
func (t *WishlistToggle) Commit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TogglePending {
		return
	}
	t.state = ToggleCommitted
}

// Revert restores the value shown before Begin.
func (t *WishlistToggle) Revert() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TogglePending {
		return
	}
	t.displayed = t.previous
	t.state = ToggleReverted
}

// Sync overwrites the displayed value with known truth unless a change is
// pending.
func (t *WishlistToggle) Sync(wishlisted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TogglePending {
		return
	}
	t.displayed = wishlisted
}

func (t *WishlistToggle) Wishlisted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.displayed
}

func (t *WishlistToggle) State() ToggleState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
