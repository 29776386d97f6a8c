package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/uticket/backend/internal/docstore"
	"go.uber.org/zap"
)

var (
	ErrNotWishlisted = errors.New("listing is not in wishlist")
)

// WishlistEntry is a user's bookmark of a listing.
type WishlistEntry struct {
	UserID    string     `json:"userId" firestore:"userId"`
	ListingID string     `json:"listingId" firestore:"listingId"`
	CreatedAt *time.Time `json:"createdAt,omitempty" firestore:"createdAt"`
}

// WishlistService keeps a session's wishlisted listing IDs in step with the
// store.
type WishlistService struct {
	store         docstore.Store
	logger        *zap.Logger
	compositeKeys bool

	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewWishlistService creates a wishlist service. With compositeKeys set,
// entries are written under "{userID}_{listingID}" so repeated adds overwrite
// instead of duplicating.
func NewWishlistService(store docstore.Store, logger *zap.Logger, compositeKeys bool) *WishlistService {
	return &WishlistService{
		store:         store,
		logger:        logger,
		compositeKeys: compositeKeys,
		ids:           make(map[string]struct{}),
	}
}

func (s *WishlistService) IsWishlisted(listingID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[listingID]
	return ok
}

// IDs returns the cached listing IDs in sorted order.
func (s *WishlistService) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Refresh replaces the cached set with the user's entries in the store.
func (s *WishlistService) Refresh(ctx context.Context, userID string) error {
	docs, err := s.store.Query(ctx, CollectionWishlists, docstore.Where("userId", userID))
	if err != nil {
		s.logger.Error("failed to fetch wishlist", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("fetch wishlist: %w", err)
	}

	ids := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		var entry WishlistEntry
		if err := doc.DataTo(&entry); err != nil {
			s.logger.Warn("skipping undecodable wishlist entry", zap.String("entry_id", doc.ID()), zap.Error(err))
			continue
		}
		if entry.ListingID != "" {
			ids[entry.ListingID] = struct{}{}
		}
	}

	s.mu.Lock()
	s.ids = ids
	s.mu.Unlock()
	return nil
}

// Add writes a wishlist entry. The cache only changes once the write succeeds.
func (s *WishlistService) Add(ctx context.Context, userID, listingID string) error {
	data := map[string]interface{}{
		"userId":    userID,
		"listingId": listingID,
		"createdAt": docstore.ServerTimestamp,
	}

	var err error
	if s.compositeKeys {
		err = s.store.Set(ctx, CollectionWishlists, userID+"_"+listingID, data, false)
	} else {
		_, err = s.store.Add(ctx, CollectionWishlists, data)
	}
	if err != nil {
		s.logger.Error("failed to add wishlist entry",
			zap.String("user_id", userID),
			zap.String("listing_id", listingID),
			zap.Error(err),
		)
		return fmt.Errorf("add wishlist entry: %w", err)
	}

	s.mu.Lock()
	s.ids[listingID] = struct{}{}
	s.mu.Unlock()
	return nil
}

// Remove deletes every entry the user holds for listingID. The store does not
// enforce one entry per pair, so all of the user's entries are read and
// filtered here. If any delete fails the cache is left alone and the caller
// should Refresh.
func (s *WishlistService) Remove(ctx context.Context, userID, listingID string) error {
	docs, err := s.store.Query(ctx, CollectionWishlists, docstore.Where("userId", userID))
	if err != nil {
		s.logger.Error("failed to fetch wishlist for removal", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("fetch wishlist: %w", err)
	}

	var matches []string
	for _, doc := range docs {
		var entry WishlistEntry
		if err := doc.DataTo(&entry); err != nil {
			s.logger.Warn("skipping undecodable wishlist entry", zap.String("entry_id", doc.ID()), zap.Error(err))
			continue
		}
		if entry.ListingID == listingID {
			matches = append(matches, doc.ID())
		}
	}
	if len(matches) == 0 {
		return ErrNotWishlisted
	}

	var errs []error
	for _, id := range matches {
		if err := s.store.Delete(ctx, CollectionWishlists, id); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
		}
	}
	if len(errs) > 0 {
		s.logger.Error("failed to remove wishlist entries",
			zap.String("user_id", userID),
			zap.String("listing_id", listingID),
			zap.Int("matched", len(matches)),
			zap.Int("failed", len(errs)),
		)
		return fmt.Errorf("remove wishlist entry: %w", errors.Join(errs...))
	}

	s.mu.Lock()
	delete(s.ids, listingID)
	s.mu.Unlock()
	return nil
}

// Reset clears the cache.
func (s *WishlistService) Reset() {
	s.mu.Lock()
	s.ids = make(map[string]struct{})
	s.mu.Unlock()
}
