package domain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/uticket/backend/internal/docstore"
	"go.uber.org/zap"
)

// ListingCatalog caches the browsable listings of one session together with
// the search-filtered view derived from them.
type ListingCatalog struct {
	store  docstore.Store
	logger *zap.Logger

	mu          sync.RWMutex
	listings    []ListingRecord
	filtered    []ListingRecord
	query       string
	searching   bool
	lastSkipped int
}

func NewListingCatalog(store docstore.Store, logger *zap.Logger) *ListingCatalog {
	return &ListingCatalog{
		store:  store,
		logger: logger,
	}
}

// Refresh reloads every listing. Documents that fail to decode are skipped.
// On a store error the previous contents are kept and the error returned.
// An active filter is reapplied to the new list.
func (c *ListingCatalog) Refresh(ctx context.Context) ([]ListingRecord, error) {
	docs, err := c.store.Query(ctx, CollectionListings)
	if err != nil {
		c.logger.Error("failed to fetch listings", zap.Error(err))
		return nil, fmt.Errorf("fetch listings: %w", err)
	}

	records := make([]ListingRecord, 0, len(docs))
	skipped := 0
	for _, doc := range docs {
		var l Listing
		if err := doc.DataTo(&l); err != nil {
			skipped++
			c.logger.Warn("skipping undecodable listing",
				zap.String("listing_id", doc.ID()),
				zap.Error(err),
			)
			continue
		}
		l.Price = NormalizePrice(l.Price)
		records = append(records, ListingRecord{ID: doc.ID(), Listing: l})
	}
	if skipped > 0 {
		c.logger.Warn("listing decode errors",
			zap.Int("skipped", skipped),
			zap.Int("decoded", len(records)),
		)
	}

	c.mu.Lock()
	c.listings = records
	c.lastSkipped = skipped
	if c.searching {
		c.filtered = filterRecords(records, c.query)
	}
	c.mu.Unlock()

	return copyRecords(records), nil
}

// Filter narrows the visible listings to those matching query. A blank query
// clears the filter and returns the full list.
func (c *ListingCatalog) Filter(query string) []ListingRecord {
	q := strings.ToLower(strings.TrimSpace(query))

	c.mu.Lock()
	defer c.mu.Unlock()
	if q == "" {
		c.searching = false
		c.query = ""
		c.filtered = nil
		return copyRecords(c.listings)
	}
	c.searching = true
	c.query = q
	c.filtered = filterRecords(c.listings, q)
	return copyRecords(c.filtered)
}

// ClearFilter turns search off and returns the full list.
func (c *ListingCatalog) ClearFilter() []ListingRecord {
	return c.Filter("")
}

// Listings returns the full list from the last refresh.
func (c *ListingCatalog) Listings() []ListingRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyRecords(c.listings)
}

// Visible returns the filtered view while searching, the full list otherwise.
func (c *ListingCatalog) Visible() []ListingRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.searching {
		return copyRecords(c.filtered)
	}
	return copyRecords(c.listings)
}

// Loaded reports whether a refresh has succeeded since creation or Reset.
func (c *ListingCatalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.listings != nil
}

func (c *ListingCatalog) Searching() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.searching
}

// LastRefreshSkipped is the number of documents the last refresh could not decode.
func (c *ListingCatalog) LastRefreshSkipped() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSkipped
}

// Reset drops the cached listings and search state.
func (c *ListingCatalog) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings = nil
	c.filtered = nil
	c.query = ""
	c.searching = false
	c.lastSkipped = 0
}

func filterRecords(records []ListingRecord, q string) []ListingRecord {
	out := make([]ListingRecord, 0, len(records))
	for _, r := range records {
		if r.Matches(q) {
			out = append(out, r)
		}
	}
	return out
}

func copyRecords(records []ListingRecord) []ListingRecord {
	out := make([]ListingRecord, len(records))
	copy(out, records)
	return out
}
