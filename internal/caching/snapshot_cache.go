package caching

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"popdesk/internal/models"
	"popdesk/internal/sheets"
)

// SnapshotCache is the in-process TTL read cache over remote tab reads. The
// TTL is long (hours by default): staleness is an accepted trade against
// backend quota. A write to a tab must Invalidate its entry so the next
// read observes the new data.
//
// There is no negative caching. A failed fetch propagates to the caller and
// leaves any previously cached snapshot in place untouched; it will be
// served again once a later fetch succeeds or its entry is still fresh.
type SnapshotCache struct {
	store sheets.Store
	ttl   time.Duration
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]snapshotEntry
}

type snapshotEntry struct {
	snap      *models.Snapshot
	fetchedAt time.Time
}

// NewSnapshotCache builds a cache over store with the given freshness
// window.
func NewSnapshotCache(store sheets.Store, ttl time.Duration, clock clockwork.Clock) *SnapshotCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SnapshotCache{
		store:   store,
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]snapshotEntry),
	}
}

func cacheKey(sheetID, tab string) string {
	return sheetID + "!" + tab
}

// Get returns the cached snapshot when fresh, otherwise fetches the tab,
// stores it with the current timestamp and returns it. Concurrent misses on
// the same tab may each fetch once; the last one wins the cache slot.
func (c *SnapshotCache) Get(ctx context.Context, sheetID, tab string) (*models.Snapshot, error) {
	key := cacheKey(sheetID, tab)

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok && c.clock.Since(entry.fetchedAt) < c.ttl {
		c.mu.Unlock()
		return entry.snap, nil
	}
	c.mu.Unlock()

	snap, err := c.store.ReadTab(ctx, sheetID, tab)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = snapshotEntry{snap: snap, fetchedAt: c.clock.Now()}
	c.mu.Unlock()
	return snap, nil
}

// Invalidate removes a tab's entry regardless of freshness. Called after a
// successful write so the next Get fetches.
func (c *SnapshotCache) Invalidate(sheetID, tab string) {
	c.mu.Lock()
	delete(c.entries, cacheKey(sheetID, tab))
	c.mu.Unlock()
}
