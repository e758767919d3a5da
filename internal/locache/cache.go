package locache

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/resale-enrich/internal/address"
)

// Cache is the working set of entries for one run. It is safe for use by
// several workers; flushes to the backing Store happen every flushEvery
// newly added entries.
type Cache struct {
	store      Store
	flushEvery int

	flushMu sync.Mutex

	mu      sync.Mutex
	entries Entries
	dirty   int
}

// Open loads entries from store and returns a Cache that flushes back to it.
// flushEvery <= 0 disables intermediate flushes; Flush must then be called
// explicitly.
func Open(ctx context.Context, store Store, flushEvery int) (*Cache, error) {
	entries, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = Entries{}
	}
	return &Cache{store: store, flushEvery: flushEvery, entries: entries}, nil
}

// Get returns the entry for key.
func (c *Cache) Get(key address.Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

// Has reports whether key has already been resolved.
func (c *Cache) Has(key address.Key) bool {
	_, ok := c.Get(key)
	return ok
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Put commits a fully resolved entry and flushes when the cadence is due.
// Flush errors are logged and retried on the next cadence; they never drop
// the in-memory entry.
func (c *Cache) Put(ctx context.Context, key address.Key, e Entry) {
	c.mu.Lock()
	c.entries[key] = e
	c.dirty++
	due := c.flushEvery > 0 && c.dirty >= c.flushEvery
	c.mu.Unlock()

	if due {
		if err := c.Flush(ctx); err != nil {
			zap.L().Warn("intermediate cache flush failed", zap.Error(err))
			return
		}
		zap.L().Info("intermediate cache save", zap.Int("entries", c.Len()))
	}
}

// Flush persists every entry to the backing store.
func (c *Cache) Flush(ctx context.Context) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	snapshot := c.entries.Clone()
	pending := c.dirty
	c.mu.Unlock()

	if err := c.store.Save(ctx, snapshot); err != nil {
		return err
	}

	c.mu.Lock()
	c.dirty -= pending
	c.mu.Unlock()
	return nil
}

// Dirty returns the number of entries added since the last flush.
func (c *Cache) Dirty() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// Snapshot returns a copy of every cached entry.
func (c *Cache) Snapshot() Entries {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Clone()
}
