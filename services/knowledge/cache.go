package knowledge

import (
	"sync"
	"time"

	"github.com/tyson-yobot/command-center-sub002/models"
)

// entryCache holds the time-boxed read snapshot of enabled knowledge
// entries. The snapshot is replaced wholesale on a successful reload
// (reload-then-publish) so concurrent readers never observe a partially
// rebuilt collection. A failed reload leaves the previous snapshot in place;
// staleness is tracked by attempt time so a failing store is probed once per
// window instead of on every request.
type entryCache struct {
	mu          sync.RWMutex
	snapshot    []*models.KnowledgeEntry
	loadedAt    time.Time
	attemptedAt time.Time
	ttl         time.Duration

	hits     uint64
	reloads  uint64
	failures uint64

	nowFn func() time.Time
}

// newEntryCache creates an empty cache with the given freshness window
func newEntryCache(ttl time.Duration) *entryCache {
	return &entryCache{
		ttl:   ttl,
		nowFn: time.Now,
	}
}

// refreshDue reports whether the freshness window has elapsed since the last
// reload attempt
func (c *entryCache) refreshDue() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attemptedAt.IsZero() || c.nowFn().Sub(c.attemptedAt) > c.ttl
}

// entries returns the current snapshot. The returned slice must be treated
// as read-only.
func (c *entryCache) entries() []*models.KnowledgeEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits++
	return c.snapshot
}

// publish atomically replaces the snapshot after a successful reload
func (c *entryCache) publish(entries []*models.KnowledgeEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowFn()
	c.snapshot = entries
	c.loadedAt = now
	c.attemptedAt = now
	c.reloads++
}

// markFailure records a failed reload attempt without touching the snapshot
func (c *entryCache) markFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attemptedAt = c.nowFn()
	c.failures++
}

// CacheStats describes the snapshot state for the cache endpoint
type CacheStats struct {
	EntryCount int       `json:"entry_count"`
	LoadedAt   time.Time `json:"loaded_at"`
	AgeSeconds float64   `json:"age_seconds"`
	Hits       uint64    `json:"hits"`
	Reloads    uint64    `json:"reloads"`
	Failures   uint64    `json:"failures"`
}

// stats returns a point-in-time view of the cache
func (c *entryCache) stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	age := 0.0
	if !c.loadedAt.IsZero() {
		age = c.nowFn().Sub(c.loadedAt).Seconds()
	}
	return CacheStats{
		EntryCount: len(c.snapshot),
		LoadedAt:   c.loadedAt,
		AgeSeconds: age,
		Hits:       c.hits,
		Reloads:    c.reloads,
		Failures:   c.failures,
	}
}
