package application

import (
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Mostafa-DE/gatherly-sub002/internal/participation"
)

// ConflictCache stores recently computed conflict previews so repeated
// lookups for the same session and candidate time skip the detector while
// participations remain unchanged. Every participation or session write
// purges it and bumps the generation, so a preview computed before the
// write is dropped instead of stored.
type ConflictCache struct {
	mu         sync.Mutex
	generation uint64
	entries    *expirable.LRU[string, []participation.UserConflict]
}

// NewConflictCache creates a cache holding at most size previews for ttl.
func NewConflictCache(size int, ttl time.Duration) *ConflictCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if size <= 0 {
		size = 128
	}
	return &ConflictCache{entries: expirable.NewLRU[string, []participation.UserConflict](size, nil, ttl)}
}

func (c *ConflictCache) Get(sessionID string, at time.Time) ([]participation.UserConflict, bool) {
	if c == nil {
		return nil, false
	}
	conflicts, ok := c.entries.Get(conflictCacheKey(sessionID, at))
	if !ok {
		return nil, false
	}
	return cloneConflicts(conflicts), true
}

// Generation identifies the cache contents. Read it before computing a
// preview and hand it to Store.
func (c *ConflictCache) Generation() uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Store caches conflicts unless an invalidation happened after generation
// was read. It reports whether the entry was kept.
func (c *ConflictCache) Store(generation uint64, sessionID string, at time.Time, conflicts []participation.UserConflict) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return false
	}
	c.entries.Add(conflictCacheKey(sessionID, at), cloneConflicts(conflicts))
	return true
}

func (c *ConflictCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.entries.Purge()
}

// Len reports the number of cached previews.
func (c *ConflictCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

func conflictCacheKey(sessionID string, at time.Time) string {
	return sessionID + "|" + strconv.FormatInt(at.UTC().UnixMilli(), 10)
}

func cloneConflicts(conflicts []participation.UserConflict) []participation.UserConflict {
	out := make([]participation.UserConflict, len(conflicts))
	copy(out, conflicts)
	return out
}
