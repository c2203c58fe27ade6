package cache

import (
	"sync"
	"time"

	"librarian/internal/clock"
	"librarian/internal/models"
)

// ClaimCache is a TTL cache for authenticated user claims, keyed by
// telegram id. It replaces the ambient process-wide cache the original
// design leaned on: the owner injects it and controls its lifetime.
type ClaimCache struct {
	mu      sync.RWMutex
	clock   clock.Clock
	ttl     time.Duration
	entries map[int64]entry
}

type entry struct {
	claim     models.UserClaim
	expiresAt int64
}

// New creates a claim cache. ttl of zero means 24 hours.
func New(clk clock.Clock, ttl time.Duration) *ClaimCache {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &ClaimCache{
		clock:   clk,
		ttl:     ttl,
		entries: make(map[int64]entry),
	}
}

// Get returns the cached claim for the telegram id, if present and not
// expired. Expired entries are evicted on read.
func (c *ClaimCache) Get(telegramID int64) (models.UserClaim, bool) {
	c.mu.RLock()
	e, ok := c.entries[telegramID]
	c.mu.RUnlock()
	if !ok {
		return models.UserClaim{}, false
	}
	if c.clock.Now() >= e.expiresAt {
		c.Evict(telegramID)
		return models.UserClaim{}, false
	}
	return e.claim, true
}

// Set stores the claim with the cache's TTL.
func (c *ClaimCache) Set(telegramID int64, claim models.UserClaim) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[telegramID] = entry{
		claim:     claim,
		expiresAt: c.clock.Now() + c.ttl.Milliseconds(),
	}
}

// Evict removes the entry for the telegram id.
func (c *ClaimCache) Evict(telegramID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, telegramID)
}
