package cache

import (
	"context"
	"sync"
	"time"

	"github.com/mikey/mail-notifier/internal/core"
	"go.uber.org/zap"
)

// MemoryCache is an in-memory implementation of the ScoreCache interface
type MemoryCache struct {
	entries map[uint32]core.CacheEntry
	mu      sync.RWMutex
	logger  *zap.Logger
	cleaner *cleaner
	now     func() time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(logger *zap.Logger, cleanupFreq time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[uint32]core.CacheEntry),
		logger:  logger,
		cleaner: newCleaner(cleanupFreq, logger),
		now:     time.Now,
	}
	c.cleaner.start(c.Cleanup)
	return c
}

// Get retrieves a live cached entry for a message
func (c *MemoryCache) Get(ctx context.Context, uid uint32) (*core.CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[uid]
	if !ok || !c.now().Before(entry.ExpiresAt) {
		return nil, core.ErrCacheMiss
	}
	return &entry, nil
}

// Set stores a cache entry
func (c *MemoryCache) Set(ctx context.Context, entry *core.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[entry.UID] = *entry
	return nil
}

// Delete removes a cache entry
func (c *MemoryCache) Delete(ctx context.Context, uid uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, uid)
	return nil
}

// Cleanup removes expired entries
func (c *MemoryCache) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expired := 0
	for uid, entry := range c.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(c.entries, uid)
			expired++
		}
	}

	c.logger.Debug("Cleaned up expired cache entries", zap.Int("expired_count", expired))
	return nil
}

// Stop stops the background cleanup task
func (c *MemoryCache) Stop() {
	c.cleaner.stop()
}
