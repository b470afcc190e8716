package services

import (
	"context"
	"sync"
	"time"
)

const (
	defaultRuleCacheTTL   = 30 * time.Minute
	defaultRuleCacheLimit = 10000
)

// ShippingRuleCache keeps the active rule catalog per checkout session so a session
// reads the catalog at most once per TTL.
type ShippingRuleCache struct {
	ttl   time.Duration
	limit int
	clock func() time.Time

	mu         sync.Mutex
	generation uint64
	entries    map[string]ruleCacheEntry
}

type ruleCacheEntry struct {
	rules     []ShippingRule
	expiresAt time.Time
}

// RuleCacheOption customises a ShippingRuleCache.
type RuleCacheOption func(*ShippingRuleCache)

// WithRuleCacheLimit caps the number of cached sessions. Non-positive values keep the default of 10000.
func WithRuleCacheLimit(limit int) RuleCacheOption {
	return func(c *ShippingRuleCache) {
		if limit > 0 {
			c.limit = limit
		}
	}
}

// NewShippingRuleCache constructs a cache. A non-positive ttl selects the default of 30 minutes.
func NewShippingRuleCache(ttl time.Duration, clock func() time.Time, opts ...RuleCacheOption) *ShippingRuleCache {
	if ttl <= 0 {
		ttl = defaultRuleCacheTTL
	}
	if clock == nil {
		clock = time.Now
	}
	c := &ShippingRuleCache{
		ttl:     ttl,
		limit:   defaultRuleCacheLimit,
		clock:   clock,
		entries: make(map[string]ruleCacheEntry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Load returns the cached rules for the session, calling load on a miss. An empty session ID bypasses the cache.
func (c *ShippingRuleCache) Load(ctx context.Context, sessionID string, load func(context.Context) ([]ShippingRule, error)) ([]ShippingRule, error) {
	if c == nil || sessionID == "" {
		return load(ctx)
	}

	now := c.clock()
	c.mu.Lock()
	entry, ok := c.entries[sessionID]
	generation := c.generation
	c.mu.Unlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.rules, nil
	}

	rules, err := load(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// a catalog change during the load makes the result stale
	if c.generation != generation {
		return rules, nil
	}
	c.sweepLocked(now)
	if _, exists := c.entries[sessionID]; !exists && len(c.entries) >= c.limit {
		c.evictOldestLocked()
	}
	c.entries[sessionID] = ruleCacheEntry{rules: rules, expiresAt: now.Add(c.ttl)}
	return rules, nil
}

// Forget drops the entry of a single session.
func (c *ShippingRuleCache) Forget(sessionID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, sessionID)
	c.mu.Unlock()
}

// Invalidate drops every entry. Call after the catalog changes.
func (c *ShippingRuleCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.generation++
	c.entries = make(map[string]ruleCacheEntry)
	c.mu.Unlock()
}

// Len reports the number of cached sessions.
func (c *ShippingRuleCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ShippingRuleCache) sweepLocked(now time.Time) {
	for id, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, id)
		}
	}
}

// evictOldestLocked drops the entry closest to expiry.
func (c *ShippingRuleCache) evictOldestLocked() {
	var (
		oldestID string
		oldestAt time.Time
	)
	for id, entry := range c.entries {
		if oldestID == "" || entry.expiresAt.Before(oldestAt) {
			oldestID, oldestAt = id, entry.expiresAt
		}
	}
	if oldestID != "" {
		delete(c.entries, oldestID)
	}
}
