package evaluator

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

type cacheKey struct {
	ruleID  string
	ctxHash uint64
}

type cacheEntry struct {
	result   Result
	storedAt time.Time
}

// resultCache holds evaluation results for a fixed TTL. Expired entries are
// dropped lazily when read, or in bulk when the cache reaches maxEntries.
type resultCache struct {
	mu         sync.RWMutex
	entries    map[cacheKey]cacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func newResultCache(ttl time.Duration, maxEntries int, now func() time.Time) *resultCache {
	return &resultCache{
		entries:    make(map[cacheKey]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
	}
}

func (c *resultCache) get(k cacheKey) (Result, bool) {
	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()
	if !ok {
		return Result{}, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		c.mu.Lock()
		if cur, ok := c.entries[k]; ok && cur.storedAt.Equal(e.storedAt) {
			delete(c.entries, k)
		}
		c.mu.Unlock()
		return Result{}, false
	}
	return e.result, true
}

func (c *resultCache) put(k cacheKey, r Result) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		for key, e := range c.entries {
			if now.Sub(e.storedAt) > c.ttl {
				delete(c.entries, key)
			}
		}
		if len(c.entries) >= c.maxEntries {
			clear(c.entries)
		}
	}
	c.entries[k] = cacheEntry{result: r, storedAt: now}
}

func (c *resultCache) invalidate(ruleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.ruleID == ruleID {
			delete(c.entries, k)
		}
	}
}

func (c *resultCache) clear() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}

func (c *resultCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// contextHash digests the invoice and customer sections, the parts of the
// context that identify a cached result. It reports false when the sections
// cannot be encoded.
func contextHash(c *Context) (uint64, bool) {
	data, err := json.Marshal(struct {
		Invoice  Invoice  `json:"invoice"`
		Customer Customer `json:"customer"`
	}{c.Invoice, c.Customer})
	if err != nil {
		return 0, false
	}
	return xxhash.Sum64(data), true
}
