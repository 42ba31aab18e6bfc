package service

import (
	"strconv"
	"sync"
	"time"

	"github.com/loomery/matchd/internal/domain/model"
)

// cacheKey identifies one ranked result by everything that can change it:
// the user's profile version, the opportunity-set epoch, the weight
// configuration, and the request shape. Any entity write bumps a version
// or the epoch, so stale entries simply stop being addressed.
func cacheKey(userID string, userVersion, oppEpoch int64, weightsHash uint64, limit int, minScore float64) string {
	return userID +
		"|u" + strconv.FormatInt(userVersion, 10) +
		"|o" + strconv.FormatInt(oppEpoch, 10) +
		"|w" + strconv.FormatUint(weightsHash, 16) +
		"|l" + strconv.Itoa(limit) +
		"|m" + strconv.FormatFloat(minScore, 'g', -1, 64)
}

type cacheEntry struct {
	result   model.RankedResult
	storedAt time.Time
}

// resultCache is a bounded map with FIFO eviction and a TTL safety net.
// Version-stamped keys carry the real invalidation; the TTL only bounds
// how long an entry for a no-longer-addressed key lingers in memory.
type resultCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	order   []string
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

func newResultCache(maxSize int, ttl time.Duration) *resultCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &resultCache{
		entries: make(map[string]cacheEntry, maxSize),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *resultCache) get(key string) (model.RankedResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return model.RankedResult{}, false
	}
	if c.ttl > 0 && c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, key)
		c.dropOrder(key)
		return model.RankedResult{}, false
	}
	return e.result, true
}

// dropOrder removes key from the eviction order. Expired entries must
// leave order too, or an expire/re-put cycle appends the key twice and
// order outgrows maxSize.
func (c *resultCache) dropOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func (c *resultCache) put(key string, result model.RankedResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		for len(c.entries) >= c.maxSize && len(c.order) > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = cacheEntry{result: result, storedAt: c.now()}
}

func (c *resultCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
