package poller

import (
	"context"
	"sync"
	"time"

	"github.com/jonguttman/MasterStat/internal/metrics"
	"github.com/jonguttman/MasterStat/internal/model"
)

// DefaultTTL bounds how stale a served status may be. It is deliberately
// shorter than the poll interval so interactive reads stay fresher than the
// recorded history.
const DefaultTTL = 30 * time.Second

// Cache is the read facade over the sampler. Concurrent readers within the
// TTL share one upstream call; a failed fetch is cached too, so a broken
// upstream is hit at most once per TTL.
type Cache struct {
	sampler Sampler
	ttl     time.Duration
	now     func() time.Time

	mu      sync.Mutex
	status  *model.Status
	err     error
	fetched time.Time
}

// NewCache builds a cache over sampler. ttl <= 0 selects DefaultTTL.
func NewCache(sampler Sampler, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{sampler: sampler, ttl: ttl, now: time.Now}
}

// Status returns the cached result when fresh, fetching synchronously
// otherwise. The lock is held across the fetch so a thundering herd
// collapses into one upstream call.
func (c *Cache) Status(ctx context.Context) (*model.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fetched.IsZero() && c.now().Sub(c.fetched) < c.ttl {
		metrics.CacheHits.Inc()
		return c.status, c.err
	}

	metrics.CacheMisses.Inc()
	c.status, c.err = c.sampler.Status(ctx)
	c.fetched = c.now()
	return c.status, c.err
}

// Set installs a freshly fetched status, restarting the TTL. The poll loop
// calls this after every successful cycle so reads right after a poll never
// duplicate the upstream fetch.
func (c *Cache) Set(st *model.Status) {
	c.mu.Lock()
	c.status = st
	c.err = nil
	c.fetched = c.now()
	c.mu.Unlock()
}

// Invalidate drops the cached result so the next read fetches.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.fetched = time.Time{}
	c.mu.Unlock()
}
