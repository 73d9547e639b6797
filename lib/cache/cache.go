// Package cache implements the metadata cache: a TTL-bounded key/value store whose misses are populated by a caller
// supplied function, with concurrent misses for the same key coalesced onto a single population.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/tarancss/chainquery/lib/fault"
)

var (
	hits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainquery_cache_hits_total",
		Help: "Cache lookups served from an unexpired entry.",
	}, []string{"cache"})
	misses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainquery_cache_misses_total",
		Help: "Cache lookups that found no unexpired entry.",
	}, []string{"cache"})
	populations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainquery_cache_populations_total",
		Help: "Population functions executed.",
	}, []string{"cache"})
	failures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainquery_cache_population_failures_total",
		Help: "Population functions that returned an error.",
	}, []string{"cache"})
)

// Entry is an immutable cached value.
type Entry[K ~string, V any] struct {
	Key      K
	Value    V
	CachedAt time.Time
	TTL      time.Duration // zero means the entry never expires
}

// Expired reports whether the entry is past its TTL at now.
func (e Entry[K, V]) Expired(now time.Time) bool {
	return e.TTL > 0 && !now.Before(e.CachedAt.Add(e.TTL))
}

// Cache is safe for concurrent use.
type Cache[K ~string, V any] struct {
	name  string
	ttl   time.Duration
	items *ttlcache.Cache[K, Entry[K, V]]
	group singleflight.Group

	mu  sync.Mutex // orders stores of populations against invalidations
	gen uint64     // bumped by every invalidation
}

// New returns a cache whose entries live for ttl. A ttl of zero or less keeps entries until invalidated.
func New[K ~string, V any](name string, ttl time.Duration) *Cache[K, V] {
	if ttl < 0 {
		ttl = 0
	}

	opts := []ttlcache.Option[K, Entry[K, V]]{
		ttlcache.WithDisableTouchOnHit[K, Entry[K, V]](),
	}
	if ttl > 0 {
		opts = append(opts, ttlcache.WithTTL[K, Entry[K, V]](ttl))
	}

	return &Cache[K, V]{
		name:  name,
		ttl:   ttl,
		items: ttlcache.New(opts...),
	}
}

// Start runs the janitor that drops expired entries. It blocks until Stop is called.
func (c *Cache[K, V]) Start() {
	c.items.Start()
}

// Stop terminates the janitor.
func (c *Cache[K, V]) Stop() {
	c.items.Stop()
}

// TTL returns the configured time to live.
func (c *Cache[K, V]) TTL() time.Duration {
	return c.ttl
}

// Get returns the unexpired value stored for key.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	if e, ok := c.lookup(key); ok {
		return e.Value, true
	}

	var zero V

	return zero, false
}

func (c *Cache[K, V]) lookup(key K) (Entry[K, V], bool) {
	item := c.items.Get(key)
	if item == nil {
		return Entry[K, V]{}, false
	}

	e := item.Value()
	if e.Expired(time.Now()) {
		return Entry[K, V]{}, false
	}

	return e, true
}

// GetOrPopulate returns the unexpired value cached for key. Otherwise compute is called, once for all the callers
// that miss on key while it runs, and its result is stored and handed to all of them. A failed compute stores nothing
// and its error, tagged fault.CachePopulation, reaches every coalesced caller; the next access retries.
//
// compute runs detached from the cancellation of any single caller. A caller whose ctx is done stops waiting and
// gets ctx's error, while the population carries on for the others.
func (c *Cache[K, V]) GetOrPopulate(ctx context.Context, key K, compute func(context.Context) (V, error)) (V, error) {
	if e, ok := c.lookup(key); ok {
		hits.WithLabelValues(c.name).Inc()

		return e.Value, nil
	}

	misses.WithLabelValues(c.name).Inc()

	detached := context.WithoutCancel(ctx)

	ch := c.group.DoChan(string(key), func() (interface{}, error) {
		// a flight that finished just before this one started may have stored the value already
		if e, ok := c.lookup(key); ok {
			return e.Value, nil
		}

		c.mu.Lock()
		gen := c.gen
		c.mu.Unlock()

		populations.WithLabelValues(c.name).Inc()

		v, err := compute(detached)
		if err != nil {
			failures.WithLabelValues(c.name).Inc()

			return nil, fault.New(fault.CachePopulation, "cache "+c.name, string(key), err)
		}

		c.mu.Lock()
		if c.gen == gen {
			c.items.Set(key, Entry[K, V]{Key: key, Value: v, CachedAt: time.Now(), TTL: c.ttl}, ttlcache.DefaultTTL)
		}
		c.mu.Unlock()

		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero V

			return zero, res.Err
		}

		v, _ := res.Val.(V)

		return v, nil
	case <-ctx.Done():
		var zero V

		return zero, ctx.Err()
	}
}

// Invalidate removes the entry for key, if any. A population already running when Invalidate is called still
// answers its callers but does not store its result, and later misses start a new one.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.group.Forget(string(key))
	c.items.Delete(key)
}

// Len returns the number of unexpired entries.
func (c *Cache[K, V]) Len() int {
	return len(c.items.Items())
}

// Snapshot returns a point-in-time copy of the unexpired entries.
func (c *Cache[K, V]) Snapshot() map[K]Entry[K, V] {
	now := time.Now()
	items := c.items.Items()
	snap := make(map[K]Entry[K, V], len(items))

	for k, item := range items {
		if e := item.Value(); !e.Expired(now) {
			snap[k] = e
		}
	}

	return snap
}
