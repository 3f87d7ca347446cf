// Package decoratorcache memoizes host → entry decisions.
//
// Lookups for the same host are collapsed into a single evaluation, misses
// are cached as decoratorconfig.InvalidEntry, and InvalidateAll drops every
// memoized decision without waiting for lookups in flight.
package decoratorcache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/onehippo-forge/servlet-filter-decorators/pkg/decoratorconfig"
)

const (
	DefaultMaxEntries = 100
	DefaultTTL        = 30 * 24 * time.Hour
)

// ComputeFunc evaluates the decision for host. A nil result is stored as
// decoratorconfig.InvalidEntry.
type ComputeFunc func(ctx context.Context, host string) *decoratorconfig.Entry

type Options struct {
	MaxEntries int
	TTL        time.Duration
}

type Stats struct {
	Hits          uint64
	Misses        uint64
	Loads         uint64
	Invalidations uint64
	Size          int
}

type Cache struct {
	lru     *expirable.LRU[string, *decoratorconfig.Entry]
	group   singleflight.Group
	compute ComputeFunc

	// epoch advances on InvalidateAll; results computed under an older
	// epoch are returned but not stored. mu orders stores against
	// invalidations.
	mu    sync.Mutex
	epoch atomic.Uint64

	hits          atomic.Uint64
	misses        atomic.Uint64
	loads         atomic.Uint64
	invalidations atomic.Uint64
}

func New(compute ComputeFunc, opts Options) *Cache {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &Cache{
		lru:     expirable.NewLRU[string, *decoratorconfig.Entry](opts.MaxEntries, nil, opts.TTL),
		compute: compute,
	}
}

// Get returns the memoized decision for host, computing it at most once per
// host across concurrent callers.
func (c *Cache) Get(ctx context.Context, host string) *decoratorconfig.Entry {
	if e, ok := c.lru.Get(host); ok {
		c.hits.Add(1)
		return e
	}
	c.misses.Add(1)

	epoch := c.epoch.Load()
	key := strconv.FormatUint(epoch, 10) + "\x00" + host
	v, _, _ := c.group.Do(key, func() (any, error) {
		if e, ok := c.lru.Peek(host); ok {
			return e, nil
		}
		e := c.compute(ctx, host)
		if e == nil {
			e = decoratorconfig.InvalidEntry
		}
		c.loads.Add(1)
		c.store(epoch, host, e)
		return e, nil
	})
	return v.(*decoratorconfig.Entry)
}

func (c *Cache) store(epoch uint64, host string, e *decoratorconfig.Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch.Load() != epoch {
		return false
	}
	c.lru.Add(host, e)
	return true
}

// InvalidateAll discards every memoized decision.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.epoch.Add(1)
	c.lru.Purge()
	c.mu.Unlock()
	c.invalidations.Add(1)
}

// Purge empties the cache at shutdown.
func (c *Cache) Purge() { c.lru.Purge() }

func (c *Cache) Len() int { return c.lru.Len() }

// Keys returns the cached hosts, oldest first.
func (c *Cache) Keys() []string { return c.lru.Keys() }

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Loads:         c.loads.Load(),
		Invalidations: c.invalidations.Load(),
		Size:          c.lru.Len(),
	}
}
