// Package cache implements the in-memory freshness cache (L1). Entries are
// replaced atomically per key and swept by a background job once they age
// beyond twice the configured TTL.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/dukkanapp/syncengine/pkg/logger"
	"github.com/dukkanapp/syncengine/pkg/metrics"
)

const (
	// DefaultTTL bounds how long a cached result counts as fresh.
	DefaultTTL = 30 * time.Second

	defaultSweepSchedule = "@every 1m"
)

type entry struct {
	data      json.RawMessage
	fetchedAt time.Time
}

// Cache is a process-lifetime map from query key to the last successful
// result. Get only returns entries younger than the TTL; older entries are
// treated as misses and eventually removed by the sweeper. Writes are
// last-writer-wins per key, which is harmless because racing fetches store
// equivalent results.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry

	ttl           time.Duration
	sweepSchedule string
	now           func() time.Time
	cron          *cron.Cron
	log           *zap.Logger
}

// Option customises the Cache.
type Option func(*Cache)

// WithNow overrides the clock used for freshness checks, primarily for testing.
func WithNow(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSweepSchedule overrides the cron specification for the stale sweep.
func WithSweepSchedule(spec string) Option {
	return func(c *Cache) {
		if spec != "" {
			c.sweepSchedule = spec
		}
	}
}

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(cr *cron.Cron) Option {
	return func(c *Cache) {
		if cr != nil {
			c.cron = cr
		}
	}
}

// New constructs a Cache with the supplied TTL. A non-positive TTL falls
// back to DefaultTTL.
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &Cache{
		entries:       make(map[string]entry),
		ttl:           ttl,
		sweepSchedule: defaultSweepSchedule,
		now:           time.Now,
		log:           logger.WithModule("cache"),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.cron == nil {
		c.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return c
}

// Get returns the cached value for key if it is younger than the TTL.
func (c *Cache) Get(key string) (json.RawMessage, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.fetchedAt) >= c.ttl {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return e.data, true
}

// Set stores the value for key, replacing any previous entry.
func (c *Cache) Set(key string, data json.RawMessage) {
	c.mu.Lock()
	c.entries[key] = entry{data: data, fetchedAt: c.now()}
	c.mu.Unlock()
}

// Invalidate drops the entry for key, if any.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Purge drops every entry. Used by the recovery controller.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Len reports the number of resident entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Start launches the periodic stale sweep.
func (c *Cache) Start() error {
	if _, err := c.cron.AddFunc(c.sweepSchedule, c.Sweep); err != nil {
		return err
	}
	c.cron.Start()
	return nil
}

// Stop halts the sweeper, waiting for a running sweep to finish.
func (c *Cache) Stop() context.Context {
	return c.cron.Stop()
}

// Sweep removes entries older than twice the TTL to bound memory. Reads are
// never blocked for the duration of the scan: the stale keys are collected
// under a read lock first.
func (c *Cache) Sweep() {
	cutoff := c.now().Add(-2 * c.ttl)

	c.mu.RLock()
	var stale []string
	for key, e := range c.entries {
		if e.fetchedAt.Before(cutoff) {
			stale = append(stale, key)
		}
	}
	c.mu.RUnlock()

	if len(stale) == 0 {
		return
	}

	c.mu.Lock()
	for _, key := range stale {
		if e, ok := c.entries[key]; ok && e.fetchedAt.Before(cutoff) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()

	c.log.Debug("swept stale cache entries", zap.Int("removed", len(stale)))
}
