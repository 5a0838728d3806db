// Package cache implements the fingerprint-keyed execution cache that lets
// the engine skip module invocations for unchanged documents. The in-memory
// cache is scoped to one engine run; an optional persistent store layers
// cross-run reuse underneath it.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"git.home.luguber.info/inful/contentmill/internal/document"
)

// ComputeFunc produces the output document set for a cache miss.
type ComputeFunc func() ([]*document.Document, error)

// Stats reports cache effectiveness for one run.
type Stats struct {
	Hits   int64
	Misses int64
}

type entry struct {
	ready   chan struct{}
	outputs []*document.Document
	err     error
}

// ExecutionCache maps a module-qualified document fingerprint to the output
// set that module previously produced. Keys are opaque here; the engine
// prefixes the module name so modules sharing an input document never
// collide. Lookups and inserts for the same key are linearizable: at most
// one caller computes a given key's value even under concurrent requests.
type ExecutionCache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	disabled bool
	store    Store
	logger   *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures the cache.
type Option func(*ExecutionCache)

// WithStore layers a persistent store under the in-memory cache.
func WithStore(store Store) Option {
	return func(c *ExecutionCache) { c.store = store }
}

// WithLogger sets the cache logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ExecutionCache) { c.logger = logger }
}

// Disabled turns every lookup into a miss and stores nothing, trading
// memory for recomputation.
func Disabled() Option {
	return func(c *ExecutionCache) { c.disabled = true }
}

// New creates an execution cache.
func New(opts ...Option) *ExecutionCache {
	c := &ExecutionCache{
		entries: make(map[string]*entry),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether caching is active.
func (c *ExecutionCache) Enabled() bool { return !c.disabled }

// Stats returns hit/miss counts for this run.
func (c *ExecutionCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// GetOrCompute returns the cached output set for key, computing and storing
// it on a miss. Concurrent callers for the same key block until the single
// in-flight computation finishes. A failed computation is not cached;
// waiters receive the error and later callers recompute.
func (c *ExecutionCache) GetOrCompute(ctx context.Context, key string, compute ComputeFunc) (outputs []*document.Document, hit bool, err error) {
	if c.disabled {
		c.misses.Add(1)
		out, err := compute()
		return out, false, err
	}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
		if e.err != nil {
			return nil, false, e.err
		}
		c.hits.Add(1)
		return e.outputs, true, nil
	}

	e := &entry{ready: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	// Persistent layer: a stored result counts as a hit without invoking
	// the module.
	if c.store != nil {
		stored, ok, loadErr := c.store.Get(ctx, key)
		if loadErr != nil {
			c.logger.Warn("Persistent cache lookup failed", "key", key, "error", loadErr)
		} else if ok {
			e.outputs = stored
			close(e.ready)
			c.hits.Add(1)
			return stored, true, nil
		}
	}

	c.misses.Add(1)
	out, computeErr := compute()
	if computeErr != nil {
		e.err = computeErr
		close(e.ready)
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, computeErr
	}

	e.outputs = out
	close(e.ready)

	if c.store != nil {
		if putErr := c.store.Put(ctx, key, out); putErr != nil {
			c.logger.Warn("Persistent cache store failed", "key", key, "error", putErr)
		}
	}
	return out, false, nil
}
