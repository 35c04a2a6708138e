// Package cache implements the per-namespace memoizing bundle-table
// cache with single-flight loads and retry-with-backoff on transient
// metadata failures.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/nsbundle/internal/retry"
	"github.com/arloliu/nsbundle/types"
)

// LoadFunc reads a namespace's bundle table from the metadata store.
// Implementations classify failures as types.ErrTransientMetadata
// (retried by the cache) or types.ErrPermanentMetadata (surfaced
// immediately).
type LoadFunc func(ctx context.Context, namespace string) (*types.BundleTable, error)

// Config controls the cache's load retry behavior.
type Config struct {
	// InitialBackoff is the first retry delay after a transient failure.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential retry delay.
	MaxBackoff time.Duration

	// Deadline bounds the whole load, retries included, measured from
	// the first attempt.
	Deadline time.Duration
}

// entry is one cache slot. done is closed after exactly one of table or
// err is set; the entry is immutable afterwards.
//
// Entries move through Absent -> Loading -> Loaded, with Invalidated
// (removed from the map) reachable from any state. A failed load removes
// its own entry so the next Get triggers a fresh load.
type entry struct {
	done  chan struct{}
	table *types.BundleTable
	err   error
}

// Cache is an asynchronous, per-namespace memoizing cache of bundle
// tables. All methods are safe for concurrent use; no lock is held
// across metadata I/O.
type Cache struct {
	cfg     Config
	load    LoadFunc
	logger  types.Logger
	metrics types.MetricsCollector

	entries *xsync.Map[string, *entry]

	// ctx bounds in-flight loads to the cache lifetime, independent of
	// any single caller's context.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a bundle-table cache.
//
// Parameters:
//   - cfg: Retry configuration
//   - load: Metadata load function invoked on cache miss
//   - logger: Structured logger
//   - metrics: Metrics collector
//
// Returns:
//   - *Cache: Ready-to-use cache; release with Close
func New(cfg Config, load LoadFunc, logger types.Logger, metrics types.MetricsCollector) *Cache {
	ctx, cancel := context.WithCancel(context.Background())

	return &Cache{
		cfg:     cfg,
		load:    load,
		logger:  logger,
		metrics: metrics,
		entries: xsync.NewMap[string, *entry](),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Get returns the namespace's bundle table, loading it on a cache miss.
//
// Concurrent calls for the same namespace share a single in-flight load;
// only one metadata read happens per miss. The caller's context only
// bounds the wait, not the shared load itself.
//
// Parameters:
//   - ctx: Bounds how long this caller waits
//   - namespace: Namespace identity
//
// Returns:
//   - *types.BundleTable: The cached or freshly loaded table
//   - error: Load failure (transient failures past the retry deadline,
//     or a permanent failure), or ctx cancellation
func (c *Cache) Get(ctx context.Context, namespace string) (*types.BundleTable, error) {
	e := &entry{done: make(chan struct{})}
	actual, loaded := c.entries.LoadOrStore(namespace, e)
	if loaded {
		c.metrics.IncCacheHit()
	} else {
		c.metrics.IncCacheMiss()
		c.wg.Add(1)
		go c.runLoad(namespace, actual)
	}

	select {
	case <-actual.done:
		return actual.table, actual.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetIfPresent returns the namespace's table only if a completed,
// successful load is cached. Never blocks and never triggers a load.
func (c *Cache) GetIfPresent(namespace string) (*types.BundleTable, bool) {
	e, ok := c.entries.Load(namespace)
	if !ok {
		return nil, false
	}

	select {
	case <-e.done:
		if e.err != nil {
			return nil, false
		}

		return e.table, true
	default:
		// Load still in flight.
		return nil, false
	}
}

// Invalidate drops the namespace's cache entry. The next Get reloads
// from metadata. Invalidating an absent namespace is a no-op.
func (c *Cache) Invalidate(namespace string) {
	if _, loaded := c.entries.LoadAndDelete(namespace); loaded {
		c.metrics.IncCacheInvalidation()
		c.logger.Debug("invalidated bundle cache entry", "namespace", namespace)
	}
}

// Close cancels in-flight loads and waits for their goroutines to exit.
// Waiters of canceled loads receive a context error.
func (c *Cache) Close() {
	c.cancel()
	c.wg.Wait()
}

// runLoad performs the load-with-retry loop for one namespace and
// resolves the shared entry exactly once.
func (c *Cache) runLoad(namespace string, e *entry) {
	defer c.wg.Done()

	start := time.Now()
	deadline := start.Add(c.cfg.Deadline)
	backoff := retry.NewBackoff(c.cfg.InitialBackoff, c.cfg.MaxBackoff)

	var table *types.BundleTable
	var err error
	for {
		table, err = c.load(c.ctx, namespace)
		if err == nil || !errors.Is(err, types.ErrTransientMetadata) {
			break
		}
		if time.Now().After(deadline) {
			err = fmt.Errorf("load retry deadline exceeded after %s: %w", time.Since(start).Round(time.Millisecond), err)
			break
		}

		delay := backoff.Next()
		c.logger.Warn("error loading bundle table, retrying",
			"namespace", namespace,
			"delay", delay,
			"error", err,
		)
		c.metrics.IncLoadRetry()

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-c.ctx.Done():
			timer.Stop()
			err = fmt.Errorf("bundle cache closed during load: %w", c.ctx.Err())
		}
		if err != nil && c.ctx.Err() != nil {
			break
		}
	}

	if err != nil {
		e.err = fmt.Errorf("load bundle table for namespace %q: %w", namespace, err)
		c.metrics.IncLoadFailure()
		c.logger.Error("failed to load bundle table", "namespace", namespace, "error", err)
		// Failed loads are not memoized; drop our own entry so the next
		// Get starts over. The conditional compute leaves any replacement
		// entry created by a concurrent invalidation untouched.
		c.entries.Compute(namespace, func(old *entry, loaded bool) (*entry, xsync.ComputeOp) {
			if loaded && old == e {
				return nil, xsync.DeleteOp
			}

			return old, xsync.CancelOp
		})
	} else {
		e.table = table
		c.metrics.ObserveLoadDuration(time.Since(start).Seconds())
		c.logger.Debug("loaded bundle table",
			"namespace", namespace,
			"bundles", table.NumBundles(),
			"elapsed", time.Since(start),
		)
	}

	close(e.done)
}
