package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/nsbundle/internal/logger"
	"github.com/arloliu/nsbundle/internal/metrics"
	"github.com/arloliu/nsbundle/types"
)

func testConfig() Config {
	return Config{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Deadline:       time.Second,
	}
}

func newTestCache(t *testing.T, load LoadFunc) *Cache {
	t.Helper()
	c := New(testConfig(), load, logger.NewNop(), metrics.NewNop())
	t.Cleanup(c.Close)

	return c
}

func uniformTable(t *testing.T, ns string, n int) *types.BundleTable {
	t.Helper()
	table, err := types.NewUniformBundleTable(ns, n)
	require.NoError(t, err)

	return table
}

func TestCache_Get(t *testing.T) {
	t.Run("loads on miss and memoizes", func(t *testing.T) {
		var loads atomic.Int32
		c := newTestCache(t, func(_ context.Context, ns string) (*types.BundleTable, error) {
			loads.Add(1)
			return types.NewUniformBundleTable(ns, 4)
		})

		first, err := c.Get(context.Background(), "tenant/ns1")
		require.NoError(t, err)
		require.Equal(t, 4, first.NumBundles())

		second, err := c.Get(context.Background(), "tenant/ns1")
		require.NoError(t, err)
		require.Same(t, first, second)
		require.Equal(t, int32(1), loads.Load())
	})

	t.Run("distinct namespaces load independently", func(t *testing.T) {
		c := newTestCache(t, func(_ context.Context, ns string) (*types.BundleTable, error) {
			if ns == "tenant/two" {
				return types.NewUniformBundleTable(ns, 2)
			}
			return types.NewUniformBundleTable(ns, 8)
		})

		a, err := c.Get(context.Background(), "tenant/two")
		require.NoError(t, err)
		b, err := c.Get(context.Background(), "tenant/eight")
		require.NoError(t, err)
		require.Equal(t, 2, a.NumBundles())
		require.Equal(t, 8, b.NumBundles())
	})

	t.Run("caller context bounds the wait", func(t *testing.T) {
		release := make(chan struct{})
		c := newTestCache(t, func(_ context.Context, ns string) (*types.BundleTable, error) {
			<-release
			return types.NewUniformBundleTable(ns, 4)
		})
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := c.Get(ctx, "tenant/slow")
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestCache_SingleFlight(t *testing.T) {
	var loads atomic.Int32
	gate := make(chan struct{})
	c := newTestCache(t, func(_ context.Context, ns string) (*types.BundleTable, error) {
		loads.Add(1)
		<-gate
		return types.NewUniformBundleTable(ns, 4)
	})

	const callers = 16
	var wg sync.WaitGroup
	results := make([]*types.BundleTable, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.Get(context.Background(), "tenant/hot")
		}()
	}

	// Let every caller join the in-flight load before releasing it.
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	require.Equal(t, int32(1), loads.Load(), "concurrent gets must share one load")
	for i := range callers {
		require.NoError(t, errs[i])
		require.Same(t, results[0], results[i])
	}
}

func TestCache_TransientRetry(t *testing.T) {
	t.Run("retries until the underlying call succeeds", func(t *testing.T) {
		var attempts atomic.Int32
		c := newTestCache(t, func(_ context.Context, ns string) (*types.BundleTable, error) {
			if attempts.Add(1) <= 3 {
				return nil, fmt.Errorf("read local policy: %w", types.ErrTransientMetadata)
			}
			return types.NewUniformBundleTable(ns, 4)
		})

		table, err := c.Get(context.Background(), "tenant/flaky")
		require.NoError(t, err)
		require.Equal(t, 4, table.NumBundles())
		require.Equal(t, int32(4), attempts.Load())
	})

	t.Run("deadline exhaustion surfaces the transient cause", func(t *testing.T) {
		load := func(_ context.Context, _ string) (*types.BundleTable, error) {
			return nil, fmt.Errorf("read local policy: %w", types.ErrTransientMetadata)
		}
		cfg := testConfig()
		cfg.Deadline = 20 * time.Millisecond
		c := New(cfg, load, logger.NewNop(), metrics.NewNop())
		t.Cleanup(c.Close)

		_, err := c.Get(context.Background(), "tenant/down")
		require.ErrorIs(t, err, types.ErrTransientMetadata)
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		var attempts atomic.Int32
		c := newTestCache(t, func(_ context.Context, _ string) (*types.BundleTable, error) {
			attempts.Add(1)
			return nil, fmt.Errorf("malformed policy: %w", types.ErrPermanentMetadata)
		})

		_, err := c.Get(context.Background(), "tenant/broken")
		require.ErrorIs(t, err, types.ErrPermanentMetadata)
		require.Equal(t, int32(1), attempts.Load())
	})

	t.Run("failed loads are not memoized", func(t *testing.T) {
		var attempts atomic.Int32
		c := newTestCache(t, func(_ context.Context, ns string) (*types.BundleTable, error) {
			if attempts.Add(1) == 1 {
				return nil, fmt.Errorf("auth failure: %w", types.ErrPermanentMetadata)
			}
			return types.NewUniformBundleTable(ns, 4)
		})

		_, err := c.Get(context.Background(), "tenant/recovering")
		require.Error(t, err)

		table, err := c.Get(context.Background(), "tenant/recovering")
		require.NoError(t, err)
		require.Equal(t, 4, table.NumBundles())
	})
}

func TestCache_GetIfPresent(t *testing.T) {
	release := make(chan struct{})
	c := newTestCache(t, func(_ context.Context, ns string) (*types.BundleTable, error) {
		<-release
		return types.NewUniformBundleTable(ns, 4)
	})

	_, ok := c.GetIfPresent("tenant/ns1")
	require.False(t, ok, "absent namespace")

	go func() {
		_, _ = c.Get(context.Background(), "tenant/ns1")
	}()
	time.Sleep(10 * time.Millisecond)

	_, ok = c.GetIfPresent("tenant/ns1")
	require.False(t, ok, "in-flight load is not present")

	close(release)
	table, err := c.Get(context.Background(), "tenant/ns1")
	require.NoError(t, err)

	got, ok := c.GetIfPresent("tenant/ns1")
	require.True(t, ok)
	require.Same(t, table, got)
}

func TestCache_Invalidate(t *testing.T) {
	t.Run("next get reloads", func(t *testing.T) {
		var loads atomic.Int32
		c := newTestCache(t, func(_ context.Context, ns string) (*types.BundleTable, error) {
			loads.Add(1)
			return types.NewUniformBundleTable(ns, 4)
		})

		_, err := c.Get(context.Background(), "tenant/ns1")
		require.NoError(t, err)

		c.Invalidate("tenant/ns1")

		_, err = c.Get(context.Background(), "tenant/ns1")
		require.NoError(t, err)
		require.Equal(t, int32(2), loads.Load())
	})

	t.Run("absent namespace is a no-op", func(t *testing.T) {
		c := newTestCache(t, func(_ context.Context, ns string) (*types.BundleTable, error) {
			return types.NewUniformBundleTable(ns, 4)
		})

		require.NotPanics(t, func() {
			c.Invalidate("tenant/never-loaded")
			c.Invalidate("tenant/never-loaded")
		})
	})

	t.Run("failed load keeps replacement entry", func(t *testing.T) {
		gate := make(chan struct{})
		var loads atomic.Int32
		c := newTestCache(t, func(_ context.Context, ns string) (*types.BundleTable, error) {
			if loads.Add(1) == 1 {
				<-gate
				return nil, fmt.Errorf("%w: store corrupted", types.ErrPermanentMetadata)
			}

			return types.NewUniformBundleTable(ns, 4)
		})

		errCh := make(chan error, 1)
		go func() {
			_, err := c.Get(context.Background(), "tenant/ns1")
			errCh <- err
		}()
		require.Eventually(t, func() bool { return loads.Load() == 1 },
			time.Second, time.Millisecond)

		// Invalidation races the failing load; the fresh entry created
		// afterwards must survive the failure's cleanup.
		c.Invalidate("tenant/ns1")
		replacement, err := c.Get(context.Background(), "tenant/ns1")
		require.NoError(t, err)

		close(gate)
		require.Error(t, <-errCh)

		cached, ok := c.GetIfPresent("tenant/ns1")
		require.True(t, ok, "failed load must only remove its own entry")
		require.Same(t, replacement, cached)
	})
}

func TestCache_Close(t *testing.T) {
	started := make(chan struct{})
	c := New(testConfig(), func(ctx context.Context, _ string) (*types.BundleTable, error) {
		close(started)
		<-ctx.Done()
		return nil, fmt.Errorf("canceled: %w", ctx.Err())
	}, logger.NewNop(), metrics.NewNop())

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Get(context.Background(), "tenant/ns1")
		errCh <- err
	}()

	<-started
	c.Close()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter did not observe canceled load")
	}
}
