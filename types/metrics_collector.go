package types

// MetricsCollector receives engine instrumentation events.
//
// Implementations must be safe for concurrent use. The library ships a
// no-op collector (default) and a Prometheus-backed collector.
type MetricsCollector interface {
	// IncCacheHit counts a bundle-table resolution served from cache.
	IncCacheHit()

	// IncCacheMiss counts a resolution that triggered a metadata load.
	IncCacheMiss()

	// IncCacheInvalidation counts a cache entry invalidation, whether
	// explicit or notification-driven.
	IncCacheInvalidation()

	// IncLoadRetry counts one retried metadata load attempt.
	IncLoadRetry()

	// IncLoadFailure counts a load that exhausted its retry deadline or
	// hit a permanent error.
	IncLoadFailure()

	// ObserveLoadDuration records the wall time of a completed load,
	// retries included, in seconds.
	ObserveLoadDuration(seconds float64)

	// IncSplit counts a successful bundle split computation.
	IncSplit()
}
