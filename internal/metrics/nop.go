// Package metrics provides MetricsCollector implementations for the
// nsbundle library.
package metrics

import "github.com/arloliu/nsbundle/types"

// NopMetrics is a no-op metrics collector, the default when no collector
// is injected.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// IncCacheHit is a no-op.
func (n *NopMetrics) IncCacheHit() {}

// IncCacheMiss is a no-op.
func (n *NopMetrics) IncCacheMiss() {}

// IncCacheInvalidation is a no-op.
func (n *NopMetrics) IncCacheInvalidation() {}

// IncLoadRetry is a no-op.
func (n *NopMetrics) IncLoadRetry() {}

// IncLoadFailure is a no-op.
func (n *NopMetrics) IncLoadFailure() {}

// ObserveLoadDuration is a no-op.
func (n *NopMetrics) ObserveLoadDuration(_ /* seconds */ float64) {}

// IncSplit is a no-op.
func (n *NopMetrics) IncSplit() {}
