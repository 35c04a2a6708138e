package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/nsbundle/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	cacheOps      *prometheus.CounterVec
	loadRetries   prometheus.Counter
	loadFailures  prometheus.Counter
	loadDuration  prometheus.Histogram
	splitsTotal   prometheus.Counter
	invalidations prometheus.Counter
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "nsbundle" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "nsbundle"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.cacheOps = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "bundle_cache",
			Name:      "operations_total",
			Help:      "Bundle cache operations by result (hit, miss).",
		}, []string{"result"})

		p.invalidations = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "bundle_cache",
			Name:      "invalidations_total",
			Help:      "Bundle cache entries invalidated, explicit or notification-driven.",
		})

		p.loadRetries = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "bundle_cache",
			Name:      "load_retries_total",
			Help:      "Retried bundle table load attempts after transient metadata failures.",
		})

		p.loadFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "bundle_cache",
			Name:      "load_failures_total",
			Help:      "Bundle table loads that exhausted retries or hit a permanent failure.",
		})

		p.loadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "bundle_cache",
			Name:      "load_duration_seconds",
			Help:      "Wall time of completed bundle table loads, retries included.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		})

		p.splitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "bundle_splits_total",
			Help:      "Successful bundle split computations.",
		})

		for _, c := range []prometheus.Collector{
			p.cacheOps, p.invalidations, p.loadRetries, p.loadFailures, p.loadDuration, p.splitsTotal,
		} {
			if err := p.reg.Register(c); err != nil {
				var are prometheus.AlreadyRegisteredError
				if !errors.As(err, &are) {
					panic(err)
				}
			}
		}
	})
}

// IncCacheHit counts a cache resolution served without a metadata load.
func (p *PrometheusCollector) IncCacheHit() {
	p.ensureRegistered()
	p.cacheOps.WithLabelValues("hit").Inc()
}

// IncCacheMiss counts a cache resolution that triggered a metadata load.
func (p *PrometheusCollector) IncCacheMiss() {
	p.ensureRegistered()
	p.cacheOps.WithLabelValues("miss").Inc()
}

// IncCacheInvalidation counts an invalidated cache entry.
func (p *PrometheusCollector) IncCacheInvalidation() {
	p.ensureRegistered()
	p.invalidations.Inc()
}

// IncLoadRetry counts one retried load attempt.
func (p *PrometheusCollector) IncLoadRetry() {
	p.ensureRegistered()
	p.loadRetries.Inc()
}

// IncLoadFailure counts an exhausted or permanently failed load.
func (p *PrometheusCollector) IncLoadFailure() {
	p.ensureRegistered()
	p.loadFailures.Inc()
}

// ObserveLoadDuration records the wall time of a completed load.
func (p *PrometheusCollector) ObserveLoadDuration(seconds float64) {
	p.ensureRegistered()
	p.loadDuration.Observe(seconds)
}

// IncSplit counts a successful bundle split computation.
func (p *PrometheusCollector) IncSplit() {
	p.ensureRegistered()
	p.splitsTotal.Inc()
}
