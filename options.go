package nsbundle

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/nsbundle/internal/hash"
	"github.com/arloliu/nsbundle/internal/logging"
	"github.com/arloliu/nsbundle/internal/metrics"
)

// Option configures an Engine with optional dependencies.
type Option func(*engineOptions)

// engineOptions holds optional Engine configuration.
type engineOptions struct {
	hashFunc    hash.Func
	loadManager LoadManager
	topicLister TopicLister
	metrics     MetricsCollector
	logger      Logger
}

// HashFunc maps a topic full name onto the bundle hash space
// [FirstBoundary, LastBoundary]. It must be deterministic and stable
// across process restarts on every node of the fleet: changing it on a
// running deployment is a breaking change requiring a full re-bundling
// of every namespace.
type HashFunc = hash.Func

// WithHashFunc sets the topic hash function. The default is the lower
// 32 bits of XXH3. Use nsbundle.CRC32Hash for deployments whose
// persisted assignments were produced with a CRC-based hash.
//
// Parameters:
//   - fn: Hash function
//
// Returns:
//   - Option: Functional option for New
func WithHashFunc(fn HashFunc) Option {
	return func(o *engineOptions) {
		o.hashFunc = fn
	}
}

// WithLoadManager wires an external load manager providing per-bundle
// throughput statistics. Without it, BundleWithHighestThroughput falls
// back to BundleWithHighestTopicCount.
//
// Parameters:
//   - lm: LoadManager implementation
//
// Returns:
//   - Option: Functional option for New
func WithLoadManager(lm LoadManager) Option {
	return func(o *engineOptions) {
		o.loadManager = lm
	}
}

// WithTopicLister wires the collaborator that lists a namespace's
// persistent topics, required by BundleWithHighestTopicCount.
//
// Parameters:
//   - tl: TopicLister implementation
//
// Returns:
//   - Option: Functional option for New
func WithTopicLister(tl TopicLister) Option {
	return func(o *engineOptions) {
		o.topicLister = tl
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for New
//
// Example:
//
//	collector := nsbundle.NewPrometheusMetrics(nil, "broker")
//	engine, err := nsbundle.New(&cfg, gw, nsbundle.WithMetrics(collector))
func WithMetrics(mc MetricsCollector) Option {
	return func(o *engineOptions) {
		o.metrics = mc
	}
}

// WithLogger sets a logger. The default discards all output.
//
// Parameters:
//   - logger: Logger implementation
//
// Returns:
//   - Option: Functional option for New
func WithLogger(logger Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// NewSlogLogger adapts a *slog.Logger to the Logger interface. A nil
// logger uses slog.Default().
func NewSlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		return logging.NewSlogDefault()
	}

	return logging.NewSlog(logger)
}

// NewPrometheusMetrics creates a MetricsCollector backed by Prometheus.
// A nil registerer uses prometheus.DefaultRegisterer; an empty
// namespace defaults to "nsbundle".
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) MetricsCollector {
	return metrics.NewPrometheus(reg, namespace)
}

// XXH3Hash is the default topic hash function: the lower 32 bits of the
// 64-bit XXH3 digest.
var XXH3Hash HashFunc = hash.XXH3Lower32

// CRC32Hash hashes topic names with the IEEE CRC-32 polynomial.
var CRC32Hash HashFunc = hash.CRC32
