package nsbundle

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/arloliu/nsbundle/internal/cache"
	"github.com/arloliu/nsbundle/internal/hash"
	"github.com/arloliu/nsbundle/internal/logger"
	"github.com/arloliu/nsbundle/internal/metrics"
	"github.com/arloliu/nsbundle/metadata"
	"github.com/arloliu/nsbundle/types"
)

// Engine is the bundle partitioning and assignment façade.
//
// It resolves the owning bundle of a topic from a stable hash, caches
// each namespace's bundle table with watch-driven invalidation, and
// computes online splits of hot bundles.
//
// Thread Safety:
//   - All public methods are safe for concurrent use
//   - No lock is held across metadata I/O
//   - Bundle tables are immutable and swapped wholesale
//
// Lifecycle:
//   - Create with New()
//   - Call Start() to begin consuming invalidation notifications
//   - Call Stop() for graceful shutdown
//
// The engine never writes metadata except for the lazy bootstrap of a
// namespace's local policy (create-if-absent). Persisting a split's
// resulting table is the caller's responsibility, gated on the source
// table's version via MetadataGateway.WriteLocalPolicy.
type Engine struct {
	cfg     Config
	gateway MetadataGateway

	// Optional dependencies
	hashFunc    hash.Func
	loadManager LoadManager
	topicLister TopicLister
	metrics     MetricsCollector
	logger      Logger

	cache *cache.Cache

	// Lifecycle management
	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an Engine instance with the provided configuration.
//
// Returns a concrete *Engine struct following the "accept interfaces,
// return structs" principle. Consumers can define their own interfaces
// for testing if needed.
//
// Parameters:
//   - cfg: Runtime configuration with parsed durations
//   - gateway: Metadata gateway over the persisted policies
//   - opts: Optional configuration (hash function, collaborators,
//     metrics, logger)
//
// Returns:
//   - *Engine: Initialized engine instance
//   - error: Validation error if configuration is invalid
//
// Example:
//
//	cfg := nsbundle.DefaultConfig()
//	engine, err := nsbundle.New(&cfg, gw, nsbundle.WithLogger(log))
func New(cfg *Config, gateway MetadataGateway, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if gateway == nil {
		return nil, ErrMetadataGatewayRequired
	}

	options := engineOptions{
		hashFunc: hash.XXH3Lower32,
		metrics:  metrics.NewNop(),
		logger:   logger.NewNop(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	e := &Engine{
		cfg:         *cfg,
		gateway:     gateway,
		hashFunc:    options.hashFunc,
		loadManager: options.loadManager,
		topicLister: options.topicLister,
		metrics:     options.metrics,
		logger:      options.logger,
	}

	e.cache = cache.New(cache.Config{
		InitialBackoff: cfg.LoadRetryInitialBackoff,
		MaxBackoff:     cfg.LoadRetryMaxBackoff,
		Deadline:       cfg.LoadRetryDeadline,
	}, e.loadBundleTable, options.logger, options.metrics)

	return e, nil
}

// Start begins consuming metadata change notifications. Bundle lookups
// work before Start, but cache entries only converge on external policy
// changes once the notification consumer is running.
//
// Parameters:
//   - ctx: Bounds the watch subscription setup
//
// Returns:
//   - error: ErrAlreadyStarted, or a watch subscription failure
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	notifications, err := e.gateway.Watch(runCtx)
	if err != nil {
		cancel()
		e.started.Store(false)

		return fmt.Errorf("subscribe to metadata notifications: %w", err)
	}
	e.cancel = cancel

	e.wg.Add(1)
	go e.consumeNotifications(runCtx, notifications)

	e.logger.Info("bundle engine started")

	return nil
}

// Stop shuts down the notification consumer and cancels in-flight
// cache loads. Stop on a never-started engine still releases the cache,
// since lookups may have spawned loads without Start, but reports
// ErrNotStarted; the engine is not usable afterwards.
//
// Parameters:
//   - ctx: Bounds how long to wait for goroutines to drain
//
// Returns:
//   - error: ErrNotStarted, or ctx expiry before shutdown completed
func (e *Engine) Stop(ctx context.Context) error {
	if !e.started.CompareAndSwap(true, false) {
		e.cache.Close()

		return ErrNotStarted
	}

	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		e.cache.Close()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("bundle engine stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine shutdown incomplete: %w", ctx.Err())
	}
}

// HashKey returns the stable hash of a topic full name within the
// bundle hash space.
func (e *Engine) HashKey(topicFullName string) uint64 {
	return e.hashFunc(topicFullName)
}

// BundleOf resolves the bundle owning a topic: the topic's namespace
// table is fetched (loading on cache miss), the topic name hashed, and
// the containing range found by binary search.
//
// Parameters:
//   - ctx: Bounds the caller's wait on the table load
//   - topicFullName: Fully qualified topic name, with or without a
//     "<domain>://" prefix, e.g. "persistent://tenant/ns/topic"
//
// Returns:
//   - *Bundle: The owning bundle
//   - error: ErrNotFound when the namespace's table cannot be loaded
//     (the underlying cause remains matchable in the chain)
func (e *Engine) BundleOf(ctx context.Context, topicFullName string) (*Bundle, error) {
	namespace, err := namespaceOfTopic(topicFullName)
	if err != nil {
		return nil, err
	}

	table, err := e.cache.Get(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("%w: bundle table for namespace %q: %w", ErrNotFound, namespace, err)
	}

	return table.FindBundle(e.hashFunc(topicFullName)), nil
}

// BundlesOf returns the namespace's complete bundle table, loading it
// on cache miss.
func (e *Engine) BundlesOf(ctx context.Context, namespace string) (*BundleTable, error) {
	return e.cache.Get(ctx, namespace)
}

// BundlesIfPresent returns the namespace's table only if already
// cached. Never blocks and never triggers a metadata load.
func (e *Engine) BundlesIfPresent(namespace string) (*BundleTable, bool) {
	return e.cache.GetIfPresent(namespace)
}

// FullBundle returns a bundle spanning the namespace's entire hash
// space.
func (e *Engine) FullBundle(ctx context.Context, namespace string) (*Bundle, error) {
	table, err := e.cache.Get(ctx, namespace)
	if err != nil {
		return nil, err
	}

	return table.FullBundle(), nil
}

// BundleFromRange reconstructs a bundle from its external range
// identifier, e.g. "0x00000000_0x40000000". The range is not checked
// against the namespace's current table; use BundlesOf for that.
func (e *Engine) BundleFromRange(namespace, bundleRange string) (*Bundle, error) {
	lower, upper, err := types.ParseRange(bundleRange)
	if err != nil {
		return nil, err
	}

	return types.NewBundle(namespace, lower, upper)
}

// InvalidateBundleCache drops the namespace's cached table; the next
// lookup reloads from metadata. Idempotent.
func (e *Engine) InvalidateBundleCache(namespace string) {
	e.cache.Invalidate(namespace)
}

// BundleWithHighestTopicCount returns the bundle holding the plurality
// of the namespace's persistent topics.
//
// Ties break to the first bundle reaching the running maximum in the
// topic list's iteration order. That order is implementation-defined by
// the topic lister, so the result is not guaranteed stable across runs
// with different topic orderings.
//
// Returns:
//   - *Bundle: Bundle with the most topics
//   - error: ErrInvalidOperation when no topic lister is wired,
//     ErrNotFound when the namespace has no persistent topics
func (e *Engine) BundleWithHighestTopicCount(ctx context.Context, namespace string) (*Bundle, error) {
	if e.topicLister == nil {
		return nil, fmt.Errorf("%w: no topic lister configured", ErrInvalidOperation)
	}

	ctx, cancel := e.selectionContext(ctx)
	defer cancel()

	topics, err := e.topicLister.ListPersistentTopics(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("list persistent topics for %q: %w", namespace, err)
	}

	table, err := e.cache.Get(ctx, namespace)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, table.NumBundles())
	var result *Bundle
	maxCount := 0
	for _, topic := range topics {
		bundle := table.FindBundle(e.hashFunc(topic))
		counts[bundle.Range()]++
		if counts[bundle.Range()] > maxCount {
			maxCount = counts[bundle.Range()]
			result = bundle
		}
	}
	if result == nil {
		return nil, fmt.Errorf("%w: namespace %q has no persistent topics", ErrNotFound, namespace)
	}

	return result, nil
}

// BundleWithHighestThroughput returns the bundle with the highest
// long-term aggregate message throughput among bundles holding at least
// one topic, according to the wired load manager. Falls back to
// BundleWithHighestTopicCount when no load manager is configured.
//
// Returns:
//   - *Bundle: Selected bundle
//   - error: ErrNotFound when the load manager has no qualifying data
func (e *Engine) BundleWithHighestThroughput(ctx context.Context, namespace string) (*Bundle, error) {
	if e.loadManager == nil {
		return e.BundleWithHighestTopicCount(ctx, namespace)
	}

	table, err := e.cache.Get(ctx, namespace)
	if err != nil {
		return nil, err
	}

	maxThroughput := -1.0
	var result *Bundle
	for _, bundle := range table.Bundles() {
		stats, ok := e.loadManager.BundleStats(bundle.String())
		if !ok || stats.TopicCount == 0 {
			continue
		}
		if stats.MsgThroughput > maxThroughput {
			maxThroughput = stats.MsgThroughput
			result = bundle
		}
	}
	if result == nil {
		return nil, fmt.Errorf("%w: no bundle with topics and throughput data in namespace %q", ErrNotFound, namespace)
	}

	return result, nil
}

// CanSplitBundle reports whether a bundle spans more than one hash
// value and can therefore be subdivided.
func (e *Engine) CanSplitBundle(bundle *Bundle) bool {
	return bundle != nil && bundle.CanSplit()
}

// SplitBundle subdivides the target bundle within its namespace's
// current table.
//
// With no explicit boundaries, the target's range is cut into
// numBundles evenly sized segments (integer division; the final implied
// segment absorbs any rounding remainder since the upper endpoint is
// copied unchanged). With explicit boundaries, each must lie strictly
// inside the target's open range, and numBundles is overridden to
// len(splitBoundaries)+1.
//
// The resulting table carries the source table's version as provenance;
// persisting it is the caller's responsibility, typically through a
// compare-and-swap write keyed on that version.
//
// Parameters:
//   - ctx: Bounds the table load
//   - target: Bundle to split; must match the current table verbatim
//   - numBundles: Number of resulting child bundles (>= 2)
//   - splitBoundaries: Optional explicit interior boundaries
//
// Returns:
//   - *BundleTable: The namespace's new table with the split applied
//   - []*Bundle: The child bundles spanning the split region, ascending
//   - error: ErrInvalidOperation on precondition violations, ErrConflict
//     when the target no longer exists in the current table
func (e *Engine) SplitBundle(ctx context.Context, target *Bundle, numBundles int, splitBoundaries []uint64) (*BundleTable, []*Bundle, error) {
	if target == nil {
		return nil, nil, fmt.Errorf("%w: can't split nil bundle", ErrInvalidOperation)
	}
	if !target.CanSplit() {
		return nil, nil, fmt.Errorf("%w: bundle %s can't be split further since range not larger than 1",
			ErrInvalidOperation, target)
	}

	lower, upper := target.LowerEndpoint(), target.UpperEndpoint()

	boundaries := slices.Clone(splitBoundaries)
	if len(boundaries) > 0 {
		slices.Sort(boundaries)
		if boundaries[0] <= lower || boundaries[len(boundaries)-1] >= upper {
			return nil, nil, fmt.Errorf("%w: split boundaries must lie strictly inside bundle %s",
				ErrInvalidOperation, target)
		}
		numBundles = len(boundaries) + 1
	}
	if numBundles < 2 {
		return nil, nil, fmt.Errorf("%w: split requires at least 2 bundles, got %d", ErrInvalidOperation, numBundles)
	}
	if upper-lower < uint64(numBundles) {
		return nil, nil, fmt.Errorf("%w: bundle %s is too narrow for %d sub-bundles",
			ErrInvalidOperation, target, numBundles)
	}

	table, err := e.cache.Get(ctx, target.Namespace())
	if err != nil {
		return nil, nil, err
	}

	source := table.Boundaries()
	lastIndex := len(source) - 1
	parts := make([]uint64, len(source)+numBundles-1)
	pos := 0
	splitIdx := -1
	for i := 0; i < lastIndex; i++ {
		if source[i] == lower && source[i+1] == upper {
			splitIdx = i
			parts[pos] = source[i]
			pos++
			if len(boundaries) == 0 {
				segSize := (upper - lower) / uint64(numBundles)
				cur := lower + segSize
				for range numBundles - 1 {
					parts[pos] = cur
					pos++
					cur += segSize
				}
			} else {
				for _, b := range boundaries {
					parts[pos] = b
					pos++
				}
			}
		} else {
			parts[pos] = source[i]
			pos++
		}
	}
	parts[pos] = source[lastIndex]

	if splitIdx == -1 {
		return nil, nil, fmt.Errorf("%w: bundle %s no longer matches the current table of namespace %q",
			ErrConflict, target, target.Namespace())
	}

	var version *int64
	if v, ok := table.Version(); ok {
		version = &v
	}
	newTable, err := types.NewBundleTable(target.Namespace(), parts, version)
	if err != nil {
		return nil, nil, err
	}

	children := newTable.Bundles()[splitIdx : splitIdx+numBundles]

	e.metrics.IncSplit()
	e.logger.Info("computed bundle split",
		"namespace", target.Namespace(),
		"bundle", target.Range(),
		"children", numBundles,
	)

	return newTable, children, nil
}

// consumeNotifications is the dedicated goroutine draining metadata
// change notifications into cache invalidations.
func (e *Engine) consumeNotifications(ctx context.Context, notifications <-chan Notification) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				e.logger.Warn("metadata notification stream closed")
				return
			}
			e.handleNotification(n)
		}
	}
}

// handleNotification invalidates the cache entry addressed by a
// local-policy change notification. Non-policy paths are ignored.
func (e *Engine) handleNotification(n Notification) {
	if !metadata.IsLocalPoliciesPath(n.Path) {
		return
	}

	namespace := metadata.NamespaceFromPoliciesPath(n.Path)
	if namespace == "" {
		e.logger.Error("failed to resolve namespace from policy path", "path", n.Path)
		return
	}

	e.logger.Info("policy updated, refreshing bundle cache", "namespace", namespace)
	e.cache.Invalidate(namespace)
}

// loadBundleTable is the cache's load function: read the local policy,
// or bootstrap one from the namespace default when absent.
func (e *Engine) loadBundleTable(ctx context.Context, namespace string) (*types.BundleTable, error) {
	e.logger.Debug("loading bundle table", "namespace", namespace)

	local, err := e.gateway.ReadLocalPolicy(ctx, namespace)
	if err != nil {
		return nil, err
	}
	if local != nil {
		return tableFromPolicy(namespace, local.Policy, &local.Version)
	}

	// No local policy yet: derive the initial uniform table from the
	// namespace-wide default and persist it create-if-absent.
	numBundles, exists, err := e.gateway.ReadDefaultPolicy(ctx, namespace)
	if err != nil {
		return nil, err
	}
	if !exists {
		// Namespace has no persisted policies at all; serve an
		// ephemeral, uncommitted default table.
		table, err := types.NewUniformBundleTable(namespace, e.cfg.DefaultNumBundles)
		if err != nil {
			return nil, err
		}
		e.logger.Debug("serving ephemeral default bundle table", "namespace", namespace)

		return table, nil
	}
	if numBundles <= 0 {
		numBundles = e.cfg.DefaultNumBundles
	}

	table, err := types.NewUniformBundleTable(namespace, numBundles)
	if err != nil {
		return nil, err
	}

	winner, err := e.gateway.CreateLocalPolicy(ctx, namespace, policyFromTable(table))
	if err != nil {
		return nil, err
	}

	// Use the winning policy: a concurrent creator's boundaries take
	// precedence over our own uniform table.
	return tableFromPolicy(namespace, winner.Policy, &winner.Version)
}

// selectionContext applies the configured selection timeout when the
// caller's context carries no deadline.
func (e *Engine) selectionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, e.cfg.SelectionTimeout)
}

// tableFromPolicy deserializes a persisted policy's boundary list into
// a bundle table at the given version. Malformed persisted data is a
// permanent metadata failure.
func tableFromPolicy(namespace string, policy types.LocalPolicy, version *int64) (*types.BundleTable, error) {
	raw := policy.Bundles.Boundaries
	boundaries := make([]uint64, len(raw))
	for i, s := range raw {
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid boundary %q in local policy for %q: %w",
				types.ErrPermanentMetadata, s, namespace, err)
		}
		boundaries[i] = v
	}

	table, err := types.NewBundleTable(namespace, boundaries, version)
	if err != nil {
		return nil, fmt.Errorf("%w: local policy for %q: %w", types.ErrPermanentMetadata, namespace, err)
	}

	return table, nil
}

// policyFromTable renders a table as its persisted wire form.
func policyFromTable(table *types.BundleTable) types.LocalPolicy {
	return types.LocalPolicy{Bundles: types.BundlesData{
		Boundaries: table.BoundaryStrings(),
		NumBundles: table.NumBundles(),
	}}
}

// namespaceOfTopic extracts the namespace from a fully qualified topic
// name, tolerating an optional "<domain>://" prefix.
func namespaceOfTopic(topicFullName string) (string, error) {
	rest := topicFullName
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}

	idx := strings.LastIndex(rest, "/")
	if idx <= 0 {
		return "", fmt.Errorf("%w: topic %q has no namespace", ErrInvalidOperation, topicFullName)
	}

	return rest[:idx], nil
}
