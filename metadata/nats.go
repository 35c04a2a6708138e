// Package metadata implements the MetadataGateway over NATS JetStream
// key-value buckets.
//
// Two buckets back the gateway: one holding per-namespace local policies
// (the persisted bundle boundary lists) and one holding namespace-wide
// policies (the default bundle count). KV revisions serve as the
// optimistic-concurrency versions, and the local-policies bucket watcher
// feeds the engine's cache-invalidation notifications.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/nsbundle/internal/kvutil"
	"github.com/arloliu/nsbundle/internal/logger"
	"github.com/arloliu/nsbundle/internal/natsutil"
	"github.com/arloliu/nsbundle/types"
)

// Config configures the NATS-backed metadata gateway.
type Config struct {
	// LocalPoliciesBucket is the KV bucket holding per-namespace local
	// policies keyed by encoded namespace name.
	LocalPoliciesBucket string `yaml:"localPoliciesBucket"`

	// PoliciesBucket is the KV bucket holding namespace-wide policies
	// (the default bundle configuration).
	PoliciesBucket string `yaml:"policiesBucket"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LocalPoliciesBucket: "ns-local-policies",
		PoliciesBucket:      "ns-policies",
	}
}

// Validate checks the configuration for missing fields.
func (c *Config) Validate() error {
	if c.LocalPoliciesBucket == "" {
		return fmt.Errorf("%w: localPoliciesBucket is required", types.ErrInvalidConfig)
	}
	if c.PoliciesBucket == "" {
		return fmt.Errorf("%w: policiesBucket is required", types.ErrInvalidConfig)
	}

	return nil
}

// NamespacePolicy is the wire form of a namespace-wide policy. Only the
// bundle configuration matters to this gateway.
type NamespacePolicy struct {
	Bundles types.BundlesData `json:"bundles"`
}

// NATSGateway implements types.MetadataGateway over NATS JetStream KV.
//
// All methods are safe for concurrent use. Failures are classified into
// the transient/permanent taxonomy before being returned.
type NATSGateway struct {
	localKV  jetstream.KeyValue
	globalKV jetstream.KeyValue
	logger   types.Logger
}

// Compile-time assertion that NATSGateway implements MetadataGateway.
var _ types.MetadataGateway = (*NATSGateway)(nil)

// NewNATSGateway creates the gateway, creating or opening its KV buckets.
//
// Parameters:
//   - ctx: Bounds bucket creation
//   - nc: NATS connection
//   - cfg: Bucket configuration
//   - log: Structured logger (nil uses a no-op logger)
//
// Returns:
//   - *NATSGateway: Ready gateway
//   - error: Validation or bucket-creation failure
func NewNATSGateway(ctx context.Context, nc *nats.Conn, cfg Config, log types.Logger) (*NATSGateway, error) {
	if nc == nil {
		return nil, fmt.Errorf("%w: NATS connection is required", types.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	localKV, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.LocalPoliciesBucket,
		Description: "per-namespace bundle local policies",
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("ensure local policies bucket: %w", err)
	}

	globalKV, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.PoliciesBucket,
		Description: "namespace-wide policies",
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("ensure policies bucket: %w", err)
	}

	return &NATSGateway{localKV: localKV, globalKV: globalKV, logger: log}, nil
}

// ReadLocalPolicy reads the namespace's persisted local policy.
// Returns (nil, nil) when no local policy exists.
func (g *NATSGateway) ReadLocalPolicy(ctx context.Context, namespace string) (*types.LocalPolicyWithVersion, error) {
	entry, err := g.localKV.Get(ctx, encodeNamespace(namespace))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil
		}

		return nil, natsutil.ClassifyError(fmt.Errorf("read local policy for %q: %w", namespace, err))
	}

	policy, err := decodeLocalPolicy(namespace, entry.Value())
	if err != nil {
		return nil, err
	}

	return &types.LocalPolicyWithVersion{
		Policy:  *policy,
		Version: int64(entry.Revision()), //nolint:gosec // KV revisions fit in int64
	}, nil
}

// CreateLocalPolicy persists the local policy if none exists yet. When a
// concurrent writer won the create race, the existing policy and its
// version are returned instead.
func (g *NATSGateway) CreateLocalPolicy(ctx context.Context, namespace string, policy types.LocalPolicy) (*types.LocalPolicyWithVersion, error) {
	data, err := json.Marshal(policy)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal local policy for %q: %w", types.ErrPermanentMetadata, namespace, err)
	}

	rev, err := g.localKV.Create(ctx, encodeNamespace(namespace), data)
	if err == nil {
		g.logger.Info("created namespace local policy",
			"namespace", namespace,
			"bundles", policy.Bundles.NumBundles,
			"version", rev,
		)

		return &types.LocalPolicyWithVersion{
			Policy:  policy,
			Version: int64(rev), //nolint:gosec // KV revisions fit in int64
		}, nil
	}

	if errors.Is(err, jetstream.ErrKeyExists) {
		// Another node bootstrapped the namespace first; its policy wins.
		existing, readErr := g.ReadLocalPolicy(ctx, namespace)
		if readErr != nil {
			return nil, readErr
		}
		if existing == nil {
			// Created then deleted in between; report as transient so the
			// caller's retry path re-runs the whole load.
			return nil, fmt.Errorf("%w: local policy for %q vanished after create race", types.ErrTransientMetadata, namespace)
		}

		return existing, nil
	}

	return nil, natsutil.ClassifyError(fmt.Errorf("create local policy for %q: %w", namespace, err))
}

// WriteLocalPolicy replaces the local policy, gated on expectedVersion.
// A concurrent modification fails with types.ErrConflict.
func (g *NATSGateway) WriteLocalPolicy(ctx context.Context, namespace string, policy types.LocalPolicy, expectedVersion int64) (int64, error) {
	data, err := json.Marshal(policy)
	if err != nil {
		return 0, fmt.Errorf("%w: marshal local policy for %q: %w", types.ErrPermanentMetadata, namespace, err)
	}

	rev, err := g.localKV.Update(ctx, encodeNamespace(namespace), data, uint64(expectedVersion)) //nolint:gosec // versions originate from KV revisions
	if err != nil {
		if isWrongSequence(err) {
			return 0, fmt.Errorf("%w: local policy for %q moved past version %d", types.ErrConflict, namespace, expectedVersion)
		}

		return 0, natsutil.ClassifyError(fmt.Errorf("write local policy for %q: %w", namespace, err))
	}

	g.logger.Info("updated namespace local policy",
		"namespace", namespace,
		"bundles", policy.Bundles.NumBundles,
		"version", rev,
	)

	return int64(rev), nil //nolint:gosec // KV revisions fit in int64
}

// ReadDefaultPolicy reads the namespace-wide default bundle count. The
// second return value is false when no namespace policy exists.
func (g *NATSGateway) ReadDefaultPolicy(ctx context.Context, namespace string) (int, bool, error) {
	entry, err := g.globalKV.Get(ctx, encodeNamespace(namespace))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return 0, false, nil
		}

		return 0, false, natsutil.ClassifyError(fmt.Errorf("read default policy for %q: %w", namespace, err))
	}

	var policy NamespacePolicy
	if err := json.Unmarshal(entry.Value(), &policy); err != nil {
		return 0, false, fmt.Errorf("%w: malformed default policy for %q: %w", types.ErrPermanentMetadata, namespace, err)
	}

	return policy.Bundles.NumBundles, true, nil
}

// WriteDefaultPolicy sets the namespace-wide default bundle count. This
// is an admin-side operation; the assignment engine only reads defaults.
func (g *NATSGateway) WriteDefaultPolicy(ctx context.Context, namespace string, numBundles int) error {
	if numBundles <= 0 {
		return fmt.Errorf("%w: default bundle count must be positive, got %d", types.ErrInvalidOperation, numBundles)
	}

	data, err := json.Marshal(NamespacePolicy{Bundles: types.BundlesData{NumBundles: numBundles}})
	if err != nil {
		return fmt.Errorf("encode default policy for %q: %w", namespace, err)
	}

	if _, err := g.globalKV.Put(ctx, encodeNamespace(namespace), data); err != nil {
		return natsutil.ClassifyError(fmt.Errorf("write default policy for %q: %w", namespace, err))
	}

	return nil
}

// Watch streams change notifications for local-policy paths. The channel
// closes when ctx is canceled.
func (g *NATSGateway) Watch(ctx context.Context) (<-chan types.Notification, error) {
	watcher, err := g.localKV.WatchAll(ctx, jetstream.UpdatesOnly())
	if err != nil {
		return nil, natsutil.ClassifyError(fmt.Errorf("watch local policies: %w", err))
	}

	ch := make(chan types.Notification, 64)
	go func() {
		defer close(ch)
		defer func() {
			if err := watcher.Stop(); err != nil {
				g.logger.Warn("failed to stop local policies watcher", "error", err)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				if entry == nil {
					// Initial replay marker.
					continue
				}

				n := types.Notification{Path: LocalPoliciesPath(decodeNamespace(entry.Key()))}
				select {
				case ch <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

func decodeLocalPolicy(namespace string, data []byte) (*types.LocalPolicy, error) {
	var policy types.LocalPolicy
	if err := json.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("%w: malformed local policy for %q: %w", types.ErrPermanentMetadata, namespace, err)
	}

	return &policy, nil
}

// encodeNamespace maps a namespace name to a KV key. NATS KV keys cannot
// contain "/", so namespace separators become ".". Namespace segments
// themselves never contain dots.
func encodeNamespace(namespace string) string {
	return strings.ReplaceAll(namespace, "/", ".")
}

func decodeNamespace(key string) string {
	return strings.ReplaceAll(key, ".", "/")
}

func isWrongSequence(err error) bool {
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}

	return false
}
