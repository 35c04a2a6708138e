package types

import "context"

// BundlesData is the wire form of a namespace's bundle boundary list as
// persisted inside policies. Boundaries are 0x-prefixed, zero-padded hex
// literals; this format is shared with admin tooling and must not change.
type BundlesData struct {
	// Boundaries is the ordered boundary sequence, numBundles+1 entries.
	Boundaries []string `json:"boundaries"`

	// NumBundles is the bundle count implied by Boundaries.
	NumBundles int `json:"numBundles"`
}

// LocalPolicy is the persisted per-namespace bundle configuration,
// distinct from the namespace-wide default policy.
type LocalPolicy struct {
	Bundles BundlesData `json:"bundles"`
}

// LocalPolicyWithVersion pairs a local policy with the metadata version
// it was read or created at. The version is the compare-and-swap token
// for subsequent writes.
type LocalPolicyWithVersion struct {
	Policy  LocalPolicy
	Version int64
}

// Notification is a change event pushed by the metadata store. Path
// follows the /admin/policies/<namespace>/local-policies convention.
type Notification struct {
	Path string
}

// MetadataGateway is the async key-value interface over persisted bundle
// policies. Implementations classify failures by wrapping them in
// ErrTransientMetadata (retryable) or ErrPermanentMetadata (not).
//
// All methods are safe for concurrent use.
type MetadataGateway interface {
	// ReadLocalPolicy reads the namespace's persisted local policy.
	// Returns (nil, nil) when no local policy exists yet.
	ReadLocalPolicy(ctx context.Context, namespace string) (*LocalPolicyWithVersion, error)

	// CreateLocalPolicy persists the local policy if none exists yet.
	// When another writer has created it concurrently, the existing
	// policy and its version are returned instead; either way the caller
	// receives the winning policy.
	CreateLocalPolicy(ctx context.Context, namespace string, policy LocalPolicy) (*LocalPolicyWithVersion, error)

	// WriteLocalPolicy replaces the local policy, gated on the expected
	// version. A version mismatch fails with ErrConflict.
	WriteLocalPolicy(ctx context.Context, namespace string, policy LocalPolicy, expectedVersion int64) (int64, error)

	// ReadDefaultPolicy reads the namespace-wide default bundle count.
	// The second return value is false when no default policy exists.
	ReadDefaultPolicy(ctx context.Context, namespace string) (int, bool, error)

	// Watch returns a channel of change notifications for policy paths.
	// The channel is closed when ctx is canceled or the underlying
	// watcher stops.
	Watch(ctx context.Context) (<-chan Notification, error)
}

// BundleStats is the per-bundle load summary exposed by a load manager.
type BundleStats struct {
	// TopicCount is the number of topics currently homed in the bundle.
	TopicCount int64

	// MsgThroughput is the long-term aggregate message throughput of the
	// bundle in bytes per second.
	MsgThroughput float64
}

// LoadManager exposes per-bundle load statistics. It is an optional
// collaborator: when absent, throughput-weighted selection falls back to
// topic-count selection.
type LoadManager interface {
	// BundleStats returns the stats for a bundle key of the form
	// "<namespace>/<range>". The second return value is false when the
	// load manager has no data for the bundle.
	BundleStats(bundleKey string) (BundleStats, bool)
}

// TopicLister lists the persistent topics of a namespace. Iteration
// order of the returned slice is implementation-defined; topic-count
// selection ties are broken by that order.
type TopicLister interface {
	ListPersistentTopics(ctx context.Context, namespace string) ([]string, error)
}
