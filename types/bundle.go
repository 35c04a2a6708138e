package types

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

const (
	// FirstBoundary is the lower sentinel of every namespace hash space.
	FirstBoundary uint64 = 0x00000000

	// LastBoundary is the upper sentinel of every namespace hash space.
	// The hash space is 32 bits wide, carried in a uint64 so range
	// arithmetic cannot overflow.
	LastBoundary uint64 = 0xffffffff

	// hashSpan is the width used when spacing uniform boundaries. Using
	// 1<<32 instead of LastBoundary keeps power-of-two bundle counts on
	// round boundaries (0x40000000, 0x80000000, ...).
	hashSpan uint64 = 1 << 32
)

// Bundle is one contiguous hash range of a namespace.
//
// A bundle is the unit of topic ownership assignment. The range is
// half-open [lower, upper), except when the upper endpoint is
// LastBoundary, in which case the range is closed on both ends.
//
// Bundle values are immutable and safe for concurrent use.
type Bundle struct {
	namespace string
	lower     uint64
	upper     uint64
}

// NewBundle creates a bundle for a namespace hash range.
//
// Parameters:
//   - namespace: Owning namespace identity
//   - lower: Inclusive lower endpoint
//   - upper: Upper endpoint (exclusive unless equal to LastBoundary)
//
// Returns:
//   - *Bundle: The bundle value
//   - error: ErrInvalidOperation if the range is empty, inverted, or
//     exceeds the hash space
func NewBundle(namespace string, lower, upper uint64) (*Bundle, error) {
	if namespace == "" {
		return nil, fmt.Errorf("%w: bundle requires a namespace", ErrInvalidOperation)
	}
	if lower >= upper || upper > LastBoundary {
		return nil, fmt.Errorf("%w: invalid bundle range [0x%08x, 0x%08x)", ErrInvalidOperation, lower, upper)
	}

	return &Bundle{namespace: namespace, lower: lower, upper: upper}, nil
}

// Namespace returns the namespace identity this bundle belongs to.
func (b *Bundle) Namespace() string { return b.namespace }

// LowerEndpoint returns the inclusive lower endpoint of the range.
func (b *Bundle) LowerEndpoint() uint64 { return b.lower }

// UpperEndpoint returns the upper endpoint of the range.
func (b *Bundle) UpperEndpoint() uint64 { return b.upper }

// Range returns the external range identifier, e.g. "0x00000000_0x40000000".
//
// This is a stable wire format shared with the metadata store and admin
// tooling. Do not change the radix or padding.
func (b *Bundle) Range() string {
	return FormatRange(b.lower, b.upper)
}

// String returns "<namespace>/<range>", the key used by load-manager
// bundle statistics.
func (b *Bundle) String() string {
	return b.namespace + "/" + b.Range()
}

// Contains reports whether the given hash value falls inside this bundle.
//
// The upper endpoint is exclusive except for the top bundle, whose range
// is closed at LastBoundary.
func (b *Bundle) Contains(hash uint64) bool {
	if hash < b.lower {
		return false
	}
	if b.upper == LastBoundary {
		return hash <= b.upper
	}

	return hash < b.upper
}

// CanSplit reports whether this bundle spans more than one hash value.
// A single-value range is indivisible.
func (b *Bundle) CanSplit() bool {
	return b.upper-b.lower > 1
}

// IsFull reports whether this bundle covers the entire hash space.
func (b *Bundle) IsFull() bool {
	return b.lower == FirstBoundary && b.upper == LastBoundary
}

// Equal reports whether two bundles describe the same range of the same
// namespace.
func (b *Bundle) Equal(o *Bundle) bool {
	if b == nil || o == nil {
		return b == o
	}

	return b.namespace == o.namespace && b.lower == o.lower && b.upper == o.upper
}

// FormatRange renders a boundary pair in the external range format.
func FormatRange(lower, upper uint64) string {
	return fmt.Sprintf("0x%08x_0x%08x", lower, upper)
}

// ParseRange parses an external range identifier back into its boundary
// pair. The accepted format is two 0x-prefixed hex literals joined by "_".
//
// Returns:
//   - uint64: Lower endpoint
//   - uint64: Upper endpoint
//   - error: ErrInvalidOperation on malformed input
func ParseRange(r string) (uint64, uint64, error) {
	lowerStr, upperStr, ok := strings.Cut(r, "_")
	if !ok {
		return 0, 0, fmt.Errorf("%w: invalid bundle range %q", ErrInvalidOperation, r)
	}

	lower, err := strconv.ParseUint(lowerStr, 0, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid lower boundary %q: %v", ErrInvalidOperation, lowerStr, err)
	}
	upper, err := strconv.ParseUint(upperStr, 0, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid upper boundary %q: %v", ErrInvalidOperation, upperStr, err)
	}
	if upper <= lower {
		return 0, 0, fmt.Errorf("%w: invalid bundle range %q: empty interval", ErrInvalidOperation, r)
	}

	return lower, upper, nil
}

// FullRange returns the range identifier covering the whole hash space.
func FullRange() string {
	return FormatRange(FirstBoundary, LastBoundary)
}

// IsFullRange reports whether a range identifier covers the whole hash space.
func IsFullRange(r string) bool {
	return r == FullRange()
}

// BundleTable is the complete, ordered set of bundles of one namespace.
//
// A table owns N+1 strictly increasing boundaries implying N bundles. The
// first boundary is always FirstBoundary and the last is always
// LastBoundary; a table violating this is unroutable and is rejected at
// construction.
//
// Tables are immutable. A split produces a new table; readers always
// observe either the old or the new table, never a partially updated one.
type BundleTable struct {
	namespace  string
	boundaries []uint64
	bundles    []*Bundle
	version    *int64
}

// NewBundleTable constructs a table from an explicit boundary sequence.
//
// Parameters:
//   - namespace: Namespace identity
//   - boundaries: Strictly increasing sequence from FirstBoundary to
//     LastBoundary (at least two entries)
//   - version: Metadata version the boundaries were read at, or nil for
//     an ephemeral table with no persisted local policy
//
// Returns:
//   - *BundleTable: The immutable table
//   - error: ErrInvalidOperation if the sequence violates the table invariant
func NewBundleTable(namespace string, boundaries []uint64, version *int64) (*BundleTable, error) {
	if namespace == "" {
		return nil, fmt.Errorf("%w: bundle table requires a namespace", ErrInvalidOperation)
	}
	if len(boundaries) < 2 {
		return nil, fmt.Errorf("%w: bundle table requires at least two boundaries, got %d",
			ErrInvalidOperation, len(boundaries))
	}
	if boundaries[0] != FirstBoundary || boundaries[len(boundaries)-1] != LastBoundary {
		return nil, fmt.Errorf("%w: bundle table must span [0x%08x, 0x%08x], got [0x%08x, 0x%08x]",
			ErrInvalidOperation, FirstBoundary, LastBoundary, boundaries[0], boundaries[len(boundaries)-1])
	}
	for i := 1; i < len(boundaries); i++ {
		if boundaries[i] <= boundaries[i-1] {
			return nil, fmt.Errorf("%w: bundle boundaries must be strictly increasing at index %d (0x%08x <= 0x%08x)",
				ErrInvalidOperation, i, boundaries[i], boundaries[i-1])
		}
	}

	owned := slices.Clone(boundaries)
	bundles := make([]*Bundle, len(owned)-1)
	for i := range bundles {
		bundles[i] = &Bundle{namespace: namespace, lower: owned[i], upper: owned[i+1]}
	}

	var ver *int64
	if version != nil {
		v := *version
		ver = &v
	}

	return &BundleTable{
		namespace:  namespace,
		boundaries: owned,
		bundles:    bundles,
		version:    ver,
	}, nil
}

// NewUniformBundleTable constructs a table with numBundles evenly spaced
// bundles across the whole hash space. This is the shape of the initial
// table created from a namespace's default policy.
//
// The resulting table carries no version; the caller decides whether to
// persist it.
func NewUniformBundleTable(namespace string, numBundles int) (*BundleTable, error) {
	if numBundles <= 0 {
		return nil, fmt.Errorf("%w: bundle count must be positive, got %d", ErrInvalidOperation, numBundles)
	}
	if uint64(numBundles) > hashSpan {
		return nil, fmt.Errorf("%w: bundle count %d exceeds hash space", ErrInvalidOperation, numBundles)
	}

	boundaries := make([]uint64, numBundles+1)
	segSize := hashSpan / uint64(numBundles)
	for i := 1; i < numBundles; i++ {
		boundaries[i] = uint64(i) * segSize
	}
	boundaries[0] = FirstBoundary
	boundaries[numBundles] = LastBoundary

	return NewBundleTable(namespace, boundaries, nil)
}

// Namespace returns the namespace identity this table describes.
func (t *BundleTable) Namespace() string { return t.namespace }

// Version returns the metadata version the table was read at. The second
// return value is false for an ephemeral table with no persisted local
// policy.
func (t *BundleTable) Version() (int64, bool) {
	if t.version == nil {
		return 0, false
	}

	return *t.version, true
}

// NumBundles returns the number of bundles in the table.
func (t *BundleTable) NumBundles() int { return len(t.bundles) }

// Bundles returns the table's bundles in ascending range order.
// The returned slice is a copy; the bundles themselves are shared
// immutable values.
func (t *BundleTable) Bundles() []*Bundle {
	return slices.Clone(t.bundles)
}

// Boundaries returns a copy of the table's boundary sequence.
func (t *BundleTable) Boundaries() []uint64 {
	return slices.Clone(t.boundaries)
}

// BoundaryStrings returns the boundary sequence in the external hex
// format, the representation persisted inside a local policy.
func (t *BundleTable) BoundaryStrings() []string {
	out := make([]string, len(t.boundaries))
	for i, b := range t.boundaries {
		out[i] = fmt.Sprintf("0x%08x", b)
	}

	return out
}

// FindBundle returns the bundle whose range contains the given hash value.
//
// The lookup is a binary search over the boundary sequence; for any hash
// inside the hash space it always resolves to exactly one bundle.
func (t *BundleTable) FindBundle(hash uint64) *Bundle {
	if hash > LastBoundary {
		hash = LastBoundary
	}

	idx, found := slices.BinarySearch(t.boundaries, hash)
	if found {
		// An exact boundary hit belongs to the bundle starting there,
		// except the last boundary, which belongs to the top bundle.
		if idx == len(t.boundaries)-1 {
			return t.bundles[idx-1]
		}

		return t.bundles[idx]
	}

	return t.bundles[idx-1]
}

// FullBundle returns a bundle covering the namespace's entire hash space.
func (t *BundleTable) FullBundle() *Bundle {
	return &Bundle{namespace: t.namespace, lower: FirstBoundary, upper: LastBoundary}
}

// IndexOf returns the position of the bundle whose range exactly matches
// target, or -1 when no such bundle exists in the table. Used as the
// optimistic-concurrency guard when splitting: a stale target no longer
// matches any boundary pair verbatim.
func (t *BundleTable) IndexOf(target *Bundle) int {
	if target == nil || target.namespace != t.namespace {
		return -1
	}
	for i := range t.bundles {
		if t.bundles[i].lower == target.lower && t.bundles[i].upper == target.upper {
			return i
		}
	}

	return -1
}
