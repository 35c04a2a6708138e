package nsbundle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/nsbundle/types"
)

func splitFixture(t *testing.T, numBundles int) (*Engine, *fakeGateway) {
	t.Helper()

	gw := newFakeGateway()
	gw.seedPolicy(t, "tenant/ns", numBundles, 3)

	return newTestEngine(t, gw), gw
}

func TestSplitBundleEvenTwoWay(t *testing.T) {
	engine, _ := splitFixture(t, 4)
	ctx := context.Background()

	target, err := engine.BundleFromRange("tenant/ns", "0x00000000_0x40000000")
	require.NoError(t, err)

	table, children, err := engine.SplitBundle(ctx, target, 2, nil)
	require.NoError(t, err)

	require.Equal(t, 5, table.NumBundles())
	require.Equal(t, []uint64{
		0x00000000,
		0x20000000,
		0x40000000,
		0x80000000,
		0xc0000000,
		0xffffffff,
	}, table.Boundaries())

	require.Len(t, children, 2)
	require.Equal(t, "0x00000000_0x20000000", children[0].Range())
	require.Equal(t, "0x20000000_0x40000000", children[1].Range())
}

func TestSplitBundleEvenFourWay(t *testing.T) {
	engine, _ := splitFixture(t, 4)

	target, err := engine.BundleFromRange("tenant/ns", "0x40000000_0x80000000")
	require.NoError(t, err)

	table, children, err := engine.SplitBundle(context.Background(), target, 4, nil)
	require.NoError(t, err)

	// Old boundary count plus numBundles-1 new interior boundaries.
	require.Len(t, table.Boundaries(), 5+3)
	require.Len(t, children, 4)
	require.Equal(t, "0x40000000_0x50000000", children[0].Range())
	require.Equal(t, "0x50000000_0x60000000", children[1].Range())
	require.Equal(t, "0x60000000_0x70000000", children[2].Range())
	require.Equal(t, "0x70000000_0x80000000", children[3].Range())
}

func TestSplitBundleExplicitBoundaries(t *testing.T) {
	engine, _ := splitFixture(t, 4)

	target, err := engine.BundleFromRange("tenant/ns", "0x00000000_0x40000000")
	require.NoError(t, err)

	// Unsorted on purpose; the split sorts them.
	table, children, err := engine.SplitBundle(context.Background(), target, 0,
		[]uint64{0x30000000, 0x10000000})
	require.NoError(t, err)

	require.Len(t, children, 3)
	require.Equal(t, "0x00000000_0x10000000", children[0].Range())
	require.Equal(t, "0x10000000_0x30000000", children[1].Range())
	require.Equal(t, "0x30000000_0x40000000", children[2].Range())
	require.Equal(t, 6, table.NumBundles())
}

func TestSplitBundleExplicitBoundaryOutsideRange(t *testing.T) {
	engine, _ := splitFixture(t, 4)
	ctx := context.Background()

	target, err := engine.BundleFromRange("tenant/ns", "0x40000000_0x80000000")
	require.NoError(t, err)

	cases := []struct {
		name       string
		boundaries []uint64
	}{
		{"below range", []uint64{0x10000000}},
		{"at lower endpoint", []uint64{0x40000000}},
		{"at upper endpoint", []uint64{0x80000000}},
		{"above range", []uint64{0x90000000}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := engine.SplitBundle(ctx, target, 0, tc.boundaries)
			require.ErrorIs(t, err, ErrInvalidOperation)
		})
	}
}

func TestSplitBundlePreconditions(t *testing.T) {
	engine, _ := splitFixture(t, 4)
	ctx := context.Background()

	target, err := engine.BundleFromRange("tenant/ns", "0x00000000_0x40000000")
	require.NoError(t, err)

	t.Run("nil target", func(t *testing.T) {
		_, _, err := engine.SplitBundle(ctx, nil, 2, nil)
		require.ErrorIs(t, err, ErrInvalidOperation)
	})

	t.Run("fewer than two sub-bundles", func(t *testing.T) {
		_, _, err := engine.SplitBundle(ctx, target, 1, nil)
		require.ErrorIs(t, err, ErrInvalidOperation)
	})

	t.Run("indivisible single-value range", func(t *testing.T) {
		narrow, err := types.NewBundle("tenant/ns", 0x10, 0x11)
		require.NoError(t, err)
		_, _, err = engine.SplitBundle(ctx, narrow, 2, nil)
		require.ErrorIs(t, err, ErrInvalidOperation)
		require.False(t, engine.CanSplitBundle(narrow))
	})

	t.Run("narrower than requested sub-bundles", func(t *testing.T) {
		tiny, err := types.NewBundle("tenant/ns", 0x10, 0x13)
		require.NoError(t, err)
		_, _, err = engine.SplitBundle(ctx, tiny, 8, nil)
		require.ErrorIs(t, err, ErrInvalidOperation)
	})
}

func TestSplitBundleStaleTargetConflicts(t *testing.T) {
	engine, _ := splitFixture(t, 4)
	ctx := context.Background()

	// A range that straddles two current bundles never matches verbatim.
	stale, err := engine.BundleFromRange("tenant/ns", "0x20000000_0x60000000")
	require.NoError(t, err)

	_, _, err = engine.SplitBundle(ctx, stale, 2, nil)
	require.ErrorIs(t, err, ErrConflict)
}

func TestSplitBundleCarriesSourceVersion(t *testing.T) {
	engine, _ := splitFixture(t, 4)

	target, err := engine.BundleFromRange("tenant/ns", "0x00000000_0x40000000")
	require.NoError(t, err)

	table, _, err := engine.SplitBundle(context.Background(), target, 2, nil)
	require.NoError(t, err)

	v, ok := table.Version()
	require.True(t, ok)
	require.Equal(t, int64(3), v, "new table inherits the source table's version for CAS persistence")
}

func TestSplitBundleDoesNotMutateCachedTable(t *testing.T) {
	engine, _ := splitFixture(t, 4)
	ctx := context.Background()

	before, err := engine.BundlesOf(ctx, "tenant/ns")
	require.NoError(t, err)

	target, err := engine.BundleFromRange("tenant/ns", "0x00000000_0x40000000")
	require.NoError(t, err)
	_, _, err = engine.SplitBundle(ctx, target, 2, nil)
	require.NoError(t, err)

	after, err := engine.BundlesOf(ctx, "tenant/ns")
	require.NoError(t, err)
	require.Same(t, before, after, "a split computes a new table without touching the cache")
	require.Equal(t, 4, after.NumBundles())
}

func TestSplitBundleChildrenCoverTarget(t *testing.T) {
	engine, _ := splitFixture(t, 8)
	ctx := context.Background()

	target, err := engine.BundleFromRange("tenant/ns", "0x20000000_0x40000000")
	require.NoError(t, err)

	_, children, err := engine.SplitBundle(ctx, target, 3, nil)
	require.NoError(t, err)
	require.Len(t, children, 3)

	require.Equal(t, target.LowerEndpoint(), children[0].LowerEndpoint())
	require.Equal(t, target.UpperEndpoint(), children[len(children)-1].UpperEndpoint())
	for i := 1; i < len(children); i++ {
		require.Equal(t, children[i-1].UpperEndpoint(), children[i].LowerEndpoint(),
			"children must be contiguous")
	}
}

func TestSplitBundlePersistRoundTrip(t *testing.T) {
	engine, gw := splitFixture(t, 4)
	ctx := context.Background()

	target, err := engine.BundleFromRange("tenant/ns", "0x00000000_0x40000000")
	require.NoError(t, err)
	table, _, err := engine.SplitBundle(ctx, target, 2, nil)
	require.NoError(t, err)

	// Persist the split via CAS on the source version, then reload.
	version, ok := table.Version()
	require.True(t, ok)
	policy := types.LocalPolicy{Bundles: types.BundlesData{
		Boundaries: table.BoundaryStrings(),
		NumBundles: table.NumBundles(),
	}}
	newVersion, err := gw.WriteLocalPolicy(ctx, "tenant/ns", policy, version)
	require.NoError(t, err)
	require.Greater(t, newVersion, version)

	// A second writer using the stale version must lose.
	_, err = gw.WriteLocalPolicy(ctx, "tenant/ns", policy, version)
	require.ErrorIs(t, err, ErrConflict)

	engine.InvalidateBundleCache("tenant/ns")
	reloaded, err := engine.BundlesOf(ctx, "tenant/ns")
	require.NoError(t, err)
	require.Equal(t, table.Boundaries(), reloaded.Boundaries())
}
