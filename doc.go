// Package nsbundle partitions the key-space of logical namespaces into
// contiguous hash ranges ("bundles"), the unit of topic ownership and
// load balancing across a broker fleet.
//
// The engine derives a topic's owning bundle from a stable hash,
// materializes and caches each namespace's bundle table from persisted
// metadata, keeps the cache coherent under concurrent metadata mutation
// via watch notifications, and supports online splitting of hot bundles
// into finer-grained sub-ranges.
//
// # Quick Start
//
//	gw, err := metadata.NewNATSGateway(ctx, natsConn, metadata.DefaultConfig(), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cfg := nsbundle.DefaultConfig()
//	engine, err := nsbundle.New(&cfg, gw)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop(context.Background())
//
//	bundle, err := engine.BundleOf(ctx, "tenant/ns/my-topic")
//
// # Architecture
//
//   - types.BundleTable: immutable ordered boundary set of one namespace
//   - internal/cache: per-namespace memoizing async cache with
//     single-flight loads and retry-with-backoff
//   - metadata: NATS JetStream KV gateway with watch-driven invalidation
//   - Engine: lookup, split, and load-weighted bundle selection
//
// Bundle boundary changes propagate through metadata watch
// notifications: every node's cache converges to the new table on its
// next read after its notification arrives. Callers needing strict
// linearizability (mid-split writers) must read from the metadata
// gateway directly with version checks instead of this cache.
//
// # Key Guarantees
//
//   - Lookup is deterministic against an unchanged table
//   - Readers never observe a partially updated boundary sequence
//   - Concurrent cache fills for one namespace share a single metadata read
//   - A stale split target is rejected with ErrConflict, never applied
package nsbundle
