// Package testing provides helpers for testing nsbundle-based code:
// an embedded NATS server with JetStream enabled, and a types.Logger
// that writes through *testing.T.
package testing
