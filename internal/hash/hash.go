// Package hash provides the stable topic-name hash functions that map
// topics onto the namespace bundle hash space.
package hash

import (
	"hash/crc32"

	"github.com/zeebo/xxh3"

	"github.com/arloliu/nsbundle/types"
)

// Func maps a topic full name onto the bundle hash space
// [types.FirstBoundary, types.LastBoundary].
//
// A Func must be deterministic, uniformly distributed, and stable across
// process restarts: every node of a fleet must compute the same value for
// the same name. Changing the function of a running deployment is a
// breaking change that requires re-bundling every namespace, so the
// function is pluggable but fixed per deployment.
type Func func(name string) uint64

// XXH3Lower32 is the default hash function: the lower 32 bits of the
// 64-bit XXH3 digest, padded into a uint64.
func XXH3Lower32(name string) uint64 {
	return xxh3.HashString(name) & types.LastBoundary
}

// CRC32 hashes with the IEEE CRC-32 polynomial. Provided for deployments
// whose persisted bundle assignments were produced with a CRC-based hash.
func CRC32(name string) uint64 {
	return uint64(crc32.ChecksumIEEE([]byte(name)))
}
