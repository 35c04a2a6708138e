package hash

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/nsbundle/types"
)

func TestXXH3Lower32(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		for _, name := range []string{"ns1/topicX", "tenant/cluster/ns/topic", ""} {
			require.Equal(t, XXH3Lower32(name), XXH3Lower32(name), "name %q not stable", name)
		}
	})

	t.Run("stays inside hash space", func(t *testing.T) {
		for i := range 10000 {
			h := XXH3Lower32(fmt.Sprintf("topic-%d", i))
			require.LessOrEqual(t, h, types.LastBoundary)
		}
	})

	t.Run("distributes across the space", func(t *testing.T) {
		// Bucket 10k names into 4 quarters; each quarter should get a
		// reasonable share.
		counts := make([]int, 4)
		for i := range 10000 {
			h := XXH3Lower32(fmt.Sprintf("persistent://tenant/ns/topic-%d", i))
			counts[h/0x40000000]++
		}
		for q, c := range counts {
			require.Greater(t, c, 1500, "quarter %d under-populated", q)
		}
	})
}

func TestCRC32(t *testing.T) {
	// Known-answer check: the value is part of the wire contract for
	// CRC-based deployments.
	require.Equal(t, uint64(crcOf("hello")), CRC32("hello"))
	require.LessOrEqual(t, CRC32("any-topic"), types.LastBoundary)
	require.NotEqual(t, CRC32("a"), CRC32("b"))
}

func crcOf(s string) uint32 {
	var crc uint32 = 0xffffffff
	for i := 0; i < len(s); i++ {
		crc ^= uint32(s[i])
		for range 8 {
			if crc&1 == 1 {
				crc = (crc >> 1) ^ 0xedb88320
			} else {
				crc >>= 1
			}
		}
	}

	return ^crc
}
