package blockcache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IntergalacticMicrosystems/vtg-image-util/blockcache"
	imgtest "github.com/IntergalacticMicrosystems/vtg-image-util/testing"
)

func TestCacheFetchesOnFirstAccessOnly(t *testing.T) {
	const bytesPerBlock, totalBlocks = 16, 4
	backing := imgtest.CreateRandomImage(bytesPerBlock, totalBlocks, t)

	fetchCount := 0
	cache := blockcache.New(bytesPerBlock, totalBlocks, func(blockIndex uint, buffer []byte) error {
		fetchCount++
		start := blockIndex * bytesPerBlock
		copy(buffer, backing[start:start+bytesPerBlock])
		return nil
	})

	block, err := cache.Block(1)
	require.NoError(t, err)
	assert.Equal(t, backing[bytesPerBlock:2*bytesPerBlock], block)
	assert.Equal(t, 1, fetchCount)

	_, err = cache.Block(1)
	require.NoError(t, err)
	assert.Equal(t, 1, fetchCount, "second access to the same block must not refetch")
}

func TestCacheOutOfRangeBlock(t *testing.T) {
	cache := blockcache.New(16, 4, func(uint, []byte) error { return nil })
	_, err := cache.Block(4)
	assert.Error(t, err)
}

func TestCachePropagatesFetchError(t *testing.T) {
	cache := blockcache.New(16, 4, func(uint, []byte) error {
		return assert.AnError
	})
	_, err := cache.Block(0)
	assert.Error(t, err)
}

func TestCacheAccessors(t *testing.T) {
	cache := imgtest.CreateDefaultCache(16, 4, nil, t)
	assert.EqualValues(t, 16, cache.BytesPerBlock())
	assert.EqualValues(t, 4, cache.TotalBlocks())
}
