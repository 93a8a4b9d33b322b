package testing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/IntergalacticMicrosystems/vtg-image-util/blockcache"
)

// CreateDefaultCache builds a blockcache.Cache of totalBlocks blocks,
// each bytesPerBlock bytes, backed by backingData (or fresh random
// data if backingData is nil). The fetch callback checks bounds for
// you and fails the test with an appropriate message if violated.
func CreateDefaultCache(
	bytesPerBlock, totalBlocks uint, backingData []byte, t *testing.T,
) *blockcache.Cache {
	if backingData == nil {
		backingData = CreateRandomImage(bytesPerBlock, totalBlocks, t)
	}

	fetchCallback := func(blockIndex uint, buffer []byte) error {
		if blockIndex >= totalBlocks {
			message := fmt.Sprintf(
				"attempted to read outside bounds: block %d not in [0, %d)",
				blockIndex, totalBlocks,
			)
			t.Error(message)
			return fmt.Errorf(message)
		}
		start := blockIndex * bytesPerBlock
		copy(buffer, backingData[start:start+bytesPerBlock])
		return nil
	}

	cache := blockcache.New(bytesPerBlock, totalBlocks, fetchCallback)
	assert.EqualValues(t, bytesPerBlock, cache.BytesPerBlock(), "wrong bytes per block")
	assert.EqualValues(t, totalBlocks, cache.TotalBlocks(), "wrong total blocks")
	return cache
}
