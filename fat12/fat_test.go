package fat12

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IntergalacticMicrosystems/vtg-image-util/blockdev"
	verrors "github.com/IntergalacticMicrosystems/vtg-image-util/errors"
	imgtest "github.com/IntergalacticMicrosystems/vtg-image-util/testing"
)

func TestFatTableEntryRoundTripEvenOdd(t *testing.T) {
	raw := make([]byte, 9) // covers clusters 0..5
	table := &fatTable{raw: raw}

	table.SetEntry(0, 0xABC)
	table.SetEntry(1, 0x123)

	assert.Equal(t, uint16(0xABC), table.GetEntry(0))
	assert.Equal(t, uint16(0x123), table.GetEntry(1))
}

func TestFatTableSetEntryDoesNotDisturbNeighbor(t *testing.T) {
	raw := make([]byte, 9)
	table := &fatTable{raw: raw}

	table.SetEntry(2, 0xFFF)
	table.SetEntry(3, 0x000)
	assert.Equal(t, uint16(0xFFF), table.GetEntry(2))
	assert.Equal(t, uint16(0x000), table.GetEntry(3))

	table.SetEntry(3, 0x7FE)
	assert.Equal(t, uint16(0xFFF), table.GetEntry(2), "updating cluster 3 must not disturb cluster 2")
	assert.Equal(t, uint16(0x7FE), table.GetEntry(3))
}

func TestIsEOF(t *testing.T) {
	assert.True(t, IsEOF(FatEOFMin))
	assert.True(t, IsEOF(FatEOFMax))
	assert.False(t, IsEOF(FatFree))
	assert.False(t, IsEOF(FatBad))
}

func newTestEngine(t *testing.T, totalClusters uint) (*Engine, *blockdev.Device) {
	const sectorsPerCluster = 1
	geometry := Geometry{
		FATStart:        1,
		FATSectors:      2,
		NumFATCopies:    2,
		DirStart:        5,
		DirSectors:      4,
		DataStart:       9,
		TotalClusters:   totalClusters,
		SectorsPerClust: sectorsPerCluster,
		ClusterSize:     sectorsPerCluster * blockdev.SectorSize,
	}
	totalSectors := geometry.DataStart + totalClusters*sectorsPerCluster
	stream := imgtest.NewBlankImage(t, blockdev.SectorSize, totalSectors)
	device := blockdev.New(stream, totalSectors, 0, false)

	engine, err := New(device, geometry)
	require.NoError(t, err)
	return engine, device
}

func TestEngineAllocateAndFreeChain(t *testing.T) {
	engine, _ := newTestEngine(t, 10)

	chain, err := engine.AllocateChain(3)
	require.NoError(t, err)
	require.Len(t, chain, 3)

	followed, err := engine.FollowChain(chain[0])
	require.NoError(t, err)
	assert.Equal(t, chain, followed)

	engine.FreeChain(chain)
	for _, cluster := range chain {
		assert.Equal(t, uint16(FatFree), engine.GetFatEntry(cluster))
	}
}

func TestEngineAllocateChainFailsWhenDiskFull(t *testing.T) {
	engine, _ := newTestEngine(t, 2)

	_, err := engine.AllocateChain(3)
	assert.Error(t, err)

	// A failed allocation must not have reserved any clusters.
	for cluster := uint(2); cluster < 4; cluster++ {
		assert.Equal(t, uint16(FatFree), engine.GetFatEntry(cluster))
	}
}

func TestEngineFlushPersistsAllocation(t *testing.T) {
	engine, device := newTestEngine(t, 10)

	chain, err := engine.AllocateChain(2)
	require.NoError(t, err)
	require.NoError(t, engine.Flush())

	// A fresh engine reloading the first FAT copy from the same device
	// must see the allocation persisted.
	reloaded, err := New(device, engine.Geometry())
	require.NoError(t, err)
	followed, err := reloaded.FollowChain(chain[0])
	require.NoError(t, err)
	assert.Equal(t, chain, followed)
}

func TestFollowChainDetectsCycle(t *testing.T) {
	engine, _ := newTestEngine(t, 10)

	engine.SetFatEntry(2, 3)
	engine.SetFatEntry(3, 4)
	engine.SetFatEntry(4, 2)

	_, err := engine.FollowChain(2)
	assert.ErrorIs(t, err, verrors.ErrCorruptedDisk)
}

func TestFollowChainStopsAtFreeEntry(t *testing.T) {
	engine, _ := newTestEngine(t, 10)

	// A chain whose tail was clobbered back to FREE keeps its prefix.
	engine.SetFatEntry(2, 3)
	engine.SetFatEntry(3, FatFree)

	chain, err := engine.FollowChain(2)
	require.NoError(t, err)
	assert.Equal(t, []uint{2, 3}, chain)
}

func TestFollowChainRejectsPointerPastVolumeEnd(t *testing.T) {
	engine, _ := newTestEngine(t, 10)

	engine.SetFatEntry(2, 0x200)

	_, err := engine.FollowChain(2)
	assert.ErrorIs(t, err, verrors.ErrCorruptedDisk)
}

func TestFollowChainOfUnallocatedClusterIsEmpty(t *testing.T) {
	engine, _ := newTestEngine(t, 10)

	chain, err := engine.FollowChain(0)
	require.NoError(t, err)
	assert.Empty(t, chain)
}
