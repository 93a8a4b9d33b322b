package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IntergalacticMicrosystems/vtg-image-util/blockdev"
	"github.com/IntergalacticMicrosystems/vtg-image-util/cpm"
	"github.com/IntergalacticMicrosystems/vtg-image-util/fat12"
	imgtest "github.com/IntergalacticMicrosystems/vtg-image-util/testing"
)

func newEngine(t *testing.T, totalClusters uint) *fat12.Engine {
	const sectorsPerCluster = 2
	geometry := fat12.Geometry{
		FATStart:        1,
		FATSectors:      4,
		NumFATCopies:    2,
		DirStart:        9,
		DirSectors:      4,
		DataStart:       13,
		TotalClusters:   totalClusters,
		SectorsPerClust: sectorsPerCluster,
		ClusterSize:     sectorsPerCluster * blockdev.SectorSize,
	}
	totalSectors := geometry.DataStart + totalClusters*sectorsPerCluster
	stream := imgtest.NewBlankImage(t, blockdev.SectorSize, totalSectors)
	device := blockdev.New(stream, totalSectors, 0, false)

	engine, err := fat12.New(device, geometry)
	require.NoError(t, err)
	return engine
}

func TestFAT12VerifyPassesOnCleanVolume(t *testing.T) {
	engine := newEngine(t, 50)
	require.NoError(t, engine.WriteFile([]string{"A.TXT"}, []byte("hello")))
	require.NoError(t, engine.CreateDirectory([]string{"SUB"}))
	require.NoError(t, engine.WriteFile([]string{"SUB", "B.TXT"}, []byte("world")))

	result := FAT12(engine, false)
	assert.True(t, result.IsValid())
	assert.Equal(t, 2, result.FilesChecked)
	assert.Equal(t, 2, result.DirectoriesChecked) // root + SUB
}

func TestFAT12VerifyDetectsLostClusters(t *testing.T) {
	engine := newEngine(t, 50)
	require.NoError(t, engine.WriteFile([]string{"A.TXT"}, []byte("hi")))

	// Allocate clusters directly without linking them to any directory
	// entry, simulating orphaned chain data left by a crashed writer.
	_, err := engine.AllocateChain(2)
	require.NoError(t, err)
	require.NoError(t, engine.Flush())

	result := FAT12(engine, false)
	assert.Equal(t, 2, result.LostClusters)
	assert.NotEmpty(t, result.Warnings)
}

func TestCPMVerifyCountsFiles(t *testing.T) {
	const totalSectors = cpm.DefaultDataStart + 10*cpm.SectorsPerBlock
	stream := imgtest.NewBlankImage(t, blockdev.SectorSize, totalSectors)
	device := blockdev.New(stream, totalSectors, 0, false)

	engine, err := cpm.Open(device)
	require.NoError(t, err)
	require.NoError(t, engine.WriteFile("A.TXT", []byte("x"), 0))

	result := CPM(engine, false)
	assert.Equal(t, 1, result.FilesChecked)
	assert.Empty(t, result.Warnings)
}

func TestFormatReportsPassAndFail(t *testing.T) {
	passing := &Result{}
	text := Format(passing)
	assert.Contains(t, text, "PASSED")

	failing := &Result{}
	failing.addError("boom")
	text = Format(failing)
	assert.Contains(t, text, "FAILED")
	assert.Contains(t, text, "boom")
}
