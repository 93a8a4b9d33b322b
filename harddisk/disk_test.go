package harddisk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IntergalacticMicrosystems/vtg-image-util/blockdev"
	imgtest "github.com/IntergalacticMicrosystems/vtg-image-util/testing"
)

// TestOpenSkipsVolumesWithInvalidLabelType builds a physical disk label
// naming one volume address whose Virtual Volume Label carries a
// label_type outside the valid set. Open must skip it silently instead
// of trying to build a partition from it, which would fail against the
// unpopulated FAT/directory region this test never writes.
func TestOpenSkipsVolumesWithInvalidLabelType(t *testing.T) {
	const totalSectors = 50
	stream := imgtest.NewBlankImage(t, blockdev.SectorSize, totalSectors)
	device := blockdev.New(stream, totalSectors, 0, false)

	volumeSector := uint32(10)
	pdl := buildPhysicalDiskLabel(t, []uint32{volumeSector})
	require.NoError(t, device.WriteSectors(0, pdl[:512]))
	require.NoError(t, device.WriteSectors(1, pdl[512:1024]))

	vvl := buildVirtualVolumeLabel("BOGUS", 1000, 20, 1, 16)
	vvlPadded := append(append([]byte{}, vvl...), make([]byte, 512-len(vvl))...)
	// Mark the label type outside {0x0000, 0x0001, 0x0002, 0xFFFF}.
	vvlPadded[vvlLabelType] = 0x34
	vvlPadded[vvlLabelType+1] = 0x12
	require.NoError(t, device.WriteSector(uint(volumeSector), vvlPadded))

	disk, err := Open(device)
	require.NoError(t, err)
	assert.Equal(t, 0, disk.PartitionCount())
}
