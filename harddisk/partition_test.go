package harddisk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IntergalacticMicrosystems/vtg-image-util/blockdev"
	imgtest "github.com/IntergalacticMicrosystems/vtg-image-util/testing"
)

func TestLooksLikeDirectorySectorAcceptsPlausibleEntry(t *testing.T) {
	sector := make([]byte, 512)
	copy(sector[0:11], []byte("README  TXT"))
	sector[11] = 0x20 // archive bit, a legal attribute byte
	assert.True(t, looksLikeDirectorySector(sector))
}

func TestLooksLikeDirectorySectorRejectsMediaDescriptorOrEndMarker(t *testing.T) {
	media := make([]byte, 512)
	media[0] = 0xF8
	assert.False(t, looksLikeDirectorySector(media))

	end := make([]byte, 512)
	end[0] = 0x00
	assert.False(t, looksLikeDirectorySector(end))
}

func TestLooksLikeDirectorySectorRejectsIllegalAttribute(t *testing.T) {
	sector := make([]byte, 512)
	copy(sector[0:11], []byte("README  TXT"))
	sector[11] = 0x0F // long-filename marker, not a legal short-entry attribute
	assert.False(t, looksLikeDirectorySector(sector))
}

func TestLooksLikeDirectorySectorSkipsDeletedMarkerByte(t *testing.T) {
	sector := make([]byte, 512)
	sector[0] = 0xE5
	copy(sector[1:11], []byte("EADME  TXT"))
	sector[11] = 0x00
	assert.True(t, looksLikeDirectorySector(sector))
}

func TestScanForFATSectorsFindsFirstDirectoryShapedSector(t *testing.T) {
	const volumeStart = 0
	const totalSectors = 20
	stream := imgtest.NewBlankImage(t, blockdev.SectorSize, totalSectors)
	device := blockdev.New(stream, totalSectors, 0, false)

	// Sectors 1..4 (relative to volumeStart) are FAT filler; sector 5
	// is the first directory-shaped sector, so k=5 implies fatSectors =
	// (5-1)/2 = 2.
	dirSector := make([]byte, 512)
	copy(dirSector[0:11], []byte("VOLUME  LBL"))
	dirSector[11] = 0x08 // volume label attribute, still a legal attribute byte
	require.NoError(t, device.WriteSector(5, dirSector))

	fatSectors, err := scanForFATSectors(device, volumeStart, totalSectors, 1)
	require.NoError(t, err)
	assert.Equal(t, uint(2), fatSectors)
}

func TestScanForFATSectorsFailsWhenNoDirectoryShapeFound(t *testing.T) {
	const totalSectors = 8
	stream := imgtest.NewBlankImage(t, blockdev.SectorSize, totalSectors)
	device := blockdev.New(stream, totalSectors, 0, false)

	_, err := scanForFATSectors(device, 0, totalSectors, 1)
	assert.Error(t, err)
}
