package blockdev

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	imgtest "github.com/IntergalacticMicrosystems/vtg-image-util/testing"
)

func TestReadWriteSectorsRoundTrip(t *testing.T) {
	const totalSectors = 10
	stream := imgtest.NewBlankImage(t, SectorSize, totalSectors)
	device := New(stream, totalSectors, 0, false)

	data := make([]byte, SectorSize*3)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, device.WriteSectors(2, data))

	got, err := device.ReadSectors(2, 3)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestReadSectorsOutOfBoundsFails(t *testing.T) {
	const totalSectors = 5
	stream := imgtest.NewBlankImage(t, SectorSize, totalSectors)
	device := New(stream, totalSectors, 0, false)

	_, err := device.ReadSectors(3, 4)
	assert.Error(t, err)
}

func TestWriteSectorsRejectsPartialSectorLength(t *testing.T) {
	const totalSectors = 5
	stream := imgtest.NewBlankImage(t, SectorSize, totalSectors)
	device := New(stream, totalSectors, 0, false)

	err := device.WriteSectors(0, make([]byte, SectorSize+1))
	assert.Error(t, err)
}

func TestWriteSectorsRejectsOnReadOnlyDevice(t *testing.T) {
	const totalSectors = 5
	stream := imgtest.NewBlankImage(t, SectorSize, totalSectors)
	device := New(stream, totalSectors, 0, true)

	err := device.WriteSectors(0, make([]byte, SectorSize))
	assert.Error(t, err)
	assert.True(t, device.ReadOnly())
}

func TestStartOffsetShiftsSectorAddressing(t *testing.T) {
	const totalSectors = 10
	stream := imgtest.NewBlankImage(t, SectorSize, totalSectors+4)
	// Partition begins 4 sectors into the underlying stream.
	device := New(stream, totalSectors, 4*SectorSize, false)

	payload := make([]byte, SectorSize)
	for i := range payload {
		payload[i] = 0xAB
	}
	require.NoError(t, device.WriteSector(0, payload))

	whole := New(stream, totalSectors+4, 0, false)
	got, err := whole.ReadSector(4)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadSectorsPastShortStreamIsZeroPadded(t *testing.T) {
	// The underlying stream only backs 8 sectors, but the device is
	// told it has 10; reading the last two sectors must zero-pad
	// instead of failing.
	stream := imgtest.NewBlankImage(t, SectorSize, 8)
	device := New(stream, 10, 0, false)

	got, err := device.ReadSectors(8, 2)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, SectorSize*2), got)
}
