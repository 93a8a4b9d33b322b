package harddisk

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPhysicalDiskLabel(t *testing.T, volumeAddrs []uint32) []byte {
	data := make([]byte, 1024)
	binary.LittleEndian.PutUint16(data[pdlLabelType:], 1)
	binary.LittleEndian.PutUint16(data[pdlDeviceID:], 1)
	copy(data[pdlSerialNumber:], []byte("SERIAL0001234567"))
	binary.LittleEndian.PutUint16(data[pdlSectorSize:], 512)

	offset := pdlControllerParams + 16
	data[offset] = 0 // no available-media entries
	offset++
	data[offset] = 0 // no working-media entries
	offset++
	data[offset] = byte(len(volumeAddrs))
	offset++
	for _, addr := range volumeAddrs {
		require.LessOrEqual(t, offset+4, len(data))
		binary.LittleEndian.PutUint32(data[offset:], addr)
		offset += 4
	}
	return data
}

func TestParsePhysicalDiskLabelRoundTrip(t *testing.T) {
	raw := buildPhysicalDiskLabel(t, []uint32{10, 200})

	label, err := ParsePhysicalDiskLabel(raw)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), label.LabelType)
	assert.Equal(t, uint16(1), label.DeviceID)
	assert.Equal(t, "SERIAL0001234567", label.SerialNumber)
	assert.Equal(t, uint16(512), label.SectorSize)
	assert.Equal(t, []uint32{10, 200}, label.VirtualVolumeAddresses)
}

func TestParsePhysicalDiskLabelRejectsShortInput(t *testing.T) {
	_, err := ParsePhysicalDiskLabel(make([]byte, 100))
	assert.Error(t, err)
}

func TestIsHardDiskLabel(t *testing.T) {
	raw := buildPhysicalDiskLabel(t, nil)
	assert.True(t, IsHardDiskLabel(raw))

	notALabel := make([]byte, 512)
	assert.False(t, IsHardDiskLabel(notALabel))
}

func TestIsValidVolumeLabelType(t *testing.T) {
	for _, valid := range []uint16{0x0000, 0x0001, 0x0002, 0xFFFF} {
		assert.True(t, IsValidVolumeLabelType(valid), "0x%04X should be valid", valid)
	}
	for _, invalid := range []uint16{0x0003, 0x1234, 0x7FFF} {
		assert.False(t, IsValidVolumeLabelType(invalid), "0x%04X should be invalid", invalid)
	}
}

func buildVirtualVolumeLabel(volumeName string, capacity, dataStart uint32, allocUnit, numDirEntries uint16) []byte {
	data := make([]byte, 64)
	binary.LittleEndian.PutUint16(data[vvlLabelType:], 0)
	copy(data[vvlVolumeName:], []byte(volumeName))
	binary.LittleEndian.PutUint32(data[vvlVolumeCapacity:], capacity)
	binary.LittleEndian.PutUint32(data[vvlDataStart:], dataStart)
	binary.LittleEndian.PutUint16(data[vvlHostBlockSize:], 512)
	binary.LittleEndian.PutUint16(data[vvlAllocationUnit:], allocUnit)
	binary.LittleEndian.PutUint16(data[vvlNumDirEntries:], numDirEntries)
	return data
}

func TestParseVirtualVolumeLabelRoundTrip(t *testing.T) {
	raw := buildVirtualVolumeLabel("MYVOLUME", 40000, 50, 16, 312)

	label, err := ParseVirtualVolumeLabel(raw, 99)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), label.LabelType)
	assert.Equal(t, "MYVOLUME", label.VolumeName)
	assert.Equal(t, uint32(40000), label.VolumeCapacity)
	assert.Equal(t, uint32(50), label.DataStart)
	assert.Equal(t, uint16(16), label.AllocationUnit)
	assert.Equal(t, uint16(312), label.NumDirEntries)
	assert.Equal(t, uint32(99), label.VolumeStartSector)
}

func TestParseVirtualVolumeLabelRejectsShortInput(t *testing.T) {
	_, err := ParseVirtualVolumeLabel(make([]byte, 10), 0)
	assert.Error(t, err)
}
