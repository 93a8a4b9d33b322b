package sniff

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/IntergalacticMicrosystems/vtg-image-util/blockdev"
	imgtest "github.com/IntergalacticMicrosystems/vtg-image-util/testing"
)

func newDeviceWithSector0(t *testing.T, totalSectors uint, sector0 []byte) *blockdev.Device {
	stream := imgtest.NewBlankImage(t, blockdev.SectorSize, totalSectors)
	device := blockdev.New(stream, totalSectors, 0, false)
	if sector0 != nil {
		require.NoError(t, device.WriteSector(0, sector0))
	}
	return device
}

func TestIdentifyHardDiskBySizeThreshold(t *testing.T) {
	device := newDeviceWithSector0(t, 8000, nil)
	kind, err := Identify(device, 4*1024*1024)
	require.NoError(t, err)
	require.Equal(t, KindHardDiskVictor, kind)
}

func TestIdentifyIBMPCFloppy(t *testing.T) {
	boot := make([]byte, blockdev.SectorSize)
	boot[0], boot[1], boot[2] = 0xEB, 0x3C, 0x90
	binary.LittleEndian.PutUint16(boot[0x0B:0x0D], 512)
	boot[0x0D] = 2
	binary.LittleEndian.PutUint16(boot[0x0E:0x10], 1)
	boot[0x10] = 2
	binary.LittleEndian.PutUint16(boot[0x11:0x13], 112)
	binary.LittleEndian.PutUint16(boot[0x13:0x15], 720)
	boot[0x15] = 0xFD
	binary.LittleEndian.PutUint16(boot[0x16:0x18], 2)
	binary.LittleEndian.PutUint16(boot[0x1FE:0x200], 0xAA55)

	device := newDeviceWithSector0(t, 720, boot)
	kind, err := Identify(device, 720*int64(blockdev.SectorSize))
	require.NoError(t, err)
	require.Equal(t, KindFloppyIBMPC, kind)
}

func TestIdentifyHardDiskLabel(t *testing.T) {
	// Stays below the size threshold so this test exercises the label
	// check specifically, not the size rule.
	sector0 := make([]byte, blockdev.SectorSize)
	binary.LittleEndian.PutUint16(sector0[0:2], 1) // label type
	binary.LittleEndian.PutUint16(sector0[2:4], 1) // device ID

	totalSectors := uint(2000)
	device := newDeviceWithSector0(t, totalSectors, sector0)
	kind, err := Identify(device, int64(totalSectors*blockdev.SectorSize))
	require.NoError(t, err)
	require.Equal(t, KindHardDiskVictor, kind)
}

func TestIdentifyDefaultsToVictorFloppy(t *testing.T) {
	device := newDeviceWithSector0(t, 1224, nil)
	kind, err := Identify(device, 1224*int64(blockdev.SectorSize))
	require.NoError(t, err)
	require.Equal(t, KindFloppyVictor, kind)
}

func TestIdentifyCPMDisk(t *testing.T) {
	totalSectors := uint(720)
	device := newDeviceWithSector0(t, totalSectors, nil)

	// candidateDirStarts in the cpm package starts at sector 76; write
	// two plausible directory entries there so cpm.Detect succeeds.
	dirSector := make([]byte, blockdev.SectorSize)
	copy(dirSector[0:9], []byte{0x00, 'A', ' ', ' ', ' ', ' ', ' ', ' ', ' '})
	copy(dirSector[32:41], []byte{0x00, 'B', ' ', ' ', ' ', ' ', ' ', ' ', ' '})
	require.NoError(t, device.WriteSector(76, dirSector))

	sector0 := make([]byte, blockdev.SectorSize)
	sector0[0] = 0xE5
	require.NoError(t, device.WriteSector(0, sector0))

	kind, err := Identify(device, int64(totalSectors*blockdev.SectorSize))
	require.NoError(t, err)
	require.Equal(t, KindCPM, kind)
}

func TestKindString(t *testing.T) {
	require.Equal(t, "floppy-victor", KindFloppyVictor.String())
	require.Equal(t, "cpm", KindCPM.String())
	require.Equal(t, "unknown", KindUnknown.String())
}
