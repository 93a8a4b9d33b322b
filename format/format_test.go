package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IntergalacticMicrosystems/vtg-image-util/blockdev"
	"github.com/IntergalacticMicrosystems/vtg-image-util/ibmpc"
	imgtest "github.com/IntergalacticMicrosystems/vtg-image-util/testing"
	"github.com/IntergalacticMicrosystems/vtg-image-util/victor"
)

func newDevice(t *testing.T, totalSectors uint) *blockdev.Device {
	stream := imgtest.NewBlankImage(t, blockdev.SectorSize, totalSectors)
	return blockdev.New(stream, totalSectors, 0, false)
}

func TestCreateVictorFloppySingleSided(t *testing.T) {
	device := newDevice(t, 1224)
	require.NoError(t, CreateVictorFloppy(device, VictorSingleSided, "MYDISK"))

	boot, err := victor.ReadBootSector(device)
	require.NoError(t, err)
	assert.False(t, boot.DoubleSided)
	assert.EqualValues(t, 11, boot.DataStart)

	geometry := victor.Geometry(boot)
	assert.Equal(t, uint(1214), geometry.TotalClusters)
}

func TestCreateVictorFloppyDoubleSided(t *testing.T) {
	device := newDevice(t, 2448)
	require.NoError(t, CreateVictorFloppy(device, VictorDoubleSided, ""))

	boot, err := victor.ReadBootSector(device)
	require.NoError(t, err)
	assert.True(t, boot.DoubleSided)
}

func TestCreateVictorFloppyRejectsWrongSize(t *testing.T) {
	device := newDevice(t, 1000)
	assert.Error(t, CreateVictorFloppy(device, VictorSingleSided, ""))
}

func TestCreateIBMFloppy360K(t *testing.T) {
	device := newDevice(t, 720)
	require.NoError(t, CreateIBMFloppy(device, IBM360K, "VOLUME1", "MYOEM   "))

	boot, err := device.ReadSector(0)
	require.NoError(t, err)

	bpb, err := ibmpc.ParseBPB(boot)
	require.NoError(t, err)
	assert.EqualValues(t, 512, bpb.BytesPerSector)
	assert.EqualValues(t, 2, bpb.SectorsPerCluster)
	assert.EqualValues(t, 2, bpb.NumFATs)
	assert.EqualValues(t, 0xFD, bpb.MediaDescriptor)
}

func TestCreateIBMFloppy144M(t *testing.T) {
	device := newDevice(t, 2880)
	require.NoError(t, CreateIBMFloppy(device, IBM144M, "", "MSDOS5.0"))

	boot, err := device.ReadSector(0)
	require.NoError(t, err)

	bpb, err := ibmpc.ParseBPB(boot)
	require.NoError(t, err)
	assert.EqualValues(t, 1, bpb.SectorsPerCluster)
	assert.EqualValues(t, 0xF0, bpb.MediaDescriptor)
}

func TestCreateIBMFloppyRejectsWrongSize(t *testing.T) {
	device := newDevice(t, 42)
	assert.Error(t, CreateIBMFloppy(device, IBM360K, "", ""))
}

func TestCreateIBMFloppyRejectsUnknownFormat(t *testing.T) {
	device := newDevice(t, 720)
	assert.Error(t, CreateIBMFloppy(device, IBMFormat("9.9M"), "", ""))
}
