// Package victor implements Victor 9000 floppy disk geometry
// derivation from the boot sector, grounded on the reference
// implementation's fixed single/double-sided layout tables.
package victor

import (
	"encoding/binary"

	"github.com/IntergalacticMicrosystems/vtg-image-util/blockdev"
	"github.com/IntergalacticMicrosystems/vtg-image-util/fat12"
)

// Victor floppies always use 4 sectors (2048 bytes) per cluster and
// keep two redundant FAT copies.
const (
	sectorsPerCluster = 4
	clusterSize       = blockdev.SectorSize * sectorsPerCluster
	numFATCopies      = 2
)

// BootSector holds the fields of a Victor 9000 floppy boot sector that
// matter for geometry derivation.
type BootSector struct {
	SectorSize   uint16
	DoubleSided  bool
	DiscType     uint8
	DataStart    uint16
}

// ReadBootSector parses sector 0 of device into a BootSector.
func ReadBootSector(device *blockdev.Device) (BootSector, error) {
	raw, err := device.ReadSector(0)
	if err != nil {
		return BootSector{}, err
	}

	sectorSize := binary.LittleEndian.Uint16(raw[26:28])
	if sectorSize != blockdev.SectorSize {
		sectorSize = blockdev.SectorSize
	}
	flags := binary.LittleEndian.Uint16(raw[32:34])
	dataStart := binary.LittleEndian.Uint16(raw[28:30])

	return BootSector{
		SectorSize:  sectorSize,
		DoubleSided: flags&0x01 != 0,
		DiscType:    raw[34],
		DataStart:   dataStart,
	}, nil
}

// Geometry derives the FAT12 geometry implied by a Victor floppy boot
// sector. The single/double-sided sector layouts are fixed constants
// of the Victor 9000 floppy format; only the double-sided flag and a
// non-zero DataStart field are taken from the boot sector.
func Geometry(boot BootSector) fat12.Geometry {
	if boot.DoubleSided {
		dataStart := uint(boot.DataStart)
		if dataStart == 0 {
			dataStart = 13
		}
		return fat12.Geometry{
			FATStart:        1,
			FATSectors:      2,
			NumFATCopies:    numFATCopies,
			DirStart:        5,
			DirSectors:      8,
			DataStart:       dataStart,
			TotalClusters:   2378,
			SectorsPerClust: sectorsPerCluster,
			ClusterSize:     clusterSize,
		}
	}

	dataStart := uint(boot.DataStart)
	if dataStart == 0 {
		dataStart = 11
	}
	return fat12.Geometry{
		FATStart:        1,
		FATSectors:      1,
		NumFATCopies:    numFATCopies,
		DirStart:        3,
		DirSectors:      8,
		DataStart:       dataStart,
		TotalClusters:   1214,
		SectorsPerClust: sectorsPerCluster,
		ClusterSize:     clusterSize,
	}
}

// Open builds a fat12.Engine for a Victor floppy image backed by
// device.
func Open(device *blockdev.Device) (*fat12.Engine, error) {
	boot, err := ReadBootSector(device)
	if err != nil {
		return nil, err
	}
	return fat12.New(device, Geometry(boot))
}
