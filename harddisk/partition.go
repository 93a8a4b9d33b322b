package harddisk

import (
	"strings"

	"github.com/IntergalacticMicrosystems/vtg-image-util/blockdev"
	"github.com/IntergalacticMicrosystems/vtg-image-util/fat12"

	verrors "github.com/IntergalacticMicrosystems/vtg-image-util/errors"
)

const (
	defaultSectorsPerCluster = 16
	defaultMaxDirEntries     = 312
	maxFATScanSectors        = 100
)

const dirShapeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 .!#$%&'()-@^_`{}~"

// looksLikeDirectorySector implements the exact classification rule
// spec §4.5 requires for probing the unknown FAT size of a hard disk
// partition: a sector "looks like" the start of a FAT12 directory
// region, as opposed to still being part of the FAT, when its first
// directory-entry-shaped record has a legal attribute byte and an
// 8.3-charset-legal name.
func looksLikeDirectorySector(sector []byte) bool {
	if len(sector) < 32 {
		return false
	}
	if sector[0] == 0xF8 || sector[0] == 0x00 {
		return false
	}

	attr := sector[11]
	if attr == 0x0F || attr > 0x3F {
		return false
	}

	nameBytes := sector[0:11]
	if sector[0] == 0xE5 {
		nameBytes = sector[1:11]
	}
	for _, b := range nameBytes {
		if !strings.ContainsRune(dirShapeCharset, rune(b)) {
			return false
		}
	}
	return true
}

// scanForFATSectors implements the FAT-size auto-detection heuristic
// from spec §4.5: starting one sector into the volume, sectors are
// read and classified until the first directory-shaped sector is
// found at offset k, implying fat_sectors = (k-1)/2 given two FAT
// copies. This heuristic is preserved exactly, including its known
// failure mode of mis-sizing a FAT whose final sector happens to look
// directory-shaped — it is not replaced with a closed-form estimate.
func scanForFATSectors(device *blockdev.Device, volumeStart uint, volumeCapacity uint, sectorsPerCluster uint) (uint, error) {
	estimate := maxFATScanSectors
	if sectorsPerCluster > 0 {
		estimatedClusters := volumeCapacity / sectorsPerCluster
		estimatedFATBytes := (estimatedClusters*3 + 1) / 2
		estimatedFATSectors := (estimatedFATBytes + blockdev.SectorSize - 1) / blockdev.SectorSize
		scanBound := int(2*estimatedFATSectors) + 4
		if scanBound < estimate {
			estimate = scanBound
		}
	}
	if estimate > maxFATScanSectors {
		estimate = maxFATScanSectors
	}

	for k := 1; k <= estimate; k++ {
		sector, err := device.ReadSector(volumeStart + uint(k))
		if err != nil {
			return 0, err
		}
		if looksLikeDirectorySector(sector) {
			fatSectors := uint(k-1) / 2
			if fatSectors < 1 {
				fatSectors = 1
			}
			return fatSectors, nil
		}
	}
	return 0, verrors.ErrCorruptedDisk.WithMessage(
		"could not locate start of directory region while scanning for FAT size")
}

// Partition wires one Victor hard disk virtual volume up to the
// shared FAT12 engine, deriving geometry from its VirtualVolumeLabel
// instead of owning its own block device.
type Partition struct {
	Index  int
	Label  VirtualVolumeLabel
	Engine *fat12.Engine
}

// openPartition derives geometry for one virtual volume and builds its
// FAT12 engine. device must already be positioned with StartOffset 0
// and sector addressing relative to the whole disk image, since the
// volume start sector, and the FAT/dir/data starts derived from it
// here, are absolute sector numbers on the physical disk, not relative
// to the partition. The VVL's own DataStart field is not used.
func openPartition(device *blockdev.Device, index int, label VirtualVolumeLabel) (*Partition, error) {
	sectorsPerCluster := uint(label.AllocationUnit)
	if sectorsPerCluster == 0 {
		sectorsPerCluster = defaultSectorsPerCluster
	}
	maxDirEntries := uint(label.NumDirEntries)
	if maxDirEntries == 0 {
		maxDirEntries = defaultMaxDirEntries
	}

	entriesPerSector := blockdev.SectorSize / fat12.DirEntrySize
	dirSectors := (maxDirEntries + uint(entriesPerSector) - 1) / uint(entriesPerSector)

	volumeStart := uint(label.VolumeStartSector)
	volumeCapacity := uint(label.VolumeCapacity)

	fatSectors, err := scanForFATSectors(device, volumeStart, volumeCapacity, sectorsPerCluster)
	if err != nil {
		return nil, err
	}

	fatStart := volumeStart + 1
	dirStart := fatStart + 2*fatSectors
	dataStart := dirStart + dirSectors

	usedSectors := uint(1) + 2*fatSectors + dirSectors
	var dataSectors uint
	if volumeCapacity > usedSectors {
		dataSectors = volumeCapacity - usedSectors
	}
	totalClusters := dataSectors / sectorsPerCluster

	geometry := fat12.Geometry{
		FATStart:        fatStart,
		FATSectors:      fatSectors,
		NumFATCopies:    2,
		DirStart:        dirStart,
		DirSectors:      dirSectors,
		DataStart:       dataStart,
		TotalClusters:   totalClusters,
		SectorsPerClust: sectorsPerCluster,
		ClusterSize:     sectorsPerCluster * blockdev.SectorSize,
	}

	engine, err := fat12.New(device, geometry)
	if err != nil {
		return nil, err
	}
	return &Partition{Index: index, Label: label, Engine: engine}, nil
}
