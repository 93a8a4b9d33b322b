// Package format creates blank, formatted disk images: zero-filled
// boot sectors, FAT tables, and an optional volume label entry,
// grounded on original_source/vtg_image_util/creator.py's
// V9K_FLOPPY_PARAMS/IBM_FLOPPY_PARAMS tables and boot-sector builders.
package format

import (
	"encoding/binary"

	"github.com/IntergalacticMicrosystems/vtg-image-util/blockdev"
	"github.com/IntergalacticMicrosystems/vtg-image-util/fat12"

	verrors "github.com/IntergalacticMicrosystems/vtg-image-util/errors"
)

// VictorSides selects single- or double-sided Victor 9000 floppy
// layout.
type VictorSides int

const (
	VictorSingleSided VictorSides = iota
	VictorDoubleSided
)

type victorParams struct {
	totalSectors  uint
	fatStart      uint
	fatSectors    uint
	fatCopies     uint
	dirStart      uint
	dirSectors    uint
	dataStart     uint
	totalClusters uint
	flags         uint8
}

var victorFloppyParams = map[VictorSides]victorParams{
	VictorSingleSided: {
		totalSectors: 1224, fatStart: 1, fatSectors: 1, fatCopies: 2,
		dirStart: 3, dirSectors: 8, dataStart: 11, totalClusters: 1214, flags: 0x00,
	},
	VictorDoubleSided: {
		totalSectors: 2448, fatStart: 1, fatSectors: 2, fatCopies: 2,
		dirStart: 5, dirSectors: 8, dataStart: 13, totalClusters: 2378, flags: 0x01,
	},
}

// IBMFormat names one of the four standard IBM PC FAT12 floppy
// capacities this module can format.
type IBMFormat string

const (
	IBM360K  IBMFormat = "360K"
	IBM720K  IBMFormat = "720K"
	IBM12M   IBMFormat = "1.2M"
	IBM144M  IBMFormat = "1.44M"
)

type ibmParams struct {
	totalSectors      uint
	sectorsPerTrack   uint
	heads             uint
	sectorsPerCluster uint8
	reservedSectors   uint16
	fatCopies         uint8
	fatSectors        uint16
	rootEntries       uint16
	mediaDescriptor   uint8
}

var ibmFloppyParams = map[IBMFormat]ibmParams{
	IBM360K: {
		totalSectors: 720, sectorsPerTrack: 9, heads: 2, sectorsPerCluster: 2,
		reservedSectors: 1, fatCopies: 2, fatSectors: 2, rootEntries: 112, mediaDescriptor: 0xFD,
	},
	IBM720K: {
		totalSectors: 1440, sectorsPerTrack: 9, heads: 2, sectorsPerCluster: 2,
		reservedSectors: 1, fatCopies: 2, fatSectors: 3, rootEntries: 112, mediaDescriptor: 0xF9,
	},
	IBM12M: {
		totalSectors: 2400, sectorsPerTrack: 15, heads: 2, sectorsPerCluster: 1,
		reservedSectors: 1, fatCopies: 2, fatSectors: 7, rootEntries: 224, mediaDescriptor: 0xF9,
	},
	IBM144M: {
		totalSectors: 2880, sectorsPerTrack: 18, heads: 2, sectorsPerCluster: 1,
		reservedSectors: 1, fatCopies: 2, fatSectors: 9, rootEntries: 224, mediaDescriptor: 0xF0,
	},
}

// CreateVictorFloppy zero-fills device and writes a Victor 9000 boot
// sector, both FAT copies, and (if label is non-empty) a volume label
// entry in the root directory. device's TotalSectors must already
// match the chosen sides' size.
func CreateVictorFloppy(device *blockdev.Device, sides VictorSides, label string) error {
	params, ok := victorFloppyParams[sides]
	if !ok {
		return verrors.ErrInvalidArgument.WithMessage("unknown Victor floppy sides option")
	}
	if device.TotalSectors != params.totalSectors {
		return verrors.ErrInvalidArgument.WithMessage("device size does not match Victor floppy layout")
	}

	if err := zeroDevice(device); err != nil {
		return err
	}

	boot := make([]byte, blockdev.SectorSize)
	boot[0], boot[1], boot[2] = 0xEB, 0x3C, 0x90
	binary.LittleEndian.PutUint16(boot[26:28], blockdev.SectorSize)
	binary.LittleEndian.PutUint16(boot[28:30], uint16(params.dataStart))
	binary.LittleEndian.PutUint16(boot[32:34], uint16(params.flags))
	boot[34] = 0x01
	if err := device.WriteSector(0, boot); err != nil {
		return err
	}

	fat := makeBlankFAT12(params.totalClusters, 0xF8)
	for copyIdx := uint(0); copyIdx < params.fatCopies; copyIdx++ {
		start := params.fatStart + copyIdx*params.fatSectors
		if err := device.WriteSectors(start, padToSectors(fat, params.fatSectors)); err != nil {
			return err
		}
	}

	if label != "" {
		entry := makeVolumeLabelEntry(label)
		sector := make([]byte, blockdev.SectorSize)
		copy(sector, entry)
		if err := device.WriteSector(params.dirStart, sector); err != nil {
			return err
		}
	}

	return nil
}

// CreateIBMFloppy zero-fills device and writes an IBM PC boot sector
// with a complete BPB, both FAT copies, and an optional volume label
// entry. device's TotalSectors must already match the chosen format's
// size.
func CreateIBMFloppy(device *blockdev.Device, format IBMFormat, label string, oemName string) error {
	params, ok := ibmFloppyParams[format]
	if !ok {
		return verrors.ErrInvalidArgument.WithMessage("unknown IBM floppy format")
	}
	if device.TotalSectors != params.totalSectors {
		return verrors.ErrInvalidArgument.WithMessage("device size does not match IBM floppy layout")
	}

	if err := zeroDevice(device); err != nil {
		return err
	}

	rootDirSectors := (uint(params.rootEntries)*fat12.DirEntrySize + blockdev.SectorSize - 1) / blockdev.SectorSize
	dataStart := uint(params.reservedSectors) + uint(params.fatCopies)*uint(params.fatSectors) + rootDirSectors
	dataSectors := params.totalSectors - dataStart
	totalClusters := dataSectors / uint(params.sectorsPerCluster)

	boot := make([]byte, blockdev.SectorSize)
	boot[0], boot[1], boot[2] = 0xEB, 0x3C, 0x90
	copy(boot[0x03:0x0B], padTo8(oemName))

	binary.LittleEndian.PutUint16(boot[0x0B:0x0D], blockdev.SectorSize)
	boot[0x0D] = params.sectorsPerCluster
	binary.LittleEndian.PutUint16(boot[0x0E:0x10], params.reservedSectors)
	boot[0x10] = params.fatCopies
	binary.LittleEndian.PutUint16(boot[0x11:0x13], params.rootEntries)
	binary.LittleEndian.PutUint16(boot[0x13:0x15], uint16(params.totalSectors))
	boot[0x15] = params.mediaDescriptor
	binary.LittleEndian.PutUint16(boot[0x16:0x18], params.fatSectors)
	binary.LittleEndian.PutUint16(boot[0x18:0x1A], uint16(params.sectorsPerTrack))
	binary.LittleEndian.PutUint16(boot[0x1A:0x1C], uint16(params.heads))
	binary.LittleEndian.PutUint32(boot[0x1C:0x20], 0)
	binary.LittleEndian.PutUint32(boot[0x20:0x24], 0)

	boot[0x24] = 0x00
	boot[0x25] = 0x00
	boot[0x26] = 0x29
	binary.LittleEndian.PutUint32(boot[0x27:0x2B], 0x12345678)
	volLabel := label
	if volLabel == "" {
		volLabel = "NO NAME"
	}
	copy(boot[0x2B:0x36], padTo(volLabel, 11))
	copy(boot[0x36:0x3E], padTo("FAT12", 8))
	binary.LittleEndian.PutUint16(boot[0x1FE:0x200], 0xAA55)

	if err := device.WriteSector(0, boot); err != nil {
		return err
	}

	fat := makeBlankFAT12(totalClusters, params.mediaDescriptor)
	fatStart := uint(params.reservedSectors)
	for copyIdx := uint(0); copyIdx < uint(params.fatCopies); copyIdx++ {
		start := fatStart + copyIdx*uint(params.fatSectors)
		if err := device.WriteSectors(start, padToSectors(fat, uint(params.fatSectors))); err != nil {
			return err
		}
	}

	if label != "" {
		rootDirStart := fatStart + uint(params.fatCopies)*uint(params.fatSectors)
		entry := makeVolumeLabelEntry(label)
		sector := make([]byte, blockdev.SectorSize)
		copy(sector, entry)
		if err := device.WriteSector(rootDirStart, sector); err != nil {
			return err
		}
	}

	return nil
}

func zeroDevice(device *blockdev.Device) error {
	blank := make([]byte, blockdev.SectorSize)
	for sector := uint(0); sector < device.TotalSectors; sector++ {
		if err := device.WriteSector(sector, blank); err != nil {
			return err
		}
	}
	return nil
}

// makeBlankFAT12 builds a fresh FAT12 table with only its two
// reserved entries set: entry 0 holds the media descriptor in its low
// byte (0xF00 | descriptor), entry 1 is the end-of-chain marker.
func makeBlankFAT12(totalClusters uint, mediaDescriptor uint8) []byte {
	fatBytes := ((totalClusters+2)*3 + 1) / 2
	fat := make([]byte, fatBytes)
	fat[0] = mediaDescriptor
	fat[1] = 0xFF
	fat[2] = 0xFF
	return fat
}

func padToSectors(data []byte, sectors uint) []byte {
	out := make([]byte, sectors*blockdev.SectorSize)
	copy(out, data)
	return out
}

// makeVolumeLabelEntry builds a 32-byte directory record holding a
// volume label (attribute 0x08).
func makeVolumeLabelEntry(label string) []byte {
	entry := make([]byte, fat12.DirEntrySize)
	copy(entry[0:11], padTo(label, 11))
	entry[11] = fat12.AttrVolumeLabel
	return entry
}

func padTo(s string, n int) []byte {
	upper := []byte(s)
	for i, c := range upper {
		if c >= 'a' && c <= 'z' {
			upper[i] = c - 32
		}
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = ' '
	}
	copy(out, upper)
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func padTo8(s string) []byte {
	return padTo(s, 8)
}
