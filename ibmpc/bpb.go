// Package ibmpc parses the IBM PC BIOS Parameter Block embedded in a
// FAT12 floppy's boot sector and derives the resulting volume
// geometry.
package ibmpc

import (
	"encoding/binary"

	"github.com/IntergalacticMicrosystems/vtg-image-util/blockdev"
	"github.com/IntergalacticMicrosystems/vtg-image-util/fat12"

	verrors "github.com/IntergalacticMicrosystems/vtg-image-util/errors"
)

// BPB is the decoded BIOS Parameter Block of an IBM PC FAT12 boot
// sector.
type BPB struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors      uint32
	MediaDescriptor   uint8
	SectorsPerFAT     uint16
}

// ParseBPB validates and decodes the BPB fields of a boot sector. It
// returns CorruptedDisk if the boot signature is missing or any field
// fails the sanity checks a real FAT12 driver performs before trusting
// the geometry.
func ParseBPB(boot []byte) (BPB, error) {
	if len(boot) < 512 {
		return BPB{}, verrors.ErrCorruptedDisk.WithMessage("boot sector too short")
	}

	bootSig := binary.LittleEndian.Uint16(boot[0x1FE:0x200])
	if bootSig != 0xAA55 {
		return BPB{}, verrors.ErrCorruptedDisk.WithMessage("missing 0xAA55 boot signature")
	}
	if boot[0] != 0xEB && boot[0] != 0xE9 {
		return BPB{}, verrors.ErrCorruptedDisk.WithMessage("missing x86 jump instruction at offset 0")
	}

	bpb := BPB{
		BytesPerSector:    binary.LittleEndian.Uint16(boot[0x0B:0x0D]),
		SectorsPerCluster: boot[0x0D],
		ReservedSectors:   binary.LittleEndian.Uint16(boot[0x0E:0x10]),
		NumFATs:           boot[0x10],
		RootEntryCount:    binary.LittleEndian.Uint16(boot[0x11:0x13]),
		MediaDescriptor:   boot[0x15],
		SectorsPerFAT:     binary.LittleEndian.Uint16(boot[0x16:0x18]),
	}

	total16 := binary.LittleEndian.Uint16(boot[0x13:0x15])
	if total16 != 0 {
		bpb.TotalSectors = uint32(total16)
	} else {
		bpb.TotalSectors = binary.LittleEndian.Uint32(boot[0x20:0x24])
	}

	if bpb.BytesPerSector != 512 {
		return BPB{}, verrors.ErrCorruptedDisk.WithMessage("unsupported BytesPerSector")
	}
	switch bpb.SectorsPerCluster {
	case 1, 2, 4, 8:
	default:
		return BPB{}, verrors.ErrCorruptedDisk.WithMessage("unsupported SectorsPerCluster")
	}
	if bpb.NumFATs < 1 {
		return BPB{}, verrors.ErrCorruptedDisk.WithMessage("NumFATs must be at least 1")
	}
	if bpb.SectorsPerFAT < 1 {
		return BPB{}, verrors.ErrCorruptedDisk.WithMessage("SectorsPerFAT must be at least 1")
	}

	return bpb, nil
}

// Geometry derives FAT12 volume geometry from a decoded BPB.
func (b BPB) Geometry() fat12.Geometry {
	rootDirSectors := (uint(b.RootEntryCount)*fat12.DirEntrySize + uint(b.BytesPerSector) - 1) /
		uint(b.BytesPerSector)

	fatStart := uint(b.ReservedSectors)
	dirStart := fatStart + uint(b.NumFATs)*uint(b.SectorsPerFAT)
	dataStart := dirStart + rootDirSectors

	dataSectors := uint(b.TotalSectors) - dataStart
	totalClusters := dataSectors / uint(b.SectorsPerCluster)

	return fat12.Geometry{
		FATStart:        fatStart,
		FATSectors:      uint(b.SectorsPerFAT),
		NumFATCopies:    uint(b.NumFATs),
		DirStart:        dirStart,
		DirSectors:      rootDirSectors,
		DataStart:       dataStart,
		TotalClusters:   totalClusters,
		SectorsPerClust: uint(b.SectorsPerCluster),
		ClusterSize:     uint(b.BytesPerSector) * uint(b.SectorsPerCluster),
	}
}

// Open builds a fat12.Engine for an IBM PC FAT12 floppy image backed
// by device, parsing its BPB from sector 0 first.
func Open(device *blockdev.Device) (*fat12.Engine, error) {
	boot, err := device.ReadSector(0)
	if err != nil {
		return nil, err
	}
	bpb, err := ParseBPB(boot)
	if err != nil {
		return nil, err
	}
	return fat12.New(device, bpb.Geometry())
}
