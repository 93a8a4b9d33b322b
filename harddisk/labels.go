// Package harddisk implements Victor 9000 hard disk containers: the
// Physical Disk Label at sector 0, one Virtual Volume Label per
// partition, and the FAT12 engine wiring for each partition.
package harddisk

import (
	"encoding/binary"
	"strings"

	verrors "github.com/IntergalacticMicrosystems/vtg-image-util/errors"
)

// Physical Disk Label field offsets, relative to the start of sector
// 0.
const (
	pdlLabelType         = 0
	pdlDeviceID          = 2
	pdlSerialNumber      = 4
	pdlSectorSize        = 20
	pdlIPLDiskAddr       = 22
	pdlIPLLoadAddr       = 26
	pdlIPLLoadLen        = 28
	pdlIPLCodeEntry      = 30
	pdlPrimaryBootVolume = 34
	pdlControllerParams  = 36
)

// PhysicalDiskLabel is the hard-disk-wide header found at sector 0.
type PhysicalDiskLabel struct {
	LabelType              uint16
	DeviceID                uint16
	SerialNumber            string
	SectorSize              uint16
	IPLDiskAddress          uint32
	IPLLoadAddress          uint16
	IPLLoadLength           uint16
	IPLCodeEntry            uint32
	PrimaryBootVolume       uint16
	ControllerParams        []byte
	VirtualVolumeAddresses  []uint32
}

// ParsePhysicalDiskLabel decodes a PhysicalDiskLabel from the first
// two sectors (1024 bytes) of a hard disk image.
func ParsePhysicalDiskLabel(data []byte) (PhysicalDiskLabel, error) {
	if len(data) < 512 {
		return PhysicalDiskLabel{}, verrors.ErrHardDiskLabel.WithMessage(
			"insufficient data for physical disk label")
	}

	label := PhysicalDiskLabel{
		LabelType:         binary.LittleEndian.Uint16(data[pdlLabelType : pdlLabelType+2]),
		DeviceID:          binary.LittleEndian.Uint16(data[pdlDeviceID : pdlDeviceID+2]),
		SerialNumber:      strings.TrimRight(string(data[pdlSerialNumber:pdlSerialNumber+16]), "\x00"),
		SectorSize:        binary.LittleEndian.Uint16(data[pdlSectorSize : pdlSectorSize+2]),
		IPLDiskAddress:    binary.LittleEndian.Uint32(data[pdlIPLDiskAddr : pdlIPLDiskAddr+4]),
		IPLLoadAddress:    binary.LittleEndian.Uint16(data[pdlIPLLoadAddr : pdlIPLLoadAddr+2]),
		IPLLoadLength:     binary.LittleEndian.Uint16(data[pdlIPLLoadLen : pdlIPLLoadLen+2]),
		IPLCodeEntry:      binary.LittleEndian.Uint32(data[pdlIPLCodeEntry : pdlIPLCodeEntry+4]),
		PrimaryBootVolume: binary.LittleEndian.Uint16(data[pdlPrimaryBootVolume : pdlPrimaryBootVolume+2]),
		ControllerParams:  append([]byte{}, data[pdlControllerParams:pdlControllerParams+16]...),
	}

	offset := pdlControllerParams + 16 // 52

	if offset >= len(data) {
		return label, verrors.ErrHardDiskLabel.WithMessage("label truncated before region lists")
	}
	availCount := int(data[offset])
	offset++
	offset += availCount * 8 // address+size pairs, skipped

	if offset >= len(data) {
		return label, verrors.ErrHardDiskLabel.WithMessage("label truncated before working-media list")
	}
	workCount := int(data[offset])
	offset++
	offset += workCount * 8

	if offset >= len(data) {
		return label, verrors.ErrHardDiskLabel.WithMessage("label truncated before volume list")
	}
	volumeCount := int(data[offset])
	offset++

	addresses := make([]uint32, 0, volumeCount)
	for i := 0; i < volumeCount; i++ {
		if offset+4 > len(data) {
			break
		}
		addresses = append(addresses, binary.LittleEndian.Uint32(data[offset:offset+4]))
		offset += 4
	}
	label.VirtualVolumeAddresses = addresses

	return label, nil
}

// IsValidVolumeLabelType reports whether a Virtual Volume Label's
// label_type field marks a real volume. Any other value (per spec
// §3's VVL table) means the slot in the physical label's volume list
// does not describe a usable partition and should be skipped silently.
func IsValidVolumeLabelType(labelType uint16) bool {
	switch labelType {
	case 0x0000, 0x0001, 0x0002, 0xFFFF:
		return true
	default:
		return false
	}
}

// IsHardDiskLabel reports whether sector 0 of an image looks like a
// Victor physical disk label, per the sniffer's detection criteria.
func IsHardDiskLabel(sector0 []byte) bool {
	if len(sector0) < 4 {
		return false
	}
	labelType := binary.LittleEndian.Uint16(sector0[pdlLabelType : pdlLabelType+2])
	deviceID := binary.LittleEndian.Uint16(sector0[pdlDeviceID : pdlDeviceID+2])
	return labelType == 1 && deviceID == 1
}

// Virtual Volume Label field offsets, relative to the start of the
// partition's first sector.
const (
	vvlLabelType       = 0
	vvlVolumeName      = 2
	vvlIPLDiskAddr     = 18
	vvlVolumeCapacity  = 30
	vvlDataStart       = 34
	vvlHostBlockSize   = 38
	vvlAllocationUnit  = 40
	vvlNumDirEntries   = 42
	vvlAssignmentCount = 60
)

// DriveAssignment maps a physical device unit to an index into the
// physical label's virtual volume list.
type DriveAssignment struct {
	DeviceUnit   uint16
	VolumeIndex  uint16
}

// VirtualVolumeLabel is the per-partition header at the start of each
// partition.
type VirtualVolumeLabel struct {
	LabelType         uint16
	VolumeName        string
	IPLDiskAddress    uint32
	IPLLoadAddress    uint16
	IPLLoadLength     uint16
	IPLCodeEntry      uint32
	VolumeCapacity    uint32 // sectors
	DataStart         uint32
	HostBlockSize     uint16
	AllocationUnit    uint16 // sectors per cluster
	NumDirEntries     uint16
	VolumeStartSector uint32
	Assignments       []DriveAssignment
}

// ParseVirtualVolumeLabel decodes a VirtualVolumeLabel from the first
// sector of one partition. volumeStartSector is the absolute sector
// address this label was read from.
func ParseVirtualVolumeLabel(data []byte, volumeStartSector uint32) (VirtualVolumeLabel, error) {
	if len(data) < 64 {
		return VirtualVolumeLabel{}, verrors.ErrHardDiskLabel.WithMessage(
			"insufficient data for virtual volume label")
	}

	label := VirtualVolumeLabel{
		LabelType:         binary.LittleEndian.Uint16(data[vvlLabelType : vvlLabelType+2]),
		VolumeName:        strings.TrimRight(string(data[vvlVolumeName:vvlVolumeName+16]), "\x00"),
		IPLDiskAddress:    binary.LittleEndian.Uint32(data[vvlIPLDiskAddr : vvlIPLDiskAddr+4]),
		IPLLoadAddress:    binary.LittleEndian.Uint16(data[vvlIPLDiskAddr+4 : vvlIPLDiskAddr+6]),
		IPLLoadLength:     binary.LittleEndian.Uint16(data[vvlIPLDiskAddr+6 : vvlIPLDiskAddr+8]),
		IPLCodeEntry:      binary.LittleEndian.Uint32(data[vvlIPLDiskAddr+8 : vvlIPLDiskAddr+12]),
		VolumeCapacity:    binary.LittleEndian.Uint32(data[vvlVolumeCapacity : vvlVolumeCapacity+4]),
		DataStart:         binary.LittleEndian.Uint32(data[vvlDataStart : vvlDataStart+4]),
		HostBlockSize:     binary.LittleEndian.Uint16(data[vvlHostBlockSize : vvlHostBlockSize+2]),
		AllocationUnit:    binary.LittleEndian.Uint16(data[vvlAllocationUnit : vvlAllocationUnit+2]),
		NumDirEntries:     binary.LittleEndian.Uint16(data[vvlNumDirEntries : vvlNumDirEntries+2]),
		VolumeStartSector: volumeStartSector,
	}

	if len(data) > vvlAssignmentCount {
		count := int(data[vvlAssignmentCount])
		if count > 16 {
			count = 16
		}
		offset := vvlAssignmentCount + 1
		assignments := make([]DriveAssignment, 0, count)
		for i := 0; i < count && offset+4 <= len(data); i++ {
			assignments = append(assignments, DriveAssignment{
				DeviceUnit:  binary.LittleEndian.Uint16(data[offset : offset+2]),
				VolumeIndex: binary.LittleEndian.Uint16(data[offset+2 : offset+4]),
			})
			offset += 4
		}
		label.Assignments = assignments
	}

	return label, nil
}
