// Package sniff implements the image-type dispatcher: given an open
// block device, decide which of the four supported container formats
// it holds, following the same ordered checks spec section 4.7
// describes.
package sniff

import (
	"github.com/IntergalacticMicrosystems/vtg-image-util/blockdev"
	"github.com/IntergalacticMicrosystems/vtg-image-util/cpm"
	"github.com/IntergalacticMicrosystems/vtg-image-util/harddisk"
	"github.com/IntergalacticMicrosystems/vtg-image-util/ibmpc"
)

// Kind identifies one of the four supported disk image formats.
type Kind int

const (
	// KindUnknown is the zero value; Identify never returns it on
	// success.
	KindUnknown Kind = iota
	KindFloppyVictor
	KindFloppyIBMPC
	KindHardDiskVictor
	KindCPM
)

func (k Kind) String() string {
	switch k {
	case KindFloppyVictor:
		return "floppy-victor"
	case KindFloppyIBMPC:
		return "floppy-ibmpc"
	case KindHardDiskVictor:
		return "harddisk-victor"
	case KindCPM:
		return "cpm"
	default:
		return "unknown"
	}
}

// hardDiskThreshold is the file-size cutoff above which an image is
// assumed to be a Victor hard disk container rather than any floppy
// format, per spec 4.7 rule 1.
const hardDiskThreshold = 2 * 1024 * 1024

// cpmFirstBytes lists the sector-0 first-byte values that are
// consistent with a CP/M directory or boot area, per spec 4.7 rule 4.
var cpmFirstBytes = [...]byte{0xFF, 0xE5, 0x00}

// Identify inspects device and its totalBytes (the full size of the
// underlying image, before any partitioning) and returns which of the
// four supported formats it holds. The checks run in the fixed order
// the spec requires: hard-disk size threshold, then IBM PC BPB
// validation, then the Victor hard-disk label, then CP/M directory
// auto-detection, with floppy-victor as the default when nothing else
// matches.
func Identify(device *blockdev.Device, totalBytes int64) (Kind, error) {
	if totalBytes > hardDiskThreshold {
		return KindHardDiskVictor, nil
	}

	sector0, err := device.ReadSector(0)
	if err != nil {
		return KindUnknown, err
	}

	if _, err := ibmpc.ParseBPB(sector0); err == nil {
		return KindFloppyIBMPC, nil
	}

	if harddisk.IsHardDiskLabel(sector0) {
		return KindHardDiskVictor, nil
	}

	if isCPMFirstByte(sector0[0]) {
		if _, ok := cpm.Detect(device); ok {
			return KindCPM, nil
		}
	}

	return KindFloppyVictor, nil
}

func isCPMFirstByte(b byte) bool {
	for _, candidate := range cpmFirstBytes {
		if b == candidate {
			return true
		}
	}
	return false
}
