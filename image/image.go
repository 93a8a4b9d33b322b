// Package image is the top-level entry point that ties sniff,
// imagepath, and every volume-type package together: given a host
// file path, it opens the file, identifies its container (raw sector
// image or MAME CHD) and its disk format, and returns a ready-to-use
// Volume.
package image

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/IntergalacticMicrosystems/vtg-image-util/blockdev"
	"github.com/IntergalacticMicrosystems/vtg-image-util/cpm"
	"github.com/IntergalacticMicrosystems/vtg-image-util/fat12"
	"github.com/IntergalacticMicrosystems/vtg-image-util/harddisk"
	"github.com/IntergalacticMicrosystems/vtg-image-util/ibmpc"
	"github.com/IntergalacticMicrosystems/vtg-image-util/image/chd"
	"github.com/IntergalacticMicrosystems/vtg-image-util/sniff"
	"github.com/IntergalacticMicrosystems/vtg-image-util/victor"

	verrors "github.com/IntergalacticMicrosystems/vtg-image-util/errors"
)

// Volume is the opened, ready-to-use form of one disk image. Exactly
// one of FAT12 or CPM is populated once file operations are possible,
// except right after opening a multi-partition hard disk with no
// partition index given, where HardDisk is set and FAT12/CPM are both
// nil until SelectPartition is called.
type Volume struct {
	Kind     sniff.Kind
	Device   *blockdev.Device
	FAT12    *fat12.Engine
	CPM      *cpm.Engine
	HardDisk *harddisk.Disk

	// CHD is set when the image came wrapped in a MAME CHD container,
	// so callers can reach its embedded metadata.
	CHD *chd.File
}

// SelectPartition narrows a multi-partition hard-disk Volume down to
// one partition's FAT12 engine.
func (v *Volume) SelectPartition(index int) error {
	if v.HardDisk == nil {
		return verrors.ErrInvalidArgument.WithMessage("not a multi-partition image")
	}
	partition, err := v.HardDisk.GetPartition(index)
	if err != nil {
		return err
	}
	v.FAT12 = partition.Engine
	return nil
}

// Flush persists any in-memory mutations (FAT shadow copies) back to
// the underlying device.
func (v *Volume) Flush() error {
	switch {
	case v.HardDisk != nil:
		return v.HardDisk.Flush()
	case v.FAT12 != nil:
		return v.FAT12.Flush()
	default:
		return nil
	}
}

// Open opens hostPath — a raw .img/.ima/.dsk sector image or a MAME
// .chd container — read-write unless readonly is true (a .chd opens
// only with readonly true), identifies its format with sniff.Identify, and constructs the matching engine. If
// partition is non-nil and the image turns out to be a multi-partition
// hard disk, that partition is selected immediately so the caller
// doesn't need a separate SelectPartition call.
func Open(hostPath string, partition *int, readonly bool) (*Volume, error) {
	file, err := openHostFile(hostPath, readonly)
	if err != nil {
		return nil, err
	}

	stream, totalBytes, container, err := wrapContainer(hostPath, file, readonly)
	if err != nil {
		return nil, err
	}

	totalSectors := uint(totalBytes / blockdev.SectorSize)
	device := blockdev.New(stream, totalSectors, 0, readonly)

	kind, err := sniff.Identify(device, totalBytes)
	if err != nil {
		return nil, err
	}

	volume := &Volume{Kind: kind, Device: device, CHD: container}

	switch kind {
	case sniff.KindFloppyVictor:
		engine, err := victor.Open(device)
		if err != nil {
			return nil, err
		}
		volume.FAT12 = engine

	case sniff.KindFloppyIBMPC:
		engine, err := ibmpc.Open(device)
		if err != nil {
			return nil, err
		}
		volume.FAT12 = engine

	case sniff.KindHardDiskVictor:
		disk, err := harddisk.Open(device)
		if err != nil {
			return nil, err
		}
		volume.HardDisk = disk
		if partition != nil {
			if err := volume.SelectPartition(*partition); err != nil {
				return nil, err
			}
		}

	case sniff.KindCPM:
		engine, err := cpm.Open(device)
		if err != nil {
			return nil, err
		}
		volume.CPM = engine

	default:
		return nil, verrors.ErrCorruptedDisk.WithMessage("could not identify disk image format")
	}

	return volume, nil
}

func openHostFile(hostPath string, readonly bool) (*os.File, error) {
	if readonly {
		f, err := os.Open(hostPath)
		if err != nil {
			return nil, verrors.ErrIOFailed.WrapError(err)
		}
		return f, nil
	}
	f, err := os.OpenFile(hostPath, os.O_RDWR, 0)
	if err != nil {
		return nil, verrors.ErrIOFailed.WrapError(err)
	}
	return f, nil
}

// wrapContainer decides whether hostPath is a raw sector image or a
// CHD container and returns the stream blockdev should address
// sectors through, along with its logical size in bytes.
func wrapContainer(hostPath string, file *os.File, readonly bool) (io.ReadWriteSeeker, int64, *chd.File, error) {
	if strings.EqualFold(filepath.Ext(hostPath), ".chd") {
		container, err := chd.Open(file)
		if err != nil {
			return nil, 0, nil, err
		}
		if !readonly {
			return nil, 0, nil, verrors.ErrReadOnlyFileSystem.WithMessage(
				"CHD images can only be opened read-only")
		}
		return container, container.LogicalBytes(), container, nil
	}

	info, err := file.Stat()
	if err != nil {
		return nil, 0, nil, verrors.ErrIOFailed.WrapError(err)
	}
	return file, info.Size(), nil, nil
}
