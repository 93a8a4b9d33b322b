package harddisk

import (
	"github.com/IntergalacticMicrosystems/vtg-image-util/blockdev"
	verrors "github.com/IntergalacticMicrosystems/vtg-image-util/errors"
)

// Disk is a Victor 9000 hard disk image containing one or more
// partitions (virtual volumes), all sharing a single block device.
type Disk struct {
	device     *blockdev.Device
	Label      PhysicalDiskLabel
	partitions []*Partition
}

// Open reads the physical disk label from device and constructs a
// Partition (with its own FAT12 engine) for every virtual volume the
// label names.
func Open(device *blockdev.Device) (*Disk, error) {
	sector0, err := device.ReadSector(0)
	if err != nil {
		return nil, err
	}
	sector1, err := device.ReadSector(1)
	if err != nil {
		return nil, err
	}
	combined := append(append([]byte{}, sector0...), sector1...)

	label, err := ParsePhysicalDiskLabel(combined)
	if err != nil {
		return nil, err
	}

	disk := &Disk{device: device, Label: label}

	for idx, addr := range label.VirtualVolumeAddresses {
		volumeSector, err := device.ReadSector(uint(addr))
		if err != nil {
			return nil, err
		}
		volumeLabel, err := ParseVirtualVolumeLabel(volumeSector, addr)
		if err != nil {
			return nil, verrors.ErrHardDiskLabel.WrapError(err)
		}
		if !IsValidVolumeLabelType(volumeLabel.LabelType) {
			continue
		}
		partition, err := openPartition(device, idx, volumeLabel)
		if err != nil {
			return nil, err
		}
		disk.partitions = append(disk.partitions, partition)
	}

	return disk, nil
}

// PartitionCount returns the number of virtual volumes on the disk.
func (d *Disk) PartitionCount() int {
	return len(d.partitions)
}

// GetPartition returns the partition at index, or InvalidPartition if
// index is out of range.
func (d *Disk) GetPartition(index int) (*Partition, error) {
	if index < 0 || index >= len(d.partitions) {
		return nil, verrors.ErrInvalidPartition.WithMessage(
			"invalid partition index")
	}
	return d.partitions[index], nil
}

// ListPartitions returns every partition in order.
func (d *Disk) ListPartitions() []*Partition {
	return d.partitions
}

// Flush persists every partition's FAT to disk.
func (d *Disk) Flush() error {
	for _, p := range d.partitions {
		if err := p.Engine.Flush(); err != nil {
			return err
		}
	}
	return nil
}
