package fat12

import (
	"github.com/boljen/go-bitmap"

	"github.com/IntergalacticMicrosystems/vtg-image-util/blockdev"
	verrors "github.com/IntergalacticMicrosystems/vtg-image-util/errors"
)

// Engine drives the FAT12 allocation table and directory structure for
// one volume. Victor floppies, IBM PC floppies, and Victor hard disk
// partitions each construct an Engine with geometry derived from their
// own boot/label structures, then share this package's directory and
// file operations verbatim.
type Engine struct {
	device   *blockdev.Device
	geometry Geometry
	fat      *fatTable
	dirty    bitmap.Bitmap
}

// New constructs an Engine over device using geometry, and loads the
// first FAT copy into memory. Callers must call Flush to persist any
// mutation back to every FAT copy on disk.
func New(device *blockdev.Device, geometry Geometry) (*Engine, error) {
	e := &Engine{device: device, geometry: geometry}
	if err := e.loadFAT(); err != nil {
		return nil, err
	}
	e.dirty = bitmap.NewSlice(int(geometry.FATSectors))
	return e, nil
}

// Geometry returns the volume geometry this engine was constructed
// with.
func (e *Engine) Geometry() Geometry {
	return e.geometry
}

// TotalClusters returns the number of data clusters on the volume.
func (e *Engine) TotalClusters() uint {
	return e.geometry.TotalClusters
}

// ClusterSize returns the size, in bytes, of one allocation unit.
func (e *Engine) ClusterSize() uint {
	return e.geometry.ClusterSize
}

func (e *Engine) loadFAT() error {
	raw, err := e.device.ReadSectors(e.geometry.FATStart, e.geometry.FATSectors)
	if err != nil {
		return err
	}
	e.fat = &fatTable{raw: raw}
	return nil
}

// Flush writes every FAT sector touched by SetFatEntry since the last
// Flush out to each FAT copy on disk, keeping them byte-identical, then
// clears the dirty set.
func (e *Engine) Flush() error {
	bytesPerSector := uint(blockdev.SectorSize)

	for sector := uint(0); sector < e.geometry.FATSectors; sector++ {
		if !e.dirty.Get(int(sector)) {
			continue
		}

		start := sector * bytesPerSector
		sectorData := e.fat.raw[start : start+bytesPerSector]

		for copyIdx := uint(0); copyIdx < e.geometry.NumFATCopies; copyIdx++ {
			dest := e.geometry.FATStart + copyIdx*e.geometry.FATSectors + sector
			if err := e.device.WriteSectors(dest, sectorData); err != nil {
				return err
			}
		}
	}

	e.dirty = bitmap.NewSlice(int(e.geometry.FATSectors))
	return nil
}

// clusterToSector returns the first physical sector of cluster.
func (e *Engine) clusterToSector(cluster uint) uint {
	return e.geometry.DataStart + (cluster-2)*e.geometry.SectorsPerClust
}

// readCluster returns the raw bytes of one data cluster.
func (e *Engine) readCluster(cluster uint) ([]byte, error) {
	return e.device.ReadSectors(e.clusterToSector(cluster), e.geometry.SectorsPerClust)
}

// writeCluster overwrites one data cluster with data, which must be
// exactly ClusterSize bytes.
func (e *Engine) writeCluster(cluster uint, data []byte) error {
	if uint(len(data)) != e.geometry.ClusterSize {
		return verrors.ErrInvalidArgument.WithMessage("cluster write must be exactly one cluster")
	}
	return e.device.WriteSectors(e.clusterToSector(cluster), data)
}

// zeroCluster writes a cluster of all zero bytes.
func (e *Engine) zeroCluster(cluster uint) error {
	return e.writeCluster(cluster, make([]byte, e.geometry.ClusterSize))
}
