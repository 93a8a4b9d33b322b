package fat12

import (
	verrors "github.com/IntergalacticMicrosystems/vtg-image-util/errors"
)

// dirLocation pins down where a directory's raw bytes live: either the
// fixed-size root region, or a cluster chain belonging to a
// subdirectory.
type dirLocation struct {
	isRoot       bool
	startCluster uint // meaningful only when !isRoot
	rootSector   uint
	rootSectors  uint
}

func (e *Engine) rootLocation() dirLocation {
	return dirLocation{isRoot: true, rootSector: e.geometry.DirStart, rootSectors: e.geometry.DirSectors}
}

func (e *Engine) subdirLocation(startCluster uint) dirLocation {
	return dirLocation{isRoot: false, startCluster: startCluster}
}

// readDirRaw returns the raw byte contents of a directory, root or
// subdirectory, without interpreting the records.
func (e *Engine) readDirRaw(loc dirLocation) ([]byte, error) {
	if loc.isRoot {
		return e.device.ReadSectors(loc.rootSector, loc.rootSectors)
	}

	chain, err := e.FollowChain(loc.startCluster)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, uint(len(chain))*e.geometry.ClusterSize)
	for _, cluster := range chain {
		data, err := e.readCluster(cluster)
		if err != nil {
			return nil, err
		}
		buf = append(buf, data...)
	}
	return buf, nil
}

// ReadDirectory decodes every live entry of a directory. cluster nil
// means the volume's root directory; otherwise cluster is the first
// cluster of a subdirectory. Deleted entries and the volume label are
// skipped; a 0x00 first byte terminates the scan.
func (e *Engine) ReadDirectory(cluster *uint) ([]DirEntry, error) {
	var loc dirLocation
	if cluster == nil {
		loc = e.rootLocation()
	} else {
		loc = e.subdirLocation(*cluster)
	}

	raw, err := e.readDirRaw(loc)
	if err != nil {
		return nil, err
	}

	entries := []DirEntry{}
	for offset := 0; offset+DirEntrySize <= len(raw); offset += DirEntrySize {
		record := raw[offset : offset+DirEntrySize]
		entry := decodeDirEntry(record)
		if entry.IsEnd() {
			break
		}
		if entry.IsDeleted() || entry.IsVolumeLabel() {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// writeDirEntrySlot overwrites the slot-th 32-byte record of a
// directory with entry.
func (e *Engine) writeDirEntrySlot(loc dirLocation, slot int, entry *DirEntry) error {
	record := encodeDirEntry(entry)

	if loc.isRoot {
		entriesPerSector := blockSectorDirEntries()
		sector := loc.rootSector + uint(slot)/entriesPerSector
		sectorData, err := e.device.ReadSectors(sector, 1)
		if err != nil {
			return err
		}
		offsetInSector := (slot % int(entriesPerSector)) * DirEntrySize
		copy(sectorData[offsetInSector:offsetInSector+DirEntrySize], record)
		return e.device.WriteSectors(sector, sectorData)
	}

	chain, err := e.FollowChain(loc.startCluster)
	if err != nil {
		return err
	}
	entriesPerCluster := int(e.geometry.ClusterSize / DirEntrySize)
	clusterIdx := slot / entriesPerCluster
	if clusterIdx >= len(chain) {
		return verrors.ErrArgumentOutOfRange.WithMessage("directory slot past end of chain")
	}
	clusterData, err := e.readCluster(chain[clusterIdx])
	if err != nil {
		return err
	}
	offsetInCluster := (slot % entriesPerCluster) * DirEntrySize
	copy(clusterData[offsetInCluster:offsetInCluster+DirEntrySize], record)
	return e.writeCluster(chain[clusterIdx], clusterData)
}

// blockSectorDirEntries returns how many 32-byte directory entries fit
// in one physical sector.
func blockSectorDirEntries() uint {
	return 512 / DirEntrySize
}

// findFreeDirSlot locates the index of a directory record that is
// either unused (0x00) or deleted (0xE5), suitable for a new entry. A
// root directory is fixed-size and reports DirectoryFullError when
// exhausted; a subdirectory grows by allocating and linking a new
// cluster, which is zero-filled so its first record reads as
// end-of-directory.
func (e *Engine) findFreeDirSlot(loc dirLocation) (dirLocation, int, error) {
	raw, err := e.readDirRaw(loc)
	if err != nil {
		return loc, 0, err
	}

	for offset := 0; offset+DirEntrySize <= len(raw); offset += DirEntrySize {
		record := raw[offset : offset+DirEntrySize]
		if record[0] == 0x00 || record[0] == deletedMarker {
			return loc, offset / DirEntrySize, nil
		}
	}

	if loc.isRoot {
		return loc, 0, verrors.ErrDirectoryFull.WithMessage("root directory is full")
	}

	// Grow the subdirectory by one cluster, linked onto the end of its
	// chain, zero-filled so the new slots read as end-of-directory.
	chain, err := e.FollowChain(loc.startCluster)
	if err != nil {
		return loc, 0, err
	}
	newChain, err := e.AllocateChain(1)
	if err != nil {
		return loc, 0, verrors.ErrDiskFull.WrapError(err)
	}
	newCluster := newChain[0]
	if err := e.zeroCluster(newCluster); err != nil {
		return loc, 0, err
	}
	e.SetFatEntry(chain[len(chain)-1], uint16(newCluster))

	slotIndex := len(chain) * int(e.geometry.ClusterSize/DirEntrySize)
	return loc, slotIndex, nil
}

// markSlotDeleted overwrites the first byte of a directory slot with the
// deleted-entry marker.
func (e *Engine) markSlotDeleted(loc dirLocation, slot int) error {
	entries, err := e.readDirRaw(loc)
	if err != nil {
		return err
	}
	offset := slot * DirEntrySize
	if offset+DirEntrySize > len(entries) {
		return verrors.ErrArgumentOutOfRange.WithMessage("directory slot out of range")
	}
	decoded := decodeDirEntry(entries[offset : offset+DirEntrySize])
	decoded.Name = string([]byte{deletedMarker}) + decoded.Name[1:]
	return e.writeDirEntrySlot(loc, slot, &decoded)
}
