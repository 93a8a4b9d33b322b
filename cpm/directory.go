package cpm

import (
	verrors "github.com/IntergalacticMicrosystems/vtg-image-util/errors"
)

// readDirectory returns every live (non-deleted, well-formed)
// directory entry, reading through the interleaved directory sectors.
// Results are cached until the next mutation.
func (e *Engine) readDirectory() ([]DirEntry, error) {
	if e.dirCacheLoad {
		return e.dirCache, nil
	}

	entries := []DirEntry{}
	for sectorOffset := 0; sectorOffset < DirSectors; sectorOffset++ {
		sector := e.dirStart + uint(sectorOffset)*DirInterleave
		data, err := e.device.ReadSector(sector)
		if err != nil {
			continue
		}
		for i := 0; i < entriesPerSector; i++ {
			raw := data[i*DirEntrySize : (i+1)*DirEntrySize]
			if raw[0] == deletedMarker {
				continue
			}
			entry, ok := decodeDirEntry(raw)
			if !ok {
				continue
			}
			entries = append(entries, entry)
		}
	}

	e.dirCache = entries
	e.dirCacheLoad = true
	return entries, nil
}

func (e *Engine) invalidateDirCache() {
	e.dirCacheLoad = false
	e.dirCache = nil
}

// findFreeDirSlot returns the (sector, index) of the first free
// directory slot: one marked deleted, or one that has never been
// written (all zero bytes, user number 0x00 with a blank name).
func (e *Engine) findFreeDirSlot() (sector uint, index int, err error) {
	for slot := 0; slot < DirSectors*entriesPerSector; slot++ {
		sector, index = e.dirSectorOffset(slot)
		data, readErr := e.device.ReadSector(sector)
		if readErr != nil {
			continue
		}
		raw := data[index*DirEntrySize : (index+1)*DirEntrySize]
		if raw[0] == deletedMarker || isNeverUsedSlot(raw) {
			return sector, index, nil
		}
	}
	return 0, 0, verrors.ErrDirectoryFull.WithMessage("no free CP/M directory slot")
}

// isNeverUsedSlot reports whether raw looks like a slot that has never
// held an entry: user byte 0x00 and a blank filename, distinguishing it
// from a live user-0 file.
func isNeverUsedSlot(raw []byte) bool {
	if raw[0] != 0x00 {
		return false
	}
	for _, b := range raw[1:9] {
		if b&0x7F != ' ' && b != 0x00 {
			return false
		}
	}
	return true
}

// writeDirEntry stores entry at the given directory slot and
// invalidates the cache.
func (e *Engine) writeDirEntry(sector uint, index int, entry DirEntry) error {
	data, err := e.device.ReadSector(sector)
	if err != nil {
		return err
	}
	raw := append([]byte{}, data...)
	copy(raw[index*DirEntrySize:(index+1)*DirEntrySize], encodeDirEntry(entry))
	if err := e.device.WriteSector(sector, raw); err != nil {
		return err
	}
	e.invalidateDirCache()
	return nil
}

// usedBlocks returns the set of every allocation block currently
// referenced by a live directory entry. Because CP/M-86 here keeps no
// standalone free-block bitmap, this scan is how used/free state is
// recomputed on every allocation.
func (e *Engine) usedBlocks() (map[uint16]bool, error) {
	entries, err := e.readDirectory()
	if err != nil {
		return nil, err
	}
	used := make(map[uint16]bool)
	for _, entry := range entries {
		for _, block := range entry.Blocks {
			used[block] = true
		}
	}
	return used, nil
}

// allocateBlocks reserves count previously-unused blocks below
// MaxBlocks, recomputing the used set from live directory entries
// first so a freshly deleted file's blocks become available again
// immediately.
func (e *Engine) allocateBlocks(count int) ([]uint16, error) {
	used, err := e.usedBlocks()
	if err != nil {
		return nil, err
	}

	blocks := make([]uint16, 0, count)
	for block := uint16(0); int(block) < MaxBlocks && len(blocks) < count; block++ {
		if !used[block] {
			blocks = append(blocks, block)
		}
	}
	if len(blocks) < count {
		return nil, verrors.ErrDiskFull.WithMessage("not enough free CP/M blocks")
	}
	return blocks, nil
}
