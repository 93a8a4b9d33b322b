package cpm

import (
	"sort"
	"strings"

	"github.com/IntergalacticMicrosystems/vtg-image-util/fat12"

	verrors "github.com/IntergalacticMicrosystems/vtg-image-util/errors"
)

// FileInfo aggregates every extent belonging to one CP/M file into a
// single logical view: CP/M has no subdirectories, so a "file" is
// fully identified by (user, filename, extension).
type FileInfo struct {
	User      uint8
	Filename  string
	Extension string
	Size      int
	Extents   []DirEntry
}

// FullName returns "NAME.EXT", or bare "NAME" if the file has no
// extension.
func (f FileInfo) FullName() string {
	if f.Extension == "" {
		return f.Filename
	}
	return f.Filename + "." + f.Extension
}

// ListFiles aggregates the live directory into one FileInfo per
// distinct (user, name, extension), sorted by user then name. CP/M has
// a flat namespace, so there is no path argument.
func (e *Engine) ListFiles() ([]FileInfo, error) {
	entries, err := e.readDirectory()
	if err != nil {
		return nil, err
	}

	type key struct {
		user      uint8
		name, ext string
	}
	grouped := map[key][]DirEntry{}
	var order []key

	for _, entry := range entries {
		k := key{entry.User, strings.ToUpper(trimTrailingSpaces(entry.Filename)), strings.ToUpper(trimTrailingSpaces(entry.Extension))}
		if _, seen := grouped[k]; !seen {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], entry)
	}

	files := make([]FileInfo, 0, len(order))
	for _, k := range order {
		extents := grouped[k]
		sort.Slice(extents, func(i, j int) bool { return extents[i].Extent < extents[j].Extent })

		size := 0
		for i, extent := range extents {
			if i < len(extents)-1 {
				size += recordsPerExtent * recordSize
			} else {
				size += int(extent.RecordCount) * recordSize
			}
		}

		files = append(files, FileInfo{
			User:      k.user,
			Filename:  trimTrailingSpaces(extents[0].Filename),
			Extension: trimTrailingSpaces(extents[0].Extension),
			Size:      size,
			Extents:   extents,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].User != files[j].User {
			return files[i].User < files[j].User
		}
		return files[i].FullName() < files[j].FullName()
	})
	return files, nil
}

// FindFile looks up a file by its 8.3 name, matching across any user
// number.
func (e *Engine) FindFile(filename string) (*FileInfo, error) {
	name, ext, err := fat12.ValidateFilename(filename)
	if err != nil {
		return nil, err
	}
	name = trimTrailingSpaces(name)
	ext = trimTrailingSpaces(ext)

	files, err := e.ListFiles()
	if err != nil {
		return nil, err
	}
	for i := range files {
		if strings.ToUpper(files[i].Filename) == name && strings.ToUpper(files[i].Extension) == ext {
			return &files[i], nil
		}
	}
	return nil, verrors.ErrNotFound.WithMessage("file not found: " + filename)
}

// FindMatchingFiles returns every file whose name matches pattern,
// which may contain DOS wildcards. CP/M's flat namespace means there is
// no recursive variant.
func (e *Engine) FindMatchingFiles(pattern string) ([]FileInfo, error) {
	files, err := e.ListFiles()
	if err != nil {
		return nil, err
	}

	matched := []FileInfo{}
	for _, f := range files {
		if fat12.HasWildcards(pattern) {
			if fat12.MatchFilename(pattern, f.FullName()) {
				matched = append(matched, f)
			}
		} else if strings.EqualFold(f.FullName(), pattern) {
			matched = append(matched, f)
		}
	}
	return matched, nil
}

// ReadFile reads the full contents of filename, concatenating every
// extent's blocks in extent order and trimming to the file's recorded
// size.
func (e *Engine) ReadFile(filename string) ([]byte, error) {
	file, err := e.FindFile(filename)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0, file.Size)
	for _, extent := range file.Extents {
		for _, block := range extent.Blocks {
			blockData, err := e.readBlock(block)
			if err != nil {
				return nil, err
			}
			data = append(data, blockData...)
		}
	}
	if len(data) > file.Size {
		data = data[:file.Size]
	}
	return data, nil
}

// WriteFile stores data under filename for the given user number. Any
// existing file of the same name is allocated and written over only
// after the new chain commits successfully: blocks for the new content
// are reserved and written first, and the old extents are deleted only
// once every new directory entry is in place, so a failed write never
// destroys the original file.
func (e *Engine) WriteFile(filename string, data []byte, user uint8) error {
	name, ext, err := fat12.ValidateFilename(filename)
	if err != nil {
		return err
	}
	name = trimTrailingSpaces(name)
	ext = trimTrailingSpaces(ext)

	existing, _ := e.FindFile(filename)

	numBlocks := (len(data) + BlockSize - 1) / BlockSize
	if numBlocks == 0 {
		numBlocks = 1
	}
	blocks, err := e.allocateBlocks(numBlocks)
	if err != nil {
		return err
	}

	for i, block := range blocks {
		start := i * BlockSize
		end := start + BlockSize
		var chunk []byte
		if end <= len(data) {
			chunk = data[start:end]
		} else if start < len(data) {
			chunk = append([]byte{}, data[start:]...)
		}
		if len(chunk) < BlockSize {
			padded := make([]byte, BlockSize)
			copy(padded, chunk)
			for i := len(chunk); i < BlockSize; i++ {
				padded[i] = 0x1A // CP/M EOF marker
			}
			chunk = padded
		}
		if err := e.writeBlock(block, chunk); err != nil {
			return err
		}
	}

	recordsRemaining := (len(data) + recordSize - 1) / recordSize
	if recordsRemaining == 0 {
		recordsRemaining = 1
	}

	extentNum := 0
	blockIdx := 0
	for blockIdx < len(blocks) {
		sector, index, err := e.findFreeDirSlot()
		if err != nil {
			return err
		}

		end := blockIdx + blocksPerExtent
		if end > len(blocks) {
			end = len(blocks)
		}
		extentBlocks := blocks[blockIdx:end]

		extentRecords := recordsRemaining
		if extentRecords > recordsPerExtent {
			extentRecords = recordsPerExtent
		}

		entry := DirEntry{
			User:        user,
			Filename:    name,
			Extension:   ext,
			Extent:      extentNum,
			RecordCount: uint8(extentRecords),
			Blocks:      extentBlocks,
		}
		if err := e.writeDirEntry(sector, index, entry); err != nil {
			return err
		}

		blockIdx += len(extentBlocks)
		recordsRemaining -= extentRecords
		extentNum++
	}

	if existing != nil {
		if err := e.deleteExtents(existing.Extents); err != nil {
			return err
		}
	}
	return nil
}

// DeleteFile marks every extent of filename as deleted.
func (e *Engine) DeleteFile(filename string) error {
	file, err := e.FindFile(filename)
	if err != nil {
		return err
	}
	return e.deleteExtents(file.Extents)
}

// deleteExtents scans the directory for each extent in extents and
// marks its slot deleted in place.
func (e *Engine) deleteExtents(extents []DirEntry) error {
	// Block lists tell an old extent apart from a freshly written one
	// with the same name and extent number.
	sameBlocks := func(a, b []uint16) bool {
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	}
	for _, target := range extents {
		found := false
		for sectorOffset := 0; sectorOffset < DirSectors && !found; sectorOffset++ {
			sector := e.dirStart + uint(sectorOffset)*DirInterleave
			data, err := e.device.ReadSector(sector)
			if err != nil {
				continue
			}
			raw := append([]byte{}, data...)
			for i := 0; i < entriesPerSector; i++ {
				slot := raw[i*DirEntrySize : (i+1)*DirEntrySize]
				if slot[0] == deletedMarker || slot[0] == 0x00 {
					continue
				}
				entry, ok := decodeDirEntry(slot)
				if !ok {
					continue
				}
				if entry.User == target.User &&
					strings.EqualFold(entry.Filename, target.Filename) &&
					strings.EqualFold(entry.Extension, target.Extension) &&
					entry.Extent == target.Extent &&
					sameBlocks(entry.Blocks, target.Blocks) {
					slot[0] = deletedMarker
					if err := e.device.WriteSector(sector, raw); err != nil {
						return err
					}
					found = true
					break
				}
			}
		}
	}
	e.invalidateDirCache()
	return nil
}

// SetAttributes updates the read-only/system/archive attribute bits of
// every extent belonging to filename.
func (e *Engine) SetAttributes(filename string, readOnly, system, archived bool) error {
	file, err := e.FindFile(filename)
	if err != nil {
		return err
	}
	for _, target := range file.Extents {
		for sectorOffset := 0; sectorOffset < DirSectors; sectorOffset++ {
			sector := e.dirStart + uint(sectorOffset)*DirInterleave
			data, err := e.device.ReadSector(sector)
			if err != nil {
				continue
			}
			raw := append([]byte{}, data...)
			updated := false
			for i := 0; i < entriesPerSector; i++ {
				slot := raw[i*DirEntrySize : (i+1)*DirEntrySize]
				entry, ok := decodeDirEntry(slot)
				if !ok || entry.Deleted {
					continue
				}
				if entry.User == target.User &&
					strings.EqualFold(entry.Filename, target.Filename) &&
					strings.EqualFold(entry.Extension, target.Extension) &&
					entry.Extent == target.Extent {
					entry.SetAttributes(readOnly, system, archived)
					copy(slot, encodeDirEntry(entry))
					updated = true
				}
			}
			if updated {
				if err := e.device.WriteSector(sector, raw); err != nil {
					return err
				}
			}
		}
	}
	e.invalidateDirCache()
	return nil
}
