package fat12

import (
	"strings"
	"time"

	verrors "github.com/IntergalacticMicrosystems/vtg-image-util/errors"
)

// findEntryExact scans a directory for a single entry whose Name/Ext
// fields exactly match name/ext (already 8.3 padded, uppercase). It
// returns the entry and the slot index it occupies, or NotFound.
func (e *Engine) findEntryExact(loc dirLocation, name, ext string) (DirEntry, int, error) {
	raw, err := e.readDirRaw(loc)
	if err != nil {
		return DirEntry{}, 0, err
	}

	for offset := 0; offset+DirEntrySize <= len(raw); offset += DirEntrySize {
		record := raw[offset : offset+DirEntrySize]
		entry := decodeDirEntry(record)
		if entry.IsEnd() {
			break
		}
		if entry.IsDeleted() || entry.IsVolumeLabel() {
			continue
		}
		if entry.Name == name && entry.Ext == ext {
			return entry, offset / DirEntrySize, nil
		}
	}
	return DirEntry{}, 0, verrors.ErrNotFound.WithMessage("no such file or directory")
}

// ResolvePath walks components from the root, descending through
// subdirectories, and returns the directory location that would
// contain the final component along with its decoded entry. An empty
// components slice resolves to the root directory itself, with a nil
// entry. If the final component does not exist, the returned location
// is still valid (so callers can create a new entry there) but err is
// NotFound.
func (e *Engine) ResolvePath(components []string) (dirLocation, *DirEntry, error) {
	loc := e.rootLocation()
	if len(components) == 0 {
		return loc, nil, nil
	}

	for i, raw := range components[:len(components)-1] {
		name, ext, err := ValidateFilename(raw)
		if err != nil {
			return loc, nil, err
		}
		entry, _, err := e.findEntryExact(loc, name, ext)
		if err != nil {
			return loc, nil, verrors.ErrNotFound.WithMessage(
				"path component not found: " + components[i])
		}
		if !entry.IsDirectory() {
			return loc, nil, verrors.ErrNotADirectory.WithMessage(components[i])
		}
		loc = e.subdirLocation(uint(entry.FirstCluster))
	}

	last := components[len(components)-1]
	name, ext, err := ValidateFilename(last)
	if err != nil {
		return loc, nil, err
	}
	entry, _, err := e.findEntryExact(loc, name, ext)
	if err != nil {
		return loc, nil, err
	}
	return loc, &entry, nil
}

// ReadFile reads the complete contents of the file named by
// components.
func (e *Engine) ReadFile(components []string) ([]byte, error) {
	_, entry, err := e.ResolvePath(components)
	if err != nil {
		return nil, err
	}
	if entry.IsDirectory() {
		return nil, verrors.ErrIsADirectory.WithMessage(strings.Join(components, "\\"))
	}
	if entry.FileSize == 0 {
		return []byte{}, nil
	}

	chain, err := e.FollowChain(uint(entry.FirstCluster))
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0, uint(len(chain))*e.geometry.ClusterSize)
	for _, cluster := range chain {
		clusterData, err := e.readCluster(cluster)
		if err != nil {
			return nil, err
		}
		data = append(data, clusterData...)
	}
	// A chain cut short by corruption can carry fewer bytes than the
	// directory claims; return what the chain actually holds.
	if uint(len(data)) > uint(entry.FileSize) {
		data = data[:entry.FileSize]
	}
	return data, nil
}

// WriteFile creates or overwrites the file named by components with
// contents. The new chain is allocated and fully written before a
// pre-existing entry of the same name is overwritten in place and its
// old chain freed, so a write that cannot fit leaves the original file
// untouched.
func (e *Engine) WriteFile(components []string, contents []byte) error {
	if len(components) == 0 {
		return verrors.ErrInvalidArgument.WithMessage("cannot write to the root directory")
	}

	parentComponents := components[:len(components)-1]
	parentLoc, parentEntry, err := e.ResolvePath(parentComponents)
	if err != nil {
		return err
	}
	if len(parentComponents) > 0 {
		if parentEntry == nil || !parentEntry.IsDirectory() {
			return verrors.ErrNotADirectory.WithMessage(strings.Join(parentComponents, "\\"))
		}
		parentLoc = e.subdirLocation(uint(parentEntry.FirstCluster))
	}

	name, ext, err := ValidateFilename(components[len(components)-1])
	if err != nil {
		return err
	}

	existing, existingSlot, existingErr := e.findEntryExact(parentLoc, name, ext)
	hasExisting := existingErr == nil
	if hasExisting && existing.IsDirectory() {
		return verrors.ErrIsADirectory.WithMessage(strings.Join(components, "\\"))
	}

	var newChain []uint
	clusterCount := uint(0)
	if len(contents) > 0 {
		clusterCount = (uint(len(contents)) + e.geometry.ClusterSize - 1) / e.geometry.ClusterSize
		newChain, err = e.AllocateChain(clusterCount)
		if err != nil {
			return err
		}
	}

	if err := e.writeChainData(newChain, contents); err != nil {
		e.FreeChain(newChain)
		return err
	}

	now := time.Now()
	entry := DirEntry{
		Name:       name,
		Ext:        ext,
		Attr:       AttrArchive,
		CreateDate: EncodeDOSDate(now),
		CreateTime: EncodeDOSTime(now),
		ModifyDate: EncodeDOSDate(now),
		ModifyTime: EncodeDOSTime(now),
		FileSize:   uint32(len(contents)),
	}
	if len(newChain) > 0 {
		entry.FirstCluster = uint16(newChain[0])
	}
	if hasExisting {
		entry.Attr = existing.Attr | AttrArchive
		entry.CreateDate = existing.CreateDate
		entry.CreateTime = existing.CreateTime
	}

	var slot int
	if hasExisting {
		slot = existingSlot
	} else {
		var slotLoc dirLocation
		slotLoc, slot, err = e.findFreeDirSlot(parentLoc)
		if err != nil {
			e.FreeChain(newChain)
			return err
		}
		parentLoc = slotLoc
	}

	if err := e.writeDirEntrySlot(parentLoc, slot, &entry); err != nil {
		e.FreeChain(newChain)
		return err
	}

	// Now that the new entry is committed, free the old file's chain if
	// it held one different from the new one.
	if hasExisting && existing.FirstCluster != 0 {
		oldChain, chainErr := e.FollowChain(uint(existing.FirstCluster))
		if chainErr == nil {
			e.FreeChain(oldChain)
		}
	}

	return e.Flush()
}

// writeChainData writes contents across chain, one cluster at a time,
// zero-padding the final partial cluster.
func (e *Engine) writeChainData(chain []uint, contents []byte) error {
	for i, cluster := range chain {
		start := uint(i) * e.geometry.ClusterSize
		end := start + e.geometry.ClusterSize
		var block []byte
		if end <= uint(len(contents)) {
			block = contents[start:end]
		} else {
			block = make([]byte, e.geometry.ClusterSize)
			if start < uint(len(contents)) {
				copy(block, contents[start:])
			}
		}
		if err := e.writeCluster(cluster, block); err != nil {
			return err
		}
	}
	return nil
}

// DeleteFile removes the directory entry named by components and
// frees its cluster chain.
func (e *Engine) DeleteFile(components []string) error {
	loc, entry, err := e.ResolvePath(components)
	if err != nil {
		return err
	}
	if entry.IsDirectory() {
		return verrors.ErrIsADirectory.WithMessage(strings.Join(components, "\\"))
	}

	name, ext, err := ValidateFilename(components[len(components)-1])
	if err != nil {
		return err
	}
	_, slot, err := e.findEntryExact(loc, name, ext)
	if err != nil {
		return err
	}

	if entry.FirstCluster != 0 {
		chain, err := e.FollowChain(uint(entry.FirstCluster))
		if err == nil {
			e.FreeChain(chain)
		}
	}
	if err := e.markSlotDeleted(loc, slot); err != nil {
		return err
	}
	return e.Flush()
}

// ListFiles returns the live entries of the directory named by
// components (empty for root).
func (e *Engine) ListFiles(components []string) ([]DirEntry, error) {
	if len(components) == 0 {
		return e.ReadDirectory(nil)
	}
	_, entry, err := e.ResolvePath(components)
	if err != nil {
		return nil, err
	}
	if !entry.IsDirectory() {
		return nil, verrors.ErrNotADirectory.WithMessage(strings.Join(components, "\\"))
	}
	cluster := uint(entry.FirstCluster)
	return e.ReadDirectory(&cluster)
}

// FindMatchingFiles lists the directory named by dirComponents and
// filters its entries by the DOS wildcard pattern.
func (e *Engine) FindMatchingFiles(dirComponents []string, pattern string) ([]DirEntry, error) {
	entries, err := e.ListFiles(dirComponents)
	if err != nil {
		return nil, err
	}
	result := []DirEntry{}
	for _, entry := range entries {
		if entry.IsDotEntry() {
			continue
		}
		result = append(result, entry)
	}
	return MatchEntries(result, pattern), nil
}

// PathEntry pairs a directory entry with its path relative to the
// directory ListRecursive started from.
type PathEntry struct {
	RelativePath string
	Entry        DirEntry
}

// ListRecursive walks the directory tree rooted at dirComponents (root
// if empty) and returns every file, skipping `.`/`..`. If pattern is
// non-empty, only files whose name matches it are returned.
func (e *Engine) ListRecursive(dirComponents []string, pattern string) ([]PathEntry, error) {
	var startCluster *uint
	prefix := ""
	if len(dirComponents) > 0 {
		_, entry, err := e.ResolvePath(dirComponents)
		if err != nil {
			return nil, err
		}
		if !entry.IsDirectory() {
			return nil, verrors.ErrNotADirectory.WithMessage(strings.Join(dirComponents, "\\"))
		}
		c := uint(entry.FirstCluster)
		startCluster = &c
		prefix = strings.Join(dirComponents, "\\")
	}

	results := []PathEntry{}
	var recurse func(cluster *uint, path string) error
	recurse = func(cluster *uint, path string) error {
		entries, err := e.ReadDirectory(cluster)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.IsDotEntry() {
				continue
			}
			entryPath := entry.FullName()
			if path != "" {
				entryPath = path + "\\" + entry.FullName()
			}
			if entry.IsDirectory() {
				c := uint(entry.FirstCluster)
				if err := recurse(&c, entryPath); err != nil {
					return err
				}
			} else if pattern == "" || MatchFilename(pattern, entry.FullName()) {
				results = append(results, PathEntry{RelativePath: entryPath, Entry: entry})
			}
		}
		return nil
	}

	if err := recurse(startCluster, prefix); err != nil {
		return nil, err
	}
	return results, nil
}

// GetAttributes returns the attribute byte of the entry named by
// components.
func (e *Engine) GetAttributes(components []string) (uint8, error) {
	_, entry, err := e.ResolvePath(components)
	if err != nil {
		return 0, err
	}
	return entry.Attr, nil
}

// SetAttributes updates the attribute byte of the entry named by
// components, preserving the directory bit regardless of what
// attributes requests.
func (e *Engine) SetAttributes(components []string, attributes uint8) error {
	loc, entry, err := e.ResolvePath(components)
	if err != nil {
		return err
	}
	name, ext, err := ValidateFilename(components[len(components)-1])
	if err != nil {
		return err
	}
	_, slot, err := e.findEntryExact(loc, name, ext)
	if err != nil {
		return err
	}

	updated := *entry
	updated.Attr = (entry.Attr & AttrDirectory) | (attributes &^ AttrDirectory)
	if err := e.writeDirEntrySlot(loc, slot, &updated); err != nil {
		return err
	}
	return e.Flush()
}

// RenameEntry changes the name of the entry at oldComponents to
// newName, in place, within the same directory.
func (e *Engine) RenameEntry(oldComponents []string, newName string) error {
	loc, entry, err := e.ResolvePath(oldComponents)
	if err != nil {
		return err
	}
	oldName, oldExt, err := ValidateFilename(oldComponents[len(oldComponents)-1])
	if err != nil {
		return err
	}
	_, slot, err := e.findEntryExact(loc, oldName, oldExt)
	if err != nil {
		return err
	}

	name, ext, err := ValidateFilename(newName)
	if err != nil {
		return err
	}
	if _, _, err := e.findEntryExact(loc, name, ext); err == nil {
		return verrors.ErrExists.WithMessage("a file with that name already exists")
	}

	updated := *entry
	updated.Name = name
	updated.Ext = ext
	if err := e.writeDirEntrySlot(loc, slot, &updated); err != nil {
		return err
	}
	return e.Flush()
}

// CreateDirectory allocates a new subdirectory named by components,
// writes its `.` and `..` entries, and links it into its parent.
func (e *Engine) CreateDirectory(components []string) error {
	if len(components) == 0 {
		return verrors.ErrExists.WithMessage("root directory always exists")
	}

	parentComponents := components[:len(components)-1]
	parentLoc, parentEntry, err := e.ResolvePath(parentComponents)
	if err != nil {
		return err
	}
	var parentCluster uint
	if len(parentComponents) > 0 {
		if parentEntry == nil || !parentEntry.IsDirectory() {
			return verrors.ErrNotADirectory.WithMessage(strings.Join(parentComponents, "\\"))
		}
		parentCluster = uint(parentEntry.FirstCluster)
		parentLoc = e.subdirLocation(parentCluster)
	}

	name, ext, err := ValidateFilename(components[len(components)-1])
	if err != nil {
		return err
	}
	if _, _, err := e.findEntryExact(parentLoc, name, ext); err == nil {
		return verrors.ErrExists.WithMessage("a file or directory with that name already exists")
	}

	newChain, err := e.AllocateChain(1)
	if err != nil {
		return err
	}
	selfCluster := newChain[0]
	if err := e.zeroCluster(selfCluster); err != nil {
		e.FreeChain(newChain)
		return err
	}

	now := time.Now()
	dotEntry := DirEntry{
		Name: ".       ", Ext: "   ", Attr: AttrDirectory,
		FirstCluster: uint16(selfCluster),
		CreateDate:   EncodeDOSDate(now), CreateTime: EncodeDOSTime(now),
		ModifyDate: EncodeDOSDate(now), ModifyTime: EncodeDOSTime(now),
	}
	dotdotEntry := DirEntry{
		Name: "..      ", Ext: "   ", Attr: AttrDirectory,
		FirstCluster: uint16(parentCluster),
		CreateDate:   EncodeDOSDate(now), CreateTime: EncodeDOSTime(now),
		ModifyDate: EncodeDOSDate(now), ModifyTime: EncodeDOSTime(now),
	}
	selfLoc := e.subdirLocation(selfCluster)
	if err := e.writeDirEntrySlot(selfLoc, 0, &dotEntry); err != nil {
		e.FreeChain(newChain)
		return err
	}
	if err := e.writeDirEntrySlot(selfLoc, 1, &dotdotEntry); err != nil {
		e.FreeChain(newChain)
		return err
	}

	slotLoc, slot, err := e.findFreeDirSlot(parentLoc)
	if err != nil {
		e.FreeChain(newChain)
		return err
	}
	entry := DirEntry{
		Name: name, Ext: ext, Attr: AttrDirectory,
		FirstCluster: uint16(selfCluster),
		CreateDate:   EncodeDOSDate(now), CreateTime: EncodeDOSTime(now),
		ModifyDate: EncodeDOSDate(now), ModifyTime: EncodeDOSTime(now),
	}
	if err := e.writeDirEntrySlot(slotLoc, slot, &entry); err != nil {
		e.FreeChain(newChain)
		return err
	}
	return e.Flush()
}

// DeleteDirectory removes the subdirectory named by components. If
// recursive is false and the directory contains anything other than
// `.`/`..`, DirectoryNotEmpty is returned. If recursive is true, every
// file and subdirectory is deleted first.
func (e *Engine) DeleteDirectory(components []string, recursive bool) error {
	loc, entry, err := e.ResolvePath(components)
	if err != nil {
		return err
	}
	if !entry.IsDirectory() {
		return verrors.ErrNotADirectory.WithMessage(strings.Join(components, "\\"))
	}

	cluster := uint(entry.FirstCluster)
	children, err := e.ReadDirectory(&cluster)
	if err != nil {
		return err
	}

	liveChildren := []DirEntry{}
	for _, child := range children {
		if !child.IsDotEntry() {
			liveChildren = append(liveChildren, child)
		}
	}

	if len(liveChildren) > 0 && !recursive {
		return verrors.ErrDirectoryNotEmpty.WithMessage(strings.Join(components, "\\"))
	}

	if recursive {
		for _, child := range liveChildren {
			childPath := append(append([]string{}, components...), child.FullName())
			if child.IsDirectory() {
				if err := e.DeleteDirectory(childPath, true); err != nil {
					return err
				}
			} else {
				if err := e.DeleteFile(childPath); err != nil {
					return err
				}
			}
		}
	}

	ownChain, err := e.FollowChain(cluster)
	if err == nil {
		e.FreeChain(ownChain)
	}

	name, ext, err := ValidateFilename(components[len(components)-1])
	if err != nil {
		return err
	}
	_, slot, err := e.findEntryExact(loc, name, ext)
	if err != nil {
		return err
	}
	if err := e.markSlotDeleted(loc, slot); err != nil {
		return err
	}
	return e.Flush()
}
