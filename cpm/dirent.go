// Package cpm implements the Victor 9000 CP/M-86 flat-directory
// filesystem: a single interleaved directory area and a block
// allocation map, with no subdirectories. It shares 8.3 filename
// validation and wildcard matching with fat12, since both volume
// families use the same on-disk filename convention.
package cpm

import (
	"encoding/binary"

	verrors "github.com/IntergalacticMicrosystems/vtg-image-util/errors"
)

const (
	DirEntrySize    = 32
	deletedMarker   = 0xE5
	maxUserNumber   = 15
	blocksPerExtent = 8
	recordsPerExtent = 128
	recordSize       = 128
)

// DirEntry is one 32-byte CP/M directory record. A file larger than one
// extent's worth of data (16KB) is represented by several DirEntry
// records sharing the same user/filename/extension and differing in
// Extent.
type DirEntry struct {
	User        uint8
	Filename    string // 8 chars, space-padded
	Extension   string // 3 chars, space-padded
	Extent      int    // combined extent number: S2*32 + EL
	RecordCount uint8
	Blocks      []uint16
	Deleted     bool
	extRaw      [3]byte // original extension bytes, attribute high bits preserved
}

// IsReadOnly reports the CP/M read-only attribute, stored in the high
// bit of the first extension byte.
func (e DirEntry) IsReadOnly() bool {
	return e.extRaw[0]&0x80 != 0
}

// IsSystem reports the CP/M system/hidden attribute, stored in the
// high bit of the second extension byte.
func (e DirEntry) IsSystem() bool {
	return e.extRaw[1]&0x80 != 0
}

// IsArchived reports the CP/M archive attribute, stored in the high
// bit of the third extension byte.
func (e DirEntry) IsArchived() bool {
	return e.extRaw[2]&0x80 != 0
}

// SetAttributes rewrites the high bits of the extension bytes to
// reflect readOnly/system/archived, leaving the 7-bit extension
// characters untouched.
func (e *DirEntry) SetAttributes(readOnly, system, archived bool) {
	if readOnly {
		e.extRaw[0] |= 0x80
	} else {
		e.extRaw[0] &^= 0x80
	}
	if system {
		e.extRaw[1] |= 0x80
	} else {
		e.extRaw[1] &^= 0x80
	}
	if archived {
		e.extRaw[2] |= 0x80
	} else {
		e.extRaw[2] &^= 0x80
	}
}

// decodeDirEntry parses a 32-byte directory record. It returns ok=false
// for slots that don't describe a usable entry: an invalid user number,
// or (once the deleted/empty marker is excluded) a blank or
// non-printable filename.
func decodeDirEntry(data []byte) (entry DirEntry, ok bool) {
	if len(data) != DirEntrySize {
		return DirEntry{}, false
	}

	user := data[0]
	deleted := user == deletedMarker
	if !deleted && user > maxUserNumber {
		return DirEntry{}, false
	}

	nameBytes := make([]byte, 8)
	for i, b := range data[1:9] {
		nameBytes[i] = b & 0x7F
	}
	filename := string(nameBytes)

	var extRaw [3]byte
	copy(extRaw[:], data[9:12])
	extBytes := make([]byte, 3)
	for i, b := range extRaw {
		extBytes[i] = b & 0x7F
	}
	extension := string(extBytes)

	if !deleted {
		if trimTrailingSpaces(filename) == "" {
			return DirEntry{}, false
		}
		if !isPrintableASCII(filename) || !isPrintableASCII(extension) {
			return DirEntry{}, false
		}
	}

	el := data[12]
	s2 := data[14]

	entry = DirEntry{
		User:        user,
		Filename:    filename,
		Extension:   extension,
		Extent:      int(s2)*32 + int(el),
		RecordCount: data[15],
		Deleted:     deleted,
		extRaw:      extRaw,
	}
	if deleted {
		entry.User = 0
	}

	// The record count says how many block pointers the extent uses
	// (16 records fill one block), so a pointer to block 0 inside that
	// range is kept; zero pointers past it mark unused slots.
	inUse := (int(entry.RecordCount)*recordSize + BlockSize - 1) / BlockSize
	for i := 0; i < blocksPerExtent; i++ {
		block := binary.LittleEndian.Uint16(data[16+i*2 : 18+i*2])
		if i < inUse || block != 0 {
			entry.Blocks = append(entry.Blocks, block)
		}
	}
	return entry, true
}

// encodeDirEntry serializes entry into a fresh 32-byte record.
func encodeDirEntry(entry DirEntry) []byte {
	data := make([]byte, DirEntrySize)

	if entry.Deleted {
		data[0] = deletedMarker
	} else {
		data[0] = entry.User
	}

	copy(data[1:9], padTo(entry.Filename, 8))

	ext := padTo(entry.Extension, 3)
	for i := 0; i < 3; i++ {
		data[9+i] = (entry.extRaw[i] & 0x80) | (ext[i] & 0x7F)
	}

	data[12] = byte(entry.Extent % 32)
	data[13] = 0
	data[14] = byte(entry.Extent / 32)
	data[15] = entry.RecordCount

	for i := 0; i < blocksPerExtent; i++ {
		var block uint16
		if i < len(entry.Blocks) {
			block = entry.Blocks[i]
		}
		binary.LittleEndian.PutUint16(data[16+i*2:18+i*2], block)
	}
	return data
}

func padTo(s string, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = ' '
	}
	copy(out, []byte(s))
	return out
}

func trimTrailingSpaces(s string) string {
	end := len(s)
	for end > 0 && s[end-1] == ' ' {
		end--
	}
	return s[:end]
}

func isPrintableASCII(s string) bool {
	for _, c := range s {
		if c < 32 || c >= 127 {
			return false
		}
	}
	return true
}

var errInvalidDirEntry = verrors.ErrCorruptedDisk.WithMessage("invalid CP/M directory entry")
