package fat12

import (
	"encoding/binary"
	"strings"
	"time"
)

// DirEntrySize is the size, in bytes, of one packed directory record.
const DirEntrySize = 32

// Attribute flags, per the FAT12 directory entry.
const (
	AttrReadOnly    = 0x01
	AttrHidden      = 0x02
	AttrSystem      = 0x04
	AttrVolumeLabel = 0x08
	AttrDirectory   = 0x10
	AttrArchive     = 0x20
)

const deletedMarker = 0xE5

// DirEntry is the decoded form of a 32-byte directory record.
type DirEntry struct {
	Name         string // 8 characters, space-padded
	Ext          string // 3 characters, space-padded
	Attr         uint8
	CreateTime   uint16
	CreateDate   uint16
	ModifyTime   uint16
	ModifyDate   uint16
	FirstCluster uint16
	FileSize     uint32
}

// FullName joins Name and Ext with a dot, trimming padding, e.g.
// "COMMAND.COM". If Ext is empty, no dot is added.
func (e *DirEntry) FullName() string {
	name := strings.TrimRight(e.Name, " ")
	ext := strings.TrimRight(e.Ext, " ")
	if ext == "" {
		return name
	}
	return name + "." + ext
}

func (e *DirEntry) IsFree() bool      { return len(e.Name) == 0 || e.Name[0] == 0x00 || e.Name[0] == deletedMarker }
func (e *DirEntry) IsEnd() bool       { return len(e.Name) > 0 && e.Name[0] == 0x00 }
func (e *DirEntry) IsDeleted() bool   { return len(e.Name) > 0 && e.Name[0] == deletedMarker }
func (e *DirEntry) IsDirectory() bool { return e.Attr&AttrDirectory != 0 }
func (e *DirEntry) IsVolumeLabel() bool {
	return e.Attr&AttrVolumeLabel != 0
}
func (e *DirEntry) IsDotEntry() bool {
	trimmed := strings.TrimRight(e.Name, " ")
	return trimmed == "." || trimmed == ".."
}

// AttrString renders the attribute byte the way DOS-era tools display
// it: R, H, S, D, A for read-only, hidden, system, directory, archive.
func (e *DirEntry) AttrString() string {
	flags := [5]struct {
		bit uint8
		ch  byte
	}{
		{AttrReadOnly, 'R'},
		{AttrHidden, 'H'},
		{AttrSystem, 'S'},
		{AttrDirectory, 'D'},
		{AttrArchive, 'A'},
	}
	out := make([]byte, 0, 5)
	for _, f := range flags {
		if e.Attr&f.bit != 0 {
			out = append(out, f.ch)
		} else {
			out = append(out, '-')
		}
	}
	return string(out)
}

// decodeDirEntry unpacks a 32-byte directory record.
func decodeDirEntry(raw []byte) DirEntry {
	return DirEntry{
		Name:         string(raw[0:8]),
		Ext:          string(raw[8:11]),
		Attr:         raw[11],
		CreateTime:   binary.LittleEndian.Uint16(raw[14:16]),
		CreateDate:   binary.LittleEndian.Uint16(raw[16:18]),
		ModifyTime:   binary.LittleEndian.Uint16(raw[22:24]),
		ModifyDate:   binary.LittleEndian.Uint16(raw[24:26]),
		FirstCluster: binary.LittleEndian.Uint16(raw[26:28]),
		FileSize:     binary.LittleEndian.Uint32(raw[28:32]),
	}
}

// encodeDirEntry packs e into a fresh 32-byte record.
func encodeDirEntry(e *DirEntry) []byte {
	raw := make([]byte, DirEntrySize)
	copy(raw[0:8], []byte(e.Name))
	copy(raw[8:11], []byte(e.Ext))
	raw[11] = e.Attr
	binary.LittleEndian.PutUint16(raw[14:16], e.CreateTime)
	binary.LittleEndian.PutUint16(raw[16:18], e.CreateDate)
	binary.LittleEndian.PutUint16(raw[22:24], e.ModifyTime)
	binary.LittleEndian.PutUint16(raw[24:26], e.ModifyDate)
	binary.LittleEndian.PutUint16(raw[26:28], e.FirstCluster)
	binary.LittleEndian.PutUint32(raw[28:32], e.FileSize)
	return raw
}

// EncodeDOSTime packs a time.Time's time-of-day into the packed
// 16-bit FAT time representation (5 bits hour/6 bits minute/5 bits
// 2-second granularity seconds).
func EncodeDOSTime(t time.Time) uint16 {
	return uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
}

// EncodeDOSDate packs a time.Time's date into the packed 16-bit FAT
// date representation (7 bits year-since-1980/4 bits month/5 bits day).
func EncodeDOSDate(t time.Time) uint16 {
	year := t.Year() - 1980
	if year < 0 {
		year = 0
	}
	return uint16(year)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
}

// DecodeDOSDate converts a packed FAT date back to a time.Time
// (midnight, local time).
func DecodeDOSDate(date uint16) time.Time {
	day := int(date & 0x1F)
	month := time.Month((date >> 5) & 0x0F)
	year := 1980 + int(date>>9)
	return time.Date(year, month, day, 0, 0, 0, 0, time.Local)
}
