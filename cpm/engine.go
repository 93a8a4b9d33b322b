package cpm

import (
	"github.com/IntergalacticMicrosystems/vtg-image-util/blockdev"
	verrors "github.com/IntergalacticMicrosystems/vtg-image-util/errors"
)

// Default Victor 9000 CP/M-86 geometry. A real disk may place its
// directory at a different sector; Engine probes for it instead of
// trusting these constants outright.
const (
	SectorsPerBlock  = 4
	BlockSize        = SectorsPerBlock * blockdev.SectorSize // 2048
	DirSectors       = 18
	DirInterleave    = 2
	DefaultDirStart  = 76
	DefaultDataStart = 112
	MaxBlocks        = 556 // 16-bit block pointers sized to disk capacity
	entriesPerSector = blockdev.SectorSize / DirEntrySize
)

var candidateDirStarts = []uint{76, 94, 1}

// Engine drives the CP/M-86 flat directory and block allocation map for
// one volume. Unlike fat12.Engine, there is no separate allocation
// table on disk: which blocks are in use is derived by scanning the
// live directory entries each time it's needed.
type Engine struct {
	device       *blockdev.Device
	dirStart     uint
	dataStart    uint
	dirCache     []DirEntry
	dirCacheLoad bool
}

// Open constructs an Engine over device, auto-detecting the directory
// start sector the way Victor's CP/M-86 disks require: different
// formatting tools placed it at sector 76 or 94, so candidates are
// probed in turn and the first one whose first four directory slots
// look like real entries wins. If none do, DefaultDirStart is assumed
// rather than failing, so a disk whose directory area is still all
// zero bytes (which fails the shape check) opens at the default.
func Open(device *blockdev.Device) (*Engine, error) {
	dirStart, _ := Detect(device)

	return &Engine{
		device:    device,
		dirStart:  dirStart,
		dataStart: DefaultDataStart,
	}, nil
}

// Detect probes candidateDirStarts for a sector whose first four
// directory slots look like real CP/M entries, returning the matching
// sector and true. If no candidate matches, it returns
// DefaultDirStart and false, distinguishing "probably not a CP/M disk"
// from Open's permissive fallback for callers (the sniffer) that need
// a clean detection signal.
func Detect(device *blockdev.Device) (uint, bool) {
	for _, candidate := range candidateDirStarts {
		sector, err := device.ReadSector(candidate)
		if err != nil {
			continue
		}
		if looksLikeCPMDirectorySector(sector) {
			return candidate, true
		}
	}
	return DefaultDirStart, false
}

// looksLikeCPMDirectorySector reports whether at least two of the
// sector's first four 32-byte slots look like valid CP/M directory
// entries: a legal user number and a printable 7-bit filename.
func looksLikeCPMDirectorySector(sector []byte) bool {
	if len(sector) < DirEntrySize*4 {
		return false
	}
	valid := 0
	for i := 0; i < 4; i++ {
		entry := sector[i*DirEntrySize : (i+1)*DirEntrySize]
		user := entry[0]
		if user > maxUserNumber && user != deletedMarker {
			continue
		}
		ok := true
		for _, b := range entry[1:9] {
			c := b & 0x7F
			if c < 32 || c >= 127 {
				ok = false
				break
			}
		}
		if ok {
			valid++
		}
	}
	return valid >= 2
}

func (e *Engine) blockToSector(block uint16) uint {
	return e.dataStart + uint(block)*SectorsPerBlock
}

// readBlock returns the raw bytes of one 2048-byte allocation block.
func (e *Engine) readBlock(block uint16) ([]byte, error) {
	return e.device.ReadSectors(e.blockToSector(block), SectorsPerBlock)
}

// writeBlock overwrites one allocation block with data, which must be
// exactly BlockSize bytes.
func (e *Engine) writeBlock(block uint16, data []byte) error {
	if len(data) != BlockSize {
		return verrors.ErrInvalidArgument.WithMessage("block write must be exactly one block")
	}
	return e.device.WriteSectors(e.blockToSector(block), data)
}

func (e *Engine) dirSectorOffset(slot int) (sector uint, index int) {
	sectorOffset := slot / entriesPerSector
	return e.dirStart + uint(sectorOffset)*DirInterleave, slot % entriesPerSector
}
