// Package fat12 implements the FAT12 allocation table and directory
// engine shared by Victor floppies, IBM PC floppies, and Victor hard
// disk partitions. Each volume type supplies geometry and a
// *blockdev.Device; this package supplies the cluster chain and
// directory algorithms on top.
package fat12

import (
	"github.com/IntergalacticMicrosystems/vtg-image-util/blockdev"
	verrors "github.com/IntergalacticMicrosystems/vtg-image-util/errors"
)

// Cluster allocation states, per the FAT12 wire format.
const (
	FatFree    = 0x000
	FatBad     = 0xFF7
	FatEOFMin  = 0xFF8
	FatEOFMax  = 0xFFF
	FatReserve = 0xFFF // value written to terminate a newly allocated chain
)

// Geometry describes the on-disk layout of one FAT12 volume, in
// sectors, relative to the start of whatever blockdev.Device the
// volume was constructed with.
type Geometry struct {
	FATStart        uint
	FATSectors      uint
	NumFATCopies    uint
	DirStart        uint
	DirSectors      uint // size of the fixed root directory region; the root is always read from here
	DataStart       uint
	TotalClusters   uint
	SectorsPerClust uint
	ClusterSize     uint
}

// IsEOF reports whether a raw 12-bit FAT entry marks the end of a
// chain.
func IsEOF(entry uint16) bool {
	return entry >= FatEOFMin && entry <= FatEOFMax
}

// fatTable is the in-memory shadow of one FAT copy: FATSectors worth
// of packed 12-bit entries, indexed by cluster number starting at 0.
type fatTable struct {
	raw []byte
}

// GetEntry unpacks the 12-bit FAT entry for cluster. Two consecutive
// clusters share three bytes: cluster N occupies the low 12 bits of
// that run when N is even, the high 12 bits when N is odd.
func (t *fatTable) GetEntry(cluster uint) uint16 {
	offset := cluster + cluster/2
	if cluster%2 == 0 {
		return uint16(t.raw[offset]) | (uint16(t.raw[offset+1]&0x0F) << 8)
	}
	return (uint16(t.raw[offset]) >> 4) | (uint16(t.raw[offset+1]) << 4)
}

// SetEntry packs value into the 12 bits belonging to cluster, leaving
// the neighboring cluster's bits untouched.
func (t *fatTable) SetEntry(cluster uint, value uint16) {
	offset := cluster + cluster/2
	value &= 0x0FFF
	if cluster%2 == 0 {
		t.raw[offset] = byte(value & 0xFF)
		t.raw[offset+1] = (t.raw[offset+1] & 0xF0) | byte(value>>8)
	} else {
		t.raw[offset] = (t.raw[offset] & 0x0F) | byte(value<<4)
		t.raw[offset+1] = byte(value >> 4)
	}
}

// GetFatEntry returns the raw FAT entry for cluster.
func (e *Engine) GetFatEntry(cluster uint) uint16 {
	return e.fat.GetEntry(cluster)
}

// SetFatEntry sets the raw FAT entry for cluster in the in-memory
// shadow and marks the sector(s) it lives in dirty. Flush must be
// called to persist the change to every FAT copy on disk.
func (e *Engine) SetFatEntry(cluster uint, value uint16) {
	e.fat.SetEntry(cluster, value)
	e.markEntryDirty(cluster)
}

// markEntryDirty flags the FAT sector(s) covering cluster's packed
// entry so Flush only rewrites sectors that actually changed. A 12-bit
// entry can straddle a sector boundary, so both candidate sectors are
// marked.
func (e *Engine) markEntryDirty(cluster uint) {
	byteOffset := cluster + cluster/2
	firstSector := byteOffset / blockdev.SectorSize
	lastSector := (byteOffset + 1) / blockdev.SectorSize
	e.dirty.Set(int(firstSector), true)
	if lastSector != firstSector {
		e.dirty.Set(int(lastSector), true)
	}
}

// FollowChain walks the cluster chain starting at start and returns
// every cluster visited, in order. The walk accumulates clusters while
// the entry is a forward pointer and stops at any EOF, free, or bad
// code, so a chain truncated by corruption yields its surviving
// prefix. Cycle detection guards against a corrupted FAT looping
// forever.
func (e *Engine) FollowChain(start uint) ([]uint, error) {
	visited := make(map[uint]bool)
	chain := []uint{}
	cluster := start

	for cluster >= 0x002 && cluster <= 0xFEF {
		if cluster >= e.geometry.TotalClusters+2 {
			return nil, verrors.ErrCorruptedDisk.WithMessage(
				"cluster chain points past the end of the volume")
		}
		if visited[cluster] {
			return nil, verrors.ErrCorruptedDisk.WithMessage(
				"cluster chain contains a cycle")
		}
		visited[cluster] = true
		chain = append(chain, cluster)
		cluster = uint(e.fat.GetEntry(cluster))
	}
	return chain, nil
}

// findFreeClusters collects up to n free cluster numbers without
// mutating the FAT. It returns an error without allocating anything if
// fewer than n are available, so callers can check feasibility before
// committing to a write.
func (e *Engine) findFreeClusters(n uint) ([]uint, error) {
	free := make([]uint, 0, n)
	for cluster := uint(2); cluster < e.geometry.TotalClusters+2 && uint(len(free)) < n; cluster++ {
		if e.fat.GetEntry(cluster) == FatFree {
			free = append(free, cluster)
		}
	}
	if uint(len(free)) < n {
		return nil, verrors.ErrDiskFull.WithMessage("not enough free clusters")
	}
	return free, nil
}

// AllocateChain reserves n clusters and links them into a chain
// terminated by an end-of-chain marker. All clusters are located and
// validated as available before any FAT entry is mutated, so a failed
// allocation never leaves the FAT in a partially-modified state.
func (e *Engine) AllocateChain(n uint) ([]uint, error) {
	if n == 0 {
		return nil, verrors.ErrInvalidArgument.WithMessage("cannot allocate a chain of 0 clusters")
	}

	free, err := e.findFreeClusters(n)
	if err != nil {
		return nil, err
	}

	for i, cluster := range free {
		if i == len(free)-1 {
			e.SetFatEntry(cluster, FatReserve)
		} else {
			e.SetFatEntry(cluster, uint16(free[i+1]))
		}
	}
	return free, nil
}

// FreeChain marks every cluster in chain as free.
func (e *Engine) FreeChain(chain []uint) {
	for _, cluster := range chain {
		e.SetFatEntry(cluster, FatFree)
	}
}
