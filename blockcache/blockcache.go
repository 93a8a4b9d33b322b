// Package blockcache provides a block-oriented cache that lazily loads
// fixed-size blocks from a backing fetch callback and tracks which
// blocks are resident with a bitmap, adapted from the teacher's
// drivers/common/blockcache package for a bounded total block count
// known up front (a CHD's hunk count, rather than an arbitrary
// resizable file-system object).
package blockcache

import (
	"fmt"

	"github.com/boljen/go-bitmap"
)

// FetchBlockCallback writes the contents of a single block from the
// backing storage into buffer. buffer is always exactly one block.
type FetchBlockCallback func(blockIndex uint, buffer []byte) error

// Cache is a block-oriented read cache. Every block is loaded at most
// once; loadedBlocks tracks which indexes have been fetched so a
// second read of the same block is served from data without calling
// back into fetch.
type Cache struct {
	loadedBlocks  bitmap.Bitmap
	fetch         FetchBlockCallback
	bytesPerBlock uint
	totalBlocks   uint
	data          []byte
}

// New creates a Cache of totalBlocks blocks, each bytesPerBlock bytes,
// backed by fetchCb.
func New(bytesPerBlock uint, totalBlocks uint, fetchCb FetchBlockCallback) *Cache {
	return &Cache{
		loadedBlocks:  bitmap.NewSlice(int(totalBlocks)),
		data:          make([]byte, int(bytesPerBlock*totalBlocks)),
		fetch:         fetchCb,
		bytesPerBlock: bytesPerBlock,
		totalBlocks:   totalBlocks,
	}
}

// BytesPerBlock returns the size of one block, in bytes.
func (c *Cache) BytesPerBlock() uint {
	return c.bytesPerBlock
}

// TotalBlocks returns the number of blocks this cache addresses.
func (c *Cache) TotalBlocks() uint {
	return c.totalBlocks
}

// Block returns the bytes of blockIndex, fetching it from the backing
// callback on first access.
func (c *Cache) Block(blockIndex uint) ([]byte, error) {
	if blockIndex >= c.totalBlocks {
		return nil, fmt.Errorf("block %d out of range [0, %d)", blockIndex, c.totalBlocks)
	}

	start := blockIndex * c.bytesPerBlock
	end := start + c.bytesPerBlock
	slice := c.data[start:end]

	if c.loadedBlocks.Get(int(blockIndex)) {
		return slice, nil
	}

	if err := c.fetch(blockIndex, slice); err != nil {
		return nil, fmt.Errorf("failed to load block %d: %w", blockIndex, err)
	}
	c.loadedBlocks.Set(int(blockIndex), true)
	return slice, nil
}
