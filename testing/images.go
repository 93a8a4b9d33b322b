// Package testing holds fixture builders shared by this module's own
// test suites, the way the teacher's testing package backs its
// drivers' tests: an in-memory io.ReadWriteSeeker plus a random-data
// helper, built on the same github.com/xaionaro-go/bytesextra and
// github.com/stretchr/testify the teacher's fixtures use.
package testing

import (
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// NewBlankImage returns a zero-filled in-memory stream of exactly
// totalSectors*sectorSize bytes, suitable for constructing a
// blockdev.Device in a test without touching the host filesystem.
func NewBlankImage(t *testing.T, sectorSize, totalSectors uint) io.ReadWriteSeeker {
	buf := make([]byte, sectorSize*totalSectors)
	return bytesextra.NewReadWriteSeeker(buf)
}

// CreateRandomImage returns bytesPerBlock*totalBlocks random bytes, or
// fails the test outright if the CSPRNG read comes up short.
func CreateRandomImage(bytesPerBlock, totalBlocks uint, t *testing.T) []byte {
	backingData := make([]byte, bytesPerBlock*totalBlocks)

	_, err := rand.Read(backingData)
	require.NoErrorf(
		t,
		err,
		"failed to initialize %d blocks of size %d with random bytes",
		totalBlocks,
		bytesPerBlock,
	)
	return backingData
}
