// Package blockdev provides a sector-oriented view over an underlying
// byte stream, the common abstraction every volume type (Victor floppy,
// IBM PC floppy, Victor hard disk partition, CP/M disk) is built on.
package blockdev

import (
	"io"

	verrors "github.com/IntergalacticMicrosystems/vtg-image-util/errors"
)

// SectorSize is the fixed physical sector size used by every on-disk
// format this module understands.
const SectorSize = 512

// Device wraps a seekable stream and exposes it as a sequence of
// fixed-size sectors. StartOffset lets a Device begin partway through the
// underlying stream, which is how hard disk partitions share one file
// handle with their siblings.
type Device struct {
	// TotalSectors is the number of addressable sectors on this device.
	TotalSectors uint
	// StartOffset is the byte offset of sector 0 within the underlying
	// stream.
	StartOffset int64
	readonly    bool
	stream      io.ReadWriteSeeker
}

// New wraps stream as a Device of totalSectors sectors, starting at
// startOffset bytes into the stream. readonly disables Write.
func New(stream io.ReadWriteSeeker, totalSectors uint, startOffset int64, readonly bool) *Device {
	return &Device{
		TotalSectors: totalSectors,
		StartOffset:  startOffset,
		readonly:     readonly,
		stream:       stream,
	}
}

// ReadOnly reports whether writes to this device are rejected.
func (d *Device) ReadOnly() bool {
	return d.readonly
}

func (d *Device) offsetOf(sector uint) int64 {
	return d.StartOffset + int64(sector)*SectorSize
}

func (d *Device) checkBounds(sector uint, count uint) error {
	if count == 0 {
		return nil
	}
	if sector >= d.TotalSectors || sector+count > d.TotalSectors {
		return verrors.ErrArgumentOutOfRange.WithMessage(
			"sector range out of bounds for device")
	}
	return nil
}

// ReadSectors reads count sectors beginning at sector and returns their
// raw bytes. Reads that would run past the end of a short underlying
// stream are zero-padded, matching the reference implementation's
// tolerance for truncated images.
func (d *Device) ReadSectors(sector uint, count uint) ([]byte, error) {
	if err := d.checkBounds(sector, count); err != nil {
		return nil, err
	}

	if _, err := d.stream.Seek(d.offsetOf(sector), io.SeekStart); err != nil {
		return nil, verrors.ErrIOFailed.WrapError(err)
	}

	buffer := make([]byte, count*SectorSize)
	n, err := io.ReadFull(d.stream, buffer)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, verrors.ErrIOFailed.WrapError(err)
	}
	for i := n; i < len(buffer); i++ {
		buffer[i] = 0
	}
	return buffer, nil
}

// ReadSector is shorthand for ReadSectors(sector, 1).
func (d *Device) ReadSector(sector uint) ([]byte, error) {
	return d.ReadSectors(sector, 1)
}

// WriteSectors writes data, whose length must be an exact multiple of
// SectorSize, beginning at sector.
func (d *Device) WriteSectors(sector uint, data []byte) error {
	if d.readonly {
		return verrors.ErrReadOnlyFileSystem.WithMessage("device opened read-only")
	}
	if len(data)%SectorSize != 0 {
		return verrors.ErrInvalidArgument.WithMessage(
			"write length must be a multiple of the sector size")
	}
	count := uint(len(data)) / SectorSize
	if err := d.checkBounds(sector, count); err != nil {
		return err
	}

	if _, err := d.stream.Seek(d.offsetOf(sector), io.SeekStart); err != nil {
		return verrors.ErrIOFailed.WrapError(err)
	}
	if _, err := d.stream.Write(data); err != nil {
		return verrors.ErrIOFailed.WrapError(err)
	}
	return nil
}

// WriteSector writes exactly one sector's worth of data.
func (d *Device) WriteSector(sector uint, data []byte) error {
	return d.WriteSectors(sector, data)
}
