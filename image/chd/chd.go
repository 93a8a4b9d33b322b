// Package chd implements a read-only adapter over MAME CHD
// (Compressed Hunks of Data) v5 container files, grounded on
// original_source/vtg_image_util/chd.py. It presents the logical disk
// image a CHD contains as a plain io.ReadSeeker, so the rest of this
// module never needs to know an image arrived wrapped in one.
package chd

import (
	"encoding/binary"
	"io"

	"github.com/IntergalacticMicrosystems/vtg-image-util/blockcache"
	verrors "github.com/IntergalacticMicrosystems/vtg-image-util/errors"
)

// Header field offsets within the 124-byte v5 header, all big-endian.
const (
	headerSize           = 124
	signatureOffset      = 0
	headerLenOffset      = 8
	versionOffset        = 12
	compressorsOffset    = 16
	logicalBytesOffset   = 32
	mapOffsetOffset      = 40
	metaOffsetOffset     = 48
	hunkBytesOffset      = 56
	parentSHA1Offset     = 104
)

var signature = [8]byte{'M', 'C', 'o', 'm', 'p', 'r', 'H', 'D'}

// Codec FourCCs a v5 header's compressors[0..3] may name.
const (
	codecNone    = 0
	codecZlib    = 0x7a6c6962 // 'zlib'
	codecLZMA    = 0x6c7a6d61 // 'lzma'
	codecHuffman = 0x68756666 // 'huff'
	codecFLAC    = 0x666c6163 // 'flac'
)

// Uncompressed-map entry compression codes.
const (
	mapCompressionNone   = 4
	mapCompressionSelf   = 5
	mapCompressionParent = 6
)

type header struct {
	compressors  [4]uint32
	logicalBytes uint64
	mapOffset    uint64
	metaOffset   uint64
	hunkBytes    uint32
	hasParent    bool
}

func (h *header) hunkCount() uint {
	if h.hunkBytes == 0 {
		return 0
	}
	return uint((h.logicalBytes + uint64(h.hunkBytes) - 1) / uint64(h.hunkBytes))
}

func (h *header) isCompressed() bool {
	return h.compressors[0] != codecNone
}

type mapEntry struct {
	compression uint8
	length      uint32
	offset      uint64
}

// File is a read-only seekable view of the logical disk image
// contained in a CHD v5 file.
type File struct {
	source    io.ReaderAt
	header    header
	entries   []mapEntry
	hunkCache *blockcache.Cache
	metaLinks []metaLink
	position  int64
}

type metaLink struct {
	tag    uint32
	offset uint64
	length uint32
}

// Open parses the v5 header and hunk map of source and returns a File
// ready for Read/Seek. It rejects anything that isn't a standalone
// (non-delta, parent_sha1 == 0) v5 CHD with an uncompressed hunk map:
// a codec other than zlib or lzma fails the codec check, and a header
// naming zlib or lzma then fails in parseMap, so only uncompressed
// CHDs open.
func Open(source io.ReaderAt) (*File, error) {
	raw := make([]byte, headerSize)
	if _, err := source.ReadAt(raw, 0); err != nil {
		return nil, verrors.ErrCorruptedDisk.WrapError(err)
	}

	var sig [8]byte
	copy(sig[:], raw[signatureOffset:signatureOffset+8])
	if sig != signature {
		return nil, verrors.ErrCorruptedDisk.WithMessage("not a CHD file: bad signature")
	}

	headerLen := binary.BigEndian.Uint32(raw[headerLenOffset : headerLenOffset+4])
	version := binary.BigEndian.Uint32(raw[versionOffset : versionOffset+4])
	if version != 5 {
		return nil, verrors.ErrCorruptedDisk.WithMessage("unsupported CHD version; only v5 is supported")
	}
	if headerLen != headerSize {
		return nil, verrors.ErrCorruptedDisk.WithMessage("invalid v5 header length")
	}

	h := header{
		logicalBytes: binary.BigEndian.Uint64(raw[logicalBytesOffset : logicalBytesOffset+8]),
		mapOffset:    binary.BigEndian.Uint64(raw[mapOffsetOffset : mapOffsetOffset+8]),
		metaOffset:   binary.BigEndian.Uint64(raw[metaOffsetOffset : metaOffsetOffset+8]),
		hunkBytes:    binary.BigEndian.Uint32(raw[hunkBytesOffset : hunkBytesOffset+4]),
	}
	for i := 0; i < 4; i++ {
		h.compressors[i] = binary.BigEndian.Uint32(raw[compressorsOffset+i*4 : compressorsOffset+i*4+4])
	}

	var parentSHA1 [20]byte
	copy(parentSHA1[:], raw[parentSHA1Offset:parentSHA1Offset+20])
	for _, b := range parentSHA1 {
		if b != 0 {
			h.hasParent = true
			break
		}
	}
	if h.hasParent {
		return nil, verrors.ErrCorruptedDisk.WithMessage(
			"CHD requires a parent file (delta CHD), which is not supported")
	}

	if h.isCompressed() {
		for _, codec := range h.compressors {
			if codec == codecNone {
				continue
			}
			switch codec {
			case codecZlib, codecLZMA:
			default:
				return nil, verrors.ErrCorruptedDisk.WithMessage(
					"CHD uses an unsupported codec: " + fourCCName(codec))
			}
		}
	}

	f := &File{source: source, header: h}
	if err := f.parseMap(); err != nil {
		return nil, err
	}
	if err := f.parseMetadata(); err != nil {
		return nil, err
	}

	f.hunkCache = blockcache.New(uint(h.hunkBytes), h.hunkCount(), f.fetchHunk)
	return f, nil
}

func fourCCName(codec uint32) string {
	b := []byte{byte(codec >> 24), byte(codec >> 16), byte(codec >> 8), byte(codec)}
	for i, c := range b {
		if c < 0x20 || c > 0x7e {
			b[i] = '?'
		}
	}
	return string(b)
}

// parseMap reads the hunk map. Only the uncompressed 4-byte-per-entry
// map layout is supported; compressed v5 maps use a Huffman-coded
// bitstream that chd.py itself only approximates, and this port makes
// no attempt to improve on that — uncompressed CHDs (by far the common
// case for the Victor/IBM images this module targets) round-trip
// exactly.
func (f *File) parseMap() error {
	count := f.header.hunkCount()
	if f.header.isCompressed() {
		return verrors.ErrCorruptedDisk.WithMessage(
			"compressed CHD hunk maps are not supported; extract with chdman first")
	}

	raw := make([]byte, count*4)
	if _, err := f.source.ReadAt(raw, int64(f.header.mapOffset)); err != nil {
		return verrors.ErrCorruptedDisk.WrapError(err)
	}

	f.entries = make([]mapEntry, count)
	for i := uint(0); i < count; i++ {
		blockIndex := binary.BigEndian.Uint32(raw[i*4 : i*4+4])
		if blockIndex == 0 {
			f.entries[i] = mapEntry{compression: mapCompressionNone, offset: 0, length: 0}
			continue
		}
		f.entries[i] = mapEntry{
			compression: mapCompressionNone,
			offset:      uint64(blockIndex) * uint64(f.header.hunkBytes),
			length:      f.header.hunkBytes,
		}
	}
	return nil
}

// parseMetadata walks the metadata linked list so GetMetadata can look
// tags up without re-scanning.
func (f *File) parseMetadata() error {
	offset := f.header.metaOffset
	for offset != 0 {
		raw := make([]byte, 16)
		if _, err := f.source.ReadAt(raw, int64(offset)); err != nil {
			break
		}
		tag := binary.BigEndian.Uint32(raw[0:4])
		length := uint32(raw[5])<<16 | uint32(raw[6])<<8 | uint32(raw[7])
		next := binary.BigEndian.Uint64(raw[8:16])

		f.metaLinks = append(f.metaLinks, metaLink{tag: tag, offset: offset + 16, length: length})
		offset = next
	}
	return nil
}

// HardDiskMetadataTag is the 'GDDD' FourCC under which MAME stores a
// hard disk's cylinder/head/sector geometry string.
const HardDiskMetadataTag uint32 = 0x47444444

// GetMetadata returns the raw bytes stored under tag, decoding it as a
// big-endian FourCC the way chd.py's HARD_DISK_METADATA_TAG is used.
func (f *File) GetMetadata(tag uint32) ([]byte, bool) {
	for _, link := range f.metaLinks {
		if link.tag == tag {
			data := make([]byte, link.length)
			if _, err := f.source.ReadAt(data, int64(link.offset)); err != nil {
				return nil, false
			}
			return data, true
		}
	}
	return nil, false
}

func (f *File) fetchHunk(hunkIndex uint, buffer []byte) error {
	entry := f.entries[hunkIndex]
	if entry.length == 0 {
		for i := range buffer {
			buffer[i] = 0
		}
		return nil
	}

	if !f.header.isCompressed() {
		n, err := f.source.ReadAt(buffer, int64(entry.offset))
		if err != nil && err != io.EOF {
			return err
		}
		for i := n; i < len(buffer); i++ {
			buffer[i] = 0
		}
		return nil
	}

	raw := make([]byte, entry.length)
	if _, err := f.source.ReadAt(raw, int64(entry.offset)); err != nil {
		return err
	}
	codec := f.header.compressors[entry.compression]
	decoded, err := decompress(raw, codec, len(buffer))
	if err != nil {
		return err
	}
	copy(buffer, decoded)
	return nil
}

// LogicalBytes is the size, in bytes, of the disk image this CHD
// contains.
func (f *File) LogicalBytes() int64 {
	return int64(f.header.logicalBytes)
}

// Seek implements io.Seeker over the logical disk image.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.position = offset
	case io.SeekCurrent:
		f.position += offset
	case io.SeekEnd:
		f.position = int64(f.header.logicalBytes) + offset
	default:
		return 0, verrors.ErrInvalidArgument.WithMessage("invalid whence")
	}
	return f.position, nil
}

// Read implements io.Reader over the logical disk image, loading and
// caching whichever hunks the requested range spans.
func (f *File) Read(p []byte) (int, error) {
	if f.position >= int64(f.header.logicalBytes) {
		return 0, io.EOF
	}

	remaining := int64(f.header.logicalBytes) - f.position
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}

	total := 0
	for total < len(p) {
		hunkIndex := uint(f.position) / uint(f.header.hunkBytes)
		offsetInHunk := uint(f.position) % uint(f.header.hunkBytes)

		hunkData, err := f.hunkCache.Block(hunkIndex)
		if err != nil {
			return total, verrors.ErrCorruptedDisk.WrapError(err)
		}

		n := copy(p[total:], hunkData[offsetInHunk:])
		total += n
		f.position += int64(n)
	}
	return total, nil
}

// Write always fails: CHD containers are read-only in this module.
func (f *File) Write([]byte) (int, error) {
	return 0, verrors.ErrReadOnlyFileSystem.WithMessage("CHD images are read-only")
}
