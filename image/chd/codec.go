package chd

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/ulikunitz/xz/lzma"

	verrors "github.com/IntergalacticMicrosystems/vtg-image-util/errors"
)

// decompress inflates one compressed hunk. zlib is the plain DEFLATE
// container the stdlib already speaks; lzma hunks are raw LZMA1
// streams the way chd.py hands them to Python's lzma module, so a
// stream decoder from outside the retrieved example pack is used here
// (no example or the Python original carries a Go LZMA library to
// ground this on, as noted in DESIGN.md).
func decompress(raw []byte, codec uint32, expectedSize int) ([]byte, error) {
	switch codec {
	case codecZlib:
		reader, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, verrors.ErrCorruptedDisk.WrapError(err)
		}
		defer reader.Close()
		return readExact(reader, expectedSize)

	case codecLZMA:
		reader, err := lzma.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, verrors.ErrCorruptedDisk.WrapError(err)
		}
		return readExact(reader, expectedSize)

	default:
		return nil, verrors.ErrCorruptedDisk.WithMessage("unrecognized hunk codec")
	}
}

func readExact(r io.Reader, size int) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, verrors.ErrCorruptedDisk.WrapError(err)
	}
	return buf, nil
}
