// Package imagepath parses the external path grammar used throughout
// the vtgimg CLI and its callers: IMAGE[:PARTITION][:\INTERNAL\PATH].
// The image portion is delimited by a recognized disk-image extension
// (.img, .ima, .dsk); what follows is an optional decimal partition
// index and an optional internal path, both colon-separated.
package imagepath

import (
	"strconv"
	"strings"

	verrors "github.com/IntergalacticMicrosystems/vtg-image-util/errors"
)

// recognizedExtensions delimit the end of the image-file portion of a
// path. Matching is case-insensitive.
var recognizedExtensions = []string{".img", ".ima", ".dsk"}

// Path is the parsed form of an IMAGE[:PARTITION][:\INTERNAL\PATH]
// string.
type Path struct {
	// Image is the host filesystem path to the disk image file.
	Image string

	// Partition is the decimal partition index, or nil if none was
	// given.
	Partition *int

	// Internal is the normalized (uppercase, backslash-separated)
	// in-image path, or nil if none was given.
	Internal *string
}

// Parse is a pure function: it returns the parsed Path, or a non-nil
// error describing why s does not match the grammar. It performs no
// I/O and does not check that the image file exists.
func Parse(s string) (Path, error) {
	imagePart, rest, err := splitImage(s)
	if err != nil {
		return Path{}, err
	}

	p := Path{Image: imagePart}
	if rest == "" {
		return p, nil
	}

	// rest begins with the colon that followed the image portion.
	rest = rest[1:]

	firstField, remainder, hasMore := cut(rest, ':')

	if partition, ok := parsePartition(firstField); ok {
		p.Partition = &partition
		if hasMore {
			internal := normalizeInternalPath(remainder)
			p.Internal = &internal
		}
		return p, nil
	}

	// Not a partition number: the whole remainder is the internal
	// path, including any colons it happens to contain after the
	// first one (an internal path never legitimately contains a
	// colon, but we don't reject on that alone).
	internal := normalizeInternalPath(rest)
	p.Internal = &internal
	return p, nil
}

// splitImage locates the recognized image extension in s and returns
// the image portion (through the extension) and whatever follows,
// still including its leading colon if present. The extension must
// end the string or be immediately followed by a colon, so a
// directory component that merely contains an extension-like
// substring (e.g. "my.img.backup/disk.dsk") is never mistaken for the
// image's own suffix.
func splitImage(s string) (image string, rest string, err error) {
	lower := strings.ToLower(s)

	bestEnd := -1
	for _, ext := range recognizedExtensions {
		idx := strings.Index(lower, ext)
		for idx != -1 {
			end := idx + len(ext)
			if end == len(lower) || lower[end] == ':' {
				if bestEnd == -1 || end < bestEnd {
					bestEnd = end
				}
				break
			}
			next := strings.Index(lower[idx+1:], ext)
			if next == -1 {
				break
			}
			idx = idx + 1 + next
		}
	}

	if bestEnd == -1 {
		return "", "", verrors.ErrInvalidArgument.WithMessage(
			"path has no recognized image extension (.img, .ima, .dsk): " + s)
	}

	return s[:bestEnd], s[bestEnd:], nil
}

// cut splits s at the first occurrence of sep, reporting whether sep
// was present.
func cut(s string, sep byte) (before string, after string, found bool) {
	idx := strings.IndexByte(s, sep)
	if idx == -1 {
		return s, "", false
	}
	return s[:idx], s[idx+1:], true
}

func parsePartition(field string) (int, bool) {
	if field == "" {
		return 0, false
	}
	n, err := strconv.Atoi(field)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// normalizeInternalPath converts forward slashes to backslashes and
// upper-cases every path component, matching the 8.3 directory
// convention the FAT12 and CP/M engines both store on disk.
func normalizeInternalPath(s string) string {
	s = strings.ReplaceAll(s, "/", `\`)
	s = strings.ToUpper(s)
	if !strings.HasPrefix(s, `\`) {
		s = `\` + s
	}
	return s
}

// Components splits a normalized internal path into its non-empty
// path components, in order.
func Components(internal string) []string {
	parts := strings.Split(internal, `\`)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
