package fat12

import (
	"strings"

	verrors "github.com/IntergalacticMicrosystems/vtg-image-util/errors"
)

const validFilenameChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!#$%&'()-@^_`{}~ "

// ValidateFilename parses and validates an 8.3 filename, returning the
// space-padded 8-character name and 3-character extension, both
// uppercased.
func ValidateFilename(filename string) (name string, ext string, err error) {
	filename = strings.ToUpper(strings.TrimSpace(filename))
	if filename == "" {
		return "", "", verrors.ErrInvalidArgument.WithMessage("filename cannot be empty")
	}

	if idx := strings.LastIndex(filename, "."); idx >= 0 {
		name = filename[:idx]
		ext = filename[idx+1:]
	} else {
		name = filename
		ext = ""
	}

	if len(name) == 0 {
		return "", "", verrors.ErrInvalidArgument.WithMessage("filename cannot be empty")
	}
	if len(name) > 8 {
		return "", "", verrors.ErrNameTooLong.WithMessage("name exceeds 8 characters: " + name)
	}
	if len(ext) > 3 {
		return "", "", verrors.ErrNameTooLong.WithMessage("extension exceeds 3 characters: " + ext)
	}

	for _, c := range name {
		if !strings.ContainsRune(validFilenameChars, c) {
			return "", "", verrors.ErrInvalidArgument.WithMessage("invalid character in filename")
		}
	}
	for _, c := range ext {
		if !strings.ContainsRune(validFilenameChars, c) {
			return "", "", verrors.ErrInvalidArgument.WithMessage("invalid character in extension")
		}
	}

	name = name + strings.Repeat(" ", 8-len(name))
	ext = ext + strings.Repeat(" ", 3-len(ext))
	return name, ext, nil
}

// HasWildcards reports whether pattern contains DOS wildcard
// characters.
func HasWildcards(pattern string) bool {
	return strings.ContainsAny(pattern, "*?")
}

// MatchFilename reports whether filename matches the DOS-style
// wildcard pattern, where '*' matches zero or more characters and '?'
// matches exactly one. Both inputs are compared case-insensitively.
func MatchFilename(pattern, filename string) bool {
	return matchGlob(strings.ToUpper(pattern), strings.ToUpper(filename))
}

// matchGlob implements anchored '*'/'?' matching without regex
// compilation, operating directly on the upper-cased byte strings.
func matchGlob(pattern, name string) bool {
	var pi, ni int
	var starIdx = -1
	var matchIdx int

	for ni < len(name) {
		if pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == name[ni]) {
			pi++
			ni++
		} else if pi < len(pattern) && pattern[pi] == '*' {
			starIdx = pi
			matchIdx = ni
			pi++
		} else if starIdx != -1 {
			pi = starIdx + 1
			matchIdx++
			ni = matchIdx
		} else {
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}

// MatchEntries filters entries by pattern, treating patterns without
// wildcards as an exact (case-insensitive) match.
func MatchEntries(entries []DirEntry, pattern string) []DirEntry {
	if !HasWildcards(pattern) {
		upper := strings.ToUpper(pattern)
		matched := []DirEntry{}
		for _, e := range entries {
			if strings.ToUpper(e.FullName()) == upper {
				matched = append(matched, e)
			}
		}
		return matched
	}

	matched := []DirEntry{}
	for _, e := range entries {
		if MatchFilename(pattern, e.FullName()) {
			matched = append(matched, e)
		}
	}
	return matched
}
