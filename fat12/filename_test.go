package fat12

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFilenameBasic(t *testing.T) {
	name, ext, err := ValidateFilename("readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "README  ", name)
	assert.Equal(t, "TXT", ext)
}

func TestValidateFilenameNoExtension(t *testing.T) {
	name, ext, err := ValidateFilename("COMMAND")
	require.NoError(t, err)
	assert.Equal(t, "COMMAND ", name)
	assert.Equal(t, "   ", ext)
}

func TestValidateFilenameRejectsLongName(t *testing.T) {
	_, _, err := ValidateFilename("toolongname.txt")
	assert.Error(t, err)
}

func TestValidateFilenameRejectsLongExtension(t *testing.T) {
	_, _, err := ValidateFilename("name.text")
	assert.Error(t, err)
}

func TestValidateFilenameRejectsEmpty(t *testing.T) {
	_, _, err := ValidateFilename("")
	assert.Error(t, err)
}

func TestValidateFilenameRejectsInvalidChar(t *testing.T) {
	_, _, err := ValidateFilename("bad+name.txt")
	assert.Error(t, err)
}

func TestHasWildcards(t *testing.T) {
	assert.True(t, HasWildcards("*.TXT"))
	assert.True(t, HasWildcards("FILE?.TXT"))
	assert.False(t, HasWildcards("FILE.TXT"))
}

func TestMatchFilenameStar(t *testing.T) {
	assert.True(t, MatchFilename("*.TXT", "README.TXT"))
	assert.False(t, MatchFilename("*.TXT", "README.DOC"))
	assert.True(t, MatchFilename("*.*", "README.TXT"))
}

func TestMatchFilenameQuestionMark(t *testing.T) {
	assert.True(t, MatchFilename("FILE?.TXT", "FILE1.TXT"))
	assert.False(t, MatchFilename("FILE?.TXT", "FILE12.TXT"))
}

func TestMatchFilenameCaseInsensitive(t *testing.T) {
	assert.True(t, MatchFilename("readme.*", "README.TXT"))
}

func TestMatchFilenameExactNoWildcards(t *testing.T) {
	assert.True(t, MatchFilename("README.TXT", "README.TXT"))
	assert.False(t, MatchFilename("README.TXT", "README.DOC"))
}

func TestMatchEntriesExact(t *testing.T) {
	entries := []DirEntry{
		{Name: "README  ", Ext: "TXT"},
		{Name: "OTHER   ", Ext: "TXT"},
	}
	matched := MatchEntries(entries, "readme.txt")
	require.Len(t, matched, 1)
	assert.Equal(t, "README.TXT", matched[0].FullName())
}

func TestMatchEntriesWildcard(t *testing.T) {
	entries := []DirEntry{
		{Name: "README  ", Ext: "TXT"},
		{Name: "OTHER   ", Ext: "TXT"},
		{Name: "IMAGE   ", Ext: "DAT"},
	}
	matched := MatchEntries(entries, "*.TXT")
	assert.Len(t, matched, 2)
}
