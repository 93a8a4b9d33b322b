package disks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPredefinedDiskGeometryKnownSlug(t *testing.T) {
	geometry, err := GetPredefinedDiskGeometry("1.44M")
	require.NoError(t, err)
	assert.Equal(t, "1.44M", geometry.Slug)
	assert.Equal(t, uint(2), geometry.Heads)
	assert.Equal(t, uint(18), geometry.SectorsPerTrack)
}

func TestGetPredefinedDiskGeometryUnknownSlug(t *testing.T) {
	_, err := GetPredefinedDiskGeometry("does-not-exist")
	assert.Error(t, err)
}

func TestTotalSizeBytes(t *testing.T) {
	geometry, err := GetPredefinedDiskGeometry("360K")
	require.NoError(t, err)
	// 8 bits/unit * 512 units/sector * 9 sectors/track * 40 tracks * 2 heads / 8
	assert.Equal(t, int64(368640), geometry.TotalSizeBytes())
}

func TestListSlugsIncludesEveryPredefinedFormat(t *testing.T) {
	slugs := ListSlugs()
	assert.ElementsMatch(t, []string{
		"victor-ss", "victor-ds", "360K", "720K", "1.2M", "1.44M",
	}, slugs)
}
