package fat12

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/noxer/bytewriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IntergalacticMicrosystems/vtg-image-util/blockdev"
	imgtest "github.com/IntergalacticMicrosystems/vtg-image-util/testing"
)

// newBigTestEngine builds an engine with enough clusters and root
// directory slots to exercise multi-cluster writes and directory
// growth without running out of either.
func newBigTestEngine(t *testing.T, totalClusters uint) *Engine {
	const sectorsPerCluster = 2
	geometry := Geometry{
		FATStart:        1,
		FATSectors:      4,
		NumFATCopies:    2,
		DirStart:        9,
		DirSectors:      4,
		DataStart:       13,
		TotalClusters:   totalClusters,
		SectorsPerClust: sectorsPerCluster,
		ClusterSize:     sectorsPerCluster * blockdev.SectorSize,
	}
	totalSectors := geometry.DataStart + totalClusters*sectorsPerCluster
	stream := imgtest.NewBlankImage(t, blockdev.SectorSize, totalSectors)
	device := blockdev.New(stream, totalSectors, 0, false)

	engine, err := New(device, geometry)
	require.NoError(t, err)
	return engine
}

func TestWriteReadIdentityAcrossSizes(t *testing.T) {
	engine := newBigTestEngine(t, 200)
	clusterSize := int(engine.ClusterSize())

	sizes := []int{0, 1, clusterSize - 1, clusterSize, clusterSize + 1, 5*clusterSize + 3}
	for _, size := range sizes {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i)
		}

		name := "FILE.TXT"
		require.NoError(t, engine.WriteFile([]string{name}, data))
		got, err := engine.ReadFile([]string{name})
		require.NoError(t, err)
		assert.Equal(t, data, got, "size=%d", size)
		require.NoError(t, engine.DeleteFile([]string{name}))
	}
}

func TestReadFileTruncatesToRecordedSize(t *testing.T) {
	engine := newBigTestEngine(t, 50)
	data := make([]byte, int(engine.ClusterSize())+7)
	for i := range data {
		data[i] = byte(i * 3)
	}

	require.NoError(t, engine.WriteFile([]string{"PART.BIN"}, data))

	got, err := engine.ReadFile([]string{"PART.BIN"})
	require.NoError(t, err)

	// The second cluster is mostly zero padding on disk. Copying into a
	// buffer with no room to spare proves none of it leaks into the
	// returned bytes.
	exact := make([]byte, len(data))
	n, err := io.Copy(bytewriter.New(exact), bytes.NewReader(got))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, data, exact)
}

func TestOverwriteIdempotence(t *testing.T) {
	engine := newBigTestEngine(t, 50)
	data := make([]byte, int(engine.ClusterSize())+1)

	countFree := func() int {
		free := 0
		for c := uint(2); c < engine.TotalClusters()+2; c++ {
			if engine.GetFatEntry(c) == FatFree {
				free++
			}
		}
		return free
	}

	require.NoError(t, engine.WriteFile([]string{"A.TXT"}, data))
	afterFirst := countFree()

	require.NoError(t, engine.WriteFile([]string{"A.TXT"}, data))
	afterSecond := countFree()

	assert.Equal(t, afterFirst, afterSecond)
}

func TestDeleteFreesChainAndMarksSlotDeleted(t *testing.T) {
	engine := newBigTestEngine(t, 50)
	data := make([]byte, int(engine.ClusterSize())*2)

	require.NoError(t, engine.WriteFile([]string{"B.TXT"}, data))
	_, entry, err := engine.ResolvePath([]string{"B.TXT"})
	require.NoError(t, err)
	chain, err := engine.FollowChain(uint(entry.FirstCluster))
	require.NoError(t, err)

	require.NoError(t, engine.DeleteFile([]string{"B.TXT"}))

	for _, cluster := range chain {
		assert.Equal(t, uint16(FatFree), engine.GetFatEntry(cluster))
	}

	_, _, err = engine.ResolvePath([]string{"B.TXT"})
	assert.Error(t, err)
}

func TestDirectoryGrowsBySingleClusterWhenRootSubdirFills(t *testing.T) {
	engine := newBigTestEngine(t, 200)
	require.NoError(t, engine.CreateDirectory([]string{"SUB"}))

	_, parent, err := engine.ResolvePath([]string{"SUB"})
	require.NoError(t, err)
	parentCluster := uint(parent.FirstCluster)

	entriesPerCluster := int(engine.geometry.ClusterSize / DirEntrySize)
	// Two of each cluster's slots are already spent on "." and "..".
	filesToFill := entriesPerCluster - 2

	for i := 0; i < filesToFill; i++ {
		name := []string{"SUB", fmt.Sprintf("F%06d.TXT", i)}
		require.NoError(t, engine.WriteFile(name, []byte("x")))
	}

	chainBefore, err := engine.FollowChain(parentCluster)
	require.NoError(t, err)
	require.Len(t, chainBefore, 1)

	require.NoError(t, engine.WriteFile([]string{"SUB", "OVERFLOW.TXT"}, []byte("y")))

	chainAfter, err := engine.FollowChain(parentCluster)
	require.NoError(t, err)
	assert.Len(t, chainAfter, 2, "subdirectory should have grown by exactly one cluster")
}

func TestCreateDirectoryDotEntries(t *testing.T) {
	engine := newBigTestEngine(t, 50)
	require.NoError(t, engine.CreateDirectory([]string{"CHILD"}))

	_, entry, err := engine.ResolvePath([]string{"CHILD"})
	require.NoError(t, err)

	cluster := uint(entry.FirstCluster)
	raw, err := engine.readDirRaw(engine.subdirLocation(cluster))
	require.NoError(t, err)
	dot := decodeDirEntry(raw[0:DirEntrySize])
	dotdot := decodeDirEntry(raw[DirEntrySize : 2*DirEntrySize])

	assert.Equal(t, ".       ", dot.Name)
	assert.Equal(t, uint16(cluster), dot.FirstCluster)
	assert.Equal(t, "..      ", dotdot.Name)
	assert.Equal(t, uint16(0), dotdot.FirstCluster, "dot-dot of a root-parented directory must be 0")
}

func TestRecursiveDeleteFreesFileAndDirectoryClusters(t *testing.T) {
	engine := newBigTestEngine(t, 200)
	require.NoError(t, engine.CreateDirectory([]string{"SUB"}))

	data := make([]byte, int(engine.ClusterSize())+5)
	require.NoError(t, engine.WriteFile([]string{"SUB", "A.TXT"}, data))
	require.NoError(t, engine.WriteFile([]string{"SUB", "B.TXT"}, []byte("hi")))

	_, entry, err := engine.ResolvePath([]string{"SUB"})
	require.NoError(t, err)
	dirChain, err := engine.FollowChain(uint(entry.FirstCluster))
	require.NoError(t, err)

	_, fa, err := engine.ResolvePath([]string{"SUB", "A.TXT"})
	require.NoError(t, err)
	aChain, err := engine.FollowChain(uint(fa.FirstCluster))
	require.NoError(t, err)

	require.NoError(t, engine.DeleteDirectory([]string{"SUB"}, true))

	for _, c := range dirChain {
		assert.Equal(t, uint16(FatFree), engine.GetFatEntry(c))
	}
	for _, c := range aChain {
		assert.Equal(t, uint16(FatFree), engine.GetFatEntry(c))
	}
}

func TestDeleteDirectoryRequiresRecursiveWhenNonEmpty(t *testing.T) {
	engine := newBigTestEngine(t, 50)
	require.NoError(t, engine.CreateDirectory([]string{"SUB"}))
	require.NoError(t, engine.WriteFile([]string{"SUB", "A.TXT"}, []byte("x")))

	err := engine.DeleteDirectory([]string{"SUB"}, false)
	assert.Error(t, err)
}

func TestSetAttributesPreservesDirectoryBit(t *testing.T) {
	engine := newBigTestEngine(t, 50)
	require.NoError(t, engine.CreateDirectory([]string{"SUB"}))

	require.NoError(t, engine.SetAttributes([]string{"SUB"}, AttrReadOnly))

	attr, err := engine.GetAttributes([]string{"SUB"})
	require.NoError(t, err)
	assert.True(t, attr&AttrDirectory != 0, "directory bit must survive an attribute write")
	assert.True(t, attr&AttrReadOnly != 0)
}

func TestRenameRejectsCollision(t *testing.T) {
	engine := newBigTestEngine(t, 50)
	require.NoError(t, engine.WriteFile([]string{"A.TXT"}, []byte("1")))
	require.NoError(t, engine.WriteFile([]string{"B.TXT"}, []byte("2")))

	err := engine.RenameEntry([]string{"A.TXT"}, "B.TXT")
	assert.Error(t, err)

	require.NoError(t, engine.RenameEntry([]string{"A.TXT"}, "C.TXT"))
	_, _, err = engine.ResolvePath([]string{"C.TXT"})
	assert.NoError(t, err)
}

func TestFindMatchingFilesWildcards(t *testing.T) {
	engine := newBigTestEngine(t, 50)
	require.NoError(t, engine.WriteFile([]string{"README.TXT"}, []byte("a")))
	require.NoError(t, engine.WriteFile([]string{"COMMAND.COM"}, []byte("b")))
	require.NoError(t, engine.WriteFile([]string{"NOTES"}, []byte("c")))

	star, err := engine.FindMatchingFiles(nil, "*")
	require.NoError(t, err)
	assert.Len(t, star, 3)

	dotStar, err := engine.FindMatchingFiles(nil, "*.*")
	require.NoError(t, err)
	names := make([]string, 0, len(dotStar))
	for _, e := range dotStar {
		names = append(names, e.FullName())
	}
	assert.ElementsMatch(t, []string{"README.TXT", "COMMAND.COM"}, names)

	question, err := engine.FindMatchingFiles(nil, "?????")
	require.NoError(t, err)
	require.Len(t, question, 1)
	assert.Equal(t, "NOTES", question[0].FullName())
}
