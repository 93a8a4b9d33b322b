// Package verify implements disk integrity checking for FAT12 volumes
// (Victor and IBM PC floppies, and hard disk partitions) and CP/M
// disks, grounded on
// original_source/vtg_image_util/verify.py's check set: FAT sanity,
// a directory walk that builds a cluster-usage map, cross-linked and
// lost-cluster detection, and a CP/M duplicate-entry check.
package verify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/IntergalacticMicrosystems/vtg-image-util/cpm"
	"github.com/IntergalacticMicrosystems/vtg-image-util/fat12"
	"github.com/IntergalacticMicrosystems/vtg-image-util/harddisk"
)

// Result collects everything one verification pass found. Errors
// accumulate into an *multierror.Error so every problem on a disk is
// reported in one pass instead of stopping at the first.
type Result struct {
	Errors   *multierror.Error
	Warnings []string
	Info     []string

	FilesChecked        int
	DirectoriesChecked  int
	ClustersInUse       int
	LostClusters        int
	CrossLinkedClusters []uint
	BadClusters         int
}

// IsValid reports whether the pass found zero errors. Warnings do not
// affect validity.
func (r *Result) IsValid() bool {
	return r.Errors == nil || len(r.Errors.Errors) == 0
}

func (r *Result) addError(format string, args ...interface{}) {
	r.Errors = multierror.Append(r.Errors, fmt.Errorf(format, args...))
}

func (r *Result) addWarning(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Result) addInfo(format string, args ...interface{}) {
	r.Info = append(r.Info, fmt.Sprintf(format, args...))
}

// FAT12 verifies a standalone FAT12 volume: a Victor or IBM PC floppy,
// or one hard disk partition's Engine.
func FAT12(engine *fat12.Engine, verbose bool) *Result {
	result := &Result{}

	result.addInfo("Checking FAT structure...")
	verifyFATStructure(engine, result)

	clusterUsage := make(map[uint][]string)

	result.addInfo("Checking directory structure...")
	verifyDirectory(engine, nil, "", clusterUsage, result)

	var crossLinked []uint
	for cluster, files := range clusterUsage {
		if len(files) > 1 {
			result.addError("cross-linked cluster %d: used by %s", cluster, strings.Join(files, ", "))
			crossLinked = append(crossLinked, cluster)
		}
	}
	sort.Slice(crossLinked, func(i, j int) bool { return crossLinked[i] < crossLinked[j] })
	result.CrossLinkedClusters = crossLinked

	result.addInfo("Checking for lost clusters...")
	findLostClusters(engine, clusterUsage, result)

	for cluster := uint(2); cluster < engine.TotalClusters()+2; cluster++ {
		if engine.GetFatEntry(cluster) == fat12.FatBad {
			result.BadClusters++
		}
	}
	if result.BadClusters > 0 {
		result.addWarning("found %d bad cluster(s) marked in FAT", result.BadClusters)
	}

	result.ClustersInUse = len(clusterUsage)

	if verbose {
		result.addInfo("Files checked: %d", result.FilesChecked)
		result.addInfo("Directories checked: %d", result.DirectoriesChecked)
		result.addInfo("Clusters in use: %d", result.ClustersInUse)
		if result.LostClusters > 0 {
			result.addInfo("Lost clusters: %d", result.LostClusters)
		}
	}

	return result
}

func verifyFATStructure(engine *fat12.Engine, result *Result) {
	entry0 := engine.GetFatEntry(0)
	entry1 := engine.GetFatEntry(1)

	if entry0 < 0xF00 {
		result.addWarning("FAT entry 0 has unusual value: 0x%03X", entry0)
	}
	if entry1 < fat12.FatEOFMin {
		result.addWarning("FAT entry 1 has unusual value: 0x%03X", entry1)
	}
}

func verifyDirectory(engine *fat12.Engine, cluster *uint, path string, clusterUsage map[uint][]string, result *Result) {
	entries, err := engine.ReadDirectory(cluster)
	if err != nil {
		label := path
		if label == "" {
			label = "root"
		}
		result.addError("cannot read directory %s: %s", label, err)
		return
	}

	result.DirectoriesChecked++

	for _, entry := range entries {
		if entry.IsFree() || entry.IsVolumeLabel() || entry.IsDotEntry() {
			continue
		}

		entryPath := entry.FullName()
		if path != "" {
			entryPath = path + `\` + entry.FullName()
		}

		if entry.IsDirectory() {
			first := uint(entry.FirstCluster)
			if first < 2 {
				result.addError("directory %s has invalid first cluster: %d", entryPath, first)
				continue
			}
			if _, used := clusterUsage[first]; used {
				result.addError("circular reference: directory %s points to already-used cluster %d", entryPath, first)
				continue
			}

			chain, err := engine.FollowChain(first)
			if err != nil {
				result.addError("invalid cluster chain for directory %s: %s", entryPath, err)
				continue
			}
			for _, c := range chain {
				clusterUsage[c] = append(clusterUsage[c], entryPath)
			}

			verifyDirectory(engine, &first, entryPath, clusterUsage, result)
			continue
		}

		result.FilesChecked++

		if entry.FileSize == 0 {
			if entry.FirstCluster != 0 {
				result.addWarning("empty file %s has non-zero first cluster: %d", entryPath, entry.FirstCluster)
			}
			continue
		}

		first := uint(entry.FirstCluster)
		if first < 2 {
			result.addError("file %s has invalid first cluster: %d", entryPath, first)
			continue
		}

		chain, err := engine.FollowChain(first)
		if err != nil {
			result.addError("invalid cluster chain for file %s: %s", entryPath, err)
			continue
		}

		expectedClusters := (uint(entry.FileSize) + engine.ClusterSize() - 1) / engine.ClusterSize()
		if uint(len(chain)) != expectedClusters {
			result.addWarning(
				"file %s: size %d bytes suggests %d clusters, but chain has %d clusters",
				entryPath, entry.FileSize, expectedClusters, len(chain))
		}

		for _, c := range chain {
			clusterUsage[c] = append(clusterUsage[c], entryPath)
		}
	}
}

func findLostClusters(engine *fat12.Engine, clusterUsage map[uint][]string, result *Result) {
	visited := make(map[uint]bool, len(clusterUsage))
	for c := range clusterUsage {
		visited[c] = true
	}

	type lostChain struct {
		start  uint
		length int
	}
	var lostChains []lostChain

	for cluster := uint(2); cluster < engine.TotalClusters()+2; cluster++ {
		if visited[cluster] {
			continue
		}
		entry := engine.GetFatEntry(cluster)
		if entry == fat12.FatFree || entry == fat12.FatBad {
			continue
		}

		chain, err := engine.FollowChain(cluster)
		if err != nil {
			result.LostClusters++
			visited[cluster] = true
			continue
		}
		for _, c := range chain {
			if !visited[c] {
				visited[c] = true
				result.LostClusters++
			}
		}
		if len(chain) > 0 {
			lostChains = append(lostChains, lostChain{start: cluster, length: len(chain)})
		}
	}

	if len(lostChains) > 0 {
		result.addWarning("found %d lost cluster chain(s) totaling %d clusters", len(lostChains), result.LostClusters)
		limit := len(lostChains)
		if limit > 5 {
			limit = 5
		}
		for _, lc := range lostChains[:limit] {
			result.addWarning("  lost chain starting at cluster %d, length %d", lc.start, lc.length)
		}
		if len(lostChains) > 5 {
			result.addWarning("  ... and %d more", len(lostChains)-5)
		}
	}
}

// HardDisk verifies every partition of a Victor hard disk image and
// merges their results, prefixing each message with its partition
// index the way verify.py does.
func HardDisk(disk *harddisk.Disk, verbose bool) *Result {
	result := &Result{}
	result.addInfo("Checking hard disk with %d partition(s)...", disk.PartitionCount())

	for idx, partition := range disk.ListPartitions() {
		result.addInfo("Checking partition %d: %s", idx, strings.TrimSpace(partition.Label.VolumeName))

		partResult := FAT12(partition.Engine, verbose)

		if partResult.Errors != nil {
			for _, err := range partResult.Errors.Errors {
				result.addError("partition %d: %s", idx, err)
			}
		}
		for _, w := range partResult.Warnings {
			result.addWarning("partition %d: %s", idx, w)
		}
		if verbose {
			for _, info := range partResult.Info {
				result.addInfo("  %s", info)
			}
		}

		result.FilesChecked += partResult.FilesChecked
		result.DirectoriesChecked += partResult.DirectoriesChecked
		result.ClustersInUse += partResult.ClustersInUse
		result.LostClusters += partResult.LostClusters
		result.BadClusters += partResult.BadClusters
		result.CrossLinkedClusters = append(result.CrossLinkedClusters, partResult.CrossLinkedClusters...)
	}

	return result
}

// CPM verifies a CP/M disk: it counts the files cpm.ListFiles returns
// and warns on a repeated (user, name) key among them. ListFiles
// already merges every directory entry with the same user and name
// into one file, so duplicate directory entries are not reported.
func CPM(engine *cpm.Engine, verbose bool) *Result {
	result := &Result{}
	result.addInfo("Checking CP/M disk structure...")

	files, err := engine.ListFiles()
	if err != nil {
		result.addError("error reading CP/M directory: %s", err)
		return result
	}
	result.FilesChecked = len(files)

	seen := make(map[string]bool, len(files))
	for _, f := range files {
		key := fmt.Sprintf("%d:%s", f.User, f.FullName())
		if seen[key] {
			result.addWarning("duplicate file entry: %s", key)
		}
		seen[key] = true
	}

	if verbose {
		result.addInfo("Files checked: %d", result.FilesChecked)
	}

	return result
}

// Format renders result as the human-readable report the CLI's verify
// subcommand prints.
func Format(result *Result) string {
	var b strings.Builder

	if result.IsValid() {
		b.WriteString("Disk verification: PASSED\n")
	} else {
		b.WriteString("Disk verification: FAILED\n")
	}
	b.WriteString("\n")

	if result.Errors != nil && len(result.Errors.Errors) > 0 {
		fmt.Fprintf(&b, "Errors (%d):\n", len(result.Errors.Errors))
		for _, err := range result.Errors.Errors {
			fmt.Fprintf(&b, "  ERROR: %s\n", err)
		}
		b.WriteString("\n")
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintf(&b, "Warnings (%d):\n", len(result.Warnings))
		for _, w := range result.Warnings {
			fmt.Fprintf(&b, "  WARNING: %s\n", w)
		}
		b.WriteString("\n")
	}

	b.WriteString("Summary:\n")
	fmt.Fprintf(&b, "  Files checked: %d\n", result.FilesChecked)
	fmt.Fprintf(&b, "  Directories checked: %d\n", result.DirectoriesChecked)
	fmt.Fprintf(&b, "  Clusters in use: %d\n", result.ClustersInUse)
	if result.LostClusters > 0 {
		fmt.Fprintf(&b, "  Lost clusters: %d\n", result.LostClusters)
	}
	if result.BadClusters > 0 {
		fmt.Fprintf(&b, "  Bad clusters: %d\n", result.BadClusters)
	}
	if len(result.CrossLinkedClusters) > 0 {
		fmt.Fprintf(&b, "  Cross-linked clusters: %d\n", len(result.CrossLinkedClusters))
	}

	return b.String()
}
