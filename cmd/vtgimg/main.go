// Command vtgimg inspects and manipulates Victor 9000 and IBM PC
// disk images: floppies, hard disk containers, and CP/M-86 volumes.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/IntergalacticMicrosystems/vtg-image-util/blockdev"
	"github.com/IntergalacticMicrosystems/vtg-image-util/cpm"
	"github.com/IntergalacticMicrosystems/vtg-image-util/disks"
	"github.com/IntergalacticMicrosystems/vtg-image-util/fat12"
	"github.com/IntergalacticMicrosystems/vtg-image-util/format"
	"github.com/IntergalacticMicrosystems/vtg-image-util/image"
	"github.com/IntergalacticMicrosystems/vtg-image-util/image/chd"
	"github.com/IntergalacticMicrosystems/vtg-image-util/imagepath"
	"github.com/IntergalacticMicrosystems/vtg-image-util/verify"
)

func main() {
	app := cli.App{
		Name:  "vtgimg",
		Usage: "Inspect and manipulate Victor 9000 / IBM PC disk images",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "emit results as single-line JSON objects"},
		},
		ExitErrHandler: exitWithError,
		Commands: []*cli.Command{
			infoCommand(),
			verifyCommand(),
			createCommand(),
			listCommand(),
			copyCommand(),
			deleteCommand(),
			mkdirCommand(),
			rmdirCommand(),
			attrCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		exitWithError(nil, err)
	}
}

// exitWithError reports err on stderr, as plain text or as the
// single-line JSON object --json asks for, then exits non-zero.
// cli.Exit errors keep their exit code; everything else maps to 1.
func exitWithError(c *cli.Context, err error) {
	if err == nil {
		return
	}
	message := err.Error()
	if message != "" {
		if c != nil && c.Bool("json") {
			out, _ := json.Marshal(map[string]string{"status": "error", "message": message})
			fmt.Fprintln(os.Stderr, string(out))
		} else {
			fmt.Fprintln(os.Stderr, "vtgimg: "+message)
		}
	}
	if coder, ok := err.(cli.ExitCoder); ok && coder.ExitCode() != 0 {
		os.Exit(coder.ExitCode())
	}
	os.Exit(1)
}

// emit prints a successful result. In --json mode the whole message
// (newlines included) becomes one single-line JSON object.
func emit(c *cli.Context, message string) {
	message = strings.TrimRight(message, "\n")
	if c.Bool("json") {
		out, _ := json.Marshal(map[string]string{"status": "ok", "message": message})
		fmt.Println(string(out))
		return
	}
	if message != "" {
		fmt.Println(message)
	}
}

// openTarget parses a CLI positional argument as an image path and
// opens the matching volume. readonly controls whether the host file
// and, for a hard disk, its FAT shadow can be mutated.
func openTarget(raw string, readonly bool) (*image.Volume, imagepath.Path, error) {
	parsed, err := imagepath.Parse(raw)
	if err != nil {
		return nil, imagepath.Path{}, err
	}
	volume, err := image.Open(parsed.Image, parsed.Partition, readonly)
	if err != nil {
		return nil, imagepath.Path{}, err
	}
	return volume, parsed, nil
}

func internalComponents(parsed imagepath.Path) []string {
	if parsed.Internal == nil {
		return nil
	}
	return imagepath.Components(*parsed.Internal)
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Emit capacity, cluster info, and free space for an image",
		ArgsUsage: "IMAGE[:PARTITION]",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("info requires exactly one IMAGE[:PARTITION] argument", 1)
			}
			volume, _, err := openTarget(c.Args().Get(0), true)
			if err != nil {
				return err
			}
			emit(c, infoText(volume))
			return nil
		},
	}
}

func infoText(volume *image.Volume) string {
	var out strings.Builder
	fmt.Fprintf(&out, "Format: %s\n", volume.Kind)

	if volume.CHD != nil {
		if meta, ok := volume.CHD.GetMetadata(chd.HardDiskMetadataTag); ok {
			fmt.Fprintf(&out, "CHD geometry: %s\n", strings.TrimRight(string(meta), "\x00\n"))
		}
	}

	switch {
	case volume.HardDisk != nil:
		fmt.Fprintf(&out, "Partitions: %d\n", volume.HardDisk.PartitionCount())
		for _, p := range volume.HardDisk.ListPartitions() {
			fmt.Fprintf(&out, "  [%d] %s\n", p.Index, strings.TrimSpace(p.Label.VolumeName))
		}
	case volume.FAT12 != nil:
		writeFAT12Info(&out, volume.FAT12)
	case volume.CPM != nil:
		files, err := volume.CPM.ListFiles()
		if err == nil {
			fmt.Fprintf(&out, "Files: %d\n", len(files))
		}
	}
	return out.String()
}

func writeFAT12Info(out *strings.Builder, engine *fat12.Engine) {
	geom := engine.Geometry()
	fmt.Fprintf(out, "Total clusters: %d\n", geom.TotalClusters)
	fmt.Fprintf(out, "Cluster size: %d bytes\n", geom.ClusterSize)

	free := 0
	for cluster := uint(2); cluster < geom.TotalClusters+2; cluster++ {
		if engine.GetFatEntry(cluster) == fat12.FatFree {
			free++
		}
	}
	fmt.Fprintf(out, "Free clusters: %d (%d bytes)\n", free, uint(free)*geom.ClusterSize)
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Walk FAT and directory structure, reporting errors and warnings",
		ArgsUsage: "IMAGE[:PARTITION]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("verify requires exactly one IMAGE[:PARTITION] argument", 1)
			}
			volume, _, err := openTarget(c.Args().Get(0), true)
			if err != nil {
				return err
			}

			var result *verify.Result
			switch {
			case volume.HardDisk != nil:
				result = verify.HardDisk(volume.HardDisk, c.Bool("verbose"))
			case volume.CPM != nil:
				result = verify.CPM(volume.CPM, c.Bool("verbose"))
			case volume.FAT12 != nil:
				result = verify.FAT12(volume.FAT12, c.Bool("verbose"))
			default:
				return cli.Exit("could not determine how to verify this image", 1)
			}

			if !result.IsValid() {
				return cli.Exit(strings.TrimRight(verify.Format(result), "\n"), 1)
			}
			emit(c, verify.Format(result))
			return nil
		},
	}
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Produce a blank formatted image",
		ArgsUsage: "OUTPUT",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Required: true,
				Usage: "victor-ss, victor-ds, 360K, 720K, 1.2M, or 1.44M"},
			&cli.StringFlag{Name: "label"},
			&cli.BoolFlag{Name: "force"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("create requires exactly one OUTPUT argument", 1)
			}
			output := c.Args().Get(0)
			diskType := c.String("type")
			if err := createImage(output, diskType, c.String("label"), c.Bool("force")); err != nil {
				return err
			}
			emit(c, fmt.Sprintf("created %s image %s", diskType, output))
			return nil
		},
	}
}

func createImage(outputPath, diskType, label string, force bool) error {
	var sectors uint
	switch diskType {
	// Victor drives use zoned GCR recording, so the per-track numbers in
	// the geometry table cannot be multiplied out to a sector total; use
	// the formatted capacities directly.
	case "victor-ss":
		sectors = 1224
	case "victor-ds":
		sectors = 2448
	case "360K", "720K", "1.2M", "1.44M":
		geometry, err := disks.GetPredefinedDiskGeometry(diskType)
		if err != nil {
			return err
		}
		sectors = uint(geometry.TotalSizeBytes() / blockdev.SectorSize)
	default:
		return cli.Exit(fmt.Sprintf("unknown disk type %q", diskType), 1)
	}

	flags := os.O_RDWR | os.O_CREATE
	if force {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(outputPath, flags, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	device := blockdev.New(file, sectors, 0, false)

	switch diskType {
	case "victor-ss":
		return format.CreateVictorFloppy(device, format.VictorSingleSided, label)
	case "victor-ds":
		return format.CreateVictorFloppy(device, format.VictorDoubleSided, label)
	default:
		return format.CreateIBMFloppy(device, format.IBMFormat(diskType), label, "MSDOS5.0")
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "Directory listing",
		ArgsUsage: "IMAGE[:PARTITION][:\\PATH]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("list requires exactly one image path argument", 1)
			}
			volume, parsed, err := openTarget(c.Args().Get(0), true)
			if err != nil {
				return err
			}
			components := internalComponents(parsed)

			var text string
			switch {
			case volume.CPM != nil:
				text, err = listCPMText(volume.CPM)
			case volume.FAT12 != nil:
				text, err = listFAT12Text(volume.FAT12, components, c.Bool("recursive"))
			default:
				return cli.Exit("select a partition to list its contents", 1)
			}
			if err != nil {
				return err
			}
			emit(c, text)
			return nil
		},
	}
}

func listFAT12Text(engine *fat12.Engine, components []string, recursive bool) (string, error) {
	var out strings.Builder
	if recursive {
		entries, err := engine.ListRecursive(components, "")
		if err != nil {
			return "", err
		}
		for _, pe := range entries {
			fmt.Fprintf(&out, "%-12s %8d  %s\n", pe.Entry.AttrString(), pe.Entry.FileSize, pe.RelativePath)
		}
		return out.String(), nil
	}

	entries, err := engine.ListFiles(components)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if entry.IsDotEntry() {
			continue
		}
		fmt.Fprintf(&out, "%-12s %8d  %s\n", entry.AttrString(), entry.FileSize, entry.FullName())
	}
	return out.String(), nil
}

func listCPMText(engine *cpm.Engine) (string, error) {
	files, err := engine.ListFiles()
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for _, f := range files {
		fmt.Fprintf(&out, "%2d %8d  %s\n", f.User, f.Size, f.FullName())
	}
	return out.String(), nil
}

func copyCommand() *cli.Command {
	return &cli.Command{
		Name:      "copy",
		Usage:     "Bidirectional copy between image and host filesystem",
		ArgsUsage: "SOURCE DEST",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.Exit("copy requires SOURCE and DEST arguments", 1)
			}
			source, dest := c.Args().Get(0), c.Args().Get(1)
			if _, err := imagepath.Parse(source); err == nil {
				copied, err := copyFromImage(source, dest, c.Bool("recursive"))
				if err != nil {
					return err
				}
				emit(c, fmt.Sprintf("copied %d file(s) to %s", copied, dest))
				return nil
			}
			if _, err := imagepath.Parse(dest); err == nil {
				if err := copyToImage(source, dest); err != nil {
					return err
				}
				emit(c, fmt.Sprintf("copied %s into %s", source, dest))
				return nil
			}
			return cli.Exit("neither SOURCE nor DEST names a disk image", 1)
		},
	}
}

// copyFromImage extracts one file, or every file matching a wildcard
// leaf, from an image to the host filesystem. With a wildcard (or in
// recursive mode) destPath names a host directory.
func copyFromImage(source, destPath string, recursive bool) (int, error) {
	volume, parsed, err := openTarget(source, true)
	if err != nil {
		return 0, err
	}
	components := internalComponents(parsed)

	leaf := ""
	if len(components) > 0 {
		leaf = components[len(components)-1]
	}

	switch {
	case volume.FAT12 != nil:
		if fat12.HasWildcards(leaf) || recursive {
			return copyMatchesFromFAT12(volume.FAT12, components, leaf, destPath, recursive)
		}
		data, err := volume.FAT12.ReadFile(components)
		if err != nil {
			return 0, err
		}
		return 1, os.WriteFile(destPath, data, 0644)

	case volume.CPM != nil:
		if fat12.HasWildcards(leaf) {
			matches, err := volume.CPM.FindMatchingFiles(leaf)
			if err != nil {
				return 0, err
			}
			for _, f := range matches {
				data, err := volume.CPM.ReadFile(f.FullName())
				if err != nil {
					return 0, err
				}
				if err := os.WriteFile(filepath.Join(destPath, f.FullName()), data, 0644); err != nil {
					return 0, err
				}
			}
			return len(matches), nil
		}
		data, err := volume.CPM.ReadFile(leaf)
		if err != nil {
			return 0, err
		}
		return 1, os.WriteFile(destPath, data, 0644)

	default:
		return 0, cli.Exit("select a partition to copy from it", 1)
	}
}

func copyMatchesFromFAT12(engine *fat12.Engine, components []string, leaf, destPath string, recursive bool) (int, error) {
	dir := components
	pattern := ""
	if fat12.HasWildcards(leaf) {
		dir = components[:len(components)-1]
		pattern = leaf
	}

	if recursive {
		matches, err := engine.ListRecursive(dir, pattern)
		if err != nil {
			return 0, err
		}
		prefix := strings.Join(dir, "\\")
		for _, pe := range matches {
			rel := strings.TrimPrefix(strings.TrimPrefix(pe.RelativePath, prefix), "\\")
			hostPath := filepath.Join(destPath, filepath.FromSlash(strings.ReplaceAll(rel, "\\", "/")))
			if err := os.MkdirAll(filepath.Dir(hostPath), 0755); err != nil {
				return 0, err
			}
			data, err := engine.ReadFile(append(append([]string{}, dir...), strings.Split(rel, "\\")...))
			if err != nil {
				return 0, err
			}
			if err := os.WriteFile(hostPath, data, 0644); err != nil {
				return 0, err
			}
		}
		return len(matches), nil
	}

	matches, err := engine.FindMatchingFiles(dir, pattern)
	if err != nil {
		return 0, err
	}
	copied := 0
	for _, entry := range matches {
		if entry.IsDirectory() {
			continue
		}
		data, err := engine.ReadFile(append(append([]string{}, dir...), entry.FullName()))
		if err != nil {
			return 0, err
		}
		if err := os.WriteFile(filepath.Join(destPath, entry.FullName()), data, 0644); err != nil {
			return 0, err
		}
		copied++
	}
	return copied, nil
}

func copyToImage(sourcePath, dest string) error {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return err
	}

	volume, parsed, err := openTarget(dest, false)
	if err != nil {
		return err
	}
	components := internalComponents(parsed)

	switch {
	case volume.FAT12 != nil:
		if err := volume.FAT12.WriteFile(components, data); err != nil {
			return err
		}
	case volume.CPM != nil:
		name := filepath.Base(sourcePath)
		if len(components) > 0 {
			name = components[len(components)-1]
		}
		if err := volume.CPM.WriteFile(name, data, 0); err != nil {
			return err
		}
	default:
		return cli.Exit("select a partition to copy onto it", 1)
	}
	return volume.Flush()
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a file or directory",
		ArgsUsage: "IMAGE:\\PATH",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("delete requires exactly one IMAGE:\\PATH argument", 1)
			}
			volume, parsed, err := openTarget(c.Args().Get(0), false)
			if err != nil {
				return err
			}
			components := internalComponents(parsed)
			if len(components) == 0 {
				return cli.Exit("delete requires an internal path", 1)
			}

			switch {
			case volume.FAT12 != nil:
				_, entry, err := volume.FAT12.ResolvePath(components)
				if err != nil {
					return err
				}
				if entry.IsDirectory() {
					err = volume.FAT12.DeleteDirectory(components, c.Bool("recursive"))
				} else {
					err = volume.FAT12.DeleteFile(components)
				}
				if err != nil {
					return err
				}
			case volume.CPM != nil:
				if err := volume.CPM.DeleteFile(components[len(components)-1]); err != nil {
					return err
				}
			default:
				return cli.Exit("select a partition to delete from it", 1)
			}
			if err := volume.Flush(); err != nil {
				return err
			}
			emit(c, fmt.Sprintf("deleted %s", strings.Join(components, "\\")))
			return nil
		},
	}
}

func mkdirCommand() *cli.Command {
	return &cli.Command{
		Name:      "mkdir",
		Usage:     "Create a directory (fails on CP/M)",
		ArgsUsage: "IMAGE:\\PATH",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("mkdir requires exactly one IMAGE:\\PATH argument", 1)
			}
			volume, parsed, err := openTarget(c.Args().Get(0), false)
			if err != nil {
				return err
			}
			components := internalComponents(parsed)

			if volume.CPM != nil {
				return cli.Exit("CP/M-86 has no subdirectories", 1)
			}
			if volume.FAT12 == nil {
				return cli.Exit("select a partition to create a directory in it", 1)
			}
			if err := volume.FAT12.CreateDirectory(components); err != nil {
				return err
			}
			if err := volume.Flush(); err != nil {
				return err
			}
			emit(c, fmt.Sprintf("created directory %s", strings.Join(components, "\\")))
			return nil
		},
	}
}

func rmdirCommand() *cli.Command {
	return &cli.Command{
		Name:      "rmdir",
		Usage:     "Remove a directory",
		ArgsUsage: "IMAGE:\\PATH",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("rmdir requires exactly one IMAGE:\\PATH argument", 1)
			}
			volume, parsed, err := openTarget(c.Args().Get(0), false)
			if err != nil {
				return err
			}
			components := internalComponents(parsed)

			if volume.CPM != nil {
				return cli.Exit("CP/M-86 has no subdirectories", 1)
			}
			if volume.FAT12 == nil {
				return cli.Exit("select a partition to remove a directory from it", 1)
			}
			if err := volume.FAT12.DeleteDirectory(components, c.Bool("recursive")); err != nil {
				return err
			}
			if err := volume.Flush(); err != nil {
				return err
			}
			emit(c, fmt.Sprintf("removed directory %s", strings.Join(components, "\\")))
			return nil
		},
	}
}

func attrCommand() *cli.Command {
	return &cli.Command{
		Name:      "attr",
		Usage:     "View or set file attributes",
		ArgsUsage: "IMAGE:\\PATH [+-][rhsa]...",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return cli.Exit("attr requires an IMAGE:\\PATH argument", 1)
			}
			volume, parsed, err := openTarget(c.Args().Get(0), c.NArg() == 1)
			if err != nil {
				return err
			}
			components := internalComponents(parsed)
			if len(components) == 0 {
				return cli.Exit("attr requires an internal path", 1)
			}

			if c.NArg() == 1 {
				text, err := attributesText(volume, components)
				if err != nil {
					return err
				}
				emit(c, text)
				return nil
			}
			if err := setAttributes(volume, components, c.Args().Slice()[1:]); err != nil {
				return err
			}
			emit(c, fmt.Sprintf("attributes updated on %s", strings.Join(components, "\\")))
			return nil
		},
	}
}

func attributesText(volume *image.Volume, components []string) (string, error) {
	switch {
	case volume.FAT12 != nil:
		attr, err := volume.FAT12.GetAttributes(components)
		if err != nil {
			return "", err
		}
		return attrString(attr), nil
	case volume.CPM != nil:
		file, err := volume.CPM.FindFile(components[len(components)-1])
		if err != nil {
			return "", err
		}
		extent := file.Extents[0]
		return fmt.Sprintf("R=%v S=%v A=%v", extent.IsReadOnly(), extent.IsSystem(), extent.IsArchived()), nil
	default:
		return "", cli.Exit("select a partition to read attributes from it", 1)
	}
}

func attrString(attr uint8) string {
	flags := [4]struct {
		bit uint8
		ch  byte
	}{
		{fat12.AttrReadOnly, 'R'}, {fat12.AttrHidden, 'H'},
		{fat12.AttrSystem, 'S'}, {fat12.AttrArchive, 'A'},
	}
	out := make([]byte, 0, 4)
	for _, f := range flags {
		if attr&f.bit != 0 {
			out = append(out, f.ch)
		}
	}
	if len(out) == 0 {
		return "-"
	}
	return string(out)
}

func setAttributes(volume *image.Volume, components []string, changes []string) error {
	switch {
	case volume.FAT12 != nil:
		current, err := volume.FAT12.GetAttributes(components)
		if err != nil {
			return err
		}
		updated := applyAttrChanges(current, changes)
		if err := volume.FAT12.SetAttributes(components, updated); err != nil {
			return err
		}
	case volume.CPM != nil:
		readOnly, system, archived := false, false, false
		for _, change := range changes {
			set := strings.HasPrefix(change, "+")
			for _, c := range strings.ToLower(strings.TrimLeft(change, "+-")) {
				switch c {
				case 'r':
					readOnly = set
				case 's':
					system = set
				case 'a':
					archived = set
				}
			}
		}
		if err := volume.CPM.SetAttributes(components[len(components)-1], readOnly, system, archived); err != nil {
			return err
		}
	default:
		return cli.Exit("select a partition to set attributes on it", 1)
	}
	return volume.Flush()
}

func applyAttrChanges(current uint8, changes []string) uint8 {
	bits := map[byte]uint8{
		'r': fat12.AttrReadOnly, 'h': fat12.AttrHidden,
		's': fat12.AttrSystem, 'a': fat12.AttrArchive,
	}
	updated := current
	for _, change := range changes {
		if len(change) < 2 {
			continue
		}
		set := change[0] == '+'
		for _, c := range strings.ToLower(change[1:]) {
			if bit, ok := bits[byte(c)]; ok {
				if set {
					updated |= bit
				} else {
					updated &^= bit
				}
			}
		}
	}
	return updated
}
