package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"dircmp/pkg/compare"
	"dircmp/pkg/dirread"
	"dircmp/pkg/exclude"
	"dircmp/pkg/fsid"
)

var (
	configPath      string
	recursive       bool
	ignoreNameCase  bool
	noDereference   bool
	newFile         bool
	reportIdentical bool
	excludePatterns []string
	excludeFrom     []string
	startingFile    string
	colorMode       string
)

var exitStatus = compare.StatusEqual

func main() {
	rootCmd := &cobra.Command{
		Use:   "dircmp [flags] LEFT RIGHT",
		Short: "Compare two directory trees",
		Long: `dircmp walks two directory trees in lockstep and reports, per entry,
whether it exists only on one side, differs between the sides, or matches.
File contents are compared byte for byte; no line-level diff is computed.

Example:
  dircmp -r --exclude '*.o' /srv/release-a /srv/release-b`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "Config file (default ~/.config/dircmp/config.yaml)")
	rootCmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Recursively compare subdirectories found on both sides")
	rootCmd.Flags().BoolVar(&ignoreNameCase, "ignore-file-name-case", false, "Match file names case-insensitively")
	rootCmd.Flags().BoolVar(&noDereference, "no-dereference", false, "Compare symbolic links themselves instead of their targets")
	rootCmd.Flags().BoolVarP(&newFile, "new-file", "N", false, "Treat absent files and directories as empty")
	rootCmd.Flags().BoolVarP(&reportIdentical, "report-identical-files", "s", false, "Report when two files are identical")
	rootCmd.Flags().StringArrayVarP(&excludePatterns, "exclude", "x", nil, "Exclude entries matching glob pattern (repeatable)")
	rootCmd.Flags().StringArrayVarP(&excludeFrom, "exclude-from", "X", nil, "Exclude entries matching any pattern in file (repeatable)")
	rootCmd.Flags().StringVar(&startingFile, "starting-file", "", "Resume the top-level comparison at this entry name")
	rootCmd.Flags().StringVar(&colorMode, "color", "", "Colorize output: auto, always or never")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dircmp: %v\n", err)
		os.Exit(compare.StatusTrouble)
	}
	os.Exit(exitStatus)
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadFileConfig(configPath)
	if err != nil {
		return err
	}
	applyConfig(cmd, cfg)

	var excluded exclude.Set
	for _, p := range excludePatterns {
		if err := excluded.Add(p); err != nil {
			return err
		}
	}
	for _, f := range excludeFrom {
		if err := excluded.AddFile(f); err != nil {
			return err
		}
	}

	setupColor(colorMode)

	sessCfg := compare.Config{
		IgnoreCase:   ignoreNameCase,
		NoFollow:     noDereference,
		StartingFile: startingFile,
		Warnf:        warnf,
	}
	if !excluded.Empty() {
		sessCfg.Excluded = excluded.Match
	}
	d := &driver{
		sess:            compare.NewSession(sessCfg),
		rep:             &reporter{},
		recursive:       recursive,
		newFile:         newFile,
		noDereference:   noDereference,
		reportIdentical: reportIdentical,
	}

	exitStatus = d.compareArgs(args[0], args[1])
	return nil
}

// applyConfig fills in flag values the user did not set from the config file.
func applyConfig(cmd *cobra.Command, cfg *fileConfig) {
	flags := cmd.Flags()
	if !flags.Changed("recursive") {
		recursive = cfg.Recursive
	}
	if !flags.Changed("ignore-file-name-case") {
		ignoreNameCase = cfg.IgnoreFileNameCase
	}
	if !flags.Changed("no-dereference") {
		noDereference = cfg.NoDereference
	}
	if !flags.Changed("new-file") {
		newFile = cfg.NewFile
	}
	if !flags.Changed("report-identical-files") {
		reportIdentical = cfg.ReportIdenticalFiles
	}
	if !flags.Changed("color") {
		colorMode = cfg.Color
	}
	if !flags.Changed("exclude") {
		excludePatterns = append(excludePatterns, cfg.Exclude...)
	}
}

func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "dircmp: "+format+"\n", args...)
}

// compareArgs compares the two command-line operands, which may be any mix
// of directories and files, and returns the overall status.
func (d *driver) compareArgs(left, right string) int {
	ids, nonexistent, ok := d.statArgs(left, right)
	if !ok {
		return compare.StatusTrouble
	}
	if nonexistent[0] && nonexistent[1] {
		warnf("%s and %s: no such file or directory", left, right)
		return compare.StatusTrouble
	}

	leftIsDir := !nonexistent[0] && ids[0].IsDir()
	rightIsDir := !nonexistent[1] && ids[1].IsDir()

	switch {
	case (leftIsDir || nonexistent[0]) && (rightIsDir || nonexistent[1]):
		sides := [2]dirread.Dir{dirread.New(left), dirread.New(right)}
		sides[0].ID, sides[1].ID = ids[0], ids[1]
		if nonexistent[0] {
			sides[0] = dirread.Nonexistent(left)
		}
		if nonexistent[1] {
			sides[1] = dirread.Nonexistent(right)
		}
		root := compare.NewNode(nil, sides[0], sides[1])
		status := d.sess.DiffDirs(root, d.comparePair)
		closeNode(root)
		return status

	case leftIsDir:
		// Directory against file: the directory side contributes the entry
		// matching the file's name.
		dir := dirread.New(left)
		dir.ID = ids[0]
		leftPath := d.sess.FindDirFile(&dir, filepath.Base(right))
		closeFd(&dir.Fd)
		return d.compareLeafPaths(leftPath, right)

	case rightIsDir:
		dir := dirread.New(right)
		dir.ID = ids[1]
		rightPath := d.sess.FindDirFile(&dir, filepath.Base(left))
		closeFd(&dir.Fd)
		return d.compareLeafPaths(left, rightPath)

	default:
		if nonexistent[0] || nonexistent[1] {
			return d.compareOneSided(left, right, nonexistent[0], ids)
		}
		if ftype(ids[0].Mode) != ftype(ids[1].Mode) {
			d.rep.typeMismatch(left, ftype(ids[0].Mode), right, ftype(ids[1].Mode))
			return compare.StatusDifferent
		}
		return d.compareLeaf(left, right, ids)
	}
}

// statArgs resolves the identity of both operands. A missing operand is
// tolerated only under --new-file.
func (d *driver) statArgs(left, right string) (ids [2]fsid.ID, nonexistent [2]bool, ok bool) {
	ok = true
	for i, arg := range []string{left, right} {
		id, err := fsid.FromPath(arg, !d.noDereference)
		if err != nil {
			if d.newFile && os.IsNotExist(err) {
				nonexistent[i] = true
				continue
			}
			warnf("%s: %v", arg, err)
			ok = false
			continue
		}
		ids[i] = id
	}
	return ids, nonexistent, ok
}

func setupColor(mode string) {
	switch mode {
	case "always":
		colorEnabled(true)
	case "never":
		colorEnabled(false)
	default:
		colorEnabled(isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))
	}
}
