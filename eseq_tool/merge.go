package main

import (
	"os"
	"strings"
	"sync/atomic"

	"github.com/dkvtools/eseqmidi"
	"github.com/spf13/cobra"
)

var flagNoBackup bool

var mergeCmd = &cobra.Command{
	Use:   "merge <input> [output]",
	Short: "Merge multi-track MIDI files into type 0",
	Long: `Flatten type 1 MIDI files into single-track type 0 files, the
format Disklavier units expect for solo piano. Files that are already type 0
are skipped. When overwriting in place the original is kept as
<name>.backup unless --no-backup is given.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runMerge,
}

func init() {
	mergeCmd.Flags().BoolVar(&flagNoBackup, "no-backup", false,
		"don't keep a backup when overwriting in place")
	rootCmd.AddCommand(mergeCmd)
}

func isMidName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".mid")
}

func runMerge(cmd *cobra.Command, args []string) error {
	input := args[0]
	info, err := os.Stat(input)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		outPath := input
		if len(args) == 2 {
			outPath = args[1]
		}
		_, err := mergeOne(input, outPath)
		return err
	}

	files, err := collectFiles(input, flagRecursive, isMidName)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		log.Infow("no .mid files found", "dir", input)
		return nil
	}
	var merged, skipped atomic.Int64
	failed := forEachFile(files, func(path string) error {
		didMerge, err := mergeOne(path, path)
		if err != nil {
			return err
		}
		if didMerge {
			merged.Add(1)
		} else {
			skipped.Add(1)
		}
		return nil
	})
	log.Infow("merge finished", "total", len(files),
		"merged", merged.Load(), "skipped", skipped.Load(), "failed", failed)
	return nil
}

// Merges one file, reporting whether anything changed. Overwriting the input
// in place keeps a .backup copy unless disabled.
func mergeOne(path, outPath string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	out, merged, err := eseqmidi.MergeToSingleTrack(data)
	if err != nil {
		return false, err
	}
	if !merged {
		log.Debugw("already type 0, skipped", "file", path)
		return false, nil
	}
	if (outPath == path) && !flagNoBackup {
		if err := os.Rename(path, path+".backup"); err != nil {
			return false, err
		}
	}
	if err := os.WriteFile(outPath, out, 0644); err != nil {
		return false, err
	}
	log.Infow("merged to type 0", "file", path, "output", outPath)
	return true, nil
}
