package main

import (
	"errors"
	"os"
	"sync/atomic"

	"github.com/dkvtools/eseqmidi"
	"github.com/spf13/cobra"
)

var flagYear int

var tagCmd = &cobra.Command{
	Use:   "tag <path>",
	Short: "Inject the XF solo badge into type 0 MIDI files",
	Long: `Add the Yamaha XF "solo" classification metadata (copyright notice
plus XF/XG marker events) that DKC-900/Enspire units use to recognize solo
files. Already-tagged files and multi-track files are skipped; merge
multi-track files first.`,
	Args: cobra.ExactArgs(1),
	RunE: runTag,
}

func init() {
	tagCmd.Flags().IntVar(&flagYear, "year", 0,
		"year for the copyright notice (default: current year)")
	rootCmd.AddCommand(tagCmd)
}

func runTag(cmd *cobra.Command, args []string) error {
	input := args[0]
	info, err := os.Stat(input)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		_, err := tagOne(input)
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
	var tagged, skipped atomic.Int64
	failed := forEachFile(files, func(path string) error {
		didTag, err := tagOne(path)
		if err != nil {
			return err
		}
		if didTag {
			tagged.Add(1)
		} else {
			skipped.Add(1)
		}
		return nil
	})
	log.Infow("tagging finished", "total", len(files),
		"tagged", tagged.Load(), "skipped", skipped.Load(), "failed", failed)
	return nil
}

// Tags one file in place, reporting whether the badge was added. Multi-track
// files are skipped rather than failed; they need a merge first.
func tagOne(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	out, alreadyTagged, err := eseqmidi.InjectXFMetadata(data, flagYear)
	if err != nil {
		if errors.Is(err, eseqmidi.ErrRequiresSingleTrack) {
			log.Warnw("skipped: not a type 0 file, merge it first",
				"file", path)
			return false, nil
		}
		return false, err
	}
	if alreadyTagged {
		log.Debugw("already has XF metadata, skipped", "file", path)
		return false, nil
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return false, err
	}
	log.Infow("added XF solo metadata", "file", path)
	return true, nil
}
