package main

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/dkvtools/eseqmidi"
	"github.com/spf13/cobra"
)

var repairCmd = &cobra.Command{
	Use:   "repair <input> [output]",
	Short: "Repair MIDI files with corrupted key signature modes",
	Long: `Fix key signature meta events whose mode byte was corrupted to 255
by a known encoder defect, rewriting it to 0 (major) at the byte level. Files
without the corruption are left alone. When overwriting in place the original
is kept as <stem>.original<ext>.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRepair,
}

func init() {
	rootCmd.AddCommand(repairCmd)
}

func runRepair(cmd *cobra.Command, args []string) error {
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
		_, err := repairOne(input, outPath)
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
	var repaired, clean atomic.Int64
	failed := forEachFile(files, func(path string) error {
		didRepair, err := repairOne(path, path)
		if err != nil {
			return err
		}
		if didRepair {
			repaired.Add(1)
		} else {
			clean.Add(1)
		}
		return nil
	})
	log.Infow("repair finished", "total", len(files),
		"repaired", repaired.Load(), "clean", clean.Load(), "failed", failed)
	return nil
}

// Repairs one file, reporting whether anything was rewritten.
func repairOne(path, outPath string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	out, repairs, err := eseqmidi.RepairKeySignatures(data)
	if err != nil {
		return false, err
	}
	if len(repairs) == 0 {
		log.Debugw("no repairs needed", "file", path)
		return false, nil
	}
	for _, r := range repairs {
		log.Infow("repaired key signature", "file", path,
			"track", r.Track, "offset", r.Offset, "oldMode", r.OldMode)
	}
	if outPath == path {
		ext := filepath.Ext(path)
		backup := strings.TrimSuffix(path, ext) + ".original" + ext
		if err := os.Rename(path, backup); err != nil {
			return false, err
		}
	}
	if err := os.WriteFile(outPath, out, 0644); err != nil {
		return false, err
	}
	log.Infow("repaired", "file", path, "output", outPath,
		"repairs", len(repairs))
	return true, nil
}
