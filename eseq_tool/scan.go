package main

import (
	"fmt"
	"os"

	"github.com/dkvtools/eseqmidi"
	"github.com/spf13/cobra"
)

var flagDumpEvents bool

var scanCmd = &cobra.Command{
	Use:   "scan <file>",
	Short: "Print the contents of a .fil or .mid file",
	Long: `Decode a file and print a summary: the ESEQ header fields and event
inventory for .fil files, or the container header and per-track summary for
.mid files. Reports go to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&flagDumpEvents, "events", false,
		"print every decoded event")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if isFilName(path) {
		return scanFil(path, data)
	}
	return scanMid(path, data)
}

func scanFil(path string, data []byte) error {
	raw := eseqmidi.DecodeEseqBuffer(data)
	header, region, err := eseqmidi.ParseEseqHeader(raw)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", path, header)
	events, err := eseqmidi.DecodeFilEvents(region)
	if err != nil {
		return err
	}
	fmt.Printf("Event region: %d bytes, %d events.\n", len(region),
		len(events))
	if !flagDumpEvents {
		return nil
	}
	for i, te := range events {
		fmt.Printf("  %d. Delta %d: %s\n", i+1, te.Delta, te.Event)
	}
	return nil
}

func scanMid(path string, data []byte) error {
	f, err := eseqmidi.ParseMidi(data)
	if err != nil {
		return err
	}
	fmt.Printf("%s: format %d, %d track(s), %d ticks per quarter note.\n",
		path, f.Format, len(f.Tracks), f.Division)
	for i, track := range f.Tracks {
		fmt.Printf("Track %d: %d events.\n", i, len(track.Events))
		if !flagDumpEvents {
			continue
		}
		for j, te := range track.Events {
			fmt.Printf("  %d. Delta %d: %s\n", j+1, te.Delta, te.Event)
		}
	}
	return nil
}
