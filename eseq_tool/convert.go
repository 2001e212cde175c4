package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/dkvtools/eseqmidi"
	"github.com/spf13/cobra"
)

var (
	flagTempoBPM          float64
	flagPresetName        string
	flagForceChannel      int
	flagChannelMap        string
	flagTitle             string
	flagTitleFromFilename bool
	flagOutputFromTitle   bool
	flagAddXF             bool
)

var convertCmd = &cobra.Command{
	Use:   "convert <input> [output]",
	Short: "Convert .fil / .fil.b64 files to standard MIDI",
	Long: `Convert Yamaha ESEQ/FIL files (raw or base64-wrapped) to type 0
standard MIDI files. The input may be a single file or a directory; in
directory mode the optional output argument names the destination directory.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().Float64Var(&flagTempoBPM, "tempo-bpm", 120,
		"tempo in BPM for the MIDI output")
	convertCmd.Flags().StringVar(&flagPresetName, "preset", "",
		"apply a device preset (e.g. dkc900)")
	convertCmd.Flags().IntVar(&flagForceChannel, "force-channel", -1,
		"force all channel voice events onto this channel (0-15)")
	convertCmd.Flags().StringVar(&flagChannelMap, "channel-map", "",
		"map channels src:dst, comma delimited (e.g. 2:0,3:0)")
	convertCmd.Flags().StringVar(&flagTitle, "title", "",
		"override the title from the FIL header")
	convertCmd.Flags().BoolVar(&flagTitleFromFilename, "title-from-filename",
		false, "derive the title from the filename, dropping a leading "+
			"track number (NN or N-NN)")
	convertCmd.Flags().BoolVar(&flagOutputFromTitle, "output-from-title",
		false, "name the output .mid file after the FIL header title")
	convertCmd.Flags().BoolVar(&flagAddXF, "xf", true,
		"inject the XF solo badge into the converted file")
	rootCmd.AddCommand(convertCmd)
}

// Matches a leading "NN" or "N-NN" track number on a filename stem.
var trackNumberPattern = regexp.MustCompile(
	`^(\d{1,2}(?:-\d{1,2})?)\s*-?\s*(.+)$`)

func isFilName(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".fil") ||
		strings.HasSuffix(lower, ".fil.b64")
}

// Strips the .fil/.fil.b64 suffix and appends .mid.
func midName(name string) string {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".fil.b64") {
		return name[:len(name)-len(".fil.b64")] + ".mid"
	}
	if strings.HasSuffix(lower, ".fil") {
		return name[:len(name)-len(".fil")] + ".mid"
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".mid"
}

// Folds typographic punctuation to ASCII and strips characters that are
// illegal in filenames, collapsing the leftover whitespace.
func sanitizeFilename(name string) string {
	replacements := map[string]string{
		"’": "'", "‘": "'",
		"“": "\"", "”": "\"",
		"–": "-", "—": "-",
		"…": "...",
	}
	for from, to := range replacements {
		name = strings.ReplaceAll(name, from, to)
	}
	illegal := map[string]string{
		"<": "", ">": "", ":": "-", "\"": "'",
		"/": "-", "\\": "-", "|": "-", "?": "", "*": "",
	}
	for from, to := range illegal {
		name = strings.ReplaceAll(name, from, to)
	}
	for strings.Contains(name, "  ") {
		name = strings.ReplaceAll(name, "  ", " ")
	}
	return strings.Trim(name, ". ")
}

// Parses a "src:dst,src:dst" channel map flag.
func parseChannelMap(s string) (map[uint8]uint8, error) {
	if s == "" {
		return nil, nil
	}
	channelMap := make(map[uint8]uint8)
	for _, pair := range strings.Split(s, ",") {
		src, dst, found := strings.Cut(pair, ":")
		if !found {
			return nil, fmt.Errorf("bad channel map entry %q", pair)
		}
		srcN, err := strconv.Atoi(strings.TrimSpace(src))
		if err != nil {
			return nil, fmt.Errorf("bad channel map entry %q: %w", pair, err)
		}
		dstN, err := strconv.Atoi(strings.TrimSpace(dst))
		if err != nil {
			return nil, fmt.Errorf("bad channel map entry %q: %w", pair, err)
		}
		if (srcN < 0) || (srcN > 15) || (dstN < 0) || (dstN > 15) {
			return nil, fmt.Errorf("channel map entry %q outside 0-15", pair)
		}
		channelMap[uint8(srcN)] = uint8(dstN)
	}
	return channelMap, nil
}

// Builds the transcode options shared by every file in the run. The
// per-file title is filled in later.
func buildTranscodeOptions(cmd *cobra.Command) (*eseqmidi.TranscodeOptions,
	error) {
	opts := &eseqmidi.TranscodeOptions{Title: flagTitle}
	if cmd.Flags().Changed("tempo-bpm") {
		opts.BPM = flagTempoBPM
	}
	if flagPresetName != "" {
		preset, ok := eseqmidi.LookupPreset(flagPresetName)
		if !ok {
			return nil, fmt.Errorf("unknown preset %q", flagPresetName)
		}
		opts.Preset = preset
	}
	if flagForceChannel >= 0 {
		if flagForceChannel > 15 {
			return nil, fmt.Errorf("forced channel %d outside 0-15",
				flagForceChannel)
		}
		ch := uint8(flagForceChannel)
		opts.ForceChannel = &ch
	}
	channelMap, err := parseChannelMap(flagChannelMap)
	if err != nil {
		return nil, err
	}
	opts.ChannelMap = channelMap
	return opts, nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	shared, err := buildTranscodeOptions(cmd)
	if err != nil {
		return err
	}
	input := args[0]
	info, err := os.Stat(input)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		outPath := ""
		if len(args) == 2 {
			outPath = args[1]
		}
		return convertOne(input, outPath, shared)
	}

	files, err := collectFiles(input, flagRecursive, isFilName)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		log.Infow("no .fil or .fil.b64 files found", "dir", input)
		return nil
	}
	outDir := ""
	if len(args) == 2 {
		outDir = args[1]
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return err
		}
	}
	failed := forEachFile(files, func(path string) error {
		return convertOne(path, outDir, shared)
	})
	log.Infow("conversion finished", "total", len(files),
		"converted", len(files)-failed, "failed", failed)
	return nil
}

// Converts a single FIL file. outPath may be empty (derive a sibling name),
// an existing directory (derive a name inside it), or an explicit file path.
func convertOne(path, outPath string, shared *eseqmidi.TranscodeOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	opts := *shared
	if (opts.Title == "") && flagTitleFromFilename {
		stem := strings.TrimSuffix(midName(filepath.Base(path)), ".mid")
		if m := trackNumberPattern.FindStringSubmatch(stem); m != nil {
			opts.Title = strings.TrimSpace(m[2])
		} else {
			opts.Title = stem
		}
	}

	out, err := eseqmidi.TranscodeFIL(data, &opts)
	if err != nil {
		return err
	}
	if flagAddXF {
		tagged, _, err := eseqmidi.InjectXFMetadata(out, 0)
		if err != nil {
			return err
		}
		out = tagged
	}

	dest, err := resolveOutputPath(path, outPath, data)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, out, 0644); err != nil {
		return err
	}
	log.Infow("converted", "input", path, "output", dest)
	return nil
}

// Picks the destination filename: explicit path > title-derived name >
// input-derived name. outPath naming an existing directory means "derive a
// name inside it".
func resolveOutputPath(path, outPath string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	if outPath != "" {
		info, err := os.Stat(outPath)
		if (err == nil) && info.IsDir() {
			dir = outPath
		} else {
			return outPath, nil
		}
	}
	name := midName(filepath.Base(path))
	if flagOutputFromTitle {
		header, _, err := eseqmidi.ParseEseqHeader(
			eseqmidi.DecodeEseqBuffer(data))
		if (err == nil) && (header.Title != "") {
			if clean := sanitizeFilename(header.Title); clean != "" {
				name = clean + ".mid"
			}
		}
	}
	return filepath.Join(dir, name), nil
}
