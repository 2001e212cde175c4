package eseqmidi

import (
	"fmt"
	"math"
	"sort"
)

// DefaultBPM is the tempo used when neither the caller nor a preset supplies
// one.
const DefaultBPM = 120.0

// The division used when the header carries no usable resolution.
const fallbackDivision = 384

// A device preset: a named bundle of tempo and program defaults.
type Preset struct {
	Name string
	// The tempo applied when the caller doesn't request one explicitly.
	BPM float64
	// Programs forced onto channels with a program change at time zero.
	ProgramOverride map[uint8]uint8
}

var presets = map[string]*Preset{
	// DKC-900 / Mark IV playback: 117 BPM default, acoustic grand piano on
	// channel 0.
	"dkc900": {
		Name:            "dkc900",
		BPM:             117,
		ProgramOverride: map[uint8]uint8{0: 0},
	},
}

// LookupPreset returns the named device preset, if one exists.
func LookupPreset(name string) (*Preset, bool) {
	p, ok := presets[name]
	return p, ok
}

// TranscodeOptions configures a single FIL-to-MIDI conversion. The zero value
// converts at the default tempo with channels unchanged.
type TranscodeOptions struct {
	// Tempo in beats per minute. Zero or negative selects the preset tempo,
	// or DefaultBPM when there's no preset either.
	BPM float64
	// Optional device preset.
	Preset *Preset
	// When non-nil, every channel voice event is moved to this channel,
	// overriding ChannelMap.
	ForceChannel *uint8
	// Maps source channels to destination channels. Channels without an
	// entry are left unchanged.
	ChannelMap map[uint8]uint8
	// Overrides the title extracted from the ESEQ header. When both are
	// empty, the output carries no track-name event.
	Title string
}

// TranscodeFIL converts an ESEQ/FIL container (raw or base64-wrapped) into a
// type 0 standard MIDI file at the header's target resolution. Delta times
// are rescaled from the source timebase per event, with nearest-integer
// rounding.
func TranscodeFIL(data []byte, opts *TranscodeOptions) ([]byte, error) {
	if opts == nil {
		opts = &TranscodeOptions{}
	}
	if e := validateChannels(opts); e != nil {
		return nil, e
	}
	header, region, e := ParseEseqHeader(DecodeEseqBuffer(data))
	if e != nil {
		return nil, e
	}
	events, e := DecodeFilEvents(region)
	if e != nil {
		return nil, e
	}

	bpm := opts.BPM
	if bpm <= 0 {
		bpm = DefaultBPM
		if (opts.Preset != nil) && (opts.Preset.BPM > 0) {
			bpm = opts.Preset.BPM
		}
	}
	title := opts.Title
	if title == "" {
		title = header.Title
	}
	division := header.TargetResolution
	timebase := header.Timebase
	if (division == 0) || (timebase == 0) {
		// No usable timing fields; keep deltas as-is at a plain division.
		if division == 0 {
			division = fallbackDivision
		}
		timebase = division
	}

	track := &Track{}
	usPerQuarter := uint32(math.Round(60000000.0 / bpm))
	track.Events = append(track.Events, TrackEvent{Event: NewTempoEvent(usPerQuarter)})
	if title != "" {
		track.Events = append(track.Events,
			TrackEvent{Event: NewTrackNameEvent(title)})
	}
	if opts.Preset != nil {
		// Deterministic order for the time-zero program changes.
		channels := make([]int, 0, len(opts.Preset.ProgramOverride))
		for ch := range opts.Preset.ProgramOverride {
			channels = append(channels, int(ch))
		}
		sort.Ints(channels)
		for _, ch := range channels {
			program := opts.Preset.ProgramOverride[uint8(ch)]
			track.Events = append(track.Events,
				TrackEvent{Event: NewProgramChangeEvent(uint8(ch), program)})
		}
	}
	for _, te := range events {
		if cv, ok := te.Event.(*ChannelVoiceEvent); ok {
			remapChannel(cv, opts)
		}
		track.Events = append(track.Events, TrackEvent{
			Delta: rescaleDelta(te.Delta, timebase, division),
			Event: te.Event,
		})
	}
	track.Events = append(track.Events, TrackEvent{Event: NewEndOfTrackEvent()})

	out := &MidiFile{Format: 0, Division: division, Tracks: []*Track{track}}
	return out.Serialize()
}

// Rescales a source delta to the output resolution, rounding to the nearest
// tick. Cumulative rounding error is accepted; there's no drift correction.
func rescaleDelta(delta uint32, timebase, division uint16) uint32 {
	if timebase == division {
		return delta
	}
	scaled := (uint64(delta)*uint64(division) + uint64(timebase)/2) /
		uint64(timebase)
	return uint32(scaled)
}

// Applies the channel transformation: a forced channel wins unconditionally,
// then the channel map, otherwise the event is left alone.
func remapChannel(cv *ChannelVoiceEvent, opts *TranscodeOptions) {
	if opts.ForceChannel != nil {
		cv.Channel = *opts.ForceChannel
		return
	}
	if dst, ok := opts.ChannelMap[cv.Channel]; ok {
		cv.Channel = dst
	}
}

func validateChannels(opts *TranscodeOptions) error {
	if (opts.ForceChannel != nil) && (*opts.ForceChannel > 0xf) {
		return fmt.Errorf("forced channel %d: %w", *opts.ForceChannel,
			ErrInvalidChannel)
	}
	for src, dst := range opts.ChannelMap {
		if (src > 0xf) || (dst > 0xf) {
			return fmt.Errorf("channel map entry %d:%d: %w", src, dst,
				ErrInvalidChannel)
		}
	}
	return nil
}
