package eseqmidi

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

// Returns a FIL container with a typical DKC timebase and resolution: a note
// at 20480 source ticks (one quarter note), released 40 ticks later.
func makeTestFil(title string) []byte {
	data := makeEseqHeader(20480, 16384, title)
	return append(data,
		// Delta 16383 plus 4097, accumulating to 20480
		0xf4, 0x7f, 0x7f,
		0xf4, 0x01, 0x20,
		// Note 0x3c on, channel 0
		0x90, 0x3c, 0x40,
		// Delta 40, note off via running status
		0xf3, 0x28,
		0x3c, 0x00,
		// End of stream
		0xfc,
	)
}

func TestTranscodeFIL(t *testing.T) {
	out, e := TranscodeFIL(makeTestFil("Test Song"), nil)
	if e != nil {
		t.Logf("Failed transcoding: %s\n", e)
		t.FailNow()
	}
	f, e := ParseMidi(out)
	if e != nil {
		t.Logf("Failed parsing the transcoded output: %s\n", e)
		t.FailNow()
	}
	if (f.Format != 0) || (len(f.Tracks) != 1) {
		t.Logf("Expected a single-track type 0 file, got type %d with %d "+
			"tracks\n", f.Format, len(f.Tracks))
		t.FailNow()
	}
	if f.Division != 16384 {
		t.Logf("Division doesn't match the target resolution: %d\n",
			f.Division)
		t.FailNow()
	}
	events := f.Tracks[0].Events
	for i, te := range events {
		t.Logf("%d. Delta %d: %s\n", i+1, te.Delta, te.Event)
	}
	// Tempo, track name, note on, note off, end of track.
	if len(events) != 5 {
		t.Logf("Expected 5 events, got %d\n", len(events))
		t.FailNow()
	}
	tempo, ok := events[0].Event.(*MetaEvent)
	if !ok || (tempo.Type != MetaSetTempo) {
		t.Logf("Event 0 isn't a tempo event: %s\n", events[0].Event)
		t.FailNow()
	}
	us, _ := tempo.TempoMicroseconds()
	// The 120 BPM default.
	if us != 500000 {
		t.Logf("Wrong default tempo: %d us/quarter note\n", us)
		t.FailNow()
	}
	name, ok := events[1].Event.(*MetaEvent)
	if !ok || (name.Type != MetaTrackName) ||
		(string(name.Data) != "Test Song") {
		t.Logf("Event 1 isn't the track name: %s\n", events[1].Event)
		t.FailNow()
	}
	// 20480 source ticks at timebase 20480 is one quarter note: 16384 output
	// ticks. The 40-tick release rescales to 32.
	if events[2].Delta != 16384 {
		t.Logf("Wrong rescaled note-on delta: %d\n", events[2].Delta)
		t.FailNow()
	}
	if events[3].Delta != 32 {
		t.Logf("Wrong rescaled note-off delta: %d\n", events[3].Delta)
		t.FailNow()
	}
	eot, ok := events[4].Event.(*MetaEvent)
	if !ok || !eot.IsEndOfTrack() {
		t.Logf("The last event isn't end-of-track: %s\n", events[4].Event)
		t.FailNow()
	}
}

func TestTranscodeFILBase64Input(t *testing.T) {
	raw := makeTestFil("Test Song")
	fromRaw, e := TranscodeFIL(raw, nil)
	if e != nil {
		t.Logf("Failed transcoding raw input: %s\n", e)
		t.FailNow()
	}
	wrapped := []byte(base64.StdEncoding.EncodeToString(raw))
	fromWrapped, e := TranscodeFIL(wrapped, nil)
	if e != nil {
		t.Logf("Failed transcoding base64 input: %s\n", e)
		t.FailNow()
	}
	if !bytes.Equal(fromRaw, fromWrapped) {
		t.Logf("Base64 and raw input produced different output.\n")
		t.FailNow()
	}
}

func TestTranscodeFILPreset(t *testing.T) {
	preset, ok := LookupPreset("dkc900")
	if !ok {
		t.Logf("The dkc900 preset doesn't exist.\n")
		t.FailNow()
	}
	out, e := TranscodeFIL(makeTestFil(""), &TranscodeOptions{Preset: preset})
	if e != nil {
		t.Logf("Failed transcoding: %s\n", e)
		t.FailNow()
	}
	f, e := ParseMidi(out)
	if e != nil {
		t.Logf("Failed parsing the transcoded output: %s\n", e)
		t.FailNow()
	}
	events := f.Tracks[0].Events
	tempo := events[0].Event.(*MetaEvent)
	us, _ := tempo.TempoMicroseconds()
	// 117 BPM rounds to 512821 us/quarter note.
	if us != 512821 {
		t.Logf("Wrong preset tempo: %d us/quarter note\n", us)
		t.FailNow()
	}
	// No title, so the program change follows the tempo directly.
	pc, ok := events[1].Event.(*ChannelVoiceEvent)
	if !ok || (pc.Status != StatusProgramChange) || (pc.Channel != 0) ||
		(pc.Data[0] != 0) {
		t.Logf("Event 1 isn't the preset program change: %s\n",
			events[1].Event)
		t.FailNow()
	}
	// An explicit tempo still beats the preset's.
	out, e = TranscodeFIL(makeTestFil(""),
		&TranscodeOptions{Preset: preset, BPM: 120})
	if e != nil {
		t.Logf("Failed transcoding: %s\n", e)
		t.FailNow()
	}
	f, e = ParseMidi(out)
	if e != nil {
		t.Logf("Failed parsing the transcoded output: %s\n", e)
		t.FailNow()
	}
	us, _ = f.Tracks[0].Events[0].Event.(*MetaEvent).TempoMicroseconds()
	if us != 500000 {
		t.Logf("Explicit BPM didn't override the preset: %d\n", us)
		t.FailNow()
	}
}

func TestTranscodeFILChannels(t *testing.T) {
	data := makeEseqHeader(20480, 16384, "")
	data = append(data,
		// Notes on channels 0, 2, and 3
		0x90, 0x30, 0x40,
		0x92, 0x3c, 0x40,
		0x93, 0x40, 0x40,
		0xfc,
	)
	// Collects the channels of the output's channel voice events.
	convertAndListChannels := func(opts *TranscodeOptions) []uint8 {
		out, e := TranscodeFIL(data, opts)
		if e != nil {
			t.Logf("Failed transcoding: %s\n", e)
			t.FailNow()
		}
		f, e := ParseMidi(out)
		if e != nil {
			t.Logf("Failed parsing the transcoded output: %s\n", e)
			t.FailNow()
		}
		// Remapping must never touch anything but the channel bits.
		expectedNotes := []byte{0x30, 0x3c, 0x40}
		var channels []uint8
		for _, te := range f.Tracks[0].Events {
			cv, ok := te.Event.(*ChannelVoiceEvent)
			if !ok {
				continue
			}
			if (cv.Data[0] != expectedNotes[len(channels)]) ||
				(cv.Data[1] != 0x40) {
				t.Logf("Remapping changed the data bytes: % x\n", cv.Data)
				t.FailNow()
			}
			channels = append(channels, cv.Channel)
		}
		return channels
	}
	forced := uint8(0)
	channels := convertAndListChannels(&TranscodeOptions{
		ForceChannel: &forced,
	})
	if (len(channels) != 3) || (channels[0] != 0) || (channels[1] != 0) ||
		(channels[2] != 0) {
		t.Logf("Forcing didn't move every event to channel 0: %v\n", channels)
		t.FailNow()
	}
	channels = convertAndListChannels(&TranscodeOptions{
		ChannelMap: map[uint8]uint8{2: 5},
	})
	if (len(channels) != 3) || (channels[0] != 0) || (channels[1] != 5) ||
		(channels[2] != 3) {
		t.Logf("Mapping didn't move only channel 2: %v\n", channels)
		t.FailNow()
	}
	// Invalid channel settings must fail before any decoding happens.
	badChannel := uint8(16)
	_, e := TranscodeFIL(data, &TranscodeOptions{ForceChannel: &badChannel})
	if !errors.Is(e, ErrInvalidChannel) {
		t.Logf("Didn't get ErrInvalidChannel for forced channel 16: %v\n", e)
		t.FailNow()
	}
	_, e = TranscodeFIL(data, &TranscodeOptions{
		ChannelMap: map[uint8]uint8{0: 16},
	})
	if !errors.Is(e, ErrInvalidChannel) {
		t.Logf("Didn't get ErrInvalidChannel for a map to channel 16: %v\n", e)
		t.FailNow()
	}
}

func TestTranscodeFILZeroTimingFields(t *testing.T) {
	data := makeEseqHeader(0, 0, "")
	data = append(data, 0xf3, 0x30, 0x90, 0x3c, 0x40, 0xfc)
	out, e := TranscodeFIL(data, nil)
	if e != nil {
		t.Logf("Failed transcoding: %s\n", e)
		t.FailNow()
	}
	f, e := ParseMidi(out)
	if e != nil {
		t.Logf("Failed parsing the transcoded output: %s\n", e)
		t.FailNow()
	}
	if f.Division != 384 {
		t.Logf("Expected the fallback division, got %d\n", f.Division)
		t.FailNow()
	}
	// With no usable timing fields the deltas carry through unscaled.
	if f.Tracks[0].Events[1].Delta != 48 {
		t.Logf("Delta was rescaled without a timebase: %d\n",
			f.Tracks[0].Events[1].Delta)
		t.FailNow()
	}
}

func TestTranscodeFILShortBuffer(t *testing.T) {
	_, e := TranscodeFIL(make([]byte, 10), nil)
	if !errors.Is(e, ErrHeaderTooShort) {
		t.Logf("Didn't get ErrHeaderTooShort: %v\n", e)
		t.FailNow()
	}
}
