package eseqmidi

import (
	"bytes"
	"errors"
	"testing"
)

func TestRepairKeySignatures(t *testing.T) {
	corrupted := []byte{
		// MThd
		0x4d, 0x54, 0x68, 0x64,
		0, 0, 0, 6,
		// Format 0, one track, 96 ticks per quarter note
		0, 0,
		0, 1,
		0, 0x60,
		// MTrk, 10 bytes of content starting at offset 22
		0x4d, 0x54, 0x72, 0x6b,
		0, 0, 0, 10,
		// Key signature: 2 flats, mode byte corrupted to 0xff. The mode byte
		// lands at offset 27.
		0, 0xff, 0x59, 0x02, 0xfe, 0xff,
		// End of track
		0, 0xff, 0x2f, 0,
	}
	original := append([]byte{}, corrupted...)
	out, repairs, e := RepairKeySignatures(corrupted)
	if e != nil {
		t.Logf("Failed repairing: %s\n", e)
		t.FailNow()
	}
	if len(repairs) != 1 {
		t.Logf("Expected 1 repair, got %d\n", len(repairs))
		t.FailNow()
	}
	r := repairs[0]
	t.Logf("Repair: %s\n", r)
	if (r.Track != 0) || (r.Offset != 27) || (r.OldMode != 0xff) {
		t.Logf("Wrong repair record: track %d, offset %d, old mode 0x%02x\n",
			r.Track, r.Offset, r.OldMode)
		t.FailNow()
	}
	if out[27] != 0 {
		t.Logf("The mode byte wasn't rewritten: 0x%02x\n", out[27])
		t.FailNow()
	}
	// The input buffer must never be modified.
	if !bytes.Equal(corrupted, original) {
		t.Logf("Repairing modified the input buffer.\n")
		t.FailNow()
	}
	// Everything except the mode byte carries through untouched, and the
	// repaired file still parses.
	for i := range out {
		if (i != 27) && (out[i] != corrupted[i]) {
			t.Logf("Unexpected difference at offset %d: 0x%02x vs 0x%02x\n",
				i, out[i], corrupted[i])
			t.FailNow()
		}
	}
	f, e := ParseMidi(out)
	if e != nil {
		t.Logf("The repaired file doesn't parse: %s\n", e)
		t.FailNow()
	}
	keySig, ok := f.Tracks[0].Events[0].Event.(*MetaEvent)
	if !ok || (keySig.Type != MetaKeySignature) || (keySig.Data[1] != 0) {
		t.Logf("The repaired key signature is wrong: %s\n",
			f.Tracks[0].Events[0].Event)
		t.FailNow()
	}
}

func TestRepairKeySignaturesClean(t *testing.T) {
	// A valid minor-mode key signature must be left alone.
	f := &MidiFile{
		Format:   0,
		Division: 96,
		Tracks: []*Track{
			{Events: []TrackEvent{
				{0, &MetaEvent{Type: MetaKeySignature, Data: []byte{0x02, 0x01}}},
				{0, NewEndOfTrackEvent()},
			}},
		},
	}
	data, e := f.Serialize()
	if e != nil {
		t.Logf("Failed serializing the fixture: %s\n", e)
		t.FailNow()
	}
	out, repairs, e := RepairKeySignatures(data)
	if e != nil {
		t.Logf("Failed scanning a clean file: %s\n", e)
		t.FailNow()
	}
	if len(repairs) != 0 {
		t.Logf("Got %d repairs for a clean file\n", len(repairs))
		t.FailNow()
	}
	if !bytes.Equal(out, data) {
		t.Logf("Scanning a clean file changed its bytes.\n")
		t.FailNow()
	}
}

func TestRepairKeySignaturesMultiTrack(t *testing.T) {
	// The corruption in the second track must be attributed to track 1.
	f := &MidiFile{
		Format:   1,
		Division: 96,
		Tracks: []*Track{
			{Events: []TrackEvent{{0, NewEndOfTrackEvent()}}},
			{Events: []TrackEvent{
				{0, &MetaEvent{Type: MetaKeySignature,
					Data: []byte{0x00, 0xff}}},
				{0, NewEndOfTrackEvent()},
			}},
		},
	}
	data, e := f.Serialize()
	if e != nil {
		t.Logf("Failed serializing the fixture: %s\n", e)
		t.FailNow()
	}
	_, repairs, e := RepairKeySignatures(data)
	if e != nil {
		t.Logf("Failed repairing: %s\n", e)
		t.FailNow()
	}
	if (len(repairs) != 1) || (repairs[0].Track != 1) {
		t.Logf("Wrong repair list: %v\n", repairs)
		t.FailNow()
	}
}

func TestRepairKeySignaturesErrors(t *testing.T) {
	_, _, e := RepairKeySignatures(make([]byte, 4))
	if !errors.Is(e, ErrNotMidiContainer) {
		t.Logf("Didn't get ErrNotMidiContainer for a short buffer: %v\n", e)
		t.FailNow()
	}
	notMidi := make([]byte, 32)
	copy(notMidi, "RIFFxxxx")
	_, _, e = RepairKeySignatures(notMidi)
	if !errors.Is(e, ErrInvalidChunkMagic) {
		t.Logf("Didn't get ErrInvalidChunkMagic for a non-MIDI buffer: %v\n",
			e)
		t.FailNow()
	}
	// A track chunk claiming more content than the buffer holds.
	overrun := []byte{
		0x4d, 0x54, 0x68, 0x64,
		0, 0, 0, 6,
		0, 0,
		0, 1,
		0, 0x60,
		0x4d, 0x54, 0x72, 0x6b,
		0, 0, 0, 0x40,
		0, 0xff, 0x2f, 0,
	}
	_, _, e = RepairKeySignatures(overrun)
	if !errors.Is(e, ErrTruncatedStream) {
		t.Logf("Didn't get ErrTruncatedStream for an overrunning track: "+
			"%v\n", e)
		t.FailNow()
	}
}
