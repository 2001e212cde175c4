package eseqmidi

// Key-signature repair works on the serialized byte form of a file, not the
// decoded event model: the corruption this fixes must be repairable even in
// files a structured decoder would refuse to interpret. The scanner is a
// byte-pattern matcher over MTrk chunk bodies, not a MIDI interpreter.

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// KeyRepair describes one repaired key-signature mode byte.
type KeyRepair struct {
	// The zero-based index of the MTrk chunk containing the repair.
	Track int
	// The offset of the rewritten mode byte within the whole file.
	Offset int
	// The invalid mode value that was replaced with 0 (major).
	OldMode byte
}

func (r KeyRepair) String() string {
	return fmt.Sprintf("track %d, offset %d: mode 0x%02x -> 0x00", r.Track,
		r.Offset, r.OldMode)
}

// RepairKeySignatures scans a MIDI buffer for key-signature meta events
// (the 5-byte pattern ff 59 02 <sf> <mode>) carrying the known corruption
// mode == 0xff, and rewrites that byte to 0 (major). Valid modes (0 and 1)
// and any other anomaly are left untouched; a clean file comes back as the
// same buffer with an empty repair list, which is not an error. The input
// buffer itself is never modified.
func RepairKeySignatures(data []byte) ([]byte, []KeyRepair, error) {
	if len(data) < midiHeaderLength {
		return nil, nil, fmt.Errorf("%d-byte buffer: %w", len(data),
			ErrNotMidiContainer)
	}
	if !bytes.Equal(data[0:4], headerChunkMagic[:]) {
		return nil, nil, fmt.Errorf("missing MThd marker: %w",
			ErrInvalidChunkMagic)
	}
	headerSize := int(binary.BigEndian.Uint32(data[4:8]))
	out := data
	var repairs []KeyRepair
	pos := 8 + headerSize
	for track := 0; pos < len(data); track++ {
		if pos+8 > len(data) {
			return nil, nil, fmt.Errorf("chunk header at offset %d cut "+
				"short: %w", pos, ErrTruncatedStream)
		}
		if !bytes.Equal(data[pos:pos+4], trackChunkMagic[:]) {
			return nil, nil, fmt.Errorf("bad chunk type %q at offset %d: %w",
				string(data[pos:pos+4]), pos, ErrInvalidChunkMagic)
		}
		trackLength := int(binary.BigEndian.Uint32(data[pos+4 : pos+8]))
		start := pos + 8
		end := start + trackLength
		if end > len(data) {
			return nil, nil, fmt.Errorf("track %d overruns the buffer: %w",
				track, ErrTruncatedStream)
		}
		for i := start; i+4 < end; i++ {
			if (data[i] != 0xff) || (data[i+1] != MetaKeySignature) ||
				(data[i+2] != 0x02) {
				continue
			}
			mode := data[i+4]
			if mode != 0xff {
				// Only the known 0xff corruption is repairable; don't guess
				// at anything else.
				continue
			}
			if len(repairs) == 0 {
				// First repair: copy so the caller's buffer stays intact.
				out = append([]byte{}, data...)
			}
			out[i+4] = 0
			repairs = append(repairs, KeyRepair{
				Track:   track,
				Offset:  i + 4,
				OldMode: mode,
			})
		}
		pos = end
	}
	return out, repairs, nil
}
