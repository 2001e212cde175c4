package eseqmidi

// This file decodes the Yamaha ESEQ/FIL container: a fixed 124-byte header
// followed by the raw event region. FIL event data is not SMF: delta times
// are carried by dedicated 0xf3/0xf4 marker bytes between events instead of
// variable-length quantities.

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
)

// Layout of the fixed ESEQ header. The event region always begins immediately
// after the header.
const (
	eseqHeaderLength     = 0x7c
	eseqResolutionOffset = 0x18
	eseqTimebaseOffset   = 0x1a
	eseqTitleOffset      = 0x57
)

// FIL stream marker bytes.
const (
	filSysExStart = 0xf0
	filEndAlt     = 0xf2
	filDelta8     = 0xf3
	filDelta14    = 0xf4
	filSysExEnd   = 0xf7
	filEnd        = 0xfc
)

// The decoded fields of an ESEQ header.
type EseqHeader struct {
	// The song title, or "" when the header carries none.
	Title string
	// Source ticks per quarter note, typically 20480.
	Timebase uint16
	// The output resolution the file was authored for, typically 16384.
	TargetResolution uint16
}

func (h *EseqHeader) String() string {
	return fmt.Sprintf("ESEQ header: title %q, timebase %d, target "+
		"resolution %d", h.Title, h.Timebase, h.TargetResolution)
}

// DecodeEseqBuffer undoes the text-safe base64 wrapping some archives apply
// to .fil containers. Detection works by attempting a decode: buffers that
// contain anything outside the base64 alphabet, or that don't decode, are
// returned unchanged as already-binary data.
func DecodeEseqBuffer(data []byte) []byte {
	cleaned := make([]byte, 0, len(data))
	for _, b := range data {
		switch {
		case (b == ' ') || (b == '\t') || (b == '\r') || (b == '\n'):
			continue
		case (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') ||
			(b >= '0' && b <= '9') || (b == '+') || (b == '/') || (b == '='):
			cleaned = append(cleaned, b)
		default:
			return data
		}
	}
	if len(cleaned) == 0 {
		return data
	}
	for len(cleaned)%4 != 0 {
		cleaned = append(cleaned, '=')
	}
	decoded, e := base64.StdEncoding.DecodeString(string(cleaned))
	if e != nil {
		return data
	}
	return decoded
}

// ParseEseqHeader decodes the fixed header of an ESEQ buffer and returns it
// along with the trailing event region (which may be empty). Buffers shorter
// than the 124-byte header fail with ErrHeaderTooShort.
func ParseEseqHeader(data []byte) (*EseqHeader, []byte, error) {
	if len(data) < eseqHeaderLength {
		return nil, nil, fmt.Errorf("%d-byte buffer: %w", len(data),
			ErrHeaderTooShort)
	}
	header := &EseqHeader{
		TargetResolution: binary.BigEndian.Uint16(
			data[eseqResolutionOffset : eseqResolutionOffset+2]),
		Timebase: binary.BigEndian.Uint16(
			data[eseqTimebaseOffset : eseqTimebaseOffset+2]),
		Title: extractEseqTitle(data),
	}
	return header, data[eseqHeaderLength:], nil
}

// Extracts the title: scan forward from the title offset until the first byte
// at or above 0xf0 (a status marker) or the end of the header. Non-printable
// bytes become spaces, runs of spaces collapse, and surrounding whitespace is
// trimmed.
func extractEseqTitle(data []byte) string {
	var title strings.Builder
	for _, b := range data[eseqTitleOffset:eseqHeaderLength] {
		if b >= 0xf0 {
			break
		}
		if (b >= 0x20) && (b < 0x7f) {
			title.WriteByte(b)
		} else {
			title.WriteByte(' ')
		}
	}
	s := title.String()
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return strings.TrimSpace(s)
}

// DecodeFilEvents decodes a FIL event region into (delta, event) pairs with
// deltas still in source timebase ticks. Delta markers apply to the next
// event and consecutive markers accumulate; 0xfc (or 0xf2) ends the stream.
// Bytes that don't decode as anything are preserved as zero-delta
// UnknownEvents so the stream carries through without loss.
func DecodeFilEvents(data []byte) ([]TrackEvent, error) {
	var events []TrackEvent
	pendingDelta := uint32(0)
	runningStatus := byte(0)
	i := 0
	// Emits a channel voice event whose status byte is already known. start
	// is the index of the first data byte.
	emitChannelVoice := func(status byte, start int) (int, error) {
		needed := channelVoiceDataLength(status & 0xf0)
		if start+needed > len(data) {
			return 0, fmt.Errorf("channel voice event at offset %d cut "+
				"short: %w", start, ErrTruncatedStream)
		}
		for _, b := range data[start : start+needed] {
			if b > 0x7f {
				// A status byte where a data byte belongs; let the main loop
				// reinterpret from here.
				return start, nil
			}
		}
		events = append(events, TrackEvent{
			Delta: pendingDelta,
			Event: &ChannelVoiceEvent{
				Status:  status & 0xf0,
				Channel: status & 0x0f,
				Data:    append([]byte{}, data[start:start+needed]...),
			},
		})
		pendingDelta = 0
		return start + needed, nil
	}
	for i < len(data) {
		b := data[i]
		switch {
		case b == filDelta8:
			if i+1 >= len(data) {
				return nil, fmt.Errorf("delta marker at offset %d cut "+
					"short: %w", i, ErrTruncatedStream)
			}
			pendingDelta += uint32(data[i+1])
			i += 2
		case b == filDelta14:
			if i+2 >= len(data) {
				return nil, fmt.Errorf("delta marker at offset %d cut "+
					"short: %w", i, ErrTruncatedStream)
			}
			// Two 7-bit halves, low half first.
			pendingDelta += (uint32(data[i+2]&0x7f) << 7) |
				uint32(data[i+1]&0x7f)
			i += 3
		case b == filSysExStart:
			j := i + 1
			for (j < len(data)) && (data[j] != filSysExEnd) {
				j++
			}
			if j >= len(data) {
				return nil, fmt.Errorf("unterminated sysex at offset %d: %w",
					i, ErrTruncatedStream)
			}
			events = append(events, TrackEvent{
				Delta: pendingDelta,
				Event: &SysExEvent{Data: append([]byte{}, data[i+1:j]...)},
			})
			pendingDelta = 0
			i = j + 1
		case (b == filEnd) || (b == filEndAlt):
			return events, nil
		case (b >= 0x80) && (b <= 0xef):
			runningStatus = b
			next, e := emitChannelVoice(b, i+1)
			if e != nil {
				return nil, e
			}
			if next == i+1 {
				// The data bytes weren't valid; keep the status byte as an
				// unknown and move on.
				events = append(events,
					TrackEvent{Event: &UnknownEvent{Raw: []byte{b}}})
				next = i + 1
			}
			i = next
		case (b < 0x80) && (runningStatus != 0):
			next, e := emitChannelVoice(runningStatus, i)
			if e != nil {
				return nil, e
			}
			if next == i {
				events = append(events,
					TrackEvent{Event: &UnknownEvent{Raw: []byte{b}}})
				next = i + 1
			}
			i = next
		default:
			events = append(events,
				TrackEvent{Event: &UnknownEvent{Raw: []byte{b}}})
			i++
		}
	}
	return events, nil
}
