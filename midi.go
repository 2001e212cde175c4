// Package eseqmidi converts Yamaha ESEQ/FIL sequencer containers into
// standard MIDI files, and post-processes existing MIDI files: merging
// multi-track files into single-track form, repairing corrupted key-signature
// events, and injecting XF "solo" metadata. Every operation works on
// in-memory byte buffers; callers own all file I/O. The eseq_tool directory
// contains a command-line interface that exposes the library's features.
package eseqmidi

import (
	"bytes"
	"fmt"
	"io"
)

// Reads and returns the next byte from r.
func readByte(r io.Reader) (uint8, error) {
	tmp := []uint8{0}
	_, e := io.ReadFull(r, tmp)
	return tmp[0], e
}

// Reads a MIDI-format variable-length quantity (up to 0x0fffffff). Returns an
// io.EOF error if and only if the stream ends before the first byte of the
// quantity; a quantity that's cut short, or that doesn't terminate within 4
// bytes, wraps ErrTruncatedStream instead.
func ReadVariableInt(r io.Reader) (uint32, error) {
	toReturn := uint32(0)
	for i := 0; i < 4; i++ {
		b, e := readByte(r)
		if e != nil {
			if i == 0 && e == io.EOF {
				// Make sure io.EOF gets propagated up here.
				return 0, e
			}
			return 0, fmt.Errorf("failed reading full quantity: %w",
				ErrTruncatedStream)
		}
		toReturn |= uint32(b & 0x7f)
		if (b & 0x80) == 0 {
			break
		}
		toReturn = toReturn << 7
		if i == 3 {
			return 0, fmt.Errorf("highest bit not clear on byte 4: %w",
				ErrTruncatedStream)
		}
	}
	return toReturn, nil
}

// Writes a MIDI-format variable-length quantity (up to 0x0fffffff) to the
// given output stream. Always produces the minimal encoding; 0 is written as
// a single zero byte.
func WriteVariableInt(w io.Writer, n uint32) error {
	if n > 0x0fffffff {
		return fmt.Errorf("integer 0x%08x is too large for a MIDI quantity", n)
	}
	if n == 0 {
		_, e := w.Write([]byte{0})
		return e
	}
	// Break the number up into 7-bit chunks.
	toWrite := make([]byte, 0, 4)
	for n != 0 {
		toWrite = append(toWrite, uint8(n&0x7f))
		n = n >> 7
	}
	// Reverse the chunks and set the continuation bit on all but the last.
	reversed := make([]byte, len(toWrite))
	for i := len(toWrite) - 1; i >= 0; i-- {
		b := toWrite[i]
		if i != 0 {
			b |= 0x80
		}
		reversed[len(reversed)-i-1] = b
	}
	_, e := w.Write(reversed)
	return e
}

// Event is implemented by every entry in a track's event stream. The variant
// set is closed: ChannelVoiceEvent, MetaEvent, SysExEvent, and UnknownEvent.
// Bytes that don't decode as any recognized event are preserved in
// UnknownEvent values rather than dropped, so a decoded stream always
// re-serializes without data loss.
type Event interface {
	// A string representation of the event.
	String() string
	// Returns the underlying bytes for this event, as written to an SMF
	// track. Requires a running status byte, which will be updated if
	// necessary.
	SMFData(runningStatus *byte) ([]byte, error)
}

// Status nibbles for channel voice messages. The low nibble of the wire-level
// status byte carries the channel and is kept separately.
const (
	StatusNoteOff         = 0x80
	StatusNoteOn          = 0x90
	StatusPolyPressure    = 0xa0
	StatusControlChange   = 0xb0
	StatusProgramChange   = 0xc0
	StatusChannelPressure = 0xd0
	StatusPitchBend       = 0xe0
)

// Returns the number of data bytes following a channel voice status byte with
// the given status nibble.
func channelVoiceDataLength(status uint8) int {
	if (status == StatusProgramChange) || (status == StatusChannelPressure) {
		return 1
	}
	return 2
}

// Holds a MIDI note value. The values corresponding to keys on a standard
// keyboard are 21 (A0) through 108 (C8).
type MIDINote uint8

func (n MIDINote) String() string {
	if (n < 21) || (n > 108) {
		return fmt.Sprintf("MIDI note %d", uint8(n))
	}
	notes := [...]string{"A", "A#", "B", "C", "C#", "D", "D#", "E", "F",
		"F#", "G", "G#"}
	index := (int(n) - 21) % 12
	octave := (int(n) - 12) / 12
	return fmt.Sprintf("%s%d", notes[index], octave)
}

// A channel voice message: note on/off, aftertouch, control change, program
// change, channel pressure, or pitch bend.
type ChannelVoiceEvent struct {
	// The status nibble; one of the Status... constants. Channel bits zero.
	Status uint8
	// The channel, 0 through 15.
	Channel uint8
	// The data bytes: one for program change and channel pressure, two for
	// everything else. Each must be below 0x80.
	Data []byte
}

func (v *ChannelVoiceEvent) String() string {
	c := fmt.Sprintf("Channel %d: ", v.Channel)
	switch v.Status {
	case StatusNoteOff:
		return c + fmt.Sprintf("%s off, velocity = %d", MIDINote(v.Data[0]),
			v.Data[1])
	case StatusNoteOn:
		return c + fmt.Sprintf("%s on, velocity = %d", MIDINote(v.Data[0]),
			v.Data[1])
	case StatusPolyPressure:
		return c + fmt.Sprintf("%s aftertouch pressure %d",
			MIDINote(v.Data[0]), v.Data[1])
	case StatusControlChange:
		return c + fmt.Sprintf("control change, controller %d, value %d",
			v.Data[0], v.Data[1])
	case StatusProgramChange:
		return c + fmt.Sprintf("program change to %d", v.Data[0])
	case StatusChannelPressure:
		return c + fmt.Sprintf("set channel pressure to %d", v.Data[0])
	case StatusPitchBend:
		value := (uint16(v.Data[1]) << 7) | uint16(v.Data[0])
		return c + fmt.Sprintf("pitch bend value %d", value)
	}
	return c + fmt.Sprintf("invalid status 0x%02x, data % x", v.Status, v.Data)
}

func (v *ChannelVoiceEvent) SMFData(runningStatus *byte) ([]byte, error) {
	if (v.Status < StatusNoteOff) || (v.Status > StatusPitchBend) ||
		((v.Status & 0x0f) != 0) {
		return nil, fmt.Errorf("invalid channel voice status nibble: 0x%02x",
			v.Status)
	}
	if v.Channel > 0xf {
		return nil, fmt.Errorf("channel %d: %w", v.Channel, ErrInvalidChannel)
	}
	if len(v.Data) != channelVoiceDataLength(v.Status) {
		return nil, fmt.Errorf("wrong data length for status 0x%02x: %d "+
			"bytes", v.Status, len(v.Data))
	}
	for _, b := range v.Data {
		if b > 0x7f {
			return nil, fmt.Errorf("invalid channel voice data byte: 0x%02x",
				b)
		}
	}
	status := v.Status | v.Channel
	// Omit the status byte if it matches the running status, otherwise set
	// the new running status and include it in the output bytes.
	if status == *runningStatus {
		return append([]byte{}, v.Data...), nil
	}
	*runningStatus = status
	toReturn := make([]byte, 0, len(v.Data)+1)
	toReturn = append(toReturn, status)
	return append(toReturn, v.Data...), nil
}

// NewProgramChangeEvent returns a program change event for the given channel.
func NewProgramChangeEvent(channel, program uint8) *ChannelVoiceEvent {
	return &ChannelVoiceEvent{
		Status:  StatusProgramChange,
		Channel: channel,
		Data:    []byte{program},
	}
}

// Subtypes of meta events that this package recognizes by name.
const (
	MetaText              = 0x01
	MetaCopyright         = 0x02
	MetaTrackName         = 0x03
	MetaEndOfTrack        = 0x2f
	MetaSetTempo          = 0x51
	MetaTimeSignature     = 0x58
	MetaKeySignature      = 0x59
	MetaSequencerSpecific = 0x7f
)

// A meta event: the subtype byte and its raw payload. Payloads are kept
// verbatim, including values a stricter decoder would reject, so damaged
// files still survive a parse/serialize round trip.
type MetaEvent struct {
	Type uint8
	Data []byte
}

func (m *MetaEvent) String() string {
	switch m.Type {
	case MetaText:
		return fmt.Sprintf("Text: %s", m.Data)
	case MetaCopyright:
		return fmt.Sprintf("Copyright notice: %s", m.Data)
	case MetaTrackName:
		return fmt.Sprintf("Track name: %s", m.Data)
	case MetaEndOfTrack:
		return "End of track"
	case MetaSetTempo:
		if t, ok := m.TempoMicroseconds(); ok {
			return fmt.Sprintf("Set tempo to %d us/quarter note (%.1f BPM)",
				t, 60000000.0/float64(t))
		}
	case MetaKeySignature:
		if len(m.Data) == 2 {
			mode := "major"
			if m.Data[1] == 1 {
				mode = "minor"
			} else if m.Data[1] > 1 {
				mode = fmt.Sprintf("invalid mode 0x%02x", m.Data[1])
			}
			return fmt.Sprintf("Key signature: %d sharps or flats, %s",
				int8(m.Data[0]), mode)
		}
	}
	return fmt.Sprintf("Meta event type 0x%02x, %d bytes", m.Type,
		len(m.Data))
}

func (m *MetaEvent) SMFData(runningStatus *byte) ([]byte, error) {
	*runningStatus = 0
	var toReturn bytes.Buffer
	toReturn.WriteByte(0xff)
	toReturn.WriteByte(m.Type)
	e := WriteVariableInt(&toReturn, uint32(len(m.Data)))
	if e != nil {
		return nil, fmt.Errorf("failed writing meta event length: %w", e)
	}
	toReturn.Write(m.Data)
	return toReturn.Bytes(), nil
}

// IsEndOfTrack returns true for the end-of-track meta event.
func (m *MetaEvent) IsEndOfTrack() bool {
	return m.Type == MetaEndOfTrack
}

// TempoMicroseconds returns the microseconds-per-quarter-note value carried
// by a set-tempo meta event, and false for any other event.
func (m *MetaEvent) TempoMicroseconds() (uint32, bool) {
	if (m.Type != MetaSetTempo) || (len(m.Data) != 3) {
		return 0, false
	}
	t := uint32(m.Data[0])<<16 | uint32(m.Data[1])<<8 | uint32(m.Data[2])
	return t, true
}

// NewTempoEvent returns a set-tempo meta event holding the given number of
// microseconds per quarter note. Only the low 24 bits are representable.
func NewTempoEvent(usPerQuarterNote uint32) *MetaEvent {
	return &MetaEvent{
		Type: MetaSetTempo,
		Data: []byte{
			byte(usPerQuarterNote >> 16),
			byte(usPerQuarterNote >> 8),
			byte(usPerQuarterNote),
		},
	}
}

// NewTrackNameEvent returns a track-name meta event.
func NewTrackNameEvent(name string) *MetaEvent {
	return &MetaEvent{Type: MetaTrackName, Data: []byte(name)}
}

// NewCopyrightEvent returns a copyright-notice meta event.
func NewCopyrightEvent(text string) *MetaEvent {
	return &MetaEvent{Type: MetaCopyright, Data: []byte(text)}
}

// NewEndOfTrackEvent returns the zero-payload end-of-track meta event.
func NewEndOfTrackEvent() *MetaEvent {
	return &MetaEvent{Type: MetaEndOfTrack}
}

// A system-exclusive event. Data holds every byte of the message except the
// leading 0xf0 and trailing 0xf7.
type SysExEvent struct {
	Data []byte
}

func (s *SysExEvent) String() string {
	return fmt.Sprintf("System exclusive message, %d bytes: % x",
		len(s.Data), s.Data)
}

func (s *SysExEvent) SMFData(runningStatus *byte) ([]byte, error) {
	*runningStatus = 0
	// The encoded length covers the payload plus the trailing 0xf7.
	if (len(s.Data) + 1) > 0x0fffffff {
		return nil, fmt.Errorf("system exclusive message too big for an " +
			"SMF event")
	}
	var toReturn bytes.Buffer
	toReturn.WriteByte(0xf0)
	e := WriteVariableInt(&toReturn, uint32(len(s.Data)+1))
	if e != nil {
		return nil, fmt.Errorf("failed writing sysex message length: %w", e)
	}
	toReturn.Write(s.Data)
	toReturn.WriteByte(0xf7)
	return toReturn.Bytes(), nil
}

// Holds bytes that don't decode as any recognized event.
type UnknownEvent struct {
	Raw []byte
}

func (u *UnknownEvent) String() string {
	return fmt.Sprintf("Unrecognized bytes: % x", u.Raw)
}

func (u *UnknownEvent) SMFData(runningStatus *byte) ([]byte, error) {
	*runningStatus = 0
	return append([]byte{}, u.Raw...), nil
}

// Reads the next system exclusive event from the given input stream. The
// first byte (0xf0 or 0xf7) must have already been read, and must be passed
// in as the firstByte argument.
func parseSysExEvent(r io.Reader, firstByte byte) (Event, error) {
	length, e := ReadVariableInt(r)
	if e != nil {
		return nil, fmt.Errorf("couldn't read sysex message length: %w", e)
	}
	data := make([]byte, length)
	_, e = io.ReadFull(r, data)
	if e != nil {
		return nil, fmt.Errorf("couldn't read sysex message data: %w",
			ErrTruncatedStream)
	}
	// Messages starting with 0xf0 must end with the 0xf7 terminator, which
	// isn't kept in the payload.
	if firstByte == 0xf0 {
		if (len(data) == 0) || (data[len(data)-1] != 0xf7) {
			return nil, fmt.Errorf("sysex message didn't end with an 0xf7 "+
				"byte: %w", ErrTruncatedStream)
		}
		data = data[:len(data)-1]
	}
	return &SysExEvent{Data: data}, nil
}

// Reads the meta event at the start of r. Assumes the 0xff byte has already
// been consumed.
func parseMetaEvent(r io.Reader) (Event, error) {
	eventType, e := readByte(r)
	if e != nil {
		return nil, fmt.Errorf("failed reading meta event type: %w",
			ErrTruncatedStream)
	}
	eventLength, e := ReadVariableInt(r)
	if e != nil {
		return nil, fmt.Errorf("failed reading meta event length: %w", e)
	}
	var eventData []byte
	if eventLength != 0 {
		eventData = make([]byte, eventLength)
		_, e = io.ReadFull(r, eventData)
		if e != nil {
			return nil, fmt.Errorf("failed reading meta event data: %w",
				ErrTruncatedStream)
		}
	}
	return &MetaEvent{Type: eventType, Data: eventData}, nil
}

// Reads a channel voice event, resolving running status. firstByte is either
// a status byte or, under running status, the first data byte.
func parseChannelVoiceEvent(r io.Reader, firstByte byte,
	runningStatus *byte) (Event, error) {
	status := firstByte
	var pending []byte
	if (status & 0x80) == 0 {
		// Running status: the byte already read was the first data byte.
		status = *runningStatus
		if (status & 0x80) == 0 {
			return nil, fmt.Errorf("data byte 0x%02x without a running "+
				"status: %w", firstByte, ErrTruncatedStream)
		}
		pending = []byte{firstByte}
	} else {
		*runningStatus = status
	}
	needed := channelVoiceDataLength(status & 0xf0)
	data := make([]byte, 0, needed)
	data = append(data, pending...)
	for len(data) < needed {
		b, e := readByte(r)
		if e != nil {
			return nil, fmt.Errorf("failed reading channel voice data: %w",
				ErrTruncatedStream)
		}
		data = append(data, b)
	}
	for _, b := range data {
		if b > 0x7f {
			return nil, fmt.Errorf("invalid channel voice data byte "+
				"0x%02x: %w", b, ErrTruncatedStream)
		}
	}
	return &ChannelVoiceEvent{
		Status:  status & 0xf0,
		Channel: status & 0x0f,
		Data:    data,
	}, nil
}

// Parses and returns the event at the start of r. Requires a running status
// byte that may be modified by calling this function. If a running status is
// not set, then runningStatus must be zero. System common and real-time
// status bytes this package doesn't interpret are preserved as UnknownEvent
// values.
func readEvent(r io.Reader, runningStatus *byte) (Event, error) {
	firstByte, e := readByte(r)
	if e != nil {
		return nil, fmt.Errorf("failed reading start of MIDI event: %w", e)
	}
	if (firstByte == 0xf0) || (firstByte == 0xf7) {
		// Sysex messages reset running status.
		*runningStatus = 0
		return parseSysExEvent(r, firstByte)
	}
	if firstByte == 0xff {
		// Meta events also reset running status.
		*runningStatus = 0
		return parseMetaEvent(r)
	}
	if (firstByte & 0xf0) == 0xf0 {
		// Remaining system common or real-time bytes: keep them verbatim.
		*runningStatus = 0
		return &UnknownEvent{Raw: []byte{firstByte}}, nil
	}
	return parseChannelVoiceEvent(r, firstByte, runningStatus)
}
