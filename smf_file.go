package eseqmidi

// This file contains code for reading and writing standard MIDI (SMF)
// containers: an MThd header chunk followed by one or more MTrk chunks, all
// lengths big-endian.

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// The fixed size of the MThd chunk: 8 bytes of framing plus 6 bytes of
// content.
const midiHeaderLength = 14

var (
	headerChunkMagic = [4]byte{'M', 'T', 'h', 'd'}
	trackChunkMagic  = [4]byte{'M', 'T', 'r', 'k'}
)

// A single event in a track, paired with its delta time: the number of ticks
// since the previous event in the same track.
type TrackEvent struct {
	Delta uint32
	Event Event
}

// Holds the content of a single MIDI track chunk, in file order.
type Track struct {
	Events []TrackEvent
}

// A parsed MIDI file. Format 0 files must hold exactly one track; format 1
// (and 2) files may hold any number.
type MidiFile struct {
	Format uint16
	// Ticks per quarter note. SMPTE divisions (top bit set) are carried
	// through unchanged but never produced by this package.
	Division uint16
	Tracks   []*Track
}

// Parses a standard MIDI container from the given buffer. Returns
// ErrNotMidiContainer for buffers too small to hold a header,
// ErrInvalidChunkMagic for a missing MThd or MTrk marker, and
// ErrTruncatedStream for chunks that overrun the buffer.
func ParseMidi(data []byte) (*MidiFile, error) {
	if len(data) < midiHeaderLength {
		return nil, fmt.Errorf("%d-byte buffer: %w", len(data),
			ErrNotMidiContainer)
	}
	if !bytes.Equal(data[0:4], headerChunkMagic[:]) {
		return nil, fmt.Errorf("missing MThd marker: %w", ErrInvalidChunkMagic)
	}
	headerSize := binary.BigEndian.Uint32(data[4:8])
	if headerSize != 6 {
		return nil, fmt.Errorf("bad MThd chunk size %d: %w", headerSize,
			ErrNotMidiContainer)
	}
	toReturn := &MidiFile{
		Format:   binary.BigEndian.Uint16(data[8:10]),
		Division: binary.BigEndian.Uint16(data[12:14]),
	}
	trackCount := int(binary.BigEndian.Uint16(data[10:12]))
	r := bytes.NewReader(data[midiHeaderLength:])
	toReturn.Tracks = make([]*Track, trackCount)
	for i := 0; i < trackCount; i++ {
		track, e := parseTrack(r)
		if e != nil {
			return nil, fmt.Errorf("failed parsing track %d: %w", i, e)
		}
		toReturn.Tracks[i] = track
	}
	return toReturn, nil
}

// Parses and returns a track, assuming the given reader is at the start of an
// MTrk chunk.
func parseTrack(r io.Reader) (*Track, error) {
	var chunkType [4]byte
	_, e := io.ReadFull(r, chunkType[:])
	if e != nil {
		return nil, fmt.Errorf("failed reading track chunk type: %w",
			ErrTruncatedStream)
	}
	if chunkType != trackChunkMagic {
		return nil, fmt.Errorf("bad chunk type %q for track: %w",
			string(chunkType[:]), ErrInvalidChunkMagic)
	}
	var length uint32
	e = binary.Read(r, binary.BigEndian, &length)
	if e != nil {
		return nil, fmt.Errorf("failed reading track length: %w",
			ErrTruncatedStream)
	}
	// A limitedReader ensures that a track's events fit within its stated
	// length. Roughly 3 bytes per event is a decent capacity guess.
	limitedReader := &io.LimitedReader{R: r, N: int64(length)}
	events := make([]TrackEvent, 0, length/3)
	runningStatus := byte(0)
	for {
		delta, e := ReadVariableInt(limitedReader)
		if e != nil {
			// Hitting EOF when starting a new event means the full track was
			// read cleanly.
			if e == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed reading delta for event %d: %w",
				len(events), e)
		}
		event, e := readEvent(limitedReader, &runningStatus)
		if e != nil {
			return nil, fmt.Errorf("failed reading event %d: %w",
				len(events), e)
		}
		events = append(events, TrackEvent{Delta: delta, Event: event})
	}
	return &Track{Events: events}, nil
}

// Appends the track's chunk, including framing, to the given buffer. Uses
// running status within the chunk.
func (t *Track) appendChunk(out *bytes.Buffer) error {
	var chunkContent bytes.Buffer
	runningStatus := byte(0)
	for i, te := range t.Events {
		e := WriteVariableInt(&chunkContent, te.Delta)
		if e != nil {
			return fmt.Errorf("couldn't write delta for event %d: %w", i, e)
		}
		eventBytes, e := te.Event.SMFData(&runningStatus)
		if e != nil {
			return fmt.Errorf("couldn't get bytes for event %d: %w", i, e)
		}
		chunkContent.Write(eventBytes)
	}
	out.Write(trackChunkMagic[:])
	e := binary.Write(out, binary.BigEndian, uint32(chunkContent.Len()))
	if e != nil {
		return fmt.Errorf("failed writing chunk size: %w", e)
	}
	out.Write(chunkContent.Bytes())
	return nil
}

// Serialize returns the standard MIDI container bytes for the file. A format
// 0 file with more than one track fails with ErrRequiresSingleTrack.
func (f *MidiFile) Serialize() ([]byte, error) {
	if (f.Format == 0) && (len(f.Tracks) != 1) {
		return nil, fmt.Errorf("format 0 file has %d tracks: %w",
			len(f.Tracks), ErrRequiresSingleTrack)
	}
	if len(f.Tracks) > 0xffff {
		return nil, fmt.Errorf("too many tracks (%d), limited to %d",
			len(f.Tracks), 0xffff)
	}
	var out bytes.Buffer
	out.Write(headerChunkMagic[:])
	e := binary.Write(&out, binary.BigEndian, uint32(6))
	if e != nil {
		return nil, fmt.Errorf("failed writing header size: %w", e)
	}
	for _, v := range []uint16{f.Format, uint16(len(f.Tracks)), f.Division} {
		e = binary.Write(&out, binary.BigEndian, v)
		if e != nil {
			return nil, fmt.Errorf("failed writing header field: %w", e)
		}
	}
	for i, t := range f.Tracks {
		e = t.appendChunk(&out)
		if e != nil {
			return nil, fmt.Errorf("failed writing track %d: %w", i, e)
		}
	}
	return out.Bytes(), nil
}
