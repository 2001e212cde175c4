package eseqmidi

import "errors"

// Sentinel errors returned by the decoding and rewriting operations in this
// package. Errors returned to callers wrap one of these, so they can be
// matched with errors.Is regardless of any added context.
var (
	// ErrHeaderTooShort indicates an ESEQ buffer smaller than the fixed
	// 124-byte header region.
	ErrHeaderTooShort = errors.New("ESEQ header shorter than 124 bytes")

	// ErrTruncatedStream indicates event data that ends in the middle of a
	// variable-length quantity, an event, or a chunk.
	ErrTruncatedStream = errors.New("truncated event stream")

	// ErrInvalidChunkMagic indicates a missing MThd or MTrk chunk marker.
	ErrInvalidChunkMagic = errors.New("invalid chunk magic")

	// ErrInvalidChannel indicates a channel number outside 0-15.
	ErrInvalidChannel = errors.New("MIDI channel outside the 0-15 range")

	// ErrRequiresSingleTrack is returned by operations that only apply to
	// type-0 (single track) files.
	ErrRequiresSingleTrack = errors.New("operation requires a single-track " +
		"(type 0) file")

	// ErrNotMidiContainer indicates a buffer too small to hold a standard
	// MIDI header at all.
	ErrNotMidiContainer = errors.New("not a standard MIDI container")
)
