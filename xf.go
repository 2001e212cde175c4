package eseqmidi

import (
	"fmt"
	"time"
)

// The vendor string used in the injected copyright notice.
const xfVendor = "Yamaha Corporation"

// XF badge payloads recognized by DKC-900/Enspire units as marking an SMF
// "solo" file. Each goes out as a system-exclusive event at time zero.
var (
	// The XF02 format signature: 43 7b 00 'X' 'F' '0' '2' 00 1b.
	xfFormatMarker = []byte{0x43, 0x7b, 0x00, 0x58, 0x46, 0x30, 0x32, 0x00,
		0x1b}
	xgSystemMarker = []byte{0x43, 0x71, 0x00, 0x01, 0x00, 0x01, 0x00}
	xgSystemOn     = []byte{0x43, 0x71, 0x00, 0x00, 0x00, 0x41}
	xfEndMarker    = []byte{0x43, 0x7b, 0x0c, 0x01, 0x00}
)

// Reports whether a sysex payload carries the XF format signature.
func isXFSignature(payload []byte) bool {
	return (len(payload) >= 5) && (payload[0] == 0x43) &&
		(payload[1] == 0x7b) && (payload[3] == 0x58) && (payload[4] == 0x46)
}

// InjectXFMetadata idempotently adds the XF "solo" badge to a type 0 MIDI
// buffer: a copyright notice "(P) <year> Yamaha Corporation" followed by the
// XF and XG marker events, inserted after the file's leading run of
// tempo/time-signature/track-name events. A year of zero or below selects the
// current year. If the badge is already present among the track's leading
// events the input comes back unchanged with alreadyTagged set. Multi-track
// files fail with ErrRequiresSingleTrack; merge them first.
func InjectXFMetadata(data []byte, year int) ([]byte, bool, error) {
	f, e := ParseMidi(data)
	if e != nil {
		return nil, false, e
	}
	if (f.Format != 0) || (len(f.Tracks) != 1) {
		return nil, false, fmt.Errorf("type %d file with %d tracks: %w",
			f.Format, len(f.Tracks), ErrRequiresSingleTrack)
	}
	track := f.Tracks[0]
	// Look for an existing badge in the events ahead of the first channel
	// voice event.
	for _, te := range track.Events {
		if _, ok := te.Event.(*ChannelVoiceEvent); ok {
			break
		}
		if sx, ok := te.Event.(*SysExEvent); ok && isXFSignature(sx.Data) {
			return data, true, nil
		}
	}
	if year <= 0 {
		year = time.Now().Year()
	}
	// The badge goes after the leading tempo/time-signature/track-name run.
	insertAt := 0
	for i, te := range track.Events {
		m, ok := te.Event.(*MetaEvent)
		if !ok {
			break
		}
		if (m.Type != MetaSetTempo) && (m.Type != MetaTimeSignature) &&
			(m.Type != MetaTrackName) {
			break
		}
		insertAt = i + 1
	}
	badge := []TrackEvent{
		{Event: NewCopyrightEvent(fmt.Sprintf("(P) %d %s", year, xfVendor))},
		{Event: &SysExEvent{Data: append([]byte{}, xfFormatMarker...)}},
		{Event: &SysExEvent{Data: append([]byte{}, xgSystemMarker...)}},
		{Event: &SysExEvent{Data: append([]byte{}, xgSystemOn...)}},
		{Event: &SysExEvent{Data: append([]byte{}, xfEndMarker...)}},
	}
	events := make([]TrackEvent, 0, len(track.Events)+len(badge))
	events = append(events, track.Events[:insertAt]...)
	events = append(events, badge...)
	events = append(events, track.Events[insertAt:]...)
	track.Events = events
	out, e := f.Serialize()
	if e != nil {
		return nil, false, e
	}
	return out, false, nil
}
