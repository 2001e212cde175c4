package eseqmidi

import (
	"sort"
)

// MergeToSingleTrack flattens a multi-track MIDI buffer into a type 0 file
// with one track, leaving the division unchanged. The returned bool reports
// whether a merge actually happened: a file that is already type 0 comes back
// byte-identical with false.
func MergeToSingleTrack(data []byte) ([]byte, bool, error) {
	f, e := ParseMidi(data)
	if e != nil {
		return nil, false, e
	}
	if f.Format == 0 {
		return data, false, nil
	}
	f.MergeTracks()
	out, e := f.Serialize()
	if e != nil {
		return nil, false, e
	}
	return out, true, nil
}

// Orders simultaneous events during a merge: meta events sort ahead of
// channel voice, sysex, and unknown events.
func eventCategory(ev Event) int {
	if _, ok := ev.(*MetaEvent); ok {
		return 0
	}
	return 1
}

// MergeTracks replaces the file's track list with a single track holding
// every event, ordered by absolute time with a deterministic tie-break:
// meta events first, then source track index, then position within the
// track. Per-track end-of-track events are dropped and a single one is
// synthesized at the largest absolute time observed (time zero for a file
// with no events). The whole track list is swapped atomically and the format
// becomes 0.
func (f *MidiFile) MergeTracks() {
	type flatEvent struct {
		absTime  uint64
		track    int
		position int
		event    Event
	}
	var flattened []flatEvent
	maxTime := uint64(0)
	for trackIndex, track := range f.Tracks {
		absTime := uint64(0)
		for position, te := range track.Events {
			absTime += uint64(te.Delta)
			if absTime > maxTime {
				maxTime = absTime
			}
			if m, ok := te.Event.(*MetaEvent); ok && m.IsEndOfTrack() {
				continue
			}
			flattened = append(flattened, flatEvent{
				absTime:  absTime,
				track:    trackIndex,
				position: position,
				event:    te.Event,
			})
		}
	}
	sort.Slice(flattened, func(i, j int) bool {
		a, b := &flattened[i], &flattened[j]
		if a.absTime != b.absTime {
			return a.absTime < b.absTime
		}
		ca, cb := eventCategory(a.event), eventCategory(b.event)
		if ca != cb {
			return ca < cb
		}
		if a.track != b.track {
			return a.track < b.track
		}
		return a.position < b.position
	})
	merged := &Track{Events: make([]TrackEvent, 0, len(flattened)+1)}
	lastTime := uint64(0)
	for _, fe := range flattened {
		merged.Events = append(merged.Events, TrackEvent{
			Delta: uint32(fe.absTime - lastTime),
			Event: fe.event,
		})
		lastTime = fe.absTime
	}
	merged.Events = append(merged.Events, TrackEvent{
		Delta: uint32(maxTime - lastTime),
		Event: NewEndOfTrackEvent(),
	})
	f.Format = 0
	f.Tracks = []*Track{merged}
}
