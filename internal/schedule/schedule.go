// Package schedule derives a flat, time-ordered note schedule from a
// canonical MIDI buffer.
package schedule

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"gitlab.com/gomidi/midi/v2/smf"
)

// ErrMalformedMIDI reports a buffer that cannot be parsed into tracks.
var ErrMalformedMIDI = errors.New("malformed midi buffer")

// TailSeconds is the fixed padding appended to the computed duration so
// release and reverb tails finish before playback is considered complete.
const TailSeconds = 0.5

// NoteEvent is one scheduled sound. Immutable once derived.
type NoteEvent struct {
	Onset    float64 // seconds from playback start
	Pitch    string  // e.g. "D4"
	Key      uint8   // MIDI note number
	Duration float64 // seconds
	Velocity float32 // 0..1
}

// End returns the time at which the note stops sounding.
func (e NoteEvent) End() float64 { return e.Onset + e.Duration }

// NoteSchedule owns the ordered event sequence and the playable duration.
// Re-derive on source change rather than mutating in place.
type NoteSchedule struct {
	Events        []NoteEvent
	TotalDuration float64 // seconds, includes TailSeconds
}

// Sounding returns the events sounding at pos (onset <= pos < onset+duration).
func (s *NoteSchedule) Sounding(pos float64) []NoteEvent {
	var out []NoteEvent
	for _, e := range s.Events {
		if e.Onset > pos {
			break
		}
		if pos < e.End() {
			out = append(out, e)
		}
	}
	return out
}

// SoundingIndices is Sounding but returns positions into Events, for
// callers that need stable identities rather than values.
func (s *NoteSchedule) SoundingIndices(pos float64) []int {
	var out []int
	for i, e := range s.Events {
		if e.Onset > pos {
			break
		}
		if pos < e.End() {
			out = append(out, i)
		}
	}
	return out
}

type pendingNote struct {
	onsetMicros int64
	velocity    uint8
}

// Build parses a canonical MIDI buffer, flattens every track's notes into
// one onset-ordered sequence and computes the total playable duration.
func Build(midiBuffer []byte) (sched *NoteSchedule, err error) {
	// The smf reader panics on some truncated inputs; report those as
	// malformed rather than crashing.
	defer func() {
		if r := recover(); r != nil {
			sched, err = nil, fmt.Errorf("%w: %v", ErrMalformedMIDI, r)
		}
	}()

	parsed, rerr := smf.ReadFrom(bytes.NewReader(midiBuffer))
	if rerr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMIDI, rerr)
	}

	var events []NoteEvent
	for _, track := range parsed.Tracks {
		var absTicks int64
		pending := make(map[[2]uint8]pendingNote)
		for _, ev := range track {
			absTicks += int64(ev.Delta)
			absMicros := parsed.TimeAt(absTicks)
			var channel, key, velocity uint8
			switch {
			case ev.Message.GetNoteOn(&channel, &key, &velocity) && velocity > 0:
				pending[[2]uint8{channel, key}] = pendingNote{absMicros, velocity}
			case ev.Message.GetNoteOff(&channel, &key, &velocity),
				ev.Message.GetNoteOn(&channel, &key, &velocity): // velocity 0 == off
				start, ok := pending[[2]uint8{channel, key}]
				if !ok {
					continue
				}
				delete(pending, [2]uint8{channel, key})
				events = append(events, NoteEvent{
					Onset:    float64(start.onsetMicros) / 1e6,
					Pitch:    PitchName(key),
					Key:      key,
					Duration: float64(absMicros-start.onsetMicros) / 1e6,
					Velocity: float32(start.velocity) / 127,
				})
			}
		}
		// A well-formed generator always emits note-offs; close any
		// stragglers at the track end so nothing rings forever.
		for id, start := range pending {
			endMicros := parsed.TimeAt(absTicks)
			events = append(events, NoteEvent{
				Onset:    float64(start.onsetMicros) / 1e6,
				Pitch:    PitchName(id[1]),
				Key:      id[1],
				Duration: float64(endMicros-start.onsetMicros) / 1e6,
				Velocity: float32(start.velocity) / 127,
			})
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Onset < events[j].Onset
	})

	total := TailSeconds
	for _, e := range events {
		if end := e.End() + TailSeconds; end > total {
			total = end
		}
	}
	return &NoteSchedule{Events: events, TotalDuration: total}, nil
}

var pitchNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// PitchName renders a MIDI key as scientific pitch notation (60 -> "C4").
func PitchName(key uint8) string {
	return fmt.Sprintf("%s%d", pitchNames[key%12], int(key)/12-1)
}
