package abc

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	ticksPerQuarter = 480
	noteVelocity    = 90
	graceVelocity   = 60
	// graceSeconds is the sounding length of a grace note ahead of its
	// principal note.
	graceSeconds = 0.06
)

// SMF serializes the score as a single-track standard MIDI file. The
// result is the canonical buffer consumed by the schedule builder and the
// MIDI export path.
func (s *Score) SMF() ([]byte, error) {
	type midiEvent struct {
		tick int64
		on   bool
		key  uint8
		vel  uint8
	}

	ticksPerSecond := ticksPerQuarter * s.QPM / 60
	toTick := func(sec float64) int64 {
		return int64(math.Round(sec * ticksPerSecond))
	}

	var events []midiEvent
	for _, n := range s.notes {
		onset := n.startSec
		for i, g := range n.grace {
			// steal time from the head of the principal note
			gStart := onset + float64(i)*graceSeconds
			events = append(events,
				midiEvent{toTick(gStart), true, g, graceVelocity},
				midiEvent{toTick(gStart + graceSeconds), false, g, 0},
			)
		}
		mainStart := onset + float64(len(n.grace))*graceSeconds
		end := onset + n.durSec
		if mainStart >= end {
			mainStart = onset
		}
		for _, k := range n.keys {
			events = append(events,
				midiEvent{toTick(mainStart), true, k, noteVelocity},
				midiEvent{toTick(end), false, k, 0},
			)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return !events[i].on && events[j].on
	})

	out := smf.New()
	out.TimeFormat = smf.MetricTicks(ticksPerQuarter)
	var tr smf.Track
	tr.Add(0, smf.MetaTempo(s.QPM))
	var lastTick int64
	for _, ev := range events {
		delta := uint32(ev.tick - lastTick)
		lastTick = ev.tick
		if ev.on {
			tr.Add(delta, midi.NoteOn(0, ev.key, ev.vel))
		} else {
			tr.Add(delta, midi.NoteOff(0, ev.key))
		}
	}
	tr.Close(0)
	if err := out.Add(tr); err != nil {
		return nil, fmt.Errorf("building midi track: %w", err)
	}
	var buf bytes.Buffer
	if _, err := out.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encoding midi: %w", err)
	}
	return buf.Bytes(), nil
}
