package synth

import (
	"fmt"

	"github.com/ceol/tunebook-go/internal/schedule"
)

// MaxRenderSeconds bounds a single offline render. Finite schedules stay
// far under this; hitting it means a runaway duration computation and the
// render fails instead of hanging.
const MaxRenderSeconds = 1800

// RenderOffline renders the full schedule into an in-memory interleaved
// stereo buffer with no real-time constraint. Used exclusively for file
// export so the result is deterministic and free of scheduling jitter.
func RenderOffline(eng Engine, sched *schedule.NoteSchedule, tempo float64, sampleRate int) ([]float32, error) {
	if tempo <= 0 {
		tempo = 1
	}
	seconds := sched.TotalDuration / tempo
	if seconds > MaxRenderSeconds {
		return nil, fmt.Errorf("%w: %.1fs > %ds", ErrRenderTimeout, seconds, MaxRenderSeconds)
	}
	frames := int(seconds * float64(sampleRate))
	src := NewScheduledSource(eng, sched, sampleRate)
	src.Reset(0, tempo)
	out := make([]float32, frames*2)
	for off := 0; off < len(out); {
		n := len(out) - off
		if n > renderBlock*2 {
			n = renderBlock * 2
		}
		src.Process(out[off : off+n])
		off += n
	}
	return out, nil
}

// RenderOneShot renders a single pitch set (a click-audition preview)
// for durSeconds plus the release tail. Grace pitches, when present,
// sound briefly ahead of the main chord.
func RenderOneShot(eng Engine, keys, graceKeys []uint8, durSeconds float64, sampleRate int) []float32 {
	if durSeconds <= 0 {
		durSeconds = 0.5
	}
	const graceFraction = 0.15
	sched := &schedule.NoteSchedule{}
	onset := 0.0
	if len(graceKeys) > 0 {
		graceDur := durSeconds * graceFraction
		for _, k := range graceKeys {
			sched.Events = append(sched.Events, schedule.NoteEvent{
				Onset: 0, Key: k, Duration: graceDur, Velocity: 0.5,
			})
		}
		onset = graceDur
	}
	for _, k := range keys {
		sched.Events = append(sched.Events, schedule.NoteEvent{
			Onset: onset, Key: k, Duration: durSeconds - onset, Velocity: 0.78,
		})
	}
	sched.TotalDuration = durSeconds + schedule.TailSeconds

	out, err := RenderOffline(eng, sched, 1, sampleRate)
	if err != nil {
		// Unreachable for audition-sized schedules; keep the control
		// path silent rather than audible garbage.
		return nil
	}
	return out
}
