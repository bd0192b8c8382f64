package synth

import (
	"math"
	"sort"
	"sync"

	"github.com/ceol/tunebook-go/internal/schedule"
)

// renderBlock is the trigger granularity: note on/off events fire at the
// start of the block their frame falls into (~11ms at 44.1kHz).
const renderBlock = 512

type frameEvent struct {
	frame int64
	on    bool
	key   int
	vel   int
}

// ScheduledSource streams a note schedule through an Engine in real time.
// It implements the audio stream's SampleSource contract (interleaved
// stereo float32) and supports repositioning without recreating the
// underlying audio player: Reset rebuilds the event queue from a new
// position and tempo, silencing only the schedule channel.
//
// The source never reports position; the transport clock is the sole
// authority and treats the stream as fire-and-forget.
type ScheduledSource struct {
	mu         sync.Mutex
	eng        Engine
	sampleRate int
	sched      *schedule.NoteSchedule

	events   []frameEvent
	cursor   int
	frame    int64
	endFrame int64
	running  bool

	left, right [renderBlock]float32
}

func NewScheduledSource(eng Engine, sched *schedule.NoteSchedule, sampleRate int) *ScheduledSource {
	return &ScheduledSource{eng: eng, sampleRate: sampleRate, sched: sched}
}

// Reset repositions the stream to pos schedule-seconds with the given
// tempo multiplier and resumes generating. Notes already sounding at pos
// are retriggered for their remainder. Audition voices on other channels
// are left untouched, so a preview fired just before a seek completes.
func (s *ScheduledSource) Reset(pos, tempo float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.eng.AllNotesOff(ChannelSchedule)
	s.events = s.events[:0]
	for _, e := range s.sched.Events {
		if e.End() <= pos {
			continue
		}
		onset := e.Onset
		if onset < pos {
			onset = pos // mid-note entry: sound the remainder
		}
		onFrame := s.toFrame(onset-pos, tempo)
		offFrame := s.toFrame(e.End()-pos, tempo)
		if offFrame <= onFrame {
			continue
		}
		vel := int(math.Round(float64(e.Velocity) * 127))
		if vel < 1 {
			vel = 1
		}
		s.events = append(s.events,
			frameEvent{frame: onFrame, on: true, key: int(e.Key), vel: vel},
			frameEvent{frame: offFrame, on: false, key: int(e.Key)},
		)
	}
	sortFrameEvents(s.events)
	s.cursor = 0
	s.frame = 0
	s.endFrame = s.toFrame(s.sched.TotalDuration-pos, tempo)
	s.running = true
}

// Halt silences the schedule channel and stops event dispatch. The stream
// keeps producing silence so the audio player can stay open.
func (s *ScheduledSource) Halt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.eng.AllNotesOff(ChannelSchedule)
}

// Process fills dst with interleaved stereo samples, firing scheduled
// note events as their frames come due.
func (s *ScheduledSource) Process(dst []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for filled := 0; filled < len(dst)/2; {
		n := len(dst)/2 - filled
		if n > renderBlock {
			n = renderBlock
		}
		if s.running {
			for s.cursor < len(s.events) && s.events[s.cursor].frame < s.frame+int64(n) {
				ev := s.events[s.cursor]
				if ev.on {
					s.eng.NoteOn(ChannelSchedule, ev.key, ev.vel)
				} else {
					s.eng.NoteOff(ChannelSchedule, ev.key)
				}
				s.cursor++
			}
		}
		left, right := s.left[:n], s.right[:n]
		s.eng.Render(left, right)
		for i := 0; i < n; i++ {
			dst[(filled+i)*2] = left[i]
			dst[(filled+i)*2+1] = right[i]
		}
		if s.running {
			s.frame += int64(n)
		}
		filled += n
	}
}

func (s *ScheduledSource) toFrame(seconds, tempo float64) int64 {
	if tempo <= 0 {
		tempo = 1
	}
	return int64(math.Round(seconds / tempo * float64(s.sampleRate)))
}

// sortFrameEvents orders by frame, note-offs before note-ons at equal
// frames so retriggers of the same key are not swallowed.
func sortFrameEvents(events []frameEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].frame != events[j].frame {
			return events[i].frame < events[j].frame
		}
		return !events[i].on && events[j].on
	})
}
