package tunebook

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/ceol/tunebook-go/internal/audio"
	"github.com/ceol/tunebook-go/internal/schedule"
	"github.com/ceol/tunebook-go/internal/synth"
)

// DefaultSampleRate matches the shared audio context rate used across
// the application.
const DefaultSampleRate = 44100

// liveBackend streams a schedule through a SoundFont engine in real
// time. Pause is emulated above this layer: the transport halts and
// later replays from its retained position, so the backend needs only
// fire-and-forget semantics.
type liveBackend struct {
	mu         sync.Mutex
	sf2        []byte
	sampleRate int
	eng        synth.Engine
	src        *synth.ScheduledSource
	stream     *audio.Stream
	closed     bool
}

// NewLiveBackendFactory builds interactive backends over the given
// SoundFont. Engine and stream construction happen at activation so an
// unavailable audio device surfaces as a failed (retryable) activation,
// not a crash.
func NewLiveBackendFactory(sf2 []byte, sampleRate int) BackendFactory {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return func(sched *schedule.NoteSchedule) (Backend, error) {
		eng, err := synth.NewSoundFontEngine(bytes.NewReader(sf2), sampleRate)
		if err != nil {
			return nil, err
		}
		src := synth.NewScheduledSource(eng, sched, sampleRate)
		stream, err := audio.NewStream(sampleRate, src)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEngineInit, err)
		}
		return &liveBackend{
			sf2:        sf2,
			sampleRate: sampleRate,
			eng:        eng,
			src:        src,
			stream:     stream,
		}, nil
	}
}

func (b *liveBackend) Play(pos, tempo float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.src.Reset(pos, tempo)
	b.stream.Play()
	return nil
}

func (b *liveBackend) Halt() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.src.Halt()
	b.stream.Pause()
}

// Audition renders the pitch set offline on a fresh engine and plays it
// through its own one-shot player, so the preview is untouched by any
// transport seek or halt that follows.
func (b *liveBackend) Audition(pitches, grace []uint8, durMs float64) {
	b.mu.Lock()
	sf2, rate, closed := b.sf2, b.sampleRate, b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	eng, err := synth.NewSoundFontEngine(bytes.NewReader(sf2), rate)
	if err != nil {
		return
	}
	defer eng.Close()
	samples := synth.RenderOneShot(eng, pitches, grace, durMs/1000, rate)
	_ = audio.PlayOneShot(rate, samples)
}

func (b *liveBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.src.Halt()
	_ = b.stream.Close()
	b.eng.Close()
}
