// Package audio streams float32 sample sources through the shared ebiten
// audio context. The context is a process-wide singleton pinned to the
// first requested sample rate.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// SampleSource produces interleaved stereo float32 samples.
type SampleSource interface {
	Process(dst []float32)
}

// StreamReader adapts a SampleSource to the io.Reader the audio player
// consumes (little-endian float32 frames).
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i := 0; i < need; i++ {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(r.buf[i]))
	}
	return frames * 8, nil
}

func (r *StreamReader) Close() error { return nil }

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

// Stream is a live output wired to one SampleSource.
type Stream struct {
	player *ebitaudio.Player
	reader io.ReadCloser
}

func NewStream(sampleRate int, source SampleSource) (*Stream, error) {
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, err
	}
	return &Stream{player: pl, reader: reader}, nil
}

func (s *Stream) Play()  { s.player.Play() }
func (s *Stream) Pause() { s.player.Pause() }

func (s *Stream) Close() error {
	s.player.Pause()
	s.player.Close()
	return s.reader.Close()
}

// PlayOneShot plays a pre-rendered interleaved stereo buffer once and
// returns immediately. Used for click-audition previews, which must not
// touch the transport's stream.
func PlayOneShot(sampleRate int, samples []float32) error {
	if len(samples) == 0 {
		return nil
	}
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return err
	}
	b := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(s))
	}
	p := ctx.NewPlayerF32FromBytes(b)
	p.Play()
	return nil
}
