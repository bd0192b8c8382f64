// Package synth renders note schedules through a SoundFont synthesizer,
// either as a real-time sample stream or as a bounded offline render.
package synth

import (
	"errors"
	"fmt"
	"io"

	"github.com/sinshu/go-meltysynth/meltysynth"
)

var (
	// ErrEngineInit reports an unavailable synthesis engine (missing or
	// unreadable SoundFont, unsupported sample rate).
	ErrEngineInit = errors.New("audio engine init failed")
	// ErrRenderTimeout reports an offline render exceeding the sane bound.
	ErrRenderTimeout = errors.New("offline render exceeds duration bound")
)

// Channel assignment. Schedule playback and click-audition previews use
// distinct channels so silencing one never cuts the other off.
const (
	ChannelSchedule = 0
	ChannelAudition = 1
)

// Engine is the synthesis seam consumed by the live source and the
// offline renderer. Implementations are not safe for concurrent use;
// callers serialize access.
type Engine interface {
	NoteOn(channel, key, velocity int)
	NoteOff(channel, key int)
	// AllNotesOff releases every sounding note on one channel only.
	AllNotesOff(channel int)
	// Program selects the instrument patch for a channel.
	Program(channel, program int)
	// Render fills the stereo pair with the next len(left) frames.
	Render(left, right []float32)
	// Close releases voices and scheduled-event handles. Idempotent.
	Close()
}

// SoundFontEngine drives a meltysynth synthesizer.
type SoundFontEngine struct {
	synth  *meltysynth.Synthesizer
	closed bool
}

// NewSoundFontEngine builds an engine from SF2 data at the given rate.
func NewSoundFontEngine(sf2 io.Reader, sampleRate int) (*SoundFontEngine, error) {
	sfnt, err := meltysynth.NewSoundFont(sf2)
	if err != nil {
		return nil, fmt.Errorf("%w: soundfont: %v", ErrEngineInit, err)
	}
	settings := meltysynth.NewSynthesizerSettings(int32(sampleRate))
	synth, err := meltysynth.NewSynthesizer(sfnt, settings)
	if err != nil {
		return nil, fmt.Errorf("%w: synthesizer: %v", ErrEngineInit, err)
	}
	return &SoundFontEngine{synth: synth}, nil
}

func (e *SoundFontEngine) NoteOn(channel, key, velocity int) {
	e.synth.NoteOn(int32(channel), int32(key), int32(velocity))
}

func (e *SoundFontEngine) NoteOff(channel, key int) {
	e.synth.NoteOff(int32(channel), int32(key))
}

func (e *SoundFontEngine) AllNotesOff(channel int) {
	// CC 123: all notes off for one channel.
	e.synth.ProcessMidiMessage(int32(channel), 0xB0, 0x7B, 0)
}

func (e *SoundFontEngine) Program(channel, program int) {
	e.synth.ProcessMidiMessage(int32(channel), 0xC0, int32(program), 0)
}

func (e *SoundFontEngine) Render(left, right []float32) {
	e.synth.Render(left, right)
}

func (e *SoundFontEngine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.synth.NoteOffAll(true)
}
