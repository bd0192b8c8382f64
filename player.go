// Package tunebook plays Irish traditional tunes from ABC notation:
// it normalizes generated MIDI, derives a note schedule, and drives a
// transport clock that keeps synthesis and score-following in step.
package tunebook

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ceol/tunebook-go/internal/arbiter"
	"github.com/ceol/tunebook-go/internal/cursor"
	"github.com/ceol/tunebook-go/internal/midinorm"
	"github.com/ceol/tunebook-go/internal/schedule"
	"github.com/ceol/tunebook-go/internal/util"
)

// TransportState is the playback state of one player instance.
type TransportState int

const (
	Stopped TransportState = iota
	Playing
	Paused
)

func (s TransportState) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// Tempo multiplier bounds; 1.0 is the authored tempo.
const (
	MinTempo = 0.5
	MaxTempo = 2.0
)

// Backend is the audio rendering strategy behind the transport. The
// transport clock is the sole authority on position; a Backend only
// makes sound. Play may be called repeatedly to reposition (seek, tempo
// change) without tearing the output stream down, and must not cancel
// audition one-shots already in flight.
type Backend interface {
	// Play (re)starts audible output from the given schedule position
	// at the given tempo multiplier.
	Play(pos, tempo float64) error
	// Halt silences output but keeps resources for a later Play.
	Halt()
	// Audition plays a one-shot preview of a pitch set, independent of
	// schedule playback.
	Audition(pitches, grace []uint8, durMs float64)
	// Close disposes all engine-owned resources. Idempotent.
	Close()
}

// BackendFactory builds a Backend for an activated schedule.
type BackendFactory func(sched *schedule.NoteSchedule) (Backend, error)

// PlayerOption configures a Player at construction.
type PlayerOption func(*playerConfig)

type playerConfig struct {
	arb          *arbiter.Arbiter
	factory      BackendFactory
	tickInterval time.Duration
	onPosition   func(pos float64, state TransportState)
	score        cursor.ScoreHandle
	overlay      cursor.Overlay
}

// WithArbiter shares a sounding-instance arbiter between players. All
// players meant to preempt each other must receive the same instance.
func WithArbiter(a *arbiter.Arbiter) PlayerOption {
	return func(cfg *playerConfig) { cfg.arb = a }
}

// WithBackendFactory overrides how the audio backend is built.
func WithBackendFactory(f BackendFactory) PlayerOption {
	return func(cfg *playerConfig) { cfg.factory = f }
}

// WithTickInterval overrides the position-callback period (default 33ms).
func WithTickInterval(d time.Duration) PlayerOption {
	return func(cfg *playerConfig) { cfg.tickInterval = d }
}

// WithOnPosition installs a callback invoked on every clock tick and on
// transport transitions. It runs on the clock goroutine; keep it brief.
func WithOnPosition(fn func(pos float64, state TransportState)) PlayerOption {
	return func(cfg *playerConfig) { cfg.onPosition = fn }
}

// WithScoreView attaches a visual score and its overlay; the player then
// drives highlight/cursor state and supports click-audition.
func WithScoreView(score cursor.ScoreHandle, overlay cursor.Overlay) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.score = score
		cfg.overlay = overlay
	}
}

// Player is the transport state machine for one tune instance. All
// methods are safe for concurrent use; transitions are applied atomically
// under one mutex, and illegal transitions are no-ops by contract so the
// caller never has to guard a redundant call.
type Player struct {
	mu  sync.Mutex
	id  string
	cfg playerConfig

	activated bool
	closed    bool
	midi      []byte // canonical buffer, kept for MIDI export
	sched     *schedule.NoteSchedule
	backend   Backend
	sync      *cursor.Synchronizer

	state     TransportState
	posBase   float64   // position at the last play/resume/seek instant
	resumedAt time.Time // wall-clock instant of the last play/resume
	tempo     float64
	loop      bool

	tickStop chan struct{}
}

const defaultTickInterval = 33 * time.Millisecond

func NewPlayer(opts ...PlayerOption) *Player {
	cfg := playerConfig{
		arb:          arbiter.New(),
		tickInterval: defaultTickInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Player{
		id:    uuid.NewString(),
		cfg:   cfg,
		tempo: 1,
	}
}

// Activate normalizes raw MIDI-generator output, builds the note
// schedule and the audio backend. A failed activation leaves the player
// exactly as before the call, so activation may simply be retried.
func (p *Player) Activate(raw any, versionIndex int) error {
	buf, err := midinorm.Normalize(raw, versionIndex)
	if err != nil {
		return err
	}
	sched, err := schedule.Build(buf)
	if err != nil {
		return err
	}
	if p.cfg.factory == nil {
		return ErrNoBackend
	}
	backend, err := p.cfg.factory(sched)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		backend.Close()
		return ErrClosed
	}
	// Re-activation over a running transport resets it completely: a
	// stopped instance must not keep the clock or the sounding lock.
	p.cancelTickLocked()
	p.cfg.arb.Release(p.id)
	if p.backend != nil {
		p.backend.Halt()
		p.backend.Close()
	}
	if p.sync != nil {
		p.sync.End()
	}
	p.midi = buf
	p.sched = sched
	p.backend = backend
	if p.cfg.score != nil && p.cfg.overlay != nil {
		p.sync = cursor.New(sched, p.cfg.score, p.cfg.overlay)
	}
	p.activated = true
	p.state = Stopped
	p.posBase = 0
	return nil
}

// Play starts or resumes playback. Calling Play while already playing is
// a no-op: the sounding lock is not re-acquired and the clock is not
// restarted.
func (p *Player) Play() {
	p.mu.Lock()
	if !p.activated || p.closed || p.state == Playing {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	// The sounding lock is taken with p.mu released. Acquisition
	// synchronously preempts the previous holder, whose callback takes
	// that player's mutex; holding p.mu across the call would order the
	// two player mutexes both ways round under concurrent Plays.
	p.cfg.arb.TryAcquire(p.id, p.preempt)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.cfg.arb.Release(p.id)
		return
	}
	if p.state == Playing || p.cfg.arb.Holder() != p.id {
		// already running, or preempted in the window before re-locking
		p.mu.Unlock()
		return
	}
	starting := p.state == Stopped
	p.state = Playing
	p.resumedAt = time.Now()
	backend, pos, tempo := p.backend, p.posBase, p.tempo
	sync := p.sync
	stop := make(chan struct{})
	p.tickStop = stop
	go p.clockLoop(stop)
	p.mu.Unlock()

	_ = backend.Play(pos, tempo)
	if sync != nil && starting {
		sync.Begin()
	}
	p.notify(pos)
}

// Pause freezes the clock and silences output, retaining position.
// A no-op unless playing.
func (p *Player) Pause() {
	p.mu.Lock()
	if p.state != Playing {
		p.mu.Unlock()
		return
	}
	p.posBase = p.positionLocked()
	p.state = Paused
	p.cancelTickLocked()
	backend, pos := p.backend, p.posBase
	p.mu.Unlock()

	backend.Halt()
	p.notify(pos)
}

// Stop halts playback, resets position to zero and releases the sounding
// lock. A no-op when already stopped.
func (p *Player) Stop() {
	p.mu.Lock()
	if p.state == Stopped {
		p.mu.Unlock()
		return
	}
	p.stopLocked()
	backend, sync := p.backend, p.sync
	p.mu.Unlock()

	if backend != nil {
		backend.Halt()
	}
	if sync != nil {
		sync.End()
	}
	p.notify(0)
}

// stopLocked performs the state transition shared by Stop, preemption
// and natural completion: clock cancelled, position zeroed, lock
// released. Callers silence the backend and clear the overlay outside
// the lock.
func (p *Player) stopLocked() {
	p.cancelTickLocked()
	p.state = Stopped
	p.posBase = 0
	p.cfg.arb.Release(p.id)
}

// preempt is invoked by the arbiter when another instance takes the
// sounding lock. The preempted player ends up stopped at position zero.
func (p *Player) preempt() {
	p.mu.Lock()
	if p.state == Stopped {
		p.mu.Unlock()
		return
	}
	p.stopLocked()
	backend, sync := p.backend, p.sync
	p.mu.Unlock()

	if backend != nil {
		backend.Halt()
	}
	if sync != nil {
		sync.End()
	}
	p.notify(0)
}

// Seek moves the clock to t seconds, clamped to the schedule. While
// playing, the stream is repositioned in place: nothing else scheduled
// (audition one-shots in particular) is cancelled. While paused, only
// the retained position changes. A no-op when stopped.
func (p *Player) Seek(t float64) {
	p.mu.Lock()
	if !p.activated || p.state == Stopped {
		p.mu.Unlock()
		return
	}
	t = util.Clamp(t, 0, p.sched.TotalDuration)
	p.posBase = t
	playing := p.state == Playing
	if playing {
		p.resumedAt = time.Now()
	}
	backend, tempo := p.backend, p.tempo
	p.mu.Unlock()

	if playing {
		_ = backend.Play(t, tempo)
	}
	p.notify(t)
}

// SetTempo sets the tempo multiplier, clamped to [0.5, 2.0]. The clock's
// advancement rate changes; the schedule's timestamps do not.
func (p *Player) SetTempo(m float64) {
	m = util.Clamp(m, MinTempo, MaxTempo)
	p.mu.Lock()
	if p.state == Playing {
		// rebase so position stays continuous across the rate change
		p.posBase = p.positionLocked()
		p.resumedAt = time.Now()
	}
	p.tempo = m
	playing := p.state == Playing
	backend, pos := p.backend, p.posBase
	p.mu.Unlock()

	if playing {
		_ = backend.Play(pos, m)
	}
}

func (p *Player) Tempo() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tempo
}

// SetLoop toggles wrap-around at the end of the schedule.
func (p *Player) SetLoop(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loop = enabled
}

func (p *Player) Loop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loop
}

func (p *Player) State() TransportState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Position returns the clock position in schedule seconds. The value is
// derived from wall-clock time since the last resume instant, never from
// the audio engine.
func (p *Player) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *Player) positionLocked() float64 {
	if p.state != Playing {
		return p.posBase
	}
	pos := p.posBase + time.Since(p.resumedAt).Seconds()*p.tempo
	if p.sched != nil && pos > p.sched.TotalDuration {
		pos = p.sched.TotalDuration
	}
	return pos
}

// TotalDuration returns the playable duration (including the release
// tail), zero before activation.
func (p *Player) TotalDuration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sched == nil {
		return 0
	}
	return p.sched.TotalDuration
}

// Schedule returns the derived note schedule, nil before activation.
func (p *Player) Schedule() *schedule.NoteSchedule {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sched
}

// MIDI returns the canonical MIDI buffer for export, nil before
// activation.
func (p *Player) MIDI() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.midi
}

// Audition previews the note at a character offset in the notation
// source without touching transport state. Returns false when no note
// is at the offset or no score view is attached.
func (p *Player) Audition(charOffset int) bool {
	p.mu.Lock()
	sync, backend := p.sync, p.backend
	p.mu.Unlock()
	if sync == nil || backend == nil {
		return false
	}
	return sync.Audition(charOffset, backend.Audition)
}

// Close tears the instance down in order: engine silenced, sounding
// lock released, clock cancelled, engine resources disposed.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	backend, sync := p.backend, p.sync
	p.state = Stopped
	p.posBase = 0
	p.mu.Unlock()

	if backend != nil {
		backend.Halt()
	}
	p.cfg.arb.Release(p.id)
	p.mu.Lock()
	p.cancelTickLocked()
	p.mu.Unlock()
	if backend != nil {
		backend.Close()
	}
	if sync != nil {
		sync.End()
	}
}

// cancelTickLocked stops the clock goroutine. Safe to call on any exit
// path, including redundantly.
func (p *Player) cancelTickLocked() {
	if p.tickStop != nil {
		close(p.tickStop)
		p.tickStop = nil
	}
}

// clockLoop is the periodic position callback. It self-cancels on every
// exit path: external stops close the channel, natural completion
// without loop transitions to Stopped which does the same.
func (p *Player) clockLoop(stop chan struct{}) {
	ticker := time.NewTicker(p.cfg.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if done := p.tick(); done {
				return
			}
		}
	}
}

// tick advances observers and handles end-of-schedule. Returns true when
// the clock goroutine should exit.
func (p *Player) tick() bool {
	p.mu.Lock()
	if p.state != Playing {
		p.mu.Unlock()
		return true
	}
	pos := p.positionLocked()
	atEnd := p.sched != nil && pos >= p.sched.TotalDuration

	if atEnd && p.loop {
		// wrap: stay playing, restart the clock from zero
		p.posBase = 0
		p.resumedAt = time.Now()
		backend, tempo := p.backend, p.tempo
		p.mu.Unlock()
		_ = backend.Play(0, tempo)
		p.notify(0)
		return false
	}
	if atEnd {
		p.stopLocked()
		backend, sync := p.backend, p.sync
		p.mu.Unlock()
		backend.Halt()
		if sync != nil {
			sync.End()
		}
		p.notify(0)
		return true
	}
	sync := p.sync
	p.mu.Unlock()

	if sync != nil {
		sync.Tick(pos)
	}
	p.notify(pos)
	return false
}

// notify reports position and state to the configured observer.
func (p *Player) notify(pos float64) {
	if p.cfg.onPosition == nil {
		return
	}
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	p.cfg.onPosition(pos, state)
}
