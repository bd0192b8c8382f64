package tunebook

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ceol/tunebook-go/internal/abc"
	"github.com/ceol/tunebook-go/internal/arbiter"
	"github.com/ceol/tunebook-go/internal/cursor"
	"github.com/ceol/tunebook-go/internal/schedule"
)

// twoNoteABC yields notes at t=0 and t=1, one second each (half notes
// at 120 qpm), so TotalDuration is 2.5 including the release tail.
const twoNoteABC = "X:42\nT:Test Tune\nM:4/4\nL:1/4\nQ:1/4=120\nK:C\nC2 C2|\n"

type playCall struct{ pos, tempo float64 }

type fakeBackend struct {
	mu        sync.Mutex
	plays     []playCall
	halts     int
	closes    int
	auditions int
}

func (b *fakeBackend) Play(pos, tempo float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.plays = append(b.plays, playCall{pos, tempo})
	return nil
}

func (b *fakeBackend) Halt() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.halts++
}

func (b *fakeBackend) Audition(pitches, grace []uint8, durMs float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.auditions++
}

func (b *fakeBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
}

func (b *fakeBackend) snapshot() (plays []playCall, halts, closes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]playCall(nil), b.plays...), b.halts, b.closes
}

func (b *fakeBackend) auditionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.auditions
}

type nullOverlay struct{}

func (nullOverlay) SetHighlights([]cursor.NoteRef) {}
func (nullOverlay) MoveCursor(cursor.Line)         {}
func (nullOverlay) ClearAll()                      {}

func testScore(t *testing.T) *abc.Score {
	t.Helper()
	scores, err := abc.Parse(twoNoteABC)
	if err != nil {
		t.Fatalf("parse abc: %v", err)
	}
	return scores[0]
}

func testMIDI(t *testing.T) []byte {
	t.Helper()
	buf, err := testScore(t).SMF()
	if err != nil {
		t.Fatalf("generate midi: %v", err)
	}
	return buf
}

func newTestPlayer(t *testing.T, opts ...PlayerOption) (*Player, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{}
	opts = append(opts,
		WithBackendFactory(func(*schedule.NoteSchedule) (Backend, error) {
			return backend, nil
		}),
		WithTickInterval(2*time.Millisecond),
	)
	p := NewPlayer(opts...)
	if err := p.Activate(testMIDI(t), 0); err != nil {
		t.Fatalf("activate: %v", err)
	}
	t.Cleanup(p.Close)
	return p, backend
}

func TestActivateDerivesSchedule(t *testing.T) {
	p, _ := newTestPlayer(t)
	if got := p.TotalDuration(); got < 2.49 || got > 2.51 {
		t.Fatalf("total duration = %v, want 2.5", got)
	}
	if p.State() != Stopped {
		t.Fatalf("state after activation = %v, want stopped", p.State())
	}
	if len(p.MIDI()) == 0 {
		t.Fatal("canonical midi buffer not retained")
	}
	if n := len(p.Schedule().Events); n != 2 {
		t.Fatalf("schedule has %d events, want 2", n)
	}
}

func TestActivationFailureLeavesPlayerInert(t *testing.T) {
	backend := &fakeBackend{}
	p := NewPlayer(WithBackendFactory(func(*schedule.NoteSchedule) (Backend, error) {
		return backend, nil
	}))
	defer p.Close()

	if err := p.Activate(struct{}{}, 0); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
	if err := p.Activate([]byte("not midi"), 0); !errors.Is(err, ErrMalformedMIDI) {
		t.Fatalf("err = %v, want ErrMalformedMIDI", err)
	}

	// failed activation leaves no partial state behind
	p.Play()
	if p.State() != Stopped {
		t.Fatalf("play before activation moved state to %v", p.State())
	}
	if err := p.Activate(testMIDI(t), 0); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestPlayAdvancesMonotonically(t *testing.T) {
	p, _ := newTestPlayer(t)
	p.Play()
	if p.State() != Playing {
		t.Fatalf("state = %v, want playing", p.State())
	}
	p1 := p.Position()
	time.Sleep(30 * time.Millisecond)
	p2 := p.Position()
	if p2 <= p1 {
		t.Fatalf("position did not advance: %v then %v", p1, p2)
	}
}

func TestPauseRetainsPositionAndResumeContinues(t *testing.T) {
	p, backend := newTestPlayer(t)
	p.Play()
	time.Sleep(30 * time.Millisecond)
	p.Pause()
	if p.State() != Paused {
		t.Fatalf("state = %v, want paused", p.State())
	}
	held := p.Position()
	if held <= 0 {
		t.Fatalf("paused position = %v, want > 0", held)
	}
	time.Sleep(20 * time.Millisecond)
	if got := p.Position(); got != held {
		t.Fatalf("position moved while paused: %v -> %v", held, got)
	}
	_, halts, _ := backend.snapshot()
	if halts == 0 {
		t.Fatal("pause did not silence the backend")
	}

	p.Play()
	if p.State() != Playing {
		t.Fatalf("state after resume = %v, want playing", p.State())
	}
	plays, _, _ := backend.snapshot()
	resume := plays[len(plays)-1]
	if resume.pos < held-0.01 || resume.pos > held+0.01 {
		t.Fatalf("resumed from %v, want retained %v", resume.pos, held)
	}
}

func TestIllegalTransitionsAreNoops(t *testing.T) {
	p, backend := newTestPlayer(t)

	p.Pause()
	if p.State() != Stopped || p.Position() != 0 {
		t.Fatalf("pause on stopped transport changed state: %v @ %v", p.State(), p.Position())
	}
	p.Stop()
	if p.State() != Stopped {
		t.Fatalf("stop on stopped transport: %v", p.State())
	}
	p.Seek(1.0)
	if p.Position() != 0 {
		t.Fatalf("seek on stopped transport moved position to %v", p.Position())
	}
	if plays, halts, _ := backend.snapshot(); len(plays) != 0 || halts != 0 {
		t.Fatalf("no-op transitions touched the backend: %d plays, %d halts", len(plays), halts)
	}
}

func TestPlayTwiceDoesNotRestartClock(t *testing.T) {
	p, backend := newTestPlayer(t)
	p.Play()
	time.Sleep(25 * time.Millisecond)
	before := p.Position()
	p.Play()
	if got := p.Position(); got < before {
		t.Fatalf("second play reset the clock: %v -> %v", before, got)
	}
	if plays, _, _ := backend.snapshot(); len(plays) != 1 {
		t.Fatalf("second play restarted the backend: %d plays", len(plays))
	}
}

func TestSeekWhilePlayingKeepsStateAndLock(t *testing.T) {
	arb := arbiter.New()
	p, backend := newTestPlayer(t, WithArbiter(arb))
	p.Play()
	holder := arb.Holder()

	p.Seek(1.0)
	if p.State() != Playing {
		t.Fatalf("state after seek = %v, want playing", p.State())
	}
	if got := p.Position(); got < 0.99 || got > 1.2 {
		t.Fatalf("position after seek = %v, want ~1.0", got)
	}
	if arb.Holder() != holder {
		t.Fatal("seek disturbed sounding-lock ownership")
	}
	// a reposition never tears anything down
	plays, halts, closes := backend.snapshot()
	if halts != 0 || closes != 0 {
		t.Fatalf("seek cancelled backend work: %d halts, %d closes", halts, closes)
	}
	if last := plays[len(plays)-1]; last.pos != 1.0 {
		t.Fatalf("backend repositioned to %v, want 1.0", last.pos)
	}
}

func TestSeekWhilePausedDoesNotResume(t *testing.T) {
	p, backend := newTestPlayer(t)
	p.Play()
	p.Pause()
	plays, _, _ := backend.snapshot()
	n := len(plays)

	p.Seek(1.5)
	if p.State() != Paused {
		t.Fatalf("state = %v, want paused", p.State())
	}
	if got := p.Position(); got != 1.5 {
		t.Fatalf("position = %v, want 1.5", got)
	}
	if plays, _, _ := backend.snapshot(); len(plays) != n {
		t.Fatal("seek while paused resumed the backend")
	}
}

func TestSeekClampsToSchedule(t *testing.T) {
	p, _ := newTestPlayer(t)
	p.Play()
	p.Seek(99)
	if got, total := p.Position(), p.TotalDuration(); got > total+0.1 {
		t.Fatalf("position = %v, beyond total %v", got, total)
	}
	p.Seek(-4)
	if got := p.Position(); got < 0 || got > 0.1 {
		t.Fatalf("position = %v, want clamp to 0", got)
	}
}

func TestStopResetsPosition(t *testing.T) {
	p, _ := newTestPlayer(t)
	p.Play()
	time.Sleep(20 * time.Millisecond)
	p.Stop()
	if p.State() != Stopped {
		t.Fatalf("state = %v, want stopped", p.State())
	}
	if p.Position() != 0 {
		t.Fatalf("position = %v, want 0", p.Position())
	}
}

func TestTempoScalesClockNotSchedule(t *testing.T) {
	p, _ := newTestPlayer(t)
	total := p.TotalDuration()
	onsets := make([]float64, 0, 4)
	for _, e := range p.Schedule().Events {
		onsets = append(onsets, e.Onset)
	}

	p.Play()
	p.SetTempo(2.0)
	if p.TotalDuration() != total {
		t.Fatalf("tempo change altered total duration: %v -> %v", total, p.TotalDuration())
	}
	for i, e := range p.Schedule().Events {
		if e.Onset != onsets[i] {
			t.Fatal("tempo change altered note onsets")
		}
	}
	// the clock advances roughly twice as fast
	start := p.Position()
	time.Sleep(50 * time.Millisecond)
	advanced := p.Position() - start
	if advanced < 0.08 || advanced > 0.25 {
		t.Fatalf("advanced %v in 50ms at 2x tempo, want ~0.1", advanced)
	}
}

func TestTempoClamps(t *testing.T) {
	p, _ := newTestPlayer(t)
	p.SetTempo(9)
	if got := p.Tempo(); got != MaxTempo {
		t.Fatalf("tempo = %v, want clamp to %v", got, MaxTempo)
	}
	p.SetTempo(0.01)
	if got := p.Tempo(); got != MinTempo {
		t.Fatalf("tempo = %v, want clamp to %v", got, MinTempo)
	}
}

func TestSingleSoundingInstance(t *testing.T) {
	arb := arbiter.New()
	a, _ := newTestPlayer(t, WithArbiter(arb))
	b, _ := newTestPlayer(t, WithArbiter(arb))

	a.Play()
	if a.State() != Playing {
		t.Fatalf("A state = %v, want playing", a.State())
	}
	b.Play()
	if a.State() != Stopped {
		t.Fatalf("A state after B played = %v, want stopped", a.State())
	}
	if a.Position() != 0 {
		t.Fatalf("A position after preemption = %v, want 0", a.Position())
	}
	if b.State() != Playing {
		t.Fatalf("B state = %v, want playing", b.State())
	}
}

func TestConcurrentPlayAcrossPlayersDoesNotDeadlock(t *testing.T) {
	arb := arbiter.New()
	a, _ := newTestPlayer(t, WithArbiter(arb))
	b, _ := newTestPlayer(t, WithArbiter(arb))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 300; i++ {
			// B paused and holding the sounding lock is the adversarial
			// starting point: both preemption directions are reachable
			// from the two concurrent Plays.
			b.Play()
			b.Pause()
			var wg sync.WaitGroup
			wg.Add(2)
			go func() { defer wg.Done(); a.Play() }()
			go func() { defer wg.Done(); b.Play() }()
			wg.Wait()
			a.Stop()
			b.Stop()
		}
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("concurrent play across players deadlocked")
	}
	if h := arb.Holder(); h != "" {
		t.Fatalf("sounding lock still held after both stopped: %q", h)
	}
}

func TestActivateWhilePlayingResetsTransport(t *testing.T) {
	arb := arbiter.New()
	p, backend := newTestPlayer(t, WithArbiter(arb))
	p.Play()
	time.Sleep(20 * time.Millisecond)

	if err := p.Activate(testMIDI(t), 0); err != nil {
		t.Fatalf("re-activate: %v", err)
	}
	if p.State() != Stopped {
		t.Fatalf("state after re-activation = %v, want stopped", p.State())
	}
	if h := arb.Holder(); h != "" {
		t.Fatalf("re-activation left %q holding the sounding lock", h)
	}
	if _, _, closes := backend.snapshot(); closes != 1 {
		t.Fatalf("old backend closes = %d, want 1", closes)
	}
	// the old clock goroutine must be gone: position stays at zero
	time.Sleep(20 * time.Millisecond)
	if p.Position() != 0 {
		t.Fatalf("position after re-activation = %v, want 0", p.Position())
	}
}

func TestNaturalCompletionStops(t *testing.T) {
	p, _ := newTestPlayer(t)
	p.Play()
	p.Seek(p.TotalDuration() - 0.02)
	deadline := time.After(2 * time.Second)
	for p.State() == Playing {
		select {
		case <-deadline:
			t.Fatal("playback never completed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if p.State() != Stopped {
		t.Fatalf("state = %v, want stopped", p.State())
	}
	if p.Position() != 0 {
		t.Fatalf("position = %v, want reset to 0", p.Position())
	}
}

func TestLoopWrapsInsteadOfStopping(t *testing.T) {
	p, _ := newTestPlayer(t)
	p.SetLoop(true)
	p.Play()
	p.Seek(p.TotalDuration() - 0.02)
	time.Sleep(100 * time.Millisecond)
	if p.State() != Playing {
		t.Fatalf("state after wrap = %v, want playing", p.State())
	}
	if got := p.Position(); got > 1.0 {
		t.Fatalf("position after wrap = %v, want near 0", got)
	}
}

func TestCloseDisposesEverything(t *testing.T) {
	notifications := make(chan struct{}, 1024)
	p, backend := newTestPlayer(t, WithOnPosition(func(float64, TransportState) {
		select {
		case notifications <- struct{}{}:
		default:
		}
	}))
	p.Play()
	time.Sleep(20 * time.Millisecond)
	p.Close()

	if _, _, closes := backend.snapshot(); closes != 1 {
		t.Fatalf("backend closes = %d, want 1", closes)
	}
	p.Close()
	if _, _, closes := backend.snapshot(); closes != 1 {
		t.Fatalf("double close disposed twice: %d", closes)
	}

	// the recurring clock callback must be gone
	time.Sleep(20 * time.Millisecond)
	for len(notifications) > 0 {
		<-notifications
	}
	time.Sleep(30 * time.Millisecond)
	if len(notifications) != 0 {
		t.Fatal("clock callback still firing after close")
	}
}

func TestCloseReleasesSoundingLock(t *testing.T) {
	arb := arbiter.New()
	p, _ := newTestPlayer(t, WithArbiter(arb))
	p.Play()
	if arb.Holder() == "" {
		t.Fatal("play did not take the sounding lock")
	}
	p.Close()
	if arb.Holder() != "" {
		t.Fatal("close leaked the sounding lock")
	}
}

func TestAuditionWithoutScoreViewIsRefused(t *testing.T) {
	p, backend := newTestPlayer(t)
	if p.Audition(3) {
		t.Fatal("audition without a score view returned true")
	}
	if backend.auditionCount() != 0 {
		t.Fatal("audition fired without a score view")
	}
}

func TestAuditionDoesNotTouchTransport(t *testing.T) {
	sc := testScore(t)
	p, backend := newTestPlayer(t, WithScoreView(ScoreView{Score: sc}, nullOverlay{}))
	p.Play()
	time.Sleep(15 * time.Millisecond)
	stateBefore := p.State()

	off := strings.IndexByte(sc.Body, 'C')
	if off < 0 {
		t.Fatal("no note in fixture body")
	}
	if !p.Audition(off) {
		t.Fatal("audition at a note offset failed")
	}
	if backend.auditionCount() != 1 {
		t.Fatalf("audition calls = %d, want 1", backend.auditionCount())
	}
	if p.State() != stateBefore {
		t.Fatalf("audition changed transport state: %v -> %v", stateBefore, p.State())
	}

	// a seek right after the preview must not cancel it
	p.Seek(1.0)
	if _, halts, _ := backend.snapshot(); halts != 0 {
		t.Fatal("seek after audition halted the backend")
	}
}
