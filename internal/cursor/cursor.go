// Package cursor keeps a visual score overlay synchronized with the
// transport clock: which note glyphs are highlighted, and where the
// playback cursor line sits. It owns no score geometry; it reads note
// identity through ScoreHandle and writes through Overlay.
package cursor

// NoteRef is an addressable note glyph in the rendered score.
type NoteRef interface {
	Pitches() []uint8
	GracePitches() []uint8
	// Bounds returns the glyph box (x1, y1, x2, y2) in the renderer's
	// coordinate space.
	Bounds() (float64, float64, float64, float64)
}

// ScoreHandle is the consumed capability set of the notation renderer.
type ScoreHandle interface {
	// ElementAtOffset resolves a character offset in the notation source
	// to a note glyph, nil when the offset hits none.
	ElementAtOffset(charOffset int) NoteRef
	// ElementAtIndex resolves the i-th note in source order, matching
	// the schedule builder's stable onset ordering.
	ElementAtIndex(i int) NoteRef
	MillisecondsPerMeasure() float64
}

// Overlay is the narrow mutation surface of the score view.
type Overlay interface {
	// SetHighlights replaces the highlighted set; it is never additive.
	SetHighlights(refs []NoteRef)
	// MoveCursor positions the cursor line.
	MoveCursor(line Line)
	// ClearAll removes highlights and collapses the cursor.
	ClearAll()
}

// Line is the cursor geometry for one frame.
type Line struct {
	X1, Y1, X2, Y2 float64
}

// Sounding decides which schedule entries are audible at pos.
type Sounding interface {
	SoundingIndices(pos float64) []int
}

// Synchronizer drives one Overlay from transport position updates.
type Synchronizer struct {
	sched   Sounding
	score   ScoreHandle
	overlay Overlay
	active  bool
}

func New(sched Sounding, score ScoreHandle, overlay Overlay) *Synchronizer {
	return &Synchronizer{sched: sched, score: score, overlay: overlay}
}

// Begin creates the overlay state at playback start.
func (s *Synchronizer) Begin() {
	s.active = true
	s.overlay.ClearAll()
}

// Tick mutates the overlay to reflect the given position: the highlight
// set becomes exactly the sounding notes (stale highlights are dropped,
// not accumulated) and the cursor moves to the earliest sounding glyph.
func (s *Synchronizer) Tick(pos float64) {
	if !s.active {
		return
	}
	indices := s.sched.SoundingIndices(pos)
	refs := make([]NoteRef, 0, len(indices))
	for _, i := range indices {
		if ref := s.score.ElementAtIndex(i); ref != nil {
			refs = append(refs, ref)
		}
	}
	s.overlay.SetHighlights(refs)
	if len(refs) > 0 {
		x1, y1, _, y2 := refs[0].Bounds()
		s.overlay.MoveCursor(Line{X1: x1, Y1: y1, X2: x1, Y2: y2})
	}
}

// End clears all highlights and collapses the cursor; called on natural
// finish and on stop alike.
func (s *Synchronizer) End() {
	if !s.active {
		return
	}
	s.active = false
	s.overlay.ClearAll()
}

// Audition resolves a click at a character offset to its pitch set and
// triggers a one-shot preview scaled to one measure, leaving the
// transport untouched. play receives the main and grace pitches plus the
// preview duration in milliseconds. Returns false when the offset
// resolves to no note.
func (s *Synchronizer) Audition(charOffset int, play func(pitches, grace []uint8, durMs float64)) bool {
	ref := s.score.ElementAtOffset(charOffset)
	if ref == nil {
		return false
	}
	pitches := ref.Pitches()
	if len(pitches) == 0 {
		return false
	}
	play(pitches, ref.GracePitches(), s.score.MillisecondsPerMeasure())
	return true
}
