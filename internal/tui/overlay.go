// Package tui is the terminal front end: a bubbletea model rendering
// the ABC score with live note highlighting and a playback cursor,
// plus transport key bindings.
package tui

import (
	"sync"

	"github.com/ceol/tunebook-go/internal/cursor"
)

// box is a glyph rectangle in text-grid coordinates (cols, lines).
type box struct {
	x1, y1, x2, y2 int
}

// Overlay is the mutable highlight/cursor state the synchronizer
// writes and View reads. The synchronizer runs on the transport clock
// goroutine, so all access goes through the mutex.
type Overlay struct {
	mu        sync.Mutex
	boxes     []box
	cursorCol int
	cursorRow int
	hasCursor bool
}

func NewOverlay() *Overlay { return &Overlay{} }

func (o *Overlay) SetHighlights(refs []cursor.NoteRef) {
	boxes := make([]box, 0, len(refs))
	for _, r := range refs {
		x1, y1, x2, y2 := r.Bounds()
		boxes = append(boxes, box{int(x1), int(y1), int(x2), int(y2)})
	}
	o.mu.Lock()
	o.boxes = boxes
	o.mu.Unlock()
}

func (o *Overlay) MoveCursor(line cursor.Line) {
	o.mu.Lock()
	o.cursorCol = int(line.X1)
	o.cursorRow = int(line.Y1)
	o.hasCursor = true
	o.mu.Unlock()
}

func (o *Overlay) ClearAll() {
	o.mu.Lock()
	o.boxes = nil
	o.hasCursor = false
	o.mu.Unlock()
}

func (o *Overlay) snapshot() (boxes []box, col, row int, hasCursor bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]box(nil), o.boxes...), o.cursorCol, o.cursorRow, o.hasCursor
}

// highlighted reports whether the text-grid cell (col, row) lies inside
// any highlight box.
func (o *Overlay) highlighted(col, row int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, b := range o.boxes {
		if row >= b.y1 && row < b.y2 && col >= b.x1 && col < b.x2 {
			return true
		}
	}
	return false
}
