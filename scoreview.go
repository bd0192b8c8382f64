package tunebook

import (
	"github.com/ceol/tunebook-go/internal/abc"
	"github.com/ceol/tunebook-go/internal/cursor"
)

// ScoreView adapts a parsed score to the capability set the cursor
// synchronizer consumes. Pass it to WithScoreView alongside the
// renderer's overlay.
type ScoreView struct {
	Score *abc.Score
}

func (v ScoreView) ElementAtOffset(charOffset int) cursor.NoteRef {
	if el := v.Score.ElementAtOffset(charOffset); el != nil {
		return el
	}
	return nil
}

func (v ScoreView) ElementAtIndex(i int) cursor.NoteRef {
	if el := v.Score.ElementAtIndex(i); el != nil {
		return el
	}
	return nil
}

func (v ScoreView) MillisecondsPerMeasure() float64 {
	return v.Score.MillisecondsPerMeasure()
}
