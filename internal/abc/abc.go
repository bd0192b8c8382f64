// Package abc implements the notation collaborator over monospace ABC
// text: a practical subset parser, the visual-score capability set
// (element-at-offset lookup, per-note pitch queries, measure duration
// estimation) and standard MIDI file generation.
package abc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrNoTunes = errors.New("no tunes in abc source")

// Element is one addressable note glyph in the rendered score.
type Element struct {
	index      int
	start, end int // char offsets into Score.Body, [start, end)
	line, col  int
	keys       []uint8
	grace      []uint8
	startSec   float64
	durSec     float64
}

func (e *Element) Pitches() []uint8      { return e.keys }
func (e *Element) GracePitches() []uint8 { return e.grace }
func (e *Element) Index() int            { return e.index }
func (e *Element) Start() float64        { return e.startSec }
func (e *Element) Duration() float64     { return e.durSec }

// Bounds returns the glyph box in text-grid coordinates: columns on the
// x axis, lines on the y axis.
func (e *Element) Bounds() (x1, y1, x2, y2 float64) {
	return float64(e.col), float64(e.line), float64(e.col + e.end - e.start), float64(e.line + 1)
}

// Score is one tune version (one X: block) of an ABC source.
type Score struct {
	ID       string // X: header value
	Title    string
	MeterNum int
	MeterDen int
	QPM      float64 // quarter notes per minute
	Body     string  // tune body as displayed
	notes    []*Element
}

func (s *Score) NoteCount() int { return len(s.notes) }

// ElementAtIndex returns the i-th note in source order, nil out of range.
func (s *Score) ElementAtIndex(i int) *Element {
	if i < 0 || i >= len(s.notes) {
		return nil
	}
	return s.notes[i]
}

// ElementAtOffset returns the note whose glyph spans the char offset into
// Body, or nil when the offset hits no note.
func (s *Score) ElementAtOffset(off int) *Element {
	for _, n := range s.notes {
		if off >= n.start && off < n.end {
			return n
		}
	}
	return nil
}

// MillisecondsPerMeasure estimates one measure's duration at the
// authored tempo.
func (s *Score) MillisecondsPerMeasure() float64 {
	whole := 4 * 60 / s.QPM // seconds per whole note
	return whole * float64(s.MeterNum) / float64(s.MeterDen) * 1000
}

// Parse splits an ABC source into scores, one per X: block.
func Parse(text string) ([]*Score, error) {
	var blocks []string
	var cur []string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "X:") && len(cur) > 0 {
			blocks = append(blocks, strings.Join(cur, "\n"))
			cur = cur[:0]
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		blocks = append(blocks, strings.Join(cur, "\n"))
	}

	var scores []*Score
	for _, b := range blocks {
		sc, err := parseTune(b)
		if err != nil {
			return nil, err
		}
		if sc != nil {
			scores = append(scores, sc)
		}
	}
	if len(scores) == 0 {
		return nil, ErrNoTunes
	}
	return scores, nil
}

func parseTune(block string) (*Score, error) {
	sc := &Score{MeterNum: 4, MeterDen: 4, QPM: 120}
	unitNum, unitDen := 1, 8
	keySig := map[byte]int{}
	sawX := false

	var bodyLines []string
	for _, line := range strings.Split(block, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) >= 2 && trimmed[1] == ':' && trimmed[0] >= 'A' && trimmed[0] <= 'Z' {
			val := strings.TrimSpace(trimmed[2:])
			switch trimmed[0] {
			case 'X':
				sc.ID = val
				sawX = true
			case 'T':
				if sc.Title == "" {
					sc.Title = val
				}
			case 'M':
				if n, d, ok := parseFraction(val); ok {
					sc.MeterNum, sc.MeterDen = n, d
				}
			case 'L':
				if n, d, ok := parseFraction(val); ok {
					unitNum, unitDen = n, d
				}
			case 'Q':
				sc.QPM = parseTempo(val, sc.QPM)
			case 'K':
				keySig = keySignature(val)
			}
			continue
		}
		if trimmed == "" {
			continue
		}
		bodyLines = append(bodyLines, line)
	}
	if !sawX || len(bodyLines) == 0 {
		return nil, nil // header-only fragment; caller decides if that is fatal
	}

	sc.Body = strings.Join(bodyLines, "\n")
	p := &bodyParser{
		sc:      sc,
		keySig:  keySig,
		unitSec: float64(unitNum) / float64(unitDen) * 4 * 60 / sc.QPM,
	}
	p.run()
	if len(sc.notes) == 0 {
		return nil, fmt.Errorf("%w: tune %s has no notes", ErrNoTunes, sc.ID)
	}
	return sc, nil
}

type bodyParser struct {
	sc      *Score
	keySig  map[byte]int
	unitSec float64

	pos     int // char offset into Body
	line    int
	col     int
	clock   float64
	measure map[byte]int // explicit accidentals, reset at each bar
	grace   []uint8
	inGrace bool
	tuplet  int     // notes remaining in current tuplet
	tupFac  float64 // duration factor while tuplet > 0
	broken  float64 // pending broken-rhythm factor for the next note
}

func (p *bodyParser) run() {
	body := p.sc.Body
	p.measure = map[byte]int{}
	for p.pos < len(body) {
		c := body[p.pos]
		switch {
		case c == '\n':
			p.advance(1)
			p.line++
			p.col = 0
		case c == '|' || c == ':' || c == ']' || c == '[' && p.pos+1 < len(body) && body[p.pos+1] == '|':
			p.measure = map[byte]int{}
			p.advance(1)
		case c == '{':
			p.inGrace = true
			p.grace = p.grace[:0]
			p.advance(1)
		case c == '}':
			p.inGrace = false
			p.advance(1)
		case c == '[':
			p.parseChord()
		case c == 'z' || c == 'x' || c == 'Z':
			p.advance(1)
			p.clock += p.parseLength() * p.unitSec * p.brokenFactor()
		case isNoteStart(c):
			p.parseNote()
		case c == '(' && p.pos+1 < len(body) && body[p.pos+1] >= '2' && body[p.pos+1] <= '9':
			n := int(body[p.pos+1] - '0')
			p.tuplet = n
			p.tupFac = tupletFactor(n)
			p.advance(2)
		case c == '>' || c == '<':
			// broken rhythm: lengthen this side, shorten the other
			if c == '>' {
				p.extendPrev(0.5)
				p.broken = 0.5
			} else {
				p.extendPrev(-0.5)
				p.broken = 1.5
			}
			p.advance(1)
		default:
			p.advance(1)
		}
	}
}

func (p *bodyParser) advance(n int) {
	p.pos += n
	p.col += n
}

func isNoteStart(c byte) bool {
	return c == '^' || c == '_' || c == '=' ||
		(c >= 'A' && c <= 'G') || (c >= 'a' && c <= 'g')
}

// parsePitch consumes accidentals, a note letter and octave marks,
// returning the MIDI key. Explicit accidentals persist for the letter
// until the next barline.
func (p *bodyParser) parsePitch() (uint8, bool) {
	body := p.sc.Body
	acc := 0
	explicit := false
	for p.pos < len(body) {
		switch body[p.pos] {
		case '^':
			acc++
			explicit = true
		case '_':
			acc--
			explicit = true
		case '=':
			explicit = true
		default:
			goto letter
		}
		p.advance(1)
	}
letter:
	if p.pos >= len(body) {
		return 0, false
	}
	c := body[p.pos]
	var letter byte
	base := 0
	switch {
	case c >= 'A' && c <= 'G':
		// uppercase letters ascend from middle C: C=60 .. B=71
		letter = c
		base = 60 + majorScaleOffset(c)
	case c >= 'a' && c <= 'g':
		letter = c - 32
		base = 72 + majorScaleOffset(letter)
	default:
		return 0, false
	}
	p.advance(1)
	for p.pos < len(body) {
		if body[p.pos] == '\'' {
			base += 12
			p.advance(1)
		} else if body[p.pos] == ',' {
			base -= 12
			p.advance(1)
		} else {
			break
		}
	}
	if explicit {
		p.measure[letter] = acc
	}
	if d, ok := p.measure[letter]; ok {
		base += d
	} else {
		base += p.keySig[letter]
	}
	return uint8(base), true
}

// parseLength consumes a length suffix and returns the multiplier in
// unit-note lengths: "2" -> 2, "/" -> 0.5, "3/2" -> 1.5, "" -> 1.
func (p *bodyParser) parseLength() float64 {
	body := p.sc.Body
	num, den := 0, 0
	readInt := func() int {
		v := 0
		seen := false
		for p.pos < len(body) && body[p.pos] >= '0' && body[p.pos] <= '9' {
			v = v*10 + int(body[p.pos]-'0')
			seen = true
			p.advance(1)
		}
		if !seen {
			return -1
		}
		return v
	}
	num = readInt()
	for p.pos < len(body) && body[p.pos] == '/' {
		p.advance(1)
		d := readInt()
		if d < 0 {
			d = 2
		}
		if den == 0 {
			den = d
		} else {
			den *= d
		}
	}
	mult := 1.0
	if num > 0 {
		mult = float64(num)
	}
	if den > 0 {
		mult /= float64(den)
	}
	return mult
}

func (p *bodyParser) parseNote() {
	start := p.pos
	key, ok := p.parsePitch()
	if !ok {
		p.advance(1)
		return
	}
	if p.inGrace {
		p.grace = append(p.grace, key)
		return
	}
	dur := p.parseLength() * p.unitSec
	if p.tuplet > 0 {
		dur *= p.tupFac
		p.tuplet--
	}
	dur *= p.brokenFactor()
	p.appendNote(start, p.pos, []uint8{key}, dur)
}

// parseChord handles [CEG] style chords: all pitches share one onset and
// the chord's length suffix.
func (p *bodyParser) parseChord() {
	body := p.sc.Body
	start := p.pos
	p.advance(1) // consume '['
	var keys []uint8
	for p.pos < len(body) && body[p.pos] != ']' {
		if isNoteStart(body[p.pos]) {
			if key, ok := p.parsePitch(); ok {
				keys = append(keys, key)
				p.parseLength() // per-note lengths inside chords: ignored
				continue
			}
		}
		p.advance(1)
	}
	if p.pos < len(body) {
		p.advance(1) // consume ']'
	}
	if len(keys) == 0 {
		return
	}
	dur := p.parseLength() * p.unitSec * p.brokenFactor()
	if p.tuplet > 0 {
		dur *= p.tupFac
		p.tuplet--
	}
	p.appendNote(start, p.pos, keys, dur)
}

func (p *bodyParser) appendNote(start, end int, keys []uint8, dur float64) {
	el := &Element{
		index:    len(p.sc.notes),
		start:    start,
		end:      end,
		line:     p.line,
		col:      p.col - (end - start),
		keys:     keys,
		startSec: p.clock,
		durSec:   dur,
	}
	if len(p.grace) > 0 {
		el.grace = append([]uint8(nil), p.grace...)
		p.grace = p.grace[:0]
	}
	p.sc.notes = append(p.sc.notes, el)
	p.clock += dur
}

func (p *bodyParser) brokenFactor() float64 {
	if p.broken != 0 {
		f := p.broken
		p.broken = 0
		return f
	}
	return 1
}

// extendPrev applies the broken-rhythm adjustment to the note just
// emitted: a>b lengthens a by half, a<b shortens it.
func (p *bodyParser) extendPrev(delta float64) {
	if len(p.sc.notes) == 0 {
		return
	}
	last := p.sc.notes[len(p.sc.notes)-1]
	add := last.durSec * delta
	last.durSec += add
	p.clock += add
}

func tupletFactor(n int) float64 {
	switch n {
	case 2:
		return 1.5
	case 3:
		return 2.0 / 3
	case 4:
		return 0.75
	default:
		return 2.0 / float64(n)
	}
}

func parseFraction(s string) (int, int, bool) {
	if s == "C" {
		return 4, 4, true
	}
	if s == "C|" {
		return 2, 2, true
	}
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	n, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	d, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || n <= 0 || d <= 0 {
		return 0, 0, false
	}
	return n, d, true
}

// parseTempo handles "1/4=120", "120" and "C=120" forms, returning
// quarter notes per minute.
func parseTempo(s string, fallback float64) float64 {
	if eq := strings.Index(s, "="); eq >= 0 {
		beat := strings.TrimSpace(s[:eq])
		bpm, err := strconv.ParseFloat(strings.TrimSpace(s[eq+1:]), 64)
		if err != nil || bpm <= 0 {
			return fallback
		}
		if n, d, ok := parseFraction(beat); ok {
			// scale to quarter-note bpm
			return bpm * (float64(n) / float64(d)) * 4
		}
		return bpm
	}
	if bpm, err := strconv.ParseFloat(s, 64); err == nil && bpm > 0 {
		return bpm
	}
	return fallback
}

func majorScaleOffset(letter byte) int {
	switch letter {
	case 'C':
		return 0
	case 'D':
		return 2
	case 'E':
		return 4
	case 'F':
		return 5
	case 'G':
		return 7
	case 'A':
		return 9
	case 'B':
		return 11
	}
	return 0
}

var sharpOrder = []byte{'F', 'C', 'G', 'D', 'A', 'E', 'B'}
var flatOrder = []byte{'B', 'E', 'A', 'D', 'G', 'C', 'F'}

// sharpsForMajor maps a major tonic to its count on the circle of
// fifths; negative means flats.
var sharpsForMajor = map[string]int{
	"C": 0, "G": 1, "D": 2, "A": 3, "E": 4, "B": 5, "F#": 6, "C#": 7,
	"F": -1, "BB": -2, "EB": -3, "AB": -4, "DB": -5, "GB": -6, "CB": -7,
}

var modeAdjust = map[string]int{
	"": 0, "MAJ": 0, "MAJOR": 0, "ION": 0,
	"MIX": -1, "MIXOLYDIAN": -1,
	"DOR": -2, "DORIAN": -2,
	"M": -3, "MIN": -3, "MINOR": -3, "AEO": -3,
	"PHR": -4, "PHRYGIAN": -4,
	"LYD": 1, "LYDIAN": 1,
	"LOC": -5, "LOCRIAN": -5,
}

// keySignature builds the letter->semitone-delta map for a K: header
// value like "D", "Amin", "Ador", "Bb".
func keySignature(val string) map[byte]int {
	sig := map[byte]int{}
	s := strings.ToUpper(strings.TrimSpace(val))
	if s == "" || s == "NONE" {
		return sig
	}
	tonic := s[:1]
	rest := s[1:]
	if strings.HasPrefix(rest, "#") {
		tonic += "#"
		rest = rest[1:]
	} else if strings.HasPrefix(rest, "B") && len(rest) >= 1 && (len(rest) == 1 || !isModeWord(rest)) {
		tonic += "B"
		rest = rest[1:]
	}
	mode := strings.TrimSpace(rest)
	count, ok := sharpsForMajor[tonic]
	if !ok {
		return sig
	}
	count += modeAdjust[normalizeMode(mode)]
	switch {
	case count > 0:
		for i := 0; i < count && i < len(sharpOrder); i++ {
			sig[sharpOrder[i]] = 1
		}
	case count < 0:
		for i := 0; i < -count && i < len(flatOrder); i++ {
			sig[flatOrder[i]] = -1
		}
	}
	return sig
}

func normalizeMode(mode string) string {
	mode = strings.ToUpper(strings.TrimSpace(mode))
	if _, ok := modeAdjust[mode]; ok {
		return mode
	}
	if len(mode) >= 3 {
		if _, ok := modeAdjust[mode[:3]]; ok {
			return mode[:3]
		}
	}
	return ""
}

func isModeWord(s string) bool {
	return normalizeMode(s) != "" && s != ""
}
