// Package tunedata supplies tune metadata and notation from two
// sources: a static CSV catalogue bundled with the application, and
// The Session's public JSON API for everything the catalogue lacks.
package tunedata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotFound reports a tune id absent from the source queried.
var ErrNotFound = errors.New("tune not found")

// Setting is one notated version of a tune. The Session publishes
// several settings per tune; SettingIndex in the player selects among
// them.
type Setting struct {
	ID  string
	Key string
	ABC string
}

// Tune is a catalogue entry with all its known settings.
type Tune struct {
	ID       string
	Name     string
	Type     string // reel, jig, hornpipe, ...
	Settings []Setting
}

// Catalogue is an in-memory tune index loaded from CSV.
type Catalogue struct {
	byID  map[string]*Tune
	order []string
}

// catalogue CSV layout, one row per setting:
// tune_id,setting_id,name,type,key,abc
const catalogueColumns = 6

// LoadCatalogue reads the CSV catalogue. A header row is expected and
// skipped. Rows sharing a tune_id merge into one Tune with multiple
// settings, in row order.
func LoadCatalogue(r io.Reader) (*Catalogue, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = catalogueColumns
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read catalogue: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("catalogue is empty")
	}

	c := &Catalogue{byID: make(map[string]*Tune)}
	for _, row := range rows[1:] {
		id := strings.TrimSpace(row[0])
		if id == "" {
			continue
		}
		tune, ok := c.byID[id]
		if !ok {
			tune = &Tune{ID: id, Name: row[2], Type: row[3]}
			c.byID[id] = tune
			c.order = append(c.order, id)
		}
		tune.Settings = append(tune.Settings, Setting{
			ID:  strings.TrimSpace(row[1]),
			Key: row[4],
			ABC: row[5],
		})
	}
	return c, nil
}

// Len returns the number of distinct tunes.
func (c *Catalogue) Len() int { return len(c.order) }

// LookupByID returns the tune with the given id.
func (c *Catalogue) LookupByID(id string) (*Tune, error) {
	if t, ok := c.byID[id]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Search returns tunes whose name or type contains the query,
// case-insensitively, in catalogue order. An empty query matches all.
func (c *Catalogue) Search(query string) []*Tune {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []*Tune
	for _, id := range c.order {
		t := c.byID[id]
		if q == "" ||
			strings.Contains(strings.ToLower(t.Name), q) ||
			strings.Contains(strings.ToLower(t.Type), q) {
			out = append(out, t)
		}
	}
	return out
}
