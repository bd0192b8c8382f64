package tunedata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
)

// DefaultBaseURL is The Session's public API root.
const DefaultBaseURL = "https://thesession.org"

// Client fetches tunes from The Session's JSON API. Lookups are cached
// in memory for the client's lifetime; tune settings are effectively
// immutable upstream.
type Client struct {
	base string
	http *http.Client

	mu    sync.Mutex
	cache map[string]*Tune
}

// NewClient builds a client against the given API root; "" means
// DefaultBaseURL. httpClient nil means http.DefaultClient.
func NewClient(base string, httpClient *http.Client) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		base:  base,
		http:  httpClient,
		cache: make(map[string]*Tune),
	}
}

// wire shapes of The Session's JSON responses
type sessionSetting struct {
	ID  json.Number `json:"id"`
	Key string      `json:"key"`
	ABC string      `json:"abc"`
}

type sessionTune struct {
	ID       json.Number      `json:"id"`
	Name     string           `json:"name"`
	Type     string           `json:"type"`
	Settings []sessionSetting `json:"settings"`
}

type sessionSearch struct {
	Tunes []sessionTune `json:"tunes"`
}

// Tune fetches one tune with all its settings. A 404 maps to
// ErrNotFound; other non-200 statuses surface as plain errors.
func (c *Client) Tune(ctx context.Context, id string) (*Tune, error) {
	c.mu.Lock()
	if t, ok := c.cache[id]; ok {
		c.mu.Unlock()
		return t, nil
	}
	c.mu.Unlock()

	var wire sessionTune
	u := fmt.Sprintf("%s/tunes/%s?format=json", c.base, url.PathEscape(id))
	if err := c.getJSON(ctx, u, &wire); err != nil {
		return nil, err
	}
	t := wire.toTune()

	c.mu.Lock()
	c.cache[id] = t
	c.mu.Unlock()
	return t, nil
}

// Search queries The Session by name. Results carry metadata only; use
// Tune to fetch settings.
func (c *Client) Search(ctx context.Context, query string) ([]*Tune, error) {
	var wire sessionSearch
	u := fmt.Sprintf("%s/tunes/search?q=%s&format=json", c.base, url.QueryEscape(query))
	if err := c.getJSON(ctx, u, &wire); err != nil {
		return nil, err
	}
	out := make([]*Tune, 0, len(wire.Tunes))
	for i := range wire.Tunes {
		out = append(out, wire.Tunes[i].toTune())
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, u string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %v: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %v: %v", u, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %v: %w", u, err)
	}
	return nil
}

func (w *sessionTune) toTune() *Tune {
	t := &Tune{
		ID:   numberString(w.ID),
		Name: w.Name,
		Type: w.Type,
	}
	for _, s := range w.Settings {
		t.Settings = append(t.Settings, Setting{
			ID:  numberString(s.ID),
			Key: s.Key,
			ABC: s.ABC,
		})
	}
	return t
}

// numberString renders a JSON id as its decimal string; The Session
// returns numeric ids.
func numberString(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	return n.String()
}
