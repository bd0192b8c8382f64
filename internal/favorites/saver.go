package favorites

import (
	"sync"
	"time"

	"github.com/bep/debounce"
)

type prefKey struct {
	userID string
	tuneID string
}

// Saver coalesces rapid preference changes (drag-reordering a tune's
// settings) into one write per tune after the user settles.
type Saver struct {
	store    *Store
	debounce func(func())
	onError  func(error)

	mu      sync.Mutex
	pending map[prefKey][]string
}

// NewSaver writes at most one preference document per key per settle
// window. onError receives failures from the deferred writes; nil
// discards them.
func NewSaver(store *Store, settle time.Duration, onError func(error)) *Saver {
	if onError == nil {
		onError = func(error) {}
	}
	return &Saver{
		store:    store,
		debounce: debounce.New(settle),
		onError:  onError,
		pending:  make(map[prefKey][]string),
	}
}

// Save records the newest setting order for one tune and schedules the
// write. Only the last order observed per (user, tune) before the
// settle window elapses is persisted.
func (s *Saver) Save(userID, tuneID string, orderedIDs []string) {
	s.mu.Lock()
	s.pending[prefKey{userID, tuneID}] = append([]string(nil), orderedIDs...)
	s.mu.Unlock()

	s.debounce(s.flush)
}

func (s *Saver) flush() {
	s.mu.Lock()
	batch := s.pending
	s.pending = make(map[prefKey][]string)
	s.mu.Unlock()

	for k, ids := range batch {
		if err := s.store.SavePreferences(k.userID, k.tuneID, ids); err != nil {
			s.onError(err)
		}
	}
}
