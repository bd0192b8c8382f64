// Package arbiter enforces the at-most-one-sounding-instance invariant.
// Each player registers a preempt callback; acquiring the lock for a new
// instance synchronously silences the previous holder before the acquirer
// proceeds, so exactly one audible source exists at any time.
package arbiter

import "sync"

// Arbiter is the process-wide sounding-instance lock. The zero value is
// not usable; call New.
type Arbiter struct {
	mu       sync.Mutex
	holder   string
	preempts map[string]func()
}

func New() *Arbiter {
	return &Arbiter{preempts: make(map[string]func())}
}

// TryAcquire makes id the sounding instance and returns the previous
// holder's id ("" if none). preempt is remembered and invoked later if a
// different instance takes the lock. When another instance held the lock,
// its preempt callback runs before TryAcquire returns; the callback
// executes outside the internal lock so the preempted instance may call
// Release (which finds it is no longer the holder and no-ops).
func (a *Arbiter) TryAcquire(id string, preempt func()) (previous string) {
	a.mu.Lock()
	previous = a.holder
	a.preempts[id] = preempt
	if previous == id {
		a.mu.Unlock()
		return previous
	}
	var cb func()
	if previous != "" {
		cb = a.preempts[previous]
		delete(a.preempts, previous)
	}
	a.holder = id
	a.mu.Unlock()
	if cb != nil {
		cb()
	}
	return previous
}

// Release gives up the lock if id still holds it.
func (a *Arbiter) Release(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.preempts, id)
	if a.holder == id {
		a.holder = ""
	}
}

// Holder returns the current sounding instance id, "" if none.
func (a *Arbiter) Holder() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.holder
}
