// ABOUTME: Per-contact fixed-window reply quota enforcement.
// ABOUTME: Bursts at window boundaries are accepted as a known limitation.

package ratelimit

import (
	"sync"
	"time"
)

// window tracks one contact's count within the current fixed window.
type window struct {
	count    int
	resetAt  time.Time
	lastSeen time.Time
}

// Limiter enforces a fixed-window reply quota per contact. On each attempt the
// window is reset if elapsed, denied if the count is at the maximum, or
// incremented and allowed otherwise. This is a fixed-window counter, not a
// sliding log.
type Limiter struct {
	mu       sync.Mutex
	contacts map[string]*window
	max      int
	interval time.Duration
}

// New creates a limiter allowing max replies per contact per interval.
func New(max int, interval time.Duration) *Limiter {
	return &Limiter{
		contacts: make(map[string]*window),
		max:      max,
		interval: interval,
	}
}

// Allow reports whether the contact may receive another reply in the current
// window, consuming one slot when it does.
func (l *Limiter) Allow(contactID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.contacts[contactID]
	if !ok {
		w = &window{resetAt: now.Add(l.interval)}
		l.contacts[contactID] = w
	}

	if now.After(w.resetAt) {
		w.count = 0
		w.resetAt = now.Add(l.interval)
	}

	w.lastSeen = now
	if w.count >= l.max {
		return false
	}

	w.count++
	return true
}

// Remaining reports how many replies are left for the contact in the current
// window without consuming a slot.
func (l *Limiter) Remaining(contactID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.contacts[contactID]
	if !ok || time.Now().After(w.resetAt) {
		return l.max
	}
	if w.count >= l.max {
		return 0
	}
	return l.max - w.count
}

// PurgeStale removes contacts idle longer than grace and returns how many were
// removed. Called by the engine's periodic sweep.
func (l *Limiter) PurgeStale(grace time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, w := range l.contacts {
		if now.Sub(w.lastSeen) > grace {
			delete(l.contacts, id)
			removed++
		}
	}
	return removed
}
