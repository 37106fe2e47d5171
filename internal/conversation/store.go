// ABOUTME: Thread-safe per-contact conversation history with bounded length and TTL.
// ABOUTME: Oldest turns are evicted FIFO; idle contacts are purged by a periodic sweep.

package conversation

import (
	"sync"
	"time"
)

// Turn records one exchanged pair for a contact.
type Turn struct {
	Incoming  string
	Reply     string
	Language  string
	Timestamp time.Time
}

// contactHistory holds the ordered turns for one contact plus its last activity.
type contactHistory struct {
	turns    []Turn
	lastSeen time.Time
}

// Store provides a thread-safe, size-limited conversation history per contact.
// Each contact keeps at most maxTurns turns in insertion order; inserting past
// the cap evicts the oldest turn. Contacts idle longer than the retention
// window are removed when the owner calls Purge (the reply engine drives this
// on its periodic sweep).
type Store struct {
	mu        sync.RWMutex
	contacts  map[string]*contactHistory
	maxTurns  int
	retention time.Duration
}

// NewStore creates a conversation store with the given per-contact turn cap and
// retention window.
func NewStore(maxTurns int, retention time.Duration) *Store {
	return &Store{
		contacts:  make(map[string]*contactHistory),
		maxTurns:  maxTurns,
		retention: retention,
	}
}

// Append records a new turn for the contact, evicting the oldest turn if the
// contact is at capacity.
func (s *Store) Append(contactID string, turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.contacts[contactID]
	if !ok {
		h = &contactHistory{}
		s.contacts[contactID] = h
	}

	h.turns = append(h.turns, turn)
	if len(h.turns) > s.maxTurns {
		// Drop oldest, keep order of the rest
		h.turns = h.turns[len(h.turns)-s.maxTurns:]
	}
	h.lastSeen = time.Now()
}

// Recent returns up to n most recent turns for the contact, oldest first.
// Returns nil if the contact has no history.
func (s *Store) Recent(contactID string, n int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.contacts[contactID]
	if !ok || len(h.turns) == 0 {
		return nil
	}

	start := 0
	if len(h.turns) > n {
		start = len(h.turns) - n
	}

	out := make([]Turn, len(h.turns)-start)
	copy(out, h.turns[start:])
	return out
}

// Len reports the number of stored turns for the contact.
func (s *Store) Len(contactID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if h, ok := s.contacts[contactID]; ok {
		return len(h.turns)
	}
	return 0
}

// Clear removes all history for the contact unconditionally.
func (s *Store) Clear(contactID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contacts, contactID)
}

// Purge removes contacts whose most recent turn is older than the retention
// window and returns how many were removed.
func (s *Store) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, h := range s.contacts {
		if now.Sub(h.lastSeen) > s.retention {
			delete(s.contacts, id)
			removed++
		}
	}
	return removed
}
