// ABOUTME: Bounded set of contacts that received at least one reply this process lifetime.
// ABOUTME: Reporting-only; cleared wholesale when it grows past its soft cap.

package conversation

import "sync"

// ActiveSet tracks contacts with at least one sent reply. It exists purely for
// status reporting. When the set exceeds its soft cap it is cleared wholesale
// rather than evicted entry by entry.
type ActiveSet struct {
	mu      sync.Mutex
	members map[string]struct{}
	softCap int
}

// NewActiveSet creates an active-chat set with the given soft cap.
func NewActiveSet(softCap int) *ActiveSet {
	return &ActiveSet{
		members: make(map[string]struct{}),
		softCap: softCap,
	}
}

// Mark records the contact as active.
func (a *ActiveSet) Mark(contactID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.members) >= a.softCap {
		a.members = make(map[string]struct{})
	}
	a.members[contactID] = struct{}{}
}

// Count reports the number of active contacts.
func (a *ActiveSet) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.members)
}
