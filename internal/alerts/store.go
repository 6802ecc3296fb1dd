package alerts

import (
	"sync"

	"airwatch/internal/model"
)

// Store holds the active alert set as a replaceable snapshot: each
// successful fetch overwrites the prior set wholesale, it is never a merge.
type Store struct {
	mu       sync.RWMutex
	snapshot []model.Alert
}

func NewStore() *Store {
	return &Store{}
}

// Replace normalizes the incoming records and swaps them in as the new
// active set.
func (s *Store) Replace(list []model.Alert) {
	next := make([]model.Alert, 0, len(list))
	for _, a := range list {
		next = append(next, Normalize(a))
	}
	s.mu.Lock()
	s.snapshot = next
	s.mu.Unlock()
}

// List returns a copy of the current snapshot in arrival order.
func (s *Store) List() []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Alert, len(s.snapshot))
	copy(out, s.snapshot)
	return out
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshot)
}

// CountBySeverity returns the number of critical and warning alerts in the
// current snapshot.
func (s *Store) CountBySeverity() (critical, warning int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.snapshot {
		if a.Severity == SeverityCritical {
			critical++
		} else {
			warning++
		}
	}
	return critical, warning
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.snapshot = nil
	s.mu.Unlock()
}
