package election

import "sync"

// Status is the concurrently-readable snapshot of the FSM that the HTTP
// peer-probe handlers consult. bollywood's Engine has no synchronous Ask,
// so the handlers (which run on net/http's own goroutines, outside the
// actor) read this directly rather than round-tripping through the Actor's
// mailbox — the Actor is its only writer.
type Status struct {
	mu        sync.RWMutex
	selfURL   string
	priority  int
	state     State
	activeURL string
}

func newStatus(selfURL string, priority int) *Status {
	return &Status{selfURL: selfURL, priority: priority, state: Initial}
}

// Snapshot returns the fields the HTTP handlers need in one consistent read.
func (s *Status) Snapshot() (state State, priority int, selfURL, activeURL string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.priority, s.selfURL, s.activeURL
}

func (s *Status) set(state State, activeURL string) {
	s.mu.Lock()
	s.state = state
	s.activeURL = activeURL
	s.mu.Unlock()
}
