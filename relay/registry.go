package relay

import (
	"sync"

	"github.com/oddbit-project/chargebridge/watchdog"
)

// Registry tracks live sessions by connection id
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Add registers the session. When the id is already taken the previous
// session is replaced and returned so the caller can terminate it; a device
// reconnecting always gets fresh state.
func (r *Registry) Add(s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.sessions[s.ID()]
	r.sessions[s.ID()] = s
	return prev
}

// Remove unregisters s. A session that was superseded by a newer one under
// the same id leaves the newer registration untouched.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[s.ID()]; ok && current == s {
		delete(r.sessions, s.ID())
	}
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Count returns the number of live sessions
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sessions returns a point-in-time copy of all live sessions
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Snapshot renders the registry as watchdog targets
func (r *Registry) Snapshot() []watchdog.Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]watchdog.Target, 0, len(r.sessions))
	for id, s := range r.sessions {
		out = append(out, watchdog.Target{ID: id, LastSeen: s.LastSeen()})
	}
	return out
}
