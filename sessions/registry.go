package sessions

import (
	"errors"
	"sync"
)

var (
	// ErrSessionExists is returned when registering an id that is already taken.
	ErrSessionExists = errors.New("session already registered")
	// ErrSessionNotFound is returned for lookups of unknown ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrEmptySessionID is returned when registering a session without an id.
	ErrEmptySessionID = errors.New("session id is empty")
)

// State is the lifecycle state of a session.
type State string

const (
	StatePending State = "pending"
	StateActive  State = "active"
	StateClosed  State = "closed"
)

// Session is anything the registry can hold.
type Session interface {
	SessionID() string
}

// Registry maps session ids to live sessions. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Session)}
}

// Register adds s under its id.
func (r *Registry) Register(s Session) error {
	id := s.SessionID()
	if id == "" {
		return ErrEmptySessionID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[id]; exists {
		return ErrSessionExists
	}
	r.sessions[id] = s
	return nil
}

// Lookup returns the session registered under id.
func (r *Registry) Lookup(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// RemoveIfSame removes id only while it still maps to s. It reports whether
// an entry was removed.
func (r *Registry) RemoveIfSame(id string, s Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[id]; ok && cur == s {
		delete(r.sessions, id)
		return true
	}
	return false
}

// Remove deletes and returns the session registered under id.
func (r *Registry) Remove(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the registered sessions without removing them.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Drain removes every session and returns them.
func (r *Registry) Drain() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		out = append(out, s)
		delete(r.sessions, id)
	}
	return out
}
