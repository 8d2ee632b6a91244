package session

import (
	"fmt"
	"sync"
	"time"
)

// Registry holds the walking session of every user that has one.
// At most one session exists per user.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a new session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Register adds a session to the registry.
// Returns an error if the user already has a session.
func (r *Registry) Register(s *Session) error {
	if s == nil {
		return fmt.Errorf("cannot register nil session")
	}

	if s.UserID == "" {
		return fmt.Errorf("session user ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.UserID]; exists {
		return fmt.Errorf("user %s already has a session", s.UserID)
	}

	r.sessions[s.UserID] = s
	return nil
}

// GetOrCreate returns the user's session, creating and registering one with
// create if none exists. The session is marked active.
func (r *Registry) GetOrCreate(userID string, create func(userID string) *Session) *Session {
	r.mu.RLock()
	s, exists := r.sessions[userID]
	if exists {
		// Touched under the lock so PruneIdle cannot remove it in between.
		s.Touch()
	}
	r.mu.RUnlock()
	if exists {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, exists := r.sessions[userID]; exists {
		s.Touch()
		return s
	}

	s = create(userID)
	r.sessions[userID] = s
	return s
}

// Unregister removes a user's session and closes it.
// The session is always removed from the registry.
func (r *Registry) Unregister(userID string) error {
	r.mu.Lock()
	s, exists := r.sessions[userID]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("no session for user %s", userID)
	}

	delete(r.sessions, userID)
	r.mu.Unlock()

	// Close after releasing the lock; it waits for in-flight queries.
	s.Close()

	return nil
}

// Get retrieves a user's session and marks it active.
// Returns nil if the user has none.
func (r *Registry) Get(userID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.sessions[userID]
	if s != nil {
		s.Touch()
	}
	return s
}

// List returns all registered sessions.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}

	return sessions
}

// UnregisterAll removes and closes every session.
func (r *Registry) UnregisterAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for userID, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, userID)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// PruneIdle removes and closes every session that is not tracking and has
// not been used since cutoff. Returns the number of sessions removed.
func (r *Registry) PruneIdle(cutoff time.Time) int {
	r.mu.Lock()
	var pruned []*Session
	for userID, s := range r.sessions {
		if s.Idle(cutoff) {
			pruned = append(pruned, s)
			delete(r.sessions, userID)
		}
	}
	r.mu.Unlock()

	for _, s := range pruned {
		s.Close()
	}

	return len(pruned)
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}
