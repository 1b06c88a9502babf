package session

import (
	"sync"

	"github.com/iftv-ott/iftv_client/internal/identity"
)

// Store holds the single current session in memory. A nil session means
// logged out. Reads return copies so callers cannot mutate stored state.
type Store struct {
	mu      sync.RWMutex
	current *Session
}

// NewStore returns an empty, logged out store.
func NewStore() *Store {
	return &Store{}
}

// Get returns a copy of the current session, or nil.
func (s *Store) Get() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	cp := s.current.clone()
	return &cp
}

// Commit replaces the current session wholesale.
func (s *Store) Commit(sess Session) {
	cp := sess.clone()
	s.mu.Lock()
	s.current = &cp
	s.mu.Unlock()
}

// MutateUser merges partial into the current session's user. It is a no-op
// returning false when no session exists.
func (s *Store) MutateUser(partial identity.Profile) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return false
	}
	s.current.User = s.current.User.Merge(partial)
	return true
}

// Clear drops the current session.
func (s *Store) Clear() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}
