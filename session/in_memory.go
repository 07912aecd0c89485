package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/agentkernel/core"
)

var (
	// ErrNotFound is returned for an unknown session id.
	ErrNotFound = errors.New("session not found")
	// ErrExists is returned when creating a session whose id is taken.
	ErrExists = errors.New("session already exists")
)

// Store persists sessions between dispatch rounds.
type Store interface {
	Create(s core.Session) error
	Get(id string) (core.Session, error)
	Apply(id string, patch core.SessionPatch) (core.Session, error)
	Delete(id string) error
}

// InMemoryStore is a volatile Store keeping sessions in a process local map.
// It is safe for concurrent access and best suited for tests or ephemeral
// runs. Sessions are cloned on the way in and out.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]core.Session
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]core.Session)}
}

// Create stores a new session.
func (s *InMemoryStore) Create(sess core.Session) error {
	if sess.ID == "" {
		return core.NewInvalidConfigError("session.id", "must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, sess.ID)
	}
	s.sessions[sess.ID] = sess.Clone()

	return nil
}

// Get returns a copy of the session.
func (s *InMemoryStore) Get(id string) (core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return core.Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return sess.Clone(), nil
}

// Apply merges patch into the stored session and returns the result.
// Concurrent Apply calls on the same session are serialized.
func (s *InMemoryStore) Apply(id string, patch core.SessionPatch) (core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return core.Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	merged := core.MergeSession(sess, patch)
	s.sessions[id] = merged

	return merged.Clone(), nil
}

// Delete removes a session.
func (s *InMemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.sessions, id)

	return nil
}

// IDs returns the stored session ids in sorted order.
func (s *InMemoryStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids
}

var _ Store = (*InMemoryStore)(nil)
