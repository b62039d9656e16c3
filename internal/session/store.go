// Package session stores download session state and expires old sessions.
package session

import (
	"context"
	"sync"

	"github.com/iconidentify/dlab/internal/domain"
)

// Store defines session persistence operations. Get and List return
// snapshots; the live record is only mutated through Update.
type Store interface {
	Create(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, id domain.SessionID) (*domain.Session, error)
	Update(ctx context.Context, id domain.SessionID, fn func(*domain.Session)) (*domain.Session, error)
	Delete(ctx context.Context, id domain.SessionID) error
	List(ctx context.Context) ([]*domain.Session, error)
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*domain.Session
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[domain.SessionID]*domain.Session),
	}
}

// Create stores a new session.
func (m *MemoryStore) Create(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.ID] = s.Clone()
	return nil
}

// Get returns a snapshot of the session.
func (m *MemoryStore) Get(_ context.Context, id domain.SessionID) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s.Clone(), nil
}

// Update applies fn to the live session under the store lock and returns a
// snapshot of the result.
func (m *MemoryStore) Update(_ context.Context, id domain.SessionID, fn func(*domain.Session)) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	fn(s)
	return s.Clone(), nil
}

// Delete removes the session. Deleting an unknown session is not an error.
func (m *MemoryStore) Delete(_ context.Context, id domain.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

// List returns snapshots of all sessions.
func (m *MemoryStore) List(_ context.Context) ([]*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	return out, nil
}
