package identity

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is a Finder used when the DB is not configured, and by tests.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryStore constructs an empty in-memory Finder.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]User)}
}

// Put inserts or replaces a user row.
func (s *MemoryStore) Put(u User) {
	if s == nil || strings.TrimSpace(u.ID) == "" {
		return
	}
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
}

// FindByID resolves a user ID to its profile summary.
func (s *MemoryStore) FindByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	u, ok := s.users[id]
	s.mu.RUnlock()

	if !ok {
		return User{}, NotFoundError{ID: id}
	}
	return u, nil
}
