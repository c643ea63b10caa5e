package clubauth

import (
	"context"
	"sync"
)

// MemoryTokenStore is a TokenStore for tests and ephemeral sessions.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
	set   bool
}

// NewMemoryTokenStore returns an empty in-memory store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Get(_ context.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.set, nil
}

func (s *MemoryTokenStore) Set(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.set = true
	return nil
}

func (s *MemoryTokenStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.set = false
	return nil
}

var _ TokenStore = (*MemoryTokenStore)(nil)
