package vault

import (
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store for testing.
type MemoryStore struct {
	mu        sync.RWMutex
	passwords map[string]string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{passwords: make(map[string]string)}
}

func (s *MemoryStore) Set(name, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passwords[name] = password
	return nil
}

func (s *MemoryStore) Get(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pw, ok := s.passwords[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return pw, nil
}

func (s *MemoryStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.passwords, name)
	return nil
}
