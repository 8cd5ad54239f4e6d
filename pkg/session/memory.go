package session

import (
	"context"
	"sync"
)

// MemoryStore keeps the id for the lifetime of the process only.
type MemoryStore struct {
	mu sync.Mutex
	id string
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) SessionID(_ context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.id != ""
}

func (s *MemoryStore) SetSessionID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = ""
	return nil
}

func (s *MemoryStore) Close() error { return nil }
