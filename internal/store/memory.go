package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, entries: make(map[string]*Entry)}
}

func (s *MemoryStore) Get(_ context.Context, token string) (*Entry, error) {
	s.mu.RLock()
	e, ok := s.entries[normalize(token)]
	s.mu.RUnlock()
	if !ok || expired(e, s.ttl, time.Now()) {
		return nil, ErrNotFound
	}
	return e, nil
}

func (s *MemoryStore) Put(_ context.Context, e *Entry) error {
	s.mu.Lock()
	s.entries[normalize(e.Token)] = e
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.entries, normalize(token))
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Len returns the number of entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
