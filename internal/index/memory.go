package index

import (
	"context"
	"fmt"
	"sync"
)

type MemoryStore struct {
	mu      sync.RWMutex
	indexes map[string]*Flat
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{indexes: make(map[string]*Flat)}
}

func (s *MemoryStore) Exists(_ context.Context, docHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indexes[docHash]
	return ok, nil
}

func (s *MemoryStore) Save(_ context.Context, docHash string, entries []Entry) error {
	cp := make([]Entry, len(entries))
	copy(cp, entries)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[docHash] = NewFlat(cp)
	return nil
}

func (s *MemoryStore) Search(_ context.Context, docHash string, vector []float32, k int) ([]Result, error) {
	s.mu.RLock()
	flat, ok := s.indexes[docHash]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, docHash)
	}
	return flat.Search(vector, k), nil
}

func (s *MemoryStore) CountChunks(_ context.Context, docHash string) (int, error) {
	s.mu.RLock()
	flat, ok := s.indexes[docHash]
	s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, docHash)
	}
	return flat.Len(), nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.indexes), nil
}
