package queue

import (
	"context"
	"sync"
)

// MemoryStore is the in-process Store used in tests and when Redis is
// not configured. Entries do not survive a restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries []*Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Push(ctx context.Context, entries ...*Entry) error {
	s.mu.Lock()
	s.entries = append(s.entries, entries...)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) PushFront(ctx context.Context, entries ...*Entry) error {
	s.mu.Lock()
	s.entries = append(append([]*Entry{}, entries...), s.entries...)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) PopAll(ctx context.Context) ([]*Entry, error) {
	s.mu.Lock()
	batch := s.entries
	s.entries = nil
	s.mu.Unlock()
	return batch, nil
}

func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	s.mu.Lock()
	n := len(s.entries)
	s.mu.Unlock()
	return n, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
