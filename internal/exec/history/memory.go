package history

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore provides in-memory history storage, used in tests and
// when persistence is disabled but recent history is still wanted.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
	byID    map[string]*Entry
	max     int
}

// Ensure MemoryStore implements Store interface
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory store keeping at most max entries
// (zero or negative means unbounded).
func NewMemoryStore(max int) *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]*Entry),
		max:  max,
	}
}

// Save appends an entry, evicting the oldest when over capacity
func (s *MemoryStore) Save(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry)
	s.byID[entry.ID] = entry

	if s.max > 0 && len(s.entries) > s.max {
		evicted := s.entries[0]
		s.entries = s.entries[1:]
		delete(s.byID, evicted.ID)
	}
	return nil
}

// Get retrieves a history entry by ID
func (s *MemoryStore) Get(ctx context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("history entry not found: %s", id)
	}
	return entry, nil
}

// List returns the most recent entries, newest first
func (s *MemoryStore) List(ctx context.Context, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}

	result := make([]*Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.entries[i])
	}
	return result, nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}
