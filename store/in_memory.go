package store

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore is a volatile Store keeping records in a process local map.
// It is safe for concurrent access. Records are cloned on the way in and out
// to prevent external mutation of internal state.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]RunRecord
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]RunRecord)}
}

// Save inserts or replaces the record with rec.ID.
func (s *InMemoryStore) Save(_ context.Context, rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec.Clone()
	return nil
}

// Get returns a clone of the record with id.
func (s *InMemoryStore) Get(_ context.Context, id string) (RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return RunRecord{}, ErrNotFound
	}
	return rec.Clone(), nil
}

// List returns all records ordered by start time, then id.
func (s *InMemoryStore) List(_ context.Context) ([]RunRecord, error) {
	s.mu.RLock()
	out := make([]RunRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}
