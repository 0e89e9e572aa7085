package store

import (
	"context"
	"sync"

	"github.com/vmbid/matching-engine/internal/model"
)

// MemoryStore implements Store with an in-memory slice. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	fills  []model.Fill
	byUser map[string][]int
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byUser: make(map[string][]int),
	}
}

func (s *MemoryStore) InsertFills(_ context.Context, fills []model.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range fills {
		s.byUser[f.Username] = append(s.byUser[f.Username], len(s.fills))
		s.fills = append(s.fills, f)
	}
	return nil
}

func (s *MemoryStore) GetFillsByUser(_ context.Context, username string) ([]model.Fill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.byUser[username]
	result := make([]model.Fill, 0, len(idx))
	for _, i := range idx {
		result = append(result, s.fills[i])
	}
	return result, nil
}

// Len returns the number of fills recorded.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fills)
}
