// Package memory provides in-memory storage implementations, used by default
// and in tests.
package memory

import (
	"context"
	"sync"

	"github.com/Whit-fire/MHFTSB/internal/position"
	"github.com/Whit-fire/MHFTSB/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]*position.Position
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{data: make(map[string]*position.Position)}
}

var _ storage.PositionStore = (*PositionStore)(nil)

// Insert stores a newly opened position. Returns ErrDuplicateKey if the id
// already exists.
func (s *PositionStore) Insert(_ context.Context, p *position.Position) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[p.ID]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *p
	s.data[p.ID] = &cp
	return nil
}

// UpdateClose overwrites the record with its final closed state. Returns
// ErrNotFound for an unknown id.
func (s *PositionStore) UpdateClose(_ context.Context, p *position.Position) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[p.ID]; !exists {
		return storage.ErrNotFound
	}
	cp := *p
	s.data[p.ID] = &cp
	return nil
}

// LoadOpen returns all records still marked open.
func (s *PositionStore) LoadOpen(_ context.Context) ([]*position.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*position.Position
	for _, p := range s.data {
		if p.Status == position.StatusOpen {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Get returns one record by id.
func (s *PositionStore) Get(_ context.Context, id string) (*position.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}
