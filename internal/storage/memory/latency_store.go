package memory

import (
	"context"
	"sync"

	"github.com/Whit-fire/MHFTSB/internal/storage"
	"github.com/Whit-fire/MHFTSB/internal/submit"
)

// LatencyStore is an in-memory implementation of storage.LatencySampleStore.
type LatencyStore struct {
	mu   sync.RWMutex
	data []submit.Sample
}

// NewLatencyStore creates a new in-memory latency sample store.
func NewLatencyStore() *LatencyStore {
	return &LatencyStore{}
}

var _ storage.LatencySampleStore = (*LatencyStore)(nil)

// InsertBulk stores a batch of samples.
func (s *LatencyStore) InsertBulk(_ context.Context, samples []submit.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, samples...)
	return nil
}

// All returns a copy of every stored sample.
func (s *LatencyStore) All() []submit.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]submit.Sample(nil), s.data...)
}
