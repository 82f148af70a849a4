package memory

import (
	"context"
	"sync"

	"github.com/Whit-fire/MHFTSB/internal/events"
	"github.com/Whit-fire/MHFTSB/internal/storage"
)

// eventHistoryLimit bounds the in-memory event history.
const eventHistoryLimit = 10_000

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data []events.Record
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{}
}

var _ storage.EventStore = (*EventStore)(nil)

// Append stores one record, discarding the oldest past the history limit.
func (s *EventStore) Append(_ context.Context, rec events.Record) error {
	if rec.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, rec)
	if len(s.data) > eventHistoryLimit {
		s.data = s.data[len(s.data)-eventHistoryLimit:]
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *EventStore) Recent(_ context.Context, limit int) ([]events.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.data) {
		limit = len(s.data)
	}
	out := make([]events.Record, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, s.data[len(s.data)-1-i])
	}
	return out, nil
}
