package storage

import (
	"context"
	"log"
	"time"

	"github.com/Whit-fire/MHFTSB/internal/events"
)

const eventAppendTimeout = 3 * time.Second

// EventLogSink adapts an EventStore to the events.Log interface. Appends run
// on their own goroutine so emitters never block on the database; a failed
// append is logged and lost, the in-memory feed remains authoritative.
type EventLogSink struct {
	store  EventStore
	logger *log.Logger
}

// NewEventLogSink creates a sink writing to store.
func NewEventLogSink(store EventStore, logger *log.Logger) *EventLogSink {
	if logger == nil {
		logger = log.Default()
	}
	return &EventLogSink{store: store, logger: logger}
}

var _ events.Log = (*EventLogSink)(nil)

// Emit persists the record asynchronously.
func (s *EventLogSink) Emit(rec events.Record) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventAppendTimeout)
		defer cancel()
		if err := s.store.Append(ctx, rec); err != nil {
			s.logger.Printf("[event-sink] append failed: %v", err)
		}
	}()
}
