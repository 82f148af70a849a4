package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Whit-fire/MHFTSB/internal/submit"
)

type captureStore struct {
	mu      sync.Mutex
	batches [][]submit.Sample
	err     error
}

func (s *captureStore) InsertBulk(_ context.Context, samples []submit.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, append([]submit.Sample(nil), samples...))
	return nil
}

func (s *captureStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestBufferedSink_FlushWritesAll(t *testing.T) {
	store := &captureStore{}
	sink := NewBufferedSink(store, nil, WithFlushSize(2))

	for i := 0; i < 5; i++ {
		sink.Observe(submit.Sample{Operation: "send_transaction", LatencyMS: float64(i)})
	}
	require.Equal(t, 5, sink.Pending())

	sink.Flush(context.Background())

	assert.Equal(t, 0, sink.Pending())
	assert.Equal(t, 5, store.total())
	// 5 samples with batch size 2 arrive as 2+2+1.
	assert.Len(t, store.batches, 3)
}

func TestBufferedSink_FlushEmptyIsNoop(t *testing.T) {
	store := &captureStore{}
	sink := NewBufferedSink(store, nil)

	sink.Flush(context.Background())
	assert.Empty(t, store.batches)
}

func TestBufferedSink_StoreErrorDropsBatch(t *testing.T) {
	store := &captureStore{err: errors.New("clickhouse down")}
	sink := NewBufferedSink(store, nil)

	sink.Observe(submit.Sample{Operation: "send_transaction"})
	sink.Flush(context.Background())

	// Batch is not retried and not re-buffered.
	assert.Equal(t, 0, sink.Pending())
	assert.Empty(t, store.batches)
}
