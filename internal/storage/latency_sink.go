package storage

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Whit-fire/MHFTSB/internal/submit"
)

// Buffered sink defaults.
const (
	defaultFlushInterval = 5 * time.Second
	defaultFlushSize     = 256
	defaultBufferCap     = 4096
)

// BufferedSink collects latency samples in memory and flushes them to a
// LatencySampleStore in batches. Observe never blocks on the store; samples
// beyond the buffer capacity are dropped oldest-first.
type BufferedSink struct {
	store    LatencySampleStore
	logger   *log.Logger
	interval time.Duration
	size     int

	mu      sync.Mutex
	pending []submit.Sample
	dropped int
}

// BufferedSinkOption configures a BufferedSink.
type BufferedSinkOption func(*BufferedSink)

// WithFlushInterval overrides the periodic flush interval.
func WithFlushInterval(d time.Duration) BufferedSinkOption {
	return func(s *BufferedSink) { s.interval = d }
}

// WithFlushSize overrides the batch size that triggers an early flush.
func WithFlushSize(n int) BufferedSinkOption {
	return func(s *BufferedSink) { s.size = n }
}

// NewBufferedSink creates a sink writing to store.
func NewBufferedSink(store LatencySampleStore, logger *log.Logger, opts ...BufferedSinkOption) *BufferedSink {
	if logger == nil {
		logger = log.Default()
	}
	s := &BufferedSink{
		store:    store,
		logger:   logger,
		interval: defaultFlushInterval,
		size:     defaultFlushSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compile-time interface check.
var _ submit.LatencySink = (*BufferedSink)(nil)

// Observe buffers one sample.
func (s *BufferedSink) Observe(sample submit.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) >= defaultBufferCap {
		s.pending = s.pending[1:]
		s.dropped++
	}
	s.pending = append(s.pending, sample)
}

// Run flushes on every interval tick until ctx is cancelled, then performs a
// final flush with a short deadline.
func (s *BufferedSink) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			s.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

// Flush writes all buffered samples to the store. On failure the batch is
// dropped rather than retried; latency samples are diagnostics, not ledger
// entries.
func (s *BufferedSink) Flush(ctx context.Context) {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	dropped := s.dropped
	s.dropped = 0
	s.mu.Unlock()

	if dropped > 0 {
		s.logger.Printf("[latency-sink] dropped %d samples, buffer full", dropped)
	}
	if len(batch) == 0 {
		return
	}

	for len(batch) > 0 {
		n := len(batch)
		if n > s.size {
			n = s.size
		}
		if err := s.store.InsertBulk(ctx, batch[:n]); err != nil {
			s.logger.Printf("[latency-sink] flush failed, %d samples lost: %v", len(batch), err)
			return
		}
		batch = batch[n:]
	}
}

// Pending returns the number of buffered samples.
func (s *BufferedSink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
