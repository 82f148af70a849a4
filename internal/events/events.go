// Package events carries the structured activity feed: every significant
// transition (candidate seen, buy submitted, position closed, endpoint
// penalized) is emitted as a Record for the status surface and for storage.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level classifies a record.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelTrade Level = "trade"
)

// Record is one emitted event.
type Record struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Level     Level                  `json:"level"`
	Component string                 `json:"component"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	LatencyMS float64                `json:"latency_ms,omitempty"`
}

// Log receives records.
type Log interface {
	Emit(Record)
}

// Ring is a fixed-capacity in-memory log. The newest records win; readers get
// them newest-first.
type Ring struct {
	mu      sync.Mutex
	records []Record
	next    int
	full    bool
}

// DefaultRingSize bounds the in-memory feed.
const DefaultRingSize = 1000

// NewRing creates a ring log holding up to size records.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{records: make([]Record, size)}
}

// Emit stores the record, stamping ID and timestamp when absent.
func (r *Ring) Emit(rec Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[r.next] = rec
	r.next++
	if r.next == len(r.records) {
		r.next = 0
		r.full = true
	}
}

// Recent returns up to n records, newest first.
func (r *Ring) Recent(n int) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.records)
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.next - 1 - i + len(r.records)) % len(r.records)
		out = append(out, r.records[idx])
	}
	return out
}

// Len returns the number of stored records.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.records)
	}
	return r.next
}

// Tee fans a record out to several logs.
type Tee []Log

func (t Tee) Emit(rec Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	for _, l := range t {
		l.Emit(rec)
	}
}

// Discard drops everything. Useful as a default and in tests.
type Discard struct{}

func (Discard) Emit(Record) {}
