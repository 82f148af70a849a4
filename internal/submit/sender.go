package submit

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/Whit-fire/MHFTSB/internal/events"
	"github.com/Whit-fire/MHFTSB/internal/rpcpool"
)

const sendTimeout = 10 * time.Second

// ErrNoEndpoint means neither a bundle nor a direct endpoint is configured.
var ErrNoEndpoint = errors.New("submit: no endpoint configured")

// Result reports one submission attempt.
type Result struct {
	Signature string
	Endpoint  string
	Bundle    bool
	LatencyMS float64
}

// Sample is one latency observation handed to the sink.
type Sample struct {
	At        time.Time
	Operation string
	Endpoint  string
	LatencyMS float64
	Success   bool
}

// LatencySink receives latency observations. Implementations must not block.
type LatencySink interface {
	Observe(Sample)
}

type discardSink struct{}

func (discardSink) Observe(Sample) {}

// Submitter sends a signed transaction. The trader swaps in a simulator for
// dry runs.
type Submitter interface {
	Submit(ctx context.Context, txBase64 string) (*Result, error)
	Stats() Stats
}

// Sender submits through the registry: bundle endpoint when configured,
// highest-scoring direct endpoint otherwise.
type Sender struct {
	registry *rpcpool.Registry
	logger   *log.Logger
	log      events.Log
	sink     LatencySink

	mu            sync.Mutex
	total         int
	successful    int
	failed        int
	avgLatencyMS  float64
	lastError     string
	lastErrorType string
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithLatencySink forwards per-submission latency samples.
func WithLatencySink(sink LatencySink) SenderOption {
	return func(s *Sender) {
		s.sink = sink
	}
}

// WithEventLog emits a record per submission outcome.
func WithEventLog(l events.Log) SenderOption {
	return func(s *Sender) {
		s.log = l
	}
}

// NewSender creates a sender submitting through the registry.
func NewSender(registry *rpcpool.Registry, logger *log.Logger, opts ...SenderOption) *Sender {
	if logger == nil {
		logger = log.Default()
	}
	s := &Sender{
		registry: registry,
		logger:   logger,
		log:      events.Discard{},
		sink:     discardSink{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit sends the transaction once and reports the outcome. A returned error
// carries the raw provider text; the transaction is never re-sent.
func (s *Sender) Submit(ctx context.Context, txBase64 string) (*Result, error) {
	ep, bundle := s.pickEndpoint()
	if ep == nil {
		return nil, ErrNoEndpoint
	}

	callCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	start := time.Now()
	sig, err := ep.Client.SendTransaction(callCtx, txBase64)
	latency := float64(time.Since(start).Milliseconds())

	s.sink.Observe(Sample{
		At:        start,
		Operation: "send_transaction",
		Endpoint:  ep.URL,
		LatencyMS: latency,
		Success:   err == nil,
	})

	if err != nil {
		s.registry.Penalize(ep.URL, err)
		cls := Classify(err)
		s.recordFailure(latency, cls)
		s.log.Emit(events.Record{
			Level:     events.LevelWarn,
			Component: "submit",
			Message:   "submission failed",
			Data:      map[string]interface{}{"endpoint": ep.URL, "type": cls.Type, "expected": cls.Expected, "error": cls.Raw},
			LatencyMS: latency,
		})
		s.logger.Printf("[submit] failed via %s (%s): %v", ep.URL, cls.Type, err)
		return &Result{Endpoint: ep.URL, Bundle: bundle, LatencyMS: latency}, err
	}

	s.recordSuccess(latency)
	s.log.Emit(events.Record{
		Level:     events.LevelTrade,
		Component: "submit",
		Message:   "transaction submitted",
		Data:      map[string]interface{}{"signature": sig, "endpoint": ep.URL, "bundle": bundle},
		LatencyMS: latency,
	})
	s.logger.Printf("[submit] sent %s... via %s latency=%.1fms", short(sig), ep.URL, latency)
	return &Result{Signature: sig, Endpoint: ep.URL, Bundle: bundle, LatencyMS: latency}, nil
}

func (s *Sender) pickEndpoint() (*rpcpool.Endpoint, bool) {
	if ep := s.registry.BundleEndpoint(); ep != nil {
		return ep, true
	}
	return s.registry.BestFetchEndpoint(), false
}

func (s *Sender) recordSuccess(latency float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.successful++
	s.avgLatencyMS += (latency - s.avgLatencyMS) / float64(s.successful)
}

func (s *Sender) recordFailure(latency float64, cls Classification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.failed++
	s.lastError = cls.Raw
	s.lastErrorType = cls.Type
}

// Stats is a point-in-time submission summary.
type Stats struct {
	Total         int     `json:"total_executions"`
	Successful    int     `json:"successful"`
	Failed        int     `json:"failed"`
	AvgLatencyMS  float64 `json:"avg_latency_ms"`
	SuccessRate   float64 `json:"success_rate"`
	LastError     string  `json:"last_error,omitempty"`
	LastErrorType string  `json:"last_error_type,omitempty"`
}

// Stats returns the current counters.
func (s *Sender) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Total:         s.total,
		Successful:    s.successful,
		Failed:        s.failed,
		AvgLatencyMS:  s.avgLatencyMS,
		LastError:     s.lastError,
		LastErrorType: s.lastErrorType,
	}
	if s.total > 0 {
		st.SuccessRate = float64(s.successful) / float64(s.total) * 100
	}
	return st
}

func short(sig string) string {
	if len(sig) > 12 {
		return sig[:12]
	}
	return sig
}
