package submit

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

const simAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Simulator stands in for the live sender during dry runs: random latency in
// a realistic band, a configurable success rate, synthetic signatures.
type Simulator struct {
	SuccessRate float64 // defaults to 0.9 when zero

	mu           sync.Mutex
	rng          *rand.Rand
	total        int
	successful   int
	failed       int
	avgLatencyMS float64
}

// NewSimulator creates a simulator with a deterministic seed for tests.
func NewSimulator(seed int64) *Simulator {
	return &Simulator{rng: rand.New(rand.NewSource(seed))}
}

// Submit pretends to send, sleeping for a plausible round trip.
func (s *Simulator) Submit(ctx context.Context, txBase64 string) (*Result, error) {
	s.mu.Lock()
	delay := time.Duration(30+s.rng.Intn(50)) * time.Millisecond
	rate := s.SuccessRate
	if rate == 0 {
		rate = 0.9
	}
	success := s.rng.Float64() < rate
	sig := s.randomSignature()
	s.mu.Unlock()

	start := time.Now()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(delay):
	}
	latency := float64(time.Since(start).Milliseconds())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if !success {
		s.failed++
		return &Result{LatencyMS: latency}, fmt.Errorf("simulated failure")
	}
	s.successful++
	s.avgLatencyMS += (latency - s.avgLatencyMS) / float64(s.successful)
	return &Result{Signature: sig, Endpoint: "simulated", LatencyMS: latency}, nil
}

func (s *Simulator) randomSignature() string {
	out := make([]byte, 64)
	for i := range out {
		out[i] = simAlphabet[s.rng.Intn(len(simAlphabet))]
	}
	return "sim_" + string(out)
}

// Stats returns the simulated counters.
func (s *Simulator) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Total:        s.total,
		Successful:   s.successful,
		Failed:       s.failed,
		AvgLatencyMS: s.avgLatencyMS,
	}
	if s.total > 0 {
		st.SuccessRate = float64(s.successful) / float64(s.total) * 100
	}
	return st
}

var (
	_ Submitter = (*Sender)(nil)
	_ Submitter = (*Simulator)(nil)
)
