// Package gate bounds the number of concurrently in-flight candidate
// pipelines. It is the system's sole backpressure mechanism: there is no
// queue, excess candidates are dropped.
package gate

import (
	"log"
	"sync"
)

// Gate is an in-flight admission counter. TryEnter and Exit are the only
// mutations and both run under one mutex; the counter is shared by every
// concurrently running pipeline.
type Gate struct {
	logger *log.Logger

	mu           sync.Mutex
	maxInFlight  int
	inFlight     int
	dropped      int64
	totalEntered int64
}

// New creates a gate admitting at most maxInFlight concurrent pipelines.
func New(maxInFlight int, logger *log.Logger) *Gate {
	if logger == nil {
		logger = log.Default()
	}
	return &Gate{maxInFlight: maxInFlight, logger: logger}
}

// TryEnter atomically tests and increments the in-flight counter. At the
// ceiling it refuses, counts the drop, and the candidate is gone for good.
func (g *Gate) TryEnter(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inFlight >= g.maxInFlight {
		g.dropped++
		g.logger.Printf("[gate] DROP max in-flight (%d/%d) candidate=%s", g.inFlight, g.maxInFlight, short(id))
		return false
	}
	g.inFlight++
	g.totalEntered++
	g.logger.Printf("[gate] ENTER (%d/%d) candidate=%s", g.inFlight, g.maxInFlight, short(id))
	return true
}

// Exit atomically decrements the counter, floored at zero.
func (g *Gate) Exit(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inFlight > 0 {
		g.inFlight--
	}
	g.logger.Printf("[gate] EXIT (%d/%d) candidate=%s", g.inFlight, g.maxInFlight, short(id))
}

// InFlight returns the current occupancy.
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Dropped returns how many candidates were refused at the ceiling.
func (g *Gate) Dropped() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dropped
}

// Status describes the gate for the status surface.
type Status struct {
	InFlight           int     `json:"in_flight"`
	MaxInFlight        int     `json:"max_in_flight"`
	Dropped            int64   `json:"dropped_count"`
	TotalEntered       int64   `json:"total_entered"`
	UtilizationPercent float64 `json:"utilization_percent"`
}

// Status returns a snapshot of the gate counters.
func (g *Gate) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Status{
		InFlight:     g.inFlight,
		MaxInFlight:  g.maxInFlight,
		Dropped:      g.dropped,
		TotalEntered: g.totalEntered,
	}
	if g.maxInFlight > 0 {
		s.UtilizationPercent = float64(g.inFlight) / float64(g.maxInFlight) * 100
	}
	return s
}

func short(id string) string {
	if len(id) > 16 {
		return id[:16]
	}
	return id
}
