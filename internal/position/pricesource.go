package position

import (
	"context"
	"math/rand"
	"sync"
)

// RandomWalk is the simulated price source: a per-cycle gaussian move with a
// slight upward drift, floored above zero. An accounting approximation for
// dry runs, not a market read.
type RandomWalk struct {
	DriftPercent  float64 // defaults to 0.5
	StddevPercent float64 // defaults to 3

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomWalk creates a seeded walk for reproducible simulations.
func NewRandomWalk(seed int64) *RandomWalk {
	return &RandomWalk{rng: rand.New(rand.NewSource(seed))}
}

func (w *RandomWalk) Price(_ context.Context, _ string, current float64) (float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	drift, stddev := w.DriftPercent, w.StddevPercent
	if drift == 0 {
		drift = 0.5
	}
	if stddev == 0 {
		stddev = 3
	}

	change := w.rng.NormFloat64()*stddev + drift
	price := current * (1 + change/100)
	if price < 1e-6 {
		price = 1e-6
	}
	return price, nil
}

// StaticPrice always returns the same price. Test helper and a safe default
// when no market source is wired.
type StaticPrice float64

func (s StaticPrice) Price(context.Context, string, float64) (float64, error) {
	return float64(s), nil
}
