// Package rpcpool tracks pools of redundant RPC providers, scores them
// continuously, and fails over among them under rate limiting and
// authorization failure.
package rpcpool

import (
	"sync"
	"time"

	"github.com/Whit-fire/MHFTSB/internal/solana"
)

// Pool classifies an endpoint by its intended use.
type Pool string

const (
	PoolFast   Pool = "fast"   // low-latency providers, first choice for fetches
	PoolCold   Pool = "cold"   // fallback providers
	PoolBundle Pool = "bundle" // bundle submission path
)

// Penalty and cooldown policy. Rate limiting is transient; an auth failure
// is effectively permanent for the session.
const (
	rateLimitCooldown = 4 * time.Second
	rateLimitPenalty  = 20.0
	authCooldown      = 300 * time.Second
	maxHealthScore    = 100.0
)

// Descriptor configures one endpoint.
type Descriptor struct {
	URL   string `yaml:"url"`
	WSURL string `yaml:"wss"`
	Pool  Pool   `yaml:"pool"`
	Role  string `yaml:"role"`
}

// Endpoint is a single RPC provider with a rolling health score. Endpoints
// are never destroyed individually; Configure replaces all pools wholesale.
type Endpoint struct {
	URL    string
	WSURL  string
	Pool   Pool
	Role   string
	Client *solana.HTTPClient

	mu            sync.Mutex
	latencyMS     float64
	slotLag       int64
	rateLimitHits int
	cooldownUntil time.Time
	healthScore   float64
	lastCheck     time.Time
}

func newEndpoint(d Descriptor) *Endpoint {
	pool := d.Pool
	if pool == "" {
		pool = PoolFast
	}
	return &Endpoint{
		URL:         d.URL,
		WSURL:       d.WSURL,
		Pool:        pool,
		Role:        d.Role,
		Client:      solana.NewHTTPClient(d.URL),
		healthScore: maxHealthScore,
	}
}

// Available reports whether the endpoint is out of cooldown.
func (e *Endpoint) Available() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Now().After(e.cooldownUntil)
}

// HealthScore returns the current rolling score in [0, 100].
func (e *Endpoint) HealthScore() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.healthScore
}

// MarkRateLimited applies the transient 429 penalty: a short cooldown plus a
// proportional health decay. The hit count feeds the next score computation.
func (e *Endpoint) MarkRateLimited() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rateLimitHits++
	e.cooldownUntil = time.Now().Add(rateLimitCooldown)
	e.healthScore = max(0, e.healthScore-rateLimitPenalty)
}

// MarkAuthFailure zeroes the score and applies the long cooldown. The
// endpoint stays configured but is excluded from selection for the duration.
func (e *Endpoint) MarkAuthFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.healthScore = 0
	e.cooldownUntil = time.Now().Add(authCooldown)
}

// UpdateHealth recomputes the score from a probe:
// max(0, 100 - latency_ms/10 - slot_lag*5 - rate_limit_hits*10).
func (e *Endpoint) UpdateHealth(latencyMS float64, slotLag int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.latencyMS = latencyMS
	e.slotLag = slotLag
	e.healthScore = max(0, maxHealthScore-latencyMS/10-float64(slotLag)*5-float64(e.rateLimitHits)*10)
	e.lastCheck = time.Now()
}

// EndpointStatus is a point-in-time view of one endpoint for the status
// surface.
type EndpointStatus struct {
	URL           string  `json:"url"`
	Pool          Pool    `json:"pool"`
	Role          string  `json:"role"`
	HealthScore   float64 `json:"health_score"`
	LatencyMS     float64 `json:"latency_ms"`
	RateLimitHits int     `json:"rate_limit_hits"`
	Available     bool    `json:"available"`
}

// Status returns a snapshot of the endpoint's counters.
func (e *Endpoint) Status() EndpointStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EndpointStatus{
		URL:           truncateURL(e.URL),
		Pool:          e.Pool,
		Role:          e.Role,
		HealthScore:   e.healthScore,
		LatencyMS:     e.latencyMS,
		RateLimitHits: e.rateLimitHits,
		Available:     time.Now().After(e.cooldownUntil),
	}
}

func truncateURL(u string) string {
	if len(u) > 60 {
		return u[:60] + "..."
	}
	return u
}
