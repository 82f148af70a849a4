package rpcpool

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/Whit-fire/MHFTSB/internal/solana"
)

// Registry owns the endpoint pools. It is shared, read-mostly infrastructure:
// ingestion, fetch, build, and submission all select endpoints through it.
type Registry struct {
	logger *log.Logger

	mu     sync.RWMutex
	fast   []*Endpoint
	cold   []*Endpoint
	bundle []*Endpoint

	blockhash *blockhashCache
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		logger:    logger,
		blockhash: newBlockhashCache(),
	}
}

// Configure replaces all pools atomically. Previous endpoints and their
// counters are discarded wholesale.
func (r *Registry) Configure(descriptors []Descriptor) {
	var fast, cold, bundle []*Endpoint
	for _, d := range descriptors {
		if d.URL == "" {
			continue
		}
		ep := newEndpoint(d)
		switch ep.Pool {
		case PoolBundle:
			bundle = append(bundle, ep)
		case PoolCold:
			cold = append(cold, ep)
		default:
			fast = append(fast, ep)
		}
	}

	r.mu.Lock()
	r.fast, r.cold, r.bundle = fast, cold, bundle
	r.mu.Unlock()

	r.logger.Printf("[rpcpool] configured: %d fast, %d cold, %d bundle", len(fast), len(cold), len(bundle))
}

// BestFetchEndpoint returns the highest-scoring available endpoint, fast pool
// first, falling back to cold, falling back to any configured endpoint. It
// returns nil only when nothing is configured at all.
func (r *Registry) BestFetchEndpoint() *Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	available := availableOf(r.fast)
	if len(available) == 0 {
		available = availableOf(r.cold)
	}
	if len(available) == 0 {
		if len(r.fast) > 0 {
			return r.fast[0]
		}
		if len(r.cold) > 0 {
			return r.cold[0]
		}
		return nil
	}
	sortByScore(available)
	return available[0]
}

// AllAvailable returns every available fast and cold endpoint, sorted by
// descending health score, for multi-endpoint fallback within one logical
// operation. Endpoints in cooldown are never included.
func (r *Registry) AllAvailable() []*Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	available := availableOf(r.fast)
	available = append(available, availableOf(r.cold)...)
	sortByScore(available)
	return available
}

// BundleEndpoint returns an available bundle-submission endpoint, or the
// first configured one if all are cooling down, or nil if none configured.
func (r *Registry) BundleEndpoint() *Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if avail := availableOf(r.bundle); len(avail) > 0 {
		return avail[0]
	}
	if len(r.bundle) > 0 {
		return r.bundle[0]
	}
	return nil
}

// WSEndpoints returns the push-subscription URLs of all configured endpoints
// that carry one.
func (r *Registry) WSEndpoints() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Descriptor
	for _, ep := range append(append([]*Endpoint{}, r.fast...), r.cold...) {
		if ep.WSURL != "" {
			out = append(out, Descriptor{URL: ep.URL, WSURL: ep.WSURL, Pool: ep.Pool, Role: ep.Role})
		}
	}
	return out
}

// MarkRateLimited penalizes the endpoint with the given URL.
func (r *Registry) MarkRateLimited(url string) {
	if ep := r.find(url); ep != nil {
		ep.MarkRateLimited()
		r.logger.Printf("[rpcpool] rate limited, cooldown %s: %s", rateLimitCooldown, truncateURL(url))
	}
}

// MarkAuthFailure applies the session-long penalty to the endpoint with the
// given URL.
func (r *Registry) MarkAuthFailure(url string) {
	if ep := r.find(url); ep != nil {
		ep.MarkAuthFailure()
		r.logger.Printf("[rpcpool] auth failure, cooldown %s: %s", authCooldown, truncateURL(url))
	}
}

// Penalize routes an RPC error to the matching penalty, if any.
func (r *Registry) Penalize(url string, err error) {
	switch {
	case solana.IsAuthError(err):
		r.MarkAuthFailure(url)
	case solana.IsRateLimited(err):
		r.MarkRateLimited(url)
	}
}

func (r *Registry) find(url string) *Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, pool := range [][]*Endpoint{r.fast, r.cold, r.bundle} {
		for _, ep := range pool {
			if ep.URL == url {
				return ep
			}
		}
	}
	return nil
}

// Probe measures every fast and cold endpoint once: latency and slot lag
// against the highest slot seen this round. Scores are recomputed from the
// probe; penalties accumulated since the last probe decay into the formula
// through the rate-limit hit count.
func (r *Registry) Probe(ctx context.Context) {
	r.mu.RLock()
	endpoints := append(append([]*Endpoint{}, r.fast...), r.cold...)
	r.mu.RUnlock()

	type probeResult struct {
		ep        *Endpoint
		latencyMS float64
		slot      int64
	}

	results := make([]probeResult, 0, len(endpoints))
	var maxSlot int64
	for _, ep := range endpoints {
		callCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		start := time.Now()
		slot, err := ep.Client.GetSlot(callCtx)
		cancel()
		if err != nil {
			r.Penalize(ep.URL, err)
			continue
		}
		results = append(results, probeResult{ep: ep, latencyMS: float64(time.Since(start).Milliseconds()), slot: slot})
		if slot > maxSlot {
			maxSlot = slot
		}
	}

	for _, res := range results {
		res.ep.UpdateHealth(res.latencyMS, maxSlot-res.slot)
	}
}

// RegistrySnapshot summarizes the pools for the status surface.
type RegistrySnapshot struct {
	FastPool      int              `json:"fast_pool"`
	ColdPool      int              `json:"cold_pool"`
	BundlePool    int              `json:"bundle_pool"`
	TotalRateHits int              `json:"total_rate_limit_hits"`
	AvgLatencyMS  float64          `json:"avg_latency_ms"`
	Endpoints     []EndpointStatus `json:"endpoints"`
}

// Snapshot returns the current pool sizes and per-endpoint counters.
func (r *Registry) Snapshot() RegistrySnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := RegistrySnapshot{
		FastPool:   len(r.fast),
		ColdPool:   len(r.cold),
		BundlePool: len(r.bundle),
	}

	all := append(append([]*Endpoint{}, r.fast...), r.cold...)
	var latencySum float64
	for _, ep := range append(all, r.bundle...) {
		snap.Endpoints = append(snap.Endpoints, ep.Status())
	}
	for _, ep := range all {
		st := ep.Status()
		snap.TotalRateHits += st.RateLimitHits
		latencySum += st.LatencyMS
	}
	if len(all) > 0 {
		snap.AvgLatencyMS = latencySum / float64(len(all))
	}
	return snap
}

func availableOf(pool []*Endpoint) []*Endpoint {
	out := make([]*Endpoint, 0, len(pool))
	for _, ep := range pool {
		if ep.Available() {
			out = append(out, ep)
		}
	}
	return out
}

func sortByScore(endpoints []*Endpoint) {
	sort.SliceStable(endpoints, func(i, j int) bool {
		return endpoints[i].HealthScore() > endpoints[j].HealthScore()
	})
}
