package ingestion

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Whit-fire/MHFTSB/internal/dedup"
	"github.com/Whit-fire/MHFTSB/internal/events"
	"github.com/Whit-fire/MHFTSB/internal/rpcpool"
	"github.com/Whit-fire/MHFTSB/internal/solana"
)

// Polling policy.
const (
	defaultPollInterval = 1500 * time.Millisecond
	pollSignatureLimit  = 20
	pollFetchTimeout    = 5 * time.Second
)

// Poller round-robins the available HTTP endpoints, fetching recent
// signatures for the program. It backs up the WS listeners: anything they
// miss shows up here one poll later, and the dedup cache drops the overlap.
type Poller struct {
	registry *rpcpool.Registry
	program  string
	cache    *dedup.Cache
	callback CandidateFunc
	logger   *log.Logger
	log      events.Log
	limiter  *rate.Limiter

	mu      sync.Mutex
	cursor  int
	polls   int64
	fetched int64
	unique  int64
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollInterval overrides the poll cadence.
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

// NewPoller creates a poller over the registry's available endpoints.
func NewPoller(registry *rpcpool.Registry, program string, cache *dedup.Cache, callback CandidateFunc, logger *log.Logger, eventLog events.Log, opts ...PollerOption) *Poller {
	if logger == nil {
		logger = log.Default()
	}
	if eventLog == nil {
		eventLog = events.Discard{}
	}
	p := &Poller{
		registry: registry,
		program:  program,
		cache:    cache,
		callback: callback,
		logger:   logger,
		log:      eventLog,
		limiter:  rate.NewLimiter(rate.Every(defaultPollInterval), 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until ctx is cancelled. Always returns nil: a poll failure only
// skips the cycle.
func (p *Poller) Run(ctx context.Context) error {
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil
		}
		p.pollOnce(ctx)
	}
}

// pollOnce queries the next endpoint in the rotation.
func (p *Poller) pollOnce(ctx context.Context) {
	ep := p.nextEndpoint()
	if ep == nil {
		return
	}

	p.mu.Lock()
	p.polls++
	p.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, pollFetchTimeout)
	defer cancel()

	sigs, err := ep.Client.GetSignaturesForAddress(fetchCtx, p.program, &solana.SignaturesOpts{Limit: pollSignatureLimit})
	if err != nil {
		p.registry.Penalize(ep.URL, err)
		p.logger.Printf("[ingestion] poll failed on %s: %v", short(ep.URL), err)
		return
	}

	p.mu.Lock()
	p.fetched += int64(len(sigs))
	p.mu.Unlock()

	for _, sig := range sigs {
		if sig.Err != nil {
			continue
		}
		if !p.cache.Add(sig.Signature) {
			continue
		}

		p.mu.Lock()
		p.unique++
		p.mu.Unlock()

		p.log.Emit(events.Record{
			Level:     events.LevelInfo,
			Component: "ingestion",
			Message:   "candidate observed",
			Data: map[string]interface{}{
				"signature": sig.Signature,
				"source":    "poll",
				"slot":      sig.Slot,
			},
		})

		c := Candidate{
			Signature: sig.Signature,
			Slot:      sig.Slot,
			Source:    "poll",
			SeenAt:    time.Now().UTC(),
		}
		go p.callback(ctx, c)
	}
}

// nextEndpoint picks the next endpoint in a rotation ordered so providers
// with recent rate-limit hits sit at the back.
func (p *Poller) nextEndpoint() *rpcpool.Endpoint {
	endpoints := p.registry.AllAvailable()
	if len(endpoints) == 0 {
		return nil
	}

	sort.SliceStable(endpoints, func(i, j int) bool {
		return endpoints[i].Status().RateLimitHits < endpoints[j].Status().RateLimitHits
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	ep := endpoints[p.cursor%len(endpoints)]
	p.cursor++
	return ep
}

// PollerStatus is a point-in-time view for the status surface.
type PollerStatus struct {
	Polls   int64 `json:"polls"`
	Fetched int64 `json:"fetched"`
	Unique  int64 `json:"unique"`
}

// Status returns the poller's counters.
func (p *Poller) Status() PollerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PollerStatus{Polls: p.polls, Fetched: p.fetched, Unique: p.unique}
}
