package parse

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Whit-fire/MHFTSB/internal/rpcpool"
	"github.com/Whit-fire/MHFTSB/internal/solana"
)

// Not-yet-indexed is the common case immediately after a log notification, so
// it is retried with a short backoff rather than treated as a failure.
const (
	defaultNotFoundAttempts = 10
	defaultNotFoundDelay    = 250 * time.Millisecond
)

// ErrUnresolvable means every endpoint and retry was exhausted without
// producing the transaction.
var ErrUnresolvable = errors.New("parse: transaction unresolvable")

// Resolver fetches candidate transactions across the endpoint pools and
// extracts their trade fields.
type Resolver struct {
	registry *rpcpool.Registry
	program  string
	logger   *log.Logger

	notFoundAttempts int
	notFoundDelay    time.Duration
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithNotFoundRetry overrides the not-yet-indexed retry policy.
func WithNotFoundRetry(attempts int, delay time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.notFoundAttempts = attempts
		r.notFoundDelay = delay
	}
}

// NewResolver creates a resolver fetching through the given registry.
func NewResolver(registry *rpcpool.Registry, program string, logger *log.Logger, opts ...ResolverOption) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	r := &Resolver{
		registry:         registry,
		program:          program,
		logger:           logger,
		notFoundAttempts: defaultNotFoundAttempts,
		notFoundDelay:    defaultNotFoundDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fetches the transaction and extracts its fields. Endpoints are
// tried in health order; auth failures and rate limits penalize the endpoint
// and move on, not-found waits out indexing lag and retries.
func (r *Resolver) Resolve(ctx context.Context, signature string) (*Fields, error) {
	for attempt := 0; attempt < r.notFoundAttempts; attempt++ {
		tx, err := r.fetchOnce(ctx, signature)
		if err == nil {
			return Extract(tx, r.program)
		}
		if !errors.Is(err, solana.ErrNotFound) {
			return nil, err
		}

		r.logger.Printf("[parse] %s not indexed yet, attempt %d/%d", shortSig(signature), attempt+1, r.notFoundAttempts)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.notFoundDelay):
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnresolvable, shortSig(signature))
}

// fetchOnce walks the available endpoints once. It returns ErrNotFound only
// when at least one endpoint answered and none had the transaction indexed.
func (r *Resolver) fetchOnce(ctx context.Context, signature string) (*solana.Transaction, error) {
	endpoints := r.registry.AllAvailable()
	if len(endpoints) == 0 {
		if ep := r.registry.BestFetchEndpoint(); ep != nil {
			endpoints = []*rpcpool.Endpoint{ep}
		}
	}
	if len(endpoints) == 0 {
		return nil, errors.New("parse: no endpoints configured")
	}

	notFound := false
	var lastErr error
	for _, ep := range endpoints {
		tx, err := ep.Client.GetTransaction(ctx, signature)
		switch {
		case err == nil:
			return tx, nil
		case errors.Is(err, solana.ErrNotFound):
			notFound = true
		case solana.IsAuthError(err) || solana.IsRateLimited(err):
			r.registry.Penalize(ep.URL, err)
			lastErr = err
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			r.logger.Printf("[parse] fetch via %s failed: %v", ep.URL, err)
			lastErr = err
		}
	}
	if notFound {
		return nil, solana.ErrNotFound
	}
	return nil, fmt.Errorf("parse: all endpoints failed: %w", lastErr)
}

func shortSig(sig string) string {
	if len(sig) > 16 {
		return sig[:16] + "..."
	}
	return sig
}
