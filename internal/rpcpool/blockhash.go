package rpcpool

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Blockhash freshness policy: a context older than 30s, or within 10 blocks
// of its expiry height, is stale.
const (
	blockhashMaxAge      = 30 * time.Second
	blockhashSlotMargin  = 10
	blockhashFetchLimit  = 3
	blockhashCallTimeout = 5 * time.Second
)

// BlockhashContext is a captured blockhash tied to the endpoint it came
// from. Replaced wholesale, never partially mutated.
type BlockhashContext struct {
	EndpointURL          string
	Blockhash            string
	LastValidBlockHeight uint64
	CapturedAt           time.Time
}

// Fresh reports whether the context is usable. currentSlot of zero skips the
// block-height margin check.
func (b *BlockhashContext) Fresh(currentSlot uint64) bool {
	if time.Since(b.CapturedAt) > blockhashMaxAge {
		return false
	}
	if currentSlot > 0 && currentSlot >= b.LastValidBlockHeight-blockhashSlotMargin {
		return false
	}
	return true
}

type blockhashCache struct {
	mu    sync.Mutex
	byURL map[string]*BlockhashContext
}

func newBlockhashCache() *blockhashCache {
	return &blockhashCache{byURL: make(map[string]*BlockhashContext)}
}

// FreshBlockhash returns a cached-or-fetched blockhash context. It tries the
// health-sorted available endpoints in order, penalizing failures, and caches
// the result per endpoint.
func (r *Registry) FreshBlockhash(ctx context.Context) (*BlockhashContext, error) {
	endpoints := r.AllAvailable()
	if len(endpoints) == 0 {
		if ep := r.BestFetchEndpoint(); ep != nil {
			endpoints = append(endpoints, ep)
		}
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no endpoint configured for blockhash")
	}

	r.blockhash.mu.Lock()
	for _, ep := range endpoints {
		if cached, ok := r.blockhash.byURL[ep.URL]; ok && cached.Fresh(0) {
			r.blockhash.mu.Unlock()
			return cached, nil
		}
	}
	r.blockhash.mu.Unlock()

	var lastErr error
	for i, ep := range endpoints {
		if i >= blockhashFetchLimit {
			break
		}
		callCtx, cancel := context.WithTimeout(ctx, blockhashCallTimeout)
		info, err := ep.Client.GetLatestBlockhash(callCtx)
		cancel()
		if err != nil {
			r.Penalize(ep.URL, err)
			lastErr = err
			continue
		}

		bhc := &BlockhashContext{
			EndpointURL:          ep.URL,
			Blockhash:            info.Blockhash,
			LastValidBlockHeight: info.LastValidBlockHeight,
			CapturedAt:           time.Now(),
		}
		r.blockhash.mu.Lock()
		r.blockhash.byURL[ep.URL] = bhc
		r.blockhash.mu.Unlock()
		return bhc, nil
	}
	return nil, fmt.Errorf("blockhash fetch failed on all endpoints: %w", lastErr)
}
