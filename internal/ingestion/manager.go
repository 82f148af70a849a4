package ingestion

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/Whit-fire/MHFTSB/internal/dedup"
	"github.com/Whit-fire/MHFTSB/internal/events"
	"github.com/Whit-fire/MHFTSB/internal/rpcpool"
)

// Manager runs one listener per configured WS endpoint plus the polling
// fallback, all sharing the dedup cache and candidate callback.
type Manager struct {
	listeners []*Listener
	poller    *Poller
	logger    *log.Logger
}

// NewManager builds the full discovery set from the registry's current
// configuration.
func NewManager(registry *rpcpool.Registry, program string, cache *dedup.Cache, callback CandidateFunc, logger *log.Logger, eventLog events.Log, opts ...PollerOption) *Manager {
	if logger == nil {
		logger = log.Default()
	}

	var listeners []*Listener
	for _, d := range registry.WSEndpoints() {
		listeners = append(listeners, NewListener(d.WSURL, program, cache, callback, logger, eventLog))
	}

	return &Manager{
		listeners: listeners,
		poller:    NewPoller(registry, program, cache, callback, logger, eventLog, opts...),
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled. Listener and poller loops never return
// errors; degraded channels are reported through Status.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, l := range m.listeners {
		g.Go(func() error { return l.Run(ctx) })
	}
	g.Go(func() error { return m.poller.Run(ctx) })

	m.logger.Printf("[ingestion] started %d wss listeners + poller", len(m.listeners))
	return g.Wait()
}

// Status is the discovery layer's snapshot for the status surface.
type Status struct {
	Listeners []ListenerStatus `json:"listeners"`
	Poller    PollerStatus     `json:"poller"`
}

// Status reports every channel's counters.
func (m *Manager) Status() Status {
	s := Status{Poller: m.poller.Status()}
	for _, l := range m.listeners {
		s.Listeners = append(s.Listeners, l.Status())
	}
	return s
}
