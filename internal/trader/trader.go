// Package trader wires the whole decision-and-execution core together:
// discovery feeds candidates through the gate into the buy pipeline, the
// risk engine sweeps open positions, and every component reports into one
// status surface.
package trader

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Whit-fire/MHFTSB/internal/config"
	"github.com/Whit-fire/MHFTSB/internal/dedup"
	"github.com/Whit-fire/MHFTSB/internal/events"
	"github.com/Whit-fire/MHFTSB/internal/gate"
	"github.com/Whit-fire/MHFTSB/internal/ingestion"
	"github.com/Whit-fire/MHFTSB/internal/observability"
	"github.com/Whit-fire/MHFTSB/internal/parse"
	"github.com/Whit-fire/MHFTSB/internal/position"
	"github.com/Whit-fire/MHFTSB/internal/rpcpool"
	"github.com/Whit-fire/MHFTSB/internal/submit"
	"github.com/Whit-fire/MHFTSB/internal/txbuild"
)

// Dedup sizing mirrors the discovery volume: tens of creations per second,
// 60s of relevance.
const (
	dedupMaxSize       = 50_000
	dedupTTL           = 60 * time.Second
	dedupCleanupPeriod = 10 * time.Second
)

// Trader owns every component and the background loops driving them.
type Trader struct {
	cfg      *config.Config
	registry *rpcpool.Registry
	cache    *dedup.Cache
	gate     *gate.Gate
	resolver *parse.Resolver
	builder  *txbuild.Builder
	sender   submit.Submitter
	book     *position.Book
	engine   *position.Engine
	manager  *ingestion.Manager
	metrics  *observability.Metrics
	feed     *events.Ring
	log      events.Log
	logger   *log.Logger

	running   atomic.Bool
	startTime time.Time
	lastSeen  atomic.Int64
}

// Option configures optional collaborators.
type Option func(*options)

type options struct {
	store       position.Store
	eventSink   events.Log
	latencySink submit.LatencySink
	metrics     *observability.Metrics
	submitter   submit.Submitter
	source      position.PriceSource
}

// WithPositionStore persists positions through the given store.
func WithPositionStore(s position.Store) Option {
	return func(o *options) { o.store = s }
}

// WithEventSink mirrors the in-memory feed into an additional sink, usually
// a database-backed event store.
func WithEventSink(l events.Log) Option {
	return func(o *options) { o.eventSink = l }
}

// WithLatencySink forwards submission latency samples, usually to the
// ClickHouse-backed buffered sink.
func WithLatencySink(s submit.LatencySink) Option {
	return func(o *options) { o.latencySink = s }
}

// WithMetrics overrides the Prometheus metrics set.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithSubmitter overrides the submission path.
func WithSubmitter(s submit.Submitter) Option {
	return func(o *options) { o.submitter = s }
}

// WithPriceSource overrides the risk engine's price feed.
func WithPriceSource(s position.PriceSource) Option {
	return func(o *options) { o.source = s }
}

// New assembles a trader from configuration. In live mode the wallet key is
// required; simulation mode runs without one.
func New(cfg *config.Config, logger *log.Logger, opts ...Option) (*Trader, error) {
	if logger == nil {
		logger = log.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return newTrader(cfg, logger, o)
}

func newTrader(cfg *config.Config, logger *log.Logger, o options) (*Trader, error) {
	registry := rpcpool.NewRegistry(logger)
	registry.Configure(cfg.Endpoints)

	feed := events.NewRing(events.DefaultRingSize)
	var eventLog events.Log = feed
	if o.eventSink != nil {
		eventLog = events.Tee{feed, o.eventSink}
	}

	t := &Trader{
		cfg:      cfg,
		registry: registry,
		cache:    dedup.NewCache(dedupMaxSize, dedupTTL),
		gate:     gate.New(cfg.Execution.MaxInFlight, logger),
		resolver: parse.NewResolver(registry, txbuild.CurveProgram.String(), logger),
		metrics:  o.metrics,
		feed:     feed,
		log:      eventLog,
		logger:   logger,
	}
	if t.metrics == nil {
		t.metrics = observability.NewMetrics("")
	}

	if cfg.Simulation {
		t.sender = submit.NewSimulator(time.Now().UnixNano())
	} else {
		wallet, err := txbuild.KeypairFromBase58(cfg.Wallet.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("load wallet key: %w", err)
		}

		builderOpts := []txbuild.BuilderOption{
			txbuild.WithComputeBudget(cfg.Execution.ComputeUnitLimit, cfg.Execution.ComputeUnitPrice),
		}
		if cfg.Execution.TipAccount != "" {
			tip, err := txbuild.PubkeyFromBase58(cfg.Execution.TipAccount)
			if err != nil {
				return nil, fmt.Errorf("parse tip account: %w", err)
			}
			builderOpts = append(builderOpts, txbuild.WithTip(tip, cfg.TipLamports()))
		}
		t.builder = txbuild.NewBuilder(wallet, registry, logger, builderOpts...)

		senderOpts := []submit.SenderOption{submit.WithEventLog(eventLog)}
		if o.latencySink != nil {
			senderOpts = append(senderOpts, submit.WithLatencySink(o.latencySink))
		}
		t.sender = submit.NewSender(registry, logger, senderOpts...)
	}
	if o.submitter != nil {
		t.sender = o.submitter
	}

	bookOpts := []position.BookOption{position.WithEventLog(eventLog)}
	if o.store != nil {
		bookOpts = append(bookOpts, position.WithStore(o.store))
	}
	t.book = position.NewBook(cfg.Execution.MaxOpenPositions, cfg.Execution.EnforceOnePerToken, logger, bookOpts...)

	source := o.source
	if source == nil {
		// The price feed walks from the entry price; there is no curve
		// re-read in this core.
		source = position.NewRandomWalk(time.Now().UnixNano())
	}
	t.engine = position.NewEngine(t.book, cfg, source, logger,
		position.WithCloseHook(t.exitSell),
		position.WithEngineEventLog(eventLog),
	)

	if !cfg.Simulation {
		t.manager = ingestion.NewManager(registry, txbuild.CurveProgram.String(), t.cache,
			t.HandleCandidate, logger, eventLog,
			ingestion.WithPollInterval(time.Duration(cfg.HFT.PollIntervalMS)*time.Millisecond),
		)
	}

	return t, nil
}

// Run starts every background loop and blocks until ctx is cancelled.
func (t *Trader) Run(ctx context.Context) error {
	if t.running.Swap(true) {
		return fmt.Errorf("trader: already running")
	}
	defer t.running.Store(false)

	t.startTime = time.Now()
	mode := "live"
	if t.cfg.Simulation {
		mode = "simulation"
	}
	t.logger.Printf("[trader] starting in %s mode", mode)
	t.log.Emit(events.Record{
		Level:     events.LevelInfo,
		Component: "trader",
		Message:   "bot started",
		Data:      map[string]interface{}{"mode": mode},
	})

	g, ctx := errgroup.WithContext(ctx)

	if t.cfg.Simulation {
		g.Go(func() error { return t.simulateCandidates(ctx) })
	} else {
		g.Go(func() error { return t.manager.Run(ctx) })
	}

	g.Go(func() error {
		t.engine.Run(ctx, time.Duration(t.cfg.HFT.EvalIntervalMS)*time.Millisecond)
		return nil
	})
	g.Go(func() error { return t.cleanupLoop(ctx) })
	g.Go(func() error { return t.probeLoop(ctx) })
	g.Go(func() error { return t.metricsLoop(ctx) })

	err := g.Wait()
	t.logger.Printf("[trader] stopped")
	return err
}

// cleanupLoop expires dedup entries past the TTL.
func (t *Trader) cleanupLoop(ctx context.Context) error {
	ticker := time.NewTicker(dedupCleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := t.cache.Cleanup(); n > 0 {
				t.logger.Printf("[trader] dedup cleanup removed %d entries", n)
			}
		}
	}
}

// probeLoop refreshes endpoint health scores.
func (t *Trader) probeLoop(ctx context.Context) error {
	interval := time.Duration(t.cfg.HFT.ProbeIntervalMS) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.registry.Probe(ctx)
		}
	}
}

// metricsLoop refreshes the Prometheus gauges once a second.
func (t *Trader) metricsLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.refreshGauges()
		}
	}
}

func (t *Trader) refreshGauges() {
	gs := t.gate.Status()
	t.metrics.GateInFlight.Set(float64(gs.InFlight))
	t.metrics.GateDrops.Set(float64(gs.Dropped))

	kpi := t.book.KPI()
	t.metrics.OpenPositions.Set(float64(kpi.OpenPositions))
	t.metrics.OpenPnLSOL.Set(kpi.TotalPnLSOL)
	t.metrics.WinRate.Set(kpi.WinRate)

	for _, ep := range t.registry.Snapshot().Endpoints {
		t.metrics.EndpointHealth.WithLabelValues(ep.URL, string(ep.Pool)).Set(ep.HealthScore)
	}

	if t.manager != nil {
		connected := 0
		for _, l := range t.manager.Status().Listeners {
			if l.Connected {
				connected++
			}
		}
		t.metrics.ListenersConnected.Set(float64(connected))
	}

	if last := t.lastSeen.Load(); last > 0 {
		t.metrics.LastCandidateSeen.Set(float64(last))
	}
}
