package position

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Whit-fire/MHFTSB/internal/config"
	"github.com/Whit-fire/MHFTSB/internal/events"
)

// PriceSource supplies the current price for a mint. current is the last
// observed price, which simulated sources walk from.
type PriceSource interface {
	Price(ctx context.Context, mint string, current float64) (float64, error)
}

// CloseHook runs after a position is closed by the engine, outside the book
// lock. The trader wires the exit sell here.
type CloseHook func(ctx context.Context, pos Position)

// Engine sweeps open positions on a cadence: refresh price, recompute PnL,
// then apply exit rules in fixed precedence, first match winning. Sweeps are
// serialized; a slow sweep delays, never overlaps, the next.
type Engine struct {
	book    *Book
	risk    config.Risk
	tiers   []config.TakeProfitTier
	maxAge  time.Duration
	source  PriceSource
	onClose CloseHook
	logger  *log.Logger
	log     events.Log

	sweepMu sync.Mutex
	sweeps  int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCloseHook runs the hook for every engine-initiated close.
func WithCloseHook(h CloseHook) EngineOption {
	return func(e *Engine) {
		e.onClose = h
	}
}

// WithEngineEventLog emits a record per rule trigger.
func WithEngineEventLog(l events.Log) EngineOption {
	return func(e *Engine) {
		e.log = l
	}
}

// NewEngine creates a risk engine over the book.
func NewEngine(book *Book, cfg *config.Config, source PriceSource, logger *log.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	e := &Engine{
		book:   book,
		risk:   cfg.Risk,
		tiers:  cfg.TakeProfit,
		maxAge: time.Duration(cfg.HFT.MaxPositionAgeMS) * time.Millisecond,
		source: source,
		logger: logger,
		log:    events.Discard{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run sweeps on the given cadence until the context is cancelled.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

// Sweep evaluates every open position once. Errors and panics are isolated
// per position; one bad position never aborts the rest.
func (e *Engine) Sweep(ctx context.Context) {
	e.sweepMu.Lock()
	defer e.sweepMu.Unlock()
	e.sweeps++

	now := time.Now().UTC()
	type closure struct {
		id     string
		reason string
	}
	var toClose []closure

	for _, snap := range e.book.Open() {
		id := snap.ID
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Printf("[engine] panic evaluating %s: %v", id, r)
				}
			}()
			if reason, exit := e.evalOne(ctx, id, now); exit {
				toClose = append(toClose, closure{id: id, reason: reason})
			}
		}()
	}

	for _, c := range toClose {
		snap, ok := e.book.ClosePosition(ctx, c.id, c.reason)
		if !ok {
			continue
		}
		if e.onClose != nil {
			e.onClose(ctx, snap)
		}
	}
}

// evalOne refreshes one position and returns the first matching exit rule.
// Price refresh happens outside the book lock; the update and rule
// evaluation happen inside it, atomically.
func (e *Engine) evalOne(ctx context.Context, id string, now time.Time) (string, bool) {
	e.book.mu.Lock()
	pos, ok := e.book.open[id]
	if !ok {
		e.book.mu.Unlock()
		return "", false
	}
	mint, current := pos.Mint, pos.CurrentPriceSOL
	e.book.mu.Unlock()

	price, err := e.source.Price(ctx, mint, current)
	if err != nil {
		e.logger.Printf("[engine] price refresh %s: %v", mint, err)
		return "", false
	}

	e.book.mu.Lock()
	defer e.book.mu.Unlock()
	pos, ok = e.book.open[id]
	if !ok {
		return "", false
	}
	pos.updatePrice(price)

	if ks := e.risk.KillSwitch; ks.Enabled {
		if pos.age(now) > time.Duration(ks.MaxTimeSeconds)*time.Second && pos.PnLPercent < ks.DropThresholdPercent {
			return ReasonKillSwitch, true
		}
	}

	if pos.PnLPercent <= e.risk.StopLoss.Ultra {
		return ReasonStopLossUltra, true
	}
	if pos.PnLPercent <= e.risk.StopLoss.High {
		return ReasonStopLossHigh, true
	}
	if pos.customStop && pos.PnLPercent <= pos.StopLossPercent {
		return ReasonStopLoss, true
	}

	for _, tier := range e.tiers {
		if pos.PnLPercent >= tier.GainPercent && !pos.tpHit(tier.Name) {
			pos.TPHits = append(pos.TPHits, tier.Name)
			pos.AmountSOL *= 1 - tier.SellPercent/100
			e.log.Emit(events.Record{
				Level:     events.LevelTrade,
				Component: "position",
				Message:   "take-profit tier hit",
				Data:      map[string]interface{}{"id": pos.ID, "tier": tier.Name, "pnl_percent": pos.PnLPercent},
			})
			e.logger.Printf("[engine] TP %s hit for %s gain=%.1f%%", tier.Name, pos.Name, pos.PnLPercent)
		}
	}

	if pos.PnLPercent >= e.risk.Trailing.StartPercent {
		pos.TrailingActive = true
	}
	if pos.TrailingActive && pos.TrailingHigh > 0 {
		fromHigh := (pos.CurrentPriceSOL - pos.TrailingHigh) / pos.TrailingHigh * 100
		if fromHigh <= -e.risk.Trailing.DistancePercent {
			return ReasonTrailingStop, true
		}
	}

	if e.maxAge > 0 && pos.age(now) > e.maxAge {
		return ReasonMaxAge, true
	}
	return "", false
}

// Sweeps returns how many sweeps have completed or started.
func (e *Engine) Sweeps() int {
	e.sweepMu.Lock()
	defer e.sweepMu.Unlock()
	return e.sweeps
}
