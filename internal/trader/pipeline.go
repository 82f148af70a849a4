package trader

import (
	"context"
	"errors"
	"time"

	"github.com/Whit-fire/MHFTSB/internal/events"
	"github.com/Whit-fire/MHFTSB/internal/ingestion"
	"github.com/Whit-fire/MHFTSB/internal/parse"
	"github.com/Whit-fire/MHFTSB/internal/position"
)

// Token decimals on the curve program.
const tokenDecimals = 1e6

// HandleCandidate runs one candidate through the full buy pipeline:
// gate → fetch/extract → curve wait → build → submit → register. Each stage
// failure drops the candidate; only build and submit failures are errors,
// the rest are expected operating conditions.
func (t *Trader) HandleCandidate(ctx context.Context, c ingestion.Candidate) {
	t.lastSeen.Store(time.Now().Unix())
	t.metrics.CandidatesObserved.WithLabelValues(c.Source).Inc()

	if !t.gate.TryEnter(c.Signature) {
		t.metrics.CandidatesDropped.WithLabelValues("gate_full").Inc()
		t.log.Emit(events.Record{
			Level:     events.LevelWarn,
			Component: "gate",
			Message:   "drop: max in-flight reached",
			Data:      map[string]interface{}{"signature": c.Signature},
		})
		return
	}
	defer t.gate.Exit(c.Signature)

	start := time.Now()

	fields, err := t.resolver.Resolve(ctx, c.Signature)
	parseSecs := time.Since(start).Seconds()
	t.metrics.ParseLatency.Observe(parseSecs)
	if err != nil {
		// Expected for 10-20% of candidates; the resolver already logged
		// at informational severity.
		t.metrics.CandidatesDropped.WithLabelValues("parse").Inc()
		return
	}

	t.log.Emit(events.Record{
		Level:     events.LevelInfo,
		Component: "parse",
		Message:   "clone template extracted",
		Data: map[string]interface{}{
			"mint":          fields.Mint,
			"bonding_curve": fields.BondingCurve,
		},
		LatencyMS: parseSecs * 1000,
	})

	buildStart := time.Now()
	if err := t.builder.WaitForCurveInit(ctx, fields.BondingCurve); err != nil {
		t.metrics.CandidatesDropped.WithLabelValues("curve_timeout").Inc()
		t.logger.Printf("[trader] curve not initialized for %s: %v", fields.Mint, err)
		t.log.Emit(events.Record{
			Level:     events.LevelError,
			Component: "txbuild",
			Message:   "bonding curve not initialized in time",
			Data:      map[string]interface{}{"mint": fields.Mint},
		})
		return
	}

	built, err := t.builder.CloneAndInjectBuy(ctx, fields, t.cfg.BuyLamports(), t.cfg.MaxCostLamports())
	t.metrics.BuildLatency.Observe(time.Since(buildStart).Seconds())
	if err != nil {
		t.metrics.CandidatesDropped.WithLabelValues("build").Inc()
		t.logger.Printf("[trader] build failed for %s: %v", fields.Mint, err)
		t.log.Emit(events.Record{
			Level:     events.LevelError,
			Component: "txbuild",
			Message:   "buy build failed",
			Data:      map[string]interface{}{"mint": fields.Mint, "error": err.Error()},
		})
		return
	}

	submitStart := time.Now()
	res, err := t.sender.Submit(ctx, built.Base64)
	t.metrics.SubmitLatency.Observe(time.Since(submitStart).Seconds())
	if err != nil {
		t.metrics.CandidatesDropped.WithLabelValues("submit").Inc()
		t.metrics.SubmissionsTotal.WithLabelValues("failed").Inc()
		// The sender already emitted the classified failure.
		return
	}
	t.metrics.SubmissionsTotal.WithLabelValues("sent").Inc()

	t.register(ctx, fields, built.TokenAmount, res.Signature, time.Since(start))
}

// register opens the position after a successful submission. A refusal here
// is policy, not failure: the buy is already on the wire, but the book
// enforces its ceiling regardless.
func (t *Trader) register(ctx context.Context, fields *parse.Fields, tokenAmount uint64, signature string, elapsed time.Duration) {
	entry := t.cfg.Execution.BuyAmountSOL
	if tokenAmount > 0 {
		entry = t.cfg.Execution.BuyAmountSOL / (float64(tokenAmount) / tokenDecimals)
	}

	id, err := t.book.RegisterBuy(ctx, position.OpenParams{
		Mint:        fields.Mint,
		Name:        shortMint(fields.Mint),
		EntryPrice:  entry,
		AmountSOL:   t.cfg.Execution.BuyAmountSOL,
		TokenAmount: tokenAmount,
		Score:       t.cfg.Scoring.Thresholds.MinScore,
		Signature:   signature,
		Clone:       fields,
	})
	switch {
	case errors.Is(err, position.ErrCeiling), errors.Is(err, position.ErrDuplicateMint):
		t.metrics.CandidatesDropped.WithLabelValues("book_refused").Inc()
		t.log.Emit(events.Record{
			Level:     events.LevelWarn,
			Component: "position",
			Message:   "buy refused by book: " + err.Error(),
			Data:      map[string]interface{}{"mint": fields.Mint, "signature": signature},
		})
	case err != nil:
		t.logger.Printf("[trader] register failed for %s: %v", fields.Mint, err)
	default:
		t.logger.Printf("[trader] BUY %s id=%s latency=%dms", shortMint(fields.Mint), shortID(id), elapsed.Milliseconds())
		t.log.Emit(events.Record{
			Level:     events.LevelTrade,
			Component: "trader",
			Message:   "buy submitted",
			Data: map[string]interface{}{
				"mint":      fields.Mint,
				"id":        id,
				"signature": signature,
			},
			LatencyMS: float64(elapsed.Milliseconds()),
		})
	}
}

// exitSell builds and submits the sell for an engine-closed position, using
// the clone template retained at entry. Without a template (simulation,
// restored positions) the close stays book-only.
func (t *Trader) exitSell(ctx context.Context, pos position.Position) {
	t.metrics.ClosedPositions.WithLabelValues(pos.CloseReason).Inc()

	if t.builder == nil || pos.Clone == nil || pos.TokenAmount == 0 {
		return
	}

	// Accept the slippage bound below the last observed value rather than
	// holding out for entry price.
	estLamports := uint64(pos.CurrentPriceSOL * (float64(pos.TokenAmount) / tokenDecimals) * 1e9)
	minOut := estLamports - uint64(float64(estLamports)*t.cfg.Execution.SlippagePercent/100)

	built, err := t.builder.BuildSell(ctx, pos.Clone, pos.TokenAmount, minOut)
	if err != nil {
		t.logger.Printf("[trader] sell build failed for %s: %v", pos.Mint, err)
		t.log.Emit(events.Record{
			Level:     events.LevelError,
			Component: "txbuild",
			Message:   "sell build failed",
			Data:      map[string]interface{}{"mint": pos.Mint, "error": err.Error()},
		})
		return
	}

	res, err := t.sender.Submit(ctx, built.Base64)
	if err != nil {
		t.metrics.SubmissionsTotal.WithLabelValues("failed").Inc()
		return
	}
	t.metrics.SubmissionsTotal.WithLabelValues("sent").Inc()

	t.log.Emit(events.Record{
		Level:     events.LevelTrade,
		Component: "trader",
		Message:   "exit sell submitted",
		Data: map[string]interface{}{
			"mint":      pos.Mint,
			"reason":    pos.CloseReason,
			"signature": res.Signature,
		},
	})
}

func shortMint(mint string) string {
	if len(mint) > 8 {
		return mint[:8] + "..."
	}
	return mint
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
