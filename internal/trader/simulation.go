package trader

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/Whit-fire/MHFTSB/internal/events"
	"github.com/Whit-fire/MHFTSB/internal/position"
)

// Simulation cadence: a synthetic creation every 2-5 seconds.
const (
	simCandidateMin = 2 * time.Second
	simCandidateMax = 5 * time.Second
	simEntryPrice   = 0.0000333
)

// simulateCandidates produces synthetic candidates and runs them through the
// gate and a simulated execution, so the whole surface can be exercised with
// no endpoints and no wallet.
func (t *Trader) simulateCandidates(ctx context.Context) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for {
		delay := simCandidateMin + time.Duration(rng.Int63n(int64(simCandidateMax-simCandidateMin)))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		sig := fmt.Sprintf("sim_sig_%d_%04d", time.Now().UnixMilli(), rng.Intn(10_000))
		if !t.cache.Add(sig) {
			continue
		}
		t.lastSeen.Store(time.Now().Unix())
		t.metrics.CandidatesObserved.WithLabelValues("sim").Inc()
		t.log.Emit(events.Record{
			Level:     events.LevelInfo,
			Component: "ingestion",
			Message:   "candidate observed",
			Data:      map[string]interface{}{"signature": sig, "source": "sim"},
		})

		t.runSimPipeline(ctx, rng, sig)
	}
}

func (t *Trader) runSimPipeline(ctx context.Context, rng *rand.Rand, sig string) {
	if !t.gate.TryEnter(sig) {
		t.metrics.CandidatesDropped.WithLabelValues("gate_full").Inc()
		t.log.Emit(events.Record{
			Level:     events.LevelWarn,
			Component: "gate",
			Message:   "drop: max in-flight reached",
			Data:      map[string]interface{}{"signature": sig},
		})
		return
	}
	defer t.gate.Exit(sig)

	// A share of creations never parses; same expected-drop shape as live.
	if rng.Float64() < 0.15 {
		t.metrics.CandidatesDropped.WithLabelValues("parse").Inc()
		return
	}

	res, err := t.sender.Submit(ctx, "")
	if err != nil {
		t.metrics.CandidatesDropped.WithLabelValues("submit").Inc()
		t.metrics.SubmissionsTotal.WithLabelValues("failed").Inc()
		return
	}
	t.metrics.SubmissionsTotal.WithLabelValues("sent").Inc()

	mint := "SIM" + uuid.NewString()[:13]
	entry := simEntryPrice * (0.5 + rng.Float64())
	amount := t.cfg.Execution.BuyAmountSOL

	id, err := t.book.RegisterBuy(ctx, position.OpenParams{
		Mint:        mint,
		Name:        shortMint(mint),
		EntryPrice:  entry,
		AmountSOL:   amount,
		TokenAmount: uint64(amount * 1e9 * 30),
		Score:       t.cfg.Scoring.Thresholds.MinScore + rng.Float64()*20,
		Signature:   res.Signature,
	})
	if err != nil {
		t.metrics.CandidatesDropped.WithLabelValues("book_refused").Inc()
		return
	}

	t.logger.Printf("[trader] SIM BUY %s id=%s", shortMint(mint), shortID(id))
	t.log.Emit(events.Record{
		Level:     events.LevelTrade,
		Component: "trader",
		Message:   "buy submitted",
		Data:      map[string]interface{}{"mint": mint, "id": id, "signature": res.Signature},
	})
}
