package trader

import (
	"context"
	"time"

	"github.com/Whit-fire/MHFTSB/internal/events"
	"github.com/Whit-fire/MHFTSB/internal/gate"
	"github.com/Whit-fire/MHFTSB/internal/ingestion"
	"github.com/Whit-fire/MHFTSB/internal/position"
	"github.com/Whit-fire/MHFTSB/internal/rpcpool"
	"github.com/Whit-fire/MHFTSB/internal/submit"
)

// FullStatus aggregates every component's snapshot for the control surface.
type FullStatus struct {
	Status        string                   `json:"status"`
	Mode          string                   `json:"mode"`
	UptimeSeconds float64                  `json:"uptime_seconds"`
	Gate          gate.Status              `json:"hft_gate"`
	Positions     position.KPI             `json:"positions"`
	Submission    submit.Stats             `json:"execution"`
	Endpoints     rpcpool.RegistrySnapshot `json:"endpoints"`
	Ingestion     *ingestion.Status        `json:"ingestion,omitempty"`
}

// FullStatus returns a best-effort snapshot of the whole system.
func (t *Trader) FullStatus() FullStatus {
	s := FullStatus{
		Status:     "stopped",
		Mode:       "live",
		Gate:       t.gate.Status(),
		Positions:  t.book.KPI(),
		Submission: t.sender.Stats(),
		Endpoints:  t.registry.Snapshot(),
	}
	if t.running.Load() {
		s.Status = "running"
		s.UptimeSeconds = time.Since(t.startTime).Seconds()
	}
	if t.cfg.Simulation {
		s.Mode = "simulation"
	}
	if t.manager != nil {
		ing := t.manager.Status()
		s.Ingestion = &ing
	}
	return s
}

// OpenPositions returns snapshots of every open position.
func (t *Trader) OpenPositions() []position.Position {
	return t.book.Open()
}

// ClosedPositions returns up to limit recently closed positions.
func (t *Trader) ClosedPositions(limit int) []position.Position {
	return t.book.Closed(limit)
}

// RecentEvents returns the newest n records from the in-memory feed.
func (t *Trader) RecentEvents(n int) []events.Record {
	return t.feed.Recent(n)
}

// ClosePosition closes one position manually.
func (t *Trader) ClosePosition(ctx context.Context, id, reason string) (position.Position, bool) {
	pos, ok := t.book.ClosePosition(ctx, id, reason)
	if ok {
		t.exitSell(ctx, pos)
	}
	return pos, ok
}

// CloseAll closes every open position.
func (t *Trader) CloseAll(ctx context.Context, reason string) []position.Position {
	closed := t.book.CloseAll(ctx, reason)
	for _, pos := range closed {
		t.exitSell(ctx, pos)
	}
	return closed
}

// SetStopLoss overrides one position's stop threshold.
func (t *Trader) SetStopLoss(id string, percent float64) bool {
	return t.book.SetStopLoss(id, percent)
}

// Panic closes everything immediately.
func (t *Trader) Panic(ctx context.Context) int {
	t.logger.Printf("[trader] PANIC: closing all positions")
	t.log.Emit(events.Record{
		Level:     events.LevelWarn,
		Component: "trader",
		Message:   "panic: closing all positions",
	})
	return len(t.CloseAll(ctx, "panic"))
}

// UpdateConfig applies a dotted-path configuration update at runtime.
func (t *Trader) UpdateConfig(path, value string) error {
	if err := t.cfg.Set(path, value); err != nil {
		return err
	}
	t.log.Emit(events.Record{
		Level:     events.LevelInfo,
		Component: "config",
		Message:   "configuration updated",
		Data:      map[string]interface{}{"path": path, "value": value},
	})
	return nil
}
