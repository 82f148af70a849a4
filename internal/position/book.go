package position

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/Whit-fire/MHFTSB/internal/events"
)

// Store persists positions: one durable record per position, written on open,
// updated on close. Persistence is best-effort; a store failure never blocks
// trading.
type Store interface {
	Insert(ctx context.Context, p *Position) error
	UpdateClose(ctx context.Context, p *Position) error
	LoadOpen(ctx context.Context) ([]*Position, error)
}

// Registration refusals. Deliberate policy outcomes, not faults.
var (
	ErrCeiling       = errors.New("position: open-position ceiling reached")
	ErrDuplicateMint = errors.New("position: position for mint already open")
)

// closedHistoryLimit bounds the in-memory closed list.
const closedHistoryLimit = 500

// Book owns all positions. Every mutation happens under its lock.
type Book struct {
	maxOpen    int
	onePerMint bool
	store      Store
	logger     *log.Logger
	log        events.Log

	mu     sync.Mutex
	open   map[string]*Position
	closed []Position
}

// BookOption configures a Book.
type BookOption func(*Book)

// WithStore persists opens and closes to a durable store.
func WithStore(s Store) BookOption {
	return func(b *Book) {
		b.store = s
	}
}

// WithEventLog emits a record per open/close.
func WithEventLog(l events.Log) BookOption {
	return func(b *Book) {
		b.log = l
	}
}

// NewBook creates a position book.
func NewBook(maxOpen int, onePerMint bool, logger *log.Logger, opts ...BookOption) *Book {
	if logger == nil {
		logger = log.Default()
	}
	b := &Book{
		maxOpen:    maxOpen,
		onePerMint: onePerMint,
		logger:     logger,
		log:        events.Discard{},
		open:       make(map[string]*Position),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RegisterBuy opens a position after a successful submission. Refuses at the
// ceiling and, when the one-per-mint policy is on, for a mint that already
// has an open position.
func (b *Book) RegisterBuy(ctx context.Context, params OpenParams) (string, error) {
	b.mu.Lock()
	if len(b.open) >= b.maxOpen {
		b.mu.Unlock()
		b.logger.Printf("[book] ceiling %d reached, rejecting %s", b.maxOpen, params.Name)
		return "", ErrCeiling
	}
	if b.onePerMint {
		for _, p := range b.open {
			if p.Mint == params.Mint {
				b.mu.Unlock()
				return "", ErrDuplicateMint
			}
		}
	}
	pos := newPosition(params)
	b.open[pos.ID] = pos
	snapshot := *pos
	b.mu.Unlock()

	if b.store != nil {
		if err := b.store.Insert(ctx, &snapshot); err != nil {
			b.logger.Printf("[book] persist open %s: %v", pos.ID, err)
		}
	}
	b.log.Emit(events.Record{
		Level:     events.LevelTrade,
		Component: "position",
		Message:   "position opened",
		Data:      map[string]interface{}{"id": pos.ID, "mint": params.Mint, "name": params.Name, "amount_sol": params.AmountSOL},
	})
	b.logger.Printf("[book] opened %s id=%s entry=%.9f amount=%.4f", params.Name, pos.ID[:8], params.EntryPrice, params.AmountSOL)
	return pos.ID, nil
}

// ClosePosition closes by id with a reason. Returns the final snapshot, or
// false if the id is unknown (already closed included).
func (b *Book) ClosePosition(ctx context.Context, id, reason string) (Position, bool) {
	b.mu.Lock()
	pos, ok := b.open[id]
	if !ok {
		b.mu.Unlock()
		return Position{}, false
	}
	now := time.Now().UTC()
	pos.Status = StatusClosed
	pos.CloseReason = reason
	pos.CloseTime = &now
	snapshot := *pos
	delete(b.open, id)
	b.closed = append(b.closed, snapshot)
	if len(b.closed) > closedHistoryLimit {
		b.closed = b.closed[len(b.closed)-closedHistoryLimit:]
	}
	b.mu.Unlock()

	if b.store != nil {
		if err := b.store.UpdateClose(ctx, &snapshot); err != nil {
			b.logger.Printf("[book] persist close %s: %v", id, err)
		}
	}
	b.log.Emit(events.Record{
		Level:     events.LevelTrade,
		Component: "position",
		Message:   "position closed",
		Data:      map[string]interface{}{"id": id, "mint": snapshot.Mint, "reason": reason, "pnl_percent": snapshot.PnLPercent},
	})
	b.logger.Printf("[book] closed %s reason=%s pnl=%.1f%%", snapshot.Name, reason, snapshot.PnLPercent)
	return snapshot, true
}

// CloseAll closes every open position with the given reason.
func (b *Book) CloseAll(ctx context.Context, reason string) []Position {
	b.mu.Lock()
	ids := make([]string, 0, len(b.open))
	for id := range b.open {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	out := make([]Position, 0, len(ids))
	for _, id := range ids {
		if snap, ok := b.ClosePosition(ctx, id, reason); ok {
			out = append(out, snap)
		}
	}
	return out
}

// SetStopLoss overrides the per-position stop threshold.
func (b *Book) SetStopLoss(id string, percent float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.open[id]
	if !ok {
		return false
	}
	pos.StopLossPercent = percent
	pos.customStop = true
	return true
}

// Open returns snapshots of all open positions.
func (b *Book) Open() []Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Position, 0, len(b.open))
	for _, p := range b.open {
		out = append(out, *p)
	}
	return out
}

// Closed returns up to limit most recent closed positions.
func (b *Book) Closed(limit int) []Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > len(b.closed) {
		limit = len(b.closed)
	}
	return append([]Position(nil), b.closed[len(b.closed)-limit:]...)
}

// KPI summarizes the book for the status surface.
type KPI struct {
	OpenPositions   int     `json:"open_positions"`
	MaxPositions    int     `json:"max_positions"`
	ClosedPositions int     `json:"closed_positions"`
	TotalPnLSOL     float64 `json:"total_pnl_sol"`
	WinRate         float64 `json:"win_rate"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
}

// KPI computes the current key figures. Total PnL covers open positions; win
// rate covers closed ones.
func (b *Book) KPI() KPI {
	b.mu.Lock()
	defer b.mu.Unlock()

	k := KPI{
		OpenPositions:   len(b.open),
		MaxPositions:    b.maxOpen,
		ClosedPositions: len(b.closed),
	}
	for _, p := range b.open {
		k.TotalPnLSOL += p.PnLSOL
	}
	for _, p := range b.closed {
		if p.PnLPercent > 0 {
			k.Wins++
		} else {
			k.Losses++
		}
	}
	if len(b.closed) > 0 {
		k.WinRate = float64(k.Wins) / float64(len(b.closed)) * 100
	}
	return k
}
