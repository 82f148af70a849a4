// Package position tracks open trades and enforces the layered exit rules:
// kill switch, stop losses, trailing stop, take-profit tiers, max age.
package position

import (
	"time"

	"github.com/google/uuid"

	"github.com/Whit-fire/MHFTSB/internal/parse"
)

// Status of a position. Transitions open→closed exactly once.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Close reasons recorded by the risk engine, in rule-precedence order.
const (
	ReasonKillSwitch    = "KILL_SWITCH"
	ReasonStopLossUltra = "STOP_LOSS_ULTRA"
	ReasonStopLossHigh  = "STOP_LOSS_HIGH"
	ReasonStopLoss      = "STOP_LOSS"
	ReasonTrailingStop  = "TRAILING_STOP"
	ReasonMaxAge        = "MAX_AGE"
	ReasonPanic         = "panic"
	ReasonManual        = "manual"
)

// Position is one open or closed trade. Mutated only under the Book's lock.
type Position struct {
	ID              string     `json:"id"`
	Mint            string     `json:"mint"`
	Name            string     `json:"name"`
	EntryPriceSOL   float64    `json:"entry_price_sol"`
	CurrentPriceSOL float64    `json:"current_price_sol"`
	AmountSOL       float64    `json:"amount_sol"`
	TokenAmount     uint64     `json:"token_amount"`
	PnLSOL          float64    `json:"pnl_sol"`
	PnLPercent      float64    `json:"pnl_percent"`
	EntryTime       time.Time  `json:"entry_time"`
	Score           float64    `json:"score"`
	Status          Status     `json:"status"`
	StopLossPercent float64    `json:"stop_loss"`
	TrailingActive  bool       `json:"trailing_active"`
	TrailingHigh    float64    `json:"trailing_high"`
	CloseReason     string     `json:"close_reason,omitempty"`
	CloseTime       *time.Time `json:"close_time,omitempty"`
	Signature       string     `json:"tx_signature"`
	TPHits          []string   `json:"tp_hits"`

	// Clone template retained so the exit sell can be built without a fresh
	// fetch.
	Clone *parse.Fields `json:"-"`

	// customStop marks that SetStopLoss overrode the default threshold; only
	// then does the per-position stop participate in the sweep.
	customStop bool
}

// OpenParams describes a new position.
type OpenParams struct {
	Mint        string
	Name        string
	EntryPrice  float64
	AmountSOL   float64
	TokenAmount uint64
	Score       float64
	Signature   string
	Clone       *parse.Fields
}

// defaultStopLossPercent is the per-position stop until overridden.
const defaultStopLossPercent = -10.0

func newPosition(p OpenParams) *Position {
	return &Position{
		ID:              uuid.NewString(),
		Mint:            p.Mint,
		Name:            p.Name,
		EntryPriceSOL:   p.EntryPrice,
		CurrentPriceSOL: p.EntryPrice,
		AmountSOL:       p.AmountSOL,
		TokenAmount:     p.TokenAmount,
		EntryTime:       time.Now().UTC(),
		Score:           p.Score,
		Status:          StatusOpen,
		StopLossPercent: defaultStopLossPercent,
		TrailingHigh:    p.EntryPrice,
		Signature:       p.Signature,
		Clone:           p.Clone,
	}
}

// updatePrice refreshes PnL and the trailing high-water in one step, so
// readers never observe one without the other.
func (p *Position) updatePrice(newPrice float64) {
	p.CurrentPriceSOL = newPrice
	if p.EntryPriceSOL > 0 {
		p.PnLPercent = (p.CurrentPriceSOL - p.EntryPriceSOL) / p.EntryPriceSOL * 100
	}
	entry := p.EntryPriceSOL
	if entry < 1e-6 {
		entry = 1e-6
	}
	p.PnLSOL = (p.CurrentPriceSOL - p.EntryPriceSOL) * (p.AmountSOL / entry)
	if p.CurrentPriceSOL > p.TrailingHigh {
		p.TrailingHigh = p.CurrentPriceSOL
	}
}

// tpHit reports whether the named tier already fired.
func (p *Position) tpHit(name string) bool {
	for _, hit := range p.TPHits {
		if hit == name {
			return true
		}
	}
	return false
}

// age since entry.
func (p *Position) age(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}
