package postgres

import (
	"context"
	"fmt"

	"github.com/Whit-fire/MHFTSB/internal/position"
	"github.com/Whit-fire/MHFTSB/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL. One row
// per position keyed by id: inserted on open, updated once on close.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// Insert adds a new position. Returns ErrDuplicateKey if id exists.
func (s *PositionStore) Insert(ctx context.Context, p *position.Position) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO positions (
			id, mint, name,
			entry_price_sol, current_price_sol, amount_sol, token_amount,
			pnl_sol, pnl_percent, entry_time, score, status,
			stop_loss_percent, trailing_active, trailing_high,
			close_reason, close_time, tx_signature, tp_hits
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15,
			$16, $17, $18, $19
		)
	`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Mint, p.Name,
		p.EntryPriceSOL, p.CurrentPriceSOL, p.AmountSOL, int64(p.TokenAmount),
		p.PnLSOL, p.PnLPercent, p.EntryTime, p.Score, string(p.Status),
		p.StopLossPercent, p.TrailingActive, p.TrailingHigh,
		nullableString(p.CloseReason), p.CloseTime, p.Signature, tpHits(p),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// UpdateClose records the terminal state of a position. Returns ErrNotFound
// if no row with the id exists.
func (s *PositionStore) UpdateClose(ctx context.Context, p *position.Position) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE positions SET
			current_price_sol = $2,
			pnl_sol = $3,
			pnl_percent = $4,
			status = $5,
			trailing_active = $6,
			trailing_high = $7,
			close_reason = $8,
			close_time = $9,
			tp_hits = $10
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		p.ID,
		p.CurrentPriceSOL, p.PnLSOL, p.PnLPercent, string(p.Status),
		p.TrailingActive, p.TrailingHigh,
		nullableString(p.CloseReason), p.CloseTime, tpHits(p),
	)
	if err != nil {
		return fmt.Errorf("update position close: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// LoadOpen retrieves every position still marked open, ordered by entry time.
func (s *PositionStore) LoadOpen(ctx context.Context) ([]*position.Position, error) {
	query := `
		SELECT
			id, mint, name,
			entry_price_sol, current_price_sol, amount_sol, token_amount,
			pnl_sol, pnl_percent, entry_time, score, status,
			stop_loss_percent, trailing_active, trailing_high,
			close_reason, close_time, tx_signature, tp_hits
		FROM positions
		WHERE status = $1
		ORDER BY entry_time ASC
	`

	rows, err := s.pool.Query(ctx, query, string(position.StatusOpen))
	if err != nil {
		return nil, fmt.Errorf("query open positions: %w", err)
	}
	defer rows.Close()

	var positions []*position.Position
	for rows.Next() {
		var (
			p           position.Position
			tokenAmount int64
			status      string
			closeReason *string
		)
		err := rows.Scan(
			&p.ID, &p.Mint, &p.Name,
			&p.EntryPriceSOL, &p.CurrentPriceSOL, &p.AmountSOL, &tokenAmount,
			&p.PnLSOL, &p.PnLPercent, &p.EntryTime, &p.Score, &status,
			&p.StopLossPercent, &p.TrailingActive, &p.TrailingHigh,
			&closeReason, &p.CloseTime, &p.Signature, &p.TPHits,
		)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.TokenAmount = uint64(tokenAmount)
		p.Status = position.Status(status)
		if closeReason != nil {
			p.CloseReason = *closeReason
		}
		positions = append(positions, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}

	return positions, nil
}

// Get retrieves a position by id. Returns ErrNotFound if absent.
func (s *PositionStore) Get(ctx context.Context, id string) (*position.Position, error) {
	query := `
		SELECT
			id, mint, name,
			entry_price_sol, current_price_sol, amount_sol, token_amount,
			pnl_sol, pnl_percent, entry_time, score, status,
			stop_loss_percent, trailing_active, trailing_high,
			close_reason, close_time, tx_signature, tp_hits
		FROM positions
		WHERE id = $1
	`

	var (
		p           position.Position
		tokenAmount int64
		status      string
		closeReason *string
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Mint, &p.Name,
		&p.EntryPriceSOL, &p.CurrentPriceSOL, &p.AmountSOL, &tokenAmount,
		&p.PnLSOL, &p.PnLPercent, &p.EntryTime, &p.Score, &status,
		&p.StopLossPercent, &p.TrailingActive, &p.TrailingHigh,
		&closeReason, &p.CloseTime, &p.Signature, &p.TPHits,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	p.TokenAmount = uint64(tokenAmount)
	p.Status = position.Status(status)
	if closeReason != nil {
		p.CloseReason = *closeReason
	}

	return &p, nil
}

// tpHits returns a non-nil slice so the TEXT[] column never sees NULL.
func tpHits(p *position.Position) []string {
	if p.TPHits == nil {
		return []string{}
	}
	return p.TPHits
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
