package postgres

import (
	"context"
	"fmt"

	"github.com/Whit-fire/MHFTSB/internal/events"
	"github.com/Whit-fire/MHFTSB/internal/storage"
)

// eventDefaultLimit caps Recent when the caller passes no limit.
const eventDefaultLimit = 200

// EventStore implements storage.EventStore using PostgreSQL. The data field
// is stored as JSONB.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// Append stores one record. Returns ErrDuplicateKey if the id exists.
func (s *EventStore) Append(ctx context.Context, rec events.Record) error {
	if rec.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trade_events (
			id, ts, level, component, message, data, latency_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Timestamp, string(rec.Level), rec.Component,
		rec.Message, rec.Data, rec.LatencyMS,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade event: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *EventStore) Recent(ctx context.Context, limit int) ([]events.Record, error) {
	if limit <= 0 {
		limit = eventDefaultLimit
	}

	query := `
		SELECT id, ts, level, component, message, data, latency_ms
		FROM trade_events
		ORDER BY ts DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query trade events: %w", err)
	}
	defer rows.Close()

	var records []events.Record
	for rows.Next() {
		var (
			rec   events.Record
			level string
		)
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &level, &rec.Component, &rec.Message, &rec.Data, &rec.LatencyMS); err != nil {
			return nil, fmt.Errorf("scan trade event: %w", err)
		}
		rec.Level = events.Level(level)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade events: %w", err)
	}

	return records, nil
}
