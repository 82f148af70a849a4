package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/Whit-fire/MHFTSB/internal/storage"
	"github.com/Whit-fire/MHFTSB/internal/submit"
)

// LatencyStore implements storage.LatencySampleStore using ClickHouse.
// Samples are append-only; MergeTree needs no duplicate handling here.
type LatencyStore struct {
	conn *Conn
}

// NewLatencyStore creates a new LatencyStore.
func NewLatencyStore(conn *Conn) *LatencyStore {
	return &LatencyStore{conn: conn}
}

// Compile-time interface check.
var _ storage.LatencySampleStore = (*LatencyStore)(nil)

// InsertBulk adds a batch of latency samples.
func (s *LatencyStore) InsertBulk(ctx context.Context, samples []submit.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO latency_samples (
			at, operation, endpoint, latency_ms, success
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, sample := range samples {
		success := uint8(0)
		if sample.Success {
			success = 1
		}
		err = batch.Append(
			sample.At, sample.Operation, sample.Endpoint,
			sample.LatencyMS, success,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByOperation retrieves samples for one operation within [start, end],
// ordered by time ASC.
func (s *LatencyStore) GetByOperation(ctx context.Context, operation string, start, end time.Time) ([]submit.Sample, error) {
	query := `
		SELECT at, operation, endpoint, latency_ms, success
		FROM latency_samples
		WHERE operation = ? AND at >= ? AND at <= ?
		ORDER BY at ASC
	`

	rows, err := s.conn.Query(ctx, query, operation, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by operation: %w", err)
	}
	defer rows.Close()

	var samples []submit.Sample
	for rows.Next() {
		var (
			sample  submit.Sample
			success uint8
		)
		if err := rows.Scan(&sample.At, &sample.Operation, &sample.Endpoint, &sample.LatencyMS, &success); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		sample.Success = success == 1
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}

	return samples, nil
}
