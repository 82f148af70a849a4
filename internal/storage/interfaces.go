// Package storage defines the persistence interfaces and their backends:
// in-memory (default and tests), Postgres for positions and events,
// ClickHouse for latency samples.
package storage

import (
	"context"

	"github.com/Whit-fire/MHFTSB/internal/events"
	"github.com/Whit-fire/MHFTSB/internal/position"
	"github.com/Whit-fire/MHFTSB/internal/submit"
)

// PositionStore persists positions: one durable record per position keyed by
// id, written on open, updated on close.
type PositionStore = position.Store

// EventStore persists the structured activity feed.
type EventStore interface {
	// Append stores one record.
	Append(ctx context.Context, rec events.Record) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]events.Record, error)
}

// LatencySampleStore persists submission/fetch latency observations.
type LatencySampleStore interface {
	// InsertBulk stores a batch of samples.
	InsertBulk(ctx context.Context, samples []submit.Sample) error
}
