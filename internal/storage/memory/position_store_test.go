package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Whit-fire/MHFTSB/internal/events"
	"github.com/Whit-fire/MHFTSB/internal/position"
	"github.com/Whit-fire/MHFTSB/internal/storage"
	"github.com/Whit-fire/MHFTSB/internal/submit"
)

func testPosition(id string) *position.Position {
	return &position.Position{
		ID:            id,
		Mint:          "mint-" + id,
		Name:          "tok",
		EntryPriceSOL: 0.0001,
		AmountSOL:     0.03,
		EntryTime:     time.Now().UTC(),
		Status:        position.StatusOpen,
	}
}

func TestPositionStore_InsertAndGet(t *testing.T) {
	s := NewPositionStore()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, testPosition("a")))
	assert.ErrorIs(t, s.Insert(ctx, testPosition("a")), storage.ErrDuplicateKey)
	assert.ErrorIs(t, s.Insert(ctx, &position.Position{}), storage.ErrInvalidInput)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "mint-a", got.Mint)

	_, err = s.Get(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPositionStore_UpdateClose(t *testing.T) {
	s := NewPositionStore()
	ctx := context.Background()

	p := testPosition("a")
	require.NoError(t, s.Insert(ctx, p))

	now := time.Now().UTC()
	p.Status = position.StatusClosed
	p.CloseReason = position.ReasonStopLossUltra
	p.CloseTime = &now
	require.NoError(t, s.UpdateClose(ctx, p))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, position.StatusClosed, got.Status)
	assert.Equal(t, position.ReasonStopLossUltra, got.CloseReason)

	assert.ErrorIs(t, s.UpdateClose(ctx, testPosition("missing")), storage.ErrNotFound)
}

func TestPositionStore_LoadOpen(t *testing.T) {
	s := NewPositionStore()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, testPosition("a")))
	closed := testPosition("b")
	require.NoError(t, s.Insert(ctx, closed))
	closed.Status = position.StatusClosed
	require.NoError(t, s.UpdateClose(ctx, closed))

	open, err := s.LoadOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "a", open[0].ID)
}

func TestEventStore(t *testing.T) {
	s := NewEventStore()
	ctx := context.Background()

	assert.ErrorIs(t, s.Append(ctx, events.Record{}), storage.ErrInvalidInput)

	require.NoError(t, s.Append(ctx, events.Record{ID: "1", Message: "first"}))
	require.NoError(t, s.Append(ctx, events.Record{ID: "2", Message: "second"}))

	recent, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "second", recent[0].Message)

	all, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLatencyStore(t *testing.T) {
	s := NewLatencyStore()
	ctx := context.Background()

	require.NoError(t, s.InsertBulk(ctx, nil))
	require.NoError(t, s.InsertBulk(ctx, []submit.Sample{
		{Operation: "send_transaction", LatencyMS: 42, Success: true},
		{Operation: "send_transaction", LatencyMS: 99, Success: false},
	}))

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, 42.0, all[0].LatencyMS)
}
