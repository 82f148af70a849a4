package position

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func openOne(t *testing.T, b *Book, mint string) string {
	t.Helper()
	id, err := b.RegisterBuy(context.Background(), OpenParams{
		Mint:       mint,
		Name:       mint[:min(4, len(mint))],
		EntryPrice: 0.0001,
		AmountSOL:  0.03,
		Signature:  "sig-" + mint,
	})
	require.NoError(t, err)
	return id
}

func TestRegisterBuy_CeilingRefusal(t *testing.T) {
	b := NewBook(2, true, quiet())
	openOne(t, b, "mintA")
	openOne(t, b, "mintB")

	_, err := b.RegisterBuy(context.Background(), OpenParams{Mint: "mintC", Name: "mint"})
	assert.ErrorIs(t, err, ErrCeiling)
	assert.Len(t, b.Open(), 2)
}

func TestRegisterBuy_OnePerMint(t *testing.T) {
	b := NewBook(10, true, quiet())
	openOne(t, b, "mintA")

	_, err := b.RegisterBuy(context.Background(), OpenParams{Mint: "mintA", Name: "mint"})
	assert.ErrorIs(t, err, ErrDuplicateMint)

	loose := NewBook(10, false, quiet())
	openOne(t, loose, "mintA")
	_, err = loose.RegisterBuy(context.Background(), OpenParams{Mint: "mintA", Name: "mint"})
	assert.NoError(t, err, "policy off permits duplicates")
}

func TestClosePosition(t *testing.T) {
	b := NewBook(10, true, quiet())
	id := openOne(t, b, "mintA")

	snap, ok := b.ClosePosition(context.Background(), id, ReasonManual)
	require.True(t, ok)
	assert.Equal(t, StatusClosed, snap.Status)
	assert.Equal(t, ReasonManual, snap.CloseReason)
	require.NotNil(t, snap.CloseTime)

	_, ok = b.ClosePosition(context.Background(), id, ReasonManual)
	assert.False(t, ok, "open to closed exactly once")
	assert.Empty(t, b.Open())
	assert.Len(t, b.Closed(0), 1)
}

func TestCloseAll(t *testing.T) {
	b := NewBook(10, true, quiet())
	openOne(t, b, "mintA")
	openOne(t, b, "mintB")

	closed := b.CloseAll(context.Background(), ReasonPanic)
	assert.Len(t, closed, 2)
	assert.Empty(t, b.Open())
	for _, p := range closed {
		assert.Equal(t, ReasonPanic, p.CloseReason)
	}
}

func TestSetStopLoss(t *testing.T) {
	b := NewBook(10, true, quiet())
	id := openOne(t, b, "mintA")

	assert.True(t, b.SetStopLoss(id, -5))
	assert.False(t, b.SetStopLoss("nope", -5))
	assert.Equal(t, -5.0, b.Open()[0].StopLossPercent)
}

func TestPnLScenario(t *testing.T) {
	p := newPosition(OpenParams{Mint: "m", EntryPrice: 0.0001, AmountSOL: 0.03})
	p.updatePrice(0.00015)

	assert.InDelta(t, 50.0, p.PnLPercent, 1e-9)
	assert.InDelta(t, 0.015, p.PnLSOL, 1e-9)
	assert.Equal(t, 0.00015, p.TrailingHigh, "high-water follows price up")

	p.updatePrice(0.00012)
	assert.Equal(t, 0.00015, p.TrailingHigh, "high-water never falls")
}

func TestPosition_SerializeRoundTrip(t *testing.T) {
	b := NewBook(10, true, quiet())
	id := openOne(t, b, "mintA")
	orig := b.Open()[0]

	raw, err := json.Marshal(orig)
	require.NoError(t, err)
	var restored Position
	require.NoError(t, json.Unmarshal(raw, &restored))

	assert.Equal(t, id, restored.ID)
	assert.Equal(t, orig.Mint, restored.Mint)
	assert.Equal(t, orig.AmountSOL, restored.AmountSOL)
	assert.Equal(t, orig.Status, restored.Status)
}

func TestKPI(t *testing.T) {
	b := NewBook(10, true, quiet())
	winID := openOne(t, b, "mintA")
	lossID := openOne(t, b, "mintB")

	b.mu.Lock()
	b.open[winID].updatePrice(0.0002)   // +100%
	b.open[lossID].updatePrice(0.00005) // -50%
	b.mu.Unlock()

	b.ClosePosition(context.Background(), winID, ReasonManual)
	b.ClosePosition(context.Background(), lossID, ReasonManual)

	k := b.KPI()
	assert.Equal(t, 0, k.OpenPositions)
	assert.Equal(t, 2, k.ClosedPositions)
	assert.Equal(t, 1, k.Wins)
	assert.Equal(t, 1, k.Losses)
	assert.Equal(t, 50.0, k.WinRate)
}
