package position

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Whit-fire/MHFTSB/internal/config"
)

// echoPrice returns a fixed price per mint, falling back to the current one.
type echoPrice map[string]float64

func (e echoPrice) Price(_ context.Context, mint string, current float64) (float64, error) {
	if p, ok := e[mint]; ok {
		return p, nil
	}
	return current, nil
}

func testEngine(t *testing.T, b *Book, source PriceSource, opts ...EngineOption) *Engine {
	t.Helper()
	return NewEngine(b, config.Default(), source, quiet(), opts...)
}

func backdate(b *Book, id string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pos, ok := b.open[id]; ok {
		pos.EntryTime = pos.EntryTime.Add(-d)
	}
}

func TestSweep_StopLossUltra(t *testing.T) {
	b := NewBook(10, true, quiet())
	id := openOne(t, b, "mintA")

	e := testEngine(t, b, echoPrice{"mintA": 0.00007}) // -30%
	e.Sweep(context.Background())

	assert.Empty(t, b.Open())
	closed := b.Closed(1)
	require.Len(t, closed, 1)
	assert.Equal(t, id, closed[0].ID)
	assert.Equal(t, ReasonStopLossUltra, closed[0].CloseReason)
}

func TestSweep_StopLossHighBeforeUltraThreshold(t *testing.T) {
	b := NewBook(10, true, quiet())
	openOne(t, b, "mintA")

	e := testEngine(t, b, echoPrice{"mintA": 0.000083}) // -17%
	e.Sweep(context.Background())

	closed := b.Closed(1)
	require.Len(t, closed, 1)
	assert.Equal(t, ReasonStopLossHigh, closed[0].CloseReason)
}

func TestSweep_KillSwitchBeatsUltraStopLoss(t *testing.T) {
	b := NewBook(10, true, quiet())
	id := openOne(t, b, "mintA")
	backdate(b, id, 60*time.Second) // past the 40s kill-switch window

	e := testEngine(t, b, echoPrice{"mintA": 0.00005}) // -50%, ultra too
	e.Sweep(context.Background())

	closed := b.Closed(1)
	require.Len(t, closed, 1)
	assert.Equal(t, ReasonKillSwitch, closed[0].CloseReason, "first rule in precedence wins")
}

func TestSweep_CustomStopOnlyAfterSet(t *testing.T) {
	b := NewBook(10, true, quiet())
	id := openOne(t, b, "mintA")

	e := testEngine(t, b, echoPrice{"mintA": 0.000094}) // -6%
	e.Sweep(context.Background())
	assert.Len(t, b.Open(), 1, "default threshold not armed")

	b.SetStopLoss(id, -5)
	e.Sweep(context.Background())
	closed := b.Closed(1)
	require.Len(t, closed, 1)
	assert.Equal(t, ReasonStopLoss, closed[0].CloseReason)
}

func TestSweep_TakeProfitTierFiresOnce(t *testing.T) {
	b := NewBook(10, true, quiet())
	openOne(t, b, "mintA")

	e := testEngine(t, b, echoPrice{"mintA": 0.00025}) // +150%, TP1 only
	e.Sweep(context.Background())

	pos := b.Open()[0]
	assert.Equal(t, []string{"TP1"}, pos.TPHits)
	assert.InDelta(t, 0.015, pos.AmountSOL, 1e-9, "50% notionally sold")

	// Still above the threshold next cycle: no second reduction.
	e.Sweep(context.Background())
	pos = b.Open()[0]
	assert.Equal(t, []string{"TP1"}, pos.TPHits)
	assert.InDelta(t, 0.015, pos.AmountSOL, 1e-9)
}

func TestSweep_TakeProfitDoesNotClose(t *testing.T) {
	b := NewBook(10, true, quiet())
	openOne(t, b, "mintA")

	e := testEngine(t, b, echoPrice{"mintA": 0.0007}) // +600%, all tiers
	e.Sweep(context.Background())

	require.Len(t, b.Open(), 1)
	pos := b.Open()[0]
	assert.ElementsMatch(t, []string{"TP1", "TP2", "TP3"}, pos.TPHits)
	assert.InDelta(t, 0.03*0.5*0.75*0.75, pos.AmountSOL, 1e-9)
}

func TestSweep_TrailingStop(t *testing.T) {
	b := NewBook(10, true, quiet())
	openOne(t, b, "mintA")

	prices := echoPrice{"mintA": 0.00012} // +20% arms trailing
	e := testEngine(t, b, prices)
	e.Sweep(context.Background())
	require.Len(t, b.Open(), 1)
	assert.True(t, b.Open()[0].TrailingActive)

	prices["mintA"] = 0.000104 // -13.3% from the 0.00012 high
	e.Sweep(context.Background())

	closed := b.Closed(1)
	require.Len(t, closed, 1)
	assert.Equal(t, ReasonTrailingStop, closed[0].CloseReason)
}

func TestSweep_MaxAge(t *testing.T) {
	b := NewBook(10, true, quiet())
	id := openOne(t, b, "mintA")
	backdate(b, id, 2*time.Minute)

	e := testEngine(t, b, echoPrice{"mintA": 0.000101}) // +1%, healthy
	e.Sweep(context.Background())

	closed := b.Closed(1)
	require.Len(t, closed, 1)
	assert.Equal(t, ReasonMaxAge, closed[0].CloseReason)
}

func TestSweep_CloseHookRunsPerClose(t *testing.T) {
	b := NewBook(10, true, quiet())
	openOne(t, b, "mintA")
	openOne(t, b, "mintB")

	var hooked []string
	e := testEngine(t, b, echoPrice{"mintA": 0.00005, "mintB": 0.00005},
		WithCloseHook(func(_ context.Context, pos Position) {
			hooked = append(hooked, pos.Mint)
		}))
	e.Sweep(context.Background())

	assert.ElementsMatch(t, []string{"mintA", "mintB"}, hooked)
}

type panicPrice struct{}

func (panicPrice) Price(_ context.Context, mint string, current float64) (float64, error) {
	if mint == "bad" {
		panic("boom")
	}
	return current * 0.5, nil
}

func TestSweep_PanicIsolatedPerPosition(t *testing.T) {
	b := NewBook(10, true, quiet())
	openOne(t, b, "bad")
	openOne(t, b, "mintB")

	e := testEngine(t, b, panicPrice{})
	e.Sweep(context.Background())

	// The healthy position still got evaluated and stop-lossed.
	closed := b.Closed(0)
	require.Len(t, closed, 1)
	assert.Equal(t, "mintB", closed[0].Mint)
	assert.Len(t, b.Open(), 1)
}

func TestRandomWalk_FloorsAboveZero(t *testing.T) {
	w := NewRandomWalk(1)
	price := 1e-6
	for i := 0; i < 100; i++ {
		var err error
		price, err = w.Price(context.Background(), "m", price)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, price, 1e-6)
	}
}
