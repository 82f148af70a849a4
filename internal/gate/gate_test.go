package gate

import (
	"io"
	"log"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestTryEnter_RefusesAtCeiling(t *testing.T) {
	g := New(3, quiet())

	require.True(t, g.TryEnter("a"))
	require.True(t, g.TryEnter("b"))
	require.True(t, g.TryEnter("c"))

	assert.False(t, g.TryEnter("d"))
	assert.Equal(t, int64(1), g.Dropped())

	g.Exit("a")
	assert.True(t, g.TryEnter("e"))
	assert.Equal(t, 3, g.InFlight())
}

func TestExit_FlooredAtZero(t *testing.T) {
	g := New(2, quiet())
	g.Exit("phantom")
	assert.Equal(t, 0, g.InFlight())

	require.True(t, g.TryEnter("a"))
	g.Exit("a")
	g.Exit("a")
	assert.Equal(t, 0, g.InFlight())
}

func TestGate_BoundsUnderConcurrency(t *testing.T) {
	const max = 5
	g := New(max, quiet())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryEnter("x") {
				n := g.InFlight()
				if n < 0 || n > max {
					t.Errorf("in-flight out of bounds: %d", n)
				}
				g.Exit("x")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, g.InFlight())
}

func TestStatus_Utilization(t *testing.T) {
	g := New(4, quiet())
	g.TryEnter("a")
	g.TryEnter("b")

	s := g.Status()
	assert.Equal(t, 2, s.InFlight)
	assert.Equal(t, 4, s.MaxInFlight)
	assert.InDelta(t, 50.0, s.UtilizationPercent, 0.001)
	assert.Equal(t, int64(2), s.TotalEntered)
}
