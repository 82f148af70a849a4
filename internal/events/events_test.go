package events

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_EmitStampsIDAndTime(t *testing.T) {
	r := NewRing(10)
	r.Emit(Record{Level: LevelInfo, Component: "gate", Message: "entered"})

	recent := r.Recent(1)
	require.Len(t, recent, 1)
	assert.NotEmpty(t, recent[0].ID)
	assert.False(t, recent[0].Timestamp.IsZero())
}

func TestRing_NewestFirst(t *testing.T) {
	r := NewRing(10)
	for i := 0; i < 3; i++ {
		r.Emit(Record{Message: fmt.Sprintf("m%d", i)})
	}

	recent := r.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "m2", recent[0].Message)
	assert.Equal(t, "m0", recent[2].Message)
}

func TestRing_WrapsAtCapacity(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.Emit(Record{Message: fmt.Sprintf("m%d", i)})
	}

	assert.Equal(t, 3, r.Len())
	recent := r.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "m4", recent[0].Message)
	assert.Equal(t, "m2", recent[2].Message)
}

func TestTee_FansOut(t *testing.T) {
	a, b := NewRing(5), NewRing(5)
	Tee{a, b}.Emit(Record{Message: "x"})

	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, a.Recent(1)[0].ID, b.Recent(1)[0].ID, "one ID stamped before fan-out")
}
