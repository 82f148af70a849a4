package dedup

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd_FirstSightingOnly(t *testing.T) {
	c := NewCache(10, time.Minute)

	require.True(t, c.Add("sig1"))
	assert.False(t, c.Add("sig1"))
	assert.False(t, c.Add("sig1"))
	assert.True(t, c.Add("sig2"))
}

func TestAdd_EvictsOldestOverCapacity(t *testing.T) {
	c := NewCache(3, time.Minute)

	c.Add("a")
	c.Add("b")
	c.Add("c")
	require.Equal(t, 3, c.Len())

	// Fourth insertion evicts "a", the single oldest entry.
	c.Add("d")
	assert.Equal(t, 3, c.Len())
	assert.True(t, c.Add("a"), "evicted key should be accepted again")
}

func TestAdd_SizeNeverExceedsMax(t *testing.T) {
	c := NewCache(100, time.Minute)
	for i := 0; i < 1000; i++ {
		c.Add(fmt.Sprintf("sig-%d", i))
		require.LessOrEqual(t, c.Len(), 100)
	}
}

func TestCleanup_RemovesExpiredOnly(t *testing.T) {
	c := NewCache(10, time.Minute)
	current := time.Now()
	c.now = func() time.Time { return current }

	c.Add("old1")
	c.Add("old2")

	current = current.Add(30 * time.Second)
	c.Add("young")

	current = current.Add(45 * time.Second) // old* now 75s old, young 45s
	removed := c.Cleanup()

	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Len())
	assert.False(t, c.Add("young"))
	assert.True(t, c.Add("old1"), "expired key is a fresh sighting again")
}

func TestCleanup_EmptyCache(t *testing.T) {
	c := NewCache(10, time.Minute)
	assert.Equal(t, 0, c.Cleanup())
}
