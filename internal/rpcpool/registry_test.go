package rpcpool

import (
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestRegistry(descs ...Descriptor) *Registry {
	r := NewRegistry(quiet())
	r.Configure(descs)
	return r
}

func TestUpdateHealth_ScoreFormula(t *testing.T) {
	ep := newEndpoint(Descriptor{URL: "http://a"})

	ep.UpdateHealth(50, 0)
	assert.InDelta(t, 95.0, ep.HealthScore(), 0.001, "100 - 50/10 - 0 - 0")

	ep.UpdateHealth(100, 2)
	assert.InDelta(t, 80.0, ep.HealthScore(), 0.001, "100 - 10 - 10 - 0")
}

func TestUpdateHealth_FlooredAtZero(t *testing.T) {
	ep := newEndpoint(Descriptor{URL: "http://a"})
	ep.UpdateHealth(2000, 10)
	assert.Equal(t, 0.0, ep.HealthScore())
}

func TestMarkRateLimited_StrictlyDecreasesHealth(t *testing.T) {
	r := newTestRegistry(Descriptor{URL: "http://a", Pool: PoolFast})
	ep := r.find("http://a")
	require.NotNil(t, ep)

	before := ep.HealthScore()
	r.MarkRateLimited("http://a")
	assert.Less(t, ep.HealthScore(), before)
	assert.False(t, ep.Available(), "short cooldown applies")

	// The hit count feeds the next probe's score.
	ep.UpdateHealth(50, 0)
	assert.InDelta(t, 85.0, ep.HealthScore(), 0.001, "100 - 5 - 0 - 10")
}

func TestMarkAuthFailure_ExcludedFromSelection(t *testing.T) {
	r := newTestRegistry(
		Descriptor{URL: "http://a", Pool: PoolFast},
		Descriptor{URL: "http://b", Pool: PoolFast},
	)

	r.MarkAuthFailure("http://a")

	best := r.BestFetchEndpoint()
	require.NotNil(t, best)
	assert.Equal(t, "http://b", best.URL)

	for _, ep := range r.AllAvailable() {
		assert.NotEqual(t, "http://a", ep.URL, "auth-failed endpoint must not be selectable")
	}
}

func TestBestFetchEndpoint_FastThenColdThenAny(t *testing.T) {
	r := newTestRegistry(
		Descriptor{URL: "http://fast", Pool: PoolFast},
		Descriptor{URL: "http://cold", Pool: PoolCold},
	)

	assert.Equal(t, "http://fast", r.BestFetchEndpoint().URL)

	r.MarkAuthFailure("http://fast")
	assert.Equal(t, "http://cold", r.BestFetchEndpoint().URL)

	r.MarkAuthFailure("http://cold")
	// Everything cooling down: still never empty while something is configured.
	require.NotNil(t, r.BestFetchEndpoint())
}

func TestBestFetchEndpoint_NothingConfigured(t *testing.T) {
	r := newTestRegistry()
	assert.Nil(t, r.BestFetchEndpoint())
}

func TestAllAvailable_SortedByScore(t *testing.T) {
	r := newTestRegistry(
		Descriptor{URL: "http://a", Pool: PoolFast},
		Descriptor{URL: "http://b", Pool: PoolFast},
		Descriptor{URL: "http://c", Pool: PoolCold},
	)
	r.find("http://a").UpdateHealth(300, 0) // 70
	r.find("http://b").UpdateHealth(50, 0)  // 95
	r.find("http://c").UpdateHealth(100, 0) // 90

	avail := r.AllAvailable()
	require.Len(t, avail, 3)
	assert.Equal(t, "http://b", avail[0].URL)
	assert.Equal(t, "http://c", avail[1].URL)
	assert.Equal(t, "http://a", avail[2].URL)
}

func TestConfigure_ReplacesWholesale(t *testing.T) {
	r := newTestRegistry(Descriptor{URL: "http://a", Pool: PoolFast})
	r.MarkRateLimited("http://a")

	r.Configure([]Descriptor{{URL: "http://a", Pool: PoolFast}})
	ep := r.find("http://a")
	require.NotNil(t, ep)
	assert.Equal(t, maxHealthScore, ep.HealthScore(), "reconfiguration resets counters")
	assert.True(t, ep.Available())
}

func TestBundleEndpoint(t *testing.T) {
	r := newTestRegistry(
		Descriptor{URL: "http://fast", Pool: PoolFast},
		Descriptor{URL: "http://bundle", Pool: PoolBundle},
	)
	ep := r.BundleEndpoint()
	require.NotNil(t, ep)
	assert.Equal(t, "http://bundle", ep.URL)

	// Cooling down still yields the configured bundle endpoint.
	r.MarkAuthFailure("http://bundle")
	require.NotNil(t, r.BundleEndpoint())
}

func TestSnapshot(t *testing.T) {
	r := newTestRegistry(
		Descriptor{URL: "http://a", Pool: PoolFast, Role: "premium"},
		Descriptor{URL: "http://b", Pool: PoolCold},
	)
	r.MarkRateLimited("http://a")

	snap := r.Snapshot()
	assert.Equal(t, 1, snap.FastPool)
	assert.Equal(t, 1, snap.ColdPool)
	assert.Equal(t, 1, snap.TotalRateHits)
	assert.Len(t, snap.Endpoints, 2)
}
