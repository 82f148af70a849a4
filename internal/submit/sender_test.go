package submit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Whit-fire/MHFTSB/internal/events"
	"github.com/Whit-fire/MHFTSB/internal/rpcpool"
)

func quiet() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func sendStub(t *testing.T, body string, gotMethod *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64 `json:"id"`
			Method string `json:"method"`
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &req)
		if gotMethod != nil {
			*gotMethod = req.Method
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,%s}`, req.ID, body)
	}))
}

type captureSink struct {
	samples []Sample
}

func (c *captureSink) Observe(s Sample) {
	c.samples = append(c.samples, s)
}

func TestSender_DirectSuccess(t *testing.T) {
	var method string
	srv := sendStub(t, `"result":"5igN4tUre"`, &method)
	defer srv.Close()

	reg := rpcpool.NewRegistry(quiet())
	reg.Configure([]rpcpool.Descriptor{{URL: srv.URL, Pool: rpcpool.PoolFast}})

	sink := &captureSink{}
	ring := events.NewRing(10)
	s := NewSender(reg, quiet(), WithLatencySink(sink), WithEventLog(ring))

	res, err := s.Submit(context.Background(), "dGVzdA==")
	require.NoError(t, err)
	assert.Equal(t, "sendTransaction", method)
	assert.Equal(t, "5igN4tUre", res.Signature)
	assert.False(t, res.Bundle)

	st := s.Stats()
	assert.Equal(t, 1, st.Total)
	assert.Equal(t, 1, st.Successful)
	assert.Equal(t, 100.0, st.SuccessRate)

	require.Len(t, sink.samples, 1)
	assert.True(t, sink.samples[0].Success)
	assert.Equal(t, 1, ring.Len())
}

func TestSender_PrefersBundleEndpoint(t *testing.T) {
	direct := sendStub(t, `"result":"directSig"`, nil)
	defer direct.Close()
	bundle := sendStub(t, `"result":"bundleSig"`, nil)
	defer bundle.Close()

	reg := rpcpool.NewRegistry(quiet())
	reg.Configure([]rpcpool.Descriptor{
		{URL: direct.URL, Pool: rpcpool.PoolFast},
		{URL: bundle.URL, Pool: rpcpool.PoolBundle},
	})

	s := NewSender(reg, quiet())
	res, err := s.Submit(context.Background(), "dGVzdA==")
	require.NoError(t, err)
	assert.True(t, res.Bundle)
	assert.Equal(t, "bundleSig", res.Signature)
}

func TestSender_FailureNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req struct {
			ID uint64 `json:"id"`
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &req)
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"error":{"code":-32002,"message":"Blockhash not found"}}`, req.ID)
	}))
	defer srv.Close()

	reg := rpcpool.NewRegistry(quiet())
	reg.Configure([]rpcpool.Descriptor{{URL: srv.URL, Pool: rpcpool.PoolFast}})

	s := NewSender(reg, quiet())
	res, err := s.Submit(context.Background(), "dGVzdA==")
	require.Error(t, err)
	assert.Equal(t, 1, calls, "fire and forget, no retry")
	assert.Empty(t, res.Signature)

	st := s.Stats()
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, "blockhash_not_found", st.LastErrorType)
}

func TestSender_NoEndpoint(t *testing.T) {
	s := NewSender(rpcpool.NewRegistry(quiet()), quiet())
	_, err := s.Submit(context.Background(), "dGVzdA==")
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err      string
		wantType string
		expected bool
	}{
		{"Error: seeds constraint violated in ix 3", "seeds_constraint", true},
		{"Transaction unauthorized by signer", "not_authorized", true},
		{"AccountNotInitialized at slot 5", "account_not_initialized", true},
		{"custom program error: 0x1772 slippage tolerance exceeded", "slippage_exceeded", true},
		{"custom program error: 0x1", "custom_error", true},
		{"Blockhash not found", "blockhash_not_found", false},
		{"Attempt to debit an account but found insufficient funds", "insufficient_funds", false},
		{"something nobody has seen", "unknown", false},
	}
	for _, tc := range cases {
		got := Classify(errors.New(tc.err))
		assert.Equal(t, tc.wantType, got.Type, tc.err)
		assert.Equal(t, tc.expected, got.Expected, tc.err)
		assert.Equal(t, tc.err, got.Raw)
	}

	assert.Equal(t, "none", Classify(nil).Type)
}

func TestSimulator(t *testing.T) {
	sim := NewSimulator(1)
	sim.SuccessRate = 1.0

	res, err := sim.Submit(context.Background(), "dGVzdA==")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Signature, "sim_"))
	assert.Len(t, res.Signature, 4+64)

	st := sim.Stats()
	assert.Equal(t, 1, st.Total)
	assert.Equal(t, 100.0, st.SuccessRate)
}

func TestSimulator_FailureRate(t *testing.T) {
	sim := NewSimulator(7)
	sim.SuccessRate = 0.0001 // effectively always fails

	_, err := sim.Submit(context.Background(), "dGVzdA==")
	assert.Error(t, err)
	assert.Equal(t, 1, sim.Stats().Failed)
}
