package parse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Whit-fire/MHFTSB/internal/rpcpool"
)

func quiet() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// rpcStub answers getTransaction with a fixed JSON-RPC body.
func rpcStub(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID uint64 `json:"id"`
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &req)
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,%s}`, req.ID, body)
	}))
}

func validTxJSON() string {
	accounts := curveAccounts()
	keysJSON, _ := json.Marshal(func() []map[string]interface{} {
		out := make([]map[string]interface{}, 0, len(accounts))
		for _, acc := range accounts {
			out = append(out, map[string]interface{}{
				"pubkey": acc, "signer": acc == "Buyer1111", "writable": acc == "Buyer1111",
			})
		}
		return out
	}())
	accountsJSON, _ := json.Marshal(accounts)
	return fmt.Sprintf(`"result":{"slot":99,"meta":{"err":null,"postTokenBalances":[{"mint":"Mint1111","owner":"Buyer1111"}]},"transaction":{"message":{"accountKeys":%s,"instructions":[{"programId":%q,"accounts":%s,"data":""}]}}}`,
		keysJSON, testProgram, accountsJSON)
}

func TestResolver_HappyPath(t *testing.T) {
	srv := rpcStub(t, validTxJSON())
	defer srv.Close()

	reg := rpcpool.NewRegistry(quiet())
	reg.Configure([]rpcpool.Descriptor{{URL: srv.URL, Pool: rpcpool.PoolFast}})

	r := NewResolver(reg, testProgram, quiet())
	f, err := r.Resolve(context.Background(), "sig1")
	require.NoError(t, err)
	assert.Equal(t, "Mint1111", f.Mint)
	assert.Equal(t, int64(99), f.Slot)
}

func TestResolver_AuthFailureFailsOver(t *testing.T) {
	bad := rpcStub(t, `"error":{"code":-32401,"message":"unauthorized"}`)
	defer bad.Close()
	good := rpcStub(t, validTxJSON())
	defer good.Close()

	reg := rpcpool.NewRegistry(quiet())
	reg.Configure([]rpcpool.Descriptor{
		{URL: bad.URL, Pool: rpcpool.PoolFast},
		{URL: good.URL, Pool: rpcpool.PoolCold},
	})

	r := NewResolver(reg, testProgram, quiet())
	f, err := r.Resolve(context.Background(), "sig1")
	require.NoError(t, err)
	assert.Equal(t, "Mint1111", f.Mint)

	// The failing endpoint is now excluded from selection.
	for _, ep := range reg.AllAvailable() {
		assert.NotEqual(t, bad.URL, ep.URL)
	}
}

func TestResolver_NotFoundRetriesThenGivesUp(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req struct {
			ID uint64 `json:"id"`
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &req)
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":null}`, req.ID)
	}))
	defer srv.Close()

	reg := rpcpool.NewRegistry(quiet())
	reg.Configure([]rpcpool.Descriptor{{URL: srv.URL, Pool: rpcpool.PoolFast}})

	r := NewResolver(reg, testProgram, quiet(), WithNotFoundRetry(3, time.Millisecond))
	_, err := r.Resolve(context.Background(), "sig1")
	assert.ErrorIs(t, err, ErrUnresolvable)
	assert.Equal(t, 3, calls)
}

func TestResolver_FailedTransactionNotRetried(t *testing.T) {
	srv := rpcStub(t, `"result":{"slot":1,"meta":{"err":{"InstructionError":[0,"Custom"]}},"transaction":{"message":{"accountKeys":[],"instructions":[]}}}`)
	defer srv.Close()

	reg := rpcpool.NewRegistry(quiet())
	reg.Configure([]rpcpool.Descriptor{{URL: srv.URL, Pool: rpcpool.PoolFast}})

	r := NewResolver(reg, testProgram, quiet(), WithNotFoundRetry(2, time.Millisecond))
	_, err := r.Resolve(context.Background(), "sig1")
	assert.ErrorIs(t, err, ErrFailedTransaction)
}

func TestResolver_NoEndpoints(t *testing.T) {
	reg := rpcpool.NewRegistry(quiet())
	r := NewResolver(reg, testProgram, quiet(), WithNotFoundRetry(1, time.Millisecond))
	_, err := r.Resolve(context.Background(), "sig1")
	assert.Error(t, err)
}
