package solana

import (
	"errors"
	"fmt"
)

// JSON-RPC error code returned by providers on bad or expired API keys.
const authErrorCode = -32401

// ErrNotFound is returned when a transaction or account is not yet indexed.
// Callers treat this as transient; a large fraction of fresh signatures hit
// it before the provider catches up.
var ErrNotFound = errors.New("solana: not found")

// ErrRateLimited is returned on HTTP 429 responses.
var ErrRateLimited = errors.New("solana: rate limited")

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// IsAuthError reports whether err is an authorization failure. These are
// routed to the endpoint registry rather than the ordinary retry path.
func IsAuthError(err error) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == authErrorCode
	}
	return false
}

// IsRateLimited reports whether err is a 429-class rejection.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
