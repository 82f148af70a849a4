// Package ingestion discovers freshly created tokens on the curve program
// through two channels: a push subscription per WebSocket endpoint and a
// polling fallback over the HTTP endpoints. Both feed every unique signature
// through the dedup cache into one shared callback.
package ingestion

import (
	"context"
	"strings"
	"time"
)

// Candidate is one deduplicated signature handed to the pipeline.
type Candidate struct {
	Signature string
	Slot      int64
	Source    string
	SeenAt    time.Time
	Logs      []string
}

// CandidateFunc consumes candidates. Implementations run on the ingestion
// goroutine's child goroutines and must honor ctx.
type CandidateFunc func(ctx context.Context, c Candidate)

// Log markers that identify a token creation on the curve program. The
// subscription delivers a log excerpt alongside the signature; matching
// here avoids a transaction fetch for the overwhelming majority of
// notifications, which are trades.
const (
	createMarker   = "Program log: Instruction: Create"
	initMintMarker = "InitializeMint"
)

// IsCreation reports whether the log excerpt looks like a token creation.
// InitializeMint alone is ambiguous (any SPL mint emits it), so it only
// counts when the curve program also appears in the excerpt.
func IsCreation(logs []string, program string) bool {
	mentionsProgram := false
	sawInitMint := false
	for _, line := range logs {
		if strings.Contains(line, createMarker) {
			return true
		}
		if strings.Contains(line, initMintMarker) {
			sawInitMint = true
		}
		if strings.Contains(line, program) {
			mentionsProgram = true
		}
	}
	return sawInitMint && mentionsProgram
}
