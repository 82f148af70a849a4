package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Whit-fire/MHFTSB/internal/dedup"
)

// wsServer accepts logsSubscribe and pushes canned notifications.
type wsServer struct {
	t       *testing.T
	srv     *httptest.Server
	notifs  [][]string // log lines per notification
	sigs    []string
	dials   int
	dialsMu sync.Mutex
}

func newWSServer(t *testing.T, sigs []string, notifs [][]string) *wsServer {
	s := &wsServer{t: t, sigs: sigs, notifs: notifs}
	upgrader := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.dialsMu.Lock()
		s.dials++
		s.dialsMu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// Subscription handshake.
		_, _, err = conn.ReadMessage()
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":1,"result":23}`)))

		for i, logs := range s.notifs {
			payload := map[string]interface{}{
				"jsonrpc": "2.0",
				"method":  "logsNotification",
				"params": map[string]interface{}{
					"result": map[string]interface{}{
						"context": map[string]interface{}{"slot": 100 + i},
						"value": map[string]interface{}{
							"signature": s.sigs[i],
							"logs":      logs,
							"err":       nil,
						},
					},
				},
			}
			data, err := json.Marshal(payload)
			require.NoError(t, err)
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
		}

		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) dialCount() int {
	s.dialsMu.Lock()
	defer s.dialsMu.Unlock()
	return s.dials
}

func createLogs() []string {
	return []string{
		"Program " + testProgram + " invoke [1]",
		"Program log: Instruction: Create",
	}
}

func tradeLogs() []string {
	return []string{
		"Program " + testProgram + " invoke [1]",
		"Program log: Instruction: Buy",
	}
}

func TestListener_DeliversUniqueCreations(t *testing.T) {
	srv := newWSServer(t,
		[]string{"sigA", "sigB", "sigA", "sigC"},
		[][]string{createLogs(), tradeLogs(), createLogs(), createLogs()},
	)
	defer srv.srv.Close()

	var mu sync.Mutex
	var got []string
	callback := func(_ context.Context, c Candidate) {
		mu.Lock()
		got = append(got, c.Signature)
		mu.Unlock()
	}

	cache := dedup.NewCache(100, time.Minute)
	l := NewListener(srv.url(), testProgram, cache, callback, quietLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	// sigB is a trade, the second sigA is a duplicate.
	assert.ElementsMatch(t, []string{"sigA", "sigC"}, got)

	status := l.Status()
	assert.Equal(t, int64(2), status.Creations)
	assert.False(t, status.Disabled)
}

func TestListener_DisablesAfterConsecutiveFailures(t *testing.T) {
	// Plain HTTP server: every websocket dial fails the handshake.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cache := dedup.NewCache(100, time.Minute)
	l := NewListener("ws"+strings.TrimPrefix(srv.URL, "http"), testProgram, cache,
		func(context.Context, Candidate) {}, quietLogger(), nil)

	// Exhaust the failure budget without waiting for real backoff.
	for i := 0; i < maxConsecutive; i++ {
		if l.recordFailure(fmt.Errorf("websocket dial: bad handshake")) {
			break
		}
	}

	status := l.Status()
	assert.True(t, status.Disabled)
	assert.Equal(t, maxConsecutive, status.Failures)
}

func TestListener_AuthFailureDisablesImmediately(t *testing.T) {
	cache := dedup.NewCache(100, time.Minute)
	l := NewListener("ws://unused", testProgram, cache,
		func(context.Context, Candidate) {}, quietLogger(), nil)

	disabled := l.recordFailure(fmt.Errorf("websocket dial: bad handshake: 401 Unauthorized"))
	assert.True(t, disabled)
	assert.True(t, l.Status().Disabled)
	assert.Equal(t, 1, l.Status().Failures)
}

func TestListener_RunStopsWhenDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	cache := dedup.NewCache(100, time.Minute)
	l := NewListener("ws"+strings.TrimPrefix(srv.URL, "http"), testProgram, cache,
		func(context.Context, Candidate) {}, quietLogger(), nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("listener did not disable itself on auth failure")
	}
	assert.True(t, l.Status().Disabled)
}
