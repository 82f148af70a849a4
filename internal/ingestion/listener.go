package ingestion

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/Whit-fire/MHFTSB/internal/dedup"
	"github.com/Whit-fire/MHFTSB/internal/events"
	"github.com/Whit-fire/MHFTSB/internal/solana"
)

// Reconnect policy. A listener that keeps failing is abandoned for the
// session; the poller still covers its endpoint's data.
const (
	reconnectBase   = 2 * time.Second
	reconnectCap    = 60 * time.Second
	maxConsecutive  = 5
	listenerChannel = "wss"
)

// Listener owns one logsSubscribe subscription to one WebSocket endpoint and
// reconnects it with exponential backoff.
type Listener struct {
	url      string
	program  string
	cache    *dedup.Cache
	callback CandidateFunc
	logger   *log.Logger
	log      events.Log

	mu        sync.Mutex
	connected bool
	disabled  bool
	failures  int
	received  int64
	creations int64
}

// NewListener creates a listener for one WS endpoint.
func NewListener(url, program string, cache *dedup.Cache, callback CandidateFunc, logger *log.Logger, eventLog events.Log) *Listener {
	if logger == nil {
		logger = log.Default()
	}
	if eventLog == nil {
		eventLog = events.Discard{}
	}
	return &Listener{
		url:      url,
		program:  program,
		cache:    cache,
		callback: callback,
		logger:   logger,
		log:      eventLog,
	}
}

// Run subscribes and consumes notifications until ctx is cancelled or the
// listener disables itself. Always returns nil; a dead listener is a
// degraded mode, not a reason to stop the others.
func (l *Listener) Run(ctx context.Context) error {
	delay := reconnectBase
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := solana.DialLogs(ctx, l.url, l.program)
		if err != nil {
			if l.recordFailure(err) {
				return nil
			}
			if !sleep(ctx, delay) {
				return nil
			}
			delay = min(delay*2, reconnectCap)
			continue
		}

		l.setConnected(true)
		delay = reconnectBase
		l.logger.Printf("[ingestion] %s subscribed: %s", listenerChannel, short(l.url))

		err = l.consume(ctx, conn)
		conn.Close()
		l.setConnected(false)
		if ctx.Err() != nil {
			return nil
		}
		if l.recordFailure(err) {
			return nil
		}
		if !sleep(ctx, delay) {
			return nil
		}
		delay = min(delay*2, reconnectCap)
	}
}

// consume reads notifications until the connection breaks. A full read loop
// without errors counts as recovery, resetting the failure streak.
func (l *Listener) consume(ctx context.Context, conn *solana.LogsConn) error {
	for {
		notif, err := conn.Recv(ctx)
		if err != nil {
			return err
		}

		l.mu.Lock()
		l.received++
		l.failures = 0
		l.mu.Unlock()

		// Failed transactions carry no usable clone template.
		if notif.Err != nil {
			continue
		}
		if !IsCreation(notif.Logs, l.program) {
			continue
		}
		if !l.cache.Add(notif.Signature) {
			continue
		}

		l.mu.Lock()
		l.creations++
		l.mu.Unlock()

		l.logger.Printf("[ingestion] create detected: %s", short(notif.Signature))
		l.log.Emit(events.Record{
			Level:     events.LevelInfo,
			Component: "ingestion",
			Message:   "candidate observed",
			Data: map[string]interface{}{
				"signature": notif.Signature,
				"source":    listenerChannel,
				"slot":      notif.Slot,
			},
		})

		c := Candidate{
			Signature: notif.Signature,
			Slot:      notif.Slot,
			Source:    listenerChannel,
			SeenAt:    time.Now().UTC(),
			Logs:      notif.Logs,
		}
		go l.callback(ctx, c)
	}
}

// recordFailure tracks the consecutive-failure streak and reports whether
// the listener is now permanently disabled. Authorization failures disable
// immediately; the endpoint will refuse this key all session.
func (l *Listener) recordFailure(err error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.failures++
	auth := isAuthHandshake(err)
	if auth || l.failures >= maxConsecutive {
		l.disabled = true
		l.logger.Printf("[ingestion] %s disabled after %d failures (auth=%v): %s, last error: %v",
			listenerChannel, l.failures, auth, short(l.url), err)
		l.log.Emit(events.Record{
			Level:     events.LevelWarn,
			Component: "ingestion",
			Message:   "subscription channel disabled",
			Data:      map[string]interface{}{"url": short(l.url), "failures": l.failures},
		})
		return true
	}

	l.logger.Printf("[ingestion] %s error %d/%d: %s: %v", listenerChannel, l.failures, maxConsecutive, short(l.url), err)
	return false
}

func (l *Listener) setConnected(v bool) {
	l.mu.Lock()
	l.connected = v
	l.mu.Unlock()
}

// ListenerStatus is a point-in-time view for the status surface.
type ListenerStatus struct {
	URL       string `json:"url"`
	Connected bool   `json:"connected"`
	Disabled  bool   `json:"disabled"`
	Failures  int    `json:"failures"`
	Received  int64  `json:"received"`
	Creations int64  `json:"creations"`
}

// Status returns the listener's counters.
func (l *Listener) Status() ListenerStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ListenerStatus{
		URL:       short(l.url),
		Connected: l.connected,
		Disabled:  l.disabled,
		Failures:  l.failures,
		Received:  l.received,
		Creations: l.creations,
	}
}

// isAuthHandshake detects an authorization rejection during dial or read.
// WebSocket providers surface bad keys as HTTP handshake failures.
func isAuthHandshake(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "401") ||
		strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "api key")
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func short(s string) string {
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}
