package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WS client defaults.
const (
	wsHandshakeTimeout = 10 * time.Second
	wsSubscribeTimeout = 30 * time.Second
	wsPingInterval     = 20 * time.Second
	wsReadTimeout      = 60 * time.Second
	wsWriteTimeout     = 10 * time.Second
)

// LogNotification is a logsNotification payload.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}

// LogsConn is a single logsSubscribe subscription over one WebSocket
// connection. It does not reconnect; the ingestion layer owns backoff and
// failure accounting per endpoint, so a broken connection simply surfaces
// from Recv.
type LogsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool
	done    chan struct{}
}

// DialLogs connects to a WebSocket endpoint and subscribes to logs
// mentioning the given program at processed commitment. It blocks until the
// subscription is confirmed or the context expires.
func DialLogs(ctx context.Context, endpoint, program string) (*LogsConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		// Surface the HTTP status so callers can tell an auth rejection
		// from a transport failure.
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &LogsConn{
		conn: conn,
		done: make(chan struct{}),
	}

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "logsSubscribe",
		Params: []interface{}{
			map[string]interface{}{"mentions": []string{program}},
			map[string]string{"commitment": "processed"},
		},
	}
	if err := c.writeJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	// Wait for the subscription confirmation before handing the connection
	// to the caller; notifications may interleave only after it.
	deadline := time.Now().Add(wsSubscribeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("read subscribe response: %w", err)
		}
		var resp wsSubscribeResponse
		if json.Unmarshal(message, &resp) == nil && resp.Error != nil {
			conn.Close()
			return nil, resp.Error
		}
		if json.Unmarshal(message, &resp) == nil && resp.Result > 0 {
			break
		}
	}

	go c.pingLoop()
	return c, nil
}

// Recv blocks until the next log notification, a connection error, or
// context cancellation. Non-notification frames are skipped.
func (c *LogsConn) Recv(ctx context.Context) (LogNotification, error) {
	for {
		if err := ctx.Err(); err != nil {
			return LogNotification{}, err
		}

		c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return LogNotification{}, fmt.Errorf("websocket read: %w", err)
		}

		var notif wsNotification
		if err := json.Unmarshal(message, &notif); err != nil || notif.Method != "logsNotification" || notif.Params == nil {
			continue
		}

		value := notif.Params.Result.Value
		out := LogNotification{
			Signature: value.Signature,
			Logs:      value.Logs,
			Err:       value.Err,
		}
		if notif.Params.Result.Context != nil {
			out.Slot = notif.Params.Result.Context.Slot
		}
		return out, nil
	}
}

// Close shuts down the connection.
func (c *LogsConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)
	c.writeMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *LogsConn) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(v)
}

// pingLoop keeps the connection alive. A failed ping is not acted on here;
// the reader sees the broken connection first.
func (c *LogsConn) pingLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
		}
	}
}

// WebSocket message types.

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      uint64    `json:"id"`
	Result  int64     `json:"result"` // subscription ID
	Error   *RPCError `json:"error,omitempty"`
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}
