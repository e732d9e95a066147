// Package telemetry consumes the exercise backend's websocket feeds.
// Each feed gets its own client goroutine that reads until the
// connection drops, then redials after a fixed delay, forever. Failures
// never surface to the operator beyond a passive status flag.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

// Status is the passive connection indicator for one feed.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusStopped      Status = "stopped"
)

// DefaultReconnectDelay applies when the configuration carries none.
const DefaultReconnectDelay = 5 * time.Second

// Client maintains one feed connection. Incoming messages are handed to
// the handler one at a time; the handler owns all decoding.
type Client struct {
	name    string
	url     string
	delay   time.Duration
	handler func([]byte)

	mu     sync.Mutex
	conn   *ws.Conn
	status Status

	log *slog.Logger
}

func NewClient(name, url string, delay time.Duration, handler func([]byte), log *slog.Logger) *Client {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return &Client{
		name:    name,
		url:     url,
		delay:   delay,
		handler: handler,
		status:  StatusReconnecting,
		log:     log,
	}
}

// Status returns the current connection state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// Run dials and reads until the context ends. Every connection loss is
// followed by the same fixed delay before the next dial attempt; there
// is no backoff growth and no attempt cap.
func (c *Client) Run(ctx context.Context) {
	defer c.setStatus(StatusStopped)
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := ws.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.setStatus(StatusReconnecting)
			c.log.Warn("Feed dial failed", "feed", c.name, "url", c.url, "error", err)
			if !c.sleep(ctx) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.status = StatusConnected
		c.mu.Unlock()
		c.log.Info("Feed connected", "feed", c.name, "url", c.url)

		c.readLoop(ctx, conn)

		c.setStatus(StatusReconnecting)
		if !c.sleep(ctx) {
			return
		}
	}
}

// readLoop reads until the connection drops or the context ends.
func (c *Client) readLoop(ctx context.Context, conn *ws.Conn) {
	defer conn.Close()

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("Feed read error", "feed", c.name, "error", err)
			}
			return
		}
		c.handler(message)
	}
}

// sleep waits out the reconnect delay. Returns false when the context
// ended first.
func (c *Client) sleep(ctx context.Context) bool {
	timer := time.NewTimer(c.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
