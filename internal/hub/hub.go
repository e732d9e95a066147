// Package hub broadcasts derived dashboard state to browser clients over
// websockets. Clients are read-mostly: the server pushes JSON snapshots
// and the browser renders them. A slow client gets dropped rather than
// allowed to stall the broadcast loop.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Message is one typed frame pushed to browsers.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message types consumed by the frontend.
const (
	TypeSessionData = "session_data"
	TypeFrameData   = "frame_data"
	TypeKillFeed    = "kill_feed"
	TypeStats       = "stats"
	TypeStatus      = "status"
	TypeProgress    = "progress"
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub tracks connected browsers and fans messages out to them.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}

	// lastFrame is replayed to newly connected clients so a browser
	// joining mid-session renders immediately.
	lastFrame []byte

	log *slog.Logger
}

type client struct {
	conn *ws.Conn
	send chan []byte
}

func New(log *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		log:     log,
	}
}

// ClientCount returns the number of connected browsers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast encodes and sends a typed message to every client. Frame
// messages are additionally cached for replay to late joiners.
func (h *Hub) Broadcast(msgType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("Failed to encode broadcast payload", "type", msgType, "error", err)
		return
	}
	data, err := json.Marshal(Message{Type: msgType, Payload: raw})
	if err != nil {
		h.log.Error("Failed to encode broadcast message", "type", msgType, "error", err)
		return
	}

	h.mu.Lock()
	if msgType == TypeFrameData {
		h.lastFrame = data
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client cannot keep up.
			delete(h.clients, c)
			close(c.send)
		}
	}
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and attaches the browser to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	last := h.lastFrame
	h.mu.Unlock()

	h.log.Info("Browser connected", "remote", r.RemoteAddr, "clients", h.ClientCount())

	if last != nil {
		c.send <- last
	}

	go h.writePump(c)
	go h.readPump(c)
}

// Shutdown closes every client connection.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}

// readPump discards inbound traffic and watches for disconnects. The
// browser never sends meaningful data over the hub socket; control
// actions go through the REST API.
func (h *Hub) readPump(c *client) {
	defer h.drop(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(ws.CloseMessage,
					ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(ws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
