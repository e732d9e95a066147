package hub

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	h := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server) *ws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *ws.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.ClientCount() == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcast_ReachesAllClients(t *testing.T) {
	h, srv := testHub(t)

	first := dial(t, srv)
	second := dial(t, srv)
	waitForClients(t, h, 2)

	h.Broadcast(TypeKillFeed, map[string]string{"attacker": "s1"})

	for _, conn := range []*ws.Conn{first, second} {
		msg := readMessage(t, conn)
		assert.Equal(t, TypeKillFeed, msg.Type)

		var payload map[string]string
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		assert.Equal(t, "s1", payload["attacker"])
	}
}

func TestBroadcast_LateJoinerGetsLastFrame(t *testing.T) {
	h, srv := testHub(t)

	h.Broadcast(TypeFrameData, map[string]int{"markers": 7})

	conn := dial(t, srv)
	msg := readMessage(t, conn)
	assert.Equal(t, TypeFrameData, msg.Type)

	var payload map[string]int
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, 7, payload["markers"])
}

func TestBroadcast_NonFrameNotCached(t *testing.T) {
	h, srv := testHub(t)

	h.Broadcast(TypeStats, map[string]int{"red": 3})

	conn := dial(t, srv)
	waitForClients(t, h, 1)
	h.Broadcast(TypeStatus, map[string]string{"soldiers": "connected"})

	// The first message must be the fresh status, not the stats replay.
	msg := readMessage(t, conn)
	assert.Equal(t, TypeStatus, msg.Type)
}

func TestClientDisconnect_Removed(t *testing.T) {
	h, srv := testHub(t)

	conn := dial(t, srv)
	waitForClients(t, h, 1)

	conn.Close()
	waitForClients(t, h, 0)
}

func TestShutdown_ClosesClients(t *testing.T) {
	h, srv := testHub(t)

	conn := dial(t, srv)
	waitForClients(t, h, 1)

	h.Shutdown(context.Background())
	assert.Equal(t, 0, h.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "server must close the connection")
}
