package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type streamMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
}

func dialStatusStream(t *testing.T, api *testAPI) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(api.router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws/status"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// nextMessage reads until a message of the wanted type arrives
func nextMessage(t *testing.T, conn *websocket.Conn, wanted string) streamMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg streamMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == wanted {
			return msg
		}
	}
}

func TestStatusStreamSendsInitialSnapshots(t *testing.T) {
	api := newTestAPI(t, true)
	conn := dialStatusStream(t, api)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first, second streamMessage
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))

	assert.Equal(t, MessageSyncStatus, first.Type)
	assert.Equal(t, MessageNetworkStatus, second.Type)
	assert.Contains(t, string(second.Data), `"is_online":true`)
}

func TestStatusStreamPingAndVisibility(t *testing.T) {
	api := newTestAPI(t, true)
	conn := dialStatusStream(t, api)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": MessagePing, "request_id": "r1"}))
	pong := nextMessage(t, conn, MessagePong)
	assert.Equal(t, "r1", pong.RequestID)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": MessageVisibility,
		"data": map[string]bool{"visible": true},
	}))
	require.Eventually(t, func() bool {
		return len(api.monitor.visibility()) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "bogus"}))
	errMsg := nextMessage(t, conn, MessageError)
	assert.Contains(t, string(errMsg.Data), "bogus")
}

func TestStatusStreamPushesChanges(t *testing.T) {
	api := newTestAPI(t, false)
	conn := dialStatusStream(t, api)
	nextMessage(t, conn, MessageNetworkStatus)

	w, _ := api.do(t, http.MethodPost, "/api/v1/orders", checkoutBody("1000", "0", "0", "1000"))
	require.Equal(t, http.StatusCreated, w.Code)

	status := nextMessage(t, conn, MessageSyncStatus)
	assert.Contains(t, string(status.Data), `"pending_orders":1`)

	api.monitor.setOnline(true)
	network := nextMessage(t, conn, MessageNetworkStatus)
	assert.Contains(t, string(network.Data), `"is_online":true`)
}

func TestStatusStreamForceSync(t *testing.T) {
	api := newTestAPI(t, true)
	conn := dialStatusStream(t, api)

	w, _ := api.do(t, http.MethodPost, "/api/v1/orders", checkoutBody("1000", "0", "0", "1000"))
	require.Equal(t, http.StatusCreated, w.Code)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": MessageForceSync, "request_id": "sync-1"}))
	result := nextMessage(t, conn, MessageSyncResult)
	assert.Equal(t, "sync-1", result.RequestID)
	assert.Contains(t, string(result.Data), `"success":true`)
	assert.Contains(t, string(result.Data), `"synced":1`)
}

func TestConnectionManagerClose(t *testing.T) {
	cm := NewConnectionManager()
	client := &Client{ID: "c1", Send: make(chan []byte, 1)}

	require.True(t, cm.Register(client))
	assert.Equal(t, 0, cm.Broadcast([]byte("a")))
	assert.Equal(t, 1, cm.Broadcast([]byte("b")))

	cm.Close()
	assert.False(t, cm.Register(&Client{ID: "c2", Send: make(chan []byte)}))
	assert.False(t, cm.Send(client, []byte("c")))

	<-client.Send
	_, open := <-client.Send
	assert.False(t, open)
	cm.Unregister(client)
}

func TestStatusStreamCloseStopsFanOut(t *testing.T) {
	api := newTestAPI(t, false)

	api.ws.Close()
	api.ws.Close()

	require.NotPanics(t, func() {
		api.monitor.setOnline(true)
		w, _ := api.do(t, http.MethodPost, "/api/v1/orders", checkoutBody("10000", "0", "0", "10000"))
		assert.Equal(t, http.StatusCreated, w.Code)
	})
	assert.Zero(t, api.ws.GetConnectionStats().TotalConnections)
}
