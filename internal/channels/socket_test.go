package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dialHub(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestSocketHub_DeliversToConnectedUser(t *testing.T) {
	hub := NewSocketHub(zap.NewNop())
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv, "u1")

	require.NoError(t, hub.Send(context.Background(), "u1", "Hello", "world", map[string]any{"k": "v"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame socketFrame
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, "Hello", frame.Title)
	assert.Equal(t, "world", frame.Message)
	assert.Equal(t, map[string]any{"k": "v"}, frame.Data)
	assert.False(t, frame.Ts.IsZero())
}

func TestSocketHub_NoClientsIsSuccess(t *testing.T) {
	hub := NewSocketHub(zap.NewNop())
	defer hub.Close()

	// realtime frames are fire-and-forget
	assert.NoError(t, hub.Send(context.Background(), "nobody", "Hi", "", nil))
}

func TestSocketHub_IsolatesUsers(t *testing.T) {
	hub := NewSocketHub(zap.NewNop())
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	connA := dialHub(t, srv, "a")
	connB := dialHub(t, srv, "b")

	require.NoError(t, hub.Send(context.Background(), "a", "ForA", "", nil))

	_ = connA.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := connA.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "ForA")

	_ = connB.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = connB.ReadMessage()
	assert.Error(t, err, "other users must not receive the frame")
}

func TestSocketHub_RequiresUserID(t *testing.T) {
	hub := NewSocketHub(zap.NewNop())
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
