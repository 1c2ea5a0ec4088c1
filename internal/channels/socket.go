package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/DKorytin/Herald/internal/domain/notification"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var _ notification.Sender = (*SocketHub)(nil)

const (
	socketWriteWait  = 10 * time.Second
	socketPongWait   = 60 * time.Second
	socketPingPeriod = 50 * time.Second
	socketSendBuffer = 32
)

type socketFrame struct {
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	Ts      time.Time      `json:"ts"`
}

type socketClient struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// SocketHub fans realtime frames out to every websocket connection a user
// currently holds. Delivering to a user with no open connection succeeds
// and does nothing; realtime frames are fire-and-forget by nature.
// Safe for concurrent use.
type SocketHub struct {
	mu       sync.RWMutex
	clients  map[string]map[*socketClient]struct{}
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewSocketHub(log *zap.Logger) *SocketHub {
	return &SocketHub{
		clients: make(map[string]map[*socketClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log.With(zap.String("component", "channel.socket")),
	}
}

// ServeHTTP upgrades the connection and registers it under the user id
// from the query string. Caller authentication belongs to the embedding
// server, not here.
func (h *SocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	c := &socketClient{userID: userID, conn: conn, send: make(chan []byte, socketSendBuffer)}
	h.register(c)
	h.log.Info("socket client connected", zap.String("user_id", userID))

	go h.writePump(c)
	go h.readPump(c)
}

func (h *SocketHub) Send(_ context.Context, userID, title, body string, meta map[string]any) error {
	frame, err := json.Marshal(socketFrame{
		Title:   title,
		Message: body,
		Data:    meta,
		Ts:      time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := h.clients[userID]
	if len(conns) == 0 {
		h.log.Debug("no socket clients for user", zap.String("user_id", userID))
		return nil
	}
	for c := range conns {
		select {
		case c.send <- frame:
		default:
			// Slow consumer: drop the frame rather than block delivery.
			h.log.Warn("socket frame dropped", zap.String("user_id", userID))
		}
	}
	return nil
}

// Close tears down every connection. Used on shutdown.
func (h *SocketHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conns := range h.clients {
		for c := range conns {
			close(c.send)
			_ = c.conn.Close()
		}
	}
	h.clients = make(map[string]map[*socketClient]struct{})
}

func (h *SocketHub) register(c *socketClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*socketClient]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
}

func (h *SocketHub) unregister(c *socketClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[c.userID]; ok {
		if _, ok := conns[c]; ok {
			delete(conns, c)
			close(c.send)
			if len(conns) == 0 {
				delete(h.clients, c.userID)
			}
		}
	}
	_ = c.conn.Close()
}

func (h *SocketHub) writePump(c *socketClient) {
	ticker := time.NewTicker(socketPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; clients only listen. It exists to
// notice closes and keep the pong handler serviced.
func (h *SocketHub) readPump(c *socketClient) {
	defer h.unregister(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(socketPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(socketPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
