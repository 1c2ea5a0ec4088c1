//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type cfg struct {
	KafkaBootstrap string
	EventsTopic    string
	WSBase         string // ws://localhost:8091
	WaitFrame      time.Duration
}

func loadCfg() cfg {
	return cfg{
		KafkaBootstrap: getenv("E2E_BOOTSTRAP", "localhost:19092"),
		EventsTopic:    getenv("E2E_EVENTS_TOPIC", "herald.events"),
		WSBase:         getenv("E2E_WS_BASE", "ws://localhost:8091"),
		WaitFrame:      mustParseDur(getenv("E2E_WAIT_FRAME", "30s")),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustParseDur(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(err)
	}
	return d
}

type wsFrame struct {
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

// The full realtime path: event lands in Kafka, the worker queues and
// dispatches it, the frame arrives on the user's open websocket.
func TestE2E_RealtimeNotification(t *testing.T) {
	c := loadCfg()
	userID := "e2e-" + time.Now().UTC().Format("20060102150405")

	conn, _, err := websocket.DefaultDialer.Dial(c.WSBase+"/ws/notifications?user_id="+userID, nil)
	require.NoError(t, err, "ws dial")
	defer conn.Close()

	w := &kafka.Writer{
		Addr:         kafka.TCP(c.KafkaBootstrap),
		Topic:        c.EventsTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	defer w.Close()

	payload, err := json.Marshal(map[string]any{
		"event":   "notification.requested",
		"user_id": userID,
		"intent": map[string]any{
			"user_id": userID,
			"type":    "websocket",
			"title":   "Deploy finished",
			"message": "Build #42 is live.",
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, w.WriteMessages(ctx, kafka.Message{Key: []byte(userID), Value: payload}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(c.WaitFrame)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err, "no frame arrived")

	var frame wsFrame
	require.NoError(t, json.Unmarshal(raw, &frame))
	require.Equal(t, "Deploy finished", frame.Title)
	require.Equal(t, "Build #42 is live.", frame.Message)
}
