package notification

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Channel is a closed set of delivery mediums. Unknown values are rejected
// at parse time instead of silently falling back to email.
type Channel string

const (
	ChannelEmail  Channel = "email"
	ChannelSMS    Channel = "sms"
	ChannelPush   Channel = "push"
	ChannelSocket Channel = "websocket"

	// ChannelAll fans out to email, push and websocket. SMS is excluded
	// from the fan-out.
	ChannelAll Channel = "all"
)

func ParseChannel(s string) (Channel, error) {
	switch c := Channel(s); c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelSocket, ChannelAll:
		return c, nil
	default:
		return "", fmt.Errorf("unknown channel %q", s)
	}
}

func (c Channel) Valid() bool {
	_, err := ParseChannel(string(c))
	return err == nil
}

// Resolve collapses the selector to the single channel stored on the
// persisted record. "all" is stored as email even though delivery fans out
// to several channels; known limitation kept for compatibility with the
// existing data.
func (c Channel) Resolve() Channel {
	if c == ChannelAll {
		return ChannelEmail
	}
	return c
}

// Intent is a request to deliver one notification. It is what callers hand
// to the service and what rides in the delivery-queue payload; the persisted
// record is derived from it.
type Intent struct {
	UserID   string         `json:"user_id"`
	Channel  Channel        `json:"type"`
	Title    string         `json:"title"`
	Body     string         `json:"message"`
	Meta     map[string]any `json:"data,omitempty"`
	Priority int            `json:"priority,omitempty"`
}

type Notification struct {
	ID        uuid.UUID      `json:"id"`
	UserID    string         `json:"user_id"`
	Channel   Channel        `json:"type"`
	Title     string         `json:"title"`
	Body      string         `json:"message"`
	Meta      map[string]any `json:"data,omitempty"`
	Read      bool           `json:"read"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
