// Package ingest consumes domain events from Kafka and turns them into
// queued notification intents.
package ingest

import (
	"github.com/DKorytin/Herald/internal/domain/notification"
)

// Event names accepted on the ingress topic.
const (
	EventUserCreated       = "user.created"
	EventUserUpdated       = "user.updated"
	EventNotifyRequested   = "notification.requested"
)

// Envelope is the JSON shape of one ingress message. For the user.*
// events the flat fields are set; notification.requested carries a full
// intent instead.
type Envelope struct {
	Event  string               `json:"event"`
	UserID string               `json:"user_id"`
	Email  string               `json:"email,omitempty"`
	Intent *notification.Intent `json:"intent,omitempty"`
}
