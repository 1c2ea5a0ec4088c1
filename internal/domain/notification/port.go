package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repo interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Notification, error)

	// MarkRead flips read to true for the record matching both id and
	// owner. A miss (wrong owner or unknown id) is a no-op, not an error.
	MarkRead(ctx context.Context, id uuid.UUID, userID string, at time.Time) error

	// MarkAllRead flips every unread record of the user. Idempotent.
	MarkAllRead(ctx context.Context, userID string, at time.Time) error
}

// Sender performs one delivery attempt over one channel. Senders carry no
// retry logic; retries belong to the delivery queue.
type Sender interface {
	Send(ctx context.Context, userID, title, body string, meta map[string]any) error
}

type Clock interface {
	Now() time.Time
}
