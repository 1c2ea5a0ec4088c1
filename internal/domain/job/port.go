package job

import (
	"context"

	"github.com/DKorytin/Herald/internal/domain/notification"
	"github.com/google/uuid"
)

// Queue is a durable, at-least-once work queue. Workers claim jobs through
// Lease and report outcomes through Ack/Nack; all attempt bookkeeping and
// the exhaustion transition live behind this interface, never in callers.
type Queue interface {
	Enqueue(ctx context.Context, payload notification.Intent, opts Options) (uuid.UUID, error)
	EnqueueBulk(ctx context.Context, payloads []notification.Intent) ([]uuid.UUID, error)

	// Lease claims the highest-priority ready job (lowest priority value
	// first, FIFO within a tier). Returns nil when nothing is ready.
	Lease(ctx context.Context) (*Job, error)

	Ack(ctx context.Context, id uuid.UUID) error

	// Nack reschedules the job with exponential backoff, or moves it to
	// the dead state once attempts are exhausted. Idempotent.
	Nack(ctx context.Context, id uuid.UUID, cause error) error
}
