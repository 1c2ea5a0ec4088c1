package job

import (
	"time"

	"github.com/DKorytin/Herald/internal/domain/notification"
	"github.com/google/uuid"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusLeased  Status = "LEASED"
	// StatusDead is terminal: the retry budget is spent. Dead jobs are
	// never leased again; the row is kept with the last error.
	StatusDead Status = "DEAD"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
)

// Job is one unit of delivery work. Attempt counts completed attempts; a
// freshly enqueued job has Attempt == 0.
type Job struct {
	ID          uuid.UUID
	Payload     notification.Intent
	Attempt     int
	MaxAttempts int
	Priority    int
	Status      Status
	LastError   string
	EnqueuedAt  time.Time
	RunAt       time.Time
}

// Options tune a single enqueue. Zero values mean defaults: priority 0,
// no delay, DefaultMaxAttempts.
type Options struct {
	Priority    int
	Delay       time.Duration
	MaxAttempts int
}

// Normalized fills zero fields with policy defaults.
func (o Options) Normalized() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
	return o
}

// BackoffDelay returns the wait before the next attempt after `failed`
// attempts have failed: base, base*2, base*4, ...
func BackoffDelay(base time.Duration, failed int) time.Duration {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if failed < 1 {
		failed = 1
	}
	return base << (failed - 1)
}
