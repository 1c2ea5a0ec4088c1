package notification

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordPersist means the notification record could not be created.
	// Fatal for the operation: no channel delivery happens without an
	// auditable record.
	ErrRecordPersist = errors.New("notification record persist failed")

	// ErrQueueUnavailable means the delivery queue rejected an enqueue.
	// Surfaced synchronously to the caller of the async path.
	ErrQueueUnavailable = errors.New("delivery queue unavailable")
)

// ChannelError wraps a single channel's failed delivery attempt.
type ChannelError struct {
	Channel Channel
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Channel, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }
