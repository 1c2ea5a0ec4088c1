// Package notify is the public entry point of the delivery engine: the
// synchronous immediate-send path, the asynchronous enqueue path and the
// read-state transitions.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/DKorytin/Herald/internal/domain/job"
	"github.com/DKorytin/Herald/internal/domain/notification"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, in notification.Intent) error
}

type Service struct {
	log      *zap.Logger
	dispatch Dispatcher
	queue    job.Queue
	store    notification.Repo
	clk      notification.Clock
}

func NewService(log *zap.Logger, d Dispatcher, q job.Queue, store notification.Repo, clk notification.Clock) *Service {
	return &Service{
		log:      log.With(zap.String("component", "notify")),
		dispatch: d,
		queue:    q,
		store:    store,
		clk:      clk,
	}
}

// SendNow delivers synchronously: the caller blocks until every selected
// channel has been attempted. Only a record-persist failure is fatal;
// fan-out channel failures are swallowed by design.
func (s *Service) SendNow(ctx context.Context, in notification.Intent) error {
	if !in.Channel.Valid() {
		return fmt.Errorf("send now: unknown channel %q", in.Channel)
	}
	return s.dispatch.Dispatch(ctx, in)
}

// SendAsync queues the intent for out-of-band delivery. The "all"
// selector is not preserved across the async boundary: only email is
// queued. Known limitation, kept for compatibility with existing consumers;
// the record channel asymmetry in Channel.Resolve is the same choice.
func (s *Service) SendAsync(ctx context.Context, in notification.Intent) error {
	if !in.Channel.Valid() {
		return fmt.Errorf("send async: unknown channel %q", in.Channel)
	}
	in.Channel = in.Channel.Resolve()

	id, err := s.queue.Enqueue(ctx, in, job.Options{Priority: in.Priority})
	if err != nil {
		return fmt.Errorf("%w: %v", notification.ErrQueueUnavailable, err)
	}
	s.log.Debug("notification queued",
		zap.String("job_id", id.String()),
		zap.String("user_id", in.UserID),
		zap.String("channel", string(in.Channel)),
	)
	return nil
}

// SendBulkAsync queues many intents at once, all-or-nothing.
func (s *Service) SendBulkAsync(ctx context.Context, ins []notification.Intent) error {
	if len(ins) == 0 {
		return nil
	}
	for i := range ins {
		if !ins[i].Channel.Valid() {
			return fmt.Errorf("send bulk: unknown channel %q", ins[i].Channel)
		}
		ins[i].Channel = ins[i].Channel.Resolve()
	}
	if _, err := s.queue.EnqueueBulk(ctx, ins); err != nil {
		return fmt.Errorf("%w: %v", notification.ErrQueueUnavailable, err)
	}
	return nil
}

// Schedule queues a delivery that becomes eligible only after the delay.
func (s *Service) Schedule(ctx context.Context, in notification.Intent, delay time.Duration) error {
	if !in.Channel.Valid() {
		return fmt.Errorf("schedule: unknown channel %q", in.Channel)
	}
	in.Channel = in.Channel.Resolve()

	if _, err := s.queue.Enqueue(ctx, in, job.Options{Priority: in.Priority, Delay: delay}); err != nil {
		return fmt.Errorf("%w: %v", notification.ErrQueueUnavailable, err)
	}
	return nil
}

// ListForUser returns the user's notifications, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string, limit int) ([]*notification.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.store.ListByUser(ctx, userID, limit)
}

// MarkRead flips one record to read, scoped to the owning user. A miss is
// a no-op, not an error; ownership is the only authorization check.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID, userID string) error {
	return s.store.MarkRead(ctx, id, userID, s.clk.Now())
}

// MarkAllRead flips every unread record of the user. Idempotent.
func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	return s.store.MarkAllRead(ctx, userID, s.clk.Now())
}
