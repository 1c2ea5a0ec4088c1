package ingest

import (
	"context"
	"fmt"

	"github.com/DKorytin/Herald/internal/domain/notification"
	"github.com/DKorytin/Herald/internal/obs/retry"
	"go.uber.org/zap"
)

// Notifier is the slice of the notification service the ingress needs.
type Notifier interface {
	SendAsync(ctx context.Context, in notification.Intent) error
}

type Handler struct {
	Svc Notifier
	Pol retry.Policy
	Log *zap.Logger
}

// HandleEvent maps one ingress event to a queued intent. Unknown events
// are skipped without error so old producers never wedge the consumer.
func (h *Handler) HandleEvent(ctx context.Context, env *Envelope) error {
	switch env.Event {
	case EventUserCreated:
		if env.UserID == "" {
			h.Log.Warn("user.created without user_id")
			return nil
		}
		return h.enqueue(ctx, notification.Intent{
			UserID:  env.UserID,
			Channel: notification.ChannelEmail,
			Title:   "Welcome!",
			Body:    "Your account has been created.",
			Meta:    map[string]any{"email": env.Email},
		})

	case EventUserUpdated:
		if env.UserID == "" {
			h.Log.Warn("user.updated without user_id")
			return nil
		}
		return h.enqueue(ctx, notification.Intent{
			UserID:  env.UserID,
			Channel: notification.ChannelSocket,
			Title:   "Profile updated",
			Body:    "Your profile details were changed.",
		})

	case EventNotifyRequested:
		if env.Intent == nil {
			h.Log.Warn("notification.requested without intent")
			return nil
		}
		if _, err := notification.ParseChannel(string(env.Intent.Channel)); err != nil {
			return fmt.Errorf("notification.requested: %w", err)
		}
		return h.enqueue(ctx, *env.Intent)

	default:
		h.Log.Debug("skipping unknown event", zap.String("event", env.Event))
		return nil
	}
}

func (h *Handler) enqueue(ctx context.Context, in notification.Intent) error {
	return retry.Do(ctx, func() error {
		return h.Svc.SendAsync(ctx, in)
	}, h.Pol)
}
