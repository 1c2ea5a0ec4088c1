package channels

import (
	"context"
	"fmt"
	"time"

	config "github.com/DKorytin/Herald/internal/config/worker"
	"github.com/DKorytin/Herald/internal/domain/notification"
	"github.com/DKorytin/Herald/internal/domain/recipient"
	"go.uber.org/zap"
)

var _ notification.Sender = (*SMS)(nil)

// SMS delivers through an HTTP SMS gateway. The phone number comes from
// meta["phone"] when present, otherwise from the recipient directory.
type SMS struct {
	provider *providerClient
	dir      recipient.Repo
	log      *zap.Logger
}

func NewSMS(cfg config.Provider, dir recipient.Repo, log *zap.Logger) *SMS {
	return &SMS{
		provider: newProviderClient(cfg),
		dir:      dir,
		log:      log.With(zap.String("component", "channel.sms")),
	}
}

type smsPayload struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

func (s *SMS) Send(ctx context.Context, userID, title, body string, meta map[string]any) error {
	phone, err := s.resolvePhone(ctx, userID, meta)
	if err != nil {
		return err
	}

	text := title
	if body != "" {
		text = title + ": " + body
	}

	start := time.Now()
	if err := s.provider.post(ctx, smsPayload{To: phone, Text: text}); err != nil {
		s.log.Error("sms send failed", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	s.log.Info("sms sent", zap.String("user_id", userID), zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *SMS) resolvePhone(ctx context.Context, userID string, meta map[string]any) (string, error) {
	if v, ok := meta["phone"].(string); ok && v != "" {
		return v, nil
	}
	rec, err := s.dir.GetByUserID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("resolve phone for user %s: %w", userID, err)
	}
	if rec.Phone == "" {
		return "", fmt.Errorf("user %s has no phone number", userID)
	}
	return rec.Phone, nil
}
