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

var _ notification.Sender = (*Push)(nil)

// Push delivers through an HTTP push gateway keyed by device token.
type Push struct {
	provider *providerClient
	dir      recipient.Repo
	log      *zap.Logger
}

func NewPush(cfg config.Provider, dir recipient.Repo, log *zap.Logger) *Push {
	return &Push{
		provider: newProviderClient(cfg),
		dir:      dir,
		log:      log.With(zap.String("component", "channel.push")),
	}
}

type pushPayload struct {
	Token string         `json:"token"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
}

func (p *Push) Send(ctx context.Context, userID, title, body string, meta map[string]any) error {
	rec, err := p.dir.GetByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve push token for user %s: %w", userID, err)
	}
	if rec.PushToken == "" {
		return fmt.Errorf("user %s has no push token", userID)
	}

	start := time.Now()
	if err := p.provider.post(ctx, pushPayload{Token: rec.PushToken, Title: title, Body: body, Data: meta}); err != nil {
		p.log.Error("push send failed", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	p.log.Info("push sent", zap.String("user_id", userID), zap.Duration("elapsed", time.Since(start)))
	return nil
}
