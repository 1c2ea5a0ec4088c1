package ingest

import (
	"context"

	kafkax "github.com/DKorytin/Herald/internal/repository/kafka"
	"go.uber.org/zap"
)

type Controller struct {
	Log *zap.Logger
	Sub *kafkax.Consumer
	UC  *Handler
}

func (c *Controller) Run(ctx context.Context) error {
	handler := kafkax.JSONHandler(
		func(ctx context.Context, _ []byte, env *Envelope) error {
			if env.Event == "" {
				c.Log.Warn("ingress message without event name")
				return nil
			}
			return c.UC.HandleEvent(ctx, env)
		},
	)
	return c.Sub.Consume(ctx, handler)
}
