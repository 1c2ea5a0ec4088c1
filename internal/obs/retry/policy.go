package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultEnqueuePolicy guards the ingest path's enqueue against brief
// queue outages. The delivery queue's own attempt budget handles
// everything after the job is accepted.
func DefaultEnqueuePolicy(log *zap.Logger) Policy {
	return Policy{
		Name:     "ingest_enqueue",
		Attempts: 5,
		Backoff:  ExpoJitter{Base: 200 * time.Millisecond, Max: 10 * time.Second, Jitter: 0.2},
		Retryable: func(err error) bool {
			return err != nil
		},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Warn("enqueue retry", zap.Int("attempt", i+1), zap.Error(err))
			}
		},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Error("enqueue retries exhausted", zap.Error(err))
			}
		},
	}
}
