// Package dispatch turns one notification intent into a persisted record
// plus the actual channel delivery.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/DKorytin/Herald/internal/domain/notification"
	"github.com/DKorytin/Herald/internal/obs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	mDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_deliveries_total",
		Help: "Delivery attempts by channel and outcome.",
	}, []string{"channel", "outcome"})
	mPartialFanout = promauto.NewCounter(prometheus.CounterOpts{
		Name: "herald_fanout_partial_failures_total",
		Help: "Fan-out dispatches where at least one channel failed.",
	})
	mRecordErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "herald_record_persist_errors_total",
		Help: "Notification record writes that failed.",
	})
)

// ChannelResult is the per-channel outcome of a fan-out.
type ChannelResult struct {
	Channel notification.Channel
	Err     error
}

type Dispatcher struct {
	log     *zap.Logger
	store   notification.Repo
	senders map[notification.Channel]notification.Sender
}

func New(log *zap.Logger, store notification.Repo, senders map[notification.Channel]notification.Sender) *Dispatcher {
	return &Dispatcher{
		log:     log.With(zap.String("component", "dispatcher")),
		store:   store,
		senders: senders,
	}
}

// Dispatch persists the record, then delivers. The record write comes
// first and is fatal on failure: no delivery happens without an auditable
// record. Channel delivery is best-effort and not transactionally linked
// to the write.
//
// The "all" selector fans out to email, push and websocket concurrently
// and always reports success; a single concrete channel propagates its
// failure (that is the path the queue retries).
func (d *Dispatcher) Dispatch(ctx context.Context, in notification.Intent) error {
	if !in.Channel.Valid() {
		return fmt.Errorf("dispatch: unknown channel %q", in.Channel)
	}

	tr := otel.Tracer("dispatch")
	ctx, span := tr.Start(ctx, "dispatch")
	span.SetAttributes(
		attribute.String("channel", string(in.Channel)),
		attribute.String("user_id", in.UserID),
	)
	defer span.End()

	n := &notification.Notification{
		UserID:  in.UserID,
		Channel: in.Channel.Resolve(),
		Title:   in.Title,
		Body:    in.Body,
		Meta:    in.Meta,
	}
	if err := d.store.Create(ctx, n); err != nil {
		mRecordErrors.Inc()
		span.RecordError(err)
		return fmt.Errorf("%w: %v", notification.ErrRecordPersist, err)
	}

	if in.Channel == notification.ChannelAll {
		results := d.fanOut(ctx, in)
		failed := 0
		for _, res := range results {
			if res.Err != nil {
				failed++
				obs.WithTrace(ctx, d.log).Warn("fan-out channel failed",
					zap.String("channel", string(res.Channel)),
					zap.String("user_id", in.UserID),
					zap.Error(res.Err),
				)
			}
		}
		if failed > 0 {
			mPartialFanout.Inc()
		}
		return nil
	}

	sender, ok := d.senders[in.Channel]
	if !ok {
		return fmt.Errorf("dispatch: no sender registered for %s", in.Channel)
	}
	if err := sender.Send(ctx, in.UserID, in.Title, in.Body, in.Meta); err != nil {
		mDelivered.WithLabelValues(string(in.Channel), "error").Inc()
		span.RecordError(err)
		return &notification.ChannelError{Channel: in.Channel, Err: err}
	}
	mDelivered.WithLabelValues(string(in.Channel), "ok").Inc()
	return nil
}

// fanOutChannels is the set the "all" selector targets. SMS is excluded.
var fanOutChannels = []notification.Channel{
	notification.ChannelEmail,
	notification.ChannelPush,
	notification.ChannelSocket,
}

// fanOut launches one delivery per channel and joins them all. A failing
// channel never cancels or fails its siblings; outcomes are collected, not
// thrown.
func (d *Dispatcher) fanOut(ctx context.Context, in notification.Intent) []ChannelResult {
	results := make([]ChannelResult, len(fanOutChannels))
	var wg sync.WaitGroup
	for i, ch := range fanOutChannels {
		sender, ok := d.senders[ch]
		if !ok {
			results[i] = ChannelResult{Channel: ch, Err: fmt.Errorf("no sender registered for %s", ch)}
			continue
		}
		wg.Add(1)
		go func(i int, ch notification.Channel, s notification.Sender) {
			defer wg.Done()
			err := s.Send(ctx, in.UserID, in.Title, in.Body, in.Meta)
			if err != nil {
				mDelivered.WithLabelValues(string(ch), "error").Inc()
			} else {
				mDelivered.WithLabelValues(string(ch), "ok").Inc()
			}
			results[i] = ChannelResult{Channel: ch, Err: err}
		}(i, ch, sender)
	}
	wg.Wait()
	return results
}
