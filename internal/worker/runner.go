// Package worker runs the fixed pool of delivery slots: each slot leases
// one job at a time from the delivery queue, hands it to the dispatcher
// and translates the outcome into ack/nack. Retry counting stays behind
// the queue; the worker is a pure adapter between the lease protocol and
// the dispatcher's synchronous call.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/DKorytin/Herald/internal/domain/job"
	"github.com/DKorytin/Herald/internal/domain/notification"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	mLeased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "herald_worker_jobs_leased_total", Help: "Jobs leased by worker slots.",
	})
	mOk = promauto.NewCounter(prometheus.CounterOpts{
		Name: "herald_worker_jobs_ok_total", Help: "Jobs dispatched successfully.",
	})
	mFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "herald_worker_jobs_failed_total", Help: "Jobs that failed dispatch (nacked).",
	})
	mDead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "herald_worker_jobs_dead_total", Help: "Jobs that exhausted their retry budget.",
	})
	mProcessDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "herald_worker_process_duration_seconds", Help: "Per-job processing time.",
		Buckets: prometheus.DefBuckets,
	})
)

type Dispatcher interface {
	Dispatch(ctx context.Context, in notification.Intent) error
}

type Runner struct {
	log      *zap.Logger
	queue    job.Queue
	dispatch Dispatcher

	slots        int
	pollInterval time.Duration
	jobTimeout   time.Duration
}

func NewRunner(log *zap.Logger, q job.Queue, d Dispatcher, slots int, pollInterval, jobTimeout time.Duration) *Runner {
	if slots <= 0 {
		slots = 2
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Second
	}
	return &Runner{
		log:          log.With(zap.String("component", "delivery-worker")),
		queue:        q,
		dispatch:     d,
		slots:        slots,
		pollInterval: pollInterval,
		jobTimeout:   jobTimeout,
	}
}

// Run blocks until ctx is cancelled and every in-flight job has finished.
// Cancellation stops leasing; a leased job always runs to ack or nack.
func (r *Runner) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < r.slots; i++ {
		wg.Add(1)
		go r.slot(ctx, i, &wg)
	}
	wg.Wait()
	return ctx.Err()
}

func (r *Runner) slot(ctx context.Context, id int, wg *sync.WaitGroup) {
	defer wg.Done()
	log := r.log.With(zap.Int("slot", id))
	log.Info("worker slot started")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("worker slot stop")
			return
		case <-ticker.C:
		}

		// Drain everything that is ready before sleeping again.
		for ctx.Err() == nil {
			j, err := r.queue.Lease(ctx)
			if err != nil {
				log.Error("lease failed", zap.Error(err))
				break
			}
			if j == nil {
				break
			}
			mLeased.Inc()
			r.process(j, log)
		}
	}
}

// process runs on a context detached from the shutdown signal so that an
// already-leased job finishes (or times out) during drain.
func (r *Runner) process(j *job.Job, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), r.jobTimeout)
	defer cancel()

	start := time.Now()
	err := r.dispatch.Dispatch(ctx, j.Payload)
	mProcessDur.Observe(time.Since(start).Seconds())

	if err == nil {
		mOk.Inc()
		if err := r.queue.Ack(ctx, j.ID); err != nil {
			log.Error("ack failed", zap.String("job_id", j.ID.String()), zap.Error(err))
		}
		return
	}

	mFailed.Inc()
	log.Warn("dispatch failed",
		zap.String("job_id", j.ID.String()),
		zap.String("user_id", j.Payload.UserID),
		zap.Int("attempt", j.Attempt+1),
		zap.Error(err),
	)
	if err := r.queue.Nack(ctx, j.ID, err); err != nil {
		log.Error("nack failed", zap.String("job_id", j.ID.String()), zap.Error(err))
	}
}

// DeadEventPublisher announces exhausted jobs downstream. Satisfied by the
// kafka producer.
type DeadEventPublisher interface {
	PublishJSON(ctx context.Context, key []byte, v any) error
}

type deadEvent struct {
	JobID     string `json:"job_id"`
	UserID    string `json:"user_id"`
	Channel   string `json:"channel"`
	Title     string `json:"title"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error"`
	DeadAt    string `json:"dead_at"`
}

// DeadLetter builds the terminal-failure hook wired into the queue: an
// exhausted job is logged, counted and announced on the dead-letter topic,
// never silently dropped. pub may be nil; the announcement is best-effort.
func DeadLetter(log *zap.Logger, pub DeadEventPublisher) func(j *job.Job) {
	log = log.With(zap.String("component", "delivery-worker"))
	return func(j *job.Job) {
		mDead.Inc()
		log.Error("job exhausted retry budget",
			zap.String("job_id", j.ID.String()),
			zap.String("user_id", j.Payload.UserID),
			zap.String("channel", string(j.Payload.Channel)),
			zap.Int("attempts", j.Attempt),
			zap.String("last_error", j.LastError),
		)
		if pub == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := pub.PublishJSON(ctx, []byte(j.Payload.UserID), deadEvent{
			JobID:     j.ID.String(),
			UserID:    j.Payload.UserID,
			Channel:   string(j.Payload.Channel),
			Title:     j.Payload.Title,
			Attempts:  j.Attempt,
			LastError: j.LastError,
			DeadAt:    time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			log.Warn("dead-letter publish failed", zap.String("job_id", j.ID.String()), zap.Error(err))
		}
	}
}
