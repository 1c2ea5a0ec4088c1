package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DKorytin/Herald/internal/domain/job"
	"github.com/DKorytin/Herald/internal/domain/notification"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var _ job.Queue = (*JobRepo)(nil)

// DeadLetterFunc is called once when a job spends its retry budget.
type DeadLetterFunc func(j *job.Job)

// JobRepo is the durable delivery queue. Leasing claims one ready job with
// SKIP LOCKED so concurrent worker slots never double-process; stale leases
// (crashed workers) are reclaimed after leaseTTL.
type JobRepo struct {
	db        *DB
	tx        Transactor
	leaseTTL  time.Duration
	baseDelay time.Duration
	onDead    DeadLetterFunc
}

func NewJobRepo(db *DB, tx Transactor, leaseTTL, baseDelay time.Duration) *JobRepo {
	if leaseTTL <= 0 {
		leaseTTL = 5 * time.Minute
	}
	if baseDelay <= 0 {
		baseDelay = job.DefaultBaseDelay
	}
	return &JobRepo{db: db, tx: tx, leaseTTL: leaseTTL, baseDelay: baseDelay}
}

// OnDead registers the terminal-failure hook. Must be set before workers
// start.
func (r *JobRepo) OnDead(fn DeadLetterFunc) { r.onDead = fn }

const (
	qJobInsert = `
INSERT INTO delivery_jobs (payload, priority, max_attempts, status, run_at)
VALUES ($1, $2, $3, 'PENDING', now() + $4::bigint * interval '1 millisecond')
RETURNING id, enqueued_at, run_at;`

	qJobLease = `
WITH cand AS (
   SELECT id
   FROM delivery_jobs
   WHERE (status = 'PENDING' AND run_at <= now())
      OR (status = 'LEASED' AND leased_at < now() - $1::interval)
   ORDER BY priority, enqueued_at
   LIMIT 1
   FOR UPDATE SKIP LOCKED
), upd AS (
   UPDATE delivery_jobs j
   SET status = 'LEASED', leased_at = now()
   FROM cand
   WHERE j.id = cand.id
   RETURNING j.id, j.payload, j.attempt, j.max_attempts, j.priority, j.enqueued_at, j.run_at
)
SELECT id, payload, attempt, max_attempts, priority, enqueued_at, run_at
FROM upd;`

	qJobAck = `
DELETE FROM delivery_jobs
WHERE id = $1;`

	qJobNack = `
UPDATE delivery_jobs
SET attempt    = attempt + 1,
    last_error = $2,
    status     = CASE WHEN attempt + 1 >= max_attempts THEN 'DEAD' ELSE 'PENDING' END,
    run_at     = now() + ($3::bigint << LEAST(attempt, 30)) * interval '1 millisecond',
    leased_at  = NULL
WHERE id = $1 AND status = 'LEASED'
RETURNING payload, attempt, max_attempts, priority, status, last_error, enqueued_at, run_at;`
)

func (r *JobRepo) Enqueue(ctx context.Context, payload notification.Intent, opts job.Options) (uuid.UUID, error) {
	opts = opts.Normalized()

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var id uuid.UUID
	var enqueuedAt, runAt time.Time
	eq := r.db.execQueryer(ctx)
	if err := eq.QueryRow(ctx, qJobInsert,
		payload,
		opts.Priority,
		opts.MaxAttempts,
		opts.Delay.Milliseconds(),
	).Scan(&id, &enqueuedAt, &runAt); err != nil {
		return uuid.Nil, fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}

// EnqueueBulk inserts all payloads in one transaction: either every job is
// queued or none is.
func (r *JobRepo) EnqueueBulk(ctx context.Context, payloads []notification.Intent) ([]uuid.UUID, error) {
	if len(payloads) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(payloads))
	err := r.tx.WithTx(ctx, func(ctx context.Context) error {
		for _, p := range payloads {
			id, err := r.Enqueue(ctx, p, job.Options{Priority: p.Priority})
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue bulk: %w", err)
	}
	return ids, nil
}

func (r *JobRepo) Lease(ctx context.Context) (*job.Job, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	ttl := fmt.Sprintf("%f seconds", r.leaseTTL.Seconds())

	var j job.Job
	err := r.db.Pool.QueryRow(ctx, qJobLease, ttl).Scan(
		&j.ID, &j.Payload, &j.Attempt, &j.MaxAttempts, &j.Priority, &j.EnqueuedAt, &j.RunAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lease job: %w", err)
	}
	j.Status = job.StatusLeased
	return &j, nil
}

func (r *JobRepo) Ack(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.Pool.Exec(ctx, qJobAck, id); err != nil {
		return fmt.Errorf("ack job: %w", err)
	}
	return nil
}

// Nack reports a failed attempt. The status guard makes it idempotent: a
// second nack for the same lease matches zero rows and does nothing. The
// exhaustion transition happens here, never in the worker.
func (r *JobRepo) Nack(ctx context.Context, id uuid.UUID, cause error) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	var j job.Job
	var status string
	err := r.db.Pool.QueryRow(ctx, qJobNack, id, msg, r.baseDelay.Milliseconds()).Scan(
		&j.Payload, &j.Attempt, &j.MaxAttempts, &j.Priority, &status, &j.LastError, &j.EnqueuedAt, &j.RunAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("nack job: %w", err)
	}

	j.ID = id
	j.Status = job.Status(status)
	if j.Status == job.StatusDead && r.onDead != nil {
		r.onDead(&j)
	}
	return nil
}
