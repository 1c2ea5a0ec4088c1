// Package queue provides an in-process implementation of the delivery
// queue. It backs unit tests and the single-node dev mode; production
// deployments use the postgres-backed queue instead.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/DKorytin/Herald/internal/domain/job"
	"github.com/DKorytin/Herald/internal/domain/notification"
	"github.com/google/uuid"
)

var _ job.Queue = (*Memory)(nil)

type entry struct {
	j   *job.Job
	seq uint64
}

// Memory is a priority delivery queue held entirely in process memory.
// Safe for concurrent use.
type Memory struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*entry
	seq       uint64
	baseDelay time.Duration
	clk       func() time.Time
	onDead    func(j *job.Job)
}

func NewMemory(baseDelay time.Duration, clk func() time.Time) *Memory {
	if baseDelay <= 0 {
		baseDelay = job.DefaultBaseDelay
	}
	if clk == nil {
		clk = func() time.Time { return time.Now().UTC() }
	}
	return &Memory{
		jobs:      make(map[uuid.UUID]*entry),
		baseDelay: baseDelay,
		clk:       clk,
	}
}

// OnDead registers the terminal-failure hook. Must be set before workers
// start.
func (q *Memory) OnDead(fn func(j *job.Job)) { q.onDead = fn }

func (q *Memory) Enqueue(_ context.Context, payload notification.Intent, opts job.Options) (uuid.UUID, error) {
	opts = opts.Normalized()

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clk()
	j := &job.Job{
		ID:          uuid.New(),
		Payload:     payload,
		MaxAttempts: opts.MaxAttempts,
		Priority:    opts.Priority,
		Status:      job.StatusPending,
		EnqueuedAt:  now,
		RunAt:       now.Add(opts.Delay),
	}
	q.seq++
	q.jobs[j.ID] = &entry{j: j, seq: q.seq}
	return j.ID, nil
}

func (q *Memory) EnqueueBulk(ctx context.Context, payloads []notification.Intent) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(payloads))
	for _, p := range payloads {
		id, err := q.Enqueue(ctx, p, job.Options{Priority: p.Priority})
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Lease claims the ready job with the lowest priority value; FIFO by
// enqueue order within a tier. Returns nil when nothing is ready.
func (q *Memory) Lease(_ context.Context) (*job.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clk()
	var best *entry
	for _, e := range q.jobs {
		if e.j.Status != job.StatusPending || e.j.RunAt.After(now) {
			continue
		}
		if best == nil ||
			e.j.Priority < best.j.Priority ||
			(e.j.Priority == best.j.Priority && e.seq < best.seq) {
			best = e
		}
	}
	if best == nil {
		return nil, nil
	}

	best.j.Status = job.StatusLeased
	cp := *best.j
	return &cp, nil
}

func (q *Memory) Ack(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, id)
	return nil
}

func (q *Memory) Nack(_ context.Context, id uuid.UUID, cause error) error {
	q.mu.Lock()

	e, ok := q.jobs[id]
	if !ok || e.j.Status != job.StatusLeased {
		q.mu.Unlock()
		return nil
	}

	e.j.Attempt++
	if cause != nil {
		e.j.LastError = cause.Error()
	}

	if e.j.Attempt >= e.j.MaxAttempts {
		e.j.Status = job.StatusDead
		dead := *e.j
		fn := q.onDead
		q.mu.Unlock()
		if fn != nil {
			fn(&dead)
		}
		return nil
	}

	e.j.Status = job.StatusPending
	e.j.RunAt = q.clk().Add(job.BackoffDelay(q.baseDelay, e.j.Attempt))
	q.mu.Unlock()
	return nil
}

// Stats reports queue depth by state.
func (q *Memory) Stats() (pending, leased, dead int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.jobs {
		switch e.j.Status {
		case job.StatusPending:
			pending++
		case job.StatusLeased:
			leased++
		case job.StatusDead:
			dead++
		}
	}
	return
}
