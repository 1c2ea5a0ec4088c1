package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DKorytin/Herald/internal/domain/job"
	"github.com/DKorytin/Herald/internal/domain/notification"
	"github.com/DKorytin/Herald/internal/queue"
)

// fakeClock lets tests advance queue time without sleeping.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newQueue(t *testing.T, baseDelay time.Duration) (*queue.Memory, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return queue.NewMemory(baseDelay, clk.Now), clk
}

func intent(userID string) notification.Intent {
	return notification.Intent{
		UserID:  userID,
		Channel: notification.ChannelEmail,
		Title:   "hi",
		Body:    "there",
	}
}

func TestMemory_LeaseOrder_PriorityThenFIFO(t *testing.T) {
	t.Parallel()
	q, _ := newQueue(t, 0)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, intent("a"), job.Options{Priority: 5})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, intent("b"), job.Options{Priority: 1})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, intent("c"), job.Options{Priority: 5})
	require.NoError(t, err)

	var got []string
	for i := 0; i < 3; i++ {
		j, err := q.Lease(ctx)
		require.NoError(t, err)
		require.NotNil(t, j)
		got = append(got, j.Payload.UserID)
		require.NoError(t, q.Ack(ctx, j.ID))
	}
	// lowest priority value first, FIFO within the tier
	assert.Equal(t, []string{"b", "a", "c"}, got)

	j, err := q.Lease(ctx)
	require.NoError(t, err)
	assert.Nil(t, j, "drained queue leases nothing")
}

func TestMemory_DelayedJobNotReady(t *testing.T) {
	t.Parallel()
	q, clk := newQueue(t, 0)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, intent("u"), job.Options{Delay: time.Minute})
	require.NoError(t, err)

	j, err := q.Lease(ctx)
	require.NoError(t, err)
	assert.Nil(t, j, "job must stay invisible until run_at")

	clk.Advance(59 * time.Second)
	j, err = q.Lease(ctx)
	require.NoError(t, err)
	assert.Nil(t, j)

	clk.Advance(time.Second)
	j, err = q.Lease(ctx)
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, "u", j.Payload.UserID)
}

func TestMemory_NackBackoffSchedule(t *testing.T) {
	t.Parallel()
	q, clk := newQueue(t, 2*time.Second)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, intent("u"), job.Options{})
	require.NoError(t, err)

	// first attempt fails: next eligibility is base (2s) away
	j, err := q.Lease(ctx)
	require.NoError(t, err)
	require.NotNil(t, j)
	require.NoError(t, q.Nack(ctx, id, errors.New("smtp down")))

	j, err = q.Lease(ctx)
	require.NoError(t, err)
	assert.Nil(t, j, "backoff not elapsed yet")

	clk.Advance(2 * time.Second)
	j, err = q.Lease(ctx)
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, 1, j.Attempt)
	assert.Equal(t, "smtp down", j.LastError)

	// second failure doubles the wait: 4s
	require.NoError(t, q.Nack(ctx, id, errors.New("smtp still down")))
	clk.Advance(3 * time.Second)
	j, err = q.Lease(ctx)
	require.NoError(t, err)
	assert.Nil(t, j)

	clk.Advance(time.Second)
	j, err = q.Lease(ctx)
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, 2, j.Attempt)
}

func TestMemory_ExhaustionIsTerminal(t *testing.T) {
	t.Parallel()
	q, clk := newQueue(t, time.Second)
	ctx := context.Background()

	var dead *job.Job
	q.OnDead(func(j *job.Job) { dead = j })

	id, err := q.Enqueue(ctx, intent("u"), job.Options{MaxAttempts: 3})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		clk.Advance(time.Hour)
		j, err := q.Lease(ctx)
		require.NoError(t, err)
		require.NotNil(t, j, "attempt %d", i+1)
		require.NoError(t, q.Nack(ctx, id, errors.New("boom")))
	}

	require.NotNil(t, dead, "terminal-failure hook must fire")
	assert.Equal(t, job.StatusDead, dead.Status)
	assert.Equal(t, 3, dead.Attempt)
	assert.Equal(t, "boom", dead.LastError)

	// dead jobs are never leased again, no matter how long we wait
	clk.Advance(24 * time.Hour)
	j, err := q.Lease(ctx)
	require.NoError(t, err)
	assert.Nil(t, j)

	_, _, deadCount := q.Stats()
	assert.Equal(t, 1, deadCount)
}

func TestMemory_NackIdempotent(t *testing.T) {
	t.Parallel()
	q, _ := newQueue(t, time.Second)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, intent("u"), job.Options{})
	require.NoError(t, err)

	j, err := q.Lease(ctx)
	require.NoError(t, err)
	require.NotNil(t, j)

	require.NoError(t, q.Nack(ctx, id, errors.New("first")))
	// duplicate nack for the same lease is a no-op
	require.NoError(t, q.Nack(ctx, id, errors.New("dup")))
	// nack for an unknown id is a no-op too
	require.NoError(t, q.Nack(ctx, uuid.New(), errors.New("ghost")))

	pending, leased, dead := q.Stats()
	assert.Equal(t, 1, pending)
	assert.Zero(t, leased)
	assert.Zero(t, dead)
}

func TestMemory_AckRemoves(t *testing.T) {
	t.Parallel()
	q, _ := newQueue(t, time.Second)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, intent("u"), job.Options{})
	require.NoError(t, err)

	j, err := q.Lease(ctx)
	require.NoError(t, err)
	require.NotNil(t, j)
	require.NoError(t, q.Ack(ctx, id))

	pending, leased, dead := q.Stats()
	assert.Zero(t, pending+leased+dead)
}

func TestMemory_EnqueueBulk(t *testing.T) {
	t.Parallel()
	q, _ := newQueue(t, time.Second)
	ctx := context.Background()

	ins := []notification.Intent{intent("a"), intent("b"), intent("c")}
	ids, err := q.EnqueueBulk(ctx, ins)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	pending, _, _ := q.Stats()
	assert.Equal(t, 3, pending)
}
