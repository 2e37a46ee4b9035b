package redis_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"notification-engine/internal/adapter/storage/redis"
	"notification-engine/internal/core/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestQueue(t *testing.T) (*redis.JobQueue, *miniredis.Miniredis, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	q := redis.NewJobQueue(client, redis.JobQueueConfig{
		VisibilityTimeout:  time.Minute,
		CompletedRetention: 24 * time.Hour,
		FailedRetention:    7 * 24 * time.Hour,
	}).WithClock(clock.Now)
	return q, mr, clock
}

func newJob(priority domain.Priority) *domain.NotificationJob {
	event := domain.DomainEvent{
		ID:             uuid.New(),
		Type:           domain.EventPaymentValidated,
		RecipientEmail: "ana@example.com",
		Priority:       priority,
		Payload:        map[string]any{"installment_number": 1},
	}
	return domain.NewNotificationJob(event, domain.AllChannels, 3, time.Second)
}

func TestJobQueue_EnqueueClaim(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	job := newJob(domain.PriorityNormal)
	require.NoError(t, q.Enqueue(ctx, job))

	got, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, domain.JobInProgress, got.State)
	assert.Equal(t, job.Event.ID, got.Event.ID)
	assert.Equal(t, domain.AllChannels, got.Channels)
	assert.Equal(t, 1, got.Attempt, "claiming counts the attempt")

	// A claimed job is owned by one worker only.
	again, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, again)

	_, _, inflight, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inflight)
}

func TestJobQueue_ClaimEmpty(t *testing.T) {
	q, _, _ := newTestQueue(t)

	got, err := q.Claim(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestJobQueue_PriorityOrder(t *testing.T) {
	q, _, clock := newTestQueue(t)
	ctx := context.Background()

	low := newJob(domain.PriorityLow)
	normal := newJob(domain.PriorityNormal)
	high := newJob(domain.PriorityHigh)

	require.NoError(t, q.Enqueue(ctx, low))
	clock.Advance(time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, normal))
	clock.Advance(time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, high))

	var order []uuid.UUID
	for i := 0; i < 3; i++ {
		j, err := q.Claim(ctx)
		require.NoError(t, err)
		require.NotNil(t, j)
		order = append(order, j.ID)
	}
	assert.Equal(t, []uuid.UUID{high.ID, normal.ID, low.ID}, order)
}

func TestJobQueue_RetryWaitsForDelay(t *testing.T) {
	q, _, clock := newTestQueue(t)
	ctx := context.Background()

	job := newJob(domain.PriorityHigh)
	require.NoError(t, q.Enqueue(ctx, job))
	claimed, err := q.Claim(ctx)
	require.NoError(t, err)

	require.Equal(t, 1, claimed.Attempt)
	claimed.LastError = "smtp timeout"
	require.NoError(t, q.Retry(ctx, claimed, 2*time.Second))

	got, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "job must not be claimable before its backoff elapses")

	clock.Advance(2 * time.Second)

	got, err = q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, 2, got.Attempt)
	assert.Equal(t, "smtp timeout", got.LastError)
}

func TestJobQueue_RetryKeepsPriority(t *testing.T) {
	q, _, clock := newTestQueue(t)
	ctx := context.Background()

	high := newJob(domain.PriorityHigh)
	require.NoError(t, q.Enqueue(ctx, high))
	claimed, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Retry(ctx, claimed, time.Second))

	clock.Advance(time.Second)
	low := newJob(domain.PriorityLow)
	require.NoError(t, q.Enqueue(ctx, low))

	got, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, high.ID, got.ID)
}

func TestJobQueue_CompleteRetention(t *testing.T) {
	q, mr, clock := newTestQueue(t)
	ctx := context.Background()

	job := newJob(domain.PriorityNormal)
	require.NoError(t, q.Enqueue(ctx, job))
	claimed, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NoError(t, q.RecordAttempt(ctx, claimed.ID, domain.JobAttempt{Attempt: 1, EmailOK: true, Succeeded: true}))
	require.NoError(t, q.Complete(ctx, claimed))

	assert.Equal(t, 24*time.Hour, mr.TTL("notify:job:"+job.ID.String()))
	assert.Equal(t, 24*time.Hour, mr.TTL("notify:job:"+job.ID.String()+":attempts"))

	stored, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.JobSucceeded, stored.State)

	_, _, inflight, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, inflight)

	n, err := q.Purge(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "still inside the retention window")

	clock.Advance(25 * time.Hour)
	n, err = q.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err = q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestJobQueue_AbandonRetention(t *testing.T) {
	q, mr, clock := newTestQueue(t)
	ctx := context.Background()

	job := newJob(domain.PriorityNormal)
	require.NoError(t, q.Enqueue(ctx, job))
	claimed, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Abandon(ctx, claimed))

	assert.Equal(t, 7*24*time.Hour, mr.TTL("notify:job:"+job.ID.String()))

	clock.Advance(25 * time.Hour)
	n, err := q.Purge(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "abandoned jobs outlive completed ones")

	clock.Advance(7 * 24 * time.Hour)
	n, err = q.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestJobQueue_RequeueExpired(t *testing.T) {
	q, _, clock := newTestQueue(t)
	ctx := context.Background()

	job := newJob(domain.PriorityNormal)
	require.NoError(t, q.Enqueue(ctx, job))
	_, err := q.Claim(ctx)
	require.NoError(t, err)

	n, err := q.RequeueExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "visibility deadline not reached")

	clock.Advance(61 * time.Second)
	n, err = q.RequeueExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
}

func TestJobQueue_RequeueExpired_AbandonsAfterMaxAttempts(t *testing.T) {
	q, _, clock := newTestQueue(t)
	ctx := context.Background()

	job := newJob(domain.PriorityNormal)
	require.NoError(t, q.Enqueue(ctx, job))

	// Every claim dies without reporting back.
	for i := 1; i <= job.MaxAttempts; i++ {
		got, err := q.Claim(ctx)
		require.NoError(t, err)
		require.NotNil(t, got, "claim %d", i)
		assert.Equal(t, i, got.Attempt)

		stored, err := q.Get(ctx, job.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, i, stored.Attempt, "attempt is persisted before the worker runs")

		clock.Advance(61 * time.Second)
		_, err = q.RequeueExpired(ctx)
		require.NoError(t, err)
	}

	got, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "no delivery beyond max attempts")

	stored, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.JobAbandoned, stored.State)
	assert.Equal(t, job.MaxAttempts, stored.Attempt)
	assert.Contains(t, stored.LastError, "visibility timeout")

	ready, delayed, inflight, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, ready+delayed+inflight)
}

func TestJobQueue_Attempts(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, q.RecordAttempt(ctx, id, domain.JobAttempt{Attempt: 1, Error: "push: no targets"}))
	require.NoError(t, q.RecordAttempt(ctx, id, domain.JobAttempt{Attempt: 2, EmailOK: true, Succeeded: true}))

	attempts, err := q.Attempts(ctx, id)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, 1, attempts[0].Attempt)
	assert.False(t, attempts[0].Succeeded)
	assert.True(t, attempts[1].EmailOK)
}

func TestJobQueue_BackendDown(t *testing.T) {
	q, mr, _ := newTestQueue(t)
	mr.Close()

	err := q.Enqueue(context.Background(), newJob(domain.PriorityNormal))
	assert.ErrorContains(t, err, "redis enqueue job")
}
