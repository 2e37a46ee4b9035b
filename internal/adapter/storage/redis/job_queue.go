package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"notification-engine/internal/core/domain"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	keyReady     = "notify:jobs:ready"
	keyDelayed   = "notify:jobs:delayed"
	keyInflight  = "notify:jobs:inflight"
	keyDone      = "notify:jobs:done"
	keyDead      = "notify:jobs:dead"
	keyPriority  = "notify:jobs:priority"
	jobKeyPrefix = "notify:job:"

	// weightBand separates priority bands in the ready set score so that any
	// job of a higher weight sorts before every job of a lower one.
	weightBand = 1e13
	maxWeight  = 10

	promoteBatch = 100
)

// claimScript promotes due delayed jobs into the ready set, then moves the
// best ready job into the in-flight set with its visibility deadline.
//
// KEYS: delayed, ready, inflight, priority
// ARGV: now ms, visibility deadline ms, fallback ready score, promote batch
var claimScript = goredis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[4]))
for _, id in ipairs(due) do
	local score = redis.call('HGET', KEYS[4], id)
	if not score then score = ARGV[3] end
	redis.call('ZREM', KEYS[1], id)
	redis.call('HDEL', KEYS[4], id)
	redis.call('ZADD', KEYS[2], score, id)
end
local ids = redis.call('ZRANGE', KEYS[2], 0, 0)
if #ids == 0 then
	return false
end
local id = ids[1]
redis.call('ZREM', KEYS[2], id)
redis.call('ZADD', KEYS[3], ARGV[2], id)
return id
`)

// JobQueueConfig holds queue timing.
type JobQueueConfig struct {
	VisibilityTimeout  time.Duration
	CompletedRetention time.Duration
	FailedRetention    time.Duration
}

// JobQueue implements ports.JobQueue on Redis sorted sets.
//
// A claimed job sits in the in-flight set scored by its visibility deadline.
// If the worker dies, RequeueExpired moves it back to the ready set once the
// deadline passes, so delivery is at-least-once.
type JobQueue struct {
	client *goredis.Client
	cfg    JobQueueConfig
	now    func() time.Time
}

// NewJobQueue creates a Redis-backed retry queue.
func NewJobQueue(client *goredis.Client, cfg JobQueueConfig) *JobQueue {
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 2 * time.Minute
	}
	if cfg.CompletedRetention <= 0 {
		cfg.CompletedRetention = 24 * time.Hour
	}
	if cfg.FailedRetention <= 0 {
		cfg.FailedRetention = 7 * 24 * time.Hour
	}
	return &JobQueue{client: client, cfg: cfg, now: time.Now}
}

// WithClock replaces the queue's time source.
func (q *JobQueue) WithClock(now func() time.Time) *JobQueue {
	q.now = now
	return q
}

func jobKey(id string) string      { return jobKeyPrefix + id }
func attemptsKey(id string) string { return jobKeyPrefix + id + ":attempts" }

// readyScore orders by weight first, then by time within the band.
func readyScore(weight int, at time.Time) float64 {
	if weight < 0 {
		weight = 0
	}
	if weight > maxWeight {
		weight = maxWeight
	}
	return float64(maxWeight-weight)*weightBand + float64(at.UnixMilli())
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', 0, 64)
}

// Enqueue stores the job and makes it immediately claimable.
func (q *JobQueue) Enqueue(ctx context.Context, job *domain.NotificationJob) error {
	now := q.now().UTC()
	job.State = domain.JobWaiting
	job.UpdatedAt = now
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = now
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	id := job.ID.String()
	_, err = q.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, jobKey(id), payload, 0)
		p.ZAdd(ctx, keyReady, goredis.Z{Score: readyScore(job.Weight, now), Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis enqueue job: %w", err)
	}
	return nil
}

// Claim returns the next ready job, or nil when nothing is ready. The attempt
// counter is bumped and stored before the job is handed out, so an attempt
// whose worker dies still counts.
func (q *JobQueue) Claim(ctx context.Context) (*domain.NotificationJob, error) {
	for {
		now := q.now()
		deadline := now.Add(q.cfg.VisibilityTimeout)

		id, err := claimScript.Run(ctx, q.client,
			[]string{keyDelayed, keyReady, keyInflight, keyPriority},
			now.UnixMilli(), deadline.UnixMilli(),
			formatScore(readyScore(5, now)), promoteBatch,
		).Text()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return nil, nil
			}
			return nil, fmt.Errorf("redis claim job: %w", err)
		}

		job, err := q.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if job == nil {
			// Body purged while the id was still queued.
			q.client.ZRem(ctx, keyInflight, id)
			continue
		}

		job.Attempt++
		job.State = domain.JobInProgress
		job.UpdatedAt = now.UTC()
		if err := q.save(ctx, job, 0); err != nil {
			return nil, err
		}
		return job, nil
	}
}

// Complete records terminal success and schedules the job for purge.
func (q *JobQueue) Complete(ctx context.Context, job *domain.NotificationJob) error {
	job.State = domain.JobSucceeded
	job.LastError = ""
	return q.finish(ctx, job, keyDone, q.cfg.CompletedRetention)
}

// Abandon records terminal failure; abandoned jobs are kept longer for triage.
func (q *JobQueue) Abandon(ctx context.Context, job *domain.NotificationJob) error {
	job.State = domain.JobAbandoned
	return q.finish(ctx, job, keyDead, q.cfg.FailedRetention)
}

func (q *JobQueue) finish(ctx context.Context, job *domain.NotificationJob, set string, retention time.Duration) error {
	now := q.now()
	job.UpdatedAt = now.UTC()

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	id := job.ID.String()
	_, err = q.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.ZRem(ctx, keyInflight, id)
		p.ZRem(ctx, keyReady, id)
		p.ZRem(ctx, keyDelayed, id)
		p.HDel(ctx, keyPriority, id)
		p.ZAdd(ctx, set, goredis.Z{Score: float64(now.UnixMilli()), Member: id})
		p.Set(ctx, jobKey(id), payload, retention)
		p.Expire(ctx, attemptsKey(id), retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis finish job: %w", err)
	}
	return nil
}

// Retry parks the job in the delayed set until delay has elapsed. Its
// priority band is kept for when it becomes ready again.
func (q *JobQueue) Retry(ctx context.Context, job *domain.NotificationJob, delay time.Duration) error {
	now := q.now()
	readyAt := now.Add(delay)
	job.State = domain.JobFailed
	job.UpdatedAt = now.UTC()

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	id := job.ID.String()
	_, err = q.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.ZRem(ctx, keyInflight, id)
		p.Set(ctx, jobKey(id), payload, 0)
		p.HSet(ctx, keyPriority, id, formatScore(readyScore(job.Weight, readyAt)))
		p.ZAdd(ctx, keyDelayed, goredis.Z{Score: float64(readyAt.UnixMilli()), Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis retry job: %w", err)
	}
	return nil
}

// RecordAttempt appends one physical attempt to the job's history.
func (q *JobQueue) RecordAttempt(ctx context.Context, jobID uuid.UUID, attempt domain.JobAttempt) error {
	payload, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}
	if err := q.client.RPush(ctx, attemptsKey(jobID.String()), payload).Err(); err != nil {
		return fmt.Errorf("redis record attempt: %w", err)
	}
	return nil
}

// Attempts returns the recorded attempt history, oldest first.
func (q *JobQueue) Attempts(ctx context.Context, jobID uuid.UUID) ([]domain.JobAttempt, error) {
	raw, err := q.client.LRange(ctx, attemptsKey(jobID.String()), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list attempts: %w", err)
	}
	out := make([]domain.JobAttempt, 0, len(raw))
	for _, r := range raw {
		var a domain.JobAttempt
		if err := json.Unmarshal([]byte(r), &a); err != nil {
			return nil, fmt.Errorf("decode attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

// Get loads a job by id. Returns nil, nil once it has been purged.
func (q *JobQueue) Get(ctx context.Context, jobID uuid.UUID) (*domain.NotificationJob, error) {
	return q.load(ctx, jobID.String())
}

// RequeueExpired moves in-flight jobs past their visibility deadline back to
// the ready set, or abandons them when their last attempt was the final one.
// Only the caller whose ZREM succeeds handles a given job. The count excludes
// abandoned jobs.
func (q *JobQueue) RequeueExpired(ctx context.Context) (int, error) {
	now := q.now()
	ids, err := q.client.ZRangeByScore(ctx, keyInflight, &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis list expired jobs: %w", err)
	}

	requeued := 0
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, keyInflight, id).Result()
		if err != nil {
			return requeued, fmt.Errorf("redis release expired job: %w", err)
		}
		if removed == 0 {
			continue
		}

		job, err := q.load(ctx, id)
		if err != nil {
			return requeued, err
		}
		if job == nil {
			continue
		}
		if job.Exhausted() {
			job.LastError = "visibility timeout expired on final attempt"
			if err := q.Abandon(ctx, job); err != nil {
				return requeued, err
			}
			continue
		}
		job.State = domain.JobWaiting
		job.UpdatedAt = now.UTC()
		if err := q.save(ctx, job, 0); err != nil {
			return requeued, err
		}
		if err := q.client.ZAdd(ctx, keyReady, goredis.Z{Score: readyScore(job.Weight, now), Member: id}).Err(); err != nil {
			return requeued, fmt.Errorf("redis requeue job: %w", err)
		}
		requeued++
	}
	return requeued, nil
}

// Purge drops finished jobs whose retention window has passed.
func (q *JobQueue) Purge(ctx context.Context) (int, error) {
	now := q.now()
	total := 0
	for set, retention := range map[string]time.Duration{
		keyDone: q.cfg.CompletedRetention,
		keyDead: q.cfg.FailedRetention,
	} {
		cutoff := now.Add(-retention).UnixMilli()
		ids, err := q.client.ZRangeByScore(ctx, set, &goredis.ZRangeBy{
			Min: "-inf",
			Max: strconv.FormatInt(cutoff, 10),
		}).Result()
		if err != nil {
			return total, fmt.Errorf("redis list finished jobs: %w", err)
		}
		if len(ids) == 0 {
			continue
		}

		keys := make([]string, 0, len(ids)*2)
		members := make([]interface{}, 0, len(ids))
		for _, id := range ids {
			keys = append(keys, jobKey(id), attemptsKey(id))
			members = append(members, id)
		}
		_, err = q.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.ZRem(ctx, set, members...)
			p.Del(ctx, keys...)
			return nil
		})
		if err != nil {
			return total, fmt.Errorf("redis purge jobs: %w", err)
		}
		total += len(ids)
	}
	return total, nil
}

// Depth reports the number of ready, delayed and in-flight jobs.
func (q *JobQueue) Depth(ctx context.Context) (ready, delayed, inflight int64, err error) {
	cmds, err := q.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		p.ZCard(ctx, keyReady)
		p.ZCard(ctx, keyDelayed)
		p.ZCard(ctx, keyInflight)
		return nil
	})
	if err != nil {
		return 0, 0, 0, fmt.Errorf("redis queue depth: %w", err)
	}
	return cmds[0].(*goredis.IntCmd).Val(), cmds[1].(*goredis.IntCmd).Val(), cmds[2].(*goredis.IntCmd).Val(), nil
}

func (q *JobQueue) load(ctx context.Context, id string) (*domain.NotificationJob, error) {
	raw, err := q.client.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get job: %w", err)
	}
	var job domain.NotificationJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func (q *JobQueue) save(ctx context.Context, job *domain.NotificationJob, ttl time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := q.client.Set(ctx, jobKey(job.ID.String()), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis save job: %w", err)
	}
	return nil
}
