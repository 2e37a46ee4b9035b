package service

import (
	"context"
	"time"

	"notification-engine/internal/core/domain"
	"notification-engine/internal/core/ports"
	"notification-engine/pkg/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// WorkerPoolConfig sizes the pool and its polling loops.
type WorkerPoolConfig struct {
	Workers        int
	PollInterval   time.Duration
	ReaperInterval time.Duration
}

// queueDepth is implemented by queues that can report their size.
type queueDepth interface {
	Depth(ctx context.Context) (ready, delayed, inflight int64, err error)
}

// WorkerPool drains the retry queue with bounded concurrency.
type WorkerPool struct {
	queue    ports.JobQueue
	pipeline *DeliveryPipeline
	cfg      WorkerPoolConfig
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// NewWorkerPool creates a pool; zero values default to 10 workers,
// a 500ms poll and a 15s reaper.
func NewWorkerPool(queue ports.JobQueue, pipeline *DeliveryPipeline, cfg WorkerPoolConfig, m *metrics.Metrics, log zerolog.Logger) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.ReaperInterval <= 0 {
		cfg.ReaperInterval = 15 * time.Second
	}
	return &WorkerPool{queue: queue, pipeline: pipeline, cfg: cfg, metrics: m, log: log}
}

// Run claims and processes jobs until ctx is cancelled, then waits for
// in-flight jobs to finish.
func (w *WorkerPool) Run(ctx context.Context) error {
	w.log.Info().Int("workers", w.cfg.Workers).Msg("worker pool started")

	jobs := new(errgroup.Group)
	jobs.SetLimit(w.cfg.Workers)

	reaper := make(chan struct{})
	go func() {
		defer close(reaper)
		w.reap(ctx)
	}()

	// In-flight jobs finish on shutdown instead of being cut mid-send.
	jobCtx := context.WithoutCancel(ctx)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		for ctx.Err() == nil {
			job, err := w.queue.Claim(ctx)
			if err != nil {
				if ctx.Err() == nil {
					w.log.Error().Err(err).Msg("worker: claim failed")
				}
				break
			}
			if job == nil {
				break
			}
			// Blocks while every worker is busy.
			jobs.Go(func() error {
				w.Process(jobCtx, job)
				return nil
			})
		}

		select {
		case <-ctx.Done():
			_ = jobs.Wait()
			<-reaper
			w.log.Info().Msg("worker pool stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Process runs one attempt of a claimed job and moves it to its next state.
// Claim has already counted the attempt.
func (w *WorkerPool) Process(ctx context.Context, job *domain.NotificationJob) {
	log := w.log.With().
		Str("job_id", job.ID.String()).
		Str("event_id", job.Event.ID.String()).
		Int("attempt", job.Attempt).
		Int("max_attempts", job.MaxAttempts).
		Logger()

	result := w.pipeline.Execute(ctx, job, ModeQueued)

	attempt := domain.JobAttempt{
		Attempt:     job.Attempt,
		PushOK:      result.Outcome.PushSuccess,
		EmailOK:     result.Outcome.EmailSuccess,
		RealtimeOK:  result.Outcome.RealtimeSuccess,
		Succeeded:   result.Succeeded(),
		Mode:        string(ModeQueued),
		AttemptedAt: time.Now().UTC(),
	}
	if result.Err != nil {
		attempt.Error = result.Err.Error()
		job.LastError = attempt.Error
	}
	if err := w.queue.RecordAttempt(ctx, job.ID, attempt); err != nil {
		log.Warn().Err(err).Msg("worker: failed to record attempt")
	}

	switch {
	case result.Succeeded():
		if err := w.queue.Complete(ctx, job); err != nil {
			log.Error().Err(err).Msg("worker: failed to complete job")
			return
		}
		w.metrics.IncJob(string(domain.JobSucceeded))
		log.Info().Msg("worker: job succeeded")

	case result.RenderFailed(), job.Exhausted():
		if err := w.queue.Abandon(ctx, job); err != nil {
			log.Error().Err(err).Msg("worker: failed to abandon job")
			return
		}
		w.metrics.IncJob(string(domain.JobAbandoned))
		log.Error().Err(result.Err).Msg("worker: job abandoned")

	default:
		delay := job.Backoff()
		if err := w.queue.Retry(ctx, job, delay); err != nil {
			log.Error().Err(err).Msg("worker: failed to schedule retry")
			return
		}
		w.metrics.IncJob(string(domain.JobFailed))
		log.Warn().Err(result.Err).Dur("retry_in", delay).Msg("worker: attempt failed, retry scheduled")
	}
}

// reap requeues jobs whose visibility timeout lapsed and purges old ones.
func (w *WorkerPool) reap(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ReapOnce(ctx)
		}
	}
}

// ReapOnce runs a single reaper pass.
func (w *WorkerPool) ReapOnce(ctx context.Context) {
	if n, err := w.queue.RequeueExpired(ctx); err != nil {
		w.log.Error().Err(err).Msg("reaper: requeue failed")
	} else if n > 0 {
		w.log.Warn().Int("count", n).Msg("reaper: requeued expired jobs")
	}

	if n, err := w.queue.Purge(ctx); err != nil {
		w.log.Error().Err(err).Msg("reaper: purge failed")
	} else if n > 0 {
		w.log.Debug().Int("count", n).Msg("reaper: purged finished jobs")
	}

	if d, ok := w.queue.(queueDepth); ok {
		ready, delayed, inflight, err := d.Depth(ctx)
		if err != nil {
			return
		}
		w.metrics.SetQueueDepth("ready", ready)
		w.metrics.SetQueueDepth("delayed", delayed)
		w.metrics.SetQueueDepth("inflight", inflight)
	}
}
