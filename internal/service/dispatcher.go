package service

import (
	"context"
	"strings"
	"time"

	"notification-engine/internal/core/domain"
	"notification-engine/internal/core/ports"
	"notification-engine/pkg/apperror"
	"notification-engine/pkg/metrics"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DispatcherConfig holds the job parameters applied at enqueue time.
type DispatcherConfig struct {
	MaxAttempts    int
	BaseBackoff    time.Duration
	EnqueueTimeout time.Duration
}

// NotificationDispatcher implements ports.EventDispatcher.
type NotificationDispatcher struct {
	queue    ports.JobQueue
	health   ports.QueueHealth
	renderer ports.TemplateRenderer
	pipeline *DeliveryPipeline
	validate *validator.Validate
	cfg      DispatcherConfig
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// NewNotificationDispatcher creates a dispatcher.
func NewNotificationDispatcher(
	queue ports.JobQueue,
	health ports.QueueHealth,
	renderer ports.TemplateRenderer,
	pipeline *DeliveryPipeline,
	cfg DispatcherConfig,
	m *metrics.Metrics,
	log zerolog.Logger,
) *NotificationDispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = domain.DefaultMaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 2 * time.Second
	}
	return &NotificationDispatcher{
		queue:    queue,
		health:   health,
		renderer: renderer,
		pipeline: pipeline,
		validate: validator.New(),
		cfg:      cfg,
		metrics:  m,
		log:      log,
	}
}

// Dispatch validates the event and enqueues a job for it. When the queue
// backend is down or the enqueue fails, delivery runs inline on the caller's
// goroutine through the same pipeline the workers use.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, event domain.DomainEvent) (domain.DispatchOutcome, error) {
	event, channels, err := d.prepare(event)
	if err != nil {
		d.log.Warn().Err(err).Str("type", string(event.Type)).Msg("dispatch: event rejected")
		return "", err
	}

	job := domain.NewNotificationJob(event, channels, d.cfg.MaxAttempts, d.cfg.BaseBackoff)
	log := d.log.With().
		Str("event_id", event.ID.String()).
		Str("job_id", job.ID.String()).
		Str("type", string(event.Type)).
		Logger()

	if d.health.Healthy(ctx) {
		enqCtx, cancel := context.WithTimeout(ctx, d.cfg.EnqueueTimeout)
		err := d.queue.Enqueue(enqCtx, job)
		cancel()
		if err == nil {
			d.metrics.IncDispatch(string(domain.OutcomeQueued))
			log.Debug().Int("weight", job.Weight).Msg("dispatch: queued")
			return domain.OutcomeQueued, nil
		}
		log.Warn().Err(err).Msg("dispatch: enqueue failed, switching to direct mode")
		d.health.MarkUnhealthy()
	}

	job.Attempt = 1
	job.State = domain.JobInProgress
	result := d.pipeline.Execute(ctx, job, ModeDirect)
	if result.Succeeded() {
		d.metrics.IncDispatch(string(domain.OutcomeDeliveredDirect))
		return domain.OutcomeDeliveredDirect, nil
	}

	log.Error().Err(result.Err).Msg("dispatch: direct delivery failed")
	d.metrics.IncDispatch(string(domain.OutcomeFailedDirect))
	if result.RenderFailed() {
		return domain.OutcomeFailedDirect, apperror.ErrUnknownTemplate(string(event.Type))
	}
	return domain.OutcomeFailedDirect, nil
}

// prepare normalises the event and resolves its channel set.
func (d *NotificationDispatcher) prepare(event domain.DomainEvent) (domain.DomainEvent, []domain.Channel, error) {
	event.RecipientEmail = strings.ToLower(strings.TrimSpace(event.RecipientEmail))
	if err := d.validate.Var(event.RecipientEmail, "required,email"); err != nil {
		return event, nil, apperror.ErrInvalidEvent("recipient_email must be a valid e-mail address")
	}
	if !d.renderer.Supports(event.Type) {
		return event, nil, apperror.ErrUnknownTemplate(string(event.Type))
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	switch event.Priority {
	case domain.PriorityLow, domain.PriorityNormal, domain.PriorityHigh:
	case "":
		event.Priority = domain.PriorityNormal
	default:
		return event, nil, apperror.ErrInvalidEvent("priority must be one of low, normal, high")
	}

	if len(event.RequestedChannels) == 0 {
		return event, d.renderer.DefaultChannels(event.Type), nil
	}
	channels := make([]domain.Channel, 0, len(event.RequestedChannels))
	for _, ch := range event.RequestedChannels {
		if !ch.Valid() {
			return event, nil, apperror.ErrInvalidEvent("unknown channel: " + string(ch))
		}
		if !domain.HasChannel(channels, ch) {
			channels = append(channels, ch)
		}
	}
	return event, channels, nil
}
