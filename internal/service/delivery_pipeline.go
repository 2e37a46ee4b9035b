package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notification-engine/internal/core/domain"
	"notification-engine/internal/core/ports"
	"notification-engine/pkg/metrics"

	"github.com/rs/zerolog"
)

// ExecutionMode names the scheduler that invoked the pipeline.
type ExecutionMode string

const (
	ModeQueued ExecutionMode = "queued"
	ModeDirect ExecutionMode = "direct"
)

// ChannelTimeouts bounds each channel send.
type ChannelTimeouts struct {
	Push     time.Duration
	Email    time.Duration
	Realtime time.Duration
}

// DefaultChannelTimeouts returns push 10s, email 60s, realtime 2s.
func DefaultChannelTimeouts() ChannelTimeouts {
	return ChannelTimeouts{Push: 10 * time.Second, Email: 60 * time.Second, Realtime: 2 * time.Second}
}

func (t ChannelTimeouts) forChannel(ch domain.Channel) time.Duration {
	switch ch {
	case domain.ChannelPush:
		return t.Push
	case domain.ChannelEmail:
		return t.Email
	default:
		return t.Realtime
	}
}

// PipelineResult is the outcome of one pipeline execution.
type PipelineResult struct {
	Outcome  domain.ChannelOutcome
	Rendered domain.RenderedMessage
	Record   *domain.DeliveryRecord
	// Err is set when rendering failed or no channel succeeded. Render
	// failures wrap domain.ErrUnknownEventType and must not be retried.
	Err error
}

// Succeeded reports whether the attempt counts as delivered.
func (r PipelineResult) Succeeded() bool {
	return r.Err == nil && r.Outcome.Succeeded()
}

// RenderFailed reports whether the attempt failed before any channel was tried.
func (r PipelineResult) RenderFailed() bool {
	return r.Err != nil && errors.Is(r.Err, domain.ErrUnknownEventType)
}

// DeliveryPipeline renders a job and runs its channel set. Both the worker
// pool and the dispatcher's direct mode call Execute.
type DeliveryPipeline struct {
	renderer ports.TemplateRenderer
	senders  map[domain.Channel]ports.ChannelSender
	ledger   ports.DeliveryLedger
	timeouts ChannelTimeouts
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// NewDeliveryPipeline wires the pipeline. Zero timeouts take the defaults and
// channels without a sender count as failed.
func NewDeliveryPipeline(
	renderer ports.TemplateRenderer,
	senders []ports.ChannelSender,
	ledger ports.DeliveryLedger,
	timeouts ChannelTimeouts,
	m *metrics.Metrics,
	log zerolog.Logger,
) *DeliveryPipeline {
	defaults := DefaultChannelTimeouts()
	if timeouts.Push <= 0 {
		timeouts.Push = defaults.Push
	}
	if timeouts.Email <= 0 {
		timeouts.Email = defaults.Email
	}
	if timeouts.Realtime <= 0 {
		timeouts.Realtime = defaults.Realtime
	}

	bySender := make(map[domain.Channel]ports.ChannelSender, len(senders))
	for _, s := range senders {
		bySender[s.Channel()] = s
	}
	return &DeliveryPipeline{
		renderer: renderer,
		senders:  bySender,
		ledger:   ledger,
		timeouts: timeouts,
		metrics:  m,
		log:      log,
	}
}

// Execute renders the job's event, sends it and upserts its DeliveryRecord.
//
// Push goes first. E-mail is sent only when push is not in the set, failed, or
// had no targets. Realtime is best-effort and runs last.
func (p *DeliveryPipeline) Execute(ctx context.Context, job *domain.NotificationJob, mode ExecutionMode) PipelineResult {
	event := job.Event
	log := p.log.With().
		Str("event_id", event.ID.String()).
		Str("job_id", job.ID.String()).
		Str("type", string(event.Type)).
		Str("mode", string(mode)).
		Int("attempt", job.Attempt).
		Logger()

	rendered, err := p.renderer.Render(event.Type, event.Payload)
	if err != nil {
		log.Error().Err(err).Msg("pipeline: render failed")
		return PipelineResult{Err: err}
	}

	recipient := event.Recipient()
	var out domain.ChannelOutcome
	var errs []error

	if domain.HasChannel(job.Channels, domain.ChannelPush) {
		out.PushAttempted = true
		if err := p.send(ctx, domain.ChannelPush, recipient, rendered, event); err != nil {
			errs = append(errs, err)
			if errors.Is(err, domain.ErrNoTargets) {
				log.Debug().Msg("pipeline: no push targets")
			} else {
				log.Warn().Err(err).Msg("pipeline: push failed")
			}
		} else {
			out.PushSuccess = true
		}
	}

	if domain.HasChannel(job.Channels, domain.ChannelEmail) && !out.PushSuccess {
		out.EmailAttempted = true
		if err := p.send(ctx, domain.ChannelEmail, recipient, rendered, event); err != nil {
			errs = append(errs, err)
			log.Warn().Err(err).Bool("fallback", out.PushAttempted).Msg("pipeline: email failed")
		} else {
			out.EmailSuccess = true
		}
	}

	if domain.HasChannel(job.Channels, domain.ChannelRealtime) {
		out.RealtimeAttempted = true
		if err := p.send(ctx, domain.ChannelRealtime, recipient, rendered, event); err != nil {
			errs = append(errs, err)
			log.Debug().Err(err).Msg("pipeline: realtime failed")
		} else {
			out.RealtimeSuccess = true
		}
	}

	rec := &domain.DeliveryRecord{
		EventID:         event.ID,
		RecipientEmail:  event.RecipientEmail,
		RecipientID:     event.RecipientID,
		Type:            event.Type,
		Title:           rendered.Title,
		Body:            rendered.Body,
		Data:            event.Payload,
		SentVia:         out.SentVia(),
		PushSuccess:     out.PushSuccess,
		EmailSuccess:    out.EmailSuccess,
		RealtimeSuccess: out.RealtimeSuccess,
		Attempt:         job.Attempt,
	}
	// Written even when every channel failed; history is the source of truth.
	// Detached so a cancelled attempt still leaves its outcome.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.ledger.Record(recordCtx, rec); err != nil {
		log.Error().Err(err).Msg("pipeline: failed to record delivery")
	}

	result := PipelineResult{Outcome: out, Rendered: rendered, Record: rec}
	if !out.Succeeded() {
		result.Err = fmt.Errorf("no channel delivered: %w", errors.Join(errs...))
		if len(errs) == 0 {
			result.Err = errors.New("no channel delivered: empty channel set")
		}
	}

	log.Info().
		Str("sent_via", string(rec.SentVia)).
		Bool("push", out.PushSuccess).
		Bool("email", out.EmailSuccess).
		Bool("realtime", out.RealtimeSuccess).
		Msg("pipeline: attempt finished")
	return result
}

func (p *DeliveryPipeline) send(ctx context.Context, ch domain.Channel, recipient domain.Recipient, msg domain.RenderedMessage, event domain.DomainEvent) error {
	sender, ok := p.senders[ch]
	if !ok {
		p.metrics.IncChannelSend(string(ch), "unavailable")
		return fmt.Errorf("%s: no sender configured", ch)
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.timeouts.forChannel(ch))
	defer cancel()

	err := sender.Send(sendCtx, recipient, msg, event)
	switch {
	case err == nil:
		p.metrics.IncChannelSend(string(ch), "ok")
	case errors.Is(err, domain.ErrNoTargets):
		p.metrics.IncChannelSend(string(ch), "no_targets")
	case errors.Is(err, context.DeadlineExceeded):
		p.metrics.IncChannelSend(string(ch), "timeout")
	default:
		p.metrics.IncChannelSend(string(ch), "error")
	}
	if err != nil {
		return fmt.Errorf("%s: %w", ch, err)
	}
	return nil
}
