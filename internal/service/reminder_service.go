package service

import (
	"context"
	"time"

	"notification-engine/internal/core/domain"
	"notification-engine/internal/core/ports"
	"notification-engine/pkg/apperror"

	"github.com/rs/zerolog"
)

// ReminderConfig controls which installments get a reminder.
type ReminderConfig struct {
	// Lookahead is how far ahead of the due date reminders start.
	Lookahead time.Duration
	BatchSize int
}

type reminderService struct {
	installments ports.InstallmentRepository
	dispatcher   ports.EventDispatcher
	cfg          ReminderConfig
	now          func() time.Time
	log          zerolog.Logger
}

// NewReminderService creates the reminder emitter. Defaults: 3 days lookahead,
// 500 installments per run.
func NewReminderService(installments ports.InstallmentRepository, dispatcher ports.EventDispatcher, cfg ReminderConfig, log zerolog.Logger) ports.ReminderService {
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 72 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &reminderService{installments: installments, dispatcher: dispatcher, cfg: cfg, now: time.Now, log: log}
}

// EmitPaymentReminders dispatches one low-priority, e-mail-only reminder per
// pending installment of a pending registration due within the lookahead.
func (s *reminderService) EmitPaymentReminders(ctx context.Context) (int, error) {
	due, err := s.installments.ListDueForReminder(ctx, s.now().Add(s.cfg.Lookahead), s.cfg.BatchSize)
	if err != nil {
		return 0, apperror.ErrDatabaseError(err)
	}

	sent := 0
	for _, r := range due {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		payload := map[string]any{
			"registration_id":    r.Installment.RegistrationID.String(),
			"installment_id":     r.Installment.ID.String(),
			"installment_number": r.Installment.SequenceNumber,
			"installment_count":  r.InstallmentCount,
			"amount":             r.Installment.Amount,
			"event_name":         r.EventName,
		}
		if r.Installment.DueDate != nil {
			payload["due_date"] = r.Installment.DueDate.UTC().Format(time.RFC3339)
		}
		_, err := s.dispatcher.Dispatch(ctx, domain.DomainEvent{
			Type:              domain.EventPaymentReminder,
			RecipientEmail:    r.RecipientEmail,
			RecipientID:       r.RecipientID,
			Priority:          domain.PriorityLow,
			RequestedChannels: []domain.Channel{domain.ChannelEmail},
			Payload:           payload,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("installment_id", r.Installment.ID.String()).Msg("reminder: dispatch failed")
			continue
		}
		sent++
	}

	s.log.Info().Int("candidates", len(due)).Int("dispatched", sent).Msg("payment reminders emitted")
	return sent, nil
}

// EmitCredentialExpiry dispatches a CredentialExpiringSoon event per notice.
func (s *reminderService) EmitCredentialExpiry(ctx context.Context, notices []ports.CredentialNotice) (int, error) {
	sent := 0
	for _, n := range notices {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		days := int(time.Until(n.ExpiresAt).Hours() / 24)
		if days < 0 {
			days = 0
		}
		_, err := s.dispatcher.Dispatch(ctx, domain.DomainEvent{
			Type:           domain.EventCredentialExpiringSoon,
			RecipientEmail: n.RecipientEmail,
			RecipientID:    n.RecipientID,
			Priority:       domain.PriorityNormal,
			Payload: map[string]any{
				"credential_name": n.CredentialName,
				"expires_at":      n.ExpiresAt.UTC().Format(time.RFC3339),
				"days_left":       days,
			},
		})
		if err != nil {
			s.log.Warn().Err(err).Str("recipient_email", n.RecipientEmail).Msg("credential expiry: dispatch failed")
			continue
		}
		sent++
	}
	return sent, nil
}
