package service

import (
	"context"
	"fmt"
	"time"

	"notification-engine/internal/core/domain"
	"notification-engine/internal/core/ports"
	"notification-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RegistrationStateMachine implements ports.RegistrationStateMachine.
type RegistrationStateMachine struct {
	registrations ports.RegistrationRepository
	installments  ports.InstallmentRepository
	dispatcher    ports.EventDispatcher
	log           zerolog.Logger
}

// NewRegistrationStateMachine creates the state machine.
func NewRegistrationStateMachine(
	registrations ports.RegistrationRepository,
	installments ports.InstallmentRepository,
	dispatcher ports.EventDispatcher,
	log zerolog.Logger,
) *RegistrationStateMachine {
	return &RegistrationStateMachine{
		registrations: registrations,
		installments:  installments,
		dispatcher:    dispatcher,
		log:           log,
	}
}

// Recompute derives the registration status from its completed installments.
// The transition is a conditional update, so concurrent or repeated calls
// emit at most one event per actual change.
func (m *RegistrationStateMachine) Recompute(ctx context.Context, registrationID uuid.UUID) error {
	reg, err := m.registrations.GetByID(ctx, registrationID)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("get registration: %w", err))
	}
	if reg == nil {
		return apperror.ErrRegistrationNotFound()
	}

	completed, err := m.installments.CountCompleted(ctx, registrationID)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("count completed installments: %w", err))
	}

	target := reg.DeriveStatus(completed)
	log := m.log.With().
		Str("registration_id", registrationID.String()).
		Int("completed", completed).
		Int("installment_count", reg.InstallmentCount).
		Logger()

	if target == reg.Status {
		log.Debug().Str("status", string(reg.Status)).Msg("recompute: status unchanged")
		return nil
	}

	changed, err := m.registrations.UpdateStatusIf(ctx, registrationID, reg.Status, target)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("update registration status: %w", err))
	}
	if !changed {
		log.Info().Str("from", string(reg.Status)).Str("to", string(target)).Msg("recompute: status changed concurrently, skipping")
		return nil
	}
	log.Info().Str("from", string(reg.Status)).Str("to", string(target)).Msg("recompute: registration status changed")

	var eventType domain.EventType
	priority := domain.PriorityNormal
	switch {
	case target == domain.RegistrationConfirmed:
		eventType = domain.EventRegistrationConfirmed
		priority = domain.PriorityHigh
	case reg.Status == domain.RegistrationConfirmed && target == domain.RegistrationPending:
		eventType = domain.EventRegistrationUpdated
	default:
		return nil
	}

	emit(ctx, m.dispatcher, log, domain.DomainEvent{
		Type:           eventType,
		RecipientEmail: reg.RecipientEmail,
		RecipientID:    reg.RecipientID,
		Priority:       priority,
		Payload: map[string]any{
			"registration_id":   reg.ID.String(),
			"event_name":        reg.EventName,
			"installment_count": reg.InstallmentCount,
			"status":            string(target),
		},
	})
	return nil
}

// emit dispatches a follow-on event. Failures are logged only: the state
// change that produced the event is already committed.
func emit(ctx context.Context, dispatcher ports.EventDispatcher, log zerolog.Logger, event domain.DomainEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	outcome, err := dispatcher.Dispatch(ctx, event)
	if err != nil {
		log.Error().Err(err).Str("type", string(event.Type)).Msg("failed to dispatch follow-on event")
		return
	}
	log.Debug().Str("type", string(event.Type)).Str("outcome", string(outcome)).Msg("follow-on event dispatched")
}
