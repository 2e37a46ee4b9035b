package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notification-engine/internal/core/domain"
	"notification-engine/internal/core/ports"

	"github.com/rs/zerolog"
)

// installmentUpdater applies a resolved transition to an installment and runs
// its side effects. Shared by webhook reconciliation and manual overrides.
type installmentUpdater struct {
	installments  ports.InstallmentRepository
	registrations ports.RegistrationRepository
	stateMachine  ports.RegistrationStateMachine
	dispatcher    ports.EventDispatcher
	log           zerolog.Logger
}

// apply persists t with a conditional update, emits the per-installment event
// and cascades to the registration when needed. It returns
// domain.ErrStatusConflict when another writer changed the row first.
// afterWrite, when set, runs as soon as the conditional update returns and
// before any follow-on effect.
func (u *installmentUpdater) apply(ctx context.Context, inst *domain.Installment, t domain.Transition, externalRef *string, paidAt *time.Time, afterWrite func()) error {
	change := domain.InstallmentStatusChange{
		InstallmentID:     inst.ID,
		From:              t.From,
		To:                t.To,
		ExternalReference: externalRef,
	}
	if t.To == domain.InstallmentCompleted {
		if paidAt == nil {
			now := time.Now().UTC()
			paidAt = &now
		}
		change.PaidAt = paidAt
	}

	ok, err := u.installments.UpdateStatusIf(ctx, change)
	if afterWrite != nil {
		afterWrite()
	}
	if err != nil {
		return fmt.Errorf("update installment status: %w", err)
	}
	if !ok {
		return domain.ErrStatusConflict
	}

	inst.Status = t.To
	if change.PaidAt != nil {
		inst.PaidAt = change.PaidAt
	}
	if externalRef != nil {
		inst.ExternalReference = externalRef
	}

	log := u.log.With().
		Str("installment_id", inst.ID.String()).
		Str("registration_id", inst.RegistrationID.String()).
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Logger()
	log.Info().Msg("installment status changed")

	if eventType, ok := t.InstallmentEvent(); ok {
		reg, err := u.registrations.GetByID(ctx, inst.RegistrationID)
		switch {
		case err != nil:
			log.Error().Err(err).Msg("failed to load registration for notification")
		case reg == nil:
			log.Warn().Msg("installment has no registration, notification skipped")
		default:
			priority := domain.PriorityNormal
			if eventType == domain.EventPaymentValidated {
				priority = domain.PriorityHigh
			}
			emit(ctx, u.dispatcher, log, domain.DomainEvent{
				Type:           eventType,
				RecipientEmail: reg.RecipientEmail,
				RecipientID:    reg.RecipientID,
				Priority:       priority,
				Payload: map[string]any{
					"registration_id":    reg.ID.String(),
					"installment_id":     inst.ID.String(),
					"installment_number": inst.SequenceNumber,
					"installment_count":  reg.InstallmentCount,
					"amount":             inst.Amount,
					"event_name":         reg.EventName,
				},
			})
		}
	}

	if t.Cascade {
		if err := u.stateMachine.Recompute(ctx, inst.RegistrationID); err != nil {
			log.Error().Err(err).Msg("registration recompute failed")
		}
	}
	return nil
}

func isDuplicateRef(err error) bool {
	return errors.Is(err, domain.ErrDuplicateRef)
}
