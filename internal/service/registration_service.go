package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"notification-engine/internal/core/domain"
	"notification-engine/internal/core/ports"
	"notification-engine/pkg/apperror"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MaxInstallments is the largest installment plan a registration may use.
const MaxInstallments = 24

// RegistrationServiceImpl implements ports.RegistrationService.
type RegistrationServiceImpl struct {
	registrations ports.RegistrationRepository
	installments  ports.InstallmentRepository
	transactor    ports.DBTransactor
	dispatcher    ports.EventDispatcher
	audit         ports.AuditService
	updater       *installmentUpdater
	validate      *validator.Validate
	log           zerolog.Logger
}

// NewRegistrationService creates a registration service.
func NewRegistrationService(
	registrations ports.RegistrationRepository,
	installments ports.InstallmentRepository,
	transactor ports.DBTransactor,
	stateMachine ports.RegistrationStateMachine,
	dispatcher ports.EventDispatcher,
	audit ports.AuditService,
	log zerolog.Logger,
) *RegistrationServiceImpl {
	return &RegistrationServiceImpl{
		registrations: registrations,
		installments:  installments,
		transactor:    transactor,
		dispatcher:    dispatcher,
		audit:         audit,
		updater: &installmentUpdater{
			installments:  installments,
			registrations: registrations,
			stateMachine:  stateMachine,
			dispatcher:    dispatcher,
			log:           log,
		},
		validate: validator.New(),
		log:      log,
	}
}

// Create stores a registration and its N pending installments in one
// transaction, then emits RegistrationCreated.
func (s *RegistrationServiceImpl) Create(ctx context.Context, req ports.CreateRegistrationRequest) (*domain.Registration, []*domain.Installment, error) {
	req.RecipientEmail = strings.TrimSpace(req.RecipientEmail)
	req.EventName = strings.TrimSpace(req.EventName)
	if err := s.validate.Var(req.RecipientEmail, "required,email"); err != nil {
		return nil, nil, apperror.Validation("recipient_email must be a valid e-mail address")
	}
	if req.EventName == "" {
		return nil, nil, apperror.Validation("event_name is required")
	}
	if req.InstallmentCount < 1 || req.InstallmentCount > MaxInstallments {
		return nil, nil, apperror.ErrInvalidInstallmentCount()
	}
	if req.Amount <= 0 {
		return nil, nil, apperror.Validation("amount must be positive")
	}

	now := time.Now().UTC()
	reg := &domain.Registration{
		ID:               uuid.New(),
		RecipientEmail:   req.RecipientEmail,
		RecipientID:      req.RecipientID,
		EventName:        req.EventName,
		Status:           domain.RegistrationPending,
		InstallmentCount: req.InstallmentCount,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	items := domain.NewInstallments(reg.ID, req.InstallmentCount, req.Amount, req.FirstDueDate)

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.registrations.Create(ctx, dbTx, reg); err != nil {
		return nil, nil, apperror.ErrDatabaseError(err)
	}
	if err := s.installments.CreateBatch(ctx, dbTx, items); err != nil {
		return nil, nil, apperror.ErrDatabaseError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	log := s.log.With().Str("registration_id", reg.ID.String()).Logger()
	log.Info().Int("installment_count", reg.InstallmentCount).Msg("registration created")

	emit(ctx, s.dispatcher, log, domain.DomainEvent{
		Type:           domain.EventRegistrationCreated,
		RecipientEmail: reg.RecipientEmail,
		RecipientID:    reg.RecipientID,
		Priority:       domain.PriorityNormal,
		Payload: map[string]any{
			"registration_id":   reg.ID.String(),
			"event_name":        reg.EventName,
			"installment_count": reg.InstallmentCount,
			"amount":            req.Amount,
		},
	})
	return reg, items, nil
}

// Cancel explicitly cancels a registration and its pending installments in
// one transaction. RegistrationCancelled is emitted only after commit.
// Cancelling an already-cancelled registration is a no-op.
func (s *RegistrationServiceImpl) Cancel(ctx context.Context, id uuid.UUID, reason string) (*domain.Registration, error) {
	reg, err := s.registrations.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if reg == nil {
		return nil, apperror.ErrRegistrationNotFound()
	}
	if reg.Status == domain.RegistrationCancelled {
		return reg, nil
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	changed, err := s.registrations.UpdateStatusIfTx(ctx, dbTx, id, reg.Status, domain.RegistrationCancelled)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if !changed {
		return nil, apperror.ErrInvalidStatusOverride(string(reg.Status), string(domain.RegistrationCancelled))
	}
	cancelled, err := s.installments.CancelPending(ctx, dbTx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	reg.Status = domain.RegistrationCancelled
	reg.UpdatedAt = time.Now().UTC()

	log := s.log.With().Str("registration_id", id.String()).Logger()
	log.Info().Int64("installments_cancelled", cancelled).Str("reason", reason).Msg("registration cancelled")

	payload := map[string]any{
		"registration_id": reg.ID.String(),
		"event_name":      reg.EventName,
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		payload["reason"] = reason
	}
	emit(ctx, s.dispatcher, log, domain.DomainEvent{
		Type:           domain.EventRegistrationCancelled,
		RecipientEmail: reg.RecipientEmail,
		RecipientID:    reg.RecipientID,
		Priority:       domain.PriorityHigh,
		Payload:        payload,
	})
	return reg, nil
}

// OverrideInstallment sets an installment status by hand, under the same
// transition rules and cascade as webhook reconciliation.
func (s *RegistrationServiceImpl) OverrideInstallment(ctx context.Context, installmentID uuid.UUID, status domain.InstallmentStatus) (*domain.Installment, error) {
	if !status.Valid() {
		return nil, apperror.Validation("unknown installment status: " + string(status))
	}

	inst, err := s.installments.GetByID(ctx, installmentID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if inst == nil {
		return nil, apperror.ErrInstallmentNotFound()
	}

	t := domain.ResolveStatusChange(inst.Status, status)
	entry := &domain.ReconciliationAudit{
		Source:        domain.AuditSourceOverride,
		InstallmentID: &inst.ID,
		FromStatus:    t.From,
		ToStatus:      t.To,
		Result:        t.Result,
	}

	switch t.Result {
	case domain.ReconcileNoop:
		s.audit.Log(ctx, entry)
		return inst, nil
	case domain.ReconcileConflict:
		entry.Detail = "transition not allowed"
		s.audit.Log(ctx, entry)
		return nil, apperror.ErrInvalidStatusOverride(string(inst.Status), string(status))
	}

	err = s.updater.apply(ctx, inst, t, nil, nil, nil)
	if errors.Is(err, domain.ErrStatusConflict) {
		entry.Result = domain.ReconcileConflict
		entry.Detail = "concurrent update"
		s.audit.Log(ctx, entry)
		return nil, apperror.ErrInvalidStatusOverride(string(t.From), string(status))
	}
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	s.audit.Log(ctx, entry)
	return inst, nil
}
