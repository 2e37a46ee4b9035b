package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"notification-engine/internal/core/domain"
	"notification-engine/internal/core/ports"
	"notification-engine/pkg/apperror"
	"notification-engine/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReconcilerConfig tunes locking and dedupe.
type ReconcilerConfig struct {
	LockTTL   time.Duration
	LockWait  time.Duration
	DedupeTTL time.Duration
}

// PaymentReconcilerService implements ports.PaymentReconciler.
type PaymentReconcilerService struct {
	gateway      ports.PaymentGateway
	installments ports.InstallmentRepository
	locker       ports.InstallmentLocker
	dedupe       ports.WebhookDedupe
	audit        ports.AuditService
	updater      *installmentUpdater
	cfg          ReconcilerConfig
	metrics      *metrics.Metrics
	log          zerolog.Logger
}

// NewPaymentReconciler creates the reconciler. Zero config values default to a
// 30s lock held for at most 5s of waiting and a 24h dedupe window.
func NewPaymentReconciler(
	gateway ports.PaymentGateway,
	installments ports.InstallmentRepository,
	registrations ports.RegistrationRepository,
	stateMachine ports.RegistrationStateMachine,
	dispatcher ports.EventDispatcher,
	locker ports.InstallmentLocker,
	dedupe ports.WebhookDedupe,
	audit ports.AuditService,
	cfg ReconcilerConfig,
	m *metrics.Metrics,
	log zerolog.Logger,
) *PaymentReconcilerService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 5 * time.Second
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = 24 * time.Hour
	}
	return &PaymentReconcilerService{
		gateway:      gateway,
		installments: installments,
		locker:       locker,
		dedupe:       dedupe,
		audit:        audit,
		updater: &installmentUpdater{
			installments:  installments,
			registrations: registrations,
			stateMachine:  stateMachine,
			dispatcher:    dispatcher,
			log:           log,
		},
		cfg:     cfg,
		metrics: m,
		log:     log,
	}
}

// HandleNotice processes one inbound gateway notice. A nil return means the
// gateway should not redeliver it; errors are transient.
func (r *PaymentReconcilerService) HandleNotice(ctx context.Context, notice domain.GatewayNotice) error {
	log := r.log.With().
		Str("notice_id", string(notice.ID)).
		Str("payment_id", notice.PaymentID()).
		Str("notice_type", notice.Type).
		Logger()

	if notice.Type != domain.GatewayNoticeTypePayment {
		log.Info().Msg("reconcile: ignoring non-payment notice")
		r.metrics.IncReconcile("ignored")
		return nil
	}
	if notice.PaymentID() == "" {
		log.Warn().Msg("reconcile: notice without payment id")
		r.metrics.IncReconcile("ignored")
		return nil
	}

	key := domain.BuildWebhookDedupeKey(notice)
	seen, err := r.dedupe.Seen(ctx, key)
	if err != nil {
		log.Warn().Err(err).Msg("reconcile: dedupe lookup failed, continuing")
	}
	if seen {
		log.Debug().Msg("reconcile: duplicate notice")
		r.metrics.IncReconcile("duplicate")
		return nil
	}

	payment, err := r.gateway.GetPayment(ctx, notice.PaymentID())
	if errors.Is(err, domain.ErrPaymentNotFound) {
		log.Warn().Msg("reconcile: payment not found at gateway, dropping")
		r.metrics.IncReconcile("payment_not_found")
		return nil
	}
	if err != nil {
		log.Error().Err(err).Msg("reconcile: gateway fetch failed")
		return apperror.ErrUpstreamUnavailable(err)
	}

	if err := r.Reconcile(ctx, *payment); err != nil {
		return err
	}

	if err := r.dedupe.MarkProcessed(ctx, key, r.cfg.DedupeTTL); err != nil {
		log.Warn().Err(err).Msg("reconcile: failed to mark notice processed")
	}
	return nil
}

// Reconcile applies a fetched payment state to its installment. Unknown
// references, unmapped statuses and regressions are audited and dropped.
func (r *PaymentReconcilerService) Reconcile(ctx context.Context, n domain.WebhookNotification) error {
	entry := &domain.ReconciliationAudit{
		Source:            domain.AuditSourceWebhook,
		ExternalPaymentID: n.ExternalPaymentID,
		ExternalStatus:    n.ExternalStatus,
	}
	log := r.log.With().
		Str("payment_id", n.ExternalPaymentID).
		Str("external_status", n.ExternalStatus).
		Str("external_reference", n.ExternalReference).
		Logger()

	installmentID, err := uuid.Parse(strings.TrimSpace(n.ExternalReference))
	if err != nil {
		log.Warn().Msg("reconcile: external reference is not an installment id")
		r.finish(ctx, entry, domain.ReconcileUnknown, "unparseable external_reference")
		return nil
	}
	entry.InstallmentID = &installmentID

	// The lock only covers read-then-write. It is released right after the
	// conditional update so dispatch and recompute never run under it.
	unlock := func() {}
	lockCtx, cancel := context.WithTimeout(ctx, r.cfg.LockWait)
	release, err := r.locker.Acquire(lockCtx, "installment:"+installmentID.String(), r.cfg.LockTTL)
	cancel()
	if err != nil {
		// The conditional update below still guards correctness.
		log.Warn().Err(err).Msg("reconcile: lock not acquired, proceeding")
	} else {
		var once sync.Once
		unlock = func() { once.Do(release) }
	}
	defer unlock()

	inst, err := r.installments.GetByID(ctx, installmentID)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("get installment: %w", err))
	}
	if inst == nil {
		log.Warn().Msg("reconcile: unknown installment, dropping")
		r.finish(ctx, entry, domain.ReconcileUnknown, "installment not found")
		return nil
	}

	t := domain.ResolveTransition(inst.Status, n.ExternalStatus)
	entry.FromStatus = t.From
	entry.ToStatus = t.To

	switch t.Result {
	case domain.ReconcileUnmapped:
		log.Warn().Msg("reconcile: unmapped external status")
		r.finish(ctx, entry, t.Result, "")
		return nil
	case domain.ReconcileNoop:
		log.Debug().Str("status", string(inst.Status)).Msg("reconcile: already in target status")
		r.finish(ctx, entry, t.Result, "")
		return nil
	case domain.ReconcileConflict:
		log.Warn().Str("status", string(inst.Status)).Msg("reconcile: refusing status regression")
		r.finish(ctx, entry, t.Result, "transition not allowed")
		return nil
	}

	var ref *string
	if n.ExternalPaymentID != "" {
		ref = &n.ExternalPaymentID
	}
	err = r.updater.apply(ctx, inst, t, ref, n.DateApproved, unlock)
	switch {
	case err == nil:
		r.finish(ctx, entry, domain.ReconcileApplied, "")
		return nil
	case errors.Is(err, domain.ErrStatusConflict):
		log.Info().Msg("reconcile: installment changed concurrently")
		r.finish(ctx, entry, domain.ReconcileConflict, "concurrent update")
		return nil
	case isDuplicateRef(err):
		log.Error().Msg("reconcile: payment id already bound to another installment")
		r.finish(ctx, entry, domain.ReconcileConflict, "duplicate external reference")
		return nil
	default:
		return apperror.ErrDatabaseError(err)
	}
}

func (r *PaymentReconcilerService) finish(ctx context.Context, entry *domain.ReconciliationAudit, result domain.ReconcileResult, detail string) {
	entry.Result = result
	entry.Detail = detail
	r.metrics.IncReconcile(string(result))
	r.audit.Log(ctx, entry)
}
