package service

import (
	"context"
	"time"

	"notification-engine/internal/core/domain"
	"notification-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type auditService struct {
	repo ports.AuditRepository
	log  zerolog.Logger
}

// NewAuditService creates a new audit service.
// If repo is nil, audit entries are only written to the logger.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) ports.AuditService {
	return &auditService{repo: repo, log: log}
}

// Log records a reconcile decision asynchronously (fire-and-forget).
func (s *auditService) Log(_ context.Context, entry *domain.ReconciliationAudit) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	go func() {
		ev := s.log.Info().
			Str("source", string(entry.Source)).
			Str("result", string(entry.Result)).
			Str("payment_id", entry.ExternalPaymentID).
			Str("external_status", entry.ExternalStatus).
			Str("from", string(entry.FromStatus)).
			Str("to", string(entry.ToStatus))
		if entry.InstallmentID != nil {
			ev = ev.Str("installment_id", entry.InstallmentID.String())
		}
		ev.Msg("reconcile audit")

		if s.repo != nil {
			if err := s.repo.Create(context.Background(), entry); err != nil {
				s.log.Warn().Err(err).Str("result", string(entry.Result)).Msg("failed to persist reconcile audit")
			}
		}
	}()
}
