package postgres

import (
	"context"
	"fmt"

	"notification-engine/internal/core/domain"
)

// AuditRepo implements ports.AuditRepository.
type AuditRepo struct {
	pool Pool
}

// NewAuditRepo creates a PostgreSQL-backed AuditRepository.
func NewAuditRepo(pool Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// Create appends a reconciliation decision.
func (r *AuditRepo) Create(ctx context.Context, e *domain.ReconciliationAudit) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO reconciliation_audits
		(id, source, installment_id, external_payment_id, external_status, from_status, to_status, result, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.Source, e.InstallmentID, e.ExternalPaymentID, e.ExternalStatus,
		e.FromStatus, e.ToStatus, e.Result, e.Detail, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reconciliation audit: %w", err)
	}
	return nil
}
