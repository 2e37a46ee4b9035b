package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notification-engine/internal/core/domain"
	"notification-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const installmentColumns = `id, registration_id, sequence_number, amount, status, external_reference,
		due_date, paid_at, created_at, updated_at`

// InstallmentRepo implements ports.InstallmentRepository.
type InstallmentRepo struct {
	pool Pool
}

// NewInstallmentRepo creates a new InstallmentRepo.
func NewInstallmentRepo(pool Pool) *InstallmentRepo {
	return &InstallmentRepo{pool: pool}
}

// CreateBatch inserts all installments of a registration inside tx.
func (r *InstallmentRepo) CreateBatch(ctx context.Context, tx pgx.Tx, items []*domain.Installment) error {
	query := `INSERT INTO installments (id, registration_id, sequence_number, amount, status, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	for _, it := range items {
		_, err := tx.Exec(ctx, query,
			it.ID, it.RegistrationID, it.SequenceNumber, it.Amount,
			it.Status, it.DueDate, it.CreatedAt, it.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert installment %d: %w", it.SequenceNumber, err)
		}
	}
	return nil
}

// GetByID fetches an installment by its UUID.
func (r *InstallmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Installment, error) {
	query := `SELECT ` + installmentColumns + ` FROM installments WHERE id = $1`

	it, err := scanInstallment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get installment by id: %w", err)
	}
	return it, nil
}

// ListByRegistration returns the installments of a registration ordered by sequence.
func (r *InstallmentRepo) ListByRegistration(ctx context.Context, registrationID uuid.UUID) ([]domain.Installment, error) {
	query := `SELECT ` + installmentColumns + ` FROM installments
		WHERE registration_id = $1 ORDER BY sequence_number`

	rows, err := r.pool.Query(ctx, query, registrationID)
	if err != nil {
		return nil, fmt.Errorf("list installments: %w", err)
	}
	defer rows.Close()

	var items []domain.Installment
	for rows.Next() {
		it, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan installment: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// CountCompleted counts the installments of a registration in COMPLETED.
func (r *InstallmentRepo) CountCompleted(ctx context.Context, registrationID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM installments WHERE registration_id = $1 AND status = $2`,
		registrationID, domain.InstallmentCompleted,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count completed installments: %w", err)
	}
	return n, nil
}

// UpdateStatusIf applies change only while the row is still in change.From.
// A reference already bound to another installment yields domain.ErrDuplicateRef.
func (r *InstallmentRepo) UpdateStatusIf(ctx context.Context, change domain.InstallmentStatusChange) (bool, error) {
	query := `UPDATE installments SET status = $1,
			external_reference = COALESCE($2, external_reference),
			paid_at = COALESCE($3, paid_at),
			updated_at = $4
		WHERE id = $5 AND status = $6`

	tag, err := r.pool.Exec(ctx, query,
		change.To, change.ExternalReference, change.PaidAt, time.Now().UTC(),
		change.InstallmentID, change.From,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return false, domain.ErrDuplicateRef
		}
		return false, fmt.Errorf("update installment status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CancelPending cancels every still-pending installment of a registration inside tx.
func (r *InstallmentRepo) CancelPending(ctx context.Context, tx pgx.Tx, registrationID uuid.UUID) (int64, error) {
	query := `UPDATE installments SET status = $1, updated_at = $2
		WHERE registration_id = $3 AND status = $4`

	tag, err := tx.Exec(ctx, query,
		domain.InstallmentCancelled, time.Now().UTC(), registrationID, domain.InstallmentPending,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel pending installments: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListDueForReminder returns pending installments of pending registrations that
// are due on or before dueBefore, or that have no due date.
func (r *InstallmentRepo) ListDueForReminder(ctx context.Context, dueBefore time.Time, limit int) ([]ports.InstallmentReminder, error) {
	query := `SELECT i.id, i.registration_id, i.sequence_number, i.amount, i.status, i.external_reference,
			i.due_date, i.paid_at, i.created_at, i.updated_at,
			r.recipient_email, r.recipient_id, r.event_name, r.installment_count
		FROM installments i
		JOIN registrations r ON r.id = i.registration_id
		WHERE i.status = $1 AND r.status = $2 AND (i.due_date IS NULL OR i.due_date <= $3)
		ORDER BY i.due_date NULLS LAST, i.sequence_number
		LIMIT $4`

	rows, err := r.pool.Query(ctx, query, domain.InstallmentPending, domain.RegistrationPending, dueBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list due installments: %w", err)
	}
	defer rows.Close()

	var out []ports.InstallmentReminder
	for rows.Next() {
		var rem ports.InstallmentReminder
		it := &rem.Installment
		err := rows.Scan(
			&it.ID, &it.RegistrationID, &it.SequenceNumber, &it.Amount, &it.Status, &it.ExternalReference,
			&it.DueDate, &it.PaidAt, &it.CreatedAt, &it.UpdatedAt,
			&rem.RecipientEmail, &rem.RecipientID, &rem.EventName, &rem.InstallmentCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan due installment: %w", err)
		}
		out = append(out, rem)
	}
	return out, rows.Err()
}

func scanInstallment(row pgx.Row) (*domain.Installment, error) {
	it := &domain.Installment{}
	err := row.Scan(
		&it.ID, &it.RegistrationID, &it.SequenceNumber, &it.Amount, &it.Status, &it.ExternalReference,
		&it.DueDate, &it.PaidAt, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return it, nil
}
