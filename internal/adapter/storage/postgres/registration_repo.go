package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notification-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// RegistrationRepo implements ports.RegistrationRepository.
type RegistrationRepo struct {
	pool Pool
}

// NewRegistrationRepo creates a new RegistrationRepo.
func NewRegistrationRepo(pool Pool) *RegistrationRepo {
	return &RegistrationRepo{pool: pool}
}

// Create inserts a registration within a database transaction.
func (r *RegistrationRepo) Create(ctx context.Context, tx pgx.Tx, reg *domain.Registration) error {
	query := `INSERT INTO registrations (id, recipient_email, recipient_id, event_name, status, installment_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		reg.ID, reg.RecipientEmail, reg.RecipientID, reg.EventName,
		reg.Status, reg.InstallmentCount, reg.CreatedAt, reg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

// GetByID fetches a registration by its UUID.
func (r *RegistrationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Registration, error) {
	query := `SELECT id, recipient_email, recipient_id, event_name, status, installment_count, created_at, updated_at
		FROM registrations WHERE id = $1`

	reg := &domain.Registration{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&reg.ID, &reg.RecipientEmail, &reg.RecipientID, &reg.EventName,
		&reg.Status, &reg.InstallmentCount, &reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get registration by id: %w", err)
	}
	return reg, nil
}

// UpdateStatusIf moves the registration to `to` only while it is still in `from`.
func (r *RegistrationRepo) UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to domain.RegistrationStatus) (bool, error) {
	return updateRegistrationStatusIf(ctx, r.pool, id, from, to)
}

// UpdateStatusIfTx is UpdateStatusIf inside the caller's transaction.
func (r *RegistrationRepo) UpdateStatusIfTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to domain.RegistrationStatus) (bool, error) {
	return updateRegistrationStatusIf(ctx, tx, id, from, to)
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func updateRegistrationStatusIf(ctx context.Context, db execer, id uuid.UUID, from, to domain.RegistrationStatus) (bool, error) {
	query := `UPDATE registrations SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`

	tag, err := db.Exec(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return false, fmt.Errorf("update registration status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
