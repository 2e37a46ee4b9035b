package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"notification-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const deliveryColumns = `id, event_id, recipient_email, recipient_id, type, title, body, data,
		sent_via, push_success, email_success, realtime_success, attempt, read, read_at, created_at, updated_at`

// DeliveryRepo implements ports.DeliveryLedger.
type DeliveryRepo struct {
	pool Pool
}

// NewDeliveryRepo creates a new DeliveryRepo.
func NewDeliveryRepo(pool Pool) *DeliveryRepo {
	return &DeliveryRepo{pool: pool}
}

// Record upserts the ledger row for rec.EventID. Read state is never touched
// by a retry, only the rendered content and channel outcomes. A write from an
// older attempt than the stored one is dropped, so a late redelivery cannot
// overwrite a newer outcome; rec.ID stays zero in that case.
func (r *DeliveryRepo) Record(ctx context.Context, rec *domain.DeliveryRecord) error {
	data, err := marshalData(rec.Data)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	query := `INSERT INTO delivery_records (event_id, recipient_email, recipient_id, type, title, body, data,
		sent_via, push_success, email_success, realtime_success, attempt, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (event_id) DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			data = EXCLUDED.data,
			sent_via = EXCLUDED.sent_via,
			push_success = EXCLUDED.push_success,
			email_success = EXCLUDED.email_success,
			realtime_success = EXCLUDED.realtime_success,
			attempt = EXCLUDED.attempt,
			updated_at = EXCLUDED.updated_at
		WHERE delivery_records.attempt <= EXCLUDED.attempt
		RETURNING id, created_at`

	err = r.pool.QueryRow(ctx, query,
		rec.EventID, rec.RecipientEmail, rec.RecipientID, rec.Type, rec.Title, rec.Body, data,
		rec.SentVia, rec.PushSuccess, rec.EmailSuccess, rec.RealtimeSuccess, rec.Attempt,
		rec.CreatedAt, rec.UpdatedAt,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("upsert delivery record: %w", err)
	}
	return nil
}

// GetByEventID fetches the ledger row for an event.
func (r *DeliveryRepo) GetByEventID(ctx context.Context, eventID uuid.UUID) (*domain.DeliveryRecord, error) {
	query := `SELECT ` + deliveryColumns + ` FROM delivery_records WHERE event_id = $1`

	rec, err := scanDelivery(r.pool.QueryRow(ctx, query, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get delivery record by event_id: %w", err)
	}
	return rec, nil
}

// List returns a recipient's history, newest first, with the total count.
func (r *DeliveryRepo) List(ctx context.Context, recipientEmail string, limit, offset int) ([]domain.DeliveryRecord, int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM delivery_records WHERE recipient_email = $1`, recipientEmail,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count delivery records: %w", err)
	}

	query := `SELECT ` + deliveryColumns + ` FROM delivery_records
		WHERE recipient_email = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, recipientEmail, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list delivery records: %w", err)
	}
	defer rows.Close()

	var records []domain.DeliveryRecord
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan delivery record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate delivery records: %w", err)
	}

	return records, total, nil
}

// CountUnread returns the number of unread records for a recipient.
func (r *DeliveryRepo) CountUnread(ctx context.Context, recipientEmail string) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM delivery_records WHERE recipient_email = $1 AND read = false`, recipientEmail,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// MarkRead flags one record as read. The first read_at is preserved.
// Returns false when the record does not belong to the recipient.
func (r *DeliveryRepo) MarkRead(ctx context.Context, recipientEmail string, id int64) (bool, error) {
	query := `UPDATE delivery_records SET read = true, read_at = COALESCE(read_at, $1)
		WHERE id = $2 AND recipient_email = $3`

	tag, err := r.pool.Exec(ctx, query, time.Now().UTC(), id, recipientEmail)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkAllRead flags every unread record of the recipient as read.
func (r *DeliveryRepo) MarkAllRead(ctx context.Context, recipientEmail string) (int64, error) {
	query := `UPDATE delivery_records SET read = true, read_at = $1
		WHERE recipient_email = $2 AND read = false`

	tag, err := r.pool.Exec(ctx, query, time.Now().UTC(), recipientEmail)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanDelivery(row pgx.Row) (*domain.DeliveryRecord, error) {
	rec := &domain.DeliveryRecord{}
	var data []byte
	err := row.Scan(
		&rec.ID, &rec.EventID, &rec.RecipientEmail, &rec.RecipientID, &rec.Type,
		&rec.Title, &rec.Body, &data,
		&rec.SentVia, &rec.PushSuccess, &rec.EmailSuccess, &rec.RealtimeSuccess, &rec.Attempt,
		&rec.Read, &rec.ReadAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &rec.Data); err != nil {
			return nil, fmt.Errorf("decode delivery data: %w", err)
		}
	}
	return rec, nil
}

func marshalData(data map[string]any) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode delivery data: %w", err)
	}
	return b, nil
}
