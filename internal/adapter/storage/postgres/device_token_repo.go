package postgres

import (
	"context"
	"fmt"
	"time"

	"notification-engine/internal/core/domain"
)

// DeviceTokenRepo implements ports.DeviceTokenRepository.
type DeviceTokenRepo struct {
	pool Pool
}

// NewDeviceTokenRepo creates a new DeviceTokenRepo.
func NewDeviceTokenRepo(pool Pool) *DeviceTokenRepo {
	return &DeviceTokenRepo{pool: pool}
}

// Register stores a token for the recipient, reactivating it if it already exists.
// A token moves to the latest recipient that registers it.
func (r *DeviceTokenRepo) Register(ctx context.Context, t *domain.DeviceToken) error {
	query := `INSERT INTO device_tokens (id, recipient_email, recipient_id, token, platform, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, true, $6, $7)
		ON CONFLICT (token) DO UPDATE SET
			recipient_email = EXCLUDED.recipient_email,
			recipient_id = EXCLUDED.recipient_id,
			platform = EXCLUDED.platform,
			active = true,
			updated_at = EXCLUDED.updated_at`

	_, err := r.pool.Exec(ctx, query,
		t.ID, t.RecipientEmail, t.RecipientID, t.Token, t.Platform, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("register device token: %w", err)
	}
	t.Active = true
	return nil
}

// ListActive returns the active tokens addressed by the recipient's id or email.
func (r *DeviceTokenRepo) ListActive(ctx context.Context, recipient domain.Recipient) ([]domain.DeviceToken, error) {
	query := `SELECT id, recipient_email, recipient_id, token, platform, active, created_at, updated_at
		FROM device_tokens
		WHERE active = true AND (recipient_email = $1 OR ($2::text IS NOT NULL AND recipient_id = $2))
		ORDER BY updated_at DESC`

	var recipientID *string
	if recipient.ID != "" {
		recipientID = &recipient.ID
	}

	rows, err := r.pool.Query(ctx, query, recipient.Email, recipientID)
	if err != nil {
		return nil, fmt.Errorf("list device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []domain.DeviceToken
	for rows.Next() {
		var t domain.DeviceToken
		if err := rows.Scan(
			&t.ID, &t.RecipientEmail, &t.RecipientID, &t.Token, &t.Platform,
			&t.Active, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan device token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// Deactivate disables a token the push gateway reported as unregistered.
func (r *DeviceTokenRepo) Deactivate(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE device_tokens SET active = false, updated_at = $1 WHERE token = $2`,
		time.Now().UTC(), token,
	)
	if err != nil {
		return fmt.Errorf("deactivate device token: %w", err)
	}
	return nil
}

// Unregister removes a token owned by the recipient.
func (r *DeviceTokenRepo) Unregister(ctx context.Context, recipientEmail, token string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM device_tokens WHERE recipient_email = $1 AND token = $2`,
		recipientEmail, token,
	)
	if err != nil {
		return fmt.Errorf("unregister device token: %w", err)
	}
	return nil
}
