package service

import (
	"context"
	"strings"
	"time"

	"notification-engine/internal/core/domain"
	"notification-engine/internal/core/ports"
	"notification-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var devicePlatforms = map[string]bool{"ios": true, "android": true, "web": true}

type deviceRegistry struct {
	tokens ports.DeviceTokenRepository
	log    zerolog.Logger
}

// NewDeviceRegistry creates the push token registry.
func NewDeviceRegistry(tokens ports.DeviceTokenRepository, log zerolog.Logger) ports.DeviceRegistry {
	return &deviceRegistry{tokens: tokens, log: log}
}

// Register stores or re-activates a token for the recipient. A token moves to
// the latest recipient that registers it.
func (r *deviceRegistry) Register(ctx context.Context, recipient domain.Recipient, token, platform string) (*domain.DeviceToken, error) {
	token = strings.TrimSpace(token)
	platform = strings.ToLower(strings.TrimSpace(platform))
	if token == "" {
		return nil, apperror.Validation("token is required")
	}
	if platform == "" {
		platform = "unknown"
	} else if !devicePlatforms[platform] {
		return nil, apperror.Validation("platform must be one of ios, android, web")
	}

	now := time.Now().UTC()
	dt := &domain.DeviceToken{
		ID:             uuid.New(),
		RecipientEmail: normalizeEmail(recipient.Email),
		Token:          token,
		Platform:       platform,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if recipient.ID != "" {
		id := recipient.ID
		dt.RecipientID = &id
	}

	if err := r.tokens.Register(ctx, dt); err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	r.log.Info().Str("platform", platform).Str("recipient_email", dt.RecipientEmail).Msg("device token registered")
	return dt, nil
}

func (r *deviceRegistry) Unregister(ctx context.Context, recipientEmail, token string) error {
	if strings.TrimSpace(token) == "" {
		return apperror.Validation("token is required")
	}
	if err := r.tokens.Unregister(ctx, normalizeEmail(recipientEmail), strings.TrimSpace(token)); err != nil {
		return apperror.ErrDatabaseError(err)
	}
	return nil
}
