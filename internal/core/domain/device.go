package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeviceToken is a push-gateway token registered by one of a recipient's devices.
type DeviceToken struct {
	ID             uuid.UUID `json:"id"`
	RecipientEmail string    `json:"recipient_email"`
	RecipientID    *string   `json:"recipient_id,omitempty"`
	Token          string    `json:"token"`
	Platform       string    `json:"platform"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
