package dto

import (
	"time"

	"notification-engine/internal/core/domain"
	"notification-engine/internal/core/ports"

	"github.com/google/uuid"
)

// EventRequest is the inbound domain event contract, shared by the internal
// HTTP endpoint and the Kafka consumer.
type EventRequest struct {
	ID                string         `json:"id,omitempty" binding:"omitempty,uuid"`
	Type              string         `json:"type" binding:"required,event_type"`
	RecipientEmail    string         `json:"recipientEmail" binding:"required,email"`
	RecipientID       *string        `json:"recipientId,omitempty"`
	Payload           map[string]any `json:"payload,omitempty"`
	Priority          string         `json:"priority,omitempty" binding:"omitempty,oneof=low normal high"`
	RequestedChannels []string       `json:"requestedChannels,omitempty" binding:"omitempty,dive,notify_channel"`
	OccurredAt        *time.Time     `json:"occurredAt,omitempty"`
}

// ToDomain converts the request into a DomainEvent. Zero values are left for
// the dispatcher to default.
func (r EventRequest) ToDomain() domain.DomainEvent {
	e := domain.DomainEvent{
		Type:           domain.EventType(r.Type),
		RecipientEmail: r.RecipientEmail,
		RecipientID:    r.RecipientID,
		Payload:        r.Payload,
		Priority:       domain.Priority(r.Priority),
	}
	if id, err := uuid.Parse(r.ID); err == nil {
		e.ID = id
	}
	if r.OccurredAt != nil {
		e.OccurredAt = *r.OccurredAt
	}
	for _, ch := range r.RequestedChannels {
		e.RequestedChannels = append(e.RequestedChannels, domain.Channel(ch))
	}
	return e
}

// DispatchResponse reports how an accepted event will be delivered.
type DispatchResponse struct {
	EventID string `json:"event_id,omitempty"`
	Outcome string `json:"outcome"`
}

// NotificationResponse is one entry of a recipient's history.
type NotificationResponse struct {
	ID        int64          `json:"id"`
	EventID   string         `json:"event_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
	SentVia   string         `json:"sent_via"`
	Read      bool           `json:"read"`
	ReadAt    *string        `json:"read_at,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// NotificationListResponse wraps a page of history.
type NotificationListResponse struct {
	Items  []NotificationResponse `json:"items"`
	Total  int64                  `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

// ToNotificationResponse converts a ledger row to its API form.
func ToNotificationResponse(r domain.DeliveryRecord) NotificationResponse {
	resp := NotificationResponse{
		ID:        r.ID,
		EventID:   r.EventID.String(),
		Type:      string(r.Type),
		Title:     r.Title,
		Body:      r.Body,
		Data:      r.Data,
		SentVia:   string(r.SentVia),
		Read:      r.Read,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if r.ReadAt != nil {
		s := r.ReadAt.UTC().Format(time.RFC3339)
		resp.ReadAt = &s
	}
	return resp
}

// DeviceTokenRequest registers or removes a push token.
type DeviceTokenRequest struct {
	Token    string `json:"token" binding:"required,max=512"`
	Platform string `json:"platform,omitempty" binding:"omitempty,oneof=ios android web"`
}

// DeviceTokenResponse echoes a registered token.
type DeviceTokenResponse struct {
	ID       string `json:"id"`
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// CreateRegistrationRequest is the body for POST /internal/registrations.
type CreateRegistrationRequest struct {
	RecipientEmail   string     `json:"recipient_email" binding:"required,email"`
	RecipientID      *string    `json:"recipient_id,omitempty"`
	EventName        string     `json:"event_name" binding:"required,max=200"`
	InstallmentCount int        `json:"installment_count" binding:"required,min=1,max=24"`
	Amount           int64      `json:"amount" binding:"required,gt=0"`
	FirstDueDate     *time.Time `json:"first_due_date,omitempty"`
}

// ToPorts converts the request into service input.
func (r CreateRegistrationRequest) ToPorts() ports.CreateRegistrationRequest {
	return ports.CreateRegistrationRequest{
		RecipientEmail:   r.RecipientEmail,
		RecipientID:      r.RecipientID,
		EventName:        r.EventName,
		InstallmentCount: r.InstallmentCount,
		Amount:           r.Amount,
		FirstDueDate:     r.FirstDueDate,
	}
}

// CancelRegistrationRequest carries an optional cancellation reason.
type CancelRegistrationRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// InstallmentStatusRequest is the body of an administrative override.
type InstallmentStatusRequest struct {
	Status string `json:"status" binding:"required,installment_status"`
}

// RegistrationResponse describes a registration and, when known, its installments.
type RegistrationResponse struct {
	ID               string                `json:"id"`
	RecipientEmail   string                `json:"recipient_email"`
	EventName        string                `json:"event_name"`
	Status           string                `json:"status"`
	InstallmentCount int                   `json:"installment_count"`
	Installments     []InstallmentResponse `json:"installments,omitempty"`
}

// InstallmentResponse describes one installment.
type InstallmentResponse struct {
	ID                string  `json:"id"`
	RegistrationID    string  `json:"registration_id"`
	SequenceNumber    int     `json:"sequence_number"`
	Amount            int64   `json:"amount"`
	Status            string  `json:"status"`
	ExternalReference *string `json:"external_reference,omitempty"`
	DueDate           *string `json:"due_date,omitempty"`
	PaidAt            *string `json:"paid_at,omitempty"`
}

// ToRegistrationResponse converts a registration and its installments.
func ToRegistrationResponse(reg *domain.Registration, items []*domain.Installment) RegistrationResponse {
	resp := RegistrationResponse{
		ID:               reg.ID.String(),
		RecipientEmail:   reg.RecipientEmail,
		EventName:        reg.EventName,
		Status:           string(reg.Status),
		InstallmentCount: reg.InstallmentCount,
	}
	for _, it := range items {
		resp.Installments = append(resp.Installments, ToInstallmentResponse(it))
	}
	return resp
}

// ToInstallmentResponse converts one installment.
func ToInstallmentResponse(inst *domain.Installment) InstallmentResponse {
	resp := InstallmentResponse{
		ID:                inst.ID.String(),
		RegistrationID:    inst.RegistrationID.String(),
		SequenceNumber:    inst.SequenceNumber,
		Amount:            inst.Amount,
		Status:            string(inst.Status),
		ExternalReference: inst.ExternalReference,
	}
	if inst.DueDate != nil {
		s := inst.DueDate.UTC().Format(time.RFC3339)
		resp.DueDate = &s
	}
	if inst.PaidAt != nil {
		s := inst.PaidAt.UTC().Format(time.RFC3339)
		resp.PaidAt = &s
	}
	return resp
}

// CredentialExpiryRequest lists credentials about to expire.
type CredentialExpiryRequest struct {
	Notices []CredentialNotice `json:"notices" binding:"required,min=1,max=1000,dive"`
}

// CredentialNotice is one expiring credential.
type CredentialNotice struct {
	RecipientEmail string    `json:"recipient_email" binding:"required,email"`
	RecipientID    *string   `json:"recipient_id,omitempty"`
	CredentialName string    `json:"credential_name" binding:"required,max=200"`
	ExpiresAt      time.Time `json:"expires_at" binding:"required"`
}

// ToPorts converts the request into service input.
func (r CredentialExpiryRequest) ToPorts() []ports.CredentialNotice {
	out := make([]ports.CredentialNotice, 0, len(r.Notices))
	for _, n := range r.Notices {
		out = append(out, ports.CredentialNotice{
			RecipientEmail: n.RecipientEmail,
			RecipientID:    n.RecipientID,
			CredentialName: n.CredentialName,
			ExpiresAt:      n.ExpiresAt,
		})
	}
	return out
}

// ReminderRunResponse reports how many reminder events were dispatched.
type ReminderRunResponse struct {
	Dispatched int `json:"dispatched"`
}

// TokenRequest asks for a recipient access token.
type TokenRequest struct {
	RecipientEmail string `json:"recipient_email" binding:"required,email"`
	RecipientID    string `json:"recipient_id,omitempty" binding:"max=100"`
}

// TokenResponse carries an issued recipient token.
type TokenResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}
