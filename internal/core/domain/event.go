package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a domain event that may require notifying someone.
type EventType string

const (
	EventPaymentValidated       EventType = "payment_validated"
	EventPaymentRejected        EventType = "payment_rejected"
	EventPaymentReinstated      EventType = "payment_reinstated"
	EventPaymentReminder        EventType = "payment_reminder"
	EventRegistrationCreated    EventType = "registration_created"
	EventRegistrationConfirmed  EventType = "registration_confirmed"
	EventRegistrationCancelled  EventType = "registration_cancelled"
	EventRegistrationUpdated    EventType = "registration_updated"
	EventCredentialExpiringSoon EventType = "credential_expiring_soon"
)

// Priority orders jobs inside the retry queue.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Weight maps a priority to its numeric queue weight (high=10, normal=5, low=1).
// Unknown values are treated as normal.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 10
	case PriorityLow:
		return 1
	default:
		return 5
	}
}

// Channel is one transport for delivering a notification.
type Channel string

const (
	ChannelPush     Channel = "push"
	ChannelEmail    Channel = "email"
	ChannelRealtime Channel = "realtime"
)

// AllChannels is the channel set used when an event does not request one.
var AllChannels = []Channel{ChannelPush, ChannelEmail, ChannelRealtime}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelPush || c == ChannelEmail || c == ChannelRealtime
}

// DomainEvent is an immutable fact produced by business logic.
type DomainEvent struct {
	ID                uuid.UUID      `json:"id"`
	Type              EventType      `json:"type"`
	RecipientEmail    string         `json:"recipient_email"`
	RecipientID       *string        `json:"recipient_id,omitempty"`
	Payload           map[string]any `json:"payload,omitempty"`
	Priority          Priority       `json:"priority"`
	RequestedChannels []Channel      `json:"requested_channels,omitempty"`
	OccurredAt        time.Time      `json:"occurred_at"`
}

// Recipient returns the addressing information carried by the event.
func (e DomainEvent) Recipient() Recipient {
	r := Recipient{Email: e.RecipientEmail}
	if e.RecipientID != nil {
		r.ID = *e.RecipientID
	}
	return r
}

// Recipient is the person a notification is addressed to.
type Recipient struct {
	ID    string
	Email string
}

// DispatchOutcome reports which execution path handled an event.
type DispatchOutcome string

const (
	OutcomeQueued          DispatchOutcome = "queued"
	OutcomeDeliveredDirect DispatchOutcome = "delivered_direct"
	OutcomeFailedDirect    DispatchOutcome = "failed_direct"
)

// HasChannel reports whether ch is in the set.
func HasChannel(set []Channel, ch Channel) bool {
	for _, c := range set {
		if c == ch {
			return true
		}
	}
	return false
}
