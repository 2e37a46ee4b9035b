package domain

import (
	"time"

	"github.com/google/uuid"
)

// SentVia summarises which guaranteed channels delivered a notification.
type SentVia string

const (
	SentViaNone  SentVia = "none"
	SentViaPush  SentVia = "push"
	SentViaEmail SentVia = "email"
	SentViaBoth  SentVia = "both"
)

// SentViaFrom derives the summary from per-channel outcomes.
func SentViaFrom(pushOK, emailOK bool) SentVia {
	switch {
	case pushOK && emailOK:
		return SentViaBoth
	case pushOK:
		return SentViaPush
	case emailOK:
		return SentViaEmail
	default:
		return SentViaNone
	}
}

// DeliveryRecord is the ledger row for one (recipient, event) pair.
// Retries update the channel outcome fields in place; only read/read_at are
// mutated afterwards.
type DeliveryRecord struct {
	ID              int64          `json:"id"`
	EventID         uuid.UUID      `json:"event_id"`
	RecipientEmail  string         `json:"recipient_email"`
	RecipientID     *string        `json:"recipient_id,omitempty"`
	Type            EventType      `json:"type"`
	Title           string         `json:"title"`
	Body            string         `json:"body"`
	Data            map[string]any `json:"data,omitempty"`
	SentVia         SentVia        `json:"sent_via"`
	PushSuccess     bool           `json:"push_success"`
	EmailSuccess    bool           `json:"email_success"`
	RealtimeSuccess bool           `json:"realtime_success"`
	Attempt         int            `json:"attempt"`
	Read            bool           `json:"read"`
	ReadAt          *time.Time     `json:"read_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// ChannelOutcome is the result of running the channel set once.
type ChannelOutcome struct {
	PushAttempted     bool
	PushSuccess       bool
	EmailAttempted    bool
	EmailSuccess      bool
	RealtimeAttempted bool
	RealtimeSuccess   bool
}

// SentVia summarises the outcome for the ledger.
func (o ChannelOutcome) SentVia() SentVia {
	return SentViaFrom(o.PushSuccess, o.EmailSuccess)
}

// Succeeded reports whether the attempt counts as a successful delivery.
// Realtime is best-effort and only counts when it was the sole channel tried.
func (o ChannelOutcome) Succeeded() bool {
	if o.PushSuccess || o.EmailSuccess {
		return true
	}
	return o.RealtimeSuccess && !o.PushAttempted && !o.EmailAttempted
}

// RenderedMessage is the channel-independent output of the template renderer.
type RenderedMessage struct {
	Title string
	Body  string
	HTML  string
}
