package domain

import (
	"time"

	"github.com/google/uuid"
)

// RegistrationStatus is derived from installment state except for explicit cancellation.
type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "PENDING"
	RegistrationConfirmed RegistrationStatus = "CONFIRMED"
	RegistrationCancelled RegistrationStatus = "CANCELLED"
)

// Registration is a participant's enrollment, confirmed once every installment is paid.
type Registration struct {
	ID               uuid.UUID          `json:"id"`
	RecipientEmail   string             `json:"recipient_email"`
	RecipientID      *string            `json:"recipient_id,omitempty"`
	EventName        string             `json:"event_name"`
	Status           RegistrationStatus `json:"status"`
	InstallmentCount int                `json:"installment_count"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// DeriveStatus computes the status implied by the number of completed installments.
// A cancelled registration never leaves the cancelled state through derivation.
func (r *Registration) DeriveStatus(completed int) RegistrationStatus {
	if r.Status == RegistrationCancelled {
		return RegistrationCancelled
	}
	if completed >= r.InstallmentCount {
		return RegistrationConfirmed
	}
	return RegistrationPending
}

// InstallmentStatus is the payment state of one installment.
type InstallmentStatus string

const (
	InstallmentPending   InstallmentStatus = "PENDING"
	InstallmentCompleted InstallmentStatus = "COMPLETED"
	InstallmentCancelled InstallmentStatus = "CANCELLED"
	InstallmentRefunded  InstallmentStatus = "REFUNDED"
)

// Valid reports whether s is a known installment status.
func (s InstallmentStatus) Valid() bool {
	switch s {
	case InstallmentPending, InstallmentCompleted, InstallmentCancelled, InstallmentRefunded:
		return true
	}
	return false
}

// Installment is one scheduled partial payment belonging to a Registration.
type Installment struct {
	ID                uuid.UUID         `json:"id"`
	RegistrationID    uuid.UUID         `json:"registration_id"`
	SequenceNumber    int               `json:"sequence_number"`
	Amount            int64             `json:"amount"`
	Status            InstallmentStatus `json:"status"`
	ExternalReference *string           `json:"external_reference,omitempty"`
	DueDate           *time.Time        `json:"due_date,omitempty"`
	PaidAt            *time.Time        `json:"paid_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// NewInstallments builds the batch of N pending installments for a registration.
// Due dates, when firstDue is set, are spaced one month apart.
func NewInstallments(registrationID uuid.UUID, count int, amount int64, firstDue *time.Time) []*Installment {
	now := time.Now().UTC()
	out := make([]*Installment, 0, count)
	for i := 1; i <= count; i++ {
		inst := &Installment{
			ID:             uuid.New(),
			RegistrationID: registrationID,
			SequenceNumber: i,
			Amount:         amount,
			Status:         InstallmentPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if firstDue != nil {
			due := firstDue.AddDate(0, i-1, 0)
			inst.DueDate = &due
		}
		out = append(out, inst)
	}
	return out
}

// InstallmentStatusChange is the conditional update applied to an installment.
type InstallmentStatusChange struct {
	InstallmentID     uuid.UUID
	From              InstallmentStatus
	To                InstallmentStatus
	ExternalReference *string
	PaidAt            *time.Time
}
