package ports

import (
	"context"
	"time"

	"notification-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DeliveryLedger is the durable record of notification attempts and read state.
// Record upserts on the event id so retries update instead of duplicating rows;
// a record from an older attempt never replaces a newer one.
type DeliveryLedger interface {
	Record(ctx context.Context, rec *domain.DeliveryRecord) error
	GetByEventID(ctx context.Context, eventID uuid.UUID) (*domain.DeliveryRecord, error)
	List(ctx context.Context, recipientEmail string, limit, offset int) ([]domain.DeliveryRecord, int64, error)
	CountUnread(ctx context.Context, recipientEmail string) (int64, error)
	MarkRead(ctx context.Context, recipientEmail string, id int64) (bool, error)
	MarkAllRead(ctx context.Context, recipientEmail string) (int64, error)
}

// RegistrationRepository defines persistence operations for registrations.
type RegistrationRepository interface {
	Create(ctx context.Context, tx pgx.Tx, reg *domain.Registration) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Registration, error)
	// UpdateStatusIf sets status to `to` only while it still equals `from`.
	UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to domain.RegistrationStatus) (bool, error)
	UpdateStatusIfTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to domain.RegistrationStatus) (bool, error)
}

// InstallmentRepository is the InstallmentLedger.
type InstallmentRepository interface {
	CreateBatch(ctx context.Context, tx pgx.Tx, items []*domain.Installment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Installment, error)
	ListByRegistration(ctx context.Context, registrationID uuid.UUID) ([]domain.Installment, error)
	CountCompleted(ctx context.Context, registrationID uuid.UUID) (int, error)
	// UpdateStatusIf applies the change only while the current status equals change.From.
	UpdateStatusIf(ctx context.Context, change domain.InstallmentStatusChange) (bool, error)
	CancelPending(ctx context.Context, tx pgx.Tx, registrationID uuid.UUID) (int64, error)
	ListDueForReminder(ctx context.Context, dueBefore time.Time, limit int) ([]InstallmentReminder, error)
}

// InstallmentReminder joins a pending installment with its registration's addressing data.
type InstallmentReminder struct {
	Installment      domain.Installment
	RecipientEmail   string
	RecipientID      *string
	EventName        string
	InstallmentCount int
}

// DeviceTokenRepository stores push tokens per recipient.
type DeviceTokenRepository interface {
	Register(ctx context.Context, token *domain.DeviceToken) error
	ListActive(ctx context.Context, recipient domain.Recipient) ([]domain.DeviceToken, error)
	Deactivate(ctx context.Context, token string) error
	Unregister(ctx context.Context, recipientEmail, token string) error
}

// AuditRepository persists reconciliation decisions.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.ReconciliationAudit) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
