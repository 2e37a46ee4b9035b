package ports

import (
	"context"
	"time"

	"notification-engine/internal/core/domain"

	"github.com/google/uuid"
)

// ChannelSender sends one rendered message through one external transport.
// It performs no retries; a nil error means the channel accepted the message.
type ChannelSender interface {
	Channel() domain.Channel
	Send(ctx context.Context, recipient domain.Recipient, msg domain.RenderedMessage, event domain.DomainEvent) error
}

// TemplateRenderer maps (event type, payload) to a rendered message.
type TemplateRenderer interface {
	Render(eventType domain.EventType, payload map[string]any) (domain.RenderedMessage, error)
	Supports(eventType domain.EventType) bool
	DefaultChannels(eventType domain.EventType) []domain.Channel
}

// JobQueue is the durable, priority-ordered retry queue.
type JobQueue interface {
	Enqueue(ctx context.Context, job *domain.NotificationJob) error
	// Claim returns the next ready job, or nil when none is ready. The returned
	// job's Attempt already counts this claim.
	Claim(ctx context.Context) (*domain.NotificationJob, error)
	Complete(ctx context.Context, job *domain.NotificationJob) error
	Retry(ctx context.Context, job *domain.NotificationJob, delay time.Duration) error
	Abandon(ctx context.Context, job *domain.NotificationJob) error
	RecordAttempt(ctx context.Context, jobID uuid.UUID, attempt domain.JobAttempt) error
	Attempts(ctx context.Context, jobID uuid.UUID) ([]domain.JobAttempt, error)
	// RequeueExpired returns in-flight jobs whose visibility timeout lapsed to the
	// ready set, abandoning those already at their max attempts.
	RequeueExpired(ctx context.Context) (int, error)
	// Purge drops finished jobs older than their retention window.
	Purge(ctx context.Context) (int, error)
}

// EventDispatcher accepts domain events for delivery.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event domain.DomainEvent) (domain.DispatchOutcome, error)
}

// PaymentGateway fetches authoritative payment state from the external processor.
type PaymentGateway interface {
	GetPayment(ctx context.Context, paymentID string) (*domain.WebhookNotification, error)
}

// PaymentReconciler applies gateway callbacks to installment state.
type PaymentReconciler interface {
	HandleNotice(ctx context.Context, notice domain.GatewayNotice) error
	Reconcile(ctx context.Context, n domain.WebhookNotification) error
}

// RegistrationStateMachine derives registration status from installment state.
type RegistrationStateMachine interface {
	Recompute(ctx context.Context, registrationID uuid.UUID) error
}

// ReadStateService exposes the notification history to clients.
type ReadStateService interface {
	History(ctx context.Context, recipientEmail string, limit, offset int) ([]domain.DeliveryRecord, int64, error)
	UnreadCount(ctx context.Context, recipientEmail string) (int64, error)
	MarkRead(ctx context.Context, recipientEmail string, id int64) error
	MarkAllRead(ctx context.Context, recipientEmail string) (int64, error)
}

// RegistrationService covers the registration lifecycle operations the engine owns.
type RegistrationService interface {
	Create(ctx context.Context, req CreateRegistrationRequest) (*domain.Registration, []*domain.Installment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*domain.Registration, error)
	OverrideInstallment(ctx context.Context, installmentID uuid.UUID, status domain.InstallmentStatus) (*domain.Installment, error)
}

// CreateRegistrationRequest holds validated input for registration creation.
type CreateRegistrationRequest struct {
	RecipientEmail   string
	RecipientID      *string
	EventName        string
	InstallmentCount int
	Amount           int64
	FirstDueDate     *time.Time
}

// InstallmentLocker serialises work per installment.
type InstallmentLocker interface {
	// Acquire blocks until the lock is held or ctx is done. The returned
	// release func must be called exactly once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// WebhookDedupe is the fast-path cache of already-processed gateway notices.
type WebhookDedupe interface {
	Seen(ctx context.Context, key string) (bool, error)
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) error
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	BuildManifest(dataID, requestID, timestamp string) string
}

// TokenService handles JWT token operations for recipients.
type TokenService interface {
	Generate(recipient domain.Recipient) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	RecipientID    string
	RecipientEmail string
}

// AuditService records reconciliation decisions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.ReconciliationAudit)
}

// DeviceRegistry manages the push tokens registered by a recipient's devices.
type DeviceRegistry interface {
	Register(ctx context.Context, recipient domain.Recipient, token, platform string) (*domain.DeviceToken, error)
	Unregister(ctx context.Context, recipientEmail, token string) error
}

// ReminderService emits scheduled reminder events when an external
// scheduler asks it to.
type ReminderService interface {
	EmitPaymentReminders(ctx context.Context) (int, error)
	EmitCredentialExpiry(ctx context.Context, notices []CredentialNotice) (int, error)
}

// CredentialNotice describes one credential close to expiring.
type CredentialNotice struct {
	RecipientEmail string
	RecipientID    *string
	CredentialName string
	ExpiresAt      time.Time
}
