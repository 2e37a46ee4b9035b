package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditSource identifies what triggered an installment status decision.
type AuditSource string

const (
	AuditSourceWebhook  AuditSource = "WEBHOOK"
	AuditSourceOverride AuditSource = "OVERRIDE"
)

// ReconciliationAudit records one reconcile decision for operational triage.
type ReconciliationAudit struct {
	ID                uuid.UUID         `json:"id"`
	Source            AuditSource       `json:"source"`
	InstallmentID     *uuid.UUID        `json:"installment_id,omitempty"`
	ExternalPaymentID string            `json:"external_payment_id,omitempty"`
	ExternalStatus    string            `json:"external_status,omitempty"`
	FromStatus        InstallmentStatus `json:"from_status,omitempty"`
	ToStatus          InstallmentStatus `json:"to_status,omitempty"`
	Result            ReconcileResult   `json:"result"`
	Detail            string            `json:"detail,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}
