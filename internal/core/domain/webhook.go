package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// GatewayNoticeTypePayment is the only gateway notice type the engine processes.
const GatewayNoticeTypePayment = "payment"

// NoticeID is an identifier the gateway sends either as a JSON string or a number.
type NoticeID string

// UnmarshalJSON accepts "123", 123 and null.
func (id *NoticeID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = NoticeID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = NoticeID(n.String())
	return nil
}

// GatewayNotice is the raw webhook body sent by the payment gateway:
// {id, type: "payment", data: {id: externalPaymentId}}.
type GatewayNotice struct {
	ID     NoticeID `json:"id"`
	Type   string   `json:"type"`
	Action string   `json:"action,omitempty"`
	Data   struct {
		ID NoticeID `json:"id"`
	} `json:"data"`
}

// PaymentID returns the external payment id carried by the notice.
func (n GatewayNotice) PaymentID() string {
	return string(n.Data.ID)
}

// WebhookNotification is the gateway payment state fetched after a notice.
// It is never persisted; it only drives idempotent installment updates.
type WebhookNotification struct {
	ExternalPaymentID string     `json:"id"`
	ExternalStatus    string     `json:"status"`
	StatusDetail      string     `json:"status_detail"`
	ExternalReference string     `json:"external_reference"`
	DateApproved      *time.Time `json:"date_approved,omitempty"`
}
