package domain

// BuildWebhookDedupeKey constructs the key used to short-circuit redelivered
// gateway notices. Notices without an id fall back to payment id and status.
func BuildWebhookDedupeKey(n GatewayNotice) string {
	if n.ID != "" {
		return "notice:" + string(n.ID)
	}
	return "payment:" + n.PaymentID() + ":" + n.Action
}
