package handler

import (
	"notification-engine/internal/core/domain"
	"notification-engine/internal/core/ports"
	"notification-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// WebhookHandler receives payment gateway notifications.
type WebhookHandler struct {
	reconciler ports.PaymentReconciler
	log        zerolog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(reconciler ports.PaymentReconciler, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, log: log}
}

// Receive handles POST /api/v1/webhooks/gateway. Notices the engine cannot
// act on, unparsable bodies included, are logged and acknowledged with 200 so
// the gateway stops redelivering them. Transient failures return 5xx.
func (h *WebhookHandler) Receive(c *gin.Context) {
	var notice domain.GatewayNotice
	if err := c.ShouldBindJSON(&notice); err != nil {
		// Query-only variants may post an empty or non-JSON body.
		if c.Query("data.id") == "" || c.Query("type") == "" {
			h.log.Warn().Err(err).
				Str("request_id", c.GetString("request_id")).
				Str("content_type", c.ContentType()).
				Msg("webhook: unparsable notification body, acknowledged without action")
			response.OK(c, gin.H{"received": true})
			return
		}
		notice = domain.GatewayNotice{}
	}
	// Some notification variants only carry these as query parameters.
	if notice.Data.ID == "" {
		notice.Data.ID = domain.NoticeID(c.Query("data.id"))
	}
	if notice.Type == "" {
		notice.Type = c.Query("type")
	}

	if err := h.reconciler.HandleNotice(c.Request.Context(), notice); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"received": true})
}
