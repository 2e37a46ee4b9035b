package handler

import (
	"notification-engine/internal/adapter/http/dto"
	"notification-engine/internal/core/ports"
	"notification-engine/pkg/apperror"
	"notification-engine/pkg/response"

	"github.com/gin-gonic/gin"
)

// ReminderHandler lets the external scheduler trigger reminder runs.
type ReminderHandler struct {
	reminders ports.ReminderService
}

// NewReminderHandler creates a new ReminderHandler.
func NewReminderHandler(reminders ports.ReminderService) *ReminderHandler {
	return &ReminderHandler{reminders: reminders}
}

// PaymentReminders handles POST /internal/reminders/payments.
func (h *ReminderHandler) PaymentReminders(c *gin.Context) {
	n, err := h.reminders.EmitPaymentReminders(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ReminderRunResponse{Dispatched: n})
}

// CredentialExpiry handles POST /internal/reminders/credentials.
func (h *ReminderHandler) CredentialExpiry(c *gin.Context) {
	var req dto.CredentialExpiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	n, err := h.reminders.EmitCredentialExpiry(c.Request.Context(), req.ToPorts())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ReminderRunResponse{Dispatched: n})
}
