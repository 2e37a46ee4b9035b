package handler

import (
	"notification-engine/internal/adapter/http/dto"
	"notification-engine/internal/core/ports"
	"notification-engine/pkg/apperror"
	"notification-engine/pkg/response"

	"github.com/gin-gonic/gin"
)

// DeviceHandler manages the push tokens of the authenticated recipient.
type DeviceHandler struct {
	devices ports.DeviceRegistry
}

// NewDeviceHandler creates a new DeviceHandler.
func NewDeviceHandler(devices ports.DeviceRegistry) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

// Register handles POST /api/v1/devices.
func (h *DeviceHandler) Register(c *gin.Context) {
	recipient, ok := recipientFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.DeviceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	dt, err := h.devices.Register(c.Request.Context(), recipient, req.Token, req.Platform)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.DeviceTokenResponse{
		ID:       dt.ID.String(),
		Token:    dt.Token,
		Platform: dt.Platform,
	})
}

// Unregister handles DELETE /api/v1/devices.
func (h *DeviceHandler) Unregister(c *gin.Context) {
	recipient, ok := recipientFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.DeviceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	if err := h.devices.Unregister(c.Request.Context(), recipient.Email, req.Token); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "device token removed"})
}
