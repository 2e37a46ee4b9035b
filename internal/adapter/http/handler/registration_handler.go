package handler

import (
	"notification-engine/internal/adapter/http/dto"
	"notification-engine/internal/core/domain"
	"notification-engine/internal/core/ports"
	"notification-engine/pkg/apperror"
	"notification-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RegistrationHandler serves the internal registration lifecycle API.
type RegistrationHandler struct {
	registrations ports.RegistrationService
}

// NewRegistrationHandler creates a new RegistrationHandler.
func NewRegistrationHandler(registrations ports.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registrations: registrations}
}

// Create handles POST /internal/registrations.
func (h *RegistrationHandler) Create(c *gin.Context) {
	var req dto.CreateRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	reg, items, err := h.registrations.Create(c.Request.Context(), req.ToPorts())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.ToRegistrationResponse(reg, items))
}

// Cancel handles POST /internal/registrations/:id/cancel. The body is optional.
func (h *RegistrationHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrRegistrationNotFound())
		return
	}

	var req dto.CancelRegistrationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, apperror.Validation(err.Error()))
			return
		}
		dto.SanitizeStruct(&req)
	}

	reg, err := h.registrations.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToRegistrationResponse(reg, nil))
}

// OverrideInstallment handles PUT /internal/installments/:id/status.
func (h *RegistrationHandler) OverrideInstallment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrInstallmentNotFound())
		return
	}

	var req dto.InstallmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	inst, err := h.registrations.OverrideInstallment(c.Request.Context(), id, domain.InstallmentStatus(req.Status))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToInstallmentResponse(inst))
}
