package handler

import (
	"notification-engine/internal/adapter/http/dto"
	"notification-engine/internal/core/domain"
	"notification-engine/internal/core/ports"
	"notification-engine/pkg/apperror"
	"notification-engine/pkg/response"

	"github.com/gin-gonic/gin"
)

// TokenHandler issues recipient tokens for the notification API. The calling
// application has already authenticated the user.
type TokenHandler struct {
	tokenSvc ports.TokenService
}

// NewTokenHandler creates a new TokenHandler.
func NewTokenHandler(tokenSvc ports.TokenService) *TokenHandler {
	return &TokenHandler{tokenSvc: tokenSvc}
}

// Issue handles POST /internal/tokens.
func (h *TokenHandler) Issue(c *gin.Context) {
	var req dto.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	token, expiry, err := h.tokenSvc.Generate(domain.Recipient{ID: req.RecipientID, Email: req.RecipientEmail})
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	response.OK(c, dto.TokenResponse{
		Token:  token,
		Expiry: expiry.Unix(),
	})
}
