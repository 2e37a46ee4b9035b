package handler

import (
	"strconv"

	"notification-engine/internal/adapter/http/dto"
	"notification-engine/internal/adapter/http/middleware"
	"notification-engine/internal/core/domain"
	"notification-engine/internal/core/ports"
	"notification-engine/pkg/apperror"
	"notification-engine/pkg/response"

	"github.com/gin-gonic/gin"
)

// NotificationHandler exposes a recipient's notification history and read state.
type NotificationHandler struct {
	readState ports.ReadStateService
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(readState ports.ReadStateService) *NotificationHandler {
	return &NotificationHandler{readState: readState}
}

// recipientFromContext returns the identity set by JWTAuth.
func recipientFromContext(c *gin.Context) (domain.Recipient, bool) {
	email := c.GetString(middleware.CtxRecipientEmail)
	if email == "" {
		return domain.Recipient{}, false
	}
	return domain.Recipient{ID: c.GetString(middleware.CtxRecipientID), Email: email}, true
}

// History handles GET /api/v1/notifications.
func (h *NotificationHandler) History(c *gin.Context) {
	recipient, ok := recipientFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	records, total, err := h.readState.History(c.Request.Context(), recipient.Email, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.NotificationResponse, 0, len(records))
	for _, r := range records {
		items = append(items, dto.ToNotificationResponse(r))
	}

	response.OK(c, dto.NotificationListResponse{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// UnreadCount handles GET /api/v1/notifications/unread-count.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	recipient, ok := recipientFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	n, err := h.readState.UnreadCount(c.Request.Context(), recipient.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"unread": n})
}

// MarkRead handles PATCH /api/v1/notifications/:id/read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	recipient, ok := recipientFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, apperror.Validation("invalid notification id"))
		return
	}

	if err := h.readState.MarkRead(c.Request.Context(), recipient.Email, id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"id": id, "read": true})
}

// MarkAllRead handles POST /api/v1/notifications/read-all.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	recipient, ok := recipientFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	n, err := h.readState.MarkAllRead(c.Request.Context(), recipient.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"updated": n})
}
