package handler

import (
	"notification-engine/internal/adapter/http/dto"
	"notification-engine/internal/core/ports"
	"notification-engine/pkg/apperror"
	"notification-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventHandler accepts domain events from the rest of the application.
type EventHandler struct {
	dispatcher ports.EventDispatcher
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(dispatcher ports.EventDispatcher) *EventHandler {
	return &EventHandler{dispatcher: dispatcher}
}

// Dispatch handles POST /internal/events.
func (h *EventHandler) Dispatch(c *gin.Context) {
	var req dto.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.ErrInvalidEvent(err.Error()))
		return
	}

	event := req.ToDomain()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	outcome, err := h.dispatcher.Dispatch(c.Request.Context(), event)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Accepted(c, dto.DispatchResponse{
		EventID: event.ID.String(),
		Outcome: string(outcome),
	})
}
