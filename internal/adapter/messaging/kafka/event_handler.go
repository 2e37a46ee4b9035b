package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"notification-engine/internal/adapter/http/dto"
	"notification-engine/internal/core/ports"
	"notification-engine/pkg/apperror"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventHandler decodes an event message and dispatches it. The message value
// uses the same JSON contract as POST /internal/events.
type EventHandler struct {
	dispatcher ports.EventDispatcher
	validate   *validator.Validate
	log        zerolog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(dispatcher ports.EventDispatcher, log zerolog.Logger) *EventHandler {
	v := validator.New()
	v.SetTagName("binding")
	dto.RegisterValidations(v)
	return &EventHandler{dispatcher: dispatcher, validate: v, log: log}
}

// Handle dispatches one event. Malformed or rejected events are logged and
// committed; only failures that may succeed on retry are returned.
func (h *EventHandler) Handle(ctx context.Context, msg *Message) error {
	var req dto.EventRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		h.log.Warn().Err(err).Int64("offset", msg.Offset).Msg("undecodable event payload, skipping")
		return nil
	}
	if err := h.validate.Struct(req); err != nil {
		h.log.Warn().Err(err).Int64("offset", msg.Offset).Msg("invalid event, skipping")
		return nil
	}

	event := req.ToDomain()
	if event.ID == uuid.Nil {
		// The record key is the producer's event id when the body omits it.
		if id, err := uuid.ParseBytes(msg.Key); err == nil {
			event.ID = id
		} else {
			event.ID = uuid.New()
		}
	}

	outcome, err := h.dispatcher.Dispatch(ctx, event)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.HTTPStatus < http.StatusInternalServerError {
			h.log.Warn().Err(err).Str("event_id", event.ID.String()).Msg("event rejected, skipping")
			return nil
		}
		return err
	}

	h.log.Debug().
		Str("event_id", event.ID.String()).
		Str("event_type", string(event.Type)).
		Str("outcome", string(outcome)).
		Msg("event consumed")
	return nil
}
