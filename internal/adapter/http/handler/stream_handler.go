package handler

import (
	"context"
	"io"
	"time"

	redisStore "notification-engine/internal/adapter/storage/redis"
	"notification-engine/pkg/apperror"
	"notification-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StreamHandler relays live notifications to a connected client over SSE.
type StreamHandler struct {
	hub *redisStore.PresenceHub
	log zerolog.Logger
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(hub *redisStore.PresenceHub, log zerolog.Logger) *StreamHandler {
	return &StreamHandler{hub: hub, log: log}
}

// Stream handles GET /api/v1/notifications/stream. The session stays present
// while the heartbeat keeps refreshing it.
func (h *StreamHandler) Stream(c *gin.Context) {
	recipient, ok := recipientFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	ctx := c.Request.Context()
	sessionID := uuid.New().String()
	log := h.log.With().Str("recipient_email", recipient.Email).Str("session_id", sessionID).Logger()

	// Subscribe before announcing presence so no message published in between is lost.
	sub, err := h.hub.Subscribe(ctx, recipient.Email)
	if err != nil {
		log.Error().Err(err).Msg("stream: subscribe failed")
		response.Error(c, apperror.ErrUpstreamUnavailable(err))
		return
	}
	defer sub.Close()

	if err := h.hub.Join(ctx, recipient.Email, sessionID); err != nil {
		log.Error().Err(err).Msg("stream: presence join failed")
		response.Error(c, apperror.ErrUpstreamUnavailable(err))
		return
	}
	defer func() {
		leaveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := h.hub.Leave(leaveCtx, recipient.Email, sessionID); err != nil {
			log.Warn().Err(err).Msg("stream: presence leave failed")
		}
	}()

	heartbeat := time.NewTicker(h.hub.PresenceTTL() / 3)
	defer heartbeat.Stop()
	messages := sub.Channel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"session_id": sessionID})
	c.Writer.Flush()
	log.Debug().Msg("stream: opened")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-messages:
			if !ok {
				return false
			}
			c.SSEvent("notification", msg.Payload)
			return true
		case <-heartbeat.C:
			if err := h.hub.Join(ctx, recipient.Email, sessionID); err != nil {
				log.Warn().Err(err).Msg("stream: heartbeat failed")
			}
			c.SSEvent("ping", time.Now().Unix())
			return true
		}
	})
	log.Debug().Msg("stream: closed")
}
