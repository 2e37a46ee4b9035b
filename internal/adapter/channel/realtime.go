package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"notification-engine/internal/core/domain"

	"github.com/rs/zerolog"
)

// LiveHub is the presence and fan-out backend for connected clients.
type LiveHub interface {
	Online(ctx context.Context, email string) (bool, error)
	Publish(ctx context.Context, email string, payload []byte) (int64, error)
}

// LiveMessage is the payload relayed to a recipient's open streams.
type LiveMessage struct {
	EventID   string         `json:"event_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// RealtimeSender relays to live sessions. With no live session the send is a
// successful no-op.
type RealtimeSender struct {
	hub LiveHub
	log zerolog.Logger
}

// NewRealtimeSender creates a realtime ChannelSender.
func NewRealtimeSender(hub LiveHub, log zerolog.Logger) *RealtimeSender {
	return &RealtimeSender{hub: hub, log: log}
}

// Channel implements ports.ChannelSender.
func (s *RealtimeSender) Channel() domain.Channel { return domain.ChannelRealtime }

// Send implements ports.ChannelSender.
func (s *RealtimeSender) Send(ctx context.Context, recipient domain.Recipient, msg domain.RenderedMessage, event domain.DomainEvent) error {
	online, err := s.hub.Online(ctx, recipient.Email)
	if err != nil {
		return fmt.Errorf("realtime presence: %w", err)
	}
	if !online {
		s.log.Debug().Str("event_id", event.ID.String()).Msg("realtime: no live session")
		return nil
	}

	payload, err := json.Marshal(LiveMessage{
		EventID:   event.ID.String(),
		Type:      string(event.Type),
		Title:     msg.Title,
		Body:      msg.Body,
		Data:      event.Payload,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode live message: %w", err)
	}

	n, err := s.hub.Publish(ctx, recipient.Email, payload)
	if err != nil {
		return err
	}
	s.log.Debug().Str("event_id", event.ID.String()).Int64("sessions", n).Msg("realtime: relayed")
	return nil
}
