package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"notification-engine/internal/core/domain"
	"notification-engine/internal/core/ports"

	"github.com/rs/zerolog"
)

// expoBatchLimit is the most messages the push gateway accepts per request.
const expoBatchLimit = 100

const errDeviceNotRegistered = "DeviceNotRegistered"

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// PushConfig configures the push gateway endpoint.
type PushConfig struct {
	Endpoint    string
	AccessToken string
}

type pushMessage struct {
	To       string         `json:"to"`
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Data     map[string]any `json:"data,omitempty"`
	Priority string         `json:"priority"`
	Sound    string         `json:"sound"`
}

type pushTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"`
	} `json:"details"`
}

type pushResponse struct {
	Data   []pushTicket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

// PushSender delivers to every active device token of the recipient.
// The send succeeds when at least one token is accepted.
type PushSender struct {
	cfg        PushConfig
	tokens     ports.DeviceTokenRepository
	httpClient HTTPClient
	log        zerolog.Logger
}

// NewPushSender creates a push ChannelSender.
func NewPushSender(cfg PushConfig, tokens ports.DeviceTokenRepository, httpClient HTTPClient, log zerolog.Logger) *PushSender {
	return &PushSender{cfg: cfg, tokens: tokens, httpClient: httpClient, log: log}
}

// Channel implements ports.ChannelSender.
func (s *PushSender) Channel() domain.Channel { return domain.ChannelPush }

// Send implements ports.ChannelSender.
func (s *PushSender) Send(ctx context.Context, recipient domain.Recipient, msg domain.RenderedMessage, event domain.DomainEvent) error {
	tokens, err := s.tokens.ListActive(ctx, recipient)
	if err != nil {
		return fmt.Errorf("list device tokens: %w", err)
	}
	if len(tokens) == 0 {
		return domain.ErrNoTargets
	}

	data := pushData(event)
	priority := "default"
	if event.Priority == domain.PriorityHigh {
		priority = "high"
	}

	messages := make([]pushMessage, 0, len(tokens))
	for _, t := range tokens {
		messages = append(messages, pushMessage{
			To:       t.Token,
			Title:    msg.Title,
			Body:     msg.Body,
			Data:     data,
			Priority: priority,
			Sound:    "default",
		})
	}

	accepted := 0
	var lastErr error
	for start := 0; start < len(messages); start += expoBatchLimit {
		end := start + expoBatchLimit
		if end > len(messages) {
			end = len(messages)
		}
		n, err := s.sendBatch(ctx, messages[start:end], event)
		accepted += n
		if err != nil {
			lastErr = err
		}
	}

	if accepted > 0 {
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("push: all %d tokens rejected", len(messages))
}

func (s *PushSender) sendBatch(ctx context.Context, batch []pushMessage, event domain.DomainEvent) (int, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return 0, fmt.Errorf("encode push batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.cfg.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.AccessToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("read push response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("push gateway returned status %d", resp.StatusCode)
	}

	tickets, err := decodeTickets(raw)
	if err != nil {
		return 0, err
	}

	accepted := 0
	for i, ticket := range tickets {
		if i >= len(batch) {
			break
		}
		if ticket.Status == "ok" {
			accepted++
			continue
		}

		token := batch[i].To
		s.log.Warn().
			Str("event_id", event.ID.String()).
			Str("token", maskToken(token)).
			Str("error", ticket.Details.Error).
			Str("message", ticket.Message).
			Msg("push: token rejected")

		if ticket.Details.Error == errDeviceNotRegistered {
			if err := s.tokens.Deactivate(ctx, token); err != nil {
				s.log.Error().Err(err).Str("token", maskToken(token)).Msg("push: failed to deactivate token")
			}
		}
	}
	return accepted, nil
}

// decodeTickets accepts both the {"data":[...]} envelope and a bare ticket array.
func decodeTickets(raw []byte) ([]pushTicket, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var tickets []pushTicket
		if err := json.Unmarshal(trimmed, &tickets); err != nil {
			return nil, fmt.Errorf("decode push response: %w", err)
		}
		return tickets, nil
	}

	var parsed pushResponse
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return nil, fmt.Errorf("decode push response: %w", err)
	}
	if len(parsed.Errors) > 0 && len(parsed.Data) == 0 {
		return nil, fmt.Errorf("push gateway error: %s", parsed.Errors[0].Message)
	}
	return parsed.Data, nil
}

func pushData(event domain.DomainEvent) map[string]any {
	data := make(map[string]any, len(event.Payload)+2)
	for k, v := range event.Payload {
		data[k] = v
	}
	data["type"] = string(event.Type)
	data["event_id"] = event.ID.String()
	return data
}

func maskToken(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:8] + "..." + token[len(token)-4:]
}
