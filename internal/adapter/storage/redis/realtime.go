package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// PresenceHub tracks live stream sessions per recipient and relays messages
// to them over Redis pub/sub, so any replica can reach any connected client.
type PresenceHub struct {
	client      *goredis.Client
	presenceTTL time.Duration
}

// NewPresenceHub creates a Redis-backed presence hub.
func NewPresenceHub(client *goredis.Client, presenceTTL time.Duration) *PresenceHub {
	if presenceTTL <= 0 {
		presenceTTL = 90 * time.Second
	}
	return &PresenceHub{client: client, presenceTTL: presenceTTL}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func presenceKey(email string) string { return "notify:presence:" + normalizeEmail(email) }

// LiveChannel returns the pub/sub channel carrying a recipient's live messages.
func LiveChannel(email string) string { return "notify:live:" + normalizeEmail(email) }

// PresenceTTL is the heartbeat deadline for a session.
func (h *PresenceHub) PresenceTTL() time.Duration { return h.presenceTTL }

// Join registers a session, or refreshes it when called as a heartbeat.
func (h *PresenceHub) Join(ctx context.Context, email, sessionID string) error {
	key := presenceKey(email)
	_, err := h.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.SAdd(ctx, key, sessionID)
		p.Expire(ctx, key, h.presenceTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis presence join: %w", err)
	}
	return nil
}

// Leave removes a session.
func (h *PresenceHub) Leave(ctx context.Context, email, sessionID string) error {
	if err := h.client.SRem(ctx, presenceKey(email), sessionID).Err(); err != nil {
		return fmt.Errorf("redis presence leave: %w", err)
	}
	return nil
}

// Online reports whether the recipient has at least one live session.
func (h *PresenceHub) Online(ctx context.Context, email string) (bool, error) {
	n, err := h.client.SCard(ctx, presenceKey(email)).Result()
	if err != nil {
		return false, fmt.Errorf("redis presence check: %w", err)
	}
	return n > 0, nil
}

// Publish sends payload to the recipient's live channel and returns the number
// of subscribers that received it.
func (h *PresenceHub) Publish(ctx context.Context, email string, payload []byte) (int64, error) {
	n, err := h.client.Publish(ctx, LiveChannel(email), payload).Result()
	if err != nil {
		return 0, fmt.Errorf("redis publish live: %w", err)
	}
	return n, nil
}

// Subscribe opens a subscription on the recipient's live channel. The caller
// must Close it.
func (h *PresenceHub) Subscribe(ctx context.Context, email string) (*goredis.PubSub, error) {
	sub := h.client.Subscribe(ctx, LiveChannel(email))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe live: %w", err)
	}
	return sub, nil
}
