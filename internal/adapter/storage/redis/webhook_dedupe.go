package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// WebhookDedupe implements ports.WebhookDedupe. Keys are written only after
// a notice was reconciled, so a failed attempt is retried by the gateway.
type WebhookDedupe struct {
	client *goredis.Client
	prefix string
}

// NewWebhookDedupe creates a Redis-backed dedupe cache.
func NewWebhookDedupe(client *goredis.Client) *WebhookDedupe {
	return &WebhookDedupe{
		client: client,
		prefix: "notify:webhook:",
	}
}

// Seen reports whether key was already marked processed.
func (d *WebhookDedupe) Seen(ctx context.Context, key string) (bool, error) {
	n, err := d.client.Exists(ctx, d.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis dedupe exists: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed records key for ttl.
func (d *WebhookDedupe) MarkProcessed(ctx context.Context, key string, ttl time.Duration) error {
	if err := d.client.Set(ctx, d.prefix+key, time.Now().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("redis dedupe set: %w", err)
	}
	return nil
}
