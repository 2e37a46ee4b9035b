package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notification-engine/internal/core/domain"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const lockRetryInterval = 25 * time.Millisecond

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// InstallmentLock implements ports.InstallmentLocker with SET NX PX.
type InstallmentLock struct {
	client *goredis.Client
	prefix string
}

// NewInstallmentLock creates a Redis-backed per-key lock.
func NewInstallmentLock(client *goredis.Client) *InstallmentLock {
	return &InstallmentLock{
		client: client,
		prefix: "notify:lock:",
	}
}

// Acquire polls until the lock is held or ctx is done. The lock expires on its
// own after ttl if the holder never releases it.
func (l *InstallmentLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.tryAcquire(ctx, redisKey, token, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// Release must not be cut short by the caller's cancelled context.
				rctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = releaseScript.Run(rctx, l.client, []string{redisKey}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrLockNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *InstallmentLock) tryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	result, err := l.client.SetArgs(ctx, key, token, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis lock acquire: %w", err)
	}
	return result == "OK", nil
}
