package service

import (
	"context"
	"sync"
	"time"

	"notification-engine/internal/core/ports"

	"github.com/rs/zerolog"
)

const defaultHealthTTL = 5 * time.Second

// QueueHealthProbe caches the last known state of the queue backend so the
// dispatcher does not PING it for every event.
type QueueHealthProbe struct {
	checker ports.HealthChecker
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	log     zerolog.Logger

	mu        sync.Mutex
	healthy   bool
	checkedAt time.Time
}

// NewQueueHealthProbe creates a probe; ttl <= 0 uses 5s.
func NewQueueHealthProbe(checker ports.HealthChecker, ttl time.Duration, log zerolog.Logger) *QueueHealthProbe {
	if ttl <= 0 {
		ttl = defaultHealthTTL
	}
	return &QueueHealthProbe{
		checker: checker,
		ttl:     ttl,
		timeout: 500 * time.Millisecond,
		now:     time.Now,
		log:     log,
	}
}

// Healthy returns the cached state, re-probing once it is older than the TTL.
func (p *QueueHealthProbe) Healthy(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.checkedAt.IsZero() && p.now().Sub(p.checkedAt) < p.ttl {
		return p.healthy
	}

	pingCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err := p.checker.Ping(pingCtx)

	healthy := err == nil
	if healthy != p.healthy || p.checkedAt.IsZero() {
		ev := p.log.Info()
		if !healthy {
			ev = p.log.Warn().Err(err)
		}
		ev.Str("backend", p.checker.Name()).Bool("healthy", healthy).Msg("queue health changed")
	}
	p.healthy = healthy
	p.checkedAt = p.now()
	return healthy
}

// MarkUnhealthy forces direct mode until the TTL lapses.
func (p *QueueHealthProbe) MarkUnhealthy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.healthy {
		p.log.Warn().Str("backend", p.checker.Name()).Msg("queue marked unhealthy")
	}
	p.healthy = false
	p.checkedAt = p.now()
}
