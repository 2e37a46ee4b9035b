package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type countingChecker struct {
	pings int
	err   error
}

func (c *countingChecker) Ping(context.Context) error { c.pings++; return c.err }
func (c *countingChecker) Name() string               { return "redis" }

func newProbeWithClock(checker *countingChecker, ttl time.Duration) (*QueueHealthProbe, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewQueueHealthProbe(checker, ttl, zerolog.Nop())
	p.now = func() time.Time { return now }
	return p, &now
}

func TestQueueHealthProbe_CachesWithinTTL(t *testing.T) {
	checker := &countingChecker{}
	p, now := newProbeWithClock(checker, 5*time.Second)

	assert.True(t, p.Healthy(context.Background()))
	assert.True(t, p.Healthy(context.Background()))
	assert.Equal(t, 1, checker.pings)

	*now = now.Add(6 * time.Second)
	assert.True(t, p.Healthy(context.Background()))
	assert.Equal(t, 2, checker.pings)
}

func TestQueueHealthProbe_PingFailure(t *testing.T) {
	checker := &countingChecker{err: errors.New("connection refused")}
	p, now := newProbeWithClock(checker, 5*time.Second)

	assert.False(t, p.Healthy(context.Background()))

	checker.err = nil
	assert.False(t, p.Healthy(context.Background()), "cached until the TTL lapses")

	*now = now.Add(5 * time.Second)
	assert.True(t, p.Healthy(context.Background()))
}

func TestQueueHealthProbe_MarkUnhealthy(t *testing.T) {
	checker := &countingChecker{}
	p, now := newProbeWithClock(checker, 5*time.Second)

	assert.True(t, p.Healthy(context.Background()))
	p.MarkUnhealthy()
	assert.False(t, p.Healthy(context.Background()))
	assert.Equal(t, 1, checker.pings)

	*now = now.Add(5 * time.Second)
	assert.True(t, p.Healthy(context.Background()))
}
