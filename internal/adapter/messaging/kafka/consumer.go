// Package kafka consumes domain events published by the rest of the
// application and feeds them to the dispatcher.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notification-engine/config"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is one consumed record.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
}

// Handler processes a message. Returning nil commits it; an error is retried
// a bounded number of times before the message is skipped.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// Consumer polls one topic as part of a consumer group and commits offsets
// after each batch has been handled.
type Consumer struct {
	client      *kgo.Client
	handler     Handler
	maxAttempts int
	backoff     time.Duration
	log         zerolog.Logger
}

// NewConsumer connects to the configured brokers.
func NewConsumer(cfg config.KafkaConfig, handler Handler, log zerolog.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" || cfg.Group == "" {
		return nil, errors.New("kafka: brokers, topic and group are required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Consumer{
		client:      client,
		handler:     handler,
		maxAttempts: 3,
		backoff:     500 * time.Millisecond,
		log:         log.With().Str("component", "kafka_consumer").Str("topic", cfg.Topic).Logger(),
	}, nil
}

// Run polls until ctx is cancelled or the client is closed.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().Msg("kafka consumer started")
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			c.log.Info().Msg("kafka consumer stopped")
			return nil
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			c.log.Error().Err(err).Str("fetch_topic", topic).Int32("partition", partition).Msg("kafka fetch error")
		})

		fetches.EachRecord(func(r *kgo.Record) {
			c.process(ctx, &Message{
				Topic:     r.Topic,
				Partition: r.Partition,
				Offset:    r.Offset,
				Key:       r.Key,
				Value:     r.Value,
			})
		})

		if err := c.client.CommitUncommittedOffsets(ctx); err != nil && ctx.Err() == nil {
			c.log.Error().Err(err).Msg("kafka commit failed")
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg *Message) {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = c.handler.Handle(ctx, msg); err == nil {
			return
		}
		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	c.log.Error().Err(err).
		Int32("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Msg("kafka message skipped after retries")
}

// Close leaves the group and releases the client.
func (c *Consumer) Close() {
	c.client.Close()
}
