// Package queue feeds payment events from Kafka into the reconciliation
// engine. Offsets are committed only after the engine has handled a
// message, so a crash redelivers and the engine's idempotency absorbs it.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/xraph/affiliate"
)

// ProviderHeader names the message header carrying the provider id.
const ProviderHeader = "provider"

// Processor is the part of *affiliate.Engine the consumer needs.
type Processor interface {
	Handle(ctx context.Context, providerID string, raw []byte) (*affiliate.Outcome, error)
}

// Reader is the subset of *kafka.Reader used by Consumer.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReaderConfig describes the consumer group to join.
type ReaderConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
}

// NewReader creates a group reader. Offsets are committed explicitly.
func NewReader(cfg ReaderConfig) (*kafka.Reader, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("affiliate/queue: at least one broker is required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("affiliate/queue: group id is required")
	}
	if len(cfg.Topics) == 0 {
		return nil, errors.New("affiliate/queue: at least one topic is required")
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	}), nil
}

// Consumer reads messages and hands them to a Processor.
type Consumer struct {
	reader  Reader
	engine  Processor
	topics  map[string]string
	backoff time.Duration
	logger  zerolog.Logger
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithTopicProvider maps a topic to a provider id for messages without a
// provider header.
func WithTopicProvider(topic, providerID string) Option {
	return func(c *Consumer) { c.topics[topic] = providerID }
}

// WithRetryBackoff sets the delay before retrying a transient failure.
// Default 1s.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Consumer) { c.backoff = d }
}

// WithLogger sets the consumer logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Consumer) { c.logger = logger }
}

// New creates a Consumer.
func New(r Reader, engine Processor, opts ...Option) *Consumer {
	c := &Consumer{
		reader:  r,
		engine:  engine,
		topics:  make(map[string]string),
		backoff: time.Second,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes until ctx is cancelled, then returns nil. A transient
// engine failure is retried on the same message without committing; any
// other failure is logged and the message committed so it cannot block
// the partition.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("affiliate/queue: fetch: %w", err)
		}

		if err := c.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("affiliate/queue: commit: %w", err)
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	provider := c.providerOf(msg)
	log := c.logger.With().
		Str("topic", msg.Topic).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Str("provider", provider).
		Logger()

	for {
		out, err := c.engine.Handle(ctx, provider, msg.Value)
		if err == nil {
			if out.IsInvalid() {
				log.Warn().Err(out.Err).Msg("message rejected")
			} else {
				log.Debug().Str("status", string(out.Status)).Str("reason", out.Reason()).Msg("message handled")
			}
			return nil
		}
		if !affiliate.IsRetryable(err) {
			log.Error().Err(err).Msg("message dropped")
			return nil
		}

		log.Warn().Err(err).Dur("backoff", c.backoff).Msg("transient failure, retrying")
		t := time.NewTimer(c.backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Consumer) providerOf(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == ProviderHeader && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	if p, ok := c.topics[msg.Topic]; ok {
		return p
	}
	return msg.Topic
}
