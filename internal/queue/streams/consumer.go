package streams

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Consumer reads research envelopes through a Redis consumer group.
type Consumer struct {
	client   *redis.Client
	registry *SchemaRegistry
	group    string
	name     string
	logger   *zap.Logger
}

// ConsumerOption configures a single read.
type ConsumerOption func(*redis.XReadGroupArgs)

// WithBlock sets the maximum blocking duration when reading.
func WithBlock(d time.Duration) ConsumerOption {
	return func(args *redis.XReadGroupArgs) {
		if d > 0 {
			args.Block = d
		}
	}
}

// WithCount caps the number of messages returned in a single read.
func WithCount(n int64) ConsumerOption {
	return func(args *redis.XReadGroupArgs) {
		if n > 0 {
			args.Count = n
		}
	}
}

// WithNoAck skips the pending entries list for delivered messages.
func WithNoAck() ConsumerOption {
	return func(args *redis.XReadGroupArgs) {
		args.NoAck = true
	}
}

// NewConsumer builds a consumer for group under the given consumer name.
// A nil registry skips payload validation.
func NewConsumer(client *redis.Client, registry *SchemaRegistry, group, name string, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		client:   client,
		registry: registry,
		group:    group,
		name:     name,
		logger:   logger.Named("consumer").With(zap.String("group", group), zap.String("consumer", name)),
	}
}

// EnsureGroup creates the consumer group (and stream) if it does not exist.
// start is the first ID the group delivers; empty means "$" (new entries only).
func EnsureGroup(ctx context.Context, client *redis.Client, stream, group, start string) error {
	if stream == "" || group == "" {
		return fmt.Errorf("stream and group must be provided")
	}
	if start == "" {
		start = "$"
	}
	if err := client.XGroupCreateMkStream(ctx, stream, group, start).Err(); err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return fmt.Errorf("xgroup create: %w", err)
	}
	return nil
}

// Message is a decoded stream entry.
type Message struct {
	ID       string
	Envelope Envelope
}

func (c *Consumer) configured(stream string) error {
	if stream == "" {
		return fmt.Errorf("stream name is required")
	}
	if c.group == "" || c.name == "" {
		return fmt.Errorf("consumer group and name must be configured")
	}
	return nil
}

// Read returns new messages for this consumer. A read that times out returns no messages and no error.
func (c *Consumer) Read(ctx context.Context, stream string, opts ...ConsumerOption) ([]Message, error) {
	if err := c.configured(stream); err != nil {
		return nil, err
	}
	args := &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{stream, ">"},
	}
	for _, opt := range opts {
		opt(args)
	}

	res, err := c.client.XReadGroup(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	var out []Message
	for _, st := range res {
		out = append(out, c.decodeAll(ctx, stream, st.Messages)...)
	}
	return out, nil
}

// Ack acknowledges processing of the provided message IDs.
func (c *Consumer) Ack(ctx context.Context, stream string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.client.XAck(ctx, stream, c.group, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// Lag returns lag details for the configured group.
func (c *Consumer) Lag(ctx context.Context, stream string) (LagMetrics, error) {
	return GroupLag(ctx, c.client, stream, c.group)
}

// AutoClaim takes over messages idle for at least minIdle. Pass the returned
// cursor as start to continue claiming.
func (c *Consumer) AutoClaim(ctx context.Context, stream string, minIdle time.Duration, start string, count int64) ([]Message, string, error) {
	if err := c.configured(stream); err != nil {
		return nil, "", err
	}
	if start == "" {
		start = "0-0"
	}
	args := &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    c.group,
		Consumer: c.name,
		MinIdle:  minIdle,
		Start:    start,
	}
	if count > 0 {
		args.Count = count
	}
	msgs, next, err := c.client.XAutoClaim(ctx, args).Result()
	if err != nil {
		return nil, "", fmt.Errorf("xautoclaim: %w", err)
	}
	return c.decodeAll(ctx, stream, msgs), next, nil
}

func (c *Consumer) decodeAll(ctx context.Context, stream string, msgs []redis.XMessage) []Message {
	out := make([]Message, 0, len(msgs))
	for _, msg := range msgs {
		env, err := c.decode(msg)
		if err != nil {
			// Acked so it is not redelivered.
			c.logger.Warn("Dropping stream entry.", zap.String("stream", stream), zap.String("id", msg.ID), zap.Error(err))
			if ackErr := c.client.XAck(ctx, stream, c.group, msg.ID).Err(); ackErr != nil {
				c.logger.Warn("Ack of dropped entry failed.", zap.String("id", msg.ID), zap.Error(ackErr))
			}
			continue
		}
		out = append(out, Message{ID: msg.ID, Envelope: env})
	}
	return out
}

func (c *Consumer) decode(msg redis.XMessage) (Envelope, error) {
	data, err := entryEnvelope(msg.Values)
	if err != nil {
		return Envelope{}, err
	}
	env, err := UnmarshalEnvelope(data)
	if err != nil {
		return Envelope{}, err
	}
	if c.registry != nil {
		if err := c.registry.Validate(env.EventType, env.PayloadVersion, env.Data); err != nil {
			return Envelope{}, err
		}
	}
	return env, nil
}
