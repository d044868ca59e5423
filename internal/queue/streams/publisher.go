package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// Publisher appends schema-checked envelopes to Redis streams.
type Publisher struct {
	client   *redis.Client
	registry *SchemaRegistry
	now      func() time.Time
}

// PublishOption adjusts the XADD call for one publish.
type PublishOption func(*redis.XAddArgs)

// WithMaxLenApprox caps the stream at roughly maxLen entries.
func WithMaxLenApprox(maxLen int64) PublishOption {
	return func(args *redis.XAddArgs) {
		if maxLen > 0 {
			args.MaxLen = maxLen
			args.Approx = true
		}
	}
}

// WithID replaces the server-assigned entry ID.
func WithID(id string) PublishOption {
	return func(args *redis.XAddArgs) {
		if id != "" {
			args.ID = id
		}
	}
}

// NewPublisher creates a Publisher. A nil registry skips payload validation.
func NewPublisher(client *redis.Client, registry *SchemaRegistry) *Publisher {
	return &Publisher{client: client, registry: registry, now: time.Now}
}

// Publish stamps env, checks it and appends it to stream. It returns the
// entry ID assigned by Redis.
func (p *Publisher) Publish(ctx context.Context, stream string, env Envelope, opts ...PublishOption) (string, error) {
	id, err := p.append(ctx, stream, p.stamp(ctx, env), opts...)
	recordPublish(ctx, env.EventType, err)
	return id, err
}

// PublishJSON encodes payload as the Data of meta and publishes the result.
// meta supplies EventType, PayloadVersion and optionally TaskID.
func (p *Publisher) PublishJSON(ctx context.Context, stream string, meta Envelope, payload interface{}, opts ...PublishOption) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		recordPublish(ctx, meta.EventType, err)
		return "", fmt.Errorf("marshal %s payload: %w", meta.EventType, err)
	}
	meta.Data = data
	return p.Publish(ctx, stream, meta, opts...)
}

func (p *Publisher) stamp(ctx context.Context, env Envelope) Envelope {
	if env.EventID == "" {
		env.EventID = uuid.NewString()
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = p.now().UTC()
	}
	if sc := trace.SpanContextFromContext(ctx); env.TraceID == "" && sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	return env
}

func (p *Publisher) append(ctx context.Context, stream string, env Envelope, opts ...PublishOption) (string, error) {
	if stream == "" {
		return "", fmt.Errorf("stream name is required")
	}
	raw, err := env.Marshal()
	if err != nil {
		return "", err
	}
	if p.registry != nil {
		if err := p.registry.Validate(env.EventType, env.PayloadVersion, env.Data); err != nil {
			return "", err
		}
	}

	args := &redis.XAddArgs{Stream: stream, Values: map[string]interface{}{envelopeField: raw}}
	for _, opt := range opts {
		opt(args)
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}
