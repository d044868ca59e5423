package streams

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/research"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	ctx := context.Background()
	container, err := tcRedis.RunContainer(ctx,
		testcontainers.WithImage("redis:7-alpine"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")),
	)
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewResearchSinkDefaults(t *testing.T) {
	_, err := NewResearchSink(nil, config.StreamsConfig{}, nil)
	assert.Error(t, err)

	sink, err := NewResearchSink(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), config.StreamsConfig{ProgressStream: "  "}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultProgressStream, sink.ProgressStream())
	assert.Equal(t, DefaultResultStream, sink.ResultStream())
}

func TestResearchSinkRoundTrip(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()

	cfg := config.StreamsConfig{Enabled: true, ProgressStream: "test.progress", ResultStream: "test.results", MaxLen: 1000}
	sink, err := NewResearchSink(client, cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, EnsureGroup(ctx, client, cfg.ResultStream, "readers", "0"))

	now := time.Now().UTC()
	require.NoError(t, sink.PublishProgress(ctx, research.ProgressEvent{
		TaskID: "task-1", Status: research.StatusCompleted, Percentage: 100, Final: true, Timestamp: now,
	}))
	require.NoError(t, sink.PublishResult(ctx, research.ResultEvent{
		TaskID:       "task-1",
		SubtaskQuery: "rust ownership",
		Result: research.ResearchResult{
			ID: "res-1", SubtaskID: "st-1", URL: "https://doc.rust-lang.org/book/", Title: "The Book",
			Content: "Ownership rules.", RelevanceScore: 1, ScrapedAt: now,
		},
	}))

	err = sink.PublishResult(ctx, research.ResultEvent{TaskID: "task-1"})
	assert.Error(t, err, "results without ids fail schema validation")

	n, err := client.XLen(ctx, cfg.ProgressStream).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	consumer := NewConsumer(client, newResearchRegistry(t), "readers", "c1", zap.NewNop())
	msgs, err := consumer.Read(ctx, cfg.ResultStream, WithCount(10), WithBlock(time.Second))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, EventResearchResult, msgs[0].Envelope.EventType)
	assert.Equal(t, PayloadV1, msgs[0].Envelope.PayloadVersion)
	assert.Equal(t, "task-1", msgs[0].Envelope.TaskID)

	var ev research.ResultEvent
	require.NoError(t, msgs[0].Envelope.Decode(&ev))
	assert.Equal(t, "https://doc.rust-lang.org/book/", ev.Result.URL)

	lag, err := consumer.Lag(ctx, cfg.ResultStream)
	require.NoError(t, err)
	assert.EqualValues(t, 1, lag.Pending)
	assert.EqualValues(t, 1, lag.Length)
	assert.Equal(t, msgs[0].ID, lag.LastDeliveredID)

	require.NoError(t, consumer.Ack(ctx, cfg.ResultStream, msgs[0].ID))
	lag, err = consumer.Lag(ctx, cfg.ResultStream)
	require.NoError(t, err)
	assert.EqualValues(t, 0, lag.Pending)

	_, err = GroupLag(ctx, client, cfg.ResultStream, "nobody")
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestConsumerDropsMalformedEntries(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()
	require.NoError(t, EnsureGroup(ctx, client, "test.bad", "readers", "0"))
	require.NoError(t, EnsureGroup(ctx, client, "test.bad", "readers", "0"), "existing group is not an error")

	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{Stream: "test.bad", Values: map[string]interface{}{"other": "x"}}).Err())
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{Stream: "test.bad", Values: map[string]interface{}{"envelope": "{not json"}}).Err())

	consumer := NewConsumer(client, nil, "readers", "c1", nil)
	msgs, err := consumer.Read(ctx, "test.bad", WithCount(10))
	require.NoError(t, err)
	assert.Empty(t, msgs)

	lag, err := consumer.Lag(ctx, "test.bad")
	require.NoError(t, err)
	assert.EqualValues(t, 0, lag.Pending, "malformed entries are acknowledged")

	pub := NewPublisher(client, nil)
	_, err = pub.PublishJSON(ctx, "test.bad", Envelope{EventType: "custom.event", PayloadVersion: PayloadV1}, map[string]string{"k": "v"})
	require.NoError(t, err)
	msgs, err = consumer.Read(ctx, "test.bad", WithNoAck())
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	claimed, _, err := consumer.AutoClaim(ctx, "test.bad", 0, "", 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}
