package streams

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrGroupNotFound is returned by GroupLag when the stream has no such group.
var ErrGroupNotFound = errors.New("consumer group not found")

// LagMetrics describes how far a consumer group trails its stream.
type LagMetrics struct {
	Length          int64
	Pending         int64
	Lag             int64
	Consumers       int64
	LastDeliveredID string
	OldestIdle      time.Duration
}

func (m LagMetrics) String() string {
	return fmt.Sprintf("length=%d pending=%d lag=%d consumers=%d last=%s oldest_idle=%s",
		m.Length, m.Pending, m.Lag, m.Consumers, m.LastDeliveredID, m.OldestIdle)
}

// GroupLag reports backlog for group on stream. OldestIdle is only looked up
// when entries are pending.
func GroupLag(ctx context.Context, client *redis.Client, stream, group string) (LagMetrics, error) {
	if client == nil {
		return LagMetrics{}, fmt.Errorf("redis client is nil")
	}
	if stream == "" || group == "" {
		return LagMetrics{}, fmt.Errorf("stream and group are required")
	}

	groups, err := client.XInfoGroups(ctx, stream).Result()
	if err != nil {
		return LagMetrics{}, fmt.Errorf("xinfo groups %s: %w", stream, err)
	}
	idx := -1
	for i := range groups {
		if groups[i].Name == group {
			idx = i
			break
		}
	}
	if idx < 0 {
		return LagMetrics{}, fmt.Errorf("%s on %s: %w", group, stream, ErrGroupNotFound)
	}
	info := groups[idx]
	m := LagMetrics{
		Pending:         info.Pending,
		Lag:             info.Lag,
		Consumers:       info.Consumers,
		LastDeliveredID: info.LastDeliveredID,
	}

	if m.Length, err = client.XLen(ctx, stream).Result(); err != nil {
		return LagMetrics{}, fmt.Errorf("xlen %s: %w", stream, err)
	}
	if m.Pending == 0 {
		return m, nil
	}
	oldest, err := client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return LagMetrics{}, fmt.Errorf("xpending %s: %w", stream, err)
	}
	if len(oldest) > 0 {
		m.OldestIdle = oldest[0].Idle
	}
	return m, nil
}
