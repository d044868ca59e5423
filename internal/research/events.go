package research

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const sinkTimeout = 5 * time.Second

// EventSink mirrors task events somewhere else. Errors are logged only.
type EventSink interface {
	PublishProgress(ctx context.Context, ev ProgressEvent) error
	PublishResult(ctx context.Context, ev ResultEvent) error
}

// throttle lets through at most one intermediate event per interval.
type throttle struct {
	s rate.Sometimes
}

func newThrottle(interval time.Duration) *throttle {
	return &throttle{s: rate.Sometimes{Interval: interval}}
}

func (t *throttle) allow() bool {
	allowed := false
	t.s.Do(func() { allowed = true })
	return allowed
}

// publishProgress emits ev unless throttled. Final events bypass the
// throttle and wait for the consumer; others are dropped on a full buffer.
func (o *Orchestrator) publishProgress(ctx context.Context, ev ProgressEvent, th *throttle) {
	if !ev.Final && !th.allow() {
		return
	}
	o.notifySinks(ctx, func(sctx context.Context, sink EventSink) error {
		return sink.PublishProgress(sctx, ev)
	})
	if ev.Final {
		select {
		case o.progress <- ev:
		case <-o.baseCtx.Done():
			o.logger.Warn("Final progress event undelivered.", zap.String("task_id", ev.TaskID))
		}
		return
	}
	select {
	case o.progress <- ev:
	default:
		o.logger.Debug("Progress buffer full, event dropped.", zap.String("task_id", ev.TaskID))
	}
}

// publishResult blocks until the consumer takes ev or ctx ends.
func (o *Orchestrator) publishResult(ctx context.Context, ev ResultEvent) error {
	o.notifySinks(ctx, func(sctx context.Context, sink EventSink) error {
		return sink.PublishResult(sctx, ev)
	})
	select {
	case o.results <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) notifySinks(ctx context.Context, fn func(context.Context, EventSink) error) {
	if len(o.sinks) == 0 {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	for _, sink := range o.sinks {
		if err := fn(sctx, sink); err != nil {
			o.logger.Warn("Event sink failed.", zap.Error(err))
		}
	}
}
