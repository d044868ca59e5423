package research

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu       sync.Mutex
	progress []ProgressEvent
	results  []ResultEvent
	err      error
}

func (s *recordingSink) PublishProgress(_ context.Context, ev ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, ev)
	return s.err
}

func (s *recordingSink) PublishResult(_ context.Context, ev ResultEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, ev)
	return s.err
}

func bareOrchestrator(buffer int, sinks ...EventSink) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		logger:     zap.NewNop(),
		sinks:      sinks,
		progress:   make(chan ProgressEvent, buffer),
		results:    make(chan ResultEvent, buffer),
		baseCtx:    ctx,
		cancelBase: cancel,
	}
}

func TestThrottleBurstEmitsOnce(t *testing.T) {
	o := bareOrchestrator(100)
	defer o.cancelBase()
	th := newThrottle(500 * time.Millisecond)

	for i := 0; i < 20; i++ {
		o.publishProgress(context.Background(), ProgressEvent{TaskID: "t", Percentage: float64(i)}, th)
	}
	o.publishProgress(context.Background(), ProgressEvent{TaskID: "t", Status: StatusCompleted, Percentage: 100, Final: true}, th)

	require.Len(t, o.progress, 2)
	first := <-o.progress
	last := <-o.progress
	assert.Equal(t, 0.0, first.Percentage)
	assert.True(t, last.Final)
	assert.Equal(t, StatusCompleted, last.Status)
}

func TestThrottleOpensAfterInterval(t *testing.T) {
	th := newThrottle(20 * time.Millisecond)
	assert.True(t, th.allow())
	assert.False(t, th.allow())
	time.Sleep(30 * time.Millisecond)
	assert.True(t, th.allow())
}

func TestIntermediateProgressDroppedWhenFull(t *testing.T) {
	sink := &recordingSink{}
	o := bareOrchestrator(1, sink)
	defer o.cancelBase()
	th := newThrottle(time.Nanosecond)

	o.publishProgress(context.Background(), ProgressEvent{TaskID: "t", Percentage: 10}, th)
	time.Sleep(time.Millisecond)
	o.publishProgress(context.Background(), ProgressEvent{TaskID: "t", Percentage: 20}, th)

	require.Len(t, o.progress, 1)
	assert.Equal(t, 10.0, (<-o.progress).Percentage)
	assert.Len(t, sink.progress, 2, "sinks see every emitted event")
}

func TestFinalProgressWaitsForConsumer(t *testing.T) {
	o := bareOrchestrator(1)
	defer o.cancelBase()
	th := newThrottle(time.Hour)
	o.progress <- ProgressEvent{TaskID: "filler"}

	delivered := make(chan struct{})
	go func() {
		o.publishProgress(context.Background(), ProgressEvent{TaskID: "t", Final: true}, th)
		close(delivered)
	}()

	select {
	case <-delivered:
		t.Fatal("final event must block while the buffer is full")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, "filler", (<-o.progress).TaskID)
	<-delivered
	assert.True(t, (<-o.progress).Final)
}

func TestFinalProgressGivesUpOnClose(t *testing.T) {
	o := bareOrchestrator(0)
	done := make(chan struct{})
	go func() {
		o.publishProgress(context.Background(), ProgressEvent{TaskID: "t", Final: true}, newThrottle(time.Hour))
		close(done)
	}()
	o.cancelBase()
	<-done
}

func TestPublishResultHonoursContext(t *testing.T) {
	sink := &recordingSink{err: errors.New("redis down")}
	o := bareOrchestrator(0, sink)
	defer o.cancelBase()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := o.publishResult(ctx, ResultEvent{TaskID: "t"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, sink.results, 1, "sink errors are absorbed")
}
