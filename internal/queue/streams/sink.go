package streams

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/research"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultProgressStream = "research.progress"
	DefaultResultStream   = "research.results"
)

// ResearchSink mirrors orchestrator events to Redis streams.
type ResearchSink struct {
	publisher      *Publisher
	progressStream string
	resultStream   string
	maxLen         int64
	logger         *zap.Logger
}

var _ research.EventSink = (*ResearchSink)(nil)

// NewResearchSink builds a sink over client with the research schemas registered.
func NewResearchSink(client *redis.Client, cfg config.StreamsConfig, logger *zap.Logger) (*ResearchSink, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := NewSchemaRegistry()
	if err := RegisterResearchSchemas(reg); err != nil {
		return nil, err
	}
	s := &ResearchSink{
		publisher:      NewPublisher(client, reg),
		progressStream: strings.TrimSpace(cfg.ProgressStream),
		resultStream:   strings.TrimSpace(cfg.ResultStream),
		maxLen:         cfg.MaxLen,
		logger:         logger.Named("streams"),
	}
	if s.progressStream == "" {
		s.progressStream = DefaultProgressStream
	}
	if s.resultStream == "" {
		s.resultStream = DefaultResultStream
	}
	return s, nil
}

// PublishProgress appends ev to the progress stream.
func (s *ResearchSink) PublishProgress(ctx context.Context, ev research.ProgressEvent) error {
	id, err := s.publisher.PublishJSON(ctx, s.progressStream,
		Envelope{EventType: EventResearchProgress, PayloadVersion: PayloadV1, TaskID: ev.TaskID}, ev, WithMaxLenApprox(s.maxLen))
	if err != nil {
		return fmt.Errorf("mirror progress for task %s: %w", ev.TaskID, err)
	}
	s.logger.Debug("Progress mirrored.", zap.String("task_id", ev.TaskID), zap.String("stream_id", id), zap.String("status", string(ev.Status)))
	return nil
}

// PublishResult appends ev to the result stream.
func (s *ResearchSink) PublishResult(ctx context.Context, ev research.ResultEvent) error {
	id, err := s.publisher.PublishJSON(ctx, s.resultStream,
		Envelope{EventType: EventResearchResult, PayloadVersion: PayloadV1, TaskID: ev.TaskID}, ev, WithMaxLenApprox(s.maxLen))
	if err != nil {
		return fmt.Errorf("mirror result for task %s: %w", ev.TaskID, err)
	}
	s.logger.Debug("Result mirrored.", zap.String("task_id", ev.TaskID), zap.String("stream_id", id), zap.String("url", ev.Result.URL))
	return nil
}

// ProgressStream returns the stream progress events are written to.
func (s *ResearchSink) ProgressStream() string { return s.progressStream }

// ResultStream returns the stream result events are written to.
func (s *ResearchSink) ResultStream() string { return s.resultStream }
