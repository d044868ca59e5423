package streams

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

var (
	streamMetricsOnce sync.Once
	eventsPublished   otelmetric.Int64Counter
	eventsDropped     otelmetric.Int64Counter
)

func initStreamMetrics() {
	meter := otel.Meter("researcher/queue/streams")
	var err error
	eventsPublished, err = meter.Int64Counter(
		"stream_events_published_total",
		otelmetric.WithDescription("Envelopes appended to Redis streams"),
	)
	if err != nil {
		zap.L().Warn("Stream metrics init failed.", zap.String("metric", "stream_events_published_total"), zap.Error(err))
	}
	eventsDropped, err = meter.Int64Counter(
		"stream_events_dropped_total",
		otelmetric.WithDescription("Envelopes rejected by validation or Redis"),
	)
	if err != nil {
		zap.L().Warn("Stream metrics init failed.", zap.String("metric", "stream_events_dropped_total"), zap.Error(err))
	}
}

func recordPublish(ctx context.Context, eventType string, err error) {
	streamMetricsOnce.Do(initStreamMetrics)
	attrs := otelmetric.WithAttributes(attribute.String("event_type", eventType))
	if err != nil {
		if eventsDropped != nil {
			eventsDropped.Add(contextOrBackground(ctx), 1, attrs)
		}
		return
	}
	if eventsPublished != nil {
		eventsPublished.Add(contextOrBackground(ctx), 1, attrs)
	}
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
