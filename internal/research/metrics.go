package research

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer trace.Tracer = otel.Tracer("researcher/internal/research")

type metrics struct {
	tasks         otelmetric.Int64Counter
	phaseDuration otelmetric.Float64Histogram
	searches      otelmetric.Int64Counter
	scrapes       otelmetric.Int64Counter
}

func newMetrics(logger *zap.Logger) *metrics {
	meter := otel.Meter("researcher/internal/research")
	m := &metrics{}
	var err error
	m.tasks, err = meter.Int64Counter(
		"research_tasks_total",
		otelmetric.WithDescription("Research tasks that reached a terminal status"),
	)
	if err != nil {
		logger.Debug("Metric unavailable.", zap.String("metric", "research_tasks_total"), zap.Error(err))
	}
	m.phaseDuration, err = meter.Float64Histogram(
		"research_phase_duration_seconds",
		otelmetric.WithDescription("Wall time spent in each research phase"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		logger.Debug("Metric unavailable.", zap.String("metric", "research_phase_duration_seconds"), zap.Error(err))
	}
	m.searches, err = meter.Int64Counter(
		"research_search_requests_total",
		otelmetric.WithDescription("Subtask searches by source and outcome"),
	)
	if err != nil {
		logger.Debug("Metric unavailable.", zap.String("metric", "research_search_requests_total"), zap.Error(err))
	}
	m.scrapes, err = meter.Int64Counter(
		"research_scrape_results_total",
		otelmetric.WithDescription("Scraped search hits by outcome"),
	)
	if err != nil {
		logger.Debug("Metric unavailable.", zap.String("metric", "research_scrape_results_total"), zap.Error(err))
	}
	return m
}

func (m *metrics) taskFinished(ctx context.Context, status Status) {
	if m.tasks != nil {
		m.tasks.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("status", string(status))))
	}
}

func (m *metrics) phase(ctx context.Context, phase string, started time.Time) {
	if m.phaseDuration != nil {
		m.phaseDuration.Record(ctx, time.Since(started).Seconds(),
			otelmetric.WithAttributes(attribute.String("phase", phase)))
	}
}

func (m *metrics) search(ctx context.Context, source, outcome string) {
	if m.searches != nil {
		m.searches.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("source", source),
			attribute.String("outcome", outcome),
		))
	}
}

func (m *metrics) scrape(ctx context.Context, outcome string) {
	if m.scrapes != nil {
		m.scrapes.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
	}
}
