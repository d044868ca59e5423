package research

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrNoResults fails a task that gathered nothing when fail_on_empty is set.
var ErrNoResults = errors.New("no results gathered")

// Run is the state machine of one task. Each Advance executes one phase.
type Run struct {
	o        *Orchestrator
	id       string
	throttle *throttle
	logger   *zap.Logger
}

func newRun(o *Orchestrator, id string) *Run {
	return &Run{
		o:        o,
		id:       id,
		throttle: newThrottle(o.opts.Research.ProgressInterval),
		logger:   o.logger.With(zap.String("task_id", id)),
	}
}

// Advance moves the task one phase forward. done is true once the task is
// terminal; err is the failure cause when the task failed during this call.
func (r *Run) Advance(ctx context.Context) (done bool, err error) {
	task, ok := r.o.store.get(r.id)
	if !ok {
		return true, ErrTaskNotFound
	}
	if task.Status.Terminal() {
		return true, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		r.fail(ctx, ctxErr)
		return true, ctxErr
	}

	switch task.Status {
	case StatusPending:
		err = r.planPhase(ctx, task)
	case StatusPlanning:
		err = r.searchPhase(ctx, task)
	case StatusSearching:
		err = r.scrapePhase(ctx, task)
	case StatusScraping:
		err = r.synthesizePhase(ctx, task)
	case StatusAnalyzing:
		r.complete(ctx)
		return true, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		r.fail(ctx, err)
		return true, err
	}
	return false, nil
}

// mutate applies fn to the stored task and, when operation is set or the
// task became terminal, publishes a progress event.
func (r *Run) mutate(ctx context.Context, operation string, fn func(t *ResearchTask)) *ResearchTask {
	snap, ok := r.o.store.update(r.id, func(t *ResearchTask) {
		fn(t)
		t.UpdatedAt = r.o.now()
	})
	if !ok {
		return nil
	}
	if operation != "" || snap.Status.Terminal() {
		r.o.publishProgress(ctx, snap.progress(operation), r.throttle)
	}
	if snap.Status.Terminal() {
		r.o.store.finish(r.id)
	}
	return snap
}

func warn(t *ResearchTask, msg string) {
	t.Degraded = true
	t.Warnings = append(t.Warnings, msg)
}

func (r *Run) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("task.id", r.id)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "completed")
	}
	span.End()
}

func (r *Run) planPhase(ctx context.Context, task *ResearchTask) (err error) {
	started := time.Now()
	ctx, span := r.startSpan(ctx, "research.plan")
	defer func() {
		endSpan(span, err)
		r.o.metrics.phase(ctx, "plan", started)
	}()

	r.mutate(ctx, "Creating research plan...", func(t *ResearchTask) { t.Status = StatusPlanning })
	plan, err := r.o.planner.plan(ctx, task.Query, r.o.now())
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	if r.o.opts.ForceBrowser {
		plan.RequiresBrowser = true
	}
	subtasks := make([]ResearchSubtask, 0, len(plan.SearchQueries))
	for _, q := range plan.SearchQueries {
		subtasks = append(subtasks, ResearchSubtask{ID: uuid.NewString(), Query: q, Status: SubtaskPending})
	}
	span.SetAttributes(
		attribute.Int("plan.queries", len(subtasks)),
		attribute.Bool("plan.fallback", plan.Fallback),
		attribute.Bool("plan.requires_browser", plan.RequiresBrowser),
	)
	r.mutate(ctx, fmt.Sprintf("Created %d research tasks", len(subtasks)), func(t *ResearchTask) {
		t.Plan = plan
		t.Subtasks = subtasks
		if plan.Fallback && r.o.planner.useLLM && r.o.planner.llm != nil {
			warn(t, "language model planning failed, fallback planner used")
		}
	})
	r.logger.Info("Research planned.", zap.Int("subtasks", len(subtasks)), zap.Bool("fallback", plan.Fallback))
	return nil
}

func (r *Run) searchPhase(ctx context.Context, task *ResearchTask) (err error) {
	started := time.Now()
	ctx, span := r.startSpan(ctx, "research.search")
	defer func() {
		endSpan(span, err)
		r.o.metrics.phase(ctx, "search", started)
	}()

	r.mutate(ctx, "Starting web searches...", func(t *ResearchTask) { t.Status = StatusSearching })
	for i, st := range task.Subtasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.mutate(ctx, fmt.Sprintf("Searching: %s", st.Query), func(*ResearchTask) {})
		out, err := r.o.searcher.search(ctx, st.Query, task.Plan)
		if err != nil {
			return err
		}
		r.mutate(ctx, fmt.Sprintf("Found %d results for: %s", len(out.results), st.Query), func(t *ResearchTask) {
			t.Subtasks[i].SearchResults = out.results
			t.Subtasks[i].Status = SubtaskSearching
			t.Subtasks[i].Source = out.source
			for _, w := range out.warnings {
				warn(t, w)
			}
		})
	}
	return nil
}

func (r *Run) scrapePhase(ctx context.Context, task *ResearchTask) (err error) {
	started := time.Now()
	ctx, span := r.startSpan(ctx, "research.scrape")
	defer func() {
		endSpan(span, err)
		r.o.metrics.phase(ctx, "scrape", started)
	}()

	r.mutate(ctx, "Starting content extraction...", func(t *ResearchTask) { t.Status = StatusScraping })
	perSubtask := r.o.opts.Research.ResultsPerSubtask
	for i, st := range task.Subtasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.mutate(ctx, fmt.Sprintf("Extracting content for: %s", st.Query), func(t *ResearchTask) {
			t.Subtasks[i].Status = SubtaskScraping
		})
		hits := st.SearchResults
		if len(hits) > perSubtask {
			hits = hits[:perSubtask]
		}
		err := r.o.scraper.scrapeSubtask(ctx, st, hits, func(j int, sc scraped) error {
			if sc.err != nil {
				r.o.metrics.scrape(ctx, "failed")
				r.logger.Info("Scrape skipped.", zap.String("url", sc.hit.URL), zap.Error(sc.err))
				r.mutate(ctx, "", func(t *ResearchTask) { warn(t, fmt.Sprintf("scrape failed: %v", sc.err)) })
				return nil
			}
			if sc.extractErr != nil {
				r.o.metrics.scrape(ctx, "excerpt")
				r.logger.Debug("Extraction fell back to excerpt.", zap.String("url", sc.hit.URL), zap.Error(sc.extractErr))
			} else {
				r.o.metrics.scrape(ctx, "extracted")
			}
			r.mutate(ctx, fmt.Sprintf("Found content: %s (%d/%d)", sc.result.Title, j+1, len(hits)), func(t *ResearchTask) {
				t.Results = append(t.Results, sc.result)
				if sc.extractErr != nil && r.o.llm != nil {
					warn(t, fmt.Sprintf("extraction for %s used a raw excerpt", sc.hit.URL))
				}
			})
			return r.o.publishResult(ctx, ResultEvent{TaskID: r.id, Result: sc.result, SubtaskQuery: st.Query})
		})
		if err != nil {
			return err
		}
		r.mutate(ctx, fmt.Sprintf("Completed: %s", st.Query), func(t *ResearchTask) {
			t.Subtasks[i].Status = SubtaskCompleted
		})
	}
	return nil
}

func (r *Run) synthesizePhase(ctx context.Context, _ *ResearchTask) (err error) {
	started := time.Now()
	ctx, span := r.startSpan(ctx, "research.synthesize")
	defer func() {
		endSpan(span, err)
		r.o.metrics.phase(ctx, "synthesize", started)
	}()

	snap := r.mutate(ctx, "Analyzing and synthesizing findings...", func(t *ResearchTask) { t.Status = StatusAnalyzing })
	if snap == nil {
		return ErrTaskNotFound
	}
	span.SetAttributes(attribute.Int("task.results", len(snap.Results)))
	if len(snap.Results) == 0 && r.o.opts.Research.FailOnEmpty {
		return ErrNoResults
	}
	conclusion, synthErr := synthesize(ctx, r.o.llm, snap)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	r.mutate(ctx, "", func(t *ResearchTask) {
		t.Conclusion = conclusion
		if len(t.Results) == 0 {
			warn(t, ErrNoResults.Error())
		} else if synthErr != nil && r.o.llm != nil {
			warn(t, fmt.Sprintf("synthesis used the templated summary: %v", synthErr))
		}
	})
	return nil
}

func (r *Run) complete(ctx context.Context) {
	snap := r.mutate(ctx, "Research completed!", func(t *ResearchTask) { t.Status = StatusCompleted })
	if snap == nil {
		return
	}
	r.o.metrics.taskFinished(ctx, StatusCompleted)
	r.logger.Info("Research completed.",
		zap.Int("results", len(snap.Results)), zap.Bool("degraded", snap.Degraded))
}

func (r *Run) fail(ctx context.Context, cause error) {
	reason := cause.Error()
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		reason = "cancelled: " + cause.Error()
	}
	snap := r.mutate(ctx, reason, func(t *ResearchTask) {
		t.Status = StatusFailed
		t.Error = reason
	})
	if snap == nil {
		return
	}
	r.o.metrics.taskFinished(context.WithoutCancel(ctx), StatusFailed)
	r.logger.Warn("Research failed.", zap.String("reason", reason))
}
