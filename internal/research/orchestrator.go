package research

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/provider"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch"
	"github.com/mohammad-safakhou/researcher/tools/web_search"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrTaskNotFound = errors.New("research task not found")
	ErrEmptyQuery   = errors.New("research query is empty")
	ErrClosed       = errors.New("orchestrator closed")
)

// Dependencies are the collaborators of the pipeline. Extractor and Searcher
// are required; without LLM the deterministic fallbacks are used, without
// Browser every search goes over HTTP.
type Dependencies struct {
	LLM       provider.TextGenerator
	Extractor web_fetch.ContentExtractor
	Searcher  HTTPSearcher
	Browser   BrowserOpener
	Sinks     []EventSink
	Clock     func() time.Time
}

// Options tune the pipeline.
type Options struct {
	Research   config.ResearchConfig
	SearchURL  string        // browser search page, query is appended escaped
	SearchWait time.Duration // settle time before reading browser results
	// ForceBrowser routes every search through the browser when one is configured.
	ForceBrowser bool
}

// Orchestrator runs research tasks and streams their events.
type Orchestrator struct {
	opts     Options
	logger   *zap.Logger
	llm      provider.TextGenerator
	browser  BrowserOpener
	sinks    []EventSink
	now      func() time.Time
	metrics  *metrics
	planner  *planner
	searcher *subtaskSearcher
	scraper  *scraper
	store    *taskStore

	progress chan ProgressEvent
	results  chan ResultEvent

	baseCtx    context.Context
	cancelBase context.CancelFunc
	runs       errgroup.Group

	mu      sync.Mutex
	closed  bool
	cancels map[string]context.CancelFunc
}

// NewOrchestrator wires the pipeline.
func NewOrchestrator(deps Dependencies, opts Options, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Extractor == nil {
		return nil, errors.New("research: content extractor required")
	}
	if deps.Searcher == nil {
		return nil, errors.New("research: HTTP searcher required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("orchestrator")
	opts.Research = opts.Research.Normalize()
	if strings.TrimSpace(opts.SearchURL) == "" {
		opts.SearchURL = web_search.DefaultSearchPageURL
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	m := newMetrics(logger)
	baseCtx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		opts:    opts,
		logger:  logger,
		llm:     deps.LLM,
		browser: deps.Browser,
		sinks:   deps.Sinks,
		now:     now,
		metrics: m,
		planner: &planner{
			llm:         deps.LLM,
			useLLM:      opts.Research.UseLLMPlanner,
			useFallback: !opts.Research.DisableFallbackPlanner,
			logger:      logger,
		},
		searcher: &subtaskSearcher{
			browser:   deps.Browser,
			browserMu: &sync.Mutex{},
			http:      deps.Searcher,
			searchURL: opts.SearchURL,
			wait:      opts.SearchWait,
			sleep:     sleepCtx,
			metrics:   m,
			logger:    logger,
		},
		scraper: &scraper{
			extractor:    deps.Extractor,
			llm:          deps.LLM,
			maxChars:     opts.Research.ExtractMaxChars,
			excerptChars: opts.Research.FallbackExcerptChars,
			concurrency:  opts.Research.ScrapeConcurrency,
			now:          now,
		},
		store:      newTaskStore(),
		progress:   make(chan ProgressEvent, opts.Research.EventBuffer),
		results:    make(chan ResultEvent, opts.Research.EventBuffer),
		baseCtx:    baseCtx,
		cancelBase: cancel,
		cancels:    make(map[string]context.CancelFunc),
	}
	return o, nil
}

// StartResearch registers a task and runs it in the background. The task
// keeps the values of ctx but not its cancellation; use Cancel to stop it.
func (o *Orchestrator) StartResearch(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return "", ErrClosed
	}

	now := o.now()
	task := &ResearchTask{
		ID:        uuid.NewString(),
		Query:     query,
		Status:    StatusPending,
		Subtasks:  []ResearchSubtask{},
		Results:   []ResearchResult{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.store.add(task)

	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(o.baseCtx, cancel)
	o.cancels[task.ID] = cancel

	run := newRun(o, task.ID)
	o.runs.Go(func() error {
		defer func() {
			stop()
			cancel()
			o.mu.Lock()
			delete(o.cancels, task.ID)
			o.mu.Unlock()
		}()
		o.drive(taskCtx, run)
		return nil
	})
	o.logger.Info("Research started.", zap.String("task_id", task.ID), zap.String("query", query))
	return task.ID, nil
}

// drive advances run until it is terminal.
func (o *Orchestrator) drive(ctx context.Context, run *Run) {
	for {
		done, err := run.Advance(ctx)
		if done {
			if err != nil {
				o.logger.Debug("Run ended with error.", zap.String("task_id", run.id), zap.Error(err))
			}
			return
		}
	}
}

// GetTask returns a snapshot of the task.
func (o *Orchestrator) GetTask(id string) (*ResearchTask, bool) {
	return o.store.get(id)
}

// ListTasks returns snapshots of every task, oldest first.
func (o *Orchestrator) ListTasks() []*ResearchTask {
	return o.store.list()
}

// Cancel stops a running task. Cancelling a finished task is a no-op.
func (o *Orchestrator) Cancel(id string) error {
	if _, ok := o.store.get(id); !ok {
		return ErrTaskNotFound
	}
	o.mu.Lock()
	cancel, ok := o.cancels[id]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// Progress is the progress stream shared by all tasks. It is closed by Close.
func (o *Orchestrator) Progress() <-chan ProgressEvent { return o.progress }

// Results is the result stream shared by all tasks. It is closed by Close.
func (o *Orchestrator) Results() <-chan ResultEvent { return o.results }

// Wait blocks until the task is terminal or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context, id string) (*ResearchTask, error) {
	done, ok := o.store.doneCh(id)
	if !ok {
		return nil, ErrTaskNotFound
	}
	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	task, _ := o.store.get(id)
	return task, nil
}

// Close cancels every task, waits for the runs to end, closes both streams
// and the browser.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	o.cancelBase()
	_ = o.runs.Wait()
	close(o.progress)
	close(o.results)
	if o.browser != nil {
		if err := o.browser.Close(); err != nil {
			o.logger.Warn("Browser close failed.", zap.Error(err))
			return err
		}
	}
	o.logger.Info("Orchestrator closed.")
	return nil
}
