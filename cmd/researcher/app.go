package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/browser"
	"github.com/mohammad-safakhou/researcher/internal/queue/streams"
	"github.com/mohammad-safakhou/researcher/internal/research"
	"github.com/mohammad-safakhou/researcher/internal/runtime"
	"github.com/mohammad-safakhou/researcher/provider"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch"
	"github.com/mohammad-safakhou/researcher/tools/web_search"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds the process-wide collaborators shared by the sub-commands.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *runtime.Telemetry
	redis     *redis.Client
	llm       provider.TextGenerator
}

func newApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	logger := runtime.NewLogger(cfg.General)
	tel, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, runtime.TelemetryOptions{ServiceVersion: version}, logger)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, telemetry: tel}

	if cfg.Storage.Redis.Enabled() && (cfg.Streams.Enabled || cfg.Search.Cache == "redis") {
		a.redis = redis.NewClient(&redis.Options{
			Addr:        cfg.Storage.Redis.Addr(),
			Password:    cfg.Storage.Redis.Password,
			DB:          cfg.Storage.Redis.DB,
			DialTimeout: cfg.Storage.Redis.Timeout,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.close()
			return nil, fmt.Errorf("redis %s: %w", cfg.Storage.Redis.Addr(), err)
		}
	}

	llm, err := provider.NewProvider(cfg.LLM, logger)
	if err != nil {
		logger.Warn("Language model unavailable, using deterministic fallbacks.", zap.Error(err))
	} else {
		a.llm = llm
	}
	return a, nil
}

type orchestratorOptions struct {
	forceBrowser bool
	noLLMPlanner bool
}

// orchestrator wires the research pipeline from configuration.
func (a *app) orchestrator(opts orchestratorOptions) (*research.Orchestrator, error) {
	fetcher, err := web_fetch.NewWebFetcher(web_fetch.FetcherType(a.cfg.Fetch.Type), a.cfg.Fetch.Timeout, a.cfg.Fetch.MaxChars, a.cfg.Search.UserAgent)
	if err != nil {
		return nil, err
	}
	engine, err := web_search.NewEngine(a.cfg.Search, &http.Client{Timeout: a.cfg.Search.Timeout})
	if err != nil {
		return nil, err
	}
	searchOpts := []web_search.SearcherOption{
		web_search.WithLimit(a.cfg.Search.MaxResults),
		web_search.WithStrategies(web_search.DefaultStrategies(fetcher)...),
		web_search.WithLogger(a.logger),
	}
	switch a.cfg.Search.Cache {
	case "memory":
		searchOpts = append(searchOpts, web_search.WithCache(web_search.NewMemoryCache(), a.cfg.Search.CacheTTL))
	case "redis":
		if a.redis != nil {
			searchOpts = append(searchOpts, web_search.WithCache(web_search.NewRedisCache(a.redis), a.cfg.Search.CacheTTL))
		}
	}

	rcfg := a.cfg.Research
	if opts.noLLMPlanner {
		rcfg.UseLLMPlanner = false
	}
	deps := research.Dependencies{
		LLM:       a.llm,
		Extractor: fetcher,
		Searcher:  web_search.NewSearcher(engine, searchOpts...),
		Browser:   research.NewLazyOpener(browser.NewLazy(browser.New(a.cfg.Browser, a.logger), a.launchOptions())),
	}
	if a.redis != nil && a.cfg.Streams.Enabled {
		sink, err := streams.NewResearchSink(a.redis, a.cfg.Streams, a.logger)
		if err != nil {
			return nil, err
		}
		deps.Sinks = append(deps.Sinks, sink)
	}
	return research.NewOrchestrator(deps, research.Options{
		Research:     rcfg,
		SearchURL:    a.cfg.Browser.SearchURL,
		SearchWait:   a.cfg.Browser.SearchWait,
		ForceBrowser: opts.forceBrowser,
	}, a.logger)
}

func (a *app) launchOptions() browser.LaunchOptions {
	return browser.LaunchOptions{Headless: a.cfg.Browser.Headless, PersistentProfile: a.cfg.Browser.PersistentProfile}
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	if err := a.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("Shutdown incomplete.", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"
