package web_search

import (
	"context"
	"strings"
	"time"

	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"go.uber.org/zap"
)

const (
	wikipediaExclusion = "-site:wikipedia.org"
	defaultLimit       = 10
	maxTitleChars      = 300
	maxSnippetChars    = 1000
)

// Searcher is the HTTP search fallback: engine query, sanitising, domain
// diversity and the strategy chain, optionally cached.
type Searcher struct {
	engine     Engine
	strategies []Strategy
	cache      Cache
	ttl        time.Duration
	limit      int
	logger     *zap.Logger
}

type SearcherOption func(*Searcher)

// WithStrategies replaces the fallback chain. Pass none to disable fallbacks.
func WithStrategies(strategies ...Strategy) SearcherOption {
	return func(s *Searcher) { s.strategies = strategies }
}

// WithCache enables caching; a non-positive ttl disables it.
func WithCache(cache Cache, ttl time.Duration) SearcherOption {
	return func(s *Searcher) {
		s.cache = cache
		s.ttl = ttl
	}
}

func WithLimit(n int) SearcherOption {
	return func(s *Searcher) {
		if n > 0 {
			s.limit = n
		}
	}
}

func WithLogger(logger *zap.Logger) SearcherOption {
	return func(s *Searcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSearcher(engine Engine, opts ...SearcherOption) *Searcher {
	s := &Searcher{
		engine:     engine,
		strategies: []Strategy{&SearchPageStrategy{}, DeveloperResourcesStrategy{}},
		limit:      defaultLimit,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("search")
	return s
}

// EngineQuery is the query actually sent to the engine.
func EngineQuery(query string) string {
	query = strings.TrimSpace(query)
	if strings.Contains(query, wikipediaExclusion) {
		return query
	}
	return query + " " + wikipediaExclusion
}

// SearchWeb never fails on engine errors: they are logged and the strategy
// chain takes over. Only ctx cancellation is returned.
func (s *Searcher) SearchWeb(ctx context.Context, query string) ([]SearchResult, error) {
	q := EngineQuery(query)
	if s.cache != nil && s.ttl > 0 {
		cached, ok, err := s.cache.Get(ctx, q)
		if err != nil {
			s.logger.Warn("Search cache read failed.", zap.String("query", q), zap.Error(err))
		} else if ok {
			s.logger.Debug("Search cache hit.", zap.String("query", q), zap.Int("results", len(cached)))
			return cached, nil
		}
	}

	raw, err := s.engine.Search(ctx, q, s.limit)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Warn("Search engine request failed.", zap.String("query", q), zap.Error(err))
		raw = nil
	}
	for i := range raw {
		raw[i].Title = helpers.Truncate(helpers.CleanText(raw[i].Title), maxTitleChars)
		raw[i].Snippet = helpers.Truncate(helpers.CleanText(raw[i].Snippet), maxSnippetChars)
	}
	results := FilterDiverse(raw)
	s.logger.Debug("Search results filtered.",
		zap.String("query", q), zap.Int("raw", len(raw)), zap.Int("diverse", len(results)))

	base := strings.TrimSpace(strings.ReplaceAll(query, wikipediaExclusion, ""))
	for _, strategy := range s.strategies {
		next, err := strategy.Apply(ctx, base, results)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.logger.Info("Fallback strategy failed.", zap.String("strategy", strategy.Name()), zap.Error(err))
			continue
		}
		if len(next) != len(results) {
			s.logger.Info("Fallback strategy applied.",
				zap.String("strategy", strategy.Name()), zap.Int("before", len(results)), zap.Int("after", len(next)))
		}
		results = next
	}

	if s.cache != nil && s.ttl > 0 && len(results) > 0 && !HasSynthetic(results) {
		if err := s.cache.Set(ctx, q, results, s.ttl); err != nil {
			s.logger.Warn("Search cache write failed.", zap.String("query", q), zap.Error(err))
		}
	}
	return results, nil
}

// HasSynthetic reports whether any result came from a fallback strategy.
func HasSynthetic(results []SearchResult) bool {
	for _, r := range results {
		if r.Synthetic {
			return true
		}
	}
	return false
}
