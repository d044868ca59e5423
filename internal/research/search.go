package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/researcher/internal/browser"
	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"github.com/mohammad-safakhou/researcher/tools/web_search"
	"github.com/mohammad-safakhou/researcher/tools/web_search/models"
	"go.uber.org/zap"
)

const (
	sourceBrowser = "browser"
	sourceHTTP    = "http"

	newsSiteFilter = "(site:reuters.com OR site:apnews.com OR site:bbc.com OR site:theverge.com OR site:techcrunch.com)"
)

// HTTPSearcher is the HTTP search fallback.
type HTTPSearcher interface {
	SearchWeb(ctx context.Context, query string) ([]SearchResult, error)
}

// Page is the part of a browser session used for searching.
type Page interface {
	Navigate(ctx context.Context, url string) error
	EvaluateScript(ctx context.Context, js string) (json.RawMessage, error)
}

// BrowserOpener hands out the shared browser page, launching it on first use.
type BrowserOpener interface {
	Open(ctx context.Context) (Page, error)
	Close() error
}

type lazyOpener struct {
	lazy *browser.Lazy
}

// NewLazyOpener adapts a lazily launched session.
func NewLazyOpener(l *browser.Lazy) BrowserOpener {
	return lazyOpener{lazy: l}
}

func (o lazyOpener) Open(ctx context.Context) (Page, error) {
	s, err := o.lazy.Get(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (o lazyOpener) Close() error { return o.lazy.Close() }

// googleResultsJS collects organic result links from a search results page.
const googleResultsJS = `(() => {
  const results = [];
  const push = (link, title) => {
    if (link && title && link.href && !link.href.includes('google.com')) {
      results.push({url: link.href, title: title.innerText || title.textContent || ''});
    }
  };
  document.querySelectorAll('div.g').forEach(el => push(el.querySelector('a[href]'), el.querySelector('h3')));
  if (results.length === 0) {
    document.querySelectorAll('h3').forEach(h3 => push(h3.closest('a[href]'), h3));
  }
  if (results.length === 0) {
    document.querySelectorAll('cite').forEach(cite => {
      const parent = cite.closest('div.g') || cite.closest('[data-sokoban-container]');
      if (parent) push(parent.querySelector('a[href]'), parent.querySelector('h3'));
    });
  }
  const seen = new Set();
  return results.filter(r => !seen.has(r.url) && seen.add(r.url)).slice(0, 10);
})()`

type searchOutcome struct {
	results  []SearchResult
	source   string
	warnings []string
}

type subtaskSearcher struct {
	browser   BrowserOpener
	browserMu *sync.Mutex // one page serves every task
	http      HTTPSearcher
	searchURL string
	wait      time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	metrics   *metrics
	logger    *zap.Logger
}

// search runs one subtask query. Only ctx errors are returned; everything
// else degrades to the next search method.
func (s *subtaskSearcher) search(ctx context.Context, query string, plan *Plan) (searchOutcome, error) {
	var out searchOutcome
	httpQuery := rewriteQuery(query, plan.IsTimeSensitive)
	if plan.RequiresBrowser && s.browser != nil {
		results, err := s.browserSearch(ctx, query)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			s.metrics.search(ctx, sourceBrowser, "error")
			s.logger.Warn("Browser search failed, using HTTP search.", zap.String("query", query), zap.Error(err))
			out.warnings = append(out.warnings, fmt.Sprintf("browser search failed for %q: %v", query, err))
		case len(results) == 0:
			s.metrics.search(ctx, sourceBrowser, "empty")
			s.logger.Info("Browser search found nothing, using HTTP search.", zap.String("query", query))
		default:
			s.metrics.search(ctx, sourceBrowser, "ok")
			out.results, out.source = results, sourceBrowser
			return out, nil
		}
		httpQuery = query
	}

	results, err := s.http.SearchWeb(ctx, httpQuery)
	if err != nil {
		s.metrics.search(ctx, sourceHTTP, "error")
		return out, err
	}
	outcome := "ok"
	if web_search.HasSynthetic(results) {
		outcome = "synthetic"
		out.warnings = append(out.warnings, fmt.Sprintf("search for %q fell back to synthetic results", httpQuery))
	} else if len(results) == 0 {
		outcome = "empty"
	}
	s.metrics.search(ctx, sourceHTTP, outcome)
	out.results, out.source = results, sourceHTTP
	return out, nil
}

func (s *subtaskSearcher) browserSearch(ctx context.Context, query string) ([]SearchResult, error) {
	s.browserMu.Lock()
	defer s.browserMu.Unlock()

	page, err := s.browser.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open browser: %w", err)
	}
	if err := page.Navigate(ctx, s.searchURL+url.QueryEscape(query)); err != nil {
		return nil, err
	}
	if err := s.sleep(ctx, s.wait); err != nil {
		return nil, err
	}
	raw, err := page.EvaluateScript(ctx, googleResultsJS)
	if err != nil {
		return nil, err
	}
	return parseBrowserResults(raw)
}

func parseBrowserResults(raw json.RawMessage) ([]SearchResult, error) {
	var hits []struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &hits); err != nil {
		return nil, fmt.Errorf("decode browser results: %w", err)
	}
	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		if strings.TrimSpace(h.URL) == "" {
			continue
		}
		results = append(results, SearchResult{
			URL:            h.URL,
			Title:          helpers.CleanText(h.Title),
			RelevanceScore: models.RankScore(len(results)),
		})
	}
	return results, nil
}

// rewriteQuery biases HTTP searches: time-sensitive queries drop Wikipedia,
// news-like queries are pinned to news sites.
func rewriteQuery(query string, timeSensitive bool) string {
	lower := strings.ToLower(query)
	if timeSensitive {
		if strings.Contains(lower, "-wikipedia") {
			return query
		}
		return query + " -wikipedia"
	}
	if strings.Contains(lower, "news") || strings.Contains(lower, "latest") {
		return query + " " + newsSiteFilter
	}
	return query
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
