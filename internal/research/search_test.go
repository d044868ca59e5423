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

func TestRewriteQuery(t *testing.T) {
	tests := []struct {
		query         string
		timeSensitive bool
		want          string
	}{
		{"rust tutorial", false, "rust tutorial"},
		{"ai chips 2026", true, "ai chips 2026 -wikipedia"},
		{"ai chips 2026 -wikipedia", true, "ai chips 2026 -wikipedia"},
		{"chip news", false, "chip news " + newsSiteFilter},
		{"latest chips", false, "latest chips " + newsSiteFilter},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rewriteQuery(tt.query, tt.timeSensitive), tt.query)
	}
}

func newTestSearcher(opener BrowserOpener, http HTTPSearcher) *subtaskSearcher {
	return &subtaskSearcher{
		browser:   opener,
		browserMu: &sync.Mutex{},
		http:      http,
		searchURL: "https://search.example/?q=",
		wait:      time.Second,
		sleep:     func(context.Context, time.Duration) error { return nil },
		metrics:   newMetrics(zap.NewNop()),
		logger:    zap.NewNop(),
	}
}

func TestSearchUsesBrowserWhenPlanned(t *testing.T) {
	page := &fakePage{results: `[{"url":"https://a.example/1","title":" A <b>one</b> "},{"url":"","title":"skip"},{"url":"https://b.example/2","title":"B"}]`}
	s := newTestSearcher(&fakeOpener{page: page}, searchFunc(func(context.Context, string) ([]SearchResult, error) {
		t.Fatal("HTTP fallback must not run")
		return nil, nil
	}))

	out, err := s.search(context.Background(), "rust async", &Plan{RequiresBrowser: true})
	require.NoError(t, err)
	assert.Equal(t, sourceBrowser, out.source)
	assert.Empty(t, out.warnings)
	assert.Equal(t, []string{"https://search.example/?q=rust+async"}, page.navigated)
	require.Len(t, out.results, 2)
	assert.Equal(t, "A one", out.results[0].Title)
	assert.InDelta(t, 1.0, out.results[0].RelevanceScore, 1e-9)
	assert.InDelta(t, 0.95, out.results[1].RelevanceScore, 1e-9)
}

func TestSearchFallsBackToHTTP(t *testing.T) {
	var queries []string
	http := searchFunc(func(_ context.Context, q string) ([]SearchResult, error) {
		queries = append(queries, q)
		return []SearchResult{{URL: "https://c.example", RelevanceScore: 1}}, nil
	})

	launchFailed := newTestSearcher(&fakeOpener{openErr: errors.New("no chrome")}, http)
	out, err := launchFailed.search(context.Background(), "latest chips", &Plan{RequiresBrowser: true, IsTimeSensitive: true})
	require.NoError(t, err)
	assert.Equal(t, sourceHTTP, out.source)
	require.Len(t, out.warnings, 1)
	assert.Contains(t, out.warnings[0], "no chrome")

	empty := newTestSearcher(&fakeOpener{page: &fakePage{results: `[]`}}, http)
	out, err = empty.search(context.Background(), "rust", &Plan{RequiresBrowser: true})
	require.NoError(t, err)
	assert.Equal(t, sourceHTTP, out.source)
	assert.Empty(t, out.warnings)

	noBrowser := newTestSearcher(nil, http)
	_, err = noBrowser.search(context.Background(), "rust news", &Plan{})
	require.NoError(t, err)

	assert.Equal(t, []string{"latest chips", "rust", "rust news " + newsSiteFilter}, queries)
}

func TestSearchFlagsSyntheticResults(t *testing.T) {
	s := newTestSearcher(nil, searchFunc(func(context.Context, string) ([]SearchResult, error) {
		return []SearchResult{{URL: "https://www.google.com/search?q=x", Synthetic: true}}, nil
	}))
	out, err := s.search(context.Background(), "x", &Plan{})
	require.NoError(t, err)
	require.Len(t, out.warnings, 1)
	assert.Contains(t, out.warnings[0], "synthetic")
}

func TestSearchReturnsContextErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newTestSearcher(&fakeOpener{openErr: context.Canceled}, searchFunc(func(ctx context.Context, _ string) ([]SearchResult, error) {
		return nil, ctx.Err()
	}))
	_, err := s.search(ctx, "x", &Plan{RequiresBrowser: true})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseBrowserResults(t *testing.T) {
	results, err := parseBrowserResults(nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = parseBrowserResults([]byte("null"))
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = parseBrowserResults([]byte(`{"not":"a list"}`))
	assert.Error(t, err)
}
