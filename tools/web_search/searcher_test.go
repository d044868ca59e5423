package web_search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/researcher/tools/web_fetch/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mu      sync.Mutex
	queries []string
	results []SearchResult
	err     error
}

func (f *fakeEngine) Search(_ context.Context, q string, _ int) ([]SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return append([]SearchResult(nil), f.results...), f.err
}

type fakeExtractor struct {
	text string
	err  error
	urls []string
}

func (f *fakeExtractor) FetchReadableText(_ context.Context, url string) (string, error) {
	f.urls = append(f.urls, url)
	return f.text, f.err
}

func TestEngineQuery(t *testing.T) {
	assert.Equal(t, "go -site:wikipedia.org", EngineQuery(" go "))
	assert.Equal(t, "go -site:wikipedia.org", EngineQuery("go -site:wikipedia.org"))
}

func TestSearchWebFiltersAndSanitises(t *testing.T) {
	engine := &fakeEngine{results: []SearchResult{
		{URL: "https://go.dev/doc/", Title: "<b>Go</b> docs", Snippet: "Learn &amp; build", RelevanceScore: 1},
		{URL: "https://go.dev/blog/", Title: "Go blog", RelevanceScore: 0.95},
		{URL: "https://gobyexample.com/", Title: "Go by Example", RelevanceScore: 0.9},
	}}
	s := NewSearcher(engine)
	results, err := s.SearchWeb(context.Background(), "go tutorial")
	require.NoError(t, err)
	assert.Equal(t, []string{"go tutorial -site:wikipedia.org"}, engine.queries)
	require.Len(t, results, 2)
	assert.Equal(t, "Go docs", results[0].Title)
	assert.Equal(t, "Learn & build", results[0].Snippet)
	assert.Equal(t, "https://gobyexample.com/", results[1].URL)
	assert.False(t, HasSynthetic(results))
}

func TestSearchWebScrapedDomainsFallback(t *testing.T) {
	extractor := &fakeExtractor{text: "Results: stackoverflow.com/questions/1 ... github.com/foo/bar ... see docs.rs/tokio for more"}
	s := NewSearcher(&fakeEngine{}, WithStrategies(DefaultStrategies(extractor)...))

	results, err := s.SearchWeb(context.Background(), "tokio runtime")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, HasSynthetic(results))
	assert.Equal(t, "https://stackoverflow.com/search?q=tokio+runtime", results[0].URL)
	assert.Equal(t, "https://github.com/search?q=tokio+runtime", results[1].URL)
	assert.Equal(t, "https://docs.rs/", results[2].URL)
	require.Len(t, extractor.urls, 1)
	assert.Equal(t, DefaultSearchPageURL+"tokio+runtime", extractor.urls[0])
}

// pageFetcher returns whole pages, links included.
type pageFetcher struct {
	page models.Page
}

func (f pageFetcher) Fetch(_ context.Context, url string) (models.Page, error) {
	p := f.page
	p.URL = url
	return p, nil
}

func (f pageFetcher) FetchReadableText(ctx context.Context, url string) (string, error) {
	p, _ := f.Fetch(ctx, url)
	return p.Readable()
}

func TestScrapedDomainsMatchesHrefs(t *testing.T) {
	fetcher := pageFetcher{page: models.Page{
		Text: "Tokio runtime results",
		Links: []string{
			"https://www.google.com/url?q=https://stackoverflow.com/questions/1",
			"https://docs.rs/tokio/latest/tokio/runtime/",
		},
	}}
	s := NewSearcher(&fakeEngine{}, WithStrategies(DefaultStrategies(fetcher)...))

	results, err := s.SearchWeb(context.Background(), "tokio runtime")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://stackoverflow.com/search?q=tokio+runtime", results[0].URL)
	assert.Equal(t, "https://docs.rs/", results[1].URL)
}

func TestScrapedDomainsEmptyPageFallsThrough(t *testing.T) {
	s := NewSearcher(&fakeEngine{}, WithStrategies(DefaultStrategies(pageFetcher{})...))
	results, err := s.SearchWeb(context.Background(), "tokio runtime")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, DefaultSearchPageURL+"tokio+runtime", results[0].URL)
}

func TestSearchWebLastResort(t *testing.T) {
	extractor := &fakeExtractor{err: errors.New("blocked")}
	s := NewSearcher(&fakeEngine{err: errors.New("connection reset")}, WithStrategies(DefaultStrategies(extractor)...))

	results, err := s.SearchWeb(context.Background(), "obscure topic")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Synthetic)
	assert.Equal(t, DefaultSearchPageURL+"obscure+topic", results[0].URL)
}

func TestSearchWebNoStrategies(t *testing.T) {
	s := NewSearcher(&fakeEngine{}, WithStrategies())
	results, err := s.SearchWeb(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchWebCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewSearcher(&fakeEngine{err: context.Canceled})
	_, err := s.SearchWeb(ctx, "q")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeveloperResourcesStrategy(t *testing.T) {
	wiki := []SearchResult{{URL: "https://en.wikipedia.org/wiki/Rust_(programming_language)", Title: "Rust"}}
	var strategy DeveloperResourcesStrategy

	got, err := strategy.Apply(context.Background(), "Rust programming language tutorial", wiki)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, strings.HasPrefix(got[1].URL, "https://stackoverflow.com/search?q="))
	assert.True(t, strings.HasPrefix(got[2].URL, "https://github.com/search?q="))

	got, err = strategy.Apply(context.Background(), "history of the roman empire", wiki)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	two := append(append([]SearchResult(nil), wiki...), SearchResult{URL: "https://rust-lang.org/"})
	got, err = strategy.Apply(context.Background(), "rust tutorial", two)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestIsProgrammingQuery(t *testing.T) {
	assert.True(t, IsProgrammingQuery("Rust programming language tutorial"))
	assert.True(t, IsProgrammingQuery("how to install c++ compiler"))
	assert.False(t, IsProgrammingQuery("best pizza in naples"))
	assert.False(t, IsProgrammingQuery("encoder rings"), "substring of a term is not a match")
}

func TestSearchWebUsesCache(t *testing.T) {
	engine := &fakeEngine{results: []SearchResult{{URL: "https://go.dev/", Title: "Go"}}}
	cache := NewMemoryCache()
	s := NewSearcher(engine, WithCache(cache, time.Minute))

	for i := 0; i < 3; i++ {
		results, err := s.SearchWeb(context.Background(), "go")
		require.NoError(t, err)
		require.Len(t, results, 1)
	}
	assert.Len(t, engine.queries, 1)
}

func TestSearchWebDoesNotCacheSynthetic(t *testing.T) {
	engine := &fakeEngine{}
	s := NewSearcher(engine, WithCache(NewMemoryCache(), time.Minute))
	for i := 0; i < 2; i++ {
		_, err := s.SearchWeb(context.Background(), "nothing here")
		require.NoError(t, err)
	}
	assert.Len(t, engine.queries, 2)
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }
	require.NoError(t, c.Set(context.Background(), "k", []SearchResult{{URL: "https://a.example/"}}, time.Minute))

	got, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	got[0].URL = "mutated"

	again, _, _ := c.Get(context.Background(), "k")
	assert.Equal(t, "https://a.example/", again[0].URL)

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
