package web_search

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch/models"
)

// Strategy post-processes the diverse result set of one SearchWeb call.
// Strategies run in order; each sees the output of the previous one.
type Strategy interface {
	Name() string
	Apply(ctx context.Context, query string, results []SearchResult) ([]SearchResult, error)
}

// DefaultSearchPageURL is the generic results page used by the fallbacks.
const DefaultSearchPageURL = "https://www.google.com/search?q="

// DefaultStrategies is the fallback chain used when none is configured.
func DefaultStrategies(extractor web_fetch.ContentExtractor) []Strategy {
	var out []Strategy
	if extractor != nil {
		out = append(out, &ScrapedDomainsStrategy{Extractor: extractor})
	}
	return append(out, &SearchPageStrategy{}, &DeveloperResourcesStrategy{})
}

func searchPage(base, query string) string {
	if base == "" {
		base = DefaultSearchPageURL
	}
	return base + url.QueryEscape(query)
}

// ScrapedDomainsStrategy reads a generic results page through the content
// extractor and emits results for well-known developer domains its markup
// links to. Extractors that return full pages are matched on anchor hrefs,
// others on readable text. It only runs when nothing else was found.
type ScrapedDomainsStrategy struct {
	Extractor web_fetch.ContentExtractor
	PageURL   string
}

func (s *ScrapedDomainsStrategy) Name() string { return "scraped_domains" }

var docsHost = regexp.MustCompile(`\bdocs\.[a-z0-9-]+(?:\.[a-z0-9-]+)*`)

func (s *ScrapedDomainsStrategy) Apply(ctx context.Context, query string, results []SearchResult) ([]SearchResult, error) {
	if len(results) > 0 {
		return results, nil
	}
	markup, err := s.scrape(ctx, searchPage(s.PageURL, query))
	if err != nil {
		return results, err
	}
	q := url.QueryEscape(query)
	var out []SearchResult
	add := func(u, title string) {
		out = append(out, SearchResult{
			URL:            u,
			Title:          title,
			Snippet:        "Found on the search results page for: " + query,
			RelevanceScore: 0.7 - 0.05*float64(len(out)),
			Synthetic:      true,
		})
	}
	if strings.Contains(markup, "stackoverflow.com") {
		add("https://stackoverflow.com/search?q="+q, "Stack Overflow: "+query)
	}
	if strings.Contains(markup, "github.com") {
		add("https://github.com/search?q="+q, "GitHub: "+query)
	}
	if host := docsHost.FindString(markup); host != "" {
		add("https://"+host+"/", "Documentation: "+host)
	}
	return out, nil
}

// scrape returns the lower-cased hrefs of the page, one per line, followed
// by its text.
func (s *ScrapedDomainsStrategy) scrape(ctx context.Context, pageURL string) (string, error) {
	fetcher, ok := s.Extractor.(web_fetch.WebFetcher)
	if !ok {
		text, err := s.Extractor.FetchReadableText(ctx, pageURL)
		return strings.ToLower(text), err
	}
	page, err := fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return "", err
	}
	if len(page.Links) == 0 && page.Text == "" {
		return "", fmt.Errorf("%s: %w", pageURL, models.ErrNoText)
	}
	return strings.ToLower(strings.Join(page.Links, "\n") + "\n" + page.Text), nil
}

// SearchPageStrategy is the last resort: a single result pointing at the
// search page itself.
type SearchPageStrategy struct {
	PageURL string
}

func (s *SearchPageStrategy) Name() string { return "search_page" }

func (s *SearchPageStrategy) Apply(_ context.Context, query string, results []SearchResult) ([]SearchResult, error) {
	if len(results) > 0 {
		return results, nil
	}
	return []SearchResult{{
		URL:            searchPage(s.PageURL, query),
		Title:          "Search results for: " + query,
		Snippet:        "Search the web for " + query,
		RelevanceScore: 0.5,
		Synthetic:      true,
	}}, nil
}

// DeveloperResourcesStrategy adds Stack Overflow and GitHub searches when the
// only hit is Wikipedia and the query is about programming.
type DeveloperResourcesStrategy struct{}

func (DeveloperResourcesStrategy) Name() string { return "developer_resources" }

var programmingTerms = []string{
	"programming", "code", "coding", "developer", "tutorial", "api", "sdk", "library",
	"framework", "function", "compile", "syntax", "golang", "python", "rust", "javascript",
	"typescript", "java", "c++", "kotlin", "swift", "error", "install",
}

// IsProgrammingQuery reports whether query mentions a programming term.
func IsProgrammingQuery(query string) bool {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r == '+' || r == '#' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, w := range words {
		for _, term := range programmingTerms {
			if w == term {
				return true
			}
		}
	}
	return false
}

func (DeveloperResourcesStrategy) Apply(_ context.Context, query string, results []SearchResult) ([]SearchResult, error) {
	if len(results) != 1 || !helpers.IsWikipedia(results[0].URL) || !IsProgrammingQuery(query) {
		return results, nil
	}
	q := url.QueryEscape(query)
	return append(results,
		SearchResult{
			URL:            "https://stackoverflow.com/search?q=" + q,
			Title:          "Stack Overflow: " + query,
			Snippet:        "Community questions and answers about " + query,
			RelevanceScore: 0.8,
			Synthetic:      true,
		},
		SearchResult{
			URL:            "https://github.com/search?q=" + q + "&type=repositories",
			Title:          "GitHub: " + query,
			Snippet:        "Repositories related to " + query,
			RelevanceScore: 0.75,
			Synthetic:      true,
		},
	), nil
}
