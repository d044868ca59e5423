package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"github.com/mohammad-safakhou/researcher/provider"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch"
	"golang.org/x/sync/errgroup"
)

// noRelevantContent is the model's answer when a page has nothing useful.
const noRelevantContent = "NO_RELEVANT_CONTENT"

var errEmptyPage = errors.New("page has no readable text")

// scraped is the outcome for one search hit.
type scraped struct {
	hit    SearchResult
	result ResearchResult
	err    error // fetch failure; the hit yields no result
	// extractErr is set when content fell back to a raw excerpt.
	extractErr error
}

type scraper struct {
	extractor    web_fetch.ContentExtractor
	llm          provider.TextGenerator
	maxChars     int
	excerptChars int
	concurrency  int
	now          func() time.Time
}

// scrapeSubtask fetches hits with up to concurrency workers and hands the
// outcomes to emit strictly in hit order. An emit error stops delivery.
func (s *scraper) scrapeSubtask(ctx context.Context, st ResearchSubtask, hits []SearchResult, emit func(index int, sc scraped) error) error {
	slots := make([]chan scraped, len(hits))
	for i := range slots {
		slots[i] = make(chan scraped, 1)
	}
	workCtx, cancel := context.WithCancel(ctx)

	var g errgroup.Group
	g.SetLimit(max(s.concurrency, 1))
	fed := make(chan struct{})
	go func() {
		defer close(fed)
		for i, hit := range hits {
			g.Go(func() error {
				slots[i] <- s.scrapeOne(workCtx, st, hit)
				return nil
			})
		}
		_ = g.Wait()
	}()
	defer func() {
		cancel()
		<-fed
	}()

	for i := range hits {
		var sc scraped
		select {
		case sc = <-slots[i]:
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := emit(i, sc); err != nil {
			return err
		}
	}
	return nil
}

func (s *scraper) scrapeOne(ctx context.Context, st ResearchSubtask, hit SearchResult) scraped {
	out := scraped{hit: hit}
	text, err := s.extractor.FetchReadableText(ctx, hit.URL)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errEmptyPage
	}
	if err != nil {
		out.err = fmt.Errorf("fetch %s: %w", hit.URL, err)
		return out
	}
	content, extractErr := s.extract(ctx, text, st.Query)
	out.extractErr = extractErr
	out.result = ResearchResult{
		ID:             uuid.NewString(),
		SubtaskID:      st.ID,
		URL:            hit.URL,
		Title:          hit.Title,
		Content:        content,
		RelevanceScore: hit.RelevanceScore,
		ScrapedAt:      s.now(),
		Excerpt:        extractErr != nil,
	}
	return out
}

// extract asks the model for the part of text relevant to query, falling
// back to a raw excerpt.
func (s *scraper) extract(ctx context.Context, text, query string) (string, error) {
	excerpt := helpers.Truncate(text, s.excerptChars)
	if s.llm == nil {
		return excerpt, errors.New("no language model configured")
	}
	resp, err := s.llm.GenerateText(ctx, extractionPrompt(helpers.Truncate(text, s.maxChars), query))
	if err != nil {
		return excerpt, err
	}
	resp = strings.TrimSpace(resp)
	if resp == "" || strings.Contains(resp, noRelevantContent) {
		return excerpt, errors.New("model found no relevant content")
	}
	return resp, nil
}

func extractionPrompt(content, query string) string {
	return fmt.Sprintf("Extract the most relevant information from the following content for the query: '%s'\n\n"+
		"Content:\n%s\n\n"+
		"Extract and summarize only the parts directly relevant to the query. "+
		"Keep important details, facts, and examples. Limit to 500 words. "+
		"If nothing in the content is relevant, answer exactly %s.", query, content, noRelevantContent)
}
