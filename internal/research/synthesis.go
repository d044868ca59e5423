package research

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"github.com/mohammad-safakhou/researcher/provider"
)

const summaryExcerptChars = 200

// synthesize asks the model for a conclusion. The returned error is non-nil
// whenever the templated summary was used instead.
func synthesize(ctx context.Context, llm provider.TextGenerator, task *ResearchTask) (string, error) {
	if llm == nil {
		return fallbackSummary(task.Query, task.Results), errors.New("no language model configured")
	}
	if len(task.Results) == 0 {
		return fallbackSummary(task.Query, task.Results), errors.New("no results to synthesize")
	}
	resp, err := llm.GenerateText(ctx, synthesisPrompt(task))
	if err == nil && strings.TrimSpace(resp) == "" {
		err = errors.New("empty synthesis")
	}
	if err != nil {
		return fallbackSummary(task.Query, task.Results), err
	}
	return strings.TrimSpace(resp), nil
}

func synthesisPrompt(task *ResearchTask) string {
	var doc strings.Builder
	if task.Plan != nil {
		fmt.Fprintf(&doc, "Research Topic: %s\n", task.Plan.MainTopic)
		fmt.Fprintf(&doc, "Category: %s\n\n", task.Plan.Category)
	}
	for _, r := range task.Results {
		fmt.Fprintf(&doc, "Source: %s\nURL: %s\nContent: %s\n\n", r.Title, r.URL, r.Content)
	}
	return fmt.Sprintf("Synthesize the following research results into a comprehensive conclusion:\n\n%s\n"+
		"Provide a well-structured summary that:\n"+
		"1. Answers the original query: '%s'\n"+
		"2. Highlights key findings and insights\n"+
		"3. Provides actionable recommendations if applicable\n"+
		"4. Notes any gaps or areas needing further research", doc.String(), task.Query)
}

// fallbackSummary lists every result with a short excerpt.
func fallbackSummary(query string, results []ResearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research Summary for: %s\n\nBased on %d sources found:\n\n", query, len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s - %s\n%s\n\n", i+1, r.Title, r.URL, helpers.Truncate(r.Content, summaryExcerptChars))
	}
	return b.String()
}
