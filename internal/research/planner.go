package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"github.com/mohammad-safakhou/researcher/provider"
	"go.uber.org/zap"
)

// ErrEmptyPlan is returned when a model plan carries no search queries.
var ErrEmptyPlan = errors.New("plan has no search queries")

type planner struct {
	llm         provider.TextGenerator
	useLLM      bool
	useFallback bool
	logger      *zap.Logger
}

// plan decomposes query. The deterministic planner covers a failed model
// call unless it is disabled, in which case the error is returned.
func (p *planner) plan(ctx context.Context, query string, now time.Time) (*Plan, error) {
	if !p.useLLM || p.llm == nil {
		return fallbackPlan(query, now), nil
	}
	resp, err := p.llm.GenerateText(ctx, planPrompt(query, now))
	if err == nil {
		var plan *Plan
		if plan, err = parsePlan(resp, query); err == nil {
			return plan, nil
		}
		err = fmt.Errorf("parse plan: %w", err)
	} else {
		err = fmt.Errorf("generate plan: %w", err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if !p.useFallback {
		return nil, err
	}
	p.logger.Warn("LLM planning failed, using fallback planner.", zap.Error(err))
	return fallbackPlan(query, now), nil
}

func planPrompt(query string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a research plan for the following query: '%s'\n\n", query)
	fmt.Fprintf(&b, "Today's date is %s.\n\n", now.Format("January 2, 2006"))
	b.WriteString("Analyze the query and return a JSON object with:\n")
	b.WriteString("1. main_topic: The main topic being researched\n")
	b.WriteString("2. category: Category (e.g., 'technical', 'academic', 'news', 'product', 'general')\n")
	b.WriteString("3. subtopics: Array of 3-5 specific subtopics to research\n")
	b.WriteString("4. search_queries: Array of at least 3 optimized search queries\n")
	b.WriteString("5. requires_browser: Boolean indicating if interactive browser is needed\n")
	b.WriteString("6. is_time_sensitive: Boolean indicating if the query asks about recent events\n\n")
	b.WriteString("If the query is time-sensitive, add recency qualifiers such as the current year, ")
	b.WriteString("'latest' or 'news' to the search queries and avoid encyclopedic sources.\n\n")
	b.WriteString("Format your response as JSON:\n")
	b.WriteString(`{
  "main_topic": "...",
  "category": "...",
  "subtopics": ["..."],
  "search_queries": ["..."],
  "requires_browser": false,
  "is_time_sensitive": false
}`)
	return b.String()
}

// parsePlan reads the plan object out of a model response.
func parsePlan(resp, query string) (*Plan, error) {
	raw, err := helpers.ExtractJSONObject(resp)
	if err != nil {
		return nil, err
	}
	var plan Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, err
	}
	queries := plan.SearchQueries[:0]
	for _, q := range plan.SearchQueries {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}
	plan.SearchQueries = queries
	if len(plan.SearchQueries) == 0 {
		return nil, ErrEmptyPlan
	}
	if strings.TrimSpace(plan.MainTopic) == "" {
		plan.MainTopic = query
	}
	if strings.TrimSpace(plan.Category) == "" {
		plan.Category = "general"
	}
	plan.Fallback = false
	return &plan, nil
}

var recencyWords = map[string]struct{}{
	"latest": {}, "new": {}, "recent": {}, "current": {}, "today": {},
}

var recencyPhrases = []string{"this week", "this month", "this year"}

// IsTimeSensitive classifies query by recency keywords or the current year.
func IsTimeSensitive(query string, now time.Time) bool {
	lower := strings.ToLower(query)
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if _, ok := recencyWords[w]; ok {
			return true
		}
	}
	for _, phrase := range recencyPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return strings.Contains(lower, strconv.Itoa(now.Year()))
}

// fallbackPlan is a pure function of query and the current date.
func fallbackPlan(query string, now time.Time) *Plan {
	query = strings.TrimSpace(query)
	lower := strings.ToLower(query)
	timeSensitive := IsTimeSensitive(query, now)
	year := strconv.Itoa(now.Year())

	plan := &Plan{
		MainTopic:       query,
		Category:        "general",
		Subtopics:       []string{query + " overview", query + " details", query + " examples"},
		RequiresBrowser: timeSensitive || strings.Contains(lower, "google") || strings.Contains(lower, "search"),
		IsTimeSensitive: timeSensitive,
		Fallback:        true,
	}
	if timeSensitive {
		plan.Category = "news"
		plan.SearchQueries = []string{
			query + " " + year + " -wikipedia",
			query + " latest news",
			query + " " + now.Month().String() + " " + year,
			query + " recent developments",
		}
		return plan
	}
	plan.SearchQueries = []string{
		query,
		query + " tutorial",
		query + " guide",
		query + " examples",
	}
	return plan
}
