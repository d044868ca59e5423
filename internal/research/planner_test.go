package research

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const rawPlan = `{"main_topic":"Go generics","category":"technical","subtopics":["syntax"],` +
	`"search_queries":["go generics tutorial","go type parameters","go constraints package"],` +
	`"requires_browser":false,"is_time_sensitive":false}`

func TestParsePlanIgnoresFencesAndProse(t *testing.T) {
	want, err := parsePlan(rawPlan, "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"go generics tutorial", "go type parameters", "go constraints package"}, want.SearchQueries)

	for name, resp := range map[string]string{
		"json fence":  "Here is the plan:\n```json\n" + rawPlan + "\n```\nGood luck!",
		"plain fence": "```\n" + rawPlan + "\n```",
		"prose":       "Sure. " + rawPlan + " Let me know.",
	} {
		got, err := parsePlan(resp, "q")
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
}

func TestParsePlanRejectsBrokenResponses(t *testing.T) {
	for name, resp := range map[string]string{
		"no braces":     "I cannot help with that.",
		"unbalanced":    `{"main_topic": "x", "search_queries": ["a"]`,
		"invalid json":  `{"main_topic": }`,
		"no queries":    `{"main_topic": "x", "search_queries": []}`,
		"blank queries": `{"main_topic": "x", "search_queries": ["  ", ""]}`,
	} {
		_, err := parsePlan(resp, "q")
		assert.Error(t, err, name)
	}
	_, err := parsePlan(`{"search_queries": []}`, "q")
	assert.ErrorIs(t, err, ErrEmptyPlan)
}

func TestParsePlanFillsDefaults(t *testing.T) {
	plan, err := parsePlan(`{"search_queries":[" a "]}`, "original query")
	require.NoError(t, err)
	assert.Equal(t, "original query", plan.MainTopic)
	assert.Equal(t, "general", plan.Category)
	assert.Equal(t, []string{"a"}, plan.SearchQueries)
}

func TestIsTimeSensitive(t *testing.T) {
	now := time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		query string
		want  bool
	}{
		{"latest rust release", true},
		{"What's new in Go", true},
		{"recent advances in batteries", true},
		{"current interest rates", true},
		{"weather today", true},
		{"AI news this week", true},
		{"elections 2026", true},
		{"elections 2024", false},
		{"newton's laws", false},
		{"Rust programming language tutorial", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTimeSensitive(tt.query, now), tt.query)
	}
}

func TestFallbackPlanIsDeterministic(t *testing.T) {
	now := time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)

	generic := fallbackPlan("Rust programming language tutorial", now)
	assert.Equal(t, generic, fallbackPlan("Rust programming language tutorial", now))
	assert.Equal(t, []string{
		"Rust programming language tutorial",
		"Rust programming language tutorial tutorial",
		"Rust programming language tutorial guide",
		"Rust programming language tutorial examples",
	}, generic.SearchQueries)
	assert.False(t, generic.IsTimeSensitive)
	assert.False(t, generic.RequiresBrowser)
	assert.True(t, generic.Fallback)

	recent := fallbackPlan("latest AI chips", now)
	assert.Equal(t, recent, fallbackPlan("latest AI chips", now))
	assert.Equal(t, []string{
		"latest AI chips 2026 -wikipedia",
		"latest AI chips latest news",
		"latest AI chips March 2026",
		"latest AI chips recent developments",
	}, recent.SearchQueries)
	assert.True(t, recent.IsTimeSensitive)
	assert.True(t, recent.RequiresBrowser)
	assert.Equal(t, "news", recent.Category)

	search := fallbackPlan("google search operators", now)
	assert.False(t, search.IsTimeSensitive)
	assert.True(t, search.RequiresBrowser)
	assert.Len(t, search.SearchQueries, 4)
}

func TestPlannerFallsBackOnModelFailure(t *testing.T) {
	now := time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)
	p := &planner{
		llm:         llmFunc(func(context.Context, string) (string, error) { return "no json here", nil }),
		useLLM:      true,
		useFallback: true,
		logger:      zap.NewNop(),
	}
	plan, err := p.plan(context.Background(), "go generics", now)
	require.NoError(t, err)
	assert.True(t, plan.Fallback)
	assert.Equal(t, fallbackPlan("go generics", now), plan)

	p.useFallback = false
	_, err = p.plan(context.Background(), "go generics", now)
	assert.ErrorIs(t, err, helpers.ErrNoJSONObject)
}

func TestPlannerUsesModelPlan(t *testing.T) {
	now := time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)
	var prompt string
	p := &planner{
		llm: llmFunc(func(_ context.Context, pr string) (string, error) {
			prompt = pr
			return "```json\n" + rawPlan + "\n```", nil
		}),
		useLLM: true,
		logger: zap.NewNop(),
	}
	plan, err := p.plan(context.Background(), "go generics", now)
	require.NoError(t, err)
	assert.False(t, plan.Fallback)
	assert.Len(t, plan.SearchQueries, 3)
	assert.Contains(t, prompt, "'go generics'")
	assert.Contains(t, prompt, "March 14, 2026")
	assert.Contains(t, prompt, "is_time_sensitive")
}

func TestPlannerReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &planner{
		llm:         llmFunc(func(context.Context, string) (string, error) { return "", errors.New("unreachable") }),
		useLLM:      true,
		useFallback: true,
		logger:      zap.NewNop(),
	}
	_, err := p.plan(ctx, "q", time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlannerSkipsModelWhenDisabled(t *testing.T) {
	p := &planner{
		llm: llmFunc(func(context.Context, string) (string, error) {
			t.Fatal("model must not be called")
			return "", nil
		}),
		useLLM: false,
		logger: zap.NewNop(),
	}
	plan, err := p.plan(context.Background(), "q", time.Now())
	require.NoError(t, err)
	assert.True(t, plan.Fallback)
}
