package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/researcher/internal/queue/streams"
	"github.com/mohammad-safakhou/researcher/internal/research"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribeEnvelope(t *testing.T) {
	at := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	data, err := json.Marshal(research.ResultEvent{TaskID: "t1", Result: research.ResearchResult{URL: "https://go.dev/"}})
	require.NoError(t, err)
	got := describe(streams.Envelope{EventID: "e1", EventType: streams.EventResearchResult, OccurredAt: at, Data: data})
	assert.Equal(t, "2026-10-19T09:30:00Z result   t1 https://go.dev/", got)

	data, err = json.Marshal(research.ProgressEvent{TaskID: "t1", Status: research.StatusSearching, Percentage: 30, CurrentOperation: "Searching"})
	require.NoError(t, err)
	got = describe(streams.Envelope{EventType: streams.EventResearchProgress, OccurredAt: at, Data: data})
	assert.Equal(t, "2026-10-19T09:30:00Z progress t1 searching 30% Searching", got)

	got = describe(streams.Envelope{EventID: "e9", EventType: "other", OccurredAt: at})
	assert.Equal(t, "2026-10-19T09:30:00Z other e9", got)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &research.ResearchTask{
		Status:     research.StatusCompleted,
		Degraded:   true,
		Warnings:   []string{"no results gathered"},
		Conclusion: "Nothing conclusive.",
		Results: []research.ResearchResult{
			{Title: "Go", URL: "https://go.dev/", Content: "The Go programming language.", ScrapedAt: time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)},
		},
	})
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\nStatus: completed (degraded)\n"))
	assert.Contains(t, out, "Warning: no results gathered\n")
	assert.Contains(t, out, "\nNothing conclusive.\n")
	assert.Contains(t, out, `[1] Go: "The Go programming language." (go.dev, retrieved 2026-10-19) <https://go.dev/>`)
}

func TestEventPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := eventPrinter{w: &buf}
	p.progress(research.ProgressEvent{Percentage: 30, PhaseLabel: "Searching", CurrentOperation: "Searching: go"})
	p.progress(research.ProgressEvent{Percentage: 40})
	p.result(research.ResultEvent{Result: research.ResearchResult{Title: "Go", URL: "https://go.dev/"}})
	assert.Equal(t, "[ 30%] Searching  Searching: go\n       found   Go (https://go.dev/)\n", buf.String())

	eventPrinter{}.progress(research.ProgressEvent{CurrentOperation: "ignored"})
}
