package helpers

import (
	"fmt"
	"strings"
	"time"
)

// Citation is one source referenced by a research answer.
type Citation struct {
	Index    int
	Title    string
	URL      string
	Snippet  string
	Accessed time.Time
	Excerpt  bool // snippet is raw page text rather than an extraction
}

type citationConfig struct {
	maxSnippet int
}

// CitationOption configures citation formatting.
type CitationOption func(*citationConfig)

// WithMaxSnippetLength truncates snippets to n runes (default 180).
func WithMaxSnippetLength(n int) CitationOption {
	return func(cfg *citationConfig) {
		if n > 0 {
			cfg.maxSnippet = n
		}
	}
}

// FormatCitation renders a citation as
// [n] Title: "Snippet" (domain, retrieved YYYY-MM-DD) <URL>
func FormatCitation(c Citation, opts ...CitationOption) string {
	cfg := citationConfig{maxSnippet: 180}
	for _, opt := range opts {
		opt(&cfg)
	}

	var b strings.Builder
	if c.Index > 0 {
		fmt.Fprintf(&b, "[%d]", c.Index)
	} else {
		b.WriteString("[source]")
	}
	title := CleanText(c.Title)
	if title != "" {
		b.WriteString(" " + title)
	}
	if snippet := formatSnippet(c.Snippet, cfg.maxSnippet); snippet != "" {
		if title != "" {
			b.WriteString(":")
		}
		b.WriteString(" " + snippet)
	}

	var meta []string
	if domain := RegistrableDomain(c.URL); domain != "" {
		meta = append(meta, domain)
	}
	if !c.Accessed.IsZero() {
		meta = append(meta, "retrieved "+c.Accessed.Format("2006-01-02"))
	}
	if c.Excerpt {
		meta = append(meta, "excerpt")
	}
	if len(meta) > 0 {
		b.WriteString(" (" + strings.Join(meta, ", ") + ")")
	}
	if link := strings.TrimSpace(c.URL); link != "" {
		b.WriteString(" <" + link + ">")
	}
	return b.String()
}

// FormatCitations renders citations in order.
func FormatCitations(citations []Citation, opts ...CitationOption) []string {
	if len(citations) == 0 {
		return nil
	}
	out := make([]string, 0, len(citations))
	for _, c := range citations {
		out = append(out, FormatCitation(c, opts...))
	}
	return out
}

func formatSnippet(snippet string, limit int) string {
	snippet = strings.Join(strings.Fields(snippet), " ")
	if snippet == "" {
		return ""
	}
	return `"` + strings.Trim(Ellipsize(snippet, limit), `"`) + `"`
}
