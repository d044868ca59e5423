package duckduckgo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/mohammad-safakhou/researcher/tools/web_search/models"
	"golang.org/x/net/html"
)

const (
	DefaultEndpoint = "https://html.duckduckgo.com/html/"
	maxBody         = 1 << 20
	maxResults      = 10
	redirectPrefix  = "//duckduckgo.com/l/?uddg="
)

var (
	resultSel  = cascadia.MustCompile(".result")
	titleSel   = cascadia.MustCompile("a.result__a")
	snippetSel = cascadia.MustCompile(".result__snippet")
)

// Search scrapes the DuckDuckGo HTML endpoint.
type Search struct {
	Client    *http.Client
	Endpoint  string
	UserAgent string
}

func (s *Search) Search(ctx context.Context, q string, k int) ([]models.Result, error) {
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?q="+url.QueryEscape(q), nil)
	if err != nil {
		return nil, err
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo returned status %d", resp.StatusCode)
	}
	doc, err := html.Parse(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("parse duckduckgo markup: %w", err)
	}
	return parseResults(doc, k), nil
}

// parseResults reads up to min(k, 10) result blocks. Ranks follow block
// position, so blocks without a link still consume a rank.
func parseResults(doc *html.Node, k int) []models.Result {
	if k <= 0 || k > maxResults {
		k = maxResults
	}
	var out []models.Result
	for i, block := range resultSel.MatchAll(doc) {
		if i >= maxResults || len(out) >= k {
			break
		}
		link := titleSel.MatchFirst(block)
		if link == nil {
			continue
		}
		title := strings.TrimSpace(textContent(link))
		href := unwrapRedirect(attr(link, "href"))
		if title == "" || href == "" {
			continue
		}
		var snippet string
		if sn := snippetSel.MatchFirst(block); sn != nil {
			snippet = strings.TrimSpace(textContent(sn))
		}
		out = append(out, models.Result{
			URL:            href,
			Title:          title,
			Snippet:        snippet,
			RelevanceScore: models.RankScore(i),
		})
	}
	return out
}

// unwrapRedirect turns //duckduckgo.com/l/?uddg=<escaped>&rut=... into the
// target URL and gives schemeless links an https scheme.
func unwrapRedirect(href string) string {
	href = strings.TrimSpace(href)
	if rest, ok := strings.CutPrefix(href, "https:"); ok && strings.HasPrefix(rest, redirectPrefix) {
		href = rest
	}
	if target, ok := strings.CutPrefix(href, redirectPrefix); ok {
		target, _, _ = strings.Cut(target, "&rut=")
		if decoded, err := url.QueryUnescape(target); err == nil {
			target = decoded
		}
		href = target
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	return href
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
