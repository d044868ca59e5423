// Package readable turns fetched HTML into plain article text.
package readable

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/go-shiori/go-readability"
	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch/models"
	"golang.org/x/net/html"
)

// Content areas tried, in order, when readability finds no article.
var contentSelectors = []cascadia.Selector{
	cascadia.MustCompile("main"),
	cascadia.MustCompile("article"),
	cascadia.MustCompile("[role='main']"),
	cascadia.MustCompile(".content"),
	cascadia.MustCompile("#content"),
	cascadia.MustCompile(".post"),
	cascadia.MustCompile(".entry-content"),
	cascadia.MustCompile("body"),
}

var anchors = cascadia.MustCompile("a[href]")

const maxLinks = 500

// Extract runs readability over page and falls back to the text of the first
// matching content area. Text is whitespace-collapsed and cut to maxChars runes.
// Links holds the resolved anchor hrefs in document order.
func Extract(page, rawURL string, maxChars int) models.Page {
	sum := sha256.Sum256([]byte(page))
	res := models.Page{URL: rawURL, ContentHash: hex.EncodeToString(sum[:])}

	u, err := url.Parse(rawURL)
	if err != nil {
		u = &url.URL{}
	}
	doc, _ := html.Parse(strings.NewReader(page))
	res.Links = links(doc, u)
	if article, err := readability.FromReader(strings.NewReader(page), u); err == nil {
		res.Title = strings.TrimSpace(article.Title)
		res.Byline = strings.TrimSpace(article.Byline)
		res.SiteName = strings.TrimSpace(article.SiteName)
		res.Excerpt = collapse(article.Excerpt)
		res.Text = collapse(article.TextContent)
	}
	if res.Text == "" {
		res.Text = collapse(fallbackText(doc))
	}
	res.Text = helpers.Truncate(res.Text, maxChars)
	return res
}

func links(doc *html.Node, base *url.URL) []string {
	if doc == nil {
		return nil
	}
	var out []string
	for _, n := range anchors.MatchAll(doc) {
		if len(out) == maxLinks {
			break
		}
		for _, a := range n.Attr {
			if a.Key != "href" {
				continue
			}
			href := strings.TrimSpace(a.Val)
			if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
				break
			}
			if ref, err := url.Parse(href); err == nil {
				href = base.ResolveReference(ref).String()
			}
			out = append(out, href)
			break
		}
	}
	return out
}

func fallbackText(doc *html.Node) string {
	if doc == nil {
		return ""
	}
	for _, sel := range contentSelectors {
		if n := sel.MatchFirst(doc); n != nil {
			return nodeText(n)
		}
	}
	return nodeText(doc)
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
