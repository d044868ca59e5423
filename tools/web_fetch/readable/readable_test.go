package readable

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func parse(t *testing.T, page string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(page))
	require.NoError(t, err)
	return doc
}

func TestFallbackPrefersContentAreas(t *testing.T) {
	page := `<html><body><div>menu</div><main>  Main   text here  </main><script>ignored()</script></body></html>`
	assert.Equal(t, "Main text here", collapse(fallbackText(parse(t, page))))
}

func TestFallbackSkipsScripts(t *testing.T) {
	page := `<html><body>visible<script>hidden()</script><style>.x{}</style></body></html>`
	assert.Equal(t, "visible", collapse(fallbackText(parse(t, page))))
}

func TestExtractHashesAndTruncates(t *testing.T) {
	res := Extract(`<html><body><main>abcdefghij</main></body></html>`, "https://example.com/a", 4)
	assert.Equal(t, "https://example.com/a", res.URL)
	assert.Len(t, res.ContentHash, 64)
	assert.LessOrEqual(t, len([]rune(res.Text)), 4)
}

func TestExtractCollectsLinks(t *testing.T) {
	page := `<html><body><main>
		<a href="https://stackoverflow.com/questions/1">first</a>
		<a href="/url?q=https://docs.rs/tokio">relative</a>
		<a href="#top">anchor</a>
		<a href="javascript:void(0)">script</a>
		<a>no href</a>
	</main></body></html>`
	res := Extract(page, "https://www.google.com/search?q=tokio", 100)
	assert.Equal(t, []string{
		"https://stackoverflow.com/questions/1",
		"https://www.google.com/url?q=https://docs.rs/tokio",
	}, res.Links)
}
