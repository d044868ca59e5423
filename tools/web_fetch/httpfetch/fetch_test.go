package httpfetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articlePage = `<!doctype html><html><head><title>Gophers</title></head><body>
<nav>Home | About</nav>
<article><h1>All about gophers</h1>
<p>Gophers are burrowing rodents found across North America. They spend most of their lives underground,
building extensive tunnel systems that can stretch hundreds of feet.</p>
<p>The Go programming language adopted the gopher as its mascot, drawn by Renee French. The mascot appears
in talks, stickers and plush toys shared across the community.</p>
<p>Gopher tunnels aerate soil and mix nutrients, which makes the animals important to grassland ecosystems
even though farmers often consider them pests.</p>
</article>
<footer>Copyright</footer>
</body></html>`

func TestFetchReadableText(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, articlePage)
	}))
	defer srv.Close()

	f := New(5*time.Second, 20000, "researcher-test")
	text, err := f.FetchReadableText(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, text, "burrowing rodents")
	assert.NotContains(t, text, "\n")
	assert.Equal(t, "researcher-test", ua)

	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.Status)
	assert.Equal(t, "http", page.Renderer)
	assert.Len(t, page.ContentHash, 64)
	assert.Positive(t, page.Elapsed)
}

func TestFetchTruncatesToMaxChars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html><body><main>"+strings.Repeat("word ", 500)+"</main></body></html>")
	}))
	defer srv.Close()

	text, err := New(5*time.Second, 50, "").FetchReadableText(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(text)), 50)
}

func TestFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			fmt.Fprint(w, "<html><body><script>var x = 1;</script></body></html>")
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := New(5*time.Second, 100, "")
	page, err := f.Fetch(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "status 404")
	assert.Equal(t, http.StatusNotFound, page.Status)

	_, err = f.FetchReadableText(context.Background(), srv.URL+"/empty")
	assert.ErrorIs(t, err, ErrNoText)

	_, err = f.FetchReadableText(context.Background(), " ")
	assert.Error(t, err)
}
