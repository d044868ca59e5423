package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const formPage = `<!doctype html>
<html><head><title>Form</title></head>
<body>
  <input id="q" name="q" type="text" placeholder="Search">
  <select id="s" name="s"><option value="a">A</option><option value="b">B</option></select>
  <button id="go" onclick="document.title='clicked:'+document.getElementById('q').value+':'+document.getElementById('s').value">Go</button>
  <a href="#hidden" style="display:none">hidden</a>
  <script>console.log('ready')</script>
</body></html>`

// Runs against a locally installed Chrome when RESEARCHER_BROWSER_TESTS=1.
func TestSessionAgainstRealBrowser(t *testing.T) {
	if os.Getenv("RESEARCHER_BROWSER_TESTS") == "" {
		t.Skip("set RESEARCHER_BROWSER_TESTS=1 to drive a real browser")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, formPage)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg := config.BrowserConfig{SettleDelay: 100 * time.Millisecond}
	err := WithSession(ctx, cfg, LaunchOptions{Headless: true}, zaptest.NewLogger(t), func(s *Session) error {
		require.NotEmpty(t, s.ProfileDir())
		require.NoError(t, s.Navigate(ctx, srv.URL))
		require.NoError(t, s.WaitForSelector(ctx, "#go", 5*time.Second))

		state, err := s.GetPageState(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, "Form", state.Title)
		require.Len(t, state.InteractiveElements, 3)
		// Ordinals follow the selector list, then document order.
		assert.Equal(t, "button", state.InteractiveElements[0].Tag)
		assert.Equal(t, "input", state.InteractiveElements[1].Tag)
		assert.Equal(t, "select", state.InteractiveElements[2].Tag)
		assert.NotEmpty(t, state.Screenshot)

		require.NoError(t, s.TypeText(ctx, 1, "gopher", 0))
		require.NoError(t, s.SelectOption(ctx, 2, "b"))
		require.NoError(t, s.ClickElement(ctx, 0))

		raw, err := s.EvaluateScript(ctx, "document.title")
		require.NoError(t, err)
		var title string
		require.NoError(t, json.Unmarshal(raw, &title))
		assert.Equal(t, "clicked:gopher:b", title)

		assert.ErrorIs(t, s.ClickElement(ctx, 99), ErrElementNotFound)
		assert.ErrorIs(t, s.WaitForSelector(ctx, "#never", 300*time.Millisecond), ErrTimeout)
		return nil
	})
	require.NoError(t, err)
}

func TestNavigateWaitThenSettle(t *testing.T) {
	if os.Getenv("RESEARCHER_BROWSER_TESTS") == "" {
		t.Skip("set RESEARCHER_BROWSER_TESTS=1 to drive a real browser")
	}
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/stall.png" {
			select {
			case <-release:
			case <-r.Context().Done():
			}
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<!doctype html><title>Stalled</title><img src="/stall.png">`)
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg := config.BrowserConfig{NavigationTimeout: 300 * time.Millisecond, SettleDelay: time.Second}
	err := WithSession(ctx, cfg, LaunchOptions{Headless: true}, zaptest.NewLogger(t), func(s *Session) error {
		started := time.Now()
		require.NoError(t, s.Navigate(ctx, srv.URL))
		elapsed := time.Since(started)
		// Load wait is bounded by the navigation timeout alone; the settle
		// delay follows it.
		assert.GreaterOrEqual(t, elapsed, cfg.NavigationTimeout+cfg.SettleDelay)
		assert.Less(t, elapsed, cfg.NavigationTimeout+2*cfg.SettleDelay)
		return nil
	})
	require.NoError(t, err)
}
