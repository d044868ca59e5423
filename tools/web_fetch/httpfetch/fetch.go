// Package httpfetch downloads pages over plain HTTP and extracts readable text.
package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/researcher/tools/web_fetch/models"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch/readable"
)

const maxBody = 5 << 20

// ErrNoText is returned when a page yields no readable text.
var ErrNoText = models.ErrNoText

type Fetcher struct {
	client    *http.Client
	maxChars  int
	userAgent string
}

func New(timeout time.Duration, maxChars int, userAgent string) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		maxChars:  maxChars,
		userAgent: userAgent,
	}
}

// Fetch downloads url and extracts its article text. Non-2xx responses are
// errors; the returned Page still carries the status.
func (f *Fetcher) Fetch(ctx context.Context, url string) (page models.Page, err error) {
	page = models.Page{URL: url, Renderer: models.RendererHTTP}
	if strings.TrimSpace(url) == "" {
		return page, errors.New("invalid url")
	}
	start := time.Now()
	defer func() { page.Elapsed = time.Since(start) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return page, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		page.Status = models.StatusUnreachable
		return page, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	page.Status = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return page, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return page, fmt.Errorf("read %s: %w", url, err)
	}

	extracted := readable.Extract(string(body), url, f.maxChars)
	extracted.Renderer = models.RendererHTTP
	extracted.Status = resp.StatusCode
	page = extracted
	return page, nil
}

// FetchReadableText returns the page text, failing when there is none.
func (f *Fetcher) FetchReadableText(ctx context.Context, url string) (string, error) {
	page, err := f.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	return page.Readable()
}
