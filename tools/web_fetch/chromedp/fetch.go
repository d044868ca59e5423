// Package chromedp renders pages in a throwaway headless Chrome before
// extracting readable text.
package chromedp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch/models"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch/readable"
)

const defaultWaitSelector = "body"

type Renderer struct {
	Timeout   time.Duration
	MaxChars  int
	UserAgent string
	// WaitSelector must be ready before the DOM is captured; defaults to body.
	WaitSelector string
}

func (r Renderer) Fetch(ctx context.Context, url string) (page models.Page, err error) {
	page = models.Page{URL: url, Renderer: models.RendererChromedp}
	if strings.TrimSpace(url) == "" {
		return page, errors.New("invalid url")
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	start := time.Now()
	defer func() { page.Elapsed = time.Since(start) }()

	doc, err := r.render(ctx, url)
	if err != nil {
		page.Status = models.StatusUnreachable
		return page, fmt.Errorf("render %s: %w", url, err)
	}
	page = readable.Extract(doc, url, r.MaxChars)
	page.Renderer = models.RendererChromedp
	page.Status = 200
	return page, nil
}

// FetchReadableText renders the page and returns its readable text.
func (r Renderer) FetchReadableText(ctx context.Context, url string) (string, error) {
	page, err := r.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	return page.Readable()
}

func (r Renderer) render(ctx context.Context, url string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", true))
	if r.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(r.UserAgent))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	wait := r.WaitSelector
	if wait == "" {
		wait = defaultWaitSelector
	}
	var doc string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(wait, chromedp.ByQuery),
		chromedp.OuterHTML("html", &doc, chromedp.ByQuery),
	)
	return doc, err
}
