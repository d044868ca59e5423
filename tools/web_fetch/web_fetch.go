package web_fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/researcher/tools/web_fetch/chromedp"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch/httpfetch"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch/models"
)

const (
	DefaultTimeout  = 15 * time.Second
	MaxCharsDefault = 20000
)

// ContentExtractor returns the readable text of a page. Callers treat its
// errors as soft failures.
type ContentExtractor interface {
	FetchReadableText(ctx context.Context, url string) (string, error)
}

// WebFetcher also exposes the full page metadata.
type WebFetcher interface {
	ContentExtractor
	Fetch(ctx context.Context, url string) (models.Page, error)
}

var ErrUnsupportedFetcher = &Error{"unsupported fetcher type"}

type FetcherType string

const (
	HTTPFetcherType     FetcherType = "http"
	ChromedpFetcherType FetcherType = "chromedp"
)

func NewWebFetcher(fetcherType FetcherType, timeout time.Duration, maxChars int, userAgent string) (WebFetcher, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}

	switch fetcherType {
	case "", HTTPFetcherType:
		return httpfetch.New(timeout, maxChars, userAgent), nil
	case ChromedpFetcherType:
		return chromedp.Renderer{Timeout: timeout, MaxChars: maxChars, UserAgent: userAgent}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedFetcher, fetcherType)
	}
}
