// Package models holds the page type shared by the fetch backends.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Renderer names the backend that produced a Page.
const (
	RendererHTTP     = "http"
	RendererChromedp = "chromedp"
)

// StatusUnreachable marks a page whose transport or render step failed.
const StatusUnreachable = 599

// ErrNoText is returned when a page yields no readable text.
var ErrNoText = errors.New("no readable text")

type Page struct {
	URL         string        `json:"url"`
	Title       string        `json:"title,omitempty"`
	Byline      string        `json:"byline,omitempty"`
	SiteName    string        `json:"site_name,omitempty"`
	Excerpt     string        `json:"excerpt,omitempty"`
	Text        string        `json:"text"`
	Links       []string      `json:"links,omitempty"`
	ContentHash string        `json:"content_hash,omitempty"`
	Status      int           `json:"status"`
	Renderer    string        `json:"renderer"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Readable returns the page text, or ErrNoText when extraction found none.
func (p Page) Readable() (string, error) {
	if p.Text == "" {
		return "", fmt.Errorf("%s: %w", p.URL, ErrNoText)
	}
	return p.Text, nil
}
