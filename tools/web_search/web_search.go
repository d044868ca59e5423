package web_search

import (
	"context"
	"net/http"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/tools/web_search/brave"
	"github.com/mohammad-safakhou/researcher/tools/web_search/duckduckgo"
	"github.com/mohammad-safakhou/researcher/tools/web_search/models"
	"github.com/mohammad-safakhou/researcher/tools/web_search/serper"
)

// SearchResult is the shared result shape of every engine and strategy.
type SearchResult = models.Result

// Engine queries one search back end.
type Engine interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

type Provider string

const (
	DuckDuckGoProvider Provider = "duckduckgo"
	SerperProvider     Provider = "serper"
	BraveProvider      Provider = "brave"
)

var ErrUnsupportedProvider = &Error{"unsupported provider"}

// NewEngine builds the engine named by cfg.Provider; DuckDuckGo when empty.
func NewEngine(cfg config.SearchConfig, client *http.Client) (Engine, error) {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	switch Provider(cfg.Provider) {
	case "", DuckDuckGoProvider:
		return &duckduckgo.Search{Client: client, Endpoint: cfg.Endpoint, UserAgent: cfg.UserAgent}, nil
	case SerperProvider:
		return &serper.Search{APIKey: cfg.APIKey, Client: client, Endpoint: cfg.Endpoint}, nil
	case BraveProvider:
		return &brave.Search{APIKey: cfg.APIKey, Client: client, Endpoint: cfg.Endpoint}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
