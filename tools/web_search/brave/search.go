package brave

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mohammad-safakhou/researcher/tools/web_search/models"
)

const DefaultEndpoint = "https://api.search.brave.com/res/v1/web/search"

// Search queries the Brave web search API.
type Search struct {
	APIKey   string
	Client   *http.Client
	Endpoint string
}

type response struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (s *Search) Search(ctx context.Context, q string, k int) ([]models.Result, error) {
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	params := url.Values{"q": {q}, "count": {strconv.Itoa(k)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Subscription-Token", s.APIKey)

	var raw response
	if err := models.DoJSON(s.Client, req, "brave", &raw); err != nil {
		return nil, err
	}
	hits := raw.Web.Results
	return models.Ranked(k, len(hits), func(i int) (string, string, string) {
		return hits[i].Title, hits[i].URL, hits[i].Description
	}), nil
}
