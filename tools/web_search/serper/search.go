package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/mohammad-safakhou/researcher/tools/web_search/models"
)

const DefaultEndpoint = "https://google.serper.dev/search"

// Search queries the Serper Google search API.
type Search struct {
	APIKey   string
	Client   *http.Client
	Endpoint string
}

type request struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type response struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (s *Search) Search(ctx context.Context, q string, k int) ([]models.Result, error) {
	body, err := json.Marshal(request{Q: q, Num: k})
	if err != nil {
		return nil, err
	}
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	var raw response
	if err := models.DoJSON(s.Client, req, "serper", &raw); err != nil {
		return nil, err
	}
	hits := raw.Organic
	return models.Ranked(k, len(hits), func(i int) (string, string, string) {
		return hits[i].Title, hits[i].Link, hits[i].Snippet
	}), nil
}
