package models

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// DoJSON sends req and decodes a 200 response body into dst. Errors name the
// engine so the searcher can report which back end failed.
func DoJSON(client *http.Client, req *http.Request, engine string, dst any) error {
	if client == nil {
		client = http.DefaultClient
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", engine, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%s returned status %d", engine, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s response: %w", engine, err)
	}
	return nil
}

// Ranked converts the first limit hits into results scored by position.
// Hits without a URL are skipped without consuming a rank.
func Ranked(limit int, n int, hit func(i int) (title, url, snippet string)) []Result {
	var out []Result
	for i := 0; i < n && len(out) < limit; i++ {
		title, url, snippet := hit(i)
		if url == "" {
			continue
		}
		out = append(out, Result{Title: title, URL: url, Snippet: snippet, RelevanceScore: RankScore(len(out))})
	}
	return out
}
