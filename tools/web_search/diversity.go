package web_search

import "github.com/mohammad-safakhou/researcher/internal/helpers"

// FilterDiverse keeps results in rank order, dropping any whose registrable
// domain was already kept. Unparseable URLs are dropped.
func FilterDiverse(results []SearchResult) []SearchResult {
	seen := make(map[string]struct{}, len(results))
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		domain := helpers.RegistrableDomain(r.URL)
		if domain == "" {
			continue
		}
		if _, dup := seen[domain]; dup {
			continue
		}
		seen[domain] = struct{}{}
		out = append(out, r)
	}
	return out
}
