package models

// Result is one search hit. RelevanceScore is rank-derived and only
// comparable within a single search call.
type Result struct {
	URL            string  `json:"url"`
	Title          string  `json:"title"`
	Snippet        string  `json:"snippet"`
	RelevanceScore float64 `json:"relevance_score"`
	// Synthetic marks results made up by a fallback strategy rather than
	// returned by an engine.
	Synthetic bool `json:"synthetic,omitempty"`
}

// RankScore is the relevance assigned to the hit at zero-based rank.
func RankScore(rank int) float64 {
	return 1.0 - 0.05*float64(rank)
}
