package domain

// RankedCandidate is one entry in the recommendation list, carrying the
// combined score and its contributing sub-scores. Output-only.
type RankedCandidate struct {
	// CanonicalID is the candidate paper identifier.
	CanonicalID string `json:"id"`

	// Combined is the weighted sum of graph proximity and semantic
	// similarity.
	Combined float64 `json:"combined_score"`

	// GraphScore is 1.0 for a direct citing/cited neighbor of the root,
	// 0 otherwise.
	GraphScore float64 `json:"graph_score"`

	// SemanticScore is the cosine similarity to the root paper's
	// embedding, normalized to [0,1]. Zero when the candidate could not
	// be embedded.
	SemanticScore float64 `json:"semantic_score"`

	// CitationCount is carried for tie-breaking and display.
	CitationCount int `json:"citation_count"`

	// Paper is the full candidate record.
	Paper *Paper `json:"-"`
}
