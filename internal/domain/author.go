package domain

// AuthorRecord is a provider's metadata entry for an author, including
// publication and citation statistics.
type AuthorRecord struct {
	ID           string
	Name         string
	ORCID        string
	Affiliations []string
	WorksCount   int
	CitedByCount int
	HIndex       int
	I10Index     int
	Concepts     []string
	RecentPapers []*Paper
}

// AuthorProfile is the per-author result of an analysis request: resolved
// statistics plus the disambiguation outcome. Lifetime is one request.
type AuthorProfile struct {
	Name          string   `json:"name"`
	Affiliations  []string `json:"affiliations,omitempty"`
	ORCID         string   `json:"orcid,omitempty"`
	PaperCount    int      `json:"paper_count"`
	CitationCount int      `json:"citation_count"`
	HIndex        int      `json:"h_index"`
	I10Index      int      `json:"i10_index"`
	Interests     []string `json:"interests,omitempty"`
	RecentPapers  []*Paper `json:"-"`

	// Namesake marks a profile that shares a normalized name with another
	// profile but has no overlapping affiliation, so it was kept as a
	// distinct person rather than merged.
	Namesake bool `json:"namesake,omitempty"`

	// Resolved is false when the provider lookup failed; the profile then
	// carries only the input name.
	Resolved bool `json:"resolved"`

	// FailureReason is set when Resolved is false.
	FailureReason string `json:"failure_reason,omitempty"`
}

// TeamStats aggregates impact metrics across the distinct members of an
// author group. A reference shared by co-authors is never double-counted
// because sums run over distinct profiles, not per-paper contributions.
type TeamStats struct {
	TotalPapers             int            `json:"total_papers"`
	TotalCitations          int            `json:"total_citations"`
	AvgHIndex               float64        `json:"avg_h_index"`
	InstitutionDistribution map[string]int `json:"institution_distribution,omitempty"`
}
