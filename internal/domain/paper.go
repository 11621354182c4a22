// Package domain provides domain models and business logic for the paper analysis service.
package domain

import (
	"strings"
)

// SourceType represents the metadata provider that supplied paper data.
type SourceType string

const (
	SourceTypeOpenAlex        SourceType = "openalex"
	SourceTypeSemanticScholar SourceType = "semantic_scholar"
)

// PaperIdentifiers holds all possible identifiers for an academic paper.
type PaperIdentifiers struct {
	DOI               string
	ArXivID           string
	PubMedID          string
	PMCID             string
	SemanticScholarID string
	OpenAlexID        string
}

// GenerateCanonicalID generates a canonical identifier from paper identifiers.
// Priority order: DOI > ArXiv > PubMed > SemanticScholar > OpenAlex
// Returns empty string if no identifiers are available.
func GenerateCanonicalID(ids PaperIdentifiers) string {
	// Check DOI first (highest priority)
	if doi := strings.TrimSpace(ids.DOI); doi != "" {
		// Normalize DOI to lowercase
		return "doi:" + strings.ToLower(doi)
	}

	// ArXiv ID
	if arxiv := strings.TrimSpace(ids.ArXivID); arxiv != "" {
		return "arxiv:" + arxiv
	}

	// PubMed ID
	if pubmed := strings.TrimSpace(ids.PubMedID); pubmed != "" {
		return "pubmed:" + pubmed
	}

	// Semantic Scholar ID
	if s2 := strings.TrimSpace(ids.SemanticScholarID); s2 != "" {
		return "s2:" + s2
	}

	// OpenAlex ID (lowest priority)
	if openalex := strings.TrimSpace(ids.OpenAlexID); openalex != "" {
		return "openalex:" + openalex
	}

	// No identifier available
	return ""
}

// Author represents a paper author with optional affiliation and ORCID.
type Author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	ORCID       string `json:"orcid,omitempty"`
}

// String returns a formatted string representation of the author.
func (a Author) String() string {
	var sb strings.Builder
	sb.WriteString(a.Name)

	if a.Affiliation != "" {
		sb.WriteString(" (")
		sb.WriteString(a.Affiliation)
		sb.WriteString(")")
	}

	if a.ORCID != "" {
		sb.WriteString(" [")
		sb.WriteString(a.ORCID)
		sb.WriteString("]")
	}

	return sb.String()
}

// Paper is a candidate metadata record for an academic paper, keyed by its
// canonical external identifier. Papers are immutable after creation; when
// two providers report the same identifier the later record wins.
type Paper struct {
	CanonicalID     string                 `json:"id"`
	Title           string                 `json:"title"`
	Abstract        string                 `json:"abstract,omitempty"`
	Authors         []Author               `json:"authors,omitempty"`
	PublicationYear int                    `json:"year,omitempty"`
	Venue           string                 `json:"venue,omitempty"`
	Journal         string                 `json:"journal,omitempty"`
	CitationCount   int                    `json:"citation_count"`
	ReferenceCount  int                    `json:"reference_count,omitempty"`
	URL             string                 `json:"url,omitempty"`
	OpenAccess      bool                   `json:"open_access,omitempty"`
	Source          SourceType             `json:"source,omitempty"`
	RawMetadata     map[string]interface{} `json:"-"`
}

// HasIdentifier returns true if the paper has at least one identifier.
func (p *Paper) HasIdentifier() bool {
	return p.CanonicalID != ""
}

// EmbeddingText returns the text used for semantic embedding: title plus
// abstract when available, title alone otherwise.
func (p *Paper) EmbeddingText() string {
	if p.Abstract == "" {
		return p.Title
	}
	return p.Title + "\n" + p.Abstract
}

// FirstAuthorSurname returns the lowercase surname token of the first
// author, or empty string if the paper has no authors. Names in
// "Last, First" form use the part before the comma.
func (p *Paper) FirstAuthorSurname() string {
	if len(p.Authors) == 0 {
		return ""
	}
	name := p.Authors[0].Name
	if idx := strings.Index(name, ","); idx >= 0 {
		name = name[:idx]
	}
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return ""
	}
	return strings.ToLower(parts[len(parts)-1])
}
