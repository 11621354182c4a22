package openalex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paperlens/analysis-service/internal/domain"
	"github.com/paperlens/analysis-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	// OpenAlex polite pool (with email) allows higher rates.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per request.
	DefaultMaxResults = 25

	// doiPrefix is the URL prefix that OpenAlex uses for DOIs.
	doiPrefix = "https://doi.org/"

	// openAlexIDPrefix is the URL prefix for OpenAlex IDs.
	openAlexIDPrefix = "https://openalex.org/"
)

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL is the OpenAlex API base URL.
	// Defaults to https://api.openalex.org
	BaseURL string

	// Email is the contact email for the polite pool.
	// Providing an email grants access to higher rate limits.
	// See: https://docs.openalex.org/how-to-use-the-api/rate-limits-and-authentication
	Email string

	// Timeout is the request timeout.
	// Defaults to 30 seconds.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to 10 req/sec (polite pool with email gets higher).
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to 10.
	BurstSize int

	// MaxResults is the maximum results to return per search request.
	// Defaults to 25, maximum is 200 per OpenAlex API.
	MaxResults int

	// Enabled indicates whether this source is enabled for queries.
	Enabled bool
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client implements the papersources interfaces for OpenAlex: paper search,
// one-hop citation links, and author statistics.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

// Ensure Client implements the provider interfaces.
var (
	_ papersources.PaperSource    = (*Client)(nil)
	_ papersources.CitationSource = (*Client)(nil)
	_ papersources.AuthorSource   = (*Client)(nil)
)

// New creates a new OpenAlex client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:    string(domain.SourceTypeOpenAlex),
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		UserAgent: "PaperLens-AnalysisService/1.0 (mailto:" + cfg.Email + ")",
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new OpenAlex client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries OpenAlex for papers matching the given parameters.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	startTime := time.Now()

	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	var searchResp SearchResponse
	if err := c.getJSON(ctx, searchURL, &searchResp); err != nil {
		return nil, err
	}

	papers := make([]*domain.Paper, 0, len(searchResp.Results))
	for _, work := range searchResp.Results {
		paper := c.workToPaper(&work)
		if paper != nil {
			papers = append(papers, paper)
		}
	}

	return &papersources.SearchResult{
		Papers:         papers,
		TotalResults:   searchResp.Meta.Count,
		Source:         domain.SourceTypeOpenAlex,
		SearchDuration: time.Since(startTime),
	}, nil
}

// GetByID retrieves a specific paper by its OpenAlex ID or DOI.
func (c *Client) GetByID(ctx context.Context, id string) (*domain.Paper, error) {
	work, err := c.fetchWork(ctx, id)
	if err != nil {
		return nil, err
	}

	paper := c.workToPaper(work)
	if paper == nil {
		return nil, domain.NewNotFoundError("paper", id)
	}

	return paper, nil
}

// Citing returns up to limit papers that cite the given paper, most cited
// first so truncation keeps the highest-signal neighbors.
func (c *Client) Citing(ctx context.Context, id string, limit int) ([]*domain.Paper, error) {
	workID, err := c.lookupWorkID(ctx, id)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	base.Path = "/works"

	query := url.Values{}
	query.Set("filter", "cites:"+workID)
	query.Set("per_page", strconv.Itoa(clampPerPage(limit)))
	query.Set("sort", "cited_by_count:desc")
	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}
	base.RawQuery = query.Encode()

	var resp SearchResponse
	if err := c.getJSON(ctx, base.String(), &resp); err != nil {
		return nil, err
	}

	papers := make([]*domain.Paper, 0, len(resp.Results))
	for _, work := range resp.Results {
		if paper := c.workToPaper(&work); paper != nil {
			papers = append(papers, paper)
		}
	}
	return papers, nil
}

// Cited returns up to limit papers referenced by the given paper. OpenAlex
// exposes outbound references as a work ID list, so the work is fetched
// first and its referenced IDs are resolved in batches.
func (c *Client) Cited(ctx context.Context, id string, limit int) ([]*domain.Paper, error) {
	work, err := c.fetchWork(ctx, id)
	if err != nil {
		return nil, err
	}

	refs := work.ReferencedWorks
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	if len(refs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, normalizeOpenAlexID(ref))
	}

	// OpenAlex caps OR-filter values at 50 per request.
	const batchSize = 50
	var papers []*domain.Paper
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch, err := c.worksByIDs(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		papers = append(papers, batch...)
	}
	return papers, nil
}

// FindAuthor searches OpenAlex authors by display name.
func (c *Client) FindAuthor(ctx context.Context, name string) ([]*domain.AuthorRecord, error) {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	base.Path = "/authors"

	query := url.Values{}
	query.Set("search", name)
	query.Set("per_page", "5")
	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}
	base.RawQuery = query.Encode()

	var resp AuthorsResponse
	if err := c.getJSON(ctx, base.String(), &resp); err != nil {
		return nil, err
	}

	if len(resp.Results) == 0 {
		return nil, domain.NewNotFoundError("author", name)
	}

	records := make([]*domain.AuthorRecord, 0, len(resp.Results))
	for _, author := range resp.Results {
		records = append(records, authorToRecord(&author))
	}
	return records, nil
}

// AuthorWorks returns up to limit most recent works for an author ID.
func (c *Client) AuthorWorks(ctx context.Context, authorID string, limit int) ([]*domain.Paper, error) {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	base.Path = "/works"

	query := url.Values{}
	query.Set("filter", "author.id:"+normalizeOpenAlexID(authorID))
	query.Set("per_page", strconv.Itoa(clampPerPage(limit)))
	query.Set("sort", "publication_date:desc")
	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}
	base.RawQuery = query.Encode()

	var resp SearchResponse
	if err := c.getJSON(ctx, base.String(), &resp); err != nil {
		return nil, err
	}

	papers := make([]*domain.Paper, 0, len(resp.Results))
	for _, work := range resp.Results {
		if paper := c.workToPaper(&work); paper != nil {
			papers = append(papers, paper)
		}
	}
	return papers, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeOpenAlex
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return "OpenAlex"
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// getJSON executes a GET request and decodes the JSON response into out.
// The body is limited to 10MB to prevent resource exhaustion.
func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.NewNotFoundError("resource", rawURL)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return domain.NewExternalAPIError("OpenAlex", resp.StatusCode, string(body), nil)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// fetchWork retrieves a raw Work record by any supported identifier.
func (c *Client) fetchWork(ctx context.Context, id string) (*Work, error) {
	fetchURL, err := c.buildGetByIDURL(id)
	if err != nil {
		return nil, fmt.Errorf("building fetch URL: %w", err)
	}

	var work Work
	if err := c.getJSON(ctx, fetchURL, &work); err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return nil, domain.NewNotFoundError("paper", id)
		}
		return nil, err
	}
	return &work, nil
}

// lookupWorkID resolves any supported identifier to a short OpenAlex work ID.
func (c *Client) lookupWorkID(ctx context.Context, id string) (string, error) {
	if strings.HasPrefix(id, "W") {
		return id, nil
	}
	if strings.HasPrefix(id, "openalex:") {
		return strings.TrimPrefix(id, "openalex:"), nil
	}

	work, err := c.fetchWork(ctx, id)
	if err != nil {
		return "", err
	}
	workID := normalizeOpenAlexID(work.ID)
	if workID == "" {
		return "", domain.NewProviderDataError("OpenAlex", "work has no OpenAlex ID")
	}
	return workID, nil
}

// worksByIDs fetches a batch of works by short OpenAlex IDs with one request.
func (c *Client) worksByIDs(ctx context.Context, ids []string) ([]*domain.Paper, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	base.Path = "/works"

	query := url.Values{}
	query.Set("filter", "openalex:"+strings.Join(ids, "|"))
	query.Set("per_page", strconv.Itoa(clampPerPage(len(ids))))
	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}
	base.RawQuery = query.Encode()

	var resp SearchResponse
	if err := c.getJSON(ctx, base.String(), &resp); err != nil {
		return nil, err
	}

	papers := make([]*domain.Paper, 0, len(resp.Results))
	for _, work := range resp.Results {
		if paper := c.workToPaper(&work); paper != nil {
			papers = append(papers, paper)
		}
	}
	return papers, nil
}

// buildSearchURL constructs the search API URL with query parameters.
func (c *Client) buildSearchURL(params papersources.SearchParams) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	baseURL.Path = "/works"

	query := url.Values{}

	if params.Query != "" {
		query.Set("search", params.Query)
	}

	if params.Year > 0 {
		query.Set("filter", fmt.Sprintf("publication_year:%d", params.Year))
	}

	maxResults := params.MaxResults
	if maxResults == 0 {
		maxResults = c.config.MaxResults
	}
	query.Set("per_page", strconv.Itoa(clampPerPage(maxResults)))

	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}

	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

// buildGetByIDURL constructs the URL for fetching a work by ID.
func (c *Client) buildGetByIDURL(id string) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	// Determine the ID format and construct the path.
	// OpenAlex accepts: OpenAlex ID, DOI, MAG ID, PubMed ID, PMC ID.
	var workID string
	switch {
	case strings.HasPrefix(id, openAlexIDPrefix):
		// Full OpenAlex URL - extract the ID part
		workID = strings.TrimPrefix(id, openAlexIDPrefix)
	case strings.HasPrefix(id, "W"):
		// Short OpenAlex ID (e.g., W2741809807)
		workID = id
	case strings.HasPrefix(id, "openalex:"):
		// Canonical OpenAlex format from our system
		workID = strings.TrimPrefix(id, "openalex:")
	case strings.HasPrefix(id, doiPrefix):
		// Full DOI URL
		workID = id
	case strings.HasPrefix(id, "10."):
		// Short DOI format - prefix with https://doi.org/
		workID = doiPrefix + id
	case strings.HasPrefix(id, "doi:"):
		// Canonical DOI format from our system
		workID = doiPrefix + strings.TrimPrefix(id, "doi:")
	default:
		// Assume it is an OpenAlex ID or other supported format
		workID = id
	}

	// Use direct path concatenation - OpenAlex expects the DOI as-is in the path
	// and handles URL decoding on their side
	baseURL.Path = "/works/" + workID

	// Add mailto for polite pool
	if c.config.Email != "" {
		query := url.Values{}
		query.Set("mailto", c.config.Email)
		baseURL.RawQuery = query.Encode()
	}

	return baseURL.String(), nil
}

// workToPaper converts an OpenAlex Work to a domain Paper.
func (c *Client) workToPaper(work *Work) *domain.Paper {
	if work == nil {
		return nil
	}

	// Extract and normalize DOI
	doi := normalizeDOI(work.DOI)
	if doi == "" && work.IDs.DOI != "" {
		doi = normalizeDOI(work.IDs.DOI)
	}

	// Extract OpenAlex ID
	openAlexID := normalizeOpenAlexID(work.ID)
	if openAlexID == "" && work.IDs.OpenAlex != "" {
		openAlexID = normalizeOpenAlexID(work.IDs.OpenAlex)
	}

	canonicalID := domain.GenerateCanonicalID(domain.PaperIdentifiers{
		DOI:        doi,
		PubMedID:   normalizePMID(work.IDs.PMID),
		PMCID:      work.IDs.PMCID,
		OpenAlexID: openAlexID,
	})

	// Skip papers without any identifier
	if canonicalID == "" {
		return nil
	}

	authors := make([]domain.Author, 0, len(work.Authorships))
	for _, authorship := range work.Authorships {
		author := domain.Author{
			Name:  authorship.Author.DisplayName,
			ORCID: normalizeORCID(authorship.Author.Orcid),
		}
		// Get affiliation from first institution
		if len(authorship.Institutions) > 0 {
			author.Affiliation = authorship.Institutions[0].DisplayName
		}
		authors = append(authors, author)
	}

	// Prefer display_name as it is usually cleaner
	title := work.DisplayName
	if title == "" {
		title = work.Title
	}

	var venue, journal string
	if work.PrimaryLocation != nil && work.PrimaryLocation.Source != nil {
		journal = work.PrimaryLocation.Source.DisplayName
		venue = journal
	}

	isOpenAccess := work.IsOpenAccess
	if work.OpenAccess != nil {
		isOpenAccess = work.OpenAccess.IsOA
	}

	// Prefer the DOI URL, then the open access URL, then the OpenAlex page.
	paperURL := work.DOI
	if paperURL == "" && work.OpenAccess != nil {
		paperURL = work.OpenAccess.OAURL
	}
	if paperURL == "" {
		paperURL = work.ID
	}

	abstract := reconstructAbstract(work.AbstractInvertedIndex)

	return &domain.Paper{
		CanonicalID:     canonicalID,
		Title:           title,
		Abstract:        abstract,
		Authors:         authors,
		PublicationYear: work.PublicationYear,
		Venue:           venue,
		Journal:         journal,
		CitationCount:   work.CitedByCount,
		ReferenceCount:  len(work.ReferencedWorks),
		URL:             paperURL,
		OpenAccess:      isOpenAccess,
		Source:          domain.SourceTypeOpenAlex,
		RawMetadata: map[string]interface{}{
			"openalex_id":      openAlexID,
			"doi":              doi,
			"type":             work.Type,
			"pmid":             work.IDs.PMID,
			"pmcid":            work.IDs.PMCID,
			"referenced_works": work.ReferencedWorks,
		},
	}
}

// authorToRecord converts an OpenAlex author to a domain AuthorRecord.
func authorToRecord(author *OAAuthor) *domain.AuthorRecord {
	affiliations := make([]string, 0, len(author.LastKnownInstitutions))
	seen := make(map[string]bool)
	for _, inst := range author.LastKnownInstitutions {
		if inst.DisplayName != "" && !seen[inst.DisplayName] {
			seen[inst.DisplayName] = true
			affiliations = append(affiliations, inst.DisplayName)
		}
	}

	concepts := make([]string, 0, 5)
	for _, concept := range author.XConcepts {
		if concept.DisplayName == "" {
			continue
		}
		concepts = append(concepts, concept.DisplayName)
		if len(concepts) == 5 {
			break
		}
	}

	return &domain.AuthorRecord{
		ID:           normalizeOpenAlexID(author.ID),
		Name:         author.DisplayName,
		ORCID:        normalizeORCID(author.Orcid),
		Affiliations: affiliations,
		WorksCount:   author.WorksCount,
		CitedByCount: author.CitedByCount,
		HIndex:       author.SummaryStats.HIndex,
		I10Index:     author.SummaryStats.I10Index,
		Concepts:     concepts,
	}
}

// clampPerPage bounds a per_page value to the OpenAlex API limit of 200.
func clampPerPage(n int) int {
	if n <= 0 {
		return DefaultMaxResults
	}
	if n > 200 {
		return 200
	}
	return n
}

// normalizeDOI strips the https://doi.org/ prefix from DOIs and returns lowercase.
func normalizeDOI(doi string) string {
	if doi == "" {
		return ""
	}
	// Trim whitespace first
	doi = strings.TrimSpace(doi)
	// Strip the URL prefix if present
	doi = strings.TrimPrefix(doi, doiPrefix)
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	doi = strings.TrimPrefix(doi, "doi:")
	return strings.ToLower(strings.TrimSpace(doi))
}

// normalizeOpenAlexID extracts the short ID from full OpenAlex URLs.
func normalizeOpenAlexID(id string) string {
	if id == "" {
		return ""
	}
	// Strip the URL prefix if present
	id = strings.TrimPrefix(id, openAlexIDPrefix)
	return strings.TrimSpace(id)
}

// normalizePMID strips any URL prefixes from PubMed IDs.
func normalizePMID(pmid string) string {
	if pmid == "" {
		return ""
	}
	pmid = strings.TrimPrefix(pmid, "https://pubmed.ncbi.nlm.nih.gov/")
	return strings.TrimSpace(pmid)
}

// normalizeORCID strips any URL prefixes from ORCID identifiers.
func normalizeORCID(orcid string) string {
	if orcid == "" {
		return ""
	}
	orcid = strings.TrimPrefix(orcid, "https://orcid.org/")
	return strings.TrimSpace(orcid)
}

// reconstructAbstract reconstructs the abstract text from OpenAlex's inverted index format.
// OpenAlex stores abstracts as inverted indices mapping words to their positions.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	// Build a slice of (position, word) pairs.
	// Pre-calculate total capacity by summing all position slice lengths.
	type posWord struct {
		pos  int
		word string
	}
	const maxAbstractWords = 100_000
	totalPairs := 0
	for _, positions := range invertedIndex {
		totalPairs += len(positions)
	}
	// Guard against malicious payloads with excessive position entries.
	if totalPairs > maxAbstractWords {
		return ""
	}
	pairs := make([]posWord, 0, totalPairs)

	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	// Sort by position
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	// Reconstruct the text with pre-sized builder to reduce allocations.
	// Estimate average word length of 6 characters plus a space separator.
	var builder strings.Builder
	builder.Grow(totalPairs * 7)
	for i, pair := range pairs {
		if i > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(pair.word)
	}

	return builder.String()
}
