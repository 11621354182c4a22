package semanticscholar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens/analysis-service/internal/domain"
	"github.com/paperlens/analysis-service/internal/papersources"
)

// Compile-time check that Client implements papersources.PaperSource.
var _ papersources.PaperSource = (*Client)(nil)

// newTestClient creates a client pointed at the given test server URL.
func newTestClient(serverURL string) *Client {
	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:   5 * time.Second,
		RateLimit: 100,
		BurstSize: 100,
	})
	return NewClient(Config{
		BaseURL: serverURL,
		Enabled: true,
	}, httpClient)
}

func TestNewClient(t *testing.T) {
	t.Run("creates client with default values", func(t *testing.T) {
		client := NewClient(Config{Enabled: true}, nil)

		require.NotNil(t, client)
		assert.Equal(t, DefaultBaseURL, client.config.BaseURL)
		assert.Equal(t, DefaultTimeout, client.config.Timeout)
		assert.Equal(t, DefaultRateLimit, client.config.RateLimit)
		assert.Equal(t, DefaultBurstSize, client.config.BurstSize)
		assert.Equal(t, DefaultMaxResults, client.config.MaxResults)
		assert.True(t, client.config.Enabled)
	})

	t.Run("creates client with custom config", func(t *testing.T) {
		cfg := Config{
			BaseURL:    "https://custom.api.com/v1",
			APIKey:     "test-api-key",
			Timeout:    60 * time.Second,
			RateLimit:  50.0,
			BurstSize:  20,
			MaxResults: 200,
			Enabled:    true,
		}
		client := NewClient(cfg, nil)

		require.NotNil(t, client)
		assert.Equal(t, cfg.BaseURL, client.config.BaseURL)
		assert.Equal(t, cfg.Timeout, client.config.Timeout)
		assert.Equal(t, cfg.RateLimit, client.config.RateLimit)
		assert.Equal(t, cfg.BurstSize, client.config.BurstSize)
		assert.Equal(t, cfg.MaxResults, client.config.MaxResults)
	})

	t.Run("uses provided HTTP client", func(t *testing.T) {
		httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
			RateLimit: 100,
			BurstSize: 50,
		})
		client := NewClient(Config{Enabled: true}, httpClient)

		require.NotNil(t, client)
		assert.Equal(t, httpClient, client.httpClient)
	})

	t.Run("implements PaperSource interface", func(t *testing.T) {
		client := NewClient(Config{Enabled: true}, nil)

		assert.Equal(t, domain.SourceTypeSemanticScholar, client.SourceType())
		assert.Equal(t, "Semantic Scholar", client.Name())
		assert.True(t, client.IsEnabled())
	})

	t.Run("disabled client returns false for IsEnabled", func(t *testing.T) {
		client := NewClient(Config{Enabled: false}, nil)
		assert.False(t, client.IsEnabled())
	})
}

func TestClient_Search(t *testing.T) {
	t.Run("successful search returns papers", func(t *testing.T) {
		response := SearchResponse{
			Total:  150,
			Offset: 0,
			Next:   10,
			Data: []PaperResult{
				{
					PaperID:  "abc123",
					Title:    "Attention Is All You Need",
					Abstract: "The dominant sequence transduction models...",
					Year:     2017,
					Venue:    "NeurIPS",
					Journal: &Journal{
						Name: "Advances in Neural Information Processing Systems",
					},
					Authors: []Author{
						{AuthorID: "auth1", Name: "Jane Doe"},
						{AuthorID: "auth2", Name: "John Smith"},
					},
					CitationCount:  90000,
					ReferenceCount: 40,
					IsOpenAccess:   true,
					OpenAccessPDF: &OpenAccessPDF{
						URL:    "https://example.com/paper.pdf",
						Status: "GREEN",
					},
					ExternalIDs: &ExternalIDs{
						DOI:   "10.5555/attention",
						ArXiv: "1706.03762",
					},
				},
				{
					PaperID:  "def456",
					Title:    "BERT Pre-training",
					Abstract: "We introduce a new language representation model...",
					Year:     2019,
					Authors: []Author{
						{Name: "Alice Johnson"},
					},
					CitationCount:  60000,
					ReferenceCount: 60,
				},
			},
		}

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/paper/search", r.URL.Path)
			assert.Equal(t, "attention is all you need", r.URL.Query().Get("query"))
			assert.Equal(t, paperFields, r.URL.Query().Get("fields"))

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(response)
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		result, err := client.Search(context.Background(), papersources.SearchParams{
			Query: "attention is all you need",
		})
		require.NoError(t, err)
		require.NotNil(t, result)

		assert.Equal(t, 150, result.TotalResults)
		assert.Equal(t, domain.SourceTypeSemanticScholar, result.Source)
		require.Len(t, result.Papers, 2)

		paper1 := result.Papers[0]
		assert.Equal(t, "doi:10.5555/attention", paper1.CanonicalID)
		assert.Equal(t, "Attention Is All You Need", paper1.Title)
		assert.Equal(t, 2017, paper1.PublicationYear)
		assert.Equal(t, 90000, paper1.CitationCount)
		assert.Equal(t, 40, paper1.ReferenceCount)
		assert.True(t, paper1.OpenAccess)
		assert.Equal(t, domain.SourceTypeSemanticScholar, paper1.Source)
		assert.Equal(t, "Advances in Neural Information Processing Systems", paper1.Journal)
		assert.Equal(t, "https://doi.org/10.5555/attention", paper1.URL)
		require.Len(t, paper1.Authors, 2)
		assert.Equal(t, "Jane Doe", paper1.Authors[0].Name)

		// Second paper has only the S2 ID.
		paper2 := result.Papers[1]
		assert.Equal(t, "s2:def456", paper2.CanonicalID)
		assert.Equal(t, "https://www.semanticscholar.org/paper/def456", paper2.URL)
	})

	t.Run("year filter is passed through", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "2017", r.URL.Query().Get("year"))
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(SearchResponse{})
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		_, err := client.Search(context.Background(), papersources.SearchParams{
			Query: "attention",
			Year:  2017,
		})
		require.NoError(t, err)
	})

	t.Run("limit defaults to configured max", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "100", r.URL.Query().Get("limit"))
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(SearchResponse{})
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		_, err := client.Search(context.Background(), papersources.SearchParams{
			Query: "attention",
		})
		require.NoError(t, err)
	})

	t.Run("results without identifiers are skipped", func(t *testing.T) {
		response := SearchResponse{
			Total: 1,
			Data: []PaperResult{
				{Title: "No Identifiers At All", Year: 2020},
			},
		}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(response)
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		result, err := client.Search(context.Background(), papersources.SearchParams{Query: "x"})
		require.NoError(t, err)
		assert.Empty(t, result.Papers)
	})

	t.Run("API error returns external API error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error": "Forbidden"}`))
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		result, err := client.Search(context.Background(), papersources.SearchParams{Query: "x"})
		require.Error(t, err)
		assert.Nil(t, result)

		var apiErr *domain.ExternalAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
		assert.Equal(t, "Forbidden", apiErr.Message)
	})

	t.Run("context cancellation aborts request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(2 * time.Second)
			json.NewEncoder(w).Encode(SearchResponse{})
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := client.Search(ctx, papersources.SearchParams{Query: "x"})
		require.Error(t, err)
		assert.Nil(t, result)
	})
}

func TestClient_GetByID(t *testing.T) {
	t.Run("retrieves paper by ID", func(t *testing.T) {
		result := PaperResult{
			PaperID: "abc123",
			Title:   "Attention Is All You Need",
			Year:    2017,
			ExternalIDs: &ExternalIDs{
				DOI: "10.5555/attention",
			},
		}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/paper/abc123", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(result)
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		paper, err := client.GetByID(context.Background(), "abc123")
		require.NoError(t, err)
		require.NotNil(t, paper)
		assert.Equal(t, "doi:10.5555/attention", paper.CanonicalID)
	})

	t.Run("404 maps to not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": "Paper not found"}`))
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		paper, err := client.GetByID(context.Background(), "missing")
		require.Error(t, err)
		assert.Nil(t, paper)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestGenerateCanonicalID(t *testing.T) {
	testCases := []struct {
		name     string
		result   PaperResult
		expected string
	}{
		{
			name: "DOI takes priority",
			result: PaperResult{
				PaperID: "abc123",
				ExternalIDs: &ExternalIDs{
					DOI:   "10.5555/attention",
					ArXiv: "1706.03762",
				},
			},
			expected: "doi:10.5555/attention",
		},
		{
			name: "arxiv when no DOI",
			result: PaperResult{
				PaperID: "abc123",
				ExternalIDs: &ExternalIDs{
					ArXiv: "1706.03762",
				},
			},
			expected: "arxiv:1706.03762",
		},
		{
			name: "pubmed when no DOI or arxiv",
			result: PaperResult{
				PaperID: "abc123",
				ExternalIDs: &ExternalIDs{
					PubMed: "12345678",
				},
			},
			expected: "pubmed:12345678",
		},
		{
			name: "falls back to S2 paper ID",
			result: PaperResult{
				PaperID: "abc123",
			},
			expected: "s2:abc123",
		},
		{
			name:     "empty when nothing available",
			result:   PaperResult{},
			expected: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, generateCanonicalID(tc.result))
		})
	}
}
