package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCanonicalID(t *testing.T) {
	tests := []struct {
		name string
		ids  PaperIdentifiers
		want string
	}{
		{
			name: "DOI takes priority",
			ids: PaperIdentifiers{
				DOI:        "10.1038/S41586-021-03819-2",
				OpenAlexID: "W123",
			},
			want: "doi:10.1038/s41586-021-03819-2",
		},
		{
			name: "arxiv when no DOI",
			ids:  PaperIdentifiers{ArXivID: "1706.03762", OpenAlexID: "W123"},
			want: "arxiv:1706.03762",
		},
		{
			name: "semantic scholar over openalex",
			ids:  PaperIdentifiers{SemanticScholarID: "abc123", OpenAlexID: "W123"},
			want: "s2:abc123",
		},
		{
			name: "openalex last",
			ids:  PaperIdentifiers{OpenAlexID: "W2741809807"},
			want: "openalex:W2741809807",
		},
		{
			name: "no identifiers",
			ids:  PaperIdentifiers{},
			want: "",
		},
		{
			name: "whitespace is trimmed",
			ids:  PaperIdentifiers{DOI: "  10.1000/xyz  "},
			want: "doi:10.1000/xyz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateCanonicalID(tt.ids))
		})
	}
}

func TestPaperEmbeddingText(t *testing.T) {
	t.Run("title and abstract", func(t *testing.T) {
		p := &Paper{Title: "Attention is All You Need", Abstract: "We propose the Transformer."}
		assert.Equal(t, "Attention is All You Need\nWe propose the Transformer.", p.EmbeddingText())
	})

	t.Run("title only when abstract missing", func(t *testing.T) {
		p := &Paper{Title: "Attention is All You Need"}
		assert.Equal(t, "Attention is All You Need", p.EmbeddingText())
	})
}

func TestPaperFirstAuthorSurname(t *testing.T) {
	p := &Paper{Authors: []Author{{Name: "Ashish Vaswani"}, {Name: "Noam Shazeer"}}}
	assert.Equal(t, "vaswani", p.FirstAuthorSurname())

	commaForm := &Paper{Authors: []Author{{Name: "Vaswani, Ashish"}}}
	assert.Equal(t, "vaswani", commaForm.FirstAuthorSurname())

	empty := &Paper{}
	assert.Equal(t, "", empty.FirstAuthorSurname())
}

func TestPaperHasIdentifier(t *testing.T) {
	assert.True(t, (&Paper{CanonicalID: "doi:10.1/a"}).HasIdentifier())
	assert.False(t, (&Paper{Title: "No ID"}).HasIdentifier())
}

func TestGraphNeighbors(t *testing.T) {
	g := NewGraph("doi:root")
	g.AddNode(&GraphNode{ID: "doi:root", Title: "Root"})
	g.AddNode(&GraphNode{ID: "doi:a", Title: "A"})
	g.AddNode(&GraphNode{ID: "doi:b", Title: "B"})

	// a cites root, root cites b, root self-cites.
	g.AddEdge("doi:a", "doi:root", RelationCites)
	g.AddEdge("doi:root", "doi:b", RelationCites)
	g.AddEdge("doi:root", "doi:root", RelationCites)

	neighbors := g.Neighbors()
	assert.True(t, neighbors["doi:a"])
	assert.True(t, neighbors["doi:b"])
	assert.False(t, neighbors["doi:root"], "self-loops must not make the root its own neighbor")
	assert.Len(t, neighbors, 2)
}

func TestGraphAddEdgeRequiresEndpoints(t *testing.T) {
	g := NewGraph("doi:root")
	g.AddNode(&GraphNode{ID: "doi:root"})

	g.AddEdge("doi:root", "doi:missing", RelationCites)
	assert.Empty(t, g.Edges, "edges with unknown endpoints are dropped")

	g.AddNode(&GraphNode{ID: "doi:missing"})
	g.AddEdge("doi:root", "doi:missing", RelationCites)
	require.Len(t, g.Edges, 1)
	assert.False(t, g.Edges[0].SelfLoop)
}

func TestGraphSelfLoopFlag(t *testing.T) {
	g := NewGraph("doi:root")
	g.AddNode(&GraphNode{ID: "doi:root"})
	g.AddEdge("doi:root", "doi:root", RelationCites)

	require.Len(t, g.Edges, 1)
	assert.True(t, g.Edges[0].SelfLoop)
}

func TestGraphNodeIDsSorted(t *testing.T) {
	g := NewGraph("doi:root")
	g.AddNode(&GraphNode{ID: "doi:c"})
	g.AddNode(&GraphNode{ID: "doi:a"})
	g.AddNode(&GraphNode{ID: "doi:b"})

	assert.Equal(t, []string{"doi:a", "doi:b", "doi:c"}, g.NodeIDs())
}
