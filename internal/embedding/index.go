package embedding

import (
	"fmt"
	"math"
	"sort"
)

// Match is one index entry scored against a query vector.
type Match struct {
	ID    string
	Score float64
}

// Index is a per-request in-memory vector index. It holds the root paper's
// embedding together with every surfaced candidate's and answers cosine
// similarity queries normalized to [0,1]. Not safe for concurrent writes.
type Index struct {
	vectors map[string][]float32
	dim     int
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{vectors: make(map[string][]float32)}
}

// Add stores a vector under the given identifier. The first vector fixes
// the index dimensionality; later vectors must match it. Re-adding an
// identifier replaces the stored vector.
func (idx *Index) Add(id string, vector []float32) error {
	if id == "" {
		return fmt.Errorf("index: empty identifier")
	}
	if len(vector) == 0 {
		return fmt.Errorf("index: empty vector for %q", id)
	}
	if idx.dim == 0 {
		idx.dim = len(vector)
	} else if len(vector) != idx.dim {
		return fmt.Errorf("index: vector for %q has dimension %d, index has %d", id, len(vector), idx.dim)
	}
	idx.vectors[id] = vector
	return nil
}

// Has reports whether the identifier is indexed.
func (idx *Index) Has(id string) bool {
	_, ok := idx.vectors[id]
	return ok
}

// Len reports the number of indexed vectors.
func (idx *Index) Len() int {
	return len(idx.vectors)
}

// Similarity returns the normalized cosine similarity between two indexed
// vectors. The second return is false when either identifier is missing.
func (idx *Index) Similarity(a, b string) (float64, bool) {
	va, ok := idx.vectors[a]
	if !ok {
		return 0, false
	}
	vb, ok := idx.vectors[b]
	if !ok {
		return 0, false
	}
	return normalizedCosine(va, vb), true
}

// Nearest returns up to k entries most similar to the query identifier,
// excluding the query itself, ordered by score descending with ties broken
// by identifier ascending.
func (idx *Index) Nearest(queryID string, k int) []Match {
	query, ok := idx.vectors[queryID]
	if !ok || k <= 0 {
		return nil
	}

	matches := make([]Match, 0, len(idx.vectors))
	for id, v := range idx.vectors {
		if id == queryID {
			continue
		}
		matches = append(matches, Match{ID: id, Score: normalizedCosine(query, v)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// normalizedCosine maps cosine similarity from [-1,1] onto [0,1]. A zero
// vector scores 0 against everything.
func normalizedCosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Float accumulation can push the ratio a hair past the unit range.
	cos = math.Max(-1, math.Min(1, cos))
	return (cos + 1) / 2
}
