package authors

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens/analysis-service/internal/domain"
)

// stubAuthorSource scripts FindAuthor and AuthorWorks per author name.
type stubAuthorSource struct {
	records     map[string][]*domain.AuthorRecord
	works       map[string][]*domain.Paper
	findErr     map[string]error
	findCalls   atomic.Int32
	worksCalls  atomic.Int32
	maxInFlight atomic.Int32
	inFlight    atomic.Int32
}

func (s *stubAuthorSource) FindAuthor(ctx context.Context, name string) ([]*domain.AuthorRecord, error) {
	s.findCalls.Add(1)
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		prev := s.maxInFlight.Load()
		if cur <= prev || s.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}
	if err, ok := s.findErr[name]; ok {
		return nil, err
	}
	if recs, ok := s.records[name]; ok {
		return recs, nil
	}
	return nil, domain.NewNotFoundError("author", name)
}

func (s *stubAuthorSource) AuthorWorks(ctx context.Context, authorID string, limit int) ([]*domain.Paper, error) {
	s.worksCalls.Add(1)
	return s.works[authorID], nil
}

func record(id, name string, hIndex, works, citations int, affiliations ...string) *domain.AuthorRecord {
	return &domain.AuthorRecord{
		ID:           id,
		Name:         name,
		Affiliations: affiliations,
		WorksCount:   works,
		CitedByCount: citations,
		HIndex:       hIndex,
	}
}

func newTestAggregator(source Source) *Aggregator {
	return New(source, Config{}, zerolog.Nop(), nil)
}

func TestAggregator_Aggregate(t *testing.T) {
	t.Run("resolves every author", func(t *testing.T) {
		source := &stubAuthorSource{
			records: map[string][]*domain.AuthorRecord{
				"Kaiming He":    {record("A1", "Kaiming He", 80, 120, 400000, "Microsoft Research Asia, Beijing")},
				"Xiangyu Zhang": {record("A2", "Xiangyu Zhang", 40, 60, 150000, "Megvii Technology, Beijing")},
			},
		}
		a := newTestAggregator(source)

		team, err := a.Aggregate(context.Background(), []domain.Author{
			{Name: "Kaiming He"},
			{Name: "Xiangyu Zhang"},
		}, "")
		require.NoError(t, err)
		require.Len(t, team.Authors, 2)

		// Profile order follows input order.
		assert.Equal(t, "Kaiming He", team.Authors[0].Name)
		assert.True(t, team.Authors[0].Resolved)
		assert.Equal(t, 120, team.Authors[0].PaperCount)
		assert.Equal(t, 80, team.Authors[0].HIndex)
		assert.Equal(t, "Xiangyu Zhang", team.Authors[1].Name)
	})

	t.Run("failed lookup degrades one author only", func(t *testing.T) {
		source := &stubAuthorSource{
			records: map[string][]*domain.AuthorRecord{
				"Kaiming He": {record("A1", "Kaiming He", 80, 120, 400000)},
			},
			findErr: map[string]error{
				"Xiangyu Zhang": errors.New("provider down"),
			},
		}
		a := newTestAggregator(source)

		team, err := a.Aggregate(context.Background(), []domain.Author{
			{Name: "Kaiming He"},
			{Name: "Xiangyu Zhang"},
		}, "")
		require.NoError(t, err)
		require.Len(t, team.Authors, 2)
		assert.True(t, team.Authors[0].Resolved)
		assert.False(t, team.Authors[1].Resolved)
		assert.Equal(t, "author lookup failed", team.Authors[1].FailureReason)
		// The failed profile keeps the input name.
		assert.Equal(t, "Xiangyu Zhang", team.Authors[1].Name)
	})

	t.Run("unknown author is unresolved with reason", func(t *testing.T) {
		a := newTestAggregator(&stubAuthorSource{})
		team, err := a.Aggregate(context.Background(), []domain.Author{{Name: "Nobody Atall"}}, "")
		require.NoError(t, err)
		require.Len(t, team.Authors, 1)
		assert.False(t, team.Authors[0].Resolved)
		assert.Equal(t, "no matching author found", team.Authors[0].FailureReason)
	})

	t.Run("empty author list", func(t *testing.T) {
		a := newTestAggregator(&stubAuthorSource{})
		team, err := a.Aggregate(context.Background(), nil, "")
		require.NoError(t, err)
		assert.Empty(t, team.Authors)
		assert.Zero(t, team.Stats.TotalPapers)
	})

	t.Run("duplicate names with shared affiliation merge into one lookup", func(t *testing.T) {
		source := &stubAuthorSource{
			records: map[string][]*domain.AuthorRecord{
				"Wei Wang": {record("A1", "Wei Wang", 30, 50, 9000, "Tsinghua University, Beijing")},
			},
		}
		a := newTestAggregator(source)

		team, err := a.Aggregate(context.Background(), []domain.Author{
			{Name: "Wei Wang", Affiliation: "Tsinghua University, Beijing"},
			{Name: "Wei Wang", Affiliation: "Tsinghua University"},
		}, "")
		require.NoError(t, err)
		require.Len(t, team.Authors, 1)
		assert.False(t, team.Authors[0].Namesake)
		assert.Equal(t, int32(1), source.findCalls.Load())
	})

	t.Run("duplicate names with disjoint affiliations stay distinct namesakes", func(t *testing.T) {
		source := &stubAuthorSource{
			records: map[string][]*domain.AuthorRecord{
				"Wei Wang": {
					record("A1", "Wei Wang", 30, 50, 9000, "Tsinghua University, Beijing"),
					record("A2", "Wei Wang", 10, 20, 800, "Stanford University, Stanford"),
				},
			},
		}
		a := newTestAggregator(source)

		team, err := a.Aggregate(context.Background(), []domain.Author{
			{Name: "Wei Wang", Affiliation: "Tsinghua University, Beijing"},
			{Name: "Wei Wang", Affiliation: "Stanford University"},
		}, "")
		require.NoError(t, err)
		require.Len(t, team.Authors, 2)
		assert.True(t, team.Authors[0].Namesake)
		assert.True(t, team.Authors[1].Namesake)
		// Each entry is pinned to the candidate sharing its affiliation.
		assert.Equal(t, 50, team.Authors[0].PaperCount)
		assert.Equal(t, 20, team.Authors[1].PaperCount)
	})

	t.Run("root title pins the right namesake", func(t *testing.T) {
		source := &stubAuthorSource{
			records: map[string][]*domain.AuthorRecord{
				"Wei Wang": {
					record("A1", "Wei Wang", 30, 50, 9000),
					record("A2", "Wei Wang", 10, 20, 800),
				},
			},
			works: map[string][]*domain.Paper{
				"A1": {{CanonicalID: "doi:10.1/other", Title: "Some Other Work"}},
				"A2": {{CanonicalID: "doi:10.1/root", Title: "Deep Residual Learning for Image Recognition"}},
			},
		}
		a := newTestAggregator(source)

		team, err := a.Aggregate(context.Background(), []domain.Author{{Name: "Wei Wang"}},
			"Deep Residual Learning for Image Recognition")
		require.NoError(t, err)
		require.Len(t, team.Authors, 1)
		assert.Equal(t, 20, team.Authors[0].PaperCount)
		assert.Positive(t, source.worksCalls.Load())
	})

	t.Run("orcid match wins over relevance order", func(t *testing.T) {
		first := record("A1", "Wei Wang", 30, 50, 9000)
		second := record("A2", "Wei Wang", 10, 20, 800)
		second.ORCID = "0000-0001-2345-6789"
		source := &stubAuthorSource{
			records: map[string][]*domain.AuthorRecord{
				"Wei Wang": {first, second},
			},
		}
		a := newTestAggregator(source)

		team, err := a.Aggregate(context.Background(), []domain.Author{
			{Name: "Wei Wang", ORCID: "0000-0001-2345-6789"},
		}, "")
		require.NoError(t, err)
		require.Len(t, team.Authors, 1)
		assert.Equal(t, 20, team.Authors[0].PaperCount)
	})

	t.Run("concurrency stays within the configured bound", func(t *testing.T) {
		source := &stubAuthorSource{
			records: map[string][]*domain.AuthorRecord{},
		}
		names := []string{"A One", "B Two", "C Three", "D Four", "E Five", "F Six", "G Seven", "H Eight"}
		authorList := make([]domain.Author, len(names))
		for i, n := range names {
			source.records[n] = []*domain.AuthorRecord{record("A", n, 1, 1, 1)}
			authorList[i] = domain.Author{Name: n}
		}

		a := New(source, Config{MaxInFlight: 2}, zerolog.Nop(), nil)
		_, err := a.Aggregate(context.Background(), authorList, "")
		require.NoError(t, err)
		assert.LessOrEqual(t, source.maxInFlight.Load(), int32(2))
	})

	t.Run("cancellation aborts the fan-out", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		a := newTestAggregator(&stubAuthorSource{})
		_, err := a.Aggregate(ctx, []domain.Author{{Name: "Kaiming He"}}, "")
		require.Error(t, err)
	})
}

func TestComputeStats(t *testing.T) {
	t.Run("sums over resolved profiles only", func(t *testing.T) {
		stats := computeStats([]domain.AuthorProfile{
			{Resolved: true, PaperCount: 100, CitationCount: 5000, HIndex: 40},
			{Resolved: true, PaperCount: 50, CitationCount: 1000, HIndex: 20},
			{Resolved: false, PaperCount: 999, CitationCount: 99999, HIndex: 99},
		})
		assert.Equal(t, 150, stats.TotalPapers)
		assert.Equal(t, 6000, stats.TotalCitations)
		assert.InDelta(t, 30.0, stats.AvgHIndex, 1e-9)
	})

	t.Run("h-index average skips authors without one", func(t *testing.T) {
		stats := computeStats([]domain.AuthorProfile{
			{Resolved: true, HIndex: 30},
			{Resolved: true, HIndex: 0},
		})
		assert.InDelta(t, 30.0, stats.AvgHIndex, 1e-9)
	})

	t.Run("institution distribution uses the first comma segment", func(t *testing.T) {
		stats := computeStats([]domain.AuthorProfile{
			{Resolved: true, Affiliations: []string{"MIT, Cambridge, MA"}},
			{Resolved: true, Affiliations: []string{"MIT, Cambridge"}},
			{Resolved: true, Affiliations: []string{"Stanford University"}},
		})
		assert.Equal(t, map[string]int{"MIT": 2, "Stanford University": 1}, stats.InstitutionDistribution)
	})

	t.Run("no resolved profiles", func(t *testing.T) {
		stats := computeStats([]domain.AuthorProfile{{Resolved: false}})
		assert.Zero(t, stats.TotalPapers)
		assert.Zero(t, stats.AvgHIndex)
		assert.Nil(t, stats.InstitutionDistribution)
	})
}

func TestAffiliationsOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want bool
	}{
		{
			name: "shared institution token",
			a:    []string{"Tsinghua University, Beijing"},
			b:    []string{"Tsinghua University"},
			want: true,
		},
		{
			name: "generic words alone never overlap",
			a:    []string{"Stanford University"},
			b:    []string{"Tsinghua University"},
			want: false,
		},
		{
			name: "disjoint institutions",
			a:    []string{"MIT CSAIL"},
			b:    []string{"Oxford"},
			want: false,
		},
		{
			name: "empty lists",
			a:    nil,
			b:    []string{"Oxford"},
			want: false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, affiliationsOverlap(tc.a, tc.b))
		})
	}
}

func TestGroupAuthors(t *testing.T) {
	t.Run("distinct names stay distinct", func(t *testing.T) {
		entries := groupAuthors([]domain.Author{
			{Name: "Kaiming He"},
			{Name: "Xiangyu Zhang"},
		})
		require.Len(t, entries, 2)
		assert.False(t, entries[0].namesake)
	})

	t.Run("name variants normalize together", func(t *testing.T) {
		entries := groupAuthors([]domain.Author{
			{Name: "He, Kaiming"},
			{Name: "Kaiming He"},
		})
		assert.Len(t, entries, 1)
	})

	t.Run("blank names are dropped", func(t *testing.T) {
		entries := groupAuthors([]domain.Author{{Name: "  "}, {Name: "Kaiming He"}})
		assert.Len(t, entries, 1)
	})

	t.Run("merged entry collects affiliations and orcid", func(t *testing.T) {
		entries := groupAuthors([]domain.Author{
			{Name: "Wei Wang", Affiliation: "Tsinghua University"},
			{Name: "Wei Wang", Affiliation: "Tsinghua University, Beijing", ORCID: "0000-0001-1111-2222"},
		})
		require.Len(t, entries, 1)
		assert.Len(t, entries[0].affiliations, 2)
		assert.Equal(t, "0000-0001-1111-2222", entries[0].orcid)
	})
}
