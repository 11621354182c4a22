// Package authors resolves the members of a paper's author list against a
// provider's author statistics and aggregates team-level impact metrics.
package authors

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/paperlens/analysis-service/internal/domain"
	"github.com/paperlens/analysis-service/internal/observability"
	"github.com/paperlens/analysis-service/internal/verify"
)

// Defaults for the aggregator.
const (
	DefaultMaxInFlight      = 4
	DefaultRecentWorksLimit = 25
	// maxPinCandidates bounds how many namesake candidates get a works
	// lookup when pinning by the root paper title.
	maxPinCandidates = 3
)

// Config holds aggregator settings.
type Config struct {
	// MaxInFlight bounds concurrent provider lookups.
	MaxInFlight int64

	// RecentWorksLimit caps the works fetched per candidate when pinning
	// a namesake by the root paper title.
	RecentWorksLimit int
}

// Team is the aggregated result for one paper's author list.
type Team struct {
	Authors []domain.AuthorProfile `json:"authors"`
	Stats   domain.TeamStats       `json:"stats"`
}

// Aggregator looks up publication and citation statistics for each unique
// author of a paper. Two input authors sharing a normalized name are merged
// into one person when their affiliations share a token; otherwise they are
// kept as distinct namesakes. A failed lookup degrades that one author to
// an unresolved profile and never fails the team.
type Aggregator struct {
	source  Source
	cfg     Config
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// Source is the provider capability the aggregator consumes. Satisfied by
// papersources.AuthorSource implementations.
type Source interface {
	FindAuthor(ctx context.Context, name string) ([]*domain.AuthorRecord, error)
	AuthorWorks(ctx context.Context, authorID string, limit int) ([]*domain.Paper, error)
}

// New creates an aggregator over the given author source.
func New(source Source, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Aggregator {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.RecentWorksLimit <= 0 {
		cfg.RecentWorksLimit = DefaultRecentWorksLimit
	}
	return &Aggregator{
		source:  source,
		cfg:     cfg,
		logger:  logger.With().Str("component", "authors").Logger(),
		metrics: metrics,
	}
}

// lookupEntry is one distinct person to resolve, after namesake grouping.
type lookupEntry struct {
	name         string
	affiliations []string
	orcid        string
	namesake     bool
}

// Aggregate resolves every distinct author and computes team statistics.
// rootTitle, when non-empty, is the resolved title of the paper the author
// list came from; it pins the right namesake among provider candidates.
// Profile order follows input order. Returns an error only on cancellation.
func (a *Aggregator) Aggregate(ctx context.Context, authorList []domain.Author, rootTitle string) (*Team, error) {
	entries := groupAuthors(authorList)
	if len(entries) == 0 {
		return &Team{Authors: []domain.AuthorProfile{}}, nil
	}

	profiles := make([]domain.AuthorProfile, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(a.cfg.MaxInFlight)
	for i, entry := range entries {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			profiles[i] = a.resolveOne(gctx, entry, rootTitle)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	team := &Team{
		Authors: profiles,
		Stats:   computeStats(profiles),
	}
	a.logger.Debug().
		Int("authors", len(profiles)).
		Int("resolved", countResolved(profiles)).
		Msg("author team aggregated")
	return team, nil
}

// resolveOne looks up a single person and converts the best candidate into
// a profile. Failures produce an unresolved profile carrying the reason.
func (a *Aggregator) resolveOne(ctx context.Context, entry lookupEntry, rootTitle string) domain.AuthorProfile {
	log := a.logger.With().Str("author", entry.name).Logger()

	candidates, err := a.source.FindAuthor(ctx, entry.name)
	if err != nil {
		outcome := "failed"
		reason := "author lookup failed"
		if errors.Is(err, domain.ErrNotFound) {
			outcome = "not_found"
			reason = "no matching author found"
		}
		if a.metrics != nil {
			a.metrics.RecordAuthorLookup(outcome)
		}
		log.Warn().Err(err).Msg("author lookup failed")
		return domain.AuthorProfile{
			Name:          entry.name,
			Namesake:      entry.namesake,
			Resolved:      false,
			FailureReason: reason,
		}
	}

	best := a.pickCandidate(ctx, entry, candidates, rootTitle)
	if best == nil {
		if a.metrics != nil {
			a.metrics.RecordAuthorLookup("not_found")
		}
		return domain.AuthorProfile{
			Name:          entry.name,
			Namesake:      entry.namesake,
			Resolved:      false,
			FailureReason: "no matching author found",
		}
	}

	if a.metrics != nil {
		a.metrics.RecordAuthorLookup("resolved")
	}
	return domain.AuthorProfile{
		Name:          best.Name,
		Affiliations:  best.Affiliations,
		ORCID:         best.ORCID,
		PaperCount:    best.WorksCount,
		CitationCount: best.CitedByCount,
		HIndex:        best.HIndex,
		I10Index:      best.I10Index,
		Interests:     best.Concepts,
		RecentPapers:  best.RecentPapers,
		Namesake:      entry.namesake,
		Resolved:      true,
	}
}

// pickCandidate chooses among provider candidates: an ORCID match wins, then
// an affiliation token overlap with the input record, then a candidate whose
// recent works include the root paper, then provider relevance order.
func (a *Aggregator) pickCandidate(ctx context.Context, entry lookupEntry, candidates []*domain.AuthorRecord, rootTitle string) *domain.AuthorRecord {
	live := candidates[:0:0]
	for _, c := range candidates {
		if c != nil {
			live = append(live, c)
		}
	}
	if len(live) == 0 {
		return nil
	}
	if len(live) == 1 {
		return live[0]
	}

	if entry.orcid != "" {
		for _, c := range live {
			if c.ORCID != "" && c.ORCID == entry.orcid {
				return c
			}
		}
	}

	if len(entry.affiliations) > 0 {
		for _, c := range live {
			if affiliationsOverlap(entry.affiliations, c.Affiliations) {
				return c
			}
		}
	}

	if rootTitle != "" {
		if pinned := a.pinByRootTitle(ctx, live, rootTitle); pinned != nil {
			return pinned
		}
	}

	return live[0]
}

// pinByRootTitle fetches recent works for the top candidates and returns the
// first one that authored the root paper.
func (a *Aggregator) pinByRootTitle(ctx context.Context, candidates []*domain.AuthorRecord, rootTitle string) *domain.AuthorRecord {
	want := normalizeTitle(rootTitle)
	if want == "" {
		return nil
	}

	limit := len(candidates)
	if limit > maxPinCandidates {
		limit = maxPinCandidates
	}
	for _, c := range candidates[:limit] {
		if c.ID == "" {
			continue
		}
		works, err := a.source.AuthorWorks(ctx, c.ID, a.cfg.RecentWorksLimit)
		if err != nil {
			a.logger.Debug().Err(err).Str("author_id", c.ID).Msg("works lookup for namesake pinning failed")
			continue
		}
		for _, w := range works {
			if w != nil && normalizeTitle(w.Title) == want {
				return c
			}
		}
	}
	return nil
}

// groupAuthors collapses the input list into distinct persons. Entries that
// share a normalized name are merged when their affiliations overlap (or
// one of them has none); name groups that stay split are flagged namesakes.
func groupAuthors(authorList []domain.Author) []lookupEntry {
	var entries []lookupEntry
	byName := make(map[string][]int)

	for _, author := range authorList {
		norm := verify.NormalizeName(author.Name)
		if norm == "" {
			continue
		}

		merged := false
		for _, idx := range byName[norm] {
			e := &entries[idx]
			if len(author.Affiliation) == 0 || len(e.affiliations) == 0 ||
				affiliationsOverlap([]string{author.Affiliation}, e.affiliations) {
				if author.Affiliation != "" && !containsString(e.affiliations, author.Affiliation) {
					e.affiliations = append(e.affiliations, author.Affiliation)
				}
				if e.orcid == "" {
					e.orcid = author.ORCID
				}
				merged = true
				break
			}
		}
		if merged {
			continue
		}

		entry := lookupEntry{name: author.Name, orcid: author.ORCID}
		if author.Affiliation != "" {
			entry.affiliations = []string{author.Affiliation}
		}
		entries = append(entries, entry)
		byName[norm] = append(byName[norm], len(entries)-1)
	}

	// A name that stayed split across entries marks every member a namesake.
	for _, idxs := range byName {
		if len(idxs) > 1 {
			for _, idx := range idxs {
				entries[idx].namesake = true
			}
		}
	}
	return entries
}

// computeStats sums impact metrics over resolved profiles. The h-index
// average runs over authors that have one; institutions are counted by the
// first comma segment of each resolved author's first affiliation.
func computeStats(profiles []domain.AuthorProfile) domain.TeamStats {
	stats := domain.TeamStats{}
	var hSum, hCount int

	for _, p := range profiles {
		if !p.Resolved {
			continue
		}
		stats.TotalPapers += p.PaperCount
		stats.TotalCitations += p.CitationCount
		if p.HIndex > 0 {
			hSum += p.HIndex
			hCount++
		}
		if len(p.Affiliations) > 0 {
			if inst := institutionName(p.Affiliations[0]); inst != "" {
				if stats.InstitutionDistribution == nil {
					stats.InstitutionDistribution = make(map[string]int)
				}
				stats.InstitutionDistribution[inst]++
			}
		}
	}
	if hCount > 0 {
		stats.AvgHIndex = float64(hSum) / float64(hCount)
	}
	return stats
}

// institutionName reduces an affiliation string to its leading segment.
func institutionName(affiliation string) string {
	if i := strings.Index(affiliation, ","); i >= 0 {
		affiliation = affiliation[:i]
	}
	return strings.TrimSpace(affiliation)
}

// affiliationsOverlap reports whether any significant token appears in both
// affiliation lists.
func affiliationsOverlap(a, b []string) bool {
	tokens := affiliationTokens(a)
	if len(tokens) == 0 {
		return false
	}
	for tok := range affiliationTokens(b) {
		if tokens[tok] {
			return true
		}
	}
	return false
}

// affiliationTokens splits affiliations into lowercase tokens, dropping
// short and generic ones.
func affiliationTokens(affiliations []string) map[string]bool {
	tokens := make(map[string]bool)
	for _, aff := range affiliations {
		for _, field := range strings.FieldsFunc(strings.ToLower(aff), func(r rune) bool {
			return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
		}) {
			if len(field) <= 3 || genericAffiliationWords[field] {
				continue
			}
			tokens[field] = true
		}
	}
	return tokens
}

// genericAffiliationWords are too common to disambiguate institutions.
var genericAffiliationWords = map[string]bool{
	"university":  true,
	"institute":   true,
	"department":  true,
	"school":      true,
	"college":     true,
	"laboratory":  true,
	"center":      true,
	"centre":      true,
	"research":    true,
	"national":    true,
	"sciences":    true,
	"science":     true,
	"engineering": true,
}

func countResolved(profiles []domain.AuthorProfile) int {
	n := 0
	for _, p := range profiles {
		if p.Resolved {
			n++
		}
	}
	return n
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// normalizeTitle lowercases a title and strips everything but letters,
// digits, and single spaces.
func normalizeTitle(title string) string {
	var sb strings.Builder
	sb.Grow(len(title))
	prevSpace := true
	for _, r := range strings.ToLower(title) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			sb.WriteRune(r)
			prevSpace = false
		default:
			if !prevSpace {
				sb.WriteByte(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimRight(sb.String(), " ")
}
