package verify

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/paperlens/analysis-service/internal/domain"
)

// Config holds the scoring weights and classification thresholds.
type Config struct {
	// VerifiedThreshold is the minimum composite score for a verified verdict.
	VerifiedThreshold float64

	// UncertainThreshold is the minimum composite score for an uncertain
	// verdict. Scores below it are unverifiable.
	UncertainThreshold float64

	// TitleWeight scales the title similarity component.
	TitleWeight float64

	// AuthorWeight scales the author surname overlap component.
	AuthorWeight float64

	// YearWeight scales the publication year component.
	YearWeight float64
}

// DefaultConfig returns the default scoring configuration.
func DefaultConfig() Config {
	return Config{
		VerifiedThreshold:  0.85,
		UncertainThreshold: 0.5,
		TitleWeight:        0.5,
		AuthorWeight:       0.3,
		YearWeight:         0.2,
	}
}

// Scorer computes composite similarity between a parsed reference and
// candidate metadata records. A Scorer is immutable and safe for
// concurrent use.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer with the given configuration. Zero-valued
// fields fall back to the defaults.
func NewScorer(cfg Config) *Scorer {
	def := DefaultConfig()
	if cfg.VerifiedThreshold == 0 {
		cfg.VerifiedThreshold = def.VerifiedThreshold
	}
	if cfg.UncertainThreshold == 0 {
		cfg.UncertainThreshold = def.UncertainThreshold
	}
	if cfg.TitleWeight == 0 {
		cfg.TitleWeight = def.TitleWeight
	}
	if cfg.AuthorWeight == 0 {
		cfg.AuthorWeight = def.AuthorWeight
	}
	if cfg.YearWeight == 0 {
		cfg.YearWeight = def.YearWeight
	}
	return &Scorer{cfg: cfg}
}

// Score computes the composite similarity between a reference and a
// candidate in [0,1]. The components are weighted title similarity, author
// surname overlap, and year agreement; a missing component contributes zero
// rather than being renormalized, so sparse references cannot reach the
// verified tier on a title match alone.
func (s *Scorer) Score(ref domain.ParsedReference, cand *domain.Paper) float64 {
	if cand == nil {
		return 0
	}

	score := s.cfg.TitleWeight * s.titleScore(ref, cand)
	score += s.cfg.AuthorWeight * s.authorScore(ref, cand)
	score += s.cfg.YearWeight * s.yearScore(ref, cand)

	if score > 1 {
		score = 1
	}
	return score
}

// Classify maps a composite score to its verdict tier.
func (s *Scorer) Classify(score float64) domain.Classification {
	switch {
	case score >= s.cfg.VerifiedThreshold:
		return domain.ClassificationVerified
	case score >= s.cfg.UncertainThreshold:
		return domain.ClassificationUncertain
	default:
		return domain.ClassificationUnverifiable
	}
}

// Verify scores every candidate and returns the verdict for the best match.
// Ties break by candidate score, then citation count, then provider
// priority (lower is better), then canonical identifier, so repeated runs
// over the same candidate set always pick the same record. The priority
// function may be nil when all candidates come from one provider.
func (s *Scorer) Verify(ref domain.ParsedReference, candidates []*domain.Paper, priority func(domain.SourceType) int) domain.Verdict {
	verdict := domain.Verdict{
		ReferenceIndex: ref.Index,
		Classification: domain.ClassificationUnverifiable,
	}

	if len(candidates) == 0 {
		return verdict
	}

	type scored struct {
		paper *domain.Paper
		score float64
	}
	results := make([]scored, 0, len(candidates))
	for _, cand := range candidates {
		if cand == nil {
			continue
		}
		results = append(results, scored{paper: cand, score: s.Score(ref, cand)})
	}
	if len(results) == 0 {
		return verdict
	}

	rank := func(st domain.SourceType) int {
		if priority == nil {
			return 0
		}
		return priority(st)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		if results[i].paper.CitationCount != results[j].paper.CitationCount {
			return results[i].paper.CitationCount > results[j].paper.CitationCount
		}
		ri, rj := rank(results[i].paper.Source), rank(results[j].paper.Source)
		if ri != rj {
			return ri < rj
		}
		return results[i].paper.CanonicalID < results[j].paper.CanonicalID
	})

	best := results[0]
	verdict.Best = best.paper
	verdict.Score = best.score
	verdict.Classification = s.Classify(best.score)
	return verdict
}

// titleScore measures how much of the candidate title appears in the
// reference. Long titles use token containment against the raw reference
// text; short titles fall back to edit distance against the title guess,
// which is less forgiving of partial matches.
func (s *Scorer) titleScore(ref domain.ParsedReference, cand *domain.Paper) float64 {
	title := normalizeText(cand.Title)
	if title == "" {
		return 0
	}

	words := significantWords(title)
	if len(words) >= 3 {
		rawWords := wordSet(normalizeText(ref.Raw))
		matched := 0
		for _, w := range words {
			if rawWords[w] {
				matched++
			}
		}
		return float64(matched) / float64(len(words))
	}

	// Short title: too few significant tokens for overlap to be meaningful.
	guess := normalizeText(ref.TitleGuess)
	if guess == "" {
		if strings.Contains(normalizeText(ref.Raw), title) {
			return 1
		}
		return 0
	}

	dist := levenshtein.ComputeDistance(guess, title)
	longer := len([]rune(guess))
	if l := len([]rune(title)); l > longer {
		longer = l
	}
	if longer == 0 {
		return 0
	}
	sim := 1 - float64(dist)/float64(longer)
	if sim < 0 {
		sim = 0
	}
	return sim
}

// authorScore measures how well the candidate's leading authors appear in
// the reference. An exact surname hit earns full credit; otherwise the
// author earns the best NameSimilarity tier against the reference's author
// names, which absorbs compound surnames and initials. Only the first two
// authors are considered because reference strings routinely truncate long
// author lists.
func (s *Scorer) authorScore(ref domain.ParsedReference, cand *domain.Paper) float64 {
	if len(cand.Authors) == 0 {
		return 0
	}

	limit := len(cand.Authors)
	if limit > 2 {
		limit = 2
	}

	refSurnames := make(map[string]bool, len(ref.Surnames))
	for _, sn := range ref.Surnames {
		refSurnames[NormalizeName(sn)] = true
	}
	rawWords := wordSet(normalizeText(ref.Raw))

	matched := 0.0
	for _, author := range cand.Authors[:limit] {
		name := NormalizeName(author.Name)
		surname := Surname(author.Name)
		if surname == "" {
			continue
		}
		if refSurnames[surname] || rawWords[surname] {
			matched++
			continue
		}
		best := 0.0
		for refName := range refSurnames {
			if sim := NameSimilarity(name, refName); sim > best {
				best = sim
			}
		}
		matched += best
	}
	return matched / float64(limit)
}

// yearScore gives full credit for an exact year match and half credit for
// an off-by-one, which absorbs preprint/publication year drift.
func (s *Scorer) yearScore(ref domain.ParsedReference, cand *domain.Paper) float64 {
	if ref.Year == 0 || cand.PublicationYear == 0 {
		return 0
	}
	diff := ref.Year - cand.PublicationYear
	if diff < 0 {
		diff = -diff
	}
	switch diff {
	case 0:
		return 1
	case 1:
		return 0.5
	default:
		return 0
	}
}

// normalizeText lowercases text and replaces every non-letter, non-digit
// rune with a space, collapsing runs of spaces.
func normalizeText(text string) string {
	text = strings.ToLower(text)
	var sb strings.Builder
	sb.Grow(len(text))
	prevSpace := true
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
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

// significantWords returns the tokens longer than three characters.
func significantWords(text string) []string {
	var words []string
	for _, w := range strings.Fields(text) {
		if len(w) > 3 {
			words = append(words, w)
		}
	}
	return words
}

// wordSet builds a membership set over the whitespace-separated tokens.
func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(text) {
		set[w] = true
	}
	return set
}
