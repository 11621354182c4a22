package refparse

import (
	"sort"
	"strings"
)

// Academic stopwords excluded from keyword extraction.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true,
	"was": true, "are": true, "were": true, "been": true, "be": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "must": true, "shall": true, "can": true,
	"need": true, "this": true, "that": true, "these": true, "those": true,
	"it": true, "its": true, "they": true, "them": true, "their": true,
	"we": true, "our": true, "you": true, "your": true, "he": true,
	"she": true, "his": true, "her": true, "which": true, "who": true,
	"whom": true, "what": true, "where": true, "when": true, "why": true,
	"how": true, "all": true, "each": true, "every": true, "both": true,
	"few": true, "more": true, "most": true, "other": true, "some": true,
	"such": true, "no": true, "not": true, "only": true, "same": true,
	"so": true, "than": true, "too": true, "very": true, "just": true,
	"also": true, "now": true, "paper": true, "study": true,
	"research": true, "method": true, "results": true, "conclusion": true,
	"introduction": true, "abstract": true, "figure": true, "table": true,
	"section": true, "chapter": true, "however": true, "therefore": true,
	"thus": true, "hence": true, "moreover": true, "furthermore": true,
	"although": true, "though": true, "while": true, "whereas": true,
	"because": true, "since": true, "unless": true, "proposed": true,
	"propose": true, "show": true, "shows": true, "shown": true,
	"based": true, "using": true, "used": true,
}

// Keywords extracts up to max keywords from free text by stopword-filtered
// term frequency. Ties are broken alphabetically for determinism.
func Keywords(text string, max int) []string {
	if max <= 0 {
		return nil
	}

	counts := make(map[string]int)
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if stopwords[w] {
			continue
		}
		counts[w] = counts[w] + 1
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > max {
		words = words[:max]
	}
	return words
}

// SearchQuery builds a provider query string for a parsed reference. The
// title guess is preferred; otherwise the raw string is used, truncated to
// keep provider URLs within sane bounds.
func SearchQuery(titleGuess, raw string) string {
	q := strings.TrimSpace(titleGuess)
	if q == "" {
		q = strings.TrimSpace(raw)
	}
	const maxQueryLen = 120
	if len(q) > maxQueryLen {
		if cut := strings.LastIndex(q[:maxQueryLen], " "); cut > 0 {
			q = q[:cut]
		} else {
			q = q[:maxQueryLen]
		}
	}
	return q
}
