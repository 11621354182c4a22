package refparse

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	yearRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	// "Smith," and "van der Berg," style surnames.
	surnameCommaRe = regexp.MustCompile(`\b([A-Z][a-zA-Z'\x60-]+),`)
	// "J. Smith" and "J. K. Smith" style: initials followed by a surname.
	initialsSurnameRe = regexp.MustCompile(`\b(?:[A-Z]\.\s*)+([A-Z][a-zA-Z'\x60-]+)`)
	journalAbbrevRe   = regexp.MustCompile(`[A-Z][a-z]*\.\s*[A-Z]`)
	quotedTitleRe     = regexp.MustCompile(`["\x{201C}]([^"\x{201D}]{10,})["\x{201D}]`)
	wordRe            = regexp.MustCompile(`\b[a-zA-Z]{3,}\b`)
)

// Citation markers commonly found in reference strings. A segment carrying
// any of these is considered a plausible reference.
var referenceIndicators = []string{
	"et al.", "vol.", "pp.", "journal", "proc.", "conf.",
	"nature", "science", "cell", "adv.", "front.",
	"acs", "chem.", "biol.", "phys.", "int.",
}

// isPlausibleReference applies loose plausibility checks: sane length plus
// at least one citation feature (year, indicator term, author pattern, or
// journal abbreviation).
func isPlausibleReference(text string) bool {
	if len(text) < 10 || len(text) > 300 {
		return false
	}
	if len(text) <= 20 {
		return false
	}

	if yearRe.MatchString(text) {
		return true
	}
	lower := strings.ToLower(text)
	for _, indicator := range referenceIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	if surnameCommaRe.MatchString(text) {
		return true
	}
	return journalAbbrevRe.MatchString(text)
}

// extractYear returns the first plausible publication year in the text,
// or 0 when absent.
func extractYear(text string) int {
	m := yearRe.FindString(text)
	if m == "" {
		return 0
	}
	year, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return year
}

// extractTitleGuess picks the most title-like span of a reference string.
// Quoted titles win; otherwise the longest comma- or period-delimited
// segment with several words is used.
func extractTitleGuess(text string) string {
	if m := quotedTitleRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}

	best := ""
	for _, seg := range splitSegments(text) {
		seg = strings.TrimSpace(seg)
		if len(seg) <= len(best) {
			continue
		}
		words := strings.Fields(seg)
		if len(words) < 3 {
			continue
		}
		if looksLikeAuthorList(seg) {
			continue
		}
		best = seg
	}
	if best == "" && len(text) > 60 {
		best = strings.TrimSpace(text[:60])
	}
	return best
}

// extractSurnames collects candidate author surnames in order of appearance.
func extractSurnames(text string) []string {
	seen := make(map[string]bool)
	var surnames []string

	add := func(name string) {
		key := strings.ToLower(name)
		if seen[key] || len(surnames) >= 8 {
			return
		}
		seen[key] = true
		surnames = append(surnames, name)
	}

	for _, m := range initialsSurnameRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range surnameCommaRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	return surnames
}

// splitSegments breaks a reference on strong delimiters: ". " boundaries and
// numbering markers already stripped by the parser.
func splitSegments(text string) []string {
	// Strip a leading [n] or n. marker before splitting.
	text = refMarkerRe.ReplaceAllString(text, "")
	return strings.Split(text, ". ")
}

// looksLikeAuthorList reports whether a segment is dominated by short
// initial-heavy tokens, which indicates an author list rather than a title.
func looksLikeAuthorList(seg string) bool {
	words := strings.Fields(seg)
	if len(words) == 0 {
		return false
	}
	short := 0
	for _, w := range words {
		w = strings.TrimRight(w, ",.")
		if len(w) <= 2 {
			short++
		}
	}
	return float64(short)/float64(len(words)) > 0.4
}
