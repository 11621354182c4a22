// Package refparse segments raw reference-list text into discrete references
// and extracts weak structured hints for downstream resolution and scoring.
package refparse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/paperlens/analysis-service/internal/domain"
)

var (
	bracketMarkerRe = regexp.MustCompile(`^\[\d+\]`)
	numberMarkerRe  = regexp.MustCompile(`^(\d+)\.`)
	refMarkerRe     = regexp.MustCompile(`^(\[\d+\]|\d+\.|•|\-|\.\s*\d)`)
	urlRe           = regexp.MustCompile(`https?://\S+`)
	copyrightRe     = regexp.MustCompile(`©\s*\d{4}`)
)

// Lines matching these fragments are treated as headers, footers, or
// boilerplate and skipped during segmentation.
var boilerplateFragments = []string{
	"reporting summary",
	"author contribution",
	"acknowledgement",
	"competing interest",
	"data availability",
	"correspondence",
	"reprints",
	"supplementary",
}

// Section headers that terminate a reference list.
var sectionEndHeaders = []string{
	"acknowledg",
	"author contribution",
	"competing interest",
	"data availability",
	"supplementary",
	"appendix",
}

// Reference section header variants.
var referenceHeaders = []string{
	"references",
	"reference",
	"bibliography",
}

// Parse segments a raw reference list into an ordered sequence of
// ParsedReference values. Segmentation follows reference-boundary heuristics:
// numbering markers ([1], 1., bullets), blank-line runs, and section-end
// headers. Input that cannot be segmented is emitted as a single
// low-confidence reference rather than dropped, so any non-empty input yields
// at least one reference.
func Parse(text string) []domain.ParsedReference {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	segments := segment(text)
	if len(segments) == 0 {
		// No recognizable reference structure. Emit the whole input as one
		// low-confidence reference so nothing is silently discarded.
		return []domain.ParsedReference{{
			Index:         0,
			Raw:           collapseWhitespace(trimmed),
			LowConfidence: true,
		}}
	}

	refs := make([]domain.ParsedReference, 0, len(segments))
	for _, seg := range segments {
		refs = append(refs, buildReference(len(refs), seg))
	}
	return refs
}

// ParseOne treats the whole input as a single reference and extracts hints
// from it directly, skipping list segmentation. Used when the caller already
// has exactly one reference string.
func ParseOne(text string) domain.ParsedReference {
	return buildReference(0, text)
}

// segment walks the input line by line and returns raw reference strings.
// Returns nil when no reference section can be located.
func segment(text string) []string {
	lines := strings.Split(text, "\n")

	var (
		segments       []string
		current        string
		inReferences   bool
		sectionEnded   bool
		emptyLineCount int
	)

	flush := func() {
		if current != "" {
			segments = append(segments, current)
			current = ""
		}
	}

	for i, line := range lines {
		lineClean := strings.TrimSpace(line)

		if isBoilerplate(lineClean) {
			continue
		}

		if !inReferences && !sectionEnded {
			switch {
			case isReferenceHeader(lineClean):
				inReferences = true
				continue
			case bracketMarkerRe.MatchString(lineClean) && len(lineClean) > 20 && hasAnotherBracketRef(lines, i):
				// Headerless list in [n] format.
				inReferences = true
				current = lineClean
				continue
			case strings.HasPrefix(lineClean, "1.") && len(lineClean) > 20 && hasSequentialNumbering(lines, i):
				// Headerless list in sequential n. format.
				inReferences = true
				current = lineClean
				continue
			}
		}

		if !inReferences || sectionEnded {
			continue
		}

		if lineClean == "" {
			emptyLineCount++
			if emptyLineCount >= 3 && current != "" {
				flush()
				sectionEnded = true
				break
			}
			if emptyLineCount >= 2 && current != "" {
				flush()
			}
			continue
		}
		emptyLineCount = 0

		if refMarkerRe.MatchString(lineClean) {
			flush()
			current = lineClean
		} else if current != "" {
			current = joinContinuation(current, lineClean)
		} else {
			current = lineClean
		}

		if isSectionEnd(lineClean) {
			flush()
			sectionEnded = true
			break
		}
	}
	flush()

	return segments
}

// buildReference wraps a raw segment with extracted hints. Segments that do
// not look like a citation keep their text but are flagged low confidence.
func buildReference(index int, raw string) domain.ParsedReference {
	raw = collapseWhitespace(raw)
	ref := domain.ParsedReference{
		Index: index,
		Raw:   raw,
	}

	if !isPlausibleReference(raw) {
		ref.LowConfidence = true
		return ref
	}

	ref.Year = extractYear(raw)
	ref.TitleGuess = extractTitleGuess(raw)
	ref.Surnames = extractSurnames(raw)
	return ref
}

// hasAnotherBracketRef reports whether another [n]-prefixed line appears
// within the next 8 lines, which distinguishes a reference list from an
// inline bracket citation.
func hasAnotherBracketRef(lines []string, i int) bool {
	end := i + 9
	if end > len(lines) {
		end = len(lines)
	}
	for j := i + 1; j < end; j++ {
		if bracketMarkerRe.MatchString(strings.TrimSpace(lines[j])) {
			return true
		}
	}
	return false
}

// hasSequentialNumbering reports whether the next 50 lines continue the
// "n." numbering up through 10, tolerating skipped numbers.
func hasSequentialNumbering(lines []string, i int) bool {
	const maxNumberToCheck = 10
	expected := 2

	end := i + 51
	if end > len(lines) {
		end = len(lines)
	}
	for j := i + 1; j < end; j++ {
		lineClean := strings.TrimSpace(lines[j])
		if lineClean == "" {
			continue
		}
		m := numberMarkerRe.FindStringSubmatch(lineClean)
		if m == nil {
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if num == expected {
			expected++
		} else if num > expected {
			expected = num + 1
		}
		if expected > maxNumberToCheck {
			return true
		}
	}
	return false
}

// joinContinuation appends a continuation line, repairing hyphenation breaks.
func joinContinuation(current, line string) string {
	if strings.HasSuffix(current, "-") {
		return strings.TrimSuffix(current, "-") + line
	}
	return current + " " + line
}

func isBoilerplate(line string) bool {
	if line == "" {
		return false
	}
	lower := strings.ToLower(line)
	for _, frag := range boilerplateFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	if urlRe.MatchString(lower) || strings.Contains(lower, "doi.org") {
		return true
	}
	if copyrightRe.MatchString(lower) || strings.Contains(lower, "copyright") {
		return true
	}
	return false
}

func isReferenceHeader(line string) bool {
	lower := strings.ToLower(strings.TrimSpace(line))
	for _, header := range referenceHeaders {
		if lower == header || strings.HasPrefix(lower, header) {
			return true
		}
	}
	return false
}

// isSectionEnd reports whether a line is a short standalone header marking
// the end of the reference list.
func isSectionEnd(line string) bool {
	lower := strings.ToLower(strings.TrimSpace(line))
	if len(lower) >= 50 {
		return false
	}
	for _, header := range sectionEndHeaders {
		if strings.HasPrefix(lower, header) {
			return true
		}
	}
	return false
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
