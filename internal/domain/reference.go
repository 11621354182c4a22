package domain

// ParsedReference is one segmented entry from a raw reference list, together
// with the weak structured hints extracted from it. Immutable once parsed.
type ParsedReference struct {
	// Index is the zero-based position of the reference in the source list.
	Index int `json:"index"`

	// Raw is the reference text as it appeared in the input, with line
	// breaks collapsed to single spaces.
	Raw string `json:"raw"`

	// Year is the extracted publication year, or 0 if none was found.
	Year int `json:"year,omitempty"`

	// TitleGuess is the best-effort title substring, or empty.
	TitleGuess string `json:"title_guess,omitempty"`

	// Surnames is the ordered list of lowercase author surnames found in
	// the reference, possibly empty.
	Surnames []string `json:"surnames,omitempty"`

	// LowConfidence marks references that could not be segmented or that
	// lack the usual bibliographic features. Hints are not extracted for
	// low-confidence references.
	LowConfidence bool `json:"low_confidence,omitempty"`
}

// Classification is the three-tier verdict assigned to a reference after
// scoring against its candidate records.
type Classification string

const (
	ClassificationVerified     Classification = "verified"
	ClassificationUncertain    Classification = "uncertain"
	ClassificationUnverifiable Classification = "unverifiable"
)

// Verdict is the verification outcome for one parsed reference. Derived
// data, recomputed on every request.
type Verdict struct {
	// ReferenceIndex identifies the parsed reference this verdict is for.
	ReferenceIndex int `json:"reference_index"`

	// Best is the highest-scoring candidate record, or nil when no
	// candidate was found.
	Best *Paper `json:"best,omitempty"`

	// Score is the composite similarity score in [0,1].
	Score float64 `json:"score"`

	// Classification is the verdict tier derived from Score.
	Classification Classification `json:"classification"`

	// FailureReason is set when resolution failed (provider outage,
	// exhausted retries); the verdict is then unverifiable.
	FailureReason string `json:"failure_reason,omitempty"`
}
