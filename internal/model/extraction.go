package model

import (
	"github.com/shopspring/decimal"
)

// ExtractionMethod names the heuristic that produced a salvage candidate.
type ExtractionMethod string

const (
	MethodStructuredFormat ExtractionMethod = "structured_format"
	MethodCurrencyPattern  ExtractionMethod = "currency_pattern"
	MethodContextual       ExtractionMethod = "contextual"
	MethodKeywordProximity ExtractionMethod = "keyword_proximity"
)

// Priority returns the tie-break rank of the method; lower wins.
func (m ExtractionMethod) Priority() int {
	switch m {
	case MethodStructuredFormat:
		return 0
	case MethodCurrencyPattern:
		return 1
	case MethodContextual:
		return 2
	case MethodKeywordProximity:
		return 3
	default:
		return 4
	}
}

// ExtractionCandidate is one monetary value recovered from free text.
// Start and End are byte offsets of RawMatch within the source text.
type ExtractionCandidate struct {
	Value      decimal.Decimal  `json:"value"`
	Method     ExtractionMethod `json:"method"`
	RawMatch   string           `json:"raw_match"`
	Start      int              `json:"start"`
	End        int              `json:"end"`
	Confidence float64          `json:"confidence"`
}

// Overlaps reports whether the source spans of c and o intersect.
func (c ExtractionCandidate) Overlaps(o ExtractionCandidate) bool {
	return c.Start < o.End && o.Start < c.End
}

// ExtractionResult is the ranked outcome of a salvage extraction.
type ExtractionResult struct {
	Candidates     []ExtractionCandidate `json:"candidates"`
	BestValue      decimal.NullDecimal   `json:"best_value"`
	BestConfidence float64               `json:"best_confidence"`
	BestMethod     ExtractionMethod      `json:"best_method,omitempty"`
	Warnings       []string              `json:"warnings"`
}

// Found reports whether any candidate was extracted.
func (r *ExtractionResult) Found() bool {
	return r.BestValue.Valid
}
