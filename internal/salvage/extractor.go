// Package salvage recovers a salvage offer amount from free-text yard replies.
// Extraction is heuristic: several strategies propose candidates, duplicates
// are merged and the survivors are ranked by confidence.
package salvage

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/crashify360/totalloss/internal/model"
)

// Warnings attached to an ExtractionResult.
const (
	WarnNotFound      = "no salvage value found"
	WarnExceedsPolicy = "value exceeds policy value"
	WarnUnusuallyLow  = "value unusually low"
	WarnUnusuallyHigh = "value unusually high"
	WarnPlaceholder   = "value looks like a placeholder"
	WarnLowConfidence = "low confidence match"
)

// Config tunes extraction and the reasonableness checks.
type Config struct {
	LowRatio        float64 `mapstructure:"low_ratio"`
	HighRatio       float64 `mapstructure:"high_ratio"`
	MinBareValue    float64 `mapstructure:"min_bare_value"`
	ConfidenceFloor float64 `mapstructure:"confidence_floor"`
	Window          int     `mapstructure:"window"`
}

// DefaultConfig returns the standard extraction settings.
func DefaultConfig() Config {
	return Config{
		LowRatio:        0.05,
		HighRatio:       0.60,
		MinBareValue:    100,
		ConfidenceFloor: 0.6,
		Window:          5,
	}
}

// Extractor runs the strategy pipeline over a text. It holds no mutable state
// and is safe for concurrent use.
type Extractor struct {
	cfg        Config
	strategies []Strategy
}

// NewExtractor creates an Extractor. Zero-valued config fields take their
// defaults.
func NewExtractor(cfg Config) *Extractor {
	def := DefaultConfig()
	if cfg.LowRatio <= 0 {
		cfg.LowRatio = def.LowRatio
	}
	if cfg.HighRatio <= 0 {
		cfg.HighRatio = def.HighRatio
	}
	if cfg.MinBareValue <= 0 {
		cfg.MinBareValue = def.MinBareValue
	}
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = def.ConfidenceFloor
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}

	minBare := decimal.NewFromFloat(cfg.MinBareValue)
	return &Extractor{
		cfg: cfg,
		strategies: []Strategy{
			NewStructuredFormat(minBare),
			NewCurrencyPattern(cfg.Window),
			NewContextual(cfg.Window, minBare),
			NewKeywordProximity(minBare),
		},
	}
}

// Config returns the effective configuration.
func (e *Extractor) Config() Config {
	return e.cfg
}

// Extract finds the most likely salvage offer in text and checks it against
// policyValue. A policyValue of zero or less skips the policy checks. Extract
// never fails; absence of an amount is reported as a warning.
func (e *Extractor) Extract(text string, policyValue decimal.Decimal) model.ExtractionResult {
	var all []model.ExtractionCandidate
	for _, s := range e.strategies {
		all = append(all, s(text)...)
	}

	cands := merge(all)
	res := model.ExtractionResult{Candidates: cands}
	if len(cands) == 0 {
		res.Candidates = []model.ExtractionCandidate{}
		res.Warnings = []string{WarnNotFound}
		return res
	}

	best := cands[0]
	res.BestValue = decimal.NewNullDecimal(best.Value)
	res.BestConfidence = best.Confidence
	res.BestMethod = best.Method
	res.Warnings = e.warnings(best, policyValue)
	return res
}

// merge collapses candidates with the same value and overlapping spans,
// keeping the strongest, then drops proximity guesses when anything
// stronger was found. The result is ranked.
func merge(all []model.ExtractionCandidate) []model.ExtractionCandidate {
	sortCandidates(all)

	kept := make([]model.ExtractionCandidate, 0, len(all))
	for _, c := range all {
		dup := false
		for _, k := range kept {
			if k.Value.Equal(c.Value) && k.Overlaps(c) {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, c)
		}
	}

	strong := false
	for _, c := range kept {
		if c.Method != model.MethodKeywordProximity {
			strong = true
			break
		}
	}
	if !strong {
		return kept
	}
	out := kept[:0]
	for _, c := range kept {
		if c.Method != model.MethodKeywordProximity {
			out = append(out, c)
		}
	}
	return out
}

func sortCandidates(cs []model.ExtractionCandidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if pa, pb := a.Method.Priority(), b.Method.Priority(); pa != pb {
			return pa < pb
		}
		return a.Start < b.Start
	})
}

func (e *Extractor) warnings(best model.ExtractionCandidate, policyValue decimal.Decimal) []string {
	var warns []string
	v := best.Value

	if policyValue.IsPositive() {
		low := policyValue.Mul(decimal.NewFromFloat(e.cfg.LowRatio))
		high := policyValue.Mul(decimal.NewFromFloat(e.cfg.HighRatio))
		switch {
		case v.GreaterThan(policyValue):
			warns = append(warns, WarnExceedsPolicy)
		case v.GreaterThan(high):
			warns = append(warns, WarnUnusuallyHigh)
		case v.LessThan(low):
			warns = append(warns, WarnUnusuallyLow)
		}
	}
	if isPlaceholder(v) {
		warns = append(warns, WarnPlaceholder)
	}
	if best.Confidence < e.cfg.ConfidenceFloor {
		warns = append(warns, WarnLowConfidence)
	}

	sort.Strings(warns)
	if warns == nil {
		warns = []string{}
	}
	return warns
}

var placeholderFloor = decimal.NewFromInt(100000)

// isPlaceholder flags amounts that look typed to fill a field rather than
// quoted: 0 or 1, one repeated digit (9999), an ascending run (12345) or a
// large power of ten.
func isPlaceholder(v decimal.Decimal) bool {
	if v.LessThanOrEqual(decimal.NewFromInt(1)) {
		return true
	}
	if !v.Equal(v.Truncate(0)) {
		return false
	}
	digits := v.String()
	if len(digits) >= 4 {
		if strings.Count(digits, digits[:1]) == len(digits) {
			return true
		}
		if strings.HasPrefix("1234567890", digits) {
			return true
		}
	}
	if v.GreaterThanOrEqual(placeholderFloor) {
		s := strings.TrimRight(digits, "0")
		return s == "1"
	}
	return false
}
