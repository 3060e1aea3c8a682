package salvage

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/crashify360/totalloss/internal/model"
)

const (
	minSectionLen = 20
	snippetLen    = 100
)

var sectionBreakRe = regexp.MustCompile(`\n\s*\n|-{3,}|={3,}`)

// SectionOffer is the extraction result for one section of a multi-part
// reply, such as a broker forwarding offers from several yards.
type SectionOffer struct {
	Section int                    `json:"section"`
	Result  model.ExtractionResult `json:"result"`
	Snippet string                 `json:"snippet"`
}

// ExtractSections splits text on blank lines and horizontal rules and
// extracts each section that is long enough to hold an offer. Section
// numbers are 1-based positions in the split, so skipped sections leave gaps.
func (e *Extractor) ExtractSections(text string, policyValue decimal.Decimal) []SectionOffer {
	var out []SectionOffer
	for i, part := range sectionBreakRe.Split(text, -1) {
		part = strings.TrimSpace(part)
		if len(part) < minSectionLen {
			continue
		}
		out = append(out, SectionOffer{
			Section: i + 1,
			Result:  e.Extract(part, policyValue),
			Snippet: snippet(part),
		})
	}
	return out
}

func snippet(s string) string {
	if len(s) <= snippetLen {
		return s
	}
	cut := snippetLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
