// Package report renders decisions and extraction results as plain-text
// reports for the terminal and for claim files.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/crashify360/totalloss/internal/model"
)

const width = 68

// Meta carries the parts of a report that are not in the Decision itself.
type Meta struct {
	CaseID      string
	EvaluatedAt time.Time
}

type writer struct {
	w   io.Writer
	err error
}

func (p *writer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *writer) section(title string) {
	p.printf("\n%s\n%s\n", title, strings.Repeat("-", width))
}

func (p *writer) field(label, value string) {
	p.printf("  %-22s %s\n", label+":", value)
}

// Render writes the assessment report for d.
func Render(w io.Writer, d *model.Decision, meta Meta) error {
	p := &writer{w: w}
	c := d.Case

	p.printf("%s\n%s\n%s\n", strings.Repeat("=", width), center("TOTAL LOSS ASSESSMENT REPORT"), strings.Repeat("=", width))

	p.section("CASE INFORMATION")
	if meta.CaseID != "" {
		p.field("Case ID", meta.CaseID)
	}
	p.field("VIN", c.VIN)
	if !meta.EvaluatedAt.IsZero() {
		p.field("Evaluation Date", meta.EvaluatedAt.Format("2006-01-02 15:04:05"))
	}
	p.field("Loss Type", c.LossType.DisplayName())
	p.field("Policy Type", titleCase(string(c.PolicyType)))

	p.section("FINANCIAL BREAKDOWN")
	p.field("Policy Value", Money(c.PolicyValue))
	p.field("Salvage Value", Money(c.SalvageValue))
	p.field("Repair Quote", Money(d.RepairQuote))

	p.section("CALCULATION METHOD: " + d.Explanation.Method)
	if d.NetValue.Valid {
		p.field("Net Value", Money(d.NetValue.Decimal))
	}
	p.field(fmt.Sprintf("Threshold (%s%%)", d.Explanation.RatePercent.String()), Money(d.Threshold))
	pct := "undefined (threshold is zero)"
	if d.ThresholdPercentage.Defined {
		pct = Percent(d.ThresholdPercentage.Value)
	}
	p.field("Repair vs Threshold", pct)
	p.field("Decision Margin", Margin(d))

	p.section("DECISION")
	p.printf("%s\n", center(d.Label()))

	p.section("RATIONALE")
	for _, line := range wrap(d.Explanation.Rationale, width-4) {
		p.printf("  %s\n", line)
	}
	p.printf("\n%s\n", strings.Repeat("=", width))

	return eris.Wrap(p.err, "report: write")
}

// Margin describes how far the repair quote is from the threshold.
func Margin(d *model.Decision) string {
	m := d.DecisionMargin
	switch {
	case m.IsPositive():
		return Money(m) + " over threshold"
	case m.IsNegative():
		return Money(m.Neg()) + " under threshold"
	default:
		return Money(m) + " at threshold"
	}
}

// RenderExtraction writes the ranked candidates and warnings of a salvage
// extraction.
func RenderExtraction(w io.Writer, r *model.ExtractionResult) error {
	p := &writer{w: w}

	p.printf("SALVAGE OFFER EXTRACTION\n%s\n", strings.Repeat("-", width))
	if r.Found() {
		p.field("Best Value", Money(r.BestValue.Decimal))
		p.field("Confidence", fmt.Sprintf("%.2f", r.BestConfidence))
		p.field("Method", string(r.BestMethod))
	} else {
		p.field("Best Value", "none")
	}

	if len(r.Candidates) > 0 {
		p.printf("\n  %-4s %-14s %-10s %-18s %s\n", "#", "VALUE", "CONF", "METHOD", "MATCH")
		for i, c := range r.Candidates {
			p.printf("  %-4d %-14s %-10.2f %-18s %q\n", i+1, Money(c.Value), c.Confidence, c.Method, c.RawMatch)
		}
	}

	if len(r.Warnings) > 0 {
		p.printf("\n  Warnings:\n")
		for _, warn := range r.Warnings {
			p.printf("    - %s\n", warn)
		}
	}
	return eris.Wrap(p.err, "report: write extraction")
}

func center(s string) string {
	pad := (width - len(s)) / 2
	if pad <= 0 {
		return s
	}
	return strings.Repeat(" ", pad) + s
}

// titleCase turns "third_party_fire_theft" into "Third Party Fire Theft".
func titleCase(s string) string {
	parts := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// wrap breaks text into lines of at most n bytes on word boundaries.
func wrap(text string, n int) []string {
	var (
		lines []string
		cur   string
	)
	for _, word := range strings.Fields(text) {
		switch {
		case cur == "":
			cur = word
		case len(cur)+1+len(word) > n:
			lines = append(lines, cur)
			cur = word
		default:
			cur += " " + word
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}
