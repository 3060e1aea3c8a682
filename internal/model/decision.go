package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Decision labels rendered in reports, logs and exports.
const (
	LabelTotalLoss  = "TOTAL LOSS"
	LabelRepairable = "REPAIRABLE"
)

// Basis names the monetary amount the threshold is a percentage of.
type Basis string

const (
	BasisPolicyValue Basis = "Policy Value"
	BasisNetValue    Basis = "Net Value (Policy - Salvage)"
)

// Outcome is the comparison result between repair quote and threshold.
type Outcome string

const (
	OutcomeExceeds Outcome = "exceeds" // repair quote strictly greater than threshold
	OutcomeWithin  Outcome = "within"  // repair quote at or below threshold
)

// Percentage is a ratio expressed in percent that may be undefined when its
// denominator is zero. The zero value is undefined.
type Percentage struct {
	Value   decimal.Decimal
	Defined bool
}

// DefinedPercentage returns a defined Percentage holding v.
func DefinedPercentage(v decimal.Decimal) Percentage {
	return Percentage{Value: v, Defined: true}
}

// UndefinedPercentage returns the sentinel for a zero denominator.
func UndefinedPercentage() Percentage {
	return Percentage{}
}

// MarshalJSON encodes an undefined percentage as null.
func (p Percentage) MarshalJSON() ([]byte, error) {
	if !p.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(p.Value)
}

// UnmarshalJSON accepts a number or null.
func (p *Percentage) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = Percentage{}
		return nil
	}
	var v decimal.Decimal
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = DefinedPercentage(v)
	return nil
}

// String renders the percentage with one decimal place, or "undefined".
func (p Percentage) String() string {
	if !p.Defined {
		return "undefined"
	}
	return p.Value.StringFixed(1) + "%"
}

// Explanation is the structured rationale behind a Decision.
type Explanation struct {
	Basis               Basis           `json:"basis"`
	BasisAmount         decimal.Decimal `json:"basis_amount"`
	RatePercent         decimal.Decimal `json:"rate_percent"`
	Threshold           decimal.Decimal `json:"threshold"`
	Outcome             Outcome         `json:"outcome"`
	PercentageUndefined bool            `json:"percentage_undefined"`
	Method              string          `json:"method"`
	Rationale           string          `json:"rationale"`
}

// Decision is the immutable output of a threshold evaluation.
type Decision struct {
	Case                Case                `json:"case"`
	Rate                decimal.Decimal     `json:"rate"`
	Threshold           decimal.Decimal     `json:"threshold"`
	NetValue            decimal.NullDecimal `json:"net_value"`
	RepairQuote         decimal.Decimal     `json:"repair_quote"`
	DecisionMargin      decimal.Decimal     `json:"decision_margin"`
	ThresholdPercentage Percentage          `json:"threshold_percentage"`
	IsTotalLoss         bool                `json:"is_total_loss"`
	Explanation         Explanation         `json:"explanation"`
}

// Label returns the final decision label.
func (d *Decision) Label() string {
	if d.IsTotalLoss {
		return LabelTotalLoss
	}
	return LabelRepairable
}
