// Package threshold decides whether a damaged vehicle is an economic total loss.
//
// The evaluator is pure: it performs no I/O, holds no mutable state and reads
// no clock, so a single Evaluator may be shared by any number of goroutines.
package threshold

import (
	"fmt"
	"runtime"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/crashify360/totalloss/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Evaluator applies a fixed rate table to cases.
type Evaluator struct {
	rates       Rates
	concurrency int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithConcurrency bounds the number of cases EvaluateBatch evaluates at once.
func WithConcurrency(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewEvaluator creates an Evaluator over rates.
func NewEvaluator(rates Rates, opts ...Option) *Evaluator {
	e := &Evaluator{
		rates:       rates,
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Rates returns the rate table the evaluator was built with.
func (e *Evaluator) Rates() Rates {
	return e.rates
}

// Evaluate computes the total-loss decision for c.
//
// Client losses compare the repair quote against rate × policy value. Third
// party losses compare it against rate × (policy value − salvage value). A
// quote equal to the threshold is repairable.
func (e *Evaluator) Evaluate(c model.Case) (*model.Decision, error) {
	if err := checkCase(c); err != nil {
		return nil, err
	}

	rate := e.rates.For(c)

	var (
		basis       model.Basis
		basisAmount decimal.Decimal
		netValue    decimal.NullDecimal
	)
	switch c.LossType {
	case model.LossTypeClient:
		// Salvage is recovered separately after the write-off, so it never
		// lowers a client threshold.
		basis = model.BasisPolicyValue
		basisAmount = c.PolicyValue
	case model.LossTypeThirdParty:
		net := c.PolicyValue.Sub(c.SalvageValue)
		basis = model.BasisNetValue
		basisAmount = net
		netValue = decimal.NullDecimal{Decimal: net, Valid: true}
	}

	threshold := basisAmount.Mul(rate)
	isTotalLoss := c.RepairQuote.GreaterThan(threshold)
	pct := percentage(c.RepairQuote, threshold)

	d := &model.Decision{
		Case:                c,
		Rate:                rate,
		Threshold:           threshold,
		NetValue:            netValue,
		RepairQuote:         c.RepairQuote,
		DecisionMargin:      c.RepairQuote.Sub(threshold),
		ThresholdPercentage: pct,
		IsTotalLoss:         isTotalLoss,
	}
	d.Explanation = explain(basis, basisAmount, rate, threshold, c.RepairQuote, isTotalLoss, !pct.Defined)
	return d, nil
}

// BatchResult is the outcome of one case in EvaluateBatch. Exactly one of
// Decision and Err is set.
type BatchResult struct {
	Index    int
	Case     model.Case
	Decision *model.Decision
	Err      error
}

// OK reports whether the case evaluated successfully.
func (r BatchResult) OK() bool {
	return r.Err == nil
}

// EvaluateBatch evaluates every case independently and in parallel. Results
// are returned in input order; an invalid case yields an Err entry and never
// affects its siblings.
func (e *Evaluator) EvaluateBatch(cases []model.Case) []BatchResult {
	results := make([]BatchResult, len(cases))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, c := range cases {
		g.Go(func() error {
			d, err := e.Evaluate(c)
			results[i] = BatchResult{Index: i, Case: c, Decision: d, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func checkCase(c model.Case) error {
	switch {
	case !c.LossType.Valid():
		return &InvalidInputError{Field: "loss_type", Value: string(c.LossType), Reason: "must be client or third_party"}
	case !c.PolicyValue.IsPositive():
		return &InvalidInputError{Field: "policy_value", Value: c.PolicyValue.String(), Reason: "must be greater than zero"}
	case c.SalvageValue.IsNegative():
		return &InvalidInputError{Field: "salvage_value", Value: c.SalvageValue.String(), Reason: "cannot be negative"}
	case c.RepairQuote.IsNegative():
		return &InvalidInputError{Field: "repair_quote", Value: c.RepairQuote.String(), Reason: "cannot be negative"}
	case c.SalvageValue.GreaterThan(c.PolicyValue):
		return &InvalidInputError{Field: "salvage_value", Value: c.SalvageValue.String(), Reason: "cannot exceed policy value"}
	}
	return nil
}

// percentage returns repair / threshold × 100 rounded to two places, or the
// undefined sentinel when the threshold is zero.
func percentage(repair, threshold decimal.Decimal) model.Percentage {
	if !threshold.IsPositive() {
		return model.UndefinedPercentage()
	}
	return model.DefinedPercentage(repair.Div(threshold).Mul(hundred).Round(2))
}

func explain(basis model.Basis, basisAmount, rate, threshold, repair decimal.Decimal, isTotalLoss, pctUndefined bool) model.Explanation {
	ratePct := rate.Mul(hundred)
	outcome := model.OutcomeWithin
	if isTotalLoss {
		outcome = model.OutcomeExceeds
	}

	basisPhrase := "policy value"
	if basis == model.BasisNetValue {
		basisPhrase = "net value (policy - salvage)"
	}

	var rationale string
	if isTotalLoss {
		rationale = fmt.Sprintf(
			"The repair quote of $%s exceeds the threshold of $%s, which is %s%% of the %s. The vehicle is an economic total loss.",
			repair.StringFixed(2), threshold.StringFixed(2), ratePct.String(), basisPhrase,
		)
	} else {
		rationale = fmt.Sprintf(
			"The repair quote of $%s does not exceed the threshold of $%s, which is %s%% of the %s. Repair is the economically viable option.",
			repair.StringFixed(2), threshold.StringFixed(2), ratePct.String(), basisPhrase,
		)
	}
	if pctUndefined {
		rationale += " The threshold is zero, so the repair-to-threshold percentage is undefined."
	}

	return model.Explanation{
		Basis:               basis,
		BasisAmount:         basisAmount,
		RatePercent:         ratePct,
		Threshold:           threshold,
		Outcome:             outcome,
		PercentageUndefined: pctUndefined,
		Method:              fmt.Sprintf("%s%% of %s", ratePct.String(), basis),
		Rationale:           rationale,
	}
}
