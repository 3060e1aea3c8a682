// Package validate checks raw user input before it reaches the evaluator.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/crashify360/totalloss/internal/model"
)

var (
	vinRe   = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)
	emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phoneRe = regexp.MustCompile(`^(?:\+?61|0)[234578][0-9]{8}$`)
	// phoneNoise is stripped before matching: spaces, dashes and parentheses.
	phoneNoise = regexp.MustCompile(`[\s\-()]`)
)

// Rules are the configurable plausibility bounds.
type Rules struct {
	MinPolicyValue float64 `mapstructure:"min_policy_value"`
	MaxPolicyValue float64 `mapstructure:"max_policy_value"`
	MaxRepairRatio float64 `mapstructure:"max_repair_ratio"`
}

// DefaultRules returns the standard bounds.
func DefaultRules() Rules {
	return Rules{
		MinPolicyValue: 1000,
		MaxPolicyValue: 500000,
		MaxRepairRatio: 2.0,
	}
}

// RawCase is an unvalidated case as it arrives from the CLI, a spreadsheet
// row or an HTTP request body.
type RawCase struct {
	VIN          string `json:"vin"`
	PolicyType   string `json:"policy_type"`
	LossType     string `json:"loss_type"`
	PolicyValue  string `json:"policy_value"`
	SalvageValue string `json:"salvage_value"`
	RepairQuote  string `json:"repair_quote"`
	OwnerEmail   string `json:"owner_email,omitempty"`
	OwnerPhone   string `json:"owner_phone,omitempty"`
}

// FieldError describes a problem with one input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Message
}

// Result collects errors and warnings for one case. Warnings never block
// evaluation.
type Result struct {
	Errors   []FieldError `json:"errors"`
	Warnings []FieldError `json:"warnings"`
}

// Valid reports whether no errors were recorded.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

// Err returns nil for a valid result, otherwise an error listing every
// field error.
func (r *Result) Err() error {
	if r.Valid() {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.String()
	}
	return eris.Errorf("validate: %d error(s): %s", len(r.Errors), strings.Join(msgs, "; "))
}

// Summary returns a one-line human-readable outcome.
func (r *Result) Summary() string {
	if r.Valid() {
		if len(r.Warnings) > 0 {
			return fmt.Sprintf("all validations passed (%d warning(s))", len(r.Warnings))
		}
		return "all validations passed"
	}
	return fmt.Sprintf("validation failed with %d error(s)", len(r.Errors))
}

func (r *Result) addError(field, msg, value string) {
	r.Errors = append(r.Errors, FieldError{Field: field, Message: msg, Value: value})
	zap.L().Debug("validate: field rejected",
		zap.String("field", field),
		zap.String("value", value),
		zap.String("reason", msg),
	)
}

func (r *Result) addWarning(field, msg string) {
	r.Warnings = append(r.Warnings, FieldError{Field: field, Message: msg})
}

// Validator applies Rules to raw input.
type Validator struct {
	rules Rules
}

// New creates a Validator. Zero-valued rules take their defaults.
func New(rules Rules) *Validator {
	def := DefaultRules()
	if rules.MinPolicyValue <= 0 {
		rules.MinPolicyValue = def.MinPolicyValue
	}
	if rules.MaxPolicyValue <= 0 {
		rules.MaxPolicyValue = def.MaxPolicyValue
	}
	if rules.MaxRepairRatio <= 0 {
		rules.MaxRepairRatio = def.MaxRepairRatio
	}
	return &Validator{rules: rules}
}

// Rules returns the effective bounds.
func (v *Validator) Rules() Rules {
	return v.rules
}

// ValidateCase normalizes and checks raw input. The returned Case is only
// meaningful when the Result is valid.
func (v *Validator) ValidateCase(raw RawCase) (model.Case, Result) {
	var res Result
	c := model.Case{
		VIN:        strings.ToUpper(strings.TrimSpace(raw.VIN)),
		PolicyType: model.PolicyType(strings.ToLower(strings.TrimSpace(raw.PolicyType))),
		LossType:   model.LossType(strings.ToLower(strings.TrimSpace(raw.LossType))),
	}

	if !ValidVIN(c.VIN) {
		res.addError("vin", "invalid VIN format, must be 17 characters, alphanumeric (no I, O, Q)", raw.VIN)
	}
	if !c.PolicyType.Valid() {
		res.addError("policy_type", "invalid policy type, must be one of: "+joinPolicyTypes(), raw.PolicyType)
	}
	if !c.LossType.Valid() {
		res.addError("loss_type", "invalid loss type, must be one of: "+joinLossTypes(), raw.LossType)
	}

	policy, policyOK := v.money(&res, "policy_value", "policy value", raw.PolicyValue)
	if policyOK {
		minV := decimal.NewFromFloat(v.rules.MinPolicyValue)
		maxV := decimal.NewFromFloat(v.rules.MaxPolicyValue)
		switch {
		case policy.LessThan(minV):
			res.addError("policy_value", "policy value must be at least $"+minV.StringFixed(2), raw.PolicyValue)
			policyOK = false
		case policy.GreaterThan(maxV):
			res.addError("policy_value", "policy value cannot exceed $"+maxV.StringFixed(2), raw.PolicyValue)
			policyOK = false
		}
		c.PolicyValue = policy
	}

	salvage, salvageOK := v.money(&res, "salvage_value", "salvage value", raw.SalvageValue)
	if salvageOK {
		c.SalvageValue = salvage
		if policyOK && salvage.GreaterThan(policy) {
			res.addError("salvage_value", "salvage value cannot exceed policy value", raw.SalvageValue)
		}
	}

	repair, repairOK := v.money(&res, "repair_quote", "repair quote", raw.RepairQuote)
	if repairOK {
		c.RepairQuote = repair
		limit := policy.Mul(decimal.NewFromFloat(v.rules.MaxRepairRatio))
		if policyOK && repair.GreaterThan(limit) {
			ratio := repair.Div(policy).StringFixed(1)
			res.addWarning("repair_quote", "repair quote is "+ratio+"x the policy value, please verify")
		}
	}

	if raw.OwnerEmail != "" && !ValidEmail(raw.OwnerEmail) {
		res.addError("owner_email", "invalid email address format", raw.OwnerEmail)
	}
	if raw.OwnerPhone != "" && !ValidPhone(raw.OwnerPhone) {
		res.addError("owner_phone", "invalid phone number format (Australian format required)", raw.OwnerPhone)
	}

	return c, res
}

// money parses a non-negative amount. "$", spaces and thousands separators
// are tolerated.
func (v *Validator) money(res *Result, field, label, raw string) (decimal.Decimal, bool) {
	d, err := ParseMoney(raw)
	if err != nil {
		res.addError(field, label+" must be a valid number", raw)
		return decimal.Decimal{}, false
	}
	if d.IsNegative() {
		res.addError(field, label+" cannot be negative", raw)
		return decimal.Decimal{}, false
	}
	return d, true
}

// ParseMoney parses an amount such as "25000", "$25,000.00" or "AUD 25000".
func ParseMoney(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "AUD"), "aud")
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if s == "" {
		return decimal.Decimal{}, eris.New("validate: empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, eris.Wrapf(err, "validate: parse amount %q", raw)
	}
	return d, nil
}

// ValidVIN reports whether vin is a 17-character VIN without I, O or Q.
func ValidVIN(vin string) bool {
	return vinRe.MatchString(strings.ToUpper(strings.TrimSpace(vin)))
}

// ValidEmail reports whether email looks like a deliverable address.
func ValidEmail(email string) bool {
	return emailRe.MatchString(strings.TrimSpace(email))
}

// ValidPhone reports whether phone is an Australian landline or mobile
// number in 0X or +61 form.
func ValidPhone(phone string) bool {
	return phoneRe.MatchString(phoneNoise.ReplaceAllString(phone, ""))
}

// Sanitize removes NUL and control characters other than newline and tab,
// truncates to maxLen runes and trims surrounding whitespace.
func Sanitize(text string, maxLen int) string {
	if text == "" {
		return ""
	}
	var b strings.Builder
	n := 0
	for _, r := range text {
		if maxLen > 0 && n >= maxLen {
			break
		}
		n++
		if r == '\n' || r == '\t' || r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func joinPolicyTypes() string {
	s := make([]string, len(model.PolicyTypes))
	for i, p := range model.PolicyTypes {
		s[i] = string(p)
	}
	return strings.Join(s, ", ")
}

func joinLossTypes() string {
	s := make([]string, len(model.LossTypes))
	for i, l := range model.LossTypes {
		s[i] = string(l)
	}
	return strings.Join(s, ", ")
}
