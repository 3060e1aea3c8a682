package threshold

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/crashify360/totalloss/internal/model"
)

// DefaultRate applies when neither the policy type nor the loss type has an entry.
var DefaultRate = decimal.RequireFromString("0.70")

// Rates is an immutable lookup table of threshold percentages keyed by
// policy type or loss type. Construct it with NewRates or DefaultRates.
type Rates struct {
	byKey map[string]decimal.Decimal
}

// DefaultRates returns the standard rate table.
func DefaultRates() Rates {
	r, _ := NewRates(map[string]decimal.Decimal{
		string(model.LossTypeClient):     decimal.RequireFromString("0.70"),
		string(model.LossTypeThirdParty): decimal.RequireFromString("0.70"),
		string(model.PolicyCommercial):   decimal.RequireFromString("0.65"),
		string(model.PolicyLuxury):       decimal.RequireFromString("0.75"),
	})
	return r
}

// NewRates copies table into a new Rates. Every rate must lie in (0, 1].
func NewRates(table map[string]decimal.Decimal) (Rates, error) {
	byKey := make(map[string]decimal.Decimal, len(table))
	for k, v := range table {
		if !v.IsPositive() || v.GreaterThan(decimal.NewFromInt(1)) {
			return Rates{}, eris.Errorf("threshold: rate for %q must be in (0, 1], got %s", k, v)
		}
		byKey[k] = v
	}
	return Rates{byKey: byKey}, nil
}

// FromFloats builds Rates from a float table as decoded by viper.
func FromFloats(table map[string]float64) (Rates, error) {
	conv := make(map[string]decimal.Decimal, len(table))
	for k, v := range table {
		conv[k] = decimal.NewFromFloat(v)
	}
	return NewRates(conv)
}

// For returns the rate that applies to c: the policy type entry when one
// exists, otherwise the loss type entry, otherwise DefaultRate.
func (r Rates) For(c model.Case) decimal.Decimal {
	if v, ok := r.byKey[string(c.PolicyType)]; ok {
		return v
	}
	if v, ok := r.byKey[string(c.LossType)]; ok {
		return v
	}
	return DefaultRate
}

// Keys returns the configured keys in sorted order.
func (r Rates) Keys() []string {
	keys := make([]string, 0, len(r.byKey))
	for k := range r.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the rate stored under key.
func (r Rates) Get(key string) (decimal.Decimal, bool) {
	v, ok := r.byKey[key]
	return v, ok
}

// LoadRates reads a YAML rate table of the form:
//
//	rates:
//	  client: 0.70
//	  commercial: 0.65
//
// Keys absent from the file fall back to DefaultRates.
func LoadRates(path string) (Rates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rates{}, eris.Wrapf(err, "threshold: read rates %s", path)
	}

	var file struct {
		Rates map[string]float64 `yaml:"rates"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Rates{}, eris.Wrap(err, "threshold: parse rates")
	}

	merged := make(map[string]decimal.Decimal)
	def := DefaultRates()
	for _, k := range def.Keys() {
		merged[k], _ = def.Get(k)
	}
	for k, v := range file.Rates {
		merged[k] = decimal.NewFromFloat(v)
	}
	return NewRates(merged)
}
