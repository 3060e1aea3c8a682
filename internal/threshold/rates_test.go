package threshold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashify360/totalloss/internal/model"
)

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	r := DefaultRates()

	assert.Equal(t, []string{"client", "commercial", "luxury", "third_party"}, r.Keys())
	v, ok := r.Get("commercial")
	require.True(t, ok)
	assertMoney(t, "0.65", v)
}

func TestRates_For(t *testing.T) {
	t.Parallel()
	r := DefaultRates()

	assertMoney(t, "0.70", r.For(model.Case{PolicyType: model.PolicyComprehensive, LossType: model.LossTypeClient}))
	assertMoney(t, "0.65", r.For(model.Case{PolicyType: model.PolicyCommercial, LossType: model.LossTypeThirdParty}))
	assertMoney(t, "0.75", r.For(model.Case{PolicyType: model.PolicyLuxury, LossType: model.LossTypeClient}))

	empty, err := NewRates(nil)
	require.NoError(t, err)
	assertMoney(t, "0.70", empty.For(model.Case{LossType: model.LossTypeClient}))
}

func TestNewRates_CopiesInput(t *testing.T) {
	t.Parallel()
	table := map[string]decimal.Decimal{"client": decimal.RequireFromString("0.6")}
	r, err := NewRates(table)
	require.NoError(t, err)

	table["client"] = decimal.RequireFromString("0.9")
	v, _ := r.Get("client")
	assertMoney(t, "0.6", v)
}

func TestNewRates_RejectsOutOfRange(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"0", "-0.1", "1.01"} {
		_, err := NewRates(map[string]decimal.Decimal{"client": decimal.RequireFromString(raw)})
		assert.Error(t, err, raw)
	}
	_, err := NewRates(map[string]decimal.Decimal{"client": decimal.RequireFromString("1")})
	assert.NoError(t, err)
}

func TestFromFloats(t *testing.T) {
	t.Parallel()
	r, err := FromFloats(map[string]float64{"client": 0.7, "luxury": 0.75})
	require.NoError(t, err)

	v, ok := r.Get("client")
	require.True(t, ok)
	assert.Equal(t, "0.7", v.String())

	ev := NewEvaluator(r)
	d, err := ev.Evaluate(newCase(model.LossTypeClient, 20000, 0, 14000))
	require.NoError(t, err)
	assertMoney(t, "14000", d.Threshold)
	assert.False(t, d.IsTotalLoss)
}

func TestLoadRates(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rates:\n  client: 0.8\n  fleet: 0.6\n"), 0o644))

	r, err := LoadRates(path)
	require.NoError(t, err)

	v, _ := r.Get("client")
	assertMoney(t, "0.8", v)
	v, _ = r.Get("fleet")
	assertMoney(t, "0.6", v)
	v, _ = r.Get("commercial")
	assertMoney(t, "0.65", v)
}

func TestLoadRates_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, err := LoadRates(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read rates")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("rates: [1, 2"), 0o644))
	_, err = LoadRates(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse rates")

	outOfRange := filepath.Join(dir, "range.yaml")
	require.NoError(t, os.WriteFile(outOfRange, []byte("rates:\n  client: 1.5\n"), 0o644))
	_, err = LoadRates(outOfRange)
	assert.Error(t, err)
}
