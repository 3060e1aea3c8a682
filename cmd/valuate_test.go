//go:build !integration

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashify360/totalloss/pkg/autograp"
)

func TestPrintValuation(t *testing.T) {
	v := &autograp.Valuation{
		VIN:          testVIN,
		MarketValue:  decimal.NewFromInt(24500),
		TradeInValue: decimal.NewFromInt(21000),
		RetailValue:  decimal.NewFromInt(27990),
		Year:         2020,
		Make:         "Toyota",
		Model:        "Camry",
		Variant:      "Ascent",
		Confidence:   "high",
	}

	var buf bytes.Buffer
	require.NoError(t, printValuation(&buf, v, nil))
	out := buf.String()
	assert.Contains(t, out, "Vehicle:        2020 Toyota Camry Ascent")
	assert.Contains(t, out, "Market value:   $24,500.00")
	assert.NotContains(t, out, "Last updated")
	assert.NotContains(t, out, "Body type")

	buf.Reset()
	require.NoError(t, printValuation(&buf, v, &autograp.Vehicle{BodyType: "Sedan", Registration: "ABC123", State: "NSW"}))
	assert.Contains(t, buf.String(), "Body type:      Sedan")
	assert.Contains(t, buf.String(), "Registration:   ABC123 NSW")
}

type failWriter struct{ n int }

func (f *failWriter) Write(p []byte) (int, error) {
	f.n++
	return 0, errors.New("disk full")
}

func TestLinePrinter_StopsAfterError(t *testing.T) {
	w := &failWriter{}
	p := &linePrinter{w: w}
	p.line("one")
	p.line("two")
	require.Error(t, p.err)
	assert.Contains(t, p.err.Error(), "disk full")
	assert.Equal(t, 1, w.n)
}
