//go:build !integration

package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crashify360/totalloss/internal/salvage"
	"github.com/crashify360/totalloss/internal/store"
	"github.com/crashify360/totalloss/internal/threshold"
	"github.com/crashify360/totalloss/internal/validate"
)

const testVIN = "1HGBH41JXMN109186"

func newTestEnv(t *testing.T) *appEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	return &appEnv{
		Store:     st,
		Evaluator: threshold.NewEvaluator(threshold.DefaultRates()),
		Validator: validate.New(validate.DefaultRules()),
		Extractor: salvage.NewExtractor(salvage.DefaultConfig()),
	}
}

func clientCase() validate.RawCase {
	return validate.RawCase{
		VIN:          testVIN,
		PolicyType:   "comprehensive",
		LossType:     "client",
		PolicyValue:  "20000",
		SalvageValue: "5000",
		RepairQuote:  "15000",
	}
}
