//go:build !integration

package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashify360/totalloss/internal/intake"
	"github.com/crashify360/totalloss/internal/store"
)

func batchRows() []intake.Row {
	repairable := clientCase()
	repairable.RepairQuote = "9000"

	invalid := clientCase()
	invalid.VIN = "SHORT"
	invalid.LossType = "fleet"

	warned := clientCase()
	warned.LossType = "third_party"
	warned.RepairQuote = "45000"

	return []intake.Row{
		{Line: 2, Case: clientCase()},
		{Line: 3, Case: repairable},
		{Line: 5, Case: invalid},
		{Line: 6, Case: warned},
	}
}

func TestProcessBatch(t *testing.T) {
	env := newTestEnv(t)

	sum := processBatch(context.Background(), env, batchRows(), false)
	require.Len(t, sum.Lines, 4)
	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 2, sum.TotalLosses)
	assert.Equal(t, 1, sum.Repairable)
	assert.Equal(t, 1, sum.Invalid)
	assert.Equal(t, 0, sum.Saved)

	assert.True(t, sum.Lines[0].OK())
	assert.True(t, sum.Lines[0].Decision.IsTotalLoss)
	assert.False(t, sum.Lines[1].Decision.IsTotalLoss)

	bad := sum.Lines[2]
	assert.Equal(t, 5, bad.Line)
	assert.Nil(t, bad.Decision)
	assert.Len(t, bad.Errors, 2)

	assert.NotEmpty(t, sum.Lines[3].Warnings, "repair quote above 200% of policy value warns")
	assert.True(t, sum.Lines[3].OK())
}

func TestProcessBatch_Save(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sum := processBatch(ctx, env, batchRows(), true)
	assert.Equal(t, 3, sum.Saved)
	for _, l := range sum.Lines {
		if l.Decision != nil {
			assert.NotEmpty(t, l.ID)
		}
	}

	recs, err := env.Store.ListDecisions(ctx, store.DecisionFilter{})
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestProcessBatch_Empty(t *testing.T) {
	env := newTestEnv(t)
	sum := processBatch(context.Background(), env, nil, false)
	assert.Equal(t, 0, sum.Total)
	assert.Empty(t, sum.Lines)
}

func TestPrintBatch(t *testing.T) {
	env := newTestEnv(t)
	sum := processBatch(context.Background(), env, batchRows(), false)

	var buf bytes.Buffer
	require.NoError(t, printBatch(&buf, sum))
	out := buf.String()
	assert.Contains(t, out, "TOTAL LOSS")
	assert.Contains(t, out, "REPAIRABLE")
	assert.Contains(t, out, "INVALID")
	assert.Contains(t, out, "$15,000.00")
	assert.Contains(t, out, "Processed 4 case(s): 2 total loss, 1 repairable, 1 invalid, 0 saved")
}

func TestEvaluateRaw(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ev, err := evaluateRaw(ctx, env, clientCase(), true)
	require.NoError(t, err)
	assert.True(t, ev.Decision.IsTotalLoss)
	require.NotNil(t, ev.CreatedAt)
	assert.Regexp(t, `^DEC-\d{14}-[0-9a-f]{8}$`, ev.ID)

	bad := clientCase()
	bad.PolicyValue = "abc"
	_, err = evaluateRaw(ctx, env, bad, false)
	require.Error(t, err)
	var ve *validationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "policy_value", ve.res.Errors[0].Field)
}

func TestPrintEvaluation(t *testing.T) {
	env := newTestEnv(t)
	raw := clientCase()
	raw.RepairQuote = "45000"
	ev, err := evaluateRaw(context.Background(), env, raw, false)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printEvaluation(&buf, ev, false))
	assert.Contains(t, buf.String(), "warning: repair_quote")
	assert.Contains(t, buf.String(), "TOTAL LOSS ASSESSMENT REPORT")

	buf.Reset()
	require.NoError(t, printEvaluation(&buf, ev, true))
	assert.Contains(t, buf.String(), `"is_total_loss": true`)
}
