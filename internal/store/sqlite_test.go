package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashify360/totalloss/internal/model"
	"github.com/crashify360/totalloss/internal/threshold"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// fixedClock returns a clock that advances one second per call.
func fixedClock(start time.Time) func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return start.Add(time.Duration(n) * time.Second)
	}
}

func testDecision(t *testing.T, lt model.LossType, vin string, policy, salvage, repair int64) *model.Decision {
	t.Helper()
	d, err := threshold.NewEvaluator(threshold.DefaultRates()).Evaluate(model.Case{
		VIN:          vin,
		PolicyType:   model.PolicyComprehensive,
		LossType:     lt,
		PolicyValue:  decimal.NewFromInt(policy),
		SalvageValue: decimal.NewFromInt(salvage),
		RepairQuote:  decimal.NewFromInt(repair),
	})
	require.NoError(t, err)
	return d
}

func TestNewDecisionID(t *testing.T) {
	id := NewDecisionID(time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC))
	assert.Regexp(t, `^DEC-20260314092653-[0-9a-f]{8}$`, id)
	assert.NotEqual(t, id, NewDecisionID(time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)))
}

// --- Decisions ---

func TestSQLite_Decision_SaveAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	d := testDecision(t, model.LossTypeThirdParty, "1HGBH41JXMN109186", 25000, 7000, 13000)
	rec, err := st.SaveDecision(ctx, d)
	require.NoError(t, err)
	assert.Regexp(t, `^DEC-\d{14}-[0-9a-f]{8}$`, rec.ID)

	got, err := st.GetDecision(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.True(t, got.Decision.IsTotalLoss)
	assert.True(t, got.Decision.Threshold.Equal(decimal.NewFromInt(12600)))
	require.True(t, got.Decision.NetValue.Valid)
	assert.True(t, got.Decision.NetValue.Decimal.Equal(decimal.NewFromInt(18000)))
	assert.Equal(t, d.Explanation.Rationale, got.Decision.Explanation.Rationale)
	assert.WithinDuration(t, rec.CreatedAt, got.CreatedAt, time.Microsecond)
}

func TestSQLite_Decision_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetDecision(context.Background(), "DEC-missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_ListDecisions_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st.now = fixedClock(start)
	ctx := context.Background()

	_, err := st.SaveDecision(ctx, testDecision(t, model.LossTypeClient, "1HGBH41JXMN109186", 20000, 5000, 15000))
	require.NoError(t, err)
	_, err = st.SaveDecision(ctx, testDecision(t, model.LossTypeClient, "JH4KA8260MC000000", 20000, 5000, 9000))
	require.NoError(t, err)
	third, err := st.SaveDecision(ctx, testDecision(t, model.LossTypeThirdParty, "1HGBH41JXMN109186", 25000, 7000, 13000))
	require.NoError(t, err)

	all, err := st.ListDecisions(ctx, DecisionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, third.ID, all[0].ID, "newest first")

	clients, err := st.ListDecisions(ctx, DecisionFilter{LossType: model.LossTypeClient})
	require.NoError(t, err)
	assert.Len(t, clients, 2)

	byVIN, err := st.ListDecisions(ctx, DecisionFilter{VIN: "1hgbh41jxmn109186"})
	require.NoError(t, err)
	assert.Len(t, byVIN, 2)

	yes := true
	losses, err := st.ListDecisions(ctx, DecisionFilter{TotalLoss: &yes})
	require.NoError(t, err)
	assert.Len(t, losses, 2)

	recent, err := st.ListDecisions(ctx, DecisionFilter{Since: start.Add(2 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	paged, err := st.ListDecisions(ctx, DecisionFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, all[1].ID, paged[0].ID)
}

func TestSQLite_DecisionStats(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	empty, err := st.DecisionStats(ctx, DecisionFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Total)

	_, err = st.SaveDecision(ctx, testDecision(t, model.LossTypeClient, "1HGBH41JXMN109186", 20000, 5000, 15000))
	require.NoError(t, err)
	_, err = st.SaveDecision(ctx, testDecision(t, model.LossTypeThirdParty, "1HGBH41JXMN109186", 30000, 0, 20000))
	require.NoError(t, err)

	stats, err := st.DecisionStats(ctx, DecisionFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.TotalLosses)
	assert.Equal(t, 1, stats.Repairable)
	assert.InDelta(t, 50.0, stats.TotalLossPercent, 0.001)
	assert.True(t, stats.AvgPolicyValue.Equal(decimal.NewFromInt(25000)))
	assert.Equal(t, 1, stats.ByLossType[model.LossTypeClient])
	assert.Equal(t, 1, stats.ByLossType[model.LossTypeThirdParty])
}

// --- Salvage responses ---

func TestSQLite_SalvageResponses(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec, err := st.SaveDecision(ctx, testDecision(t, model.LossTypeClient, "1HGBH41JXMN109186", 20000, 5000, 15000))
	require.NoError(t, err)

	resp := &model.SalvageResponse{
		DecisionID: rec.ID,
		Sender:     "yard@example.com",
		Text:       "we offer $6,500.00 for the vehicle",
		Result: model.ExtractionResult{
			BestValue:      decimal.NewNullDecimal(decimal.NewFromInt(6500)),
			BestConfidence: 0.8,
			BestMethod:     model.MethodCurrencyPattern,
			Warnings:       []string{},
		},
	}
	require.NoError(t, st.SaveSalvageResponse(ctx, resp))
	assert.NotEmpty(t, resp.ID)
	assert.False(t, resp.CreatedAt.IsZero())

	got, err := st.ListSalvageResponses(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "yard@example.com", got[0].Sender)
	assert.True(t, got[0].Result.BestValue.Decimal.Equal(decimal.NewFromInt(6500)))
	assert.Equal(t, model.MethodCurrencyPattern, got[0].Result.BestMethod)

	none, err := st.ListSalvageResponses(ctx, "DEC-other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

// --- Valuation cache ---

func TestSQLite_ValuationCache(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	data, err := st.GetCachedValuation(ctx, "vin:1HGBH41JXMN109186")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, st.SetCachedValuation(ctx, "vin:1HGBH41JXMN109186", []byte(`{"value":"20000"}`), time.Hour))
	require.NoError(t, st.SetCachedValuation(ctx, "vin:1HGBH41JXMN109186", []byte(`{"value":"21000"}`), time.Hour))

	data, err = st.GetCachedValuation(ctx, "vin:1HGBH41JXMN109186")
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"21000"}`, string(data))
}

func TestSQLite_ValuationCache_Expired(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetCachedValuation(ctx, "old", []byte(`{}`), -time.Hour))
	require.NoError(t, st.SetCachedValuation(ctx, "fresh", []byte(`{}`), time.Hour))

	data, err := st.GetCachedValuation(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, data)

	n, err := st.DeleteExpiredValuations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err = st.GetCachedValuation(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, data)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}

func TestSQLiteStore_SaveDecisions(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	ds := []*model.Decision{
		testDecision(t, model.LossTypeClient, "1HGBH41JXMN109186", 20000, 5000, 15000),
		testDecision(t, model.LossTypeThirdParty, "JTDBR32E720123456", 25000, 7000, 9000),
	}
	recs, err := st.SaveDecisions(ctx, ds)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.NotEqual(t, recs[0].ID, recs[1].ID)
	assert.Equal(t, "JTDBR32E720123456", recs[1].Decision.Case.VIN)

	for _, rec := range recs {
		got, err := st.GetDecision(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.Decision.IsTotalLoss, got.Decision.IsTotalLoss)
	}

	recs, err = st.SaveDecisions(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
