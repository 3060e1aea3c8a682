package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashify360/totalloss/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock, now: time.Now}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS decisions`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveDecision(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	d := testDecision(t, model.LossTypeClient, "1HGBH41JXMN109186", 20000, 5000, 15000)

	mock.ExpectExec(`INSERT INTO decisions`).
		WithArgs(pgxmock.AnyArg(), "1HGBH41JXMN109186", "client", "comprehensive", true, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec, err := s.SaveDecision(context.Background(), d)
	require.NoError(t, err)
	assert.Regexp(t, `^DEC-\d{14}-[0-9a-f]{8}$`, rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetDecision(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	d := testDecision(t, model.LossTypeThirdParty, "1HGBH41JXMN109186", 25000, 7000, 13000)
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	created := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, decision, created_at FROM decisions WHERE id = \$1`).
		WithArgs("DEC-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "decision", "created_at"}).AddRow("DEC-1", raw, created))

	rec, err := s.GetDecision(context.Background(), "DEC-1")
	require.NoError(t, err)
	assert.Equal(t, "DEC-1", rec.ID)
	assert.True(t, rec.Decision.IsTotalLoss)
	assert.Equal(t, created, rec.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetDecision_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, decision, created_at FROM decisions WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetDecision(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListDecisions_Filter(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	no := false

	mock.ExpectQuery(`FROM decisions WHERE loss_type = \$1 AND is_total_loss = \$2 ORDER BY created_at DESC, id DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("client", false, 20, 40).
		WillReturnRows(pgxmock.NewRows([]string{"id", "decision", "created_at"}))

	recs, err := s.ListDecisions(context.Background(), DecisionFilter{
		LossType:  model.LossTypeClient,
		TotalLoss: &no,
		Limit:     20,
		Offset:    40,
	})
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCachedValuation_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM valuation_cache`).
		WithArgs("vin:unknown").
		WillReturnError(pgx.ErrNoRows)

	data, err := s.GetCachedValuation(context.Background(), "vin:unknown")
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetCachedValuation_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs("vin:1HGBH41JXMN109186", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetCachedValuation(context.Background(), "vin:1HGBH41JXMN109186", []byte(`{"value":"20000"}`), 24*time.Hour)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteExpiredValuations(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM valuation_cache WHERE expires_at <= now\(\)`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.DeleteExpiredValuations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveSalvageResponse(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO salvage_responses`).
		WithArgs(pgxmock.AnyArg(), "DEC-1", "yard@example.com", "Offer: $5,000", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	resp := &model.SalvageResponse{DecisionID: "DEC-1", Sender: "yard@example.com", Text: "Offer: $5,000"}
	require.NoError(t, s.SaveSalvageResponse(context.Background(), resp))
	assert.NotEmpty(t, resp.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveDecisions(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ds := []*model.Decision{
		testDecision(t, model.LossTypeClient, "1HGBH41JXMN109186", 20000, 5000, 15000),
		testDecision(t, model.LossTypeThirdParty, "JTDBR32E720123456", 25000, 7000, 9000),
	}

	mock.ExpectCopyFrom(pgx.Identifier{"decisions"}, decisionCopyColumns).WillReturnResult(2)

	recs, err := s.SaveDecisions(context.Background(), ds)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Regexp(t, `^DEC-\d{14}-[0-9a-f]{8}$`, recs[0].ID)
	assert.False(t, recs[1].Decision.IsTotalLoss)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveDecisions_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ds := []*model.Decision{testDecision(t, model.LossTypeClient, "1HGBH41JXMN109186", 20000, 5000, 15000)}

	mock.ExpectCopyFrom(pgx.Identifier{"decisions"}, decisionCopyColumns).WillReturnError(eris.New("connection reset"))

	_, err := s.SaveDecisions(context.Background(), ds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: save decisions")
	assert.NoError(t, mock.ExpectationsWereMet())
}
