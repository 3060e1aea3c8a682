package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/crashify360/totalloss/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Timestamps are stored as unix nanoseconds so range filters and expiry
// compare numerically.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS decisions (
	id            TEXT PRIMARY KEY,
	vin           TEXT NOT NULL,
	loss_type     TEXT NOT NULL,
	policy_type   TEXT NOT NULL,
	is_total_loss INTEGER NOT NULL,
	decision      TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS salvage_responses (
	id          TEXT PRIMARY KEY,
	decision_id TEXT NOT NULL REFERENCES decisions(id),
	sender      TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL,
	result      TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS valuation_cache (
	cache_key  TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	cached_at  INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_vin ON decisions(vin);
CREATE INDEX IF NOT EXISTS idx_decisions_loss_type ON decisions(loss_type);
CREATE INDEX IF NOT EXISTS idx_decisions_created_at ON decisions(created_at);
CREATE INDEX IF NOT EXISTS idx_salvage_responses_decision_id ON salvage_responses(decision_id);
CREATE INDEX IF NOT EXISTS idx_valuation_cache_expires_at ON valuation_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveDecision(ctx context.Context, d *model.Decision) (*model.DecisionRecord, error) {
	now := s.now().UTC()
	rec := &model.DecisionRecord{ID: NewDecisionID(now), Decision: *d, CreatedAt: now}

	decisionJSON, err := json.Marshal(d)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal decision")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, vin, loss_type, policy_type, is_total_loss, decision, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, d.Case.VIN, string(d.Case.LossType), string(d.Case.PolicyType), d.IsTotalLoss, string(decisionJSON), now.UnixNano(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert decision")
	}
	return rec, nil
}

func (s *SQLiteStore) SaveDecisions(ctx context.Context, ds []*model.Decision) ([]model.DecisionRecord, error) {
	if len(ds) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO decisions (id, vin, loss_type, policy_type, is_total_loss, decision, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare insert decision")
	}
	defer stmt.Close() //nolint:errcheck

	now := s.now().UTC()
	recs := make([]model.DecisionRecord, len(ds))
	for i, d := range ds {
		decisionJSON, err := json.Marshal(d)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal decision")
		}
		recs[i] = model.DecisionRecord{ID: NewDecisionID(now), Decision: *d, CreatedAt: now}
		if _, err := stmt.ExecContext(ctx,
			recs[i].ID, d.Case.VIN, string(d.Case.LossType), string(d.Case.PolicyType), d.IsTotalLoss, string(decisionJSON), now.UnixNano(),
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert decision %d", i)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit decisions")
	}
	return recs, nil
}

func (s *SQLiteStore) GetDecision(ctx context.Context, id string) (*model.DecisionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE id = ?`, id,
	)
	rec, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: decision %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get decision %s", id)
	}
	return rec, nil
}

func (s *SQLiteStore) ListDecisions(ctx context.Context, filter DecisionFilter) ([]model.DecisionRecord, error) {
	return s.listDecisions(ctx, filter, listLimit(filter.Limit))
}

func (s *SQLiteStore) listDecisions(ctx context.Context, filter DecisionFilter, limit int) ([]model.DecisionRecord, error) {
	where, args := decisionWhere(filter, sqlitePlaceholder, unixNano)
	page, args := pageClause(filter, limit, sqlitePlaceholder, args)

	rows, err := s.db.QueryContext(ctx, `SELECT `+decisionColumns+` FROM decisions`+where+page, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list decisions")
	}
	defer rows.Close()

	var out []model.DecisionRecord
	for rows.Next() {
		rec, err := scanDecision(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan decision")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list decisions iterate")
}

func (s *SQLiteStore) DecisionStats(ctx context.Context, filter DecisionFilter) (*model.DecisionStats, error) {
	filter.Offset = 0
	recs, err := s.listDecisions(ctx, filter, statsLimit)
	if err != nil {
		return nil, err
	}
	stats := model.ComputeStats(recs)
	return &stats, nil
}

func (s *SQLiteStore) SaveSalvageResponse(ctx context.Context, resp *model.SalvageResponse) error {
	if resp.ID == "" {
		resp.ID = uuid.New().String()
	}
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = s.now().UTC()
	}

	resultJSON, err := json.Marshal(resp.Result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal extraction result")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO salvage_responses (id, decision_id, sender, body, result, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		resp.ID, resp.DecisionID, resp.Sender, resp.Text, string(resultJSON), resp.CreatedAt.UnixNano(),
	)
	return eris.Wrapf(err, "sqlite: insert salvage response for decision %s", resp.DecisionID)
}

func (s *SQLiteStore) ListSalvageResponses(ctx context.Context, decisionID string) ([]model.SalvageResponse, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, decision_id, sender, body, result, created_at FROM salvage_responses
		 WHERE decision_id = ? ORDER BY created_at ASC, id ASC`,
		decisionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list salvage responses")
	}
	defer rows.Close()

	var out []model.SalvageResponse
	for rows.Next() {
		var (
			r          model.SalvageResponse
			resultJSON string
			created    int64
		)
		if err := rows.Scan(&r.ID, &r.DecisionID, &r.Sender, &r.Text, &resultJSON, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan salvage response")
		}
		if err := json.Unmarshal([]byte(resultJSON), &r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal extraction result")
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list salvage responses iterate")
}

func (s *SQLiteStore) GetCachedValuation(ctx context.Context, key string) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM valuation_cache WHERE cache_key = ? AND expires_at > ?`,
		key, s.now().UnixNano(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached valuation")
	}
	return []byte(data), nil
}

func (s *SQLiteStore) SetCachedValuation(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO valuation_cache (cache_key, data, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (cache_key) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		key, string(data), now.UnixNano(), now.Add(ttl).UnixNano(),
	)
	return eris.Wrap(err, "sqlite: set cached valuation")
}

func (s *SQLiteStore) DeleteExpiredValuations(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM valuation_cache WHERE expires_at <= ?`, s.now().UnixNano(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired valuations")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func unixNano(t any) any {
	return t.(time.Time).UnixNano()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanDecision(row scannable) (*model.DecisionRecord, error) {
	var (
		rec          model.DecisionRecord
		decisionJSON string
		created      int64
	)
	if err := row.Scan(&rec.ID, &decisionJSON, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(decisionJSON), &rec.Decision); err != nil {
		return nil, eris.Wrap(err, "unmarshal decision")
	}
	rec.CreatedAt = time.Unix(0, created).UTC()
	return &rec, nil
}
