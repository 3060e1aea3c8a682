package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/crashify360/totalloss/internal/db"
	"github.com/crashify360/totalloss/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS decisions (
	id            TEXT PRIMARY KEY,
	vin           TEXT NOT NULL,
	loss_type     TEXT NOT NULL,
	policy_type   TEXT NOT NULL,
	is_total_loss BOOLEAN NOT NULL,
	decision      JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS salvage_responses (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	decision_id TEXT NOT NULL REFERENCES decisions(id),
	sender      TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL,
	result      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS valuation_cache (
	cache_key  TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_vin ON decisions(vin);
CREATE INDEX IF NOT EXISTS idx_decisions_loss_type ON decisions(loss_type);
CREATE INDEX IF NOT EXISTS idx_decisions_created_at ON decisions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_salvage_responses_decision_id ON salvage_responses(decision_id);
CREATE INDEX IF NOT EXISTS idx_valuation_cache_expires_at ON valuation_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveDecision(ctx context.Context, d *model.Decision) (*model.DecisionRecord, error) {
	now := s.now().UTC()
	rec := &model.DecisionRecord{ID: NewDecisionID(now), Decision: *d, CreatedAt: now}

	decisionJSON, err := json.Marshal(d)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal decision")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO decisions (id, vin, loss_type, policy_type, is_total_loss, decision, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, d.Case.VIN, string(d.Case.LossType), string(d.Case.PolicyType), d.IsTotalLoss, decisionJSON, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert decision")
	}
	return rec, nil
}

var decisionCopyColumns = []string{"id", "vin", "loss_type", "policy_type", "is_total_loss", "decision", "created_at"}

func (s *PostgresStore) SaveDecisions(ctx context.Context, ds []*model.Decision) ([]model.DecisionRecord, error) {
	now := s.now().UTC()
	recs := make([]model.DecisionRecord, len(ds))
	rows := make([][]any, len(ds))
	for i, d := range ds {
		decisionJSON, err := json.Marshal(d)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal decision")
		}
		recs[i] = model.DecisionRecord{ID: NewDecisionID(now), Decision: *d, CreatedAt: now}
		rows[i] = []any{recs[i].ID, d.Case.VIN, string(d.Case.LossType), string(d.Case.PolicyType), d.IsTotalLoss, decisionJSON, now}
	}

	if _, err := db.CopyFrom(ctx, s.pool, "decisions", decisionCopyColumns, rows); err != nil {
		return nil, eris.Wrap(err, "postgres: save decisions")
	}
	return recs, nil
}

func (s *PostgresStore) GetDecision(ctx context.Context, id string) (*model.DecisionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE id = $1`, id,
	)
	rec, err := scanPgDecision(row)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: decision %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get decision %s", id)
	}
	return rec, nil
}

func (s *PostgresStore) ListDecisions(ctx context.Context, filter DecisionFilter) ([]model.DecisionRecord, error) {
	return s.listDecisions(ctx, filter, listLimit(filter.Limit))
}

func (s *PostgresStore) listDecisions(ctx context.Context, filter DecisionFilter, limit int) ([]model.DecisionRecord, error) {
	where, args := decisionWhere(filter, postgresPlaceholder, func(t any) any { return t })
	page, args := pageClause(filter, limit, postgresPlaceholder, args)

	rows, err := s.pool.Query(ctx, `SELECT `+decisionColumns+` FROM decisions`+where+page, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list decisions")
	}
	defer rows.Close()

	var out []model.DecisionRecord
	for rows.Next() {
		rec, err := scanPgDecision(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan decision")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list decisions iterate")
}

func (s *PostgresStore) DecisionStats(ctx context.Context, filter DecisionFilter) (*model.DecisionStats, error) {
	filter.Offset = 0
	recs, err := s.listDecisions(ctx, filter, statsLimit)
	if err != nil {
		return nil, err
	}
	stats := model.ComputeStats(recs)
	return &stats, nil
}

func (s *PostgresStore) SaveSalvageResponse(ctx context.Context, resp *model.SalvageResponse) error {
	if resp.ID == "" {
		resp.ID = uuid.New().String()
	}
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = s.now().UTC()
	}

	resultJSON, err := json.Marshal(resp.Result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal extraction result")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO salvage_responses (id, decision_id, sender, body, result, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		resp.ID, resp.DecisionID, resp.Sender, resp.Text, resultJSON, resp.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert salvage response for decision %s", resp.DecisionID)
}

func (s *PostgresStore) ListSalvageResponses(ctx context.Context, decisionID string) ([]model.SalvageResponse, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, decision_id, sender, body, result, created_at FROM salvage_responses
		 WHERE decision_id = $1 ORDER BY created_at ASC, id ASC`,
		decisionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list salvage responses")
	}
	defer rows.Close()

	var out []model.SalvageResponse
	for rows.Next() {
		var (
			r          model.SalvageResponse
			resultJSON []byte
		)
		if err := rows.Scan(&r.ID, &r.DecisionID, &r.Sender, &r.Text, &resultJSON, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan salvage response")
		}
		if err := json.Unmarshal(resultJSON, &r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal extraction result")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list salvage responses iterate")
}

func (s *PostgresStore) GetCachedValuation(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM valuation_cache WHERE cache_key = $1 AND expires_at > now()`, key,
	).Scan(&data)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached valuation")
	}
	return data, nil
}

func (s *PostgresStore) SetCachedValuation(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := s.now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO valuation_cache (cache_key, data, cached_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (cache_key) DO UPDATE SET data = EXCLUDED.data, cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`,
		key, data, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached valuation")
}

func (s *PostgresStore) DeleteExpiredValuations(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM valuation_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired valuations")
	}
	return int(tag.RowsAffected()), nil
}

func scanPgDecision(row scannable) (*model.DecisionRecord, error) {
	var (
		rec          model.DecisionRecord
		decisionJSON []byte
	)
	if err := row.Scan(&rec.ID, &decisionJSON, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(decisionJSON, &rec.Decision); err != nil {
		return nil, eris.Wrap(err, "unmarshal decision")
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}
