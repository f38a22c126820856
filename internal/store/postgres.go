package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/forkline/expansion-cli/internal/db"
	"github.com/forkline/expansion-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, region, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"update_run_result": `UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"get_run":           `SELECT id, region, status, result, created_at, updated_at FROM runs WHERE id = $1`,
	"insert_phase":      `INSERT INTO run_phases (id, run_id, name, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
	"complete_phase":    `UPDATE run_phases SET status = $1, result = $2 WHERE id = $3`,
	"get_cached":        `SELECT value FROM llm_cache WHERE key = $1 AND expires_at > now()`,
	"set_cached":        `INSERT INTO llm_cache (key, value, cached_at, expires_at) VALUES ($1, $2, $3, $4) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`,
	"record_cost":       `INSERT INTO cost_entries (run_id, operation, provider, model, cost_usd, cache_hit, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	region     JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_phases (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     JSONB,
	started_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS candidates (
	id            BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	run_id        TEXT NOT NULL REFERENCES runs(id),
	name          TEXT NOT NULL,
	address       TEXT NOT NULL DEFAULT '',
	city          TEXT NOT NULL DEFAULT '',
	state         TEXT NOT NULL DEFAULT '',
	lat           DOUBLE PRECISION NOT NULL,
	lon           DOUBLE PRECISION NOT NULL,
	site_type     TEXT NOT NULL DEFAULT 'unknown',
	quality       DOUBLE PRECISION NOT NULL DEFAULT 0,
	rationale     TEXT NOT NULL DEFAULT '',
	filtered      BOOLEAN NOT NULL DEFAULT false,
	filter_reason TEXT NOT NULL DEFAULT '',
	market        JSONB,
	score         JSONB,
	verdict       JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS store_locations (
	tenant_id TEXT NOT NULL,
	id        TEXT NOT NULL,
	name      TEXT NOT NULL,
	lat       DOUBLE PRECISION NOT NULL,
	lon       DOUBLE PRECISION NOT NULL,
	opened_at TIMESTAMPTZ,
	PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS store_kpis (
	tenant_id      TEXT NOT NULL,
	store_id       TEXT NOT NULL,
	store_name     TEXT NOT NULL,
	orders         INTEGER NOT NULL,
	avg_ticket_usd DOUBLE PRECISION NOT NULL,
	revenue_usd    DOUBLE PRECISION NOT NULL,
	trend_pct      DOUBLE PRECISION NOT NULL,
	window_days    INTEGER NOT NULL,
	PRIMARY KEY (tenant_id, store_id)
);

CREATE TABLE IF NOT EXISTS llm_cache (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS cost_entries (
	id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	run_id     TEXT NOT NULL,
	operation  TEXT NOT NULL,
	provider   TEXT NOT NULL,
	model      TEXT NOT NULL,
	cost_usd   DOUBLE PRECISION NOT NULL,
	cache_hit  BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_phases_run_id ON run_phases(run_id);
CREATE INDEX IF NOT EXISTS idx_candidates_run_id ON candidates(run_id);
CREATE INDEX IF NOT EXISTS idx_store_locations_tenant ON store_locations(tenant_id);
CREATE INDEX IF NOT EXISTS idx_llm_cache_expires_at ON llm_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_cost_entries_run_id ON cost_entries(run_id);
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

func (s *PostgresStore) CreateRun(ctx context.Context, region model.Region) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	regionJSON, err := json.Marshal(region)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal region")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, region, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, regionJSON, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Region:    region,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run result %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, region, status, result, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)

	r, err := scanPgRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, region, status, result, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.TenantID != "" {
		args = append(args, filter.TenantID)
		query += ` AND region->>'tenant_id' = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_phases (id, run_id, name, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, runID, name, string(model.PhaseStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert phase for run %s", runID)
	}

	return &model.RunPhase{
		ID:        id,
		RunID:     runID,
		Name:      name,
		Status:    model.PhaseStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal phase result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE run_phases SET status = $1, result = $2 WHERE id = $3`,
		string(result.Status), resultJSON, phaseID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete phase %s", phaseID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("phase not found: %s", phaseID)
	}
	return nil
}

var candidateColumns = []string{
	"run_id", "name", "address", "city", "state", "lat", "lon", "site_type",
	"quality", "rationale", "filtered", "filter_reason", "market", "score", "verdict", "created_at",
}

func (s *PostgresStore) InsertCandidates(ctx context.Context, runID string, candidates []model.Candidate) error {
	if len(candidates) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		market, score, verdict, err := marshalCandidateDetail(c)
		if err != nil {
			return err
		}
		rows = append(rows, []any{
			runID, c.Name, c.Address, c.City, c.State, c.Lat, c.Lon, string(c.SiteType),
			c.Quality, c.Rationale, c.Filtered, c.FilterReason, market, score, verdict, now,
		})
	}

	_, err := db.CopyFrom(ctx, s.pool, "candidates", candidateColumns, rows)
	return eris.Wrapf(err, "postgres: insert candidates for run %s", runID)
}

func (s *PostgresStore) ListCandidates(ctx context.Context, runID string) ([]model.Candidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, name, address, city, state, lat, lon, site_type, quality,
		       rationale, filtered, filter_reason, market, score, verdict, created_at
		FROM candidates WHERE run_id = $1 ORDER BY quality DESC, id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list candidates")
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		var c model.Candidate
		var siteType string
		var market, score, verdict []byte
		if err := rows.Scan(
			&c.ID, &c.RunID, &c.Name, &c.Address, &c.City, &c.State, &c.Lat, &c.Lon,
			&siteType, &c.Quality, &c.Rationale, &c.Filtered, &c.FilterReason,
			&market, &score, &verdict, &c.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		c.SiteType = model.SiteType(siteType)
		if err := unmarshalCandidateJSONB(&c, market, score, verdict); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list candidates iterate")
}

func (s *PostgresStore) UpsertStoreLocations(ctx context.Context, tenantID string, locations []model.StoreLocation) error {
	for _, loc := range locations {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO store_locations (tenant_id, id, name, lat, lon, opened_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (tenant_id, id) DO UPDATE SET
				name = EXCLUDED.name,
				lat = EXCLUDED.lat,
				lon = EXCLUDED.lon,
				opened_at = EXCLUDED.opened_at`,
			tenantID, loc.ID, loc.Name, loc.Lat, loc.Lon, nullableTime(loc.OpenedAt),
		); err != nil {
			return eris.Wrapf(err, "postgres: upsert location %s", loc.ID)
		}
	}
	return nil
}

func (s *PostgresStore) ListStoreLocations(ctx context.Context, tenantID string) ([]model.StoreLocation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, lat, lon, opened_at FROM store_locations WHERE tenant_id = $1 ORDER BY name`,
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list locations")
	}
	defer rows.Close()

	var out []model.StoreLocation
	for rows.Next() {
		var loc model.StoreLocation
		var opened sql.NullTime
		if err := rows.Scan(&loc.ID, &loc.TenantID, &loc.Name, &loc.Lat, &loc.Lon, &opened); err != nil {
			return nil, eris.Wrap(err, "postgres: scan location")
		}
		loc.OpenedAt = opened.Time
		out = append(out, loc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list locations iterate")
}

func (s *PostgresStore) UpsertStoreKPIs(ctx context.Context, tenantID string, kpis []model.StoreKPI) error {
	for _, k := range kpis {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO store_kpis
				(tenant_id, store_id, store_name, orders, avg_ticket_usd, revenue_usd, trend_pct, window_days)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (tenant_id, store_id) DO UPDATE SET
				store_name = EXCLUDED.store_name,
				orders = EXCLUDED.orders,
				avg_ticket_usd = EXCLUDED.avg_ticket_usd,
				revenue_usd = EXCLUDED.revenue_usd,
				trend_pct = EXCLUDED.trend_pct,
				window_days = EXCLUDED.window_days`,
			tenantID, k.StoreID, k.StoreName, k.Orders, k.AvgTicketUSD, k.RevenueUSD, k.TrendPct, k.WindowDays,
		); err != nil {
			return eris.Wrapf(err, "postgres: upsert kpi for store %s", k.StoreID)
		}
	}
	return nil
}

func (s *PostgresStore) ListStoreKPIs(ctx context.Context, tenantID string) ([]model.StoreKPI, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT store_id, store_name, orders, avg_ticket_usd, revenue_usd, trend_pct, window_days
		FROM store_kpis WHERE tenant_id = $1 ORDER BY store_id`,
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list kpis")
	}
	defer rows.Close()

	var out []model.StoreKPI
	for rows.Next() {
		var k model.StoreKPI
		if err := rows.Scan(&k.StoreID, &k.StoreName, &k.Orders, &k.AvgTicketUSD, &k.RevenueUSD, &k.TrendPct, &k.WindowDays); err != nil {
			return nil, eris.Wrap(err, "postgres: scan kpi")
		}
		out = append(out, k)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list kpis iterate")
}

func (s *PostgresStore) GetCached(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM llm_cache WHERE key = $1 AND expires_at > now()`,
		key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: get cached")
	}
	return []byte(value), true, nil
}

func (s *PostgresStore) SetCached(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO llm_cache (key, value, cached_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			cached_at = EXCLUDED.cached_at,
			expires_at = EXCLUDED.expires_at`,
		key, string(value), now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached")
}

func (s *PostgresStore) DeleteExpiredCache(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM llm_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired cache")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) RecordCost(ctx context.Context, runID, operation, provider, llmModel string, costUSD float64, cacheHit bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cost_entries (run_id, operation, provider, model, cost_usd, cache_hit, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		runID, operation, provider, llmModel, costUSD, cacheHit, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: record cost")
}

func (s *PostgresStore) RunCost(ctx context.Context, runID string) (float64, int, error) {
	var costUSD float64
	var cacheHits int
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(cost_usd), 0), COALESCE(COUNT(*) FILTER (WHERE cache_hit), 0)
		FROM cost_entries WHERE run_id = $1`,
		runID,
	).Scan(&costUSD, &cacheHits)
	if err != nil {
		return 0, 0, eris.Wrap(err, "postgres: run cost")
	}
	return costUSD, cacheHits, nil
}

// helpers

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var regionJSON, resultJSON []byte

	if err := row.Scan(&r.ID, &regionJSON, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(regionJSON, &r.Region); err != nil {
		return nil, eris.Wrap(err, "unmarshal region")
	}
	if len(resultJSON) > 0 {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "unmarshal result")
		}
	}
	return &r, nil
}

func unmarshalCandidateJSONB(c *model.Candidate, market, score, verdict []byte) error {
	if len(market) > 0 {
		c.Market = &model.MarketProfile{}
		if err := json.Unmarshal(market, c.Market); err != nil {
			return eris.Wrap(err, "store: unmarshal market")
		}
	}
	if len(score) > 0 {
		c.Score = &model.StrategicScore{}
		if err := json.Unmarshal(score, c.Score); err != nil {
			return eris.Wrap(err, "store: unmarshal score")
		}
	}
	if len(verdict) > 0 {
		c.Verdict = &model.ViabilityVerdict{}
		if err := json.Unmarshal(verdict, c.Verdict); err != nil {
			return eris.Wrap(err, "store: unmarshal verdict")
		}
	}
	return nil
}
