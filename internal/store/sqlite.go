package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/forkline/expansion-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
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
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	region     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_phases (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     TEXT,
	started_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS candidates (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL REFERENCES runs(id),
	name          TEXT NOT NULL,
	address       TEXT NOT NULL DEFAULT '',
	city          TEXT NOT NULL DEFAULT '',
	state         TEXT NOT NULL DEFAULT '',
	lat           REAL NOT NULL,
	lon           REAL NOT NULL,
	site_type     TEXT NOT NULL DEFAULT 'unknown',
	quality       REAL NOT NULL DEFAULT 0,
	rationale     TEXT NOT NULL DEFAULT '',
	filtered      INTEGER NOT NULL DEFAULT 0,
	filter_reason TEXT NOT NULL DEFAULT '',
	market        TEXT,
	score         TEXT,
	verdict       TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS store_locations (
	tenant_id TEXT NOT NULL,
	id        TEXT NOT NULL,
	name      TEXT NOT NULL,
	lat       REAL NOT NULL,
	lon       REAL NOT NULL,
	opened_at DATETIME,
	PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS store_kpis (
	tenant_id      TEXT NOT NULL,
	store_id       TEXT NOT NULL,
	store_name     TEXT NOT NULL,
	orders         INTEGER NOT NULL,
	avg_ticket_usd REAL NOT NULL,
	revenue_usd    REAL NOT NULL,
	trend_pct      REAL NOT NULL,
	window_days    INTEGER NOT NULL,
	PRIMARY KEY (tenant_id, store_id)
);

CREATE TABLE IF NOT EXISTS llm_cache (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	cached_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS cost_entries (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	operation  TEXT NOT NULL,
	provider   TEXT NOT NULL,
	model      TEXT NOT NULL,
	cost_usd   REAL NOT NULL,
	cache_hit  INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_phases_run_id ON run_phases(run_id);
CREATE INDEX IF NOT EXISTS idx_candidates_run_id ON candidates(run_id);
CREATE INDEX IF NOT EXISTS idx_store_locations_tenant ON store_locations(tenant_id);
CREATE INDEX IF NOT EXISTS idx_llm_cache_expires_at ON llm_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_cost_entries_run_id ON cost_entries(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, region model.Region) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	regionJSON, err := json.Marshal(region)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal region")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, region, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(regionJSON), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Region:    region,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run result %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, region, status, result, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, region, status, result, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.TenantID != "" {
		query += ` AND json_extract(region, '$.tenant_id') = ?`
		args = append(args, filter.TenantID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_phases (id, run_id, name, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, runID, name, string(model.PhaseStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert phase for run %s", runID)
	}

	return &model.RunPhase{
		ID:        id,
		RunID:     runID,
		Name:      name,
		Status:    model.PhaseStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal phase result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE run_phases SET status = ?, result = ? WHERE id = ?`,
		string(result.Status), string(resultJSON), phaseID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete phase %s", phaseID)
	}
	return checkRowsAffected(res, "phase", phaseID)
}

func (s *SQLiteStore) InsertCandidates(ctx context.Context, runID string, candidates []model.Candidate) error {
	if len(candidates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert candidates")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candidates
			(run_id, name, address, city, state, lat, lon, site_type, quality,
			 rationale, filtered, filter_reason, market, score, verdict, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert candidates")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for i := range candidates {
		c := &candidates[i]
		market, score, verdict, err := marshalCandidateDetail(c)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			runID, c.Name, c.Address, c.City, c.State, c.Lat, c.Lon,
			string(c.SiteType), c.Quality, c.Rationale, c.Filtered, c.FilterReason,
			market, score, verdict, now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert candidate %s", c.Name)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit insert candidates")
}

func (s *SQLiteStore) ListCandidates(ctx context.Context, runID string) ([]model.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, name, address, city, state, lat, lon, site_type, quality,
		       rationale, filtered, filter_reason, market, score, verdict, created_at
		FROM candidates WHERE run_id = ? ORDER BY quality DESC, id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list candidates")
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		var c model.Candidate
		var siteType string
		var market, score, verdict sql.NullString
		if err := rows.Scan(
			&c.ID, &c.RunID, &c.Name, &c.Address, &c.City, &c.State, &c.Lat, &c.Lon,
			&siteType, &c.Quality, &c.Rationale, &c.Filtered, &c.FilterReason,
			&market, &score, &verdict, &c.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		c.SiteType = model.SiteType(siteType)
		if err := unmarshalCandidateDetail(&c, market, score, verdict); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list candidates iterate")
}

func (s *SQLiteStore) UpsertStoreLocations(ctx context.Context, tenantID string, locations []model.StoreLocation) error {
	if len(locations) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert locations")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, loc := range locations {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO store_locations (tenant_id, id, name, lat, lon, opened_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (tenant_id, id) DO UPDATE SET
				name = excluded.name,
				lat = excluded.lat,
				lon = excluded.lon,
				opened_at = excluded.opened_at`,
			tenantID, loc.ID, loc.Name, loc.Lat, loc.Lon, nullableTime(loc.OpenedAt),
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert location %s", loc.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit upsert locations")
}

func (s *SQLiteStore) ListStoreLocations(ctx context.Context, tenantID string) ([]model.StoreLocation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, name, lat, lon, opened_at FROM store_locations WHERE tenant_id = ? ORDER BY name`,
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list locations")
	}
	defer rows.Close()

	var out []model.StoreLocation
	for rows.Next() {
		var loc model.StoreLocation
		var opened sql.NullTime
		if err := rows.Scan(&loc.ID, &loc.TenantID, &loc.Name, &loc.Lat, &loc.Lon, &opened); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan location")
		}
		loc.OpenedAt = opened.Time
		out = append(out, loc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list locations iterate")
}

func (s *SQLiteStore) UpsertStoreKPIs(ctx context.Context, tenantID string, kpis []model.StoreKPI) error {
	if len(kpis) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert kpis")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, k := range kpis {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO store_kpis
				(tenant_id, store_id, store_name, orders, avg_ticket_usd, revenue_usd, trend_pct, window_days)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (tenant_id, store_id) DO UPDATE SET
				store_name = excluded.store_name,
				orders = excluded.orders,
				avg_ticket_usd = excluded.avg_ticket_usd,
				revenue_usd = excluded.revenue_usd,
				trend_pct = excluded.trend_pct,
				window_days = excluded.window_days`,
			tenantID, k.StoreID, k.StoreName, k.Orders, k.AvgTicketUSD, k.RevenueUSD, k.TrendPct, k.WindowDays,
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert kpi for store %s", k.StoreID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit upsert kpis")
}

func (s *SQLiteStore) ListStoreKPIs(ctx context.Context, tenantID string) ([]model.StoreKPI, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT store_id, store_name, orders, avg_ticket_usd, revenue_usd, trend_pct, window_days
		FROM store_kpis WHERE tenant_id = ? ORDER BY store_id`,
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list kpis")
	}
	defer rows.Close()

	var out []model.StoreKPI
	for rows.Next() {
		var k model.StoreKPI
		if err := rows.Scan(&k.StoreID, &k.StoreName, &k.Orders, &k.AvgTicketUSD, &k.RevenueUSD, &k.TrendPct, &k.WindowDays); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan kpi")
		}
		out = append(out, k)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list kpis iterate")
}

func (s *SQLiteStore) GetCached(ctx context.Context, key string) ([]byte, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT value FROM llm_cache WHERE key = ? AND expires_at > ?`,
		key, time.Now().UTC(),
	)

	var value string
	err := row.Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: get cached")
	}
	return []byte(value), true, nil
}

func (s *SQLiteStore) SetCached(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_cache (key, value, cached_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at`,
		key, string(value), now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached")
}

func (s *SQLiteStore) DeleteExpiredCache(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM llm_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired cache")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) RecordCost(ctx context.Context, runID, operation, provider, llmModel string, costUSD float64, cacheHit bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cost_entries (run_id, operation, provider, model, cost_usd, cache_hit, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, operation, provider, llmModel, costUSD, cacheHit, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: record cost")
}

func (s *SQLiteStore) RunCost(ctx context.Context, runID string) (float64, int, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cost_usd), 0), COALESCE(SUM(cache_hit), 0)
		FROM cost_entries WHERE run_id = ?`,
		runID,
	)
	var costUSD float64
	var cacheHits int
	if err := row.Scan(&costUSD, &cacheHits); err != nil {
		return 0, 0, eris.Wrap(err, "sqlite: run cost")
	}
	return costUSD, cacheHits, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var regionJSON string
	var resultJSON sql.NullString

	err := row.Scan(&r.ID, &regionJSON, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(regionJSON), &r.Region); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal region")
	}
	if resultJSON.Valid {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &r, nil
}

func marshalCandidateDetail(c *model.Candidate) (market, score, verdict any, err error) {
	if c.Market != nil {
		b, mErr := json.Marshal(c.Market)
		if mErr != nil {
			return nil, nil, nil, eris.Wrap(mErr, "store: marshal market")
		}
		market = string(b)
	}
	if c.Score != nil {
		b, mErr := json.Marshal(c.Score)
		if mErr != nil {
			return nil, nil, nil, eris.Wrap(mErr, "store: marshal score")
		}
		score = string(b)
	}
	if c.Verdict != nil {
		b, mErr := json.Marshal(c.Verdict)
		if mErr != nil {
			return nil, nil, nil, eris.Wrap(mErr, "store: marshal verdict")
		}
		verdict = string(b)
	}
	return market, score, verdict, nil
}

func unmarshalCandidateDetail(c *model.Candidate, market, score, verdict sql.NullString) error {
	if market.Valid {
		c.Market = &model.MarketProfile{}
		if err := json.Unmarshal([]byte(market.String), c.Market); err != nil {
			return eris.Wrap(err, "store: unmarshal market")
		}
	}
	if score.Valid {
		c.Score = &model.StrategicScore{}
		if err := json.Unmarshal([]byte(score.String), c.Score); err != nil {
			return eris.Wrap(err, "store: unmarshal score")
		}
	}
	if verdict.Valid {
		c.Verdict = &model.ViabilityVerdict{}
		if err := json.Unmarshal([]byte(verdict.String), c.Verdict); err != nil {
			return eris.Wrap(err, "store: unmarshal verdict")
		}
	}
	return nil
}
