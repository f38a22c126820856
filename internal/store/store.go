// Package store persists runs, candidates, telemetry, and the seeded
// LLM response cache. Two backends are provided: SQLite for local use
// and Postgres for shared deployments.
package store

import (
	"context"
	"time"

	"github.com/forkline/expansion-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status   model.RunStatus `json:"status,omitempty"`
	TenantID string          `json:"tenant_id,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	Offset   int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the expansion pipeline.
// GetCached and SetCached match the LLM pipeline's cache contract, so a
// Store can be passed directly as its cache.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, region model.Region) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Phases
	CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error)
	CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error

	// Candidates
	InsertCandidates(ctx context.Context, runID string, candidates []model.Candidate) error
	ListCandidates(ctx context.Context, runID string) ([]model.Candidate, error)

	// Existing stores and their telemetry
	UpsertStoreLocations(ctx context.Context, tenantID string, locations []model.StoreLocation) error
	ListStoreLocations(ctx context.Context, tenantID string) ([]model.StoreLocation, error)
	UpsertStoreKPIs(ctx context.Context, tenantID string, kpis []model.StoreKPI) error
	ListStoreKPIs(ctx context.Context, tenantID string) ([]model.StoreKPI, error)

	// LLM response cache
	GetCached(ctx context.Context, key string) ([]byte, bool, error)
	SetCached(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteExpiredCache(ctx context.Context) (int, error)

	// Cost accounting
	RecordCost(ctx context.Context, runID, operation, provider, llmModel string, costUSD float64, cacheHit bool) error
	RunCost(ctx context.Context, runID string) (costUSD float64, cacheHits int, err error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// nullableTime maps a zero time to SQL NULL so unknown opening dates do not
// round-trip as year-one timestamps.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
