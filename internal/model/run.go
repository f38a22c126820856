// Package model defines the shared domain types for the expansion pipeline.
package model

import "time"

// RunStatus tracks the lifecycle of an expansion run.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusDiscovering RunStatus = "discovering"
	RunStatusAnalyzing   RunStatus = "analyzing"
	RunStatusScoring     RunStatus = "scoring"
	RunStatusValidating  RunStatus = "validating"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
)

// Region describes the target market for an expansion run.
type Region struct {
	TenantID  string  `json:"tenant_id"`
	Name      string  `json:"name"`
	City      string  `json:"city"`
	State     string  `json:"state"`
	CenterLat float64 `json:"center_lat"`
	CenterLon float64 `json:"center_lon"`
	RadiusKM  float64 `json:"radius_km"`
	// Brief is free-text operator guidance folded into prompts
	// (e.g. "fast-casual, heavy lunch traffic, no food courts").
	Brief string `json:"brief,omitempty"`
}

// Run is a single expansion-intelligence run over a region.
type Run struct {
	ID        string     `json:"id"`
	Region    Region     `json:"region"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the outcome statistics of a completed run.
type RunResult struct {
	CandidatesFound     int           `json:"candidates_found"`
	CandidatesScored    int           `json:"candidates_scored"`
	CandidatesViable    int           `json:"candidates_viable"`
	CostUSD             float64       `json:"cost_usd"`
	CacheHits           int           `json:"cache_hits"`
	Phases              []PhaseResult `json:"phases,omitempty"`
	TotalDurationMillis int64         `json:"total_duration_ms"`
}

// PhaseStatus tracks the lifecycle of a run phase.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
)

// RunPhase is a persisted record of a pipeline phase.
type RunPhase struct {
	ID        string      `json:"id"`
	RunID     string      `json:"run_id"`
	Name      string      `json:"name"`
	Status    PhaseStatus `json:"status"`
	Result    *PhaseResult
	StartedAt time.Time `json:"started_at"`
}

// PhaseResult summarizes one phase of a run.
type PhaseResult struct {
	Name     string      `json:"name"`
	Status   PhaseStatus `json:"status"`
	Duration int64       `json:"duration_ms"`
	Error    string      `json:"error,omitempty"`
	CostUSD  float64     `json:"cost_usd"`
	Items    int         `json:"items"`
}
