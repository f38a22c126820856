package model

import "time"

// SiteType classifies a candidate location.
type SiteType string

const (
	SiteTypeInline    SiteType = "inline"
	SiteTypeEndcap    SiteType = "endcap"
	SiteTypeFreestand SiteType = "freestanding"
	SiteTypeFoodHall  SiteType = "food_hall"
	SiteTypeMixedUse  SiteType = "mixed_use"
	SiteTypeDriveThru SiteType = "drive_thru"
	SiteTypeUnknown   SiteType = "unknown"
)

// Candidate represents a potential new-store location surfaced by discovery.
type Candidate struct {
	ID           int64             `json:"id" db:"id"`
	RunID        string            `json:"run_id" db:"run_id"`
	Name         string            `json:"name" db:"name"`
	Address      string            `json:"address" db:"address"`
	City         string            `json:"city" db:"city"`
	State        string            `json:"state" db:"state"`
	Lat          float64           `json:"lat" db:"lat"`
	Lon          float64           `json:"lon" db:"lon"`
	SiteType     SiteType          `json:"site_type" db:"site_type"`
	Quality      float64           `json:"quality" db:"quality"`
	Rationale    string            `json:"rationale,omitempty" db:"rationale"`
	Filtered     bool              `json:"filtered" db:"filtered"`
	FilterReason string            `json:"filter_reason,omitempty" db:"filter_reason"`
	Market       *MarketProfile    `json:"market,omitempty"`
	Score        *StrategicScore   `json:"score,omitempty"`
	Verdict      *ViabilityVerdict `json:"verdict,omitempty"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
}

// MarketProfile holds the market analysis for a candidate.
type MarketProfile struct {
	PopulationDensity  string   `json:"population_density"`
	MedianIncomeBand   string   `json:"median_income_band"`
	FootTraffic        string   `json:"foot_traffic"`
	CompetitorCount    int      `json:"competitor_count"`
	CompetitionDensity float64  `json:"competition_density"`
	DemandSignals      []string `json:"demand_signals,omitempty"`
	Summary            string   `json:"summary,omitempty"`
}

// StrategicScore is the weighted rubric outcome for a candidate.
type StrategicScore struct {
	MarketFit     float64 `json:"market_fit"`
	Accessibility float64 `json:"accessibility"`
	Competition   float64 `json:"competition"`
	CostProfile   float64 `json:"cost_profile"`
	Composite     float64 `json:"composite"`
	Rationale     string  `json:"rationale,omitempty"`
}

// Verdict is the viability validation outcome.
type Verdict string

const (
	VerdictGo     Verdict = "go"
	VerdictReview Verdict = "review"
	VerdictNoGo   Verdict = "no_go"
)

// ViabilityVerdict carries the validation decision and its supporting detail.
type ViabilityVerdict struct {
	Verdict           Verdict  `json:"verdict"`
	Confidence        float64  `json:"confidence"`
	CannibalizationKM float64  `json:"cannibalization_km"`
	RedFlags          []string `json:"red_flags,omitempty"`
	Rationale         string   `json:"rationale,omitempty"`
}

// StoreLocation is an existing store of the chain. ID is the tenant's own
// business key for the store, carried through from the POS export; a zero
// OpenedAt means the opening date is unknown.
type StoreLocation struct {
	ID       string    `json:"id" db:"id"`
	TenantID string    `json:"tenant_id" db:"tenant_id"`
	Name     string    `json:"name" db:"name"`
	Lat      float64   `json:"lat" db:"lat"`
	Lon      float64   `json:"lon" db:"lon"`
	OpenedAt time.Time `json:"opened_at" db:"opened_at"`
}

// StoreKPI aggregates order telemetry for one existing store.
type StoreKPI struct {
	StoreID      string  `json:"store_id" db:"store_id"`
	StoreName    string  `json:"store_name" db:"store_name"`
	Orders       int     `json:"orders" db:"orders"`
	AvgTicketUSD float64 `json:"avg_ticket_usd" db:"avg_ticket_usd"`
	RevenueUSD   float64 `json:"revenue_usd" db:"revenue_usd"`
	TrendPct     float64 `json:"trend_pct" db:"trend_pct"`
	WindowDays   int     `json:"window_days" db:"window_days"`
}
