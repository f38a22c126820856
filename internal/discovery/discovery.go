// Package discovery surfaces candidate store locations for a region via
// the LLM pipeline and applies deterministic post-processing: dedupe,
// trade-area containment, distance filtering against existing stores,
// proximity clustering, and a quality threshold.
package discovery

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/forkline/expansion-cli/internal/concurrency"
	"github.com/forkline/expansion-cli/internal/config"
	"github.com/forkline/expansion-cli/internal/geo"
	"github.com/forkline/expansion-cli/internal/llm"
	"github.com/forkline/expansion-cli/internal/model"
	"github.com/forkline/expansion-cli/internal/resilience"
)

// Executor runs pipeline operations. *llm.Pipeline satisfies it.
type Executor interface {
	Execute(ctx context.Context, op llm.Operation) (*llm.Result, error)
}

// Service discovers candidate locations.
type Service struct {
	exec     Executor
	cfg      config.DiscoveryConfig
	boundary *geo.Boundary // nil when no trade area is configured
}

// New creates a discovery service. boundary may be nil.
func New(exec Executor, cfg config.DiscoveryConfig, boundary *geo.Boundary) *Service {
	return &Service{exec: exec, cfg: cfg, boundary: boundary}
}

// candidateSchema validates the discovery response shape.
var candidateSchema = &llm.Schema{Fields: []llm.Field{
	{Name: "candidates", Kind: llm.KindArray, Required: true, Items: &llm.Schema{Fields: []llm.Field{
		{Name: "name", Kind: llm.KindString, Required: true},
		{Name: "address", Kind: llm.KindString},
		{Name: "city", Kind: llm.KindString},
		{Name: "state", Kind: llm.KindString},
		{Name: "lat", Kind: llm.KindNumber, Required: true, Min: llm.Bound(-90), Max: llm.Bound(90)},
		{Name: "lon", Kind: llm.KindNumber, Required: true, Min: llm.Bound(-180), Max: llm.Bound(180)},
		{Name: "site_type", Kind: llm.KindString},
		{Name: "quality", Kind: llm.KindNumber, Required: true},
		{Name: "rationale", Kind: llm.KindString},
	}}},
}}

type candidatePayload struct {
	Candidates []struct {
		Name      string  `json:"name"`
		Address   string  `json:"address"`
		City      string  `json:"city"`
		State     string  `json:"state"`
		Lat       float64 `json:"lat"`
		Lon       float64 `json:"lon"`
		SiteType  string  `json:"site_type"`
		Quality   float64 `json:"quality"`
		Rationale string  `json:"rationale"`
	} `json:"candidates"`
}

// Discover proposes candidates for the region and post-processes them
// against the chain's existing stores. Filtered candidates are returned
// with Filtered set rather than dropped, so runs record why sites were
// rejected.
func (s *Service) Discover(ctx context.Context, region model.Region, existing []model.StoreLocation) ([]model.Candidate, error) {
	maxCandidates := s.cfg.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = 20
	}

	res, err := s.exec.Execute(ctx, llm.Operation{
		Type:   resilience.OpDiscovery,
		Name:   "discovery",
		System: systemPrompt,
		User:   BuildUserMessage(region, maxCandidates),
		Context: map[string]any{
			"tenant_id":      region.TenantID,
			"region":         region.Name,
			"city":           region.City,
			"state":          region.State,
			"center_lat":     region.CenterLat,
			"center_lon":     region.CenterLon,
			"radius_km":      region.RadiusKM,
			"brief":          region.Brief,
			"max_candidates": maxCandidates,
		},
		Schema:   candidateSchema,
		Priority: concurrency.PriorityHigh,
	})
	if err != nil {
		return nil, eris.Wrap(err, "discovery: pipeline call")
	}

	var payload candidatePayload
	if err := json.Unmarshal(res.JSON, &payload); err != nil {
		return nil, eris.Wrap(err, "discovery: decode candidates")
	}

	candidates := make([]model.Candidate, 0, len(payload.Candidates))
	for _, c := range payload.Candidates {
		candidates = append(candidates, model.Candidate{
			Name:      c.Name,
			Address:   c.Address,
			City:      c.City,
			State:     c.State,
			Lat:       c.Lat,
			Lon:       c.Lon,
			SiteType:  parseSiteType(c.SiteType),
			Quality:   llm.Clamp(c.Quality),
			Rationale: c.Rationale,
		})
	}

	candidates = s.PostProcess(candidates, existing)

	kept := 0
	for i := range candidates {
		if !candidates[i].Filtered {
			kept++
		}
	}
	zap.L().Info("discovery complete",
		zap.String("region", region.Name),
		zap.Int("proposed", len(candidates)),
		zap.Int("kept", kept),
		zap.Bool("cache_hit", res.CacheHit),
	)

	return candidates, nil
}

func parseSiteType(s string) model.SiteType {
	switch model.SiteType(s) {
	case model.SiteTypeInline, model.SiteTypeEndcap, model.SiteTypeFreestand,
		model.SiteTypeFoodHall, model.SiteTypeMixedUse, model.SiteTypeDriveThru:
		return model.SiteType(s)
	default:
		return model.SiteTypeUnknown
	}
}
