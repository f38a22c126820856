// Package market profiles the surroundings of a candidate site:
// demographics, competition, and demand signals, with the chain's own
// order telemetry folded into the prompt context.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/forkline/expansion-cli/internal/concurrency"
	"github.com/forkline/expansion-cli/internal/llm"
	"github.com/forkline/expansion-cli/internal/model"
	"github.com/forkline/expansion-cli/internal/resilience"
)

// Executor runs pipeline operations. *llm.Pipeline satisfies it.
type Executor interface {
	Execute(ctx context.Context, op llm.Operation) (*llm.Result, error)
}

// Service produces market profiles for candidates.
type Service struct {
	exec Executor
}

// New creates a market analysis service.
func New(exec Executor) *Service {
	return &Service{exec: exec}
}

const systemPrompt = `You are a market analyst for a restaurant chain evaluating a specific candidate site. You assess the surrounding market: population, income, foot traffic, competition, and demand signals.

Rules:
- Return valid JSON for every response
- population_density, median_income_band, and foot_traffic are qualitative bands: "low", "medium", or "high" (median_income_band may also be a dollar band like "$50k-$75k")
- competitor_count is the number of comparable restaurants within walking distance
- competition_density is 0.0-1.0 relative saturation
- demand_signals are short phrases naming concrete sources of demand
- Base your assessment on the location itself, not generic city-level facts`

var profileSchema = &llm.Schema{Fields: []llm.Field{
	{Name: "population_density", Kind: llm.KindString, Required: true},
	{Name: "median_income_band", Kind: llm.KindString, Required: true},
	{Name: "foot_traffic", Kind: llm.KindString, Required: true},
	{Name: "competitor_count", Kind: llm.KindInteger, Required: true, Min: llm.Bound(0)},
	{Name: "competition_density", Kind: llm.KindNumber, Required: true},
	{Name: "demand_signals", Kind: llm.KindArray},
	{Name: "summary", Kind: llm.KindString},
}}

// Analyze profiles the market around a candidate. kpiContext is the
// formatted existing-store telemetry block from the telemetry package;
// it may be empty.
func (s *Service) Analyze(ctx context.Context, region model.Region, cand model.Candidate, kpiContext string) (*model.MarketProfile, error) {
	res, err := s.exec.Execute(ctx, llm.Operation{
		Type:   resilience.OpAnalysis,
		Name:   "market_analysis",
		System: systemPrompt,
		User:   buildUserMessage(region, cand, kpiContext),
		Context: map[string]any{
			"tenant_id": region.TenantID,
			"candidate": cand.Name,
			"address":   cand.Address,
			"lat":       cand.Lat,
			"lon":       cand.Lon,
			"site_type": string(cand.SiteType),
			"kpis":      kpiContext,
		},
		Schema:   profileSchema,
		Priority: concurrency.PriorityNormal,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "market: analyze %s", cand.Name)
	}

	var profile model.MarketProfile
	if err := json.Unmarshal(res.JSON, &profile); err != nil {
		return nil, eris.Wrap(err, "market: decode profile")
	}
	profile.CompetitionDensity = llm.Clamp(profile.CompetitionDensity)

	return &profile, nil
}

func buildUserMessage(region model.Region, cand model.Candidate, kpiContext string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `Profile the market around this candidate restaurant site:

Site: %s
Address: %s, %s, %s
Coordinates: %.5f, %.5f
Site type: %s
Region: %s`,
		cand.Name, cand.Address, cand.City, cand.State,
		cand.Lat, cand.Lon, cand.SiteType, region.Name)

	if kpiContext != "" {
		fmt.Fprintf(&sb, "\n\n%s", kpiContext)
	}

	sb.WriteString(`

Respond with ONLY valid JSON in this format:
{
  "population_density": "<low|medium|high>",
  "median_income_band": "<band>",
  "foot_traffic": "<low|medium|high>",
  "competitor_count": <integer>,
  "competition_density": <0.0 to 1.0>,
  "demand_signals": ["<signal>", ...],
  "summary": "<two sentences on the market>"
}`)
	return sb.String()
}
