// Package scoring rates analyzed candidates against a weighted rubric.
// The model produces the four subscores; the composite is computed
// deterministically from the rubric weights.
package scoring

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

// Service scores candidates.
type Service struct {
	exec   Executor
	rubric Rubric
}

// New creates a scoring service.
func New(exec Executor, rubric Rubric) *Service {
	return &Service{exec: exec, rubric: rubric}
}

const systemPrompt = `You are a site-selection strategist for a restaurant chain. You rate a candidate site on four dimensions, each 0.0-1.0:

- market_fit: how well the surrounding market matches the chain's customer profile
- accessibility: ease of reaching the site (parking, transit, walkability, visibility)
- competition: favorability of the competitive landscape (1.0 = wide open, 0.0 = saturated)
- cost_profile: favorability of likely occupancy cost for the format (1.0 = cheap for what you get)

Rules:
- Return valid JSON for every response
- Rate only from the provided market profile and site facts
- Be willing to use the full range; do not cluster ratings around 0.5`

var scoreSchema = &llm.Schema{Fields: []llm.Field{
	{Name: "market_fit", Kind: llm.KindNumber, Required: true},
	{Name: "accessibility", Kind: llm.KindNumber, Required: true},
	{Name: "competition", Kind: llm.KindNumber, Required: true},
	{Name: "cost_profile", Kind: llm.KindNumber, Required: true},
	{Name: "rationale", Kind: llm.KindString},
}}

type scorePayload struct {
	MarketFit     float64 `json:"market_fit"`
	Accessibility float64 `json:"accessibility"`
	Competition   float64 `json:"competition"`
	CostProfile   float64 `json:"cost_profile"`
	Rationale     string  `json:"rationale"`
}

// Score rates a candidate. The candidate's Market profile must be set.
func (s *Service) Score(ctx context.Context, region model.Region, cand model.Candidate) (*model.StrategicScore, error) {
	if cand.Market == nil {
		return nil, eris.Errorf("scoring: candidate %s has no market profile", cand.Name)
	}

	res, err := s.exec.Execute(ctx, llm.Operation{
		Type:   resilience.OpScoring,
		Name:   "scoring",
		System: systemPrompt,
		User:   buildUserMessage(region, cand),
		Context: map[string]any{
			"tenant_id":  region.TenantID,
			"candidate":  cand.Name,
			"lat":        cand.Lat,
			"lon":        cand.Lon,
			"site_type":  string(cand.SiteType),
			"market":     cand.Market.Summary,
			"density":    cand.Market.PopulationDensity,
			"comp_count": cand.Market.CompetitorCount,
		},
		Schema:   scoreSchema,
		Priority: concurrency.PriorityNormal,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "scoring: score %s", cand.Name)
	}

	var payload scorePayload
	if err := json.Unmarshal(res.JSON, &payload); err != nil {
		return nil, eris.Wrap(err, "scoring: decode score")
	}

	score := &model.StrategicScore{
		MarketFit:     llm.Clamp(payload.MarketFit),
		Accessibility: llm.Clamp(payload.Accessibility),
		Competition:   llm.Clamp(payload.Competition),
		CostProfile:   llm.Clamp(payload.CostProfile),
		Rationale:     payload.Rationale,
	}
	score.Composite = llm.Clamp(s.rubric.Composite(
		score.MarketFit, score.Accessibility, score.Competition, score.CostProfile,
	))

	return score, nil
}

func buildUserMessage(region model.Region, cand model.Candidate) string {
	m := cand.Market
	var sb strings.Builder
	fmt.Fprintf(&sb, `Rate this candidate restaurant site:

Site: %s (%s)
Address: %s, %s, %s
Region: %s

Market profile:
- Population density: %s
- Median income band: %s
- Foot traffic: %s
- Comparable restaurants nearby: %d
- Competition density: %.2f`,
		cand.Name, cand.SiteType, cand.Address, cand.City, cand.State, region.Name,
		m.PopulationDensity, m.MedianIncomeBand, m.FootTraffic,
		m.CompetitorCount, m.CompetitionDensity)

	if len(m.DemandSignals) > 0 {
		fmt.Fprintf(&sb, "\n- Demand signals: %s", strings.Join(m.DemandSignals, "; "))
	}
	if m.Summary != "" {
		fmt.Fprintf(&sb, "\n- Summary: %s", m.Summary)
	}

	sb.WriteString(`

Respond with ONLY valid JSON in this format:
{
  "market_fit": <0.0 to 1.0>,
  "accessibility": <0.0 to 1.0>,
  "competition": <0.0 to 1.0>,
  "cost_profile": <0.0 to 1.0>,
  "rationale": "<two sentences>"
}`)
	return sb.String()
}
