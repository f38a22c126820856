// Package viability issues the final go / review / no-go verdict for a
// scored candidate. The model weighs the evidence; deterministic rules
// then enforce the cannibalization radius and the confidence floor.
package viability

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

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

// Service validates scored candidates.
type Service struct {
	exec Executor
	cfg  config.ViabilityConfig
}

// New creates a viability service.
func New(exec Executor, cfg config.ViabilityConfig) *Service {
	return &Service{exec: exec, cfg: cfg}
}

const systemPrompt = `You are the final reviewer on a restaurant chain's site-selection committee. Given a scored candidate site, you cross-check the evidence for red flags the earlier stages may have missed: market saturation, cannibalization of nearby chain stores, lease or zoning risks, and inconsistencies between the market profile and the scores.

Rules:
- Return valid JSON for every response
- verdict is exactly one of: "go", "review", "no_go"
- confidence is 0.0-1.0 in your verdict
- red_flags are short phrases; an empty array means none found
- "go" requires both a strong composite score and no material red flags`

var verdictSchema = &llm.Schema{Fields: []llm.Field{
	{Name: "verdict", Kind: llm.KindString, Required: true},
	{Name: "confidence", Kind: llm.KindNumber, Required: true},
	{Name: "red_flags", Kind: llm.KindArray},
	{Name: "rationale", Kind: llm.KindString},
}}

type verdictPayload struct {
	Verdict    string   `json:"verdict"`
	Confidence float64  `json:"confidence"`
	RedFlags   []string `json:"red_flags"`
	Rationale  string   `json:"rationale"`
}

// Validate issues the verdict for a scored candidate. The candidate's
// Score must be set. A candidate inside the cannibalization radius of an
// existing store never receives a "go", regardless of what the model
// says; neither does one whose confidence is below the configured floor.
func (s *Service) Validate(ctx context.Context, region model.Region, cand model.Candidate, existing []model.StoreLocation) (*model.ViabilityVerdict, error) {
	if cand.Score == nil {
		return nil, eris.Errorf("viability: candidate %s has no score", cand.Name)
	}

	nearestKM, nearestName := nearestStore(cand, existing)

	res, err := s.exec.Execute(ctx, llm.Operation{
		Type:   resilience.OpValidation,
		Name:   "viability",
		System: systemPrompt,
		User:   buildUserMessage(region, cand, nearestKM, nearestName),
		Context: map[string]any{
			"tenant_id":  region.TenantID,
			"candidate":  cand.Name,
			"lat":        cand.Lat,
			"lon":        cand.Lon,
			"composite":  cand.Score.Composite,
			"nearest_km": nearestKM,
		},
		Schema:   verdictSchema,
		Priority: concurrency.PriorityNormal,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "viability: validate %s", cand.Name)
	}

	var payload verdictPayload
	if err := json.Unmarshal(res.JSON, &payload); err != nil {
		return nil, eris.Wrap(err, "viability: decode verdict")
	}

	verdict := &model.ViabilityVerdict{
		Verdict:           parseVerdict(payload.Verdict),
		Confidence:        llm.Clamp(payload.Confidence),
		CannibalizationKM: nearestKM,
		RedFlags:          payload.RedFlags,
		Rationale:         payload.Rationale,
	}

	s.applyGuards(cand.Name, verdict, nearestName)
	return verdict, nil
}

// applyGuards downgrades a "go" that violates the deterministic rules.
func (s *Service) applyGuards(name string, v *model.ViabilityVerdict, nearestName string) {
	if v.Verdict != model.VerdictGo {
		return
	}

	if s.cfg.CannibalizationKM > 0 && v.CannibalizationKM > 0 && v.CannibalizationKM < s.cfg.CannibalizationKM {
		v.Verdict = model.VerdictReview
		v.RedFlags = append(v.RedFlags,
			fmt.Sprintf("within %.1f km of existing store %s", v.CannibalizationKM, nearestName))
		zap.L().Info("viability: go downgraded for cannibalization risk",
			zap.String("candidate", name),
			zap.Float64("nearest_km", v.CannibalizationKM),
		)
		return
	}

	if v.Confidence < s.cfg.MinConfidence {
		v.Verdict = model.VerdictReview
		zap.L().Info("viability: go downgraded for low confidence",
			zap.String("candidate", name),
			zap.Float64("confidence", v.Confidence),
		)
	}
}

func parseVerdict(s string) model.Verdict {
	switch model.Verdict(strings.ToLower(strings.TrimSpace(s))) {
	case model.VerdictGo:
		return model.VerdictGo
	case model.VerdictNoGo:
		return model.VerdictNoGo
	default:
		// Anything unrecognized lands in front of a human.
		return model.VerdictReview
	}
}

// nearestStore returns the distance to the closest existing store, or 0
// when the chain has none.
func nearestStore(cand model.Candidate, existing []model.StoreLocation) (float64, string) {
	best := math.MaxFloat64
	var name string
	for _, store := range existing {
		if d := geo.HaversineKM(cand.Lat, cand.Lon, store.Lat, store.Lon); d < best {
			best = d
			name = store.Name
		}
	}
	if name == "" {
		return 0, ""
	}
	return best, name
}

func buildUserMessage(region model.Region, cand model.Candidate, nearestKM float64, nearestName string) string {
	sc := cand.Score
	var sb strings.Builder
	fmt.Fprintf(&sb, `Validate this scored candidate site:

Site: %s (%s)
Address: %s, %s, %s
Region: %s

Strategic scores:
- Market fit: %.2f
- Accessibility: %.2f
- Competition: %.2f
- Cost profile: %.2f
- Composite: %.2f`,
		cand.Name, cand.SiteType, cand.Address, cand.City, cand.State, region.Name,
		sc.MarketFit, sc.Accessibility, sc.Competition, sc.CostProfile, sc.Composite)

	if cand.Market != nil {
		fmt.Fprintf(&sb, "\n\nMarket summary: %s", cand.Market.Summary)
	}
	if nearestName != "" {
		fmt.Fprintf(&sb, "\n\nNearest existing chain store: %s, %.1f km away", nearestName, nearestKM)
	}

	sb.WriteString(`

Respond with ONLY valid JSON in this format:
{
  "verdict": "<go|review|no_go>",
  "confidence": <0.0 to 1.0>,
  "red_flags": ["<flag>", ...],
  "rationale": "<two sentences>"
}`)
	return sb.String()
}
