package market

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forkline/expansion-cli/internal/llm"
	"github.com/forkline/expansion-cli/internal/model"
)

type fakeExecutor struct {
	lastOp llm.Operation
	result *llm.Result
	err    error
}

func (f *fakeExecutor) Execute(_ context.Context, op llm.Operation) (*llm.Result, error) {
	f.lastOp = op
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

const profileResponse = `{
  "population_density": "high",
  "median_income_band": "$50k-$75k",
  "foot_traffic": "high",
  "competitor_count": 7,
  "competition_density": 0.65,
  "demand_signals": ["university campus", "evening arts crowd"],
  "summary": "Dense urban corridor with strong evening traffic."
}`

func TestAnalyze(t *testing.T) {
	exec := &fakeExecutor{result: &llm.Result{JSON: []byte(profileResponse)}}
	svc := New(exec)

	region := model.Region{TenantID: "t1", Name: "Columbus Core"}
	cand := model.Candidate{Name: "Short North Plaza", Address: "1020 N High St",
		City: "Columbus", State: "OH", Lat: 39.9774, Lon: -83.0042, SiteType: model.SiteTypeInline}

	profile, err := svc.Analyze(context.Background(), region, cand, "Existing store performance (last 30 days):\n- Downtown: 4200 orders")
	require.NoError(t, err)

	assert.Equal(t, "high", profile.PopulationDensity)
	assert.Equal(t, 7, profile.CompetitorCount)
	assert.InDelta(t, 0.65, profile.CompetitionDensity, 1e-9)
	assert.Len(t, profile.DemandSignals, 2)

	// KPI context reaches both the prompt and the cache context.
	assert.Contains(t, exec.lastOp.User, "Downtown: 4200 orders")
	assert.Contains(t, exec.lastOp.Context["kpis"], "4200 orders")
	assert.Equal(t, "market_analysis", exec.lastOp.Name)
}

func TestAnalyze_ClampsCompetitionDensity(t *testing.T) {
	resp := `{"population_density":"low","median_income_band":"x","foot_traffic":"low",
	          "competitor_count":0,"competition_density":1.0}`
	exec := &fakeExecutor{result: &llm.Result{JSON: []byte(resp)}}
	svc := New(exec)

	profile, err := svc.Analyze(context.Background(), model.Region{}, model.Candidate{Name: "X"}, "")
	require.NoError(t, err)
	assert.LessOrEqual(t, profile.CompetitionDensity, 1.0)
}

func TestAnalyze_PipelineError(t *testing.T) {
	exec := &fakeExecutor{err: eris.New("provider down")}
	svc := New(exec)

	_, err := svc.Analyze(context.Background(), model.Region{}, model.Candidate{Name: "X"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "market: analyze X")
}
