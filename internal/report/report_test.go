package report

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/forkline/expansion-cli/internal/model"
)

func sampleRun() *model.Run {
	return &model.Run{
		ID:        "run-1",
		Region:    model.Region{Name: "Columbus North", City: "Columbus", State: "OH"},
		Status:    model.RunStatusComplete,
		CreatedAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		Result: &model.RunResult{
			CandidatesFound: 2, CandidatesScored: 2, CandidatesViable: 1,
			CostUSD: 0.3142, CacheHits: 3,
			Phases: []model.PhaseResult{
				{Name: "discover", Status: model.PhaseStatusComplete, Duration: 1200, Items: 2},
				{Name: "analyze", Status: model.PhaseStatusComplete, Duration: 3400, Items: 2},
			},
		},
	}
}

func sampleCandidates() []model.Candidate {
	return []model.Candidate{
		{
			Name: "Short North Plaza", Address: "1021 N High St", City: "Columbus", State: "OH",
			Lat: 39.9774, Lon: -83.0042, SiteType: model.SiteTypeInline, Quality: 0.9,
			Market:  &model.MarketProfile{PopulationDensity: "high", MedianIncomeBand: "$50k-$75k", FootTraffic: "high", CompetitorCount: 7},
			Score:   &model.StrategicScore{MarketFit: 0.8, Accessibility: 0.7, Competition: 0.6, CostProfile: 0.5, Composite: 0.68},
			Verdict: &model.ViabilityVerdict{Verdict: model.VerdictGo, Confidence: 0.85, CannibalizationKM: 5.2},
		},
		{
			Name: "Rejected Corner", Lat: 39.9, Lon: -83.1, SiteType: model.SiteTypeUnknown,
			Quality: 0.3, Filtered: true, FilterReason: "quality 0.30 below threshold 0.60",
		},
	}
}

func TestWriteWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.xlsx")
	require.NoError(t, WriteWorkbook(path, sampleRun(), sampleCandidates()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	summary, ok := f.Sheet["Summary"]
	require.True(t, ok)
	assert.Equal(t, "Run ID", summary.Rows[0].Cells[0].String())
	assert.Equal(t, "run-1", summary.Rows[0].Cells[1].String())
	assert.Equal(t, "Columbus North", summary.Rows[1].Cells[1].String())

	cands, ok := f.Sheet["Candidates"]
	require.True(t, ok)
	require.Len(t, cands.Rows, 3)
	assert.Equal(t, "Name", cands.Rows[0].Cells[0].String())
	assert.Equal(t, "Short North Plaza", cands.Rows[1].Cells[0].String())
	assert.Equal(t, "go", cands.Rows[1].Cells[17].String())
	assert.Equal(t, "Rejected Corner", cands.Rows[2].Cells[0].String())
	assert.Equal(t, "quality 0.30 below threshold 0.60", cands.Rows[2].Cells[21].String())
}

func TestWriteWorkbook_NoResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queued.xlsx")
	run := &model.Run{ID: "run-2", Region: model.Region{Name: "Dallas East"}, Status: model.RunStatusQueued}

	require.NoError(t, WriteWorkbook(path, run, nil))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	cands := f.Sheet["Candidates"]
	require.NotNil(t, cands)
	assert.Len(t, cands.Rows, 1)
}
