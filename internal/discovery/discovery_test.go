package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forkline/expansion-cli/internal/config"
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

func discoveryCfg() config.DiscoveryConfig {
	return config.DiscoveryConfig{
		MaxCandidates:    10,
		MinStoreKM:       2.0,
		ClusterRadiusKM:  0.5,
		QualityThreshold: 0.6,
	}
}

const discoveryResponse = `{
  "candidates": [
    {"name": "Short North Plaza", "address": "1020 N High St", "city": "Columbus", "state": "OH",
     "lat": 39.9774, "lon": -83.0042, "site_type": "inline", "quality": 0.85, "rationale": "dense foot traffic"},
    {"name": "Easton Endcap", "address": "160 Easton Town Ctr", "city": "Columbus", "state": "OH",
     "lat": 40.0503, "lon": -82.9150, "site_type": "endcap", "quality": 0.75, "rationale": "regional draw"},
    {"name": "Quiet Side Lot", "address": "5 Back Rd", "city": "Columbus", "state": "OH",
     "lat": 39.9000, "lon": -83.1000, "site_type": "freestanding", "quality": 0.30, "rationale": "cheap rent"}
  ]
}`

func TestDiscover_ParsesAndFilters(t *testing.T) {
	exec := &fakeExecutor{result: &llm.Result{JSON: []byte(discoveryResponse), Text: discoveryResponse}}
	svc := New(exec, discoveryCfg(), nil)

	region := model.Region{TenantID: "t1", Name: "Columbus Core", City: "Columbus", State: "OH",
		CenterLat: 39.98, CenterLon: -83.0, RadiusKM: 12}

	got, err := svc.Discover(context.Background(), region, nil)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "Short North Plaza", got[0].Name)
	assert.Equal(t, model.SiteTypeInline, got[0].SiteType)
	assert.False(t, got[0].Filtered)

	// Low-quality candidate is kept in the list but marked filtered.
	assert.True(t, got[2].Filtered)
	assert.Contains(t, got[2].FilterReason, "below threshold")

	// Operation wiring.
	assert.Equal(t, "discovery", exec.lastOp.Name)
	assert.Equal(t, "Columbus Core", exec.lastOp.Context["region"])
	assert.NotNil(t, exec.lastOp.Schema)
}

func TestDiscover_FiltersNearExistingStore(t *testing.T) {
	exec := &fakeExecutor{result: &llm.Result{JSON: []byte(discoveryResponse)}}
	svc := New(exec, discoveryCfg(), nil)

	existing := []model.StoreLocation{
		// Right on top of Short North Plaza.
		{Name: "High St Store", Lat: 39.9770, Lon: -83.0040},
	}

	got, err := svc.Discover(context.Background(), model.Region{Name: "Columbus"}, existing)
	require.NoError(t, err)

	assert.True(t, got[0].Filtered)
	assert.Contains(t, got[0].FilterReason, "existing store High St Store")
	assert.False(t, got[1].Filtered)
}

func TestDiscover_UnknownSiteType(t *testing.T) {
	resp := `{"candidates":[{"name":"X","lat":39.9,"lon":-83.0,"site_type":"kiosk","quality":0.9}]}`
	exec := &fakeExecutor{result: &llm.Result{JSON: []byte(resp)}}
	svc := New(exec, config.DiscoveryConfig{}, nil)

	got, err := svc.Discover(context.Background(), model.Region{Name: "r"}, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.SiteTypeUnknown, got[0].SiteType)
}

func TestDiscover_QualityClamped(t *testing.T) {
	resp := `{"candidates":[{"name":"X","lat":39.9,"lon":-83.0,"quality":1.0}]}`
	exec := &fakeExecutor{result: &llm.Result{JSON: []byte(resp)}}
	svc := New(exec, config.DiscoveryConfig{}, nil)

	got, err := svc.Discover(context.Background(), model.Region{Name: "r"}, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, got[0].Quality, 1.0)
	assert.GreaterOrEqual(t, got[0].Quality, 0.0)
}
