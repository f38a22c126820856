package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/forkline/expansion-cli/internal/config"
	"github.com/forkline/expansion-cli/internal/geo"
	"github.com/forkline/expansion-cli/internal/model"
)

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, normalizeName("Café Plaza"), normalizeName("cafe plaza"))
	assert.Equal(t, normalizeName("Short-North Plaza"), normalizeName("Short North Plaza"))
	assert.NotEqual(t, normalizeName("Easton"), normalizeName("Polaris"))
}

func TestDedupe_DiacriticInsensitive(t *testing.T) {
	svc := New(nil, config.DiscoveryConfig{}, nil)
	candidates := []model.Candidate{
		{Name: "Café Plaza", Lat: 39.9, Lon: -83.0, Quality: 0.8},
		{Name: "Cafe Plaza", Lat: 39.95, Lon: -83.05, Quality: 0.7},
	}

	svc.dedupe(candidates)
	assert.False(t, candidates[0].Filtered)
	assert.True(t, candidates[1].Filtered)
	assert.Contains(t, candidates[1].FilterReason, "duplicate")
}

func TestCluster_KeepsBestOfCluster(t *testing.T) {
	svc := New(nil, config.DiscoveryConfig{ClusterRadiusKM: 1.0}, nil)
	candidates := []model.Candidate{
		{Name: "Weaker", Lat: 39.9000, Lon: -83.0000, Quality: 0.6},
		{Name: "Stronger", Lat: 39.9010, Lon: -83.0010, Quality: 0.9}, // ~150 m away
		{Name: "Far", Lat: 39.9500, Lon: -83.1000, Quality: 0.5},
	}

	svc.cluster(candidates)

	assert.False(t, candidates[1].Filtered, "best of the cluster survives")
	assert.True(t, candidates[0].Filtered)
	assert.Contains(t, candidates[0].FilterReason, "clustered with Stronger")
	assert.False(t, candidates[2].Filtered)
}

func TestFilterTradeArea(t *testing.T) {
	boundary := &geo.Boundary{Name: "Columbus Core", Geom: squareMultiPolygon(t)}
	svc := New(nil, config.DiscoveryConfig{}, boundary)

	candidates := []model.Candidate{
		{Name: "Inside", Lat: 40.0, Lon: -83.0},
		{Name: "Outside", Lat: 41.0, Lon: -83.0},
	}

	svc.filterTradeArea(candidates)
	assert.False(t, candidates[0].Filtered)
	assert.True(t, candidates[1].Filtered)
	assert.Contains(t, candidates[1].FilterReason, "outside trade area Columbus Core")
}

func TestPostProcess_OrderOfFilters(t *testing.T) {
	svc := New(nil, config.DiscoveryConfig{MinStoreKM: 2.0, QualityThreshold: 0.6}, nil)
	existing := []model.StoreLocation{{Name: "Downtown", Lat: 39.96, Lon: -83.0}}

	candidates := []model.Candidate{
		// Near the existing store and low quality: the distance reason wins.
		{Name: "Close And Weak", Lat: 39.961, Lon: -83.001, Quality: 0.3},
	}

	svc.PostProcess(candidates, existing)
	require.True(t, candidates[0].Filtered)
	assert.Contains(t, candidates[0].FilterReason, "existing store")
}

func squareMultiPolygon(t *testing.T) *geom.MultiPolygon {
	t.Helper()
	ring := geom.NewLinearRingFlat(geom.XY, []float64{
		-83.1, 39.9, -83.1, 40.1, -82.9, 40.1, -82.9, 39.9, -83.1, 39.9,
	})
	poly := geom.NewPolygon(geom.XY)
	require.NoError(t, poly.Push(ring))
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	require.NoError(t, mp.Push(poly))
	return mp
}
