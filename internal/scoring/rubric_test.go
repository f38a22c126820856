package scoring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRubric_SumsToOne(t *testing.T) {
	r := DefaultRubric()
	assert.InDelta(t, 1.0, r.MarketFit+r.Accessibility+r.Competition+r.CostProfile, 1e-9)
}

func TestLoadRubric_Normalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rubric.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
market_fit: 4
accessibility: 3
competition: 2
cost_profile: 1
`), 0o644))

	r, err := LoadRubric(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, r.MarketFit, 1e-9)
	assert.InDelta(t, 0.3, r.Accessibility, 1e-9)
	assert.InDelta(t, 0.2, r.Competition, 1e-9)
	assert.InDelta(t, 0.1, r.CostProfile, 1e-9)
}

func TestLoadRubric_Missing(t *testing.T) {
	_, err := LoadRubric(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read rubric")
}

func TestLoadRubric_ZeroWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rubric.yaml")
	require.NoError(t, os.WriteFile(path, []byte("market_fit: 0\n"), 0o644))

	_, err := LoadRubric(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum to zero")
}

func TestLoadRubric_NegativeWeight(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rubric.yaml")
	require.NoError(t, os.WriteFile(path, []byte("market_fit: -1\naccessibility: 2\n"), 0o644))

	_, err := LoadRubric(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-negative")
}

func TestComposite(t *testing.T) {
	r := Rubric{MarketFit: 0.5, Accessibility: 0.2, Competition: 0.2, CostProfile: 0.1}
	got := r.Composite(1.0, 0.5, 0.0, 1.0)
	assert.InDelta(t, 0.5+0.1+0+0.1, got, 1e-9)
}
