package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeedFrom_Deterministic(t *testing.T) {
	ctx := map[string]any{
		"region": "Franklin County",
		"radius": 12.5,
		"brands": []any{"north", "east"},
	}

	first := SeedFrom(ctx)
	second := SeedFrom(ctx)
	assert.Equal(t, first, second)
	assert.GreaterOrEqual(t, first, int64(0))
}

func TestSeedFrom_KeyOrderInsensitive(t *testing.T) {
	a := map[string]any{"city": "Columbus", "state": "OH", "radius": 10.0}
	b := map[string]any{"state": "OH", "radius": 10.0, "city": "Columbus"}

	assert.Equal(t, SeedFrom(a), SeedFrom(b))
}

func TestSeedFrom_NestedMapsNormalized(t *testing.T) {
	a := map[string]any{
		"filters": []any{map[string]any{"min": 1.0, "max": 2.0}},
	}
	b := map[string]any{
		"filters": []any{map[string]any{"max": 2.0, "min": 1.0}},
	}

	assert.Equal(t, SeedFrom(a), SeedFrom(b))
}

func TestSeedFrom_ContentSensitive(t *testing.T) {
	a := map[string]any{"city": "Columbus"}
	b := map[string]any{"city": "Cleveland"}

	assert.NotEqual(t, SeedFrom(a), SeedFrom(b))
}

func TestSeedFrom_SliceOrderMatters(t *testing.T) {
	a := map[string]any{"brands": []any{"north", "east"}}
	b := map[string]any{"brands": []any{"east", "north"}}

	assert.NotEqual(t, SeedFrom(a), SeedFrom(b))
}
