package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKey_Stable(t *testing.T) {
	ctx := map[string]any{"city": "Columbus", "radius": 8.0}

	k1 := CacheKey("discovery", ctx, 42)
	k2 := CacheKey("discovery", ctx, 42)
	assert.Equal(t, k1, k2)
	assert.True(t, strings.HasPrefix(k1, "discovery:"))
}

func TestCacheKey_SeedChangesKey(t *testing.T) {
	ctx := map[string]any{"city": "Columbus"}

	assert.NotEqual(t, CacheKey("discovery", ctx, 1), CacheKey("discovery", ctx, 2))
}

func TestCacheKey_OperationNamespaces(t *testing.T) {
	ctx := map[string]any{"city": "Columbus"}

	assert.NotEqual(t, CacheKey("discovery", ctx, 1), CacheKey("scoring", ctx, 1))
}

func TestCacheKey_NilAndZeroDistinct(t *testing.T) {
	nilCtx := map[string]any{"radius": nil}
	zeroCtx := map[string]any{"radius": 0.0}
	setCtx := map[string]any{"radius": 5.0}

	kNil := CacheKey("discovery", nilCtx, 1)
	kZero := CacheKey("discovery", zeroCtx, 1)
	kSet := CacheKey("discovery", setCtx, 1)

	assert.NotEqual(t, kNil, kZero)
	assert.NotEqual(t, kZero, kSet)
	assert.NotEqual(t, kNil, kSet)
}

func TestEncodeValue_Sentinels(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "@nil"},
		{"nil pointer", (*string)(nil), "@nil"},
		{"empty string", "", "@zero"},
		{"empty slice", []string{}, "@zero"},
		{"empty map", map[string]int{}, "@zero"},
		{"zero int", 0, "@zero"},
		{"zero float", 0.0, "@zero"},
		{"false", false, "@zero"},
		{"string", "downtown", "downtown"},
		{"int", 7, "7"},
		{"bool", true, "true"},
		{"slice", []string{"a", "b"}, "[a,b]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, encodeValue(tt.in))
		})
	}
}

func TestEncodeValue_MapSortedByKey(t *testing.T) {
	m := map[string]int{"b": 2, "a": 1, "c": 3}
	assert.Equal(t, "{a:1,b:2,c:3}", encodeValue(m))
}
