package cost

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_RecordAggregates(t *testing.T) {
	m := NewMonitor(NewCalculator(DefaultRates()), 0)

	m.Record("discovery", "openai", "gpt-4o", 1000, 500, 800*time.Millisecond, false)
	m.Record("discovery", "openai", "gpt-4o", 2000, 1000, 1200*time.Millisecond, false)
	m.Record("scoring", "openai", "gpt-4o-mini", 500, 100, 300*time.Millisecond, false)

	snap := m.Snapshot()
	require.Len(t, snap, 2)

	// Sorted by operation name.
	assert.Equal(t, "discovery", snap[0].Operation)
	assert.Equal(t, 2, snap[0].Calls)
	assert.Equal(t, 3000, snap[0].InputTokens)
	assert.Equal(t, 1500, snap[0].OutputTokens)
	assert.Equal(t, time.Second, snap[0].AvgLatency())

	assert.Equal(t, "scoring", snap[1].Operation)
	assert.Equal(t, 1, snap[1].Calls)

	assert.Greater(t, m.TotalUSD(), 0.0)
}

func TestMonitor_CacheHitZeroCost(t *testing.T) {
	m := NewMonitor(NewCalculator(DefaultRates()), 0)

	e := m.Record("analysis", "openai", "gpt-4o", 9999, 9999, 5*time.Second, true)
	assert.Zero(t, e.CostUSD)
	assert.Zero(t, e.InputTokens)
	assert.Zero(t, e.Latency)

	snap := m.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 1, snap[0].CacheHits)
	assert.Zero(t, snap[0].CostUSD)
	assert.Zero(t, snap[0].AvgLatency())
}

func TestMonitor_BudgetAlertFiresOnce(t *testing.T) {
	m := NewMonitor(NewCalculator(DefaultRates()), 0.01)

	// 1M input tokens of gpt-4o is $2.50, well past the 1 cent budget.
	m.Record("discovery", "openai", "gpt-4o", 1_000_000, 0, time.Second, false)
	assert.True(t, m.alerted)

	// A second crossing must not re-arm.
	m.Record("discovery", "openai", "gpt-4o", 1_000_000, 0, time.Second, false)
	assert.True(t, m.alerted)
}
