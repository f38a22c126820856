package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculator_Call(t *testing.T) {
	calc := NewCalculator(DefaultRates())

	// gpt-4o: $2.50/MTok in, $10.00/MTok out.
	got := calc.Call("openai", "gpt-4o", 1_000_000, 100_000)
	assert.InDelta(t, 2.50+1.00, got, 1e-9)

	// claude sonnet: $3/MTok in, $15/MTok out.
	got = calc.Call("anthropic", "claude-sonnet-4-5-20250929", 500_000, 200_000)
	assert.InDelta(t, 1.50+3.00, got, 1e-9)
}

func TestCalculator_UnknownModelCostsZero(t *testing.T) {
	calc := NewCalculator(DefaultRates())
	assert.Zero(t, calc.Call("openai", "gpt-99", 1_000_000, 1_000_000))
	assert.Zero(t, calc.Call("mystery", "gpt-4o", 1_000_000, 1_000_000))
}

func TestCalculator_ZeroTokens(t *testing.T) {
	calc := NewCalculator(DefaultRates())
	assert.Zero(t, calc.Call("openai", "gpt-4o", 0, 0))
}
