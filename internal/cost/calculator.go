// Package cost tracks token usage, latency, and dollar cost per operation.
package cost

// Rates holds per-provider pricing configuration.
type Rates struct {
	OpenAI    map[string]ModelRate `yaml:"openai" mapstructure:"openai"`
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Call computes the cost of a single completion call for the named provider
// and model. Unknown models cost zero.
func (c *Calculator) Call(provider, model string, inputTokens, outputTokens int) float64 {
	var rate ModelRate
	var ok bool
	switch provider {
	case "openai":
		rate, ok = c.rates.OpenAI[model]
	case "anthropic":
		rate, ok = c.rates.Anthropic[model]
	}
	if !ok {
		return 0
	}

	inCost := (float64(inputTokens) / 1e6) * rate.Input
	outCost := (float64(outputTokens) / 1e6) * rate.Output
	return inCost + outCost
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		OpenAI: map[string]ModelRate{
			"gpt-4o":      {Input: 2.50, Output: 10.00},
			"gpt-4o-mini": {Input: 0.15, Output: 0.60},
			"gpt-4.1":     {Input: 2.00, Output: 8.00},
		},
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
	}
}
