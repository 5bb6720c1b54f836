// Package cost estimates the USD cost of model provider calls.
package cost

// Rates holds per-provider pricing keyed by model name.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    map[string]ModelRate `yaml:"openai" mapstructure:"openai"`
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

// Estimate returns the cost of one call. Unknown providers or models cost 0.
func (c *Calculator) Estimate(provider, model string, input, output int) float64 {
	var table map[string]ModelRate
	switch provider {
	case "anthropic":
		table = c.rates.Anthropic
	case "openai":
		table = c.rates.OpenAI
	}
	rate, ok := table[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Merge overlays configured rates on top of r, model by model.
func (r Rates) Merge(anthropic, openai map[string]ModelRate) Rates {
	out := Rates{
		Anthropic: make(map[string]ModelRate, len(r.Anthropic)+len(anthropic)),
		OpenAI:    make(map[string]ModelRate, len(r.OpenAI)+len(openai)),
	}
	for k, v := range r.Anthropic {
		out.Anthropic[k] = v
	}
	for k, v := range anthropic {
		out.Anthropic[k] = v
	}
	for k, v := range r.OpenAI {
		out.OpenAI[k] = v
	}
	for k, v := range openai {
		out.OpenAI[k] = v
	}
	return out
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
		},
		OpenAI: map[string]ModelRate{
			"gpt-4o":      {Input: 2.50, Output: 10.00},
			"gpt-4o-mini": {Input: 0.15, Output: 0.60},
			"o3-mini":     {Input: 1.10, Output: 4.40},
		},
	}
}
