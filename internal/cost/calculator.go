// Package cost estimates API spend for a classification job's final stats.
package cost

import (
	"github.com/sells-group/classify-cli/internal/model"
)

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic  map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityRate       `yaml:"perplexity" mapstructure:"perplexity"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// PerplexityRate holds Perplexity pricing.
type PerplexityRate struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost for Claude token usage under the given model.
func (c *Calculator) Claude(modelName string, input, output int64) float64 {
	rate, ok := c.rates.Anthropic[modelName]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// PerplexityQueries returns the flat cost for n search queries.
func (c *Calculator) PerplexityQueries(n int64) float64 {
	return float64(n) * c.rates.Perplexity.PerQuery
}

// EstimateJob totals the spend recorded in a job's token usage.
func (c *Calculator) EstimateJob(modelName string, usage model.TokenUsage) float64 {
	return c.Claude(modelName, usage.PromptTokens, usage.CompletionTokens) +
		c.PerplexityQueries(usage.SearchQueries)
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
		Perplexity: PerplexityRate{PerQuery: 0.005},
	}
}
