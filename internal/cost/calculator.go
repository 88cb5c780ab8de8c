// Package cost turns provider usage into dollar amounts for session
// accounting.
package cost

// Rates holds per-provider pricing configuration.
type Rates struct {
	SerpAPI   SearchRate           `yaml:"serpapi" mapstructure:"serpapi"`
	Serper    SearchRate           `yaml:"serper" mapstructure:"serper"`
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Vision    VisionRate           `yaml:"vision" mapstructure:"vision"`
}

// SearchRate holds flat per-search pricing.
type SearchRate struct {
	PerSearch float64 `yaml:"per_search" mapstructure:"per_search"`
}

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// VisionRate holds the flat pre-flight estimate for one pairwise image
// comparison. Actual vision spend is computed from token usage; this rate
// only feeds the estimate logged before the stage runs.
type VisionRate struct {
	PerComparison float64 `yaml:"per_comparison" mapstructure:"per_comparison"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost of one Anthropic call from its token counts.
// Unknown models cost zero rather than guessing.
func (c *Calculator) Claude(model string, input, output, cacheWrite, cacheRead int64) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}

	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	cwCost := (float64(cacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(cacheRead) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// SerpAPISearches returns the cost of n visual searches.
func (c *Calculator) SerpAPISearches(n int) float64 {
	return float64(n) * c.rates.SerpAPI.PerSearch
}

// SerperQueries returns the cost of n text search queries.
func (c *Calculator) SerperQueries(n int) float64 {
	return float64(n) * c.rates.Serper.PerSearch
}

// EstimateVision returns the pre-flight cost estimate for n pairwise image
// comparisons.
func (c *Calculator) EstimateVision(n int) float64 {
	return float64(n) * c.rates.Vision.PerComparison
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		SerpAPI: SearchRate{PerSearch: 0.015},
		Serper:  SearchRate{PerSearch: 0.001},
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 0.80, Output: 4.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-opus-4-6": {
				Input: 15.00, Output: 75.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
		},
		Vision: VisionRate{PerComparison: 0.015},
	}
}
