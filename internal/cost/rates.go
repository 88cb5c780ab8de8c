package cost

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LoadRates reads a YAML rates file over the defaults, so a file only needs
// the entries it changes.
func LoadRates(path string) (Rates, error) {
	rates := DefaultRates()

	data, err := os.ReadFile(path)
	if err != nil {
		return rates, eris.Wrap(err, "cost: read rates file")
	}
	if err := yaml.Unmarshal(data, &rates); err != nil {
		return rates, eris.Wrap(err, "cost: parse rates file")
	}
	return rates, nil
}

// ApplySearchOverrides sets per-search pricing from config values. Zero
// values keep the current rate.
func (r *Rates) ApplySearchOverrides(serpapiPerSearch, serperPerSearch float64) {
	if serpapiPerSearch > 0 {
		r.SerpAPI.PerSearch = serpapiPerSearch
	}
	if serperPerSearch > 0 {
		r.Serper.PerSearch = serperPerSearch
	}
}

// ApplyModelOverride sets token pricing for one model, keeping existing cache
// multipliers (or the standard ones for a model not in the table yet).
func (r *Rates) ApplyModelOverride(model string, input, output float64) {
	if model == "" || input <= 0 || output <= 0 {
		return
	}
	if r.Anthropic == nil {
		r.Anthropic = make(map[string]ModelRate)
	}
	rate, ok := r.Anthropic[model]
	if !ok {
		rate = ModelRate{CacheWriteMul: 1.25, CacheReadMul: 0.1}
	}
	rate.Input = input
	rate.Output = output
	r.Anthropic[model] = rate
}
