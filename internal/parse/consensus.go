package parse

import (
	"math"
	"strings"

	"github.com/posterintel/poster-research/internal/model"
)

// consensusCap bounds reported consensus confidence: even unanimous agreement
// across scraped listings is not certainty.
const consensusCap = 0.95

// Consensus runs the weighted vote for each attribution field. A result
// qualifies when its match confidence exceeds minMatch and it supplied a
// value; weight = tierWeight × matchConfidence with tierWeight decaying per
// tier step. Fields with zero qualifying values stay nil.
func Consensus(results []model.ParsedResult, tierDecay, minMatch float64) model.Consensus {
	return model.Consensus{
		Artist:    consensusField(results, tierDecay, minMatch, func(r model.ParsedResult) string { return r.Artist }),
		Date:      consensusField(results, tierDecay, minMatch, func(r model.ParsedResult) string { return r.Date }),
		Technique: consensusField(results, tierDecay, minMatch, func(r model.ParsedResult) string { return r.Technique }),
	}
}

// tierWeight maps a seller tier to its vote weight: tier 1 → 1.0, each step
// down costs one decay increment. Results with no registered seller weigh in
// at the bottom tier.
func tierWeight(tier int, decay float64) float64 {
	if tier < 1 || tier > 6 {
		tier = 6
	}
	return 1 - float64(tier-1)*decay
}

type voteGroup struct {
	value   string
	weight  float64
	sources []string
	count   int
}

func consensusField(results []model.ParsedResult, tierDecay, minMatch float64, value func(model.ParsedResult) string) *model.ConsensusField {
	groups := make(map[string]*voteGroup)
	var order []string
	var total float64

	for _, r := range results {
		v := strings.TrimSpace(value(r))
		if v == "" || r.MatchConfidence <= minMatch {
			continue
		}

		weight := tierWeight(r.SellerTier, tierDecay) * r.MatchConfidence
		if weight <= 0 {
			continue
		}
		total += weight

		key := normalizeValue(v)
		g, ok := groups[key]
		if !ok {
			g = &voteGroup{value: v}
			groups[key] = g
			order = append(order, key)
		}
		g.weight += weight
		g.count++
		g.sources = appendUnique(g.sources, r.SourceLabel())
	}

	if len(groups) == 0 || total <= 0 {
		return nil
	}

	winnerKey := order[0]
	for _, key := range order[1:] {
		if groups[key].weight > groups[winnerKey].weight {
			winnerKey = key
		}
	}
	winner := groups[winnerKey]

	return &model.ConsensusField{
		Value:           winner.value,
		NormalizedValue: winnerKey,
		Sources:         winner.sources,
		Confidence:      math.Min(consensusCap, winner.weight/total),
		AgreementCount:  winner.count,
	}
}

// normalizeValue collapses case and whitespace so "Alphonse  Mucha" and
// "alphonse mucha" vote together.
func normalizeValue(v string) string {
	return strings.Join(strings.Fields(strings.ToLower(v)), " ")
}

func appendUnique(list []string, s string) []string {
	if s == "" {
		return list
	}
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
