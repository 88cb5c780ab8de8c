package parse

import "github.com/posterintel/poster-research/internal/model"

// SummarizePrices partitions positive prices into live listings and
// historical sale evidence. Unknown-status prices join neither band but stay
// in AllPrices for traceability. Empty partitions yield a nil band, never an
// empty object.
func SummarizePrices(results []model.ParsedResult) model.PriceSummary {
	var summary model.PriceSummary
	var current, sold []model.PricePoint

	for _, r := range results {
		if r.Price == nil || r.Price.Value <= 0 {
			continue
		}
		point := model.PricePoint{
			Value:    r.Price.Value,
			Currency: r.Price.Currency,
			Status:   r.Status,
			Source:   r.SourceLabel(),
			URL:      r.URL,
		}
		summary.AllPrices = append(summary.AllPrices, point)

		switch {
		case r.Status == model.StatusForSale:
			current = append(current, point)
		case r.Status.Historical():
			sold = append(sold, point)
		}
	}

	summary.CurrentListings = band(current)
	summary.SoldPrices = band(sold)
	return summary
}

func band(points []model.PricePoint) *model.PriceBand {
	if len(points) == 0 {
		return nil
	}

	b := &model.PriceBand{
		Low:   points[0].Value,
		High:  points[0].Value,
		Count: len(points),
	}
	var sum float64
	for _, p := range points {
		if p.Value < b.Low {
			b.Low = p.Value
		}
		if p.Value > b.High {
			b.High = p.Value
		}
		sum += p.Value
		b.Currencies = appendUnique(b.Currencies, p.Currency)
	}
	b.Average = sum / float64(len(points))
	return b
}
