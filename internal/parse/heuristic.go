package parse

import (
	"strings"

	"github.com/posterintel/poster-research/internal/model"
)

// statusRules are checked in order against lowercased title+snippet text; the
// first rule with a matching keyword wins. "out of stock" listings that still
// show a price are kept deliberately: they band as historical sale evidence.
var statusRules = []struct {
	status   model.SaleStatus
	keywords []string
}{
	{model.StatusSold, []string{"sold", "no longer available"}},
	{model.StatusOutOfStock, []string{"out of stock", "unavailable"}},
	{model.StatusAuctionResult, []string{"hammer price", "realized"}},
	{model.StatusForSale, []string{"add to cart", "buy now", "in stock"}},
}

const (
	keywordStatusConfidence = 0.8
	unknownStatusConfidence = 0.5

	// Without semantic comparison every result is an even bet.
	heuristicMatchConfidence = 0.5
)

// HeuristicParse classifies results without AI: sale status from keyword
// matching over title and snippet, prices carried over from normalization,
// and a fixed 0.5 match confidence. Attribution fields stay empty.
func HeuristicParse(results []model.SearchResult) []model.ParsedResult {
	out := make([]model.ParsedResult, 0, len(results))
	for _, r := range results {
		status, confidence := classifyStatus(r.Title + " " + r.Snippet)
		out = append(out, model.ParsedResult{
			URL:              r.URL,
			Title:            r.Title,
			Domain:           r.Domain,
			Price:            r.Price,
			Status:           status,
			StatusConfidence: confidence,
			MatchConfidence:  heuristicMatchConfidence,
			SellerID:         r.SellerID,
			SellerName:       r.SellerName,
			SellerTier:       r.SellerTier,
			KnownSeller:      r.KnownSeller,
			ParsedBy:         model.ParsedByHeuristic,
		})
	}
	return out
}

func classifyStatus(text string) (model.SaleStatus, float64) {
	lower := strings.ToLower(text)
	for _, rule := range statusRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.status, keywordStatusConfidence
			}
		}
	}
	return model.StatusUnknown, unknownStatusConfidence
}
