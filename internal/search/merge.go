package search

import (
	"sort"
	"strings"

	"github.com/posterintel/poster-research/internal/model"
)

// dedupKey normalizes a URL for identity comparison across providers.
func dedupKey(rawURL string) string {
	return strings.TrimRight(strings.ToLower(rawURL), "/")
}

// Merge combines visual and web results into one record per normalized URL.
// On collision the visual-sourced record wins (it carries thumbnails and
// provider prices), price data is backfilled from the losing side, and a
// verification from either side survives onto the merged record.
func Merge(visual, web []model.SearchResult) []model.SearchResult {
	byKey := make(map[string]int, len(visual)+len(web))
	merged := make([]model.SearchResult, 0, len(visual)+len(web))

	for _, r := range append(append([]model.SearchResult{}, visual...), web...) {
		key := dedupKey(r.URL)
		if key == "" {
			continue
		}

		i, ok := byKey[key]
		if !ok {
			byKey[key] = len(merged)
			merged = append(merged, r)
			continue
		}

		kept, other := merged[i], r
		if kept.Source != model.SourceVisual && other.Source == model.SourceVisual {
			kept, other = other, kept
		}
		if !kept.HasPrice() && other.HasPrice() {
			kept.Price = other.Price
			kept.PriceText = other.PriceText
		}
		if !kept.Verification.Verified && other.Verification.Verified {
			kept.Verification = other.Verification
		}
		merged[i] = kept
	}

	return merged
}

// SortResults orders merged results so the most trustworthy match comes
// first: confirmed same-item results, then verified records by descending
// match score, then unverified ones ranked by seller reputation (known before
// unknown, lower tier first), priced before unpriced, visual-sourced before
// web-sourced. The sort is stable, so merge order breaks remaining ties.
func SortResults(results []model.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return lessResult(results[i], results[j])
	})
}

func lessResult(a, b model.SearchResult) bool {
	av, bv := a.Verification, b.Verification

	if av.SameImage != bv.SameImage {
		return av.SameImage
	}
	if av.Verified != bv.Verified {
		return av.Verified
	}
	if av.Verified && av.MatchScore != bv.MatchScore {
		return av.MatchScore > bv.MatchScore
	}

	if a.KnownSeller != b.KnownSeller {
		return a.KnownSeller
	}
	if a.KnownSeller && a.SellerTier != b.SellerTier {
		return a.SellerTier < b.SellerTier
	}

	ap, bp := a.HasPrice(), b.HasPrice()
	if ap != bp {
		return ap
	}

	if a.Source != b.Source {
		return a.Source == model.SourceVisual
	}
	return false
}
