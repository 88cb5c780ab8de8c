// Package search turns raw provider responses into the unified result set the
// rest of the engine works on: normalization, title extraction and query
// generation, and the merge/dedup/sort pass. Everything here is a pure
// transform over in-memory data.
package search

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/currency"

	"github.com/posterintel/poster-research/internal/model"
	"github.com/posterintel/poster-research/internal/registry"
	"github.com/posterintel/poster-research/pkg/serpapi"
	"github.com/posterintel/poster-research/pkg/serper"
)

// pricePatterns are tried in order against title+snippet text; the first
// match wins. Group 1 is always the numeric amount. Patterns with a fixed
// currency leave group 2 empty; the suffix form captures the ISO code there.
var pricePatterns = []struct {
	re       *regexp.Regexp
	currency string
}{
	{regexp.MustCompile(`\$\s?([0-9][0-9,]*(?:\.[0-9]{1,2})?)`), "USD"},
	{regexp.MustCompile(`€\s?([0-9][0-9,]*(?:\.[0-9]{1,2})?)`), "EUR"},
	{regexp.MustCompile(`£\s?([0-9][0-9,]*(?:\.[0-9]{1,2})?)`), "GBP"},
	{regexp.MustCompile(`([0-9][0-9,]*(?:\.[0-9]{1,2})?)\s?(USD|EUR|GBP)\b`), ""},
}

// ParsePrice scans text for the first recognizable price. Returns the parsed
// price and the matched fragment, or (nil, "") when nothing matches.
func ParsePrice(text string) (*model.Price, string) {
	for _, p := range pricePatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil || value <= 0 {
			continue
		}
		code := p.currency
		if code == "" {
			code = m[2]
		}
		return &model.Price{Value: value, Currency: code}, m[0]
	}
	return nil, ""
}

// CurrencyCode maps a provider-reported currency symbol or code to an ISO
// 4217 code, defaulting to USD when the input is unrecognized.
func CurrencyCode(symbolOrCode string) string {
	s := strings.TrimSpace(symbolOrCode)
	switch s {
	case "$", "US$", "USD":
		return "USD"
	case "€", "EUR":
		return "EUR"
	case "£", "GBP":
		return "GBP"
	}
	if unit, err := currency.ParseISO(strings.ToUpper(s)); err == nil {
		return unit.String()
	}
	return "USD"
}

// NormalizeVisualMatches converts Google Lens visual matches into unified
// search results: domain derived from the link, the provider's own price
// taken when present (falling back to a regex scan of the title), and the
// seller resolved through the domain index.
func NormalizeVisualMatches(matches []serpapi.VisualMatch, idx *registry.DomainIndex) []model.SearchResult {
	out := make([]model.SearchResult, 0, len(matches))
	for _, m := range matches {
		r := model.SearchResult{
			Title:     m.Title,
			URL:       m.Link,
			Domain:    registry.Hostname(m.Link),
			Source:    model.SourceVisual,
			Provider:  "serpapi",
			Thumbnail: m.Thumbnail,
		}
		if m.Price != nil && m.Price.ExtractedValue > 0 {
			r.Price = &model.Price{
				Value:    m.Price.ExtractedValue,
				Currency: CurrencyCode(m.Price.Currency),
			}
			r.PriceText = m.Price.Value
		} else if price, text := ParsePrice(m.Title); price != nil {
			r.Price = price
			r.PriceText = text
		}
		applySeller(&r, idx)
		out = append(out, r)
	}
	return out
}

// NormalizeOrganicResults converts web search hits into unified search
// results, scanning title and snippet for a price.
func NormalizeOrganicResults(results []serper.OrganicResult, idx *registry.DomainIndex) []model.SearchResult {
	out := make([]model.SearchResult, 0, len(results))
	for _, o := range results {
		r := model.SearchResult{
			Title:    o.Title,
			URL:      o.Link,
			Domain:   registry.Hostname(o.Link),
			Snippet:  o.Snippet,
			Source:   model.SourceWeb,
			Provider: "serper",
		}
		if price, text := ParsePrice(o.Title + " " + o.Snippet); price != nil {
			r.Price = price
			r.PriceText = text
		}
		applySeller(&r, idx)
		out = append(out, r)
	}
	return out
}

// NormalizeKnowledgeGraph picks the first knowledge-graph entry, if any.
func NormalizeKnowledgeGraph(items []serpapi.KnowledgeGraphItem) *model.KnowledgeGraph {
	if len(items) == 0 {
		return nil
	}
	return &model.KnowledgeGraph{
		Title:    items[0].Title,
		Subtitle: items[0].Subtitle,
		Link:     items[0].Link,
	}
}

// UnknownDomains collects the root domains of results that matched no
// registered seller, deduplicated in first-seen order. These feed registry
// gap review.
func UnknownDomains(results []model.SearchResult) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range results {
		if r.KnownSeller {
			continue
		}
		root := registry.RootDomain(r.URL)
		if root == "" {
			continue
		}
		if _, ok := seen[root]; ok {
			continue
		}
		seen[root] = struct{}{}
		out = append(out, root)
	}
	return out
}

func applySeller(r *model.SearchResult, idx *registry.DomainIndex) {
	if idx == nil {
		return
	}
	match := idx.Match(r.URL)
	if !match.Known {
		return
	}
	r.SellerID = match.ID
	r.SellerName = match.Name
	r.SellerTier = match.Tier
	r.KnownSeller = true
}
