package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// SellerCategory classifies a registered seller.
type SellerCategory string

const (
	CategoryDealer       SellerCategory = "dealer"
	CategoryAuctionHouse SellerCategory = "auction_house"
	CategoryGallery      SellerCategory = "gallery"
	CategoryMarketplace  SellerCategory = "marketplace"
	CategoryAggregator   SellerCategory = "aggregator"
	CategoryInstitution  SellerCategory = "research_institution"
	CategoryOther        SellerCategory = "other"
)

// DefaultSellerWeight is the attribution/pricing weight assigned to sellers
// that do not specify one.
const DefaultSellerWeight = 0.7

// Seller is a registered marketplace, auction house, gallery, or institution
// with a known domain and trust tier. Tier 1 is most trusted, tier 6 least;
// the tier drives consensus weighting and result ordering.
type Seller struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Slug              string         `json:"slug"`
	Category          SellerCategory `json:"category"`
	Domain            string         `json:"domain"`
	Tier              int            `json:"tier"`
	AttributionWeight float64        `json:"attribution_weight"`
	PricingWeight     float64        `json:"pricing_weight"`
	CanResearch       bool           `json:"can_research"`
	CanPrice          bool           `json:"can_price"`
	CanProcure        bool           `json:"can_procure"`
	CanBeSource       bool           `json:"can_be_source"`
	SearchURLTemplate string         `json:"search_url_template,omitempty"`
	Active            bool           `json:"active"`
}

// Validate checks the invariants a seller record must satisfy before it is
// usable for matching or weighting.
func (s Seller) Validate() error {
	if s.Name == "" {
		return eris.New("seller: name is required")
	}
	if s.Domain == "" {
		return eris.Errorf("seller %q: domain is required", s.Name)
	}
	if s.Tier < 1 || s.Tier > 6 {
		return eris.Errorf("seller %q: tier %d out of range [1,6]", s.Name, s.Tier)
	}
	return nil
}

// EffectiveAttributionWeight returns the attribution weight, falling back to
// the default when unset.
func (s Seller) EffectiveAttributionWeight() float64 {
	if s.AttributionWeight <= 0 {
		return DefaultSellerWeight
	}
	return s.AttributionWeight
}

// EffectivePricingWeight returns the pricing weight, falling back to the
// default when unset.
func (s Seller) EffectivePricingWeight() float64 {
	if s.PricingWeight <= 0 {
		return DefaultSellerWeight
	}
	return s.PricingWeight
}

// SearchURL expands the seller's search URL template with the given query.
// Returns "" when the seller has no template.
func (s Seller) SearchURL(query string) string {
	if s.SearchURLTemplate == "" {
		return ""
	}
	return strings.ReplaceAll(s.SearchURLTemplate, "{query}", query)
}

// Slugify derives the normalized identifier for a seller name: lowercase,
// alphanumerics preserved, runs of anything else collapsed to single hyphens.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
