package model

// SaleStatus classifies what a listing says about the item's availability.
type SaleStatus string

const (
	StatusForSale       SaleStatus = "for_sale"
	StatusOutOfStock    SaleStatus = "out_of_stock"
	StatusSold          SaleStatus = "sold"
	StatusAuctionResult SaleStatus = "auction_result"
	StatusUnknown       SaleStatus = "unknown"
)

// Historical reports whether the status represents a completed transaction
// rather than a live listing. An out-of-stock page that still shows a price is
// evidence of an actual past sale, which is why out_of_stock bands with sold.
func (s SaleStatus) Historical() bool {
	switch s {
	case StatusSold, StatusOutOfStock, StatusAuctionResult:
		return true
	default:
		return false
	}
}

// ParsedBy identifies which parse path produced a ParsedResult.
type ParsedBy string

const (
	ParsedByAI        ParsedBy = "ai"
	ParsedByHeuristic ParsedBy = "heuristic"
)

// ParsedResult is the structured interpretation of one search result:
// attribution fields, price, sale status, and how confident the parser is
// that the listing shows the same item being researched.
type ParsedResult struct {
	URL              string     `json:"url"`
	Title            string     `json:"title"`
	Domain           string     `json:"domain"`
	Artist           string     `json:"artist,omitempty"`
	Date             string     `json:"date,omitempty"`
	Dimensions       string     `json:"dimensions,omitempty"`
	Technique        string     `json:"technique,omitempty"`
	Price            *Price     `json:"price,omitempty"`
	Status           SaleStatus `json:"status"`
	StatusConfidence float64    `json:"status_confidence"`
	MatchConfidence  float64    `json:"match_confidence"`
	MatchReason      string     `json:"match_reason,omitempty"`
	SellerID         string     `json:"seller_id,omitempty"`
	SellerName       string     `json:"seller_name,omitempty"`
	SellerTier       int        `json:"seller_tier,omitempty"`
	KnownSeller      bool       `json:"known_seller"`
	ParsedBy         ParsedBy   `json:"parsed_by"`
}

// SourceLabel is the contributor label used in consensus source lists:
// the seller name when known, otherwise the result domain.
func (p ParsedResult) SourceLabel() string {
	if p.SellerName != "" {
		return p.SellerName
	}
	return p.Domain
}

// ConsensusField is the weighted-vote winner for one attribution field.
type ConsensusField struct {
	Value           string   `json:"value"`
	NormalizedValue string   `json:"normalized_value"`
	Sources         []string `json:"sources"`
	Confidence      float64  `json:"confidence"`
	AgreementCount  int      `json:"agreement_count"`
}

// Consensus holds the per-field vote winners. A field is nil when zero
// qualifying results supplied a value for it; a zero-confidence placeholder is
// never emitted.
type Consensus struct {
	Artist    *ConsensusField `json:"artist,omitempty"`
	Date      *ConsensusField `json:"date,omitempty"`
	Technique *ConsensusField `json:"technique,omitempty"`
}

// Empty reports whether no field reached consensus.
func (c Consensus) Empty() bool {
	return c.Artist == nil && c.Date == nil && c.Technique == nil
}

// PricePoint is one extracted price retained for traceability.
type PricePoint struct {
	Value    float64    `json:"value"`
	Currency string     `json:"currency"`
	Status   SaleStatus `json:"status"`
	Source   string     `json:"source"`
	URL      string     `json:"url"`
}

// PriceBand aggregates a set of price points.
type PriceBand struct {
	Low        float64  `json:"low"`
	High       float64  `json:"high"`
	Average    float64  `json:"average"`
	Count      int      `json:"count"`
	Currencies []string `json:"currencies,omitempty"`
}

// PriceSummary partitions extracted prices into live listings and historical
// sale evidence. A band is nil, never an empty object, when no qualifying
// price points exist for it; AllPrices is always retained for links-out.
type PriceSummary struct {
	CurrentListings *PriceBand   `json:"current_listings,omitempty"`
	SoldPrices      *PriceBand   `json:"sold_prices,omitempty"`
	AllPrices       []PricePoint `json:"all_prices"`
}
