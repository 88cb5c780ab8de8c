package model

// ResultSource tags which search stage produced a result.
type ResultSource string

const (
	SourceVisual ResultSource = "visual"
	SourceWeb    ResultSource = "web"
)

// Price is a parsed price with its inferred ISO 4217 currency code.
type Price struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

// Verification holds the outcome of a pairwise image comparison against the
// reference image. The zero value means "not verified".
type Verification struct {
	Verified    bool    `json:"verified"`
	MatchScore  float64 `json:"match_score"`
	SameImage   bool    `json:"same_image"`
	SameStyle   bool    `json:"same_style"`
	Explanation string  `json:"explanation,omitempty"`
}

// SearchResult is one normalized finding from any provider. The URL is the
// primary identity key: after merging there is exactly one record per
// normalized URL.
type SearchResult struct {
	Title        string       `json:"title"`
	URL          string       `json:"url"`
	Domain       string       `json:"domain"`
	Snippet      string       `json:"snippet,omitempty"`
	Source       ResultSource `json:"source"`
	Provider     string       `json:"provider,omitempty"`
	PriceText    string       `json:"price_text,omitempty"`
	Price        *Price       `json:"price,omitempty"`
	Thumbnail    string       `json:"thumbnail,omitempty"`
	SellerID     string       `json:"seller_id,omitempty"`
	SellerName   string       `json:"seller_name,omitempty"`
	SellerTier   int          `json:"seller_tier,omitempty"`
	KnownSeller  bool         `json:"known_seller"`
	Verification Verification `json:"verification"`
}

// HasPrice reports whether a positive numeric price was parsed for the result.
func (r SearchResult) HasPrice() bool {
	return r.Price != nil && r.Price.Value > 0
}

// ExtractedTitle is a candidate item name pulled from visual-search results,
// used to drive follow-up text queries. Computed once per session and not
// persisted beyond it.
type ExtractedTitle struct {
	Title      string  `json:"title"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// KnowledgeGraph is the optional entity summary some visual searches return
// alongside the match list.
type KnowledgeGraph struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Link     string `json:"link,omitempty"`
}
