// Package parse turns merged search results into structured research data:
// per-listing extraction (AI-first with a deterministic heuristic fallback),
// weighted consensus over attribution fields, and price summary banding.
package parse

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/posterintel/poster-research/internal/model"
	"github.com/posterintel/poster-research/pkg/anthropic"
)

// DefaultModel is the extraction model used when none is configured.
const DefaultModel = "claude-sonnet-4-5-20250929"

const (
	defaultMaxTokens    = 4096
	defaultMaxAIResults = 30
	defaultTierDecay    = 0.15
	defaultMinMatch     = 0.3
)

// extractionPrompt is the system prompt for the structured extraction pass.
// It is cached (1h TTL) because it repeats verbatim across sessions.
const extractionPrompt = `You are a vintage poster research analyst. You receive numbered search results for one poster being researched and extract structured data for each result.

For each result report:
- index: the result number you are describing
- match_confidence: 0.0-1.0, how likely this listing shows the same poster described in the item context
- match_reason: one short sentence explaining the confidence
- artist, date, dimensions, technique: as stated in the listing text, or "" when not stated
- status: one of "for_sale", "out_of_stock", "sold", "auction_result", "unknown"
- status_confidence: 0.0-1.0
- price: the numeric listing or sale price when visible, otherwise omit the field
- currency: ISO code such as USD when a price is given

An "out of stock" listing that still shows a price is high-value evidence: it records an actual historical transaction, not a dead link. Classify it out_of_stock and keep the price.

Respond with ONLY valid JSON, no other text:
{"results": [{"index": 1, "match_confidence": 0.9, "match_reason": "same artist and year", "artist": "Alphonse Mucha", "date": "1896", "dimensions": "46 x 66 cm", "technique": "stone lithograph", "status": "for_sale", "status_confidence": 0.8, "price": 1200, "currency": "USD"}]}`

// Output bundles everything one parse pass produces. Usage counts tokens
// spent even when the AI response was rejected and the heuristic took over.
type Output struct {
	Results      []model.ParsedResult `json:"results"`
	Consensus    model.Consensus      `json:"consensus"`
	PriceSummary model.PriceSummary   `json:"price_summary"`
	Usage        anthropic.TokenUsage `json:"-"`
	UsedAI       bool                 `json:"used_ai"`
}

// Params configures a Parser. A nil Client means no AI credential is
// configured and every parse runs the heuristic path.
type Params struct {
	Client             anthropic.Client
	Model              string
	MaxTokens          int64
	MaxAIResults       int
	TierDecay          float64
	MinMatchConfidence float64
}

// Parser extracts structured listings data from search results.
type Parser struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	maxAI     int
	tierDecay float64
	minMatch  float64
}

// New creates a Parser, filling unset params with defaults.
func New(p Params) *Parser {
	if p.Model == "" {
		p.Model = DefaultModel
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = defaultMaxTokens
	}
	if p.MaxAIResults <= 0 {
		p.MaxAIResults = defaultMaxAIResults
	}
	if p.TierDecay <= 0 {
		p.TierDecay = defaultTierDecay
	}
	if p.MinMatchConfidence <= 0 {
		p.MinMatchConfidence = defaultMinMatch
	}
	return &Parser{
		client:    p.Client,
		model:     p.Model,
		maxTokens: p.MaxTokens,
		maxAI:     p.MaxAIResults,
		tierDecay: p.TierDecay,
		minMatch:  p.MinMatchConfidence,
	}
}

// Parse interprets the top results: one structured-extraction prompt when an
// AI client is available, the keyword heuristic otherwise or whenever the
// model's response fails validation. Parse never fails outright; degraded
// accuracy beats no data.
func (p *Parser) Parse(ctx context.Context, results []model.SearchResult, itemContext string) *Output {
	if len(results) == 0 {
		return &Output{}
	}

	batch := results
	if len(batch) > p.maxAI {
		batch = batch[:p.maxAI]
	}

	out := &Output{}
	if p.client != nil {
		parsed, usage, err := p.parseWithAI(ctx, batch, itemContext)
		out.Usage = usage
		if err != nil {
			zap.L().Warn("parse: ai extraction failed, using heuristic",
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
		} else {
			out.Results = parsed
			out.UsedAI = true
		}
	}
	if !out.UsedAI {
		out.Results = HeuristicParse(batch)
	}

	out.Consensus = Consensus(out.Results, p.tierDecay, p.minMatch)
	out.PriceSummary = SummarizePrices(out.Results)
	return out
}

func (p *Parser) parseWithAI(ctx context.Context, batch []model.SearchResult, itemContext string) ([]model.ParsedResult, anthropic.TokenUsage, error) {
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(extractionPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: buildUserMessage(batch, itemContext)},
		},
	})
	if err != nil {
		return nil, anthropic.TokenUsage{}, eris.Wrap(err, "parse: extraction request")
	}

	// Tokens are spent even when the response turns out unusable.
	usage := resp.Usage
	usage.LogCost(p.model, "parse")

	parsed, err := decodeAIResults(ExtractText(resp), batch)
	if err != nil {
		return nil, usage, err
	}
	return parsed, usage, nil
}

func buildUserMessage(batch []model.SearchResult, itemContext string) string {
	var sb strings.Builder
	if itemContext != "" {
		sb.WriteString("Item context: ")
		sb.WriteString(itemContext)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Search results:\n")
	for i, r := range batch {
		fmt.Fprintf(&sb, "\nResult %d:\nTitle: %s\nURL: %s\nDomain: %s\n", i+1, r.Title, r.URL, r.Domain)
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "Snippet: %s\n", r.Snippet)
		}
		if r.PriceText != "" {
			fmt.Fprintf(&sb, "Price text: %s\n", r.PriceText)
		}
		if r.KnownSeller {
			fmt.Fprintf(&sb, "Seller: %s (tier %d)\n", r.SellerName, r.SellerTier)
		}
	}
	return sb.String()
}
