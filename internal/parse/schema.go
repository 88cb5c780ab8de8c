package parse

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/posterintel/poster-research/internal/model"
	"github.com/posterintel/poster-research/internal/search"
	"github.com/posterintel/poster-research/pkg/anthropic"
)

// aiEnvelope is the top-level JSON object the extraction prompt asks for.
type aiEnvelope struct {
	Results []aiItem `json:"results"`
}

// aiItem is one per-result extraction from the model. Pointer fields
// distinguish "absent" from zero so validation can be strict about what the
// model actually said.
type aiItem struct {
	Index            *int     `json:"index"`
	MatchConfidence  *float64 `json:"match_confidence"`
	MatchReason      string   `json:"match_reason"`
	Artist           string   `json:"artist"`
	Date             string   `json:"date"`
	Dimensions       string   `json:"dimensions"`
	Technique        string   `json:"technique"`
	Status           string   `json:"status"`
	StatusConfidence *float64 `json:"status_confidence"`
	Price            *float64 `json:"price"`
	Currency         string   `json:"currency"`
}

var validStatuses = map[string]model.SaleStatus{
	"for_sale":       model.StatusForSale,
	"out_of_stock":   model.StatusOutOfStock,
	"sold":           model.StatusSold,
	"auction_result": model.StatusAuctionResult,
	"unknown":        model.StatusUnknown,
}

// ExtractText returns the concatenated text blocks of a message response.
func ExtractText(resp *anthropic.MessageResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "" || b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// ExtractJSON pulls the JSON payload out of model output that may carry
// markdown fences or surrounding prose: the first `{` to the last `}`, or the
// first `[` to the last `]` when an array comes first.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	objStart := strings.Index(text, "{")
	arrStart := strings.Index(text, "[")
	switch {
	case objStart >= 0 && (arrStart < 0 || objStart < arrStart):
		if end := strings.LastIndex(text, "}"); end > objStart {
			text = text[objStart : end+1]
		}
	case arrStart >= 0:
		if end := strings.LastIndex(text, "]"); end > arrStart {
			text = text[arrStart : end+1]
		}
	}

	return strings.TrimSpace(text)
}

// decodeAIResults validates the model's response text against the extraction
// schema and maps each item onto its search result. All-or-nothing: one
// malformed item rejects the whole response, so either a fully-typed result
// list flows downstream or the caller falls back to the heuristic.
func decodeAIResults(text string, batch []model.SearchResult) ([]model.ParsedResult, error) {
	payload := ExtractJSON(text)
	if payload == "" {
		return nil, eris.New("parse: empty model response")
	}

	var envelope aiEnvelope
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		return nil, eris.Wrap(err, "parse: unmarshal model response")
	}
	if len(envelope.Results) == 0 {
		return nil, eris.New("parse: model response has no results")
	}

	seen := make(map[int]struct{}, len(envelope.Results))
	byIndex := make(map[int]model.ParsedResult, len(envelope.Results))
	for i, item := range envelope.Results {
		parsed, err := validateItem(item, batch)
		if err != nil {
			return nil, eris.Wrapf(err, "parse: item %d", i)
		}
		idx := *item.Index
		if _, dup := seen[idx]; dup {
			return nil, eris.Errorf("parse: item %d: duplicate index %d", i, idx)
		}
		seen[idx] = struct{}{}
		byIndex[idx] = parsed
	}

	// Emit in batch order; results the model skipped are simply absent.
	out := make([]model.ParsedResult, 0, len(byIndex))
	for i := range batch {
		if parsed, ok := byIndex[i+1]; ok {
			out = append(out, parsed)
		}
	}
	return out, nil
}

// validateItem guards one extraction field-by-field and produces the typed
// result on success.
func validateItem(item aiItem, batch []model.SearchResult) (model.ParsedResult, error) {
	var zero model.ParsedResult

	if item.Index == nil {
		return zero, eris.New("missing index")
	}
	idx := *item.Index
	if idx < 1 || idx > len(batch) {
		return zero, eris.Errorf("index %d out of range [1,%d]", idx, len(batch))
	}

	if item.MatchConfidence == nil {
		return zero, eris.New("missing match_confidence")
	}
	if *item.MatchConfidence < 0 || *item.MatchConfidence > 1 {
		return zero, eris.Errorf("match_confidence %.3f out of range [0,1]", *item.MatchConfidence)
	}

	status, ok := validStatuses[strings.TrimSpace(item.Status)]
	if !ok {
		return zero, eris.Errorf("invalid status %q", item.Status)
	}

	if item.StatusConfidence == nil {
		return zero, eris.New("missing status_confidence")
	}
	if *item.StatusConfidence < 0 || *item.StatusConfidence > 1 {
		return zero, eris.Errorf("status_confidence %.3f out of range [0,1]", *item.StatusConfidence)
	}

	src := batch[idx-1]
	parsed := model.ParsedResult{
		URL:              src.URL,
		Title:            src.Title,
		Domain:           src.Domain,
		Artist:           strings.TrimSpace(item.Artist),
		Date:             strings.TrimSpace(item.Date),
		Dimensions:       strings.TrimSpace(item.Dimensions),
		Technique:        strings.TrimSpace(item.Technique),
		Status:           status,
		StatusConfidence: *item.StatusConfidence,
		MatchConfidence:  *item.MatchConfidence,
		MatchReason:      strings.TrimSpace(item.MatchReason),
		SellerID:         src.SellerID,
		SellerName:       src.SellerName,
		SellerTier:       src.SellerTier,
		KnownSeller:      src.KnownSeller,
		ParsedBy:         model.ParsedByAI,
	}

	switch {
	case item.Price == nil || *item.Price == 0:
		// The model found no price; keep the one the normalizer parsed.
		parsed.Price = src.Price
	case *item.Price < 0:
		return zero, eris.Errorf("negative price %.2f", *item.Price)
	default:
		parsed.Price = &model.Price{
			Value:    *item.Price,
			Currency: search.CurrencyCode(item.Currency),
		}
	}

	return parsed, nil
}
