package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// ItemContext carries what the caller already knows about the item being
// researched. Anything present is fed to query generation and the parser.
type ItemContext struct {
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// SearchRequest describes one research session. At minimum the caller must
// supply an image URL for visual search or at least one text query.
type SearchRequest struct {
	ImageURL   string      `json:"image_url,omitempty"`
	Queries    []string    `json:"queries,omitempty"`
	MaxResults int         `json:"max_results,omitempty"`
	Parse      bool        `json:"parse"`
	Verify     bool        `json:"verify"`
	Item       ItemContext `json:"item,omitempty"`
}

// Validate rejects requests that cannot drive any search stage.
func (r SearchRequest) Validate() error {
	if r.ImageURL == "" && len(r.Queries) == 0 {
		return eris.New("model: request needs an image URL or at least one query")
	}
	if r.MaxResults < 0 {
		return eris.New("model: max_results cannot be negative")
	}
	return nil
}

// Analysis is the parser's output block: per-result structured parses, the
// cross-result consensus, and the price summary built from them.
type Analysis struct {
	ParsedResults []ParsedResult `json:"parsed_results"`
	Consensus     Consensus      `json:"consensus"`
	PriceSummary  PriceSummary   `json:"price_summary"`
}

// VerificationSummary aggregates the visual re-verification stage.
type VerificationSummary struct {
	Attempted int `json:"attempted"`
	Verified  int `json:"verified"`
	SameImage int `json:"same_image"`
	Failed    int `json:"failed"`
}

// SessionStats is the aggregate accounting attached to every response,
// success or failure.
type SessionStats struct {
	ResultCount    int     `json:"result_count"`
	CreditsUsed    int     `json:"credits_used"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	CostUSD        float64 `json:"cost_usd,omitempty"`
}

// StageStatus is the terminal state of one engine stage.
type StageStatus string

const (
	StageComplete StageStatus = "complete"
	StageFailed   StageStatus = "failed"
	StageSkipped  StageStatus = "skipped"
)

// StageResult records one engine stage for the response's stage log.
type StageResult struct {
	Name       string         `json:"name"`
	Status     StageStatus    `json:"status"`
	DurationMS int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SearchResponse is the full session output. Stats are populated even when
// Success is false so credit spend is never silently lost.
type SearchResponse struct {
	Success         bool                 `json:"success"`
	Error           string               `json:"error,omitempty"`
	Configured      map[string]bool      `json:"configured"`
	ImageURL        string               `json:"image_url,omitempty"`
	VisualMatches   []SearchResult       `json:"visual_matches"`
	WebResults      []SearchResult       `json:"web_results"`
	Results         []SearchResult       `json:"results"`
	ExtractedTitles []ExtractedTitle     `json:"extracted_titles,omitempty"`
	KnowledgeGraph  *KnowledgeGraph      `json:"knowledge_graph,omitempty"`
	UnknownDomains  []string             `json:"unknown_domains"`
	Analysis        *Analysis            `json:"analysis,omitempty"`
	Verification    *VerificationSummary `json:"verification,omitempty"`
	Stages          []StageResult        `json:"stages,omitempty"`
	Stats           SessionStats         `json:"stats"`
}

// SessionStatus is the lifecycle state of a persisted session.
type SessionStatus string

const (
	SessionRunning  SessionStatus = "running"
	SessionComplete SessionStatus = "complete"
	SessionFailed   SessionStatus = "failed"
)

// Session is the persisted record of one research run.
type Session struct {
	ID        string          `json:"id"`
	Request   SearchRequest   `json:"request"`
	Response  *SearchResponse `json:"response,omitempty"`
	Status    SessionStatus   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
