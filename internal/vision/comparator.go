// Package vision is the optional re-verification stage: pairwise image
// comparisons between the reference photograph and candidate listing
// thumbnails, scored by a vision-capable model.
package vision

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/posterintel/poster-research/internal/parse"
	"github.com/posterintel/poster-research/pkg/anthropic"
)

const (
	// DefaultModel is the comparison model used when none is configured.
	DefaultModel     = "claude-sonnet-4-5-20250929"
	defaultMaxTokens = 1024
)

// comparisonPrompt is the cached system prompt for pairwise comparisons.
const comparisonPrompt = `You compare two images of vintage posters. The first image is the reference photograph of the poster being researched; the second is a candidate listing image found by search.

Judge whether the two images show the same printed poster:
- match_score: 0-100, how likely the candidate shows the same poster (same artwork, same edition)
- same_image: true when the candidate depicts the same physical item or an identical print of it
- same_style: true when the candidate is a different work in the same style or by the same artist
- explanation: one or two short sentences naming the decisive visual evidence

Respond with ONLY valid JSON, no other text:
{"match_score": 87, "same_image": true, "same_style": true, "explanation": "Identical composition and lettering; colors differ only from photo lighting."}`

// Comparison is one pairwise verdict. Usage counts the tokens the comparison
// spent so the session total can include it.
type Comparison struct {
	MatchScore  float64
	SameImage   bool
	SameStyle   bool
	Explanation string
	Usage       anthropic.TokenUsage
}

// Comparator judges whether two image URLs show the same poster.
type Comparator interface {
	Compare(ctx context.Context, referenceURL, candidateURL string) (*Comparison, error)
}

// AIComparator implements Comparator against the Anthropic messages API,
// sending both images as url-source blocks.
type AIComparator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAIComparator builds a comparator, filling unset params with defaults.
func NewAIComparator(client anthropic.Client, model string, maxTokens int64) *AIComparator {
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &AIComparator{client: client, model: model, maxTokens: maxTokens}
}

// verdict mirrors the JSON shape the comparison prompt asks for. Pointer
// fields keep absent distinguishable from zero.
type verdict struct {
	MatchScore  *float64 `json:"match_score"`
	SameImage   *bool    `json:"same_image"`
	SameStyle   *bool    `json:"same_style"`
	Explanation string   `json:"explanation"`
}

func (c *AIComparator) Compare(ctx context.Context, referenceURL, candidateURL string) (*Comparison, error) {
	if referenceURL == "" || candidateURL == "" {
		return nil, eris.New("vision: both image urls are required")
	}

	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(comparisonPrompt),
		Messages: []anthropic.Message{{
			Role:      "user",
			Content:   "The first image is the reference; the second is the candidate listing.",
			ImageURLs: []string{referenceURL, candidateURL},
		}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "vision: comparison request")
	}

	usage := resp.Usage
	usage.LogCost(c.model, "vision")

	payload := parse.ExtractJSON(parse.ExtractText(resp))
	if payload == "" {
		return nil, eris.New("vision: empty model response")
	}

	var v verdict
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, eris.Wrap(err, "vision: unmarshal verdict")
	}
	if v.MatchScore == nil {
		return nil, eris.New("vision: verdict missing match_score")
	}
	if *v.MatchScore < 0 || *v.MatchScore > 100 {
		return nil, eris.Errorf("vision: match_score %.1f out of range [0,100]", *v.MatchScore)
	}
	if v.SameImage == nil || v.SameStyle == nil {
		return nil, eris.New("vision: verdict missing same_image or same_style")
	}

	return &Comparison{
		MatchScore:  *v.MatchScore,
		SameImage:   *v.SameImage,
		SameStyle:   *v.SameStyle,
		Explanation: strings.TrimSpace(v.Explanation),
		Usage:       usage,
	}, nil
}
