package vision

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/posterintel/poster-research/internal/model"
	"github.com/posterintel/poster-research/pkg/anthropic"
)

const (
	defaultMaxVerifications = 10
	defaultConcurrency      = 5
)

// Params configures a Verifier. MinMatchScore is a fraction of the 0-100
// match score: 0.6 drops verified results scoring under 60. Zero disables
// the filter. Unverified results are never dropped; absence of a signal is
// not evidence against a match.
type Params struct {
	Comparator       Comparator
	MaxVerifications int
	Concurrency      int
	MinMatchScore    float64
}

// Verifier runs pairwise comparisons for the top thumbnailed results with a
// bounded worker pool and applies the verdicts back by thumbnail URL.
type Verifier struct {
	comparator Comparator
	maxChecks  int
	workers    int
	minScore   float64
}

// NewVerifier builds a Verifier, filling unset params with defaults.
func NewVerifier(p Params) *Verifier {
	if p.MaxVerifications <= 0 {
		p.MaxVerifications = defaultMaxVerifications
	}
	if p.Concurrency <= 0 {
		p.Concurrency = defaultConcurrency
	}
	return &Verifier{
		comparator: p.Comparator,
		maxChecks:  p.MaxVerifications,
		workers:    p.Concurrency,
		minScore:   p.MinMatchScore,
	}
}

// Outcome is what one verification pass did to the result list.
type Outcome struct {
	Results  []model.SearchResult
	Summary  model.VerificationSummary
	Filtered int
	Usage    anthropic.TokenUsage
}

// Verify compares up to MaxVerifications distinct thumbnails against the
// reference image and applies each verdict to every result sharing that
// thumbnail. Individual comparison failures are logged and skipped; the pool
// always drains before Verify returns. The returned list is filtered by
// MinMatchScore but not re-sorted; ranking is the caller's concern.
func (v *Verifier) Verify(ctx context.Context, referenceURL string, results []model.SearchResult) Outcome {
	out := Outcome{Results: results}
	if v.comparator == nil || referenceURL == "" || len(results) == 0 {
		return out
	}

	thumbs := candidateThumbnails(results, v.maxChecks)
	if len(thumbs) == 0 {
		return out
	}
	out.Summary.Attempted = len(thumbs)

	comparisons := make([]*Comparison, len(thumbs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for i, thumb := range thumbs {
		g.Go(func() error {
			comparison, err := v.comparator.Compare(gctx, referenceURL, thumb)
			if err != nil {
				zap.L().Warn("vision comparison failed",
					zap.String("thumbnail", thumb),
					zap.Error(err))
				return nil // one failed comparison must not cancel the rest
			}
			comparisons[i] = comparison
			return nil
		})
	}
	_ = g.Wait()

	byThumb := make(map[string]*Comparison, len(thumbs))
	for i, thumb := range thumbs {
		if comparisons[i] == nil {
			out.Summary.Failed++
			continue
		}
		byThumb[thumb] = comparisons[i]
		out.Summary.Verified++
		if comparisons[i].SameImage {
			out.Summary.SameImage++
		}
		out.Usage = addUsage(out.Usage, comparisons[i].Usage)
	}

	verified := make([]model.SearchResult, 0, len(results))
	for _, r := range results {
		if c, ok := byThumb[r.Thumbnail]; ok {
			r.Verification = model.Verification{
				Verified:    true,
				MatchScore:  c.MatchScore,
				SameImage:   c.SameImage,
				SameStyle:   c.SameStyle,
				Explanation: c.Explanation,
			}
			if v.minScore > 0 && c.MatchScore < v.minScore*100 {
				out.Filtered++
				continue
			}
		}
		verified = append(verified, r)
	}
	out.Results = verified

	zap.L().Debug("visual verification complete",
		zap.Int("attempted", out.Summary.Attempted),
		zap.Int("verified", out.Summary.Verified),
		zap.Int("same_image", out.Summary.SameImage),
		zap.Int("failed", out.Summary.Failed),
		zap.Int("filtered", out.Filtered),
	)
	return out
}

// candidateThumbnails picks the first distinct thumbnail URLs in ranked
// order, one comparison per image no matter how many results share it.
func candidateThumbnails(results []model.SearchResult, limit int) []string {
	seen := make(map[string]struct{}, limit)
	var thumbs []string
	for _, r := range results {
		if r.Thumbnail == "" {
			continue
		}
		if _, ok := seen[r.Thumbnail]; ok {
			continue
		}
		seen[r.Thumbnail] = struct{}{}
		thumbs = append(thumbs, r.Thumbnail)
		if len(thumbs) == limit {
			break
		}
	}
	return thumbs
}

func addUsage(a, b anthropic.TokenUsage) anthropic.TokenUsage {
	return anthropic.TokenUsage{
		InputTokens:              a.InputTokens + b.InputTokens,
		OutputTokens:             a.OutputTokens + b.OutputTokens,
		CacheCreationInputTokens: a.CacheCreationInputTokens + b.CacheCreationInputTokens,
		CacheReadInputTokens:     a.CacheReadInputTokens + b.CacheReadInputTokens,
	}
}
