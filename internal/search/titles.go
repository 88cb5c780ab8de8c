package search

import (
	"regexp"
	"sort"
	"strings"

	"github.com/posterintel/poster-research/internal/model"
)

const (
	maxExtractedTitles = 10
	minTitleLength     = 10
	minQueryLength     = 10
)

// boilerplateMarkers flag titles that are marketplace chrome rather than an
// item name.
var boilerplateMarkers = []string{"ebay", "etsy", "search results"}

var (
	nonQueryChars = regexp.MustCompile(`[^\w\s-]`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// ExtractTitles pulls candidate item names from visual-search results. Short
// and boilerplate titles are dropped, duplicates collapse case-insensitively,
// and each survivor gets a confidence score: 0.5 base, +0.2 for a known
// seller, +0.2 more when that seller is tier 1 or 2. The top titles are
// returned in descending confidence order.
func ExtractTitles(visual []model.SearchResult) []model.ExtractedTitle {
	seen := make(map[string]struct{})
	var out []model.ExtractedTitle

	for _, r := range visual {
		title := strings.TrimSpace(r.Title)
		if len(title) < minTitleLength {
			continue
		}

		lower := strings.ToLower(title)
		if isBoilerplate(lower) {
			continue
		}
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}

		confidence := 0.5
		if r.KnownSeller {
			confidence += 0.2
			if r.SellerTier <= 2 {
				confidence += 0.2
			}
		}

		source := r.Domain
		if r.KnownSeller {
			source = r.SellerName
		}

		out = append(out, model.ExtractedTitle{
			Title:      title,
			Source:     source,
			Confidence: confidence,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	if len(out) > maxExtractedTitles {
		out = out[:maxExtractedTitles]
	}
	return out
}

// GenerateQueries turns up to maxQueries extracted titles into text-search
// queries: punctuation stripped, whitespace collapsed, "poster" appended when
// the title lacks it. Queries still shorter than 10 characters are discarded.
func GenerateQueries(titles []model.ExtractedTitle, maxQueries int) []string {
	if maxQueries <= 0 || len(titles) == 0 {
		return nil
	}
	if len(titles) > maxQueries {
		titles = titles[:maxQueries]
	}

	var out []string
	for _, t := range titles {
		q := nonQueryChars.ReplaceAllString(t.Title, "")
		q = whitespaceRun.ReplaceAllString(q, " ")
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if !strings.Contains(strings.ToLower(q), "poster") {
			q += " poster"
		}
		if len(q) < minQueryLength {
			continue
		}
		out = append(out, q)
	}
	return out
}

func isBoilerplate(lowerTitle string) bool {
	for _, marker := range boilerplateMarkers {
		if strings.Contains(lowerTitle, marker) {
			return true
		}
	}
	return false
}
