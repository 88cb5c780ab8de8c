package registry

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/posterintel/poster-research/internal/model"
)

// LoadSellersFromCSV reads sellers from a header-mapped CSV file for local
// import. Recognized columns (case-insensitive): name, domain, category,
// tier, attribution_weight, pricing_weight, can_research, can_price,
// can_procure, can_be_source, search_url_template, active. Rows are
// deduplicated by domain (first wins); rows that fail validation are skipped
// with a warning.
func LoadSellersFromCSV(path string) ([]model.Seller, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: open sellers csv")
	}
	defer f.Close() //nolint:errcheck

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "registry: read sellers csv")
	}
	if len(records) < 2 {
		return nil, nil // header only or empty
	}

	headers := records[0]
	seen := make(map[string]struct{})
	var sellers []model.Seller

	for _, record := range records[1:] {
		row := mapRow(headers, record)

		s := model.Seller{
			Name:              strings.TrimSpace(row["name"]),
			Domain:            strings.TrimSpace(row["domain"]),
			Category:          normalizeCategory(row["category"]),
			Tier:              parseIntDefault(row["tier"], 3),
			AttributionWeight: parseFloatDefault(row["attribution_weight"], 0),
			PricingWeight:     parseFloatDefault(row["pricing_weight"], 0),
			CanResearch:       parseBoolDefault(row["can_research"], true),
			CanPrice:          parseBoolDefault(row["can_price"], true),
			CanProcure:        parseBoolDefault(row["can_procure"], false),
			CanBeSource:       parseBoolDefault(row["can_be_source"], true),
			SearchURLTemplate: strings.TrimSpace(row["search_url_template"]),
			Active:            parseBoolDefault(row["active"], true),
		}
		s.Slug = model.Slugify(s.Name)
		s.ID = s.Slug

		if err := s.Validate(); err != nil {
			zap.L().Warn("registry: skipping invalid csv row", zap.Error(err))
			continue
		}

		root := RootDomain(s.Domain)
		if _, dup := seen[root]; dup {
			continue
		}
		seen[root] = struct{}{}

		sellers = append(sellers, s)
	}

	return sellers, nil
}

// mapRow pairs each header with the corresponding value in the record,
// lowercasing header names. Missing trailing values become empty strings.
func mapRow(headers []string, record []string) map[string]string {
	row := make(map[string]string, len(headers))
	for i, h := range headers {
		key := strings.ToLower(strings.TrimSpace(h))
		if i < len(record) {
			row[key] = record[i]
		} else {
			row[key] = ""
		}
	}
	return row
}

func parseIntDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseFloatDefault(s string, def float64) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func parseBoolDefault(s string, def bool) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}
