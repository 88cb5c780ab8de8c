package registry

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/posterintel/poster-research/internal/model"
	"github.com/posterintel/poster-research/pkg/notion"
)

// NotionLoader reads sellers from the shared Notion seller database.
type NotionLoader struct {
	Client     notion.Client
	DatabaseID string
}

// ListSellers queries the active sellers and parses each page. Malformed
// pages are skipped with a warning; query errors propagate.
func (l *NotionLoader) ListSellers(ctx context.Context, f Filter) ([]model.Seller, error) {
	pages, err := notion.QueryActiveSellers(ctx, l.Client, l.DatabaseID)
	if err != nil {
		return nil, eris.Wrap(err, "registry: load sellers from notion")
	}

	var sellers []model.Seller
	for _, p := range pages {
		s, err := parseSellerPage(p)
		if err != nil {
			zap.L().Warn("registry: skipping malformed seller page",
				zap.String("page_id", string(p.ID)),
				zap.Error(err),
			)
			continue
		}
		sellers = append(sellers, s)
	}

	return f.Apply(sellers), nil
}

func parseSellerPage(p notionapi.Page) (model.Seller, error) {
	s := model.Seller{
		ID:     string(p.ID),
		Active: true, // pages arrive pre-filtered on the Active checkbox
	}

	// Name (title)
	if prop, ok := p.Properties["Name"]; ok {
		if tp, ok := prop.(*notionapi.TitleProperty); ok {
			s.Name = plainText(tp.Title)
		}
	}

	// Category (select)
	if prop, ok := p.Properties["Category"]; ok {
		if sp, ok := prop.(*notionapi.SelectProperty); ok {
			s.Category = normalizeCategory(sp.Select.Name)
		}
	}

	// Domain (url, with rich_text tolerated)
	if prop, ok := p.Properties["Domain"]; ok {
		switch dp := prop.(type) {
		case *notionapi.URLProperty:
			s.Domain = strings.TrimSpace(dp.URL)
		case *notionapi.RichTextProperty:
			s.Domain = strings.TrimSpace(plainText(dp.RichText))
		}
	}

	// Tier (number)
	if prop, ok := p.Properties["Tier"]; ok {
		if np, ok := prop.(*notionapi.NumberProperty); ok {
			s.Tier = int(np.Number)
		}
	}

	// Attribution Weight (number)
	if prop, ok := p.Properties["Attribution Weight"]; ok {
		if np, ok := prop.(*notionapi.NumberProperty); ok {
			s.AttributionWeight = np.Number
		}
	}

	// Pricing Weight (number)
	if prop, ok := p.Properties["Pricing Weight"]; ok {
		if np, ok := prop.(*notionapi.NumberProperty); ok {
			s.PricingWeight = np.Number
		}
	}

	// Capability checkboxes
	s.CanResearch = checkbox(p, "Can Research")
	s.CanPrice = checkbox(p, "Can Price")
	s.CanProcure = checkbox(p, "Can Procure")
	s.CanBeSource = checkbox(p, "Can Be Source")

	// Active (checkbox), present on unfiltered queries
	if prop, ok := p.Properties["Active"]; ok {
		if cp, ok := prop.(*notionapi.CheckboxProperty); ok {
			s.Active = cp.Checkbox
		}
	}

	// Search URL Template (url, with rich_text tolerated)
	if prop, ok := p.Properties["Search URL Template"]; ok {
		switch tp := prop.(type) {
		case *notionapi.URLProperty:
			s.SearchURLTemplate = strings.TrimSpace(tp.URL)
		case *notionapi.RichTextProperty:
			s.SearchURLTemplate = strings.TrimSpace(plainText(tp.RichText))
		}
	}

	s.Slug = model.Slugify(s.Name)

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// checkbox reads a checkbox property, defaulting to false when absent.
func checkbox(p notionapi.Page, name string) bool {
	prop, ok := p.Properties[name]
	if !ok {
		return false
	}
	cp, ok := prop.(*notionapi.CheckboxProperty)
	return ok && cp.Checkbox
}

// normalizeCategory maps a Notion select label ("Auction House") onto the
// seller category enum. Unrecognized labels land in CategoryOther.
func normalizeCategory(label string) model.SellerCategory {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(label)), " ", "_")
	switch c := model.SellerCategory(normalized); c {
	case model.CategoryDealer, model.CategoryAuctionHouse, model.CategoryGallery,
		model.CategoryMarketplace, model.CategoryAggregator, model.CategoryInstitution:
		return c
	}
	return model.CategoryOther
}

// plainText concatenates the plain_text values from a slice of RichText.
func plainText(rts []notionapi.RichText) string {
	var s string
	for _, rt := range rts {
		s += rt.PlainText
	}
	return s
}
