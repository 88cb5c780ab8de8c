// Package registry loads the seller registry and matches result URLs to
// known sellers by registrable root domain.
package registry

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/posterintel/poster-research/internal/model"
	"github.com/posterintel/poster-research/internal/store"
	"github.com/posterintel/poster-research/pkg/notion"
)

// Filter narrows a seller listing. Zero value means no filtering.
type Filter struct {
	ActiveOnly        bool
	CanResearch       bool
	CanPrice          bool
	Categories        []model.SellerCategory
	ExcludeCategories []model.SellerCategory
	MaxTier           int
}

// Match reports whether a seller passes the filter.
func (f Filter) Match(s model.Seller) bool {
	if f.ActiveOnly && !s.Active {
		return false
	}
	if f.CanResearch && !s.CanResearch {
		return false
	}
	if f.CanPrice && !s.CanPrice {
		return false
	}
	if f.MaxTier > 0 && s.Tier > f.MaxTier {
		return false
	}
	if len(f.Categories) > 0 {
		found := false
		for _, c := range f.Categories {
			if s.Category == c {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, c := range f.ExcludeCategories {
		if s.Category == c {
			return false
		}
	}
	return true
}

// Apply returns the sellers that pass the filter, preserving order.
func (f Filter) Apply(sellers []model.Seller) []model.Seller {
	var out []model.Seller
	for _, s := range sellers {
		if f.Match(s) {
			out = append(out, s)
		}
	}
	return out
}

// Loader lists sellers from a registry source.
type Loader interface {
	ListSellers(ctx context.Context, f Filter) ([]model.Seller, error)
}

// LoaderParams carries the dependencies available for loader resolution.
// Nil/empty fields mean the corresponding source is unavailable.
type LoaderParams struct {
	Source      string // auto, notion, store, or fixture
	Notion      notion.Client
	SellersDB   string
	Store       store.Store
	FixturePath string // "" uses the embedded fixture
}

// NewLoader resolves a registry source to a Loader. "auto" chains the
// available sources (Notion, then the store, then the embedded fixture)
// and uses the first that yields any sellers. Source errors always
// propagate; chaining only falls through on an empty listing.
func NewLoader(p LoaderParams) (Loader, error) {
	switch p.Source {
	case "notion":
		if p.Notion == nil || p.SellersDB == "" {
			return nil, eris.New("registry: notion source requires a token and sellers database id")
		}
		return &NotionLoader{Client: p.Notion, DatabaseID: p.SellersDB}, nil
	case "store":
		if p.Store == nil {
			return nil, eris.New("registry: store source requires a configured store")
		}
		return &StoreLoader{Store: p.Store}, nil
	case "fixture":
		return &FixtureLoader{Path: p.FixturePath}, nil
	case "auto", "":
		var c chain
		if p.Notion != nil && p.SellersDB != "" {
			c = append(c, &NotionLoader{Client: p.Notion, DatabaseID: p.SellersDB})
		}
		if p.Store != nil {
			c = append(c, &StoreLoader{Store: p.Store})
		}
		c = append(c, &FixtureLoader{Path: p.FixturePath})
		return c, nil
	default:
		return nil, eris.Errorf("registry: unknown source %q", p.Source)
	}
}

// chain tries each loader in order and returns the first non-empty listing.
type chain []Loader

func (c chain) ListSellers(ctx context.Context, f Filter) ([]model.Seller, error) {
	for _, l := range c {
		sellers, err := l.ListSellers(ctx, f)
		if err != nil {
			return nil, err
		}
		if len(sellers) > 0 {
			return sellers, nil
		}
	}
	return nil, nil
}

// SellerMatch identifies the registered seller behind a result URL.
// The zero value (Known=false) means no seller matched.
type SellerMatch struct {
	ID    string
	Name  string
	Tier  int
	Known bool
}

// DomainIndex maps registrable root domains to sellers. Build it once per
// session from the active seller listing.
type DomainIndex struct {
	byDomain map[string]model.Seller
}

// NewDomainIndex indexes sellers by the root domain of their Domain field.
// On a domain collision the first seller wins and the duplicate is logged.
func NewDomainIndex(sellers []model.Seller) *DomainIndex {
	ix := &DomainIndex{byDomain: make(map[string]model.Seller, len(sellers))}
	for _, s := range sellers {
		root := RootDomain(s.Domain)
		if root == "" {
			zap.L().Warn("registry: seller has no usable domain",
				zap.String("seller", s.Name),
				zap.String("domain", s.Domain),
			)
			continue
		}
		if prev, ok := ix.byDomain[root]; ok {
			zap.L().Warn("registry: duplicate seller domain",
				zap.String("domain", root),
				zap.String("kept", prev.Name),
				zap.String("dropped", s.Name),
			)
			continue
		}
		ix.byDomain[root] = s
	}
	return ix
}

// Match resolves a result URL to a registered seller by exact root-domain
// equality.
func (ix *DomainIndex) Match(rawURL string) SellerMatch {
	s, ok := ix.Lookup(rawURL)
	if !ok {
		return SellerMatch{}
	}
	return SellerMatch{ID: s.ID, Name: s.Name, Tier: s.Tier, Known: true}
}

// Lookup returns the full seller record for a URL, if one is registered.
func (ix *DomainIndex) Lookup(rawURL string) (model.Seller, bool) {
	root := RootDomain(rawURL)
	if root == "" {
		return model.Seller{}, false
	}
	s, ok := ix.byDomain[root]
	return s, ok
}

// Len reports the number of indexed domains.
func (ix *DomainIndex) Len() int {
	return len(ix.byDomain)
}
