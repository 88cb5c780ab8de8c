package registry

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/posterintel/poster-research/internal/model"
	"github.com/posterintel/poster-research/internal/store"
)

// StoreLoader reads sellers from the local store (imported earlier via
// `sellers import`).
type StoreLoader struct {
	Store store.Store
}

// ListSellers pushes the filters the store understands down into SQL and
// applies the rest in memory.
func (l *StoreLoader) ListSellers(ctx context.Context, f Filter) ([]model.Seller, error) {
	sellers, err := l.Store.ListSellers(ctx, store.SellerFilter{
		ActiveOnly: f.ActiveOnly,
		MaxTier:    f.MaxTier,
	})
	if err != nil {
		return nil, eris.Wrap(err, "registry: load sellers from store")
	}
	return f.Apply(sellers), nil
}
