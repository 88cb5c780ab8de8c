package registry

import (
	"context"
	_ "embed"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/posterintel/poster-research/internal/model"
)

// defaultSellers is the embedded registry of known poster sellers, used when
// neither Notion nor the store provides one.
//
//go:embed sellers.json
var defaultSellers []byte

// FixtureLoader reads sellers from a JSON fixture file, or from the embedded
// default registry when Path is empty.
type FixtureLoader struct {
	Path string
}

func (l *FixtureLoader) ListSellers(ctx context.Context, f Filter) ([]model.Seller, error) {
	data := defaultSellers
	if l.Path != "" {
		b, err := os.ReadFile(l.Path)
		if err != nil {
			return nil, eris.Wrap(err, "registry: read sellers fixture")
		}
		data = b
	}

	sellers, err := parseSellers(data)
	if err != nil {
		return nil, err
	}
	return f.Apply(sellers), nil
}

// LoadSellersFromFile reads a JSON array of model.Seller from the given path.
// Invalid records are skipped with a warning.
func LoadSellersFromFile(path string) ([]model.Seller, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read sellers file")
	}
	return parseSellers(data)
}

func parseSellers(data []byte) ([]model.Seller, error) {
	var raw []model.Seller
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal sellers")
	}

	var sellers []model.Seller
	for _, s := range raw {
		if s.Slug == "" {
			s.Slug = model.Slugify(s.Name)
		}
		if s.ID == "" {
			s.ID = s.Slug
		}
		if err := s.Validate(); err != nil {
			zap.L().Warn("registry: skipping invalid seller record",
				zap.String("name", s.Name),
				zap.Error(err),
			)
			continue
		}
		sellers = append(sellers, s)
	}
	return sellers, nil
}
