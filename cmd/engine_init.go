package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/posterintel/poster-research/internal/cost"
	"github.com/posterintel/poster-research/internal/engine"
	"github.com/posterintel/poster-research/internal/registry"
	"github.com/posterintel/poster-research/internal/store"
	"github.com/posterintel/poster-research/pkg/anthropic"
	"github.com/posterintel/poster-research/pkg/notion"
	"github.com/posterintel/poster-research/pkg/serpapi"
	"github.com/posterintel/poster-research/pkg/serper"
)

// researchEnv holds the initialized store and engine shared by the search and
// serve commands.
type researchEnv struct {
	Store  store.Store
	Engine *engine.Engine
}

// Close releases resources held by the environment.
func (e *researchEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "poster_research.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initRates resolves the cost rate card: built-in defaults, overlaid by the
// optional rates file, then by config overrides.
func initRates() cost.Rates {
	rates := cost.DefaultRates()
	if cfg.Pricing.RatesFile != "" {
		loaded, err := cost.LoadRates(cfg.Pricing.RatesFile)
		if err != nil {
			zap.L().Warn("rates file not loaded, using defaults", zap.Error(err))
		} else {
			rates = loaded
		}
	}
	rates.ApplySearchOverrides(cfg.Pricing.SerpAPI.PerSearch, cfg.Pricing.Serper.PerSearch)
	for m, p := range cfg.Pricing.Anthropic {
		rates.ApplyModelOverride(m, p.Input, p.Output)
	}
	return rates
}

// initEngine sets up the store, provider clients, and registry loader, and
// wires the engine. Callers should defer env.Close().
func initEngine(ctx context.Context) (*researchEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var serpClient serpapi.Client
	if cfg.SerpAPI.Configured() {
		opts := []serpapi.Option{}
		if cfg.SerpAPI.BaseURL != "" {
			opts = append(opts, serpapi.WithBaseURL(cfg.SerpAPI.BaseURL))
		}
		if cfg.SerpAPI.RatePerSec > 0 {
			opts = append(opts, serpapi.WithRateLimit(cfg.SerpAPI.RatePerSec, cfg.SerpAPI.Burst))
		}
		serpClient = serpapi.NewClient(cfg.SerpAPI.Key, opts...)
	}

	var serperClient serper.Client
	if cfg.Serper.Configured() {
		opts := []serper.Option{}
		if cfg.Serper.BaseURL != "" {
			opts = append(opts, serper.WithBaseURL(cfg.Serper.BaseURL))
		}
		if cfg.Serper.RatePerSec > 0 {
			opts = append(opts, serper.WithRateLimit(cfg.Serper.RatePerSec, cfg.Serper.Burst))
		}
		serperClient = serper.NewClient(cfg.Serper.Key, opts...)
	}

	var anthropicClient anthropic.Client
	if cfg.Anthropic.Configured() {
		anthropicClient = anthropic.NewClient(cfg.Anthropic.Key)
	}

	var notionClient notion.Client
	if cfg.Notion.Configured() {
		notionClient = notion.NewClient(cfg.Notion.Token)
	}

	loader, err := registry.NewLoader(registry.LoaderParams{
		Source:      cfg.Registry.Source,
		Notion:      notionClient,
		SellersDB:   cfg.Notion.SellersDB,
		Store:       st,
		FixturePath: cfg.Registry.FixturePath,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	eng := engine.New(engine.Params{
		Config:     cfg,
		SerpAPI:    serpClient,
		Serper:     serperClient,
		Anthropic:  anthropicClient,
		Registry:   loader,
		Store:      st,
		Calculator: cost.NewCalculator(initRates()),
	})

	return &researchEnv{Store: st, Engine: eng}, nil
}
