// Package engine orchestrates a research session end to end: registry
// snapshot, visual search, follow-up text queries, merge and ranking,
// optional AI parsing, and optional visual re-verification, with per-stage
// accounting of provider credits and dollar cost.
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/posterintel/poster-research/internal/config"
	"github.com/posterintel/poster-research/internal/cost"
	"github.com/posterintel/poster-research/internal/model"
	"github.com/posterintel/poster-research/internal/parse"
	"github.com/posterintel/poster-research/internal/registry"
	"github.com/posterintel/poster-research/internal/search"
	"github.com/posterintel/poster-research/internal/store"
	"github.com/posterintel/poster-research/internal/vision"
	"github.com/posterintel/poster-research/pkg/anthropic"
	"github.com/posterintel/poster-research/pkg/serpapi"
	"github.com/posterintel/poster-research/pkg/serper"
)

// Params carries the engine's collaborators. Config and Registry are
// required; every provider client is optional and a nil client disables the
// stages that need it. A nil Store skips persistence, a nil Observer falls
// back to structured logs, a nil Calculator uses the built-in default rates.
type Params struct {
	Config     *config.Config
	SerpAPI    serpapi.Client
	Serper     serper.Client
	Anthropic  anthropic.Client
	Registry   registry.Loader
	Store      store.Store
	Calculator *cost.Calculator
	Observer   Observer
}

// Engine runs research sessions. Safe for concurrent use.
type Engine struct {
	cfg        *config.Config
	serpapi    serpapi.Client
	serper     serper.Client
	comparator vision.Comparator
	parser     *parse.Parser
	verifier   *vision.Verifier
	registry   registry.Loader
	store      store.Store
	calc       *cost.Calculator
	obs        Observer

	parseModel  string
	visionModel string
}

// New wires an engine from its collaborators.
func New(p Params) *Engine {
	cfg := p.Config

	obs := p.Observer
	if obs == nil {
		obs = ZapObserver{}
	}
	calc := p.Calculator
	if calc == nil {
		calc = cost.NewCalculator(cost.DefaultRates())
	}

	parseModel := cfg.Anthropic.ParseModel
	if parseModel == "" {
		parseModel = parse.DefaultModel
	}
	visionModel := cfg.Anthropic.VisionModel
	if visionModel == "" {
		visionModel = vision.DefaultModel
	}

	var comparator vision.Comparator
	if p.Anthropic != nil {
		comparator = vision.NewAIComparator(p.Anthropic, visionModel, 0)
	}

	return &Engine{
		cfg:        cfg,
		serpapi:    p.SerpAPI,
		serper:     p.Serper,
		comparator: comparator,
		parser: parse.New(parse.Params{
			Client:             p.Anthropic,
			Model:              parseModel,
			MaxTokens:          int64(cfg.Anthropic.MaxTokens),
			MaxAIResults:       cfg.Parser.MaxAIResults,
			TierDecay:          cfg.Parser.TierDecay,
			MinMatchConfidence: cfg.Parser.MinMatchConfidence,
		}),
		verifier: vision.NewVerifier(vision.Params{
			Comparator:       comparator,
			MaxVerifications: cfg.Vision.MaxVerifications,
			Concurrency:      cfg.Vision.Concurrency,
			MinMatchScore:    cfg.Vision.MinMatchScore,
		}),
		registry:    p.Registry,
		store:       p.Store,
		calc:        calc,
		obs:         obs,
		parseModel:  parseModel,
		visionModel: visionModel,
	}
}

// Run executes one research session. The returned response always describes
// what happened, stage by stage; the error is non-nil only for deployment
// failures (the seller registry could not be loaded), never for degraded
// provider calls.
func (e *Engine) Run(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error) {
	start := time.Now()
	resp := e.newResponse(req)

	if err := req.Validate(); err != nil {
		resp.Success = false
		resp.Error = err.Error()
		resp.Stats.ElapsedSeconds = time.Since(start).Seconds()
		return resp, nil
	}

	sessionID := e.openSession(ctx, req)
	zap.L().Info("research session started",
		zap.String("session_id", sessionID),
		zap.String("image_url", req.ImageURL),
		zap.Int("user_queries", len(req.Queries)),
		zap.Bool("parse", req.Parse),
		zap.Bool("verify", req.Verify))

	var (
		credits int
		costUSD float64
	)

	// Seller registry. A failure here is a broken deployment, not a degraded
	// search: without tiers nothing downstream can rank or weight results.
	var idx *registry.DomainIndex
	regErr := e.trackStage(resp, sessionID, "registry", func() (map[string]any, error) {
		sellers, err := e.registry.ListSellers(ctx, registry.Filter{ActiveOnly: true})
		if err != nil {
			return nil, eris.Wrap(err, "engine: load seller registry")
		}
		idx = registry.NewDomainIndex(sellers)
		return map[string]any{"sellers": len(sellers), "domains": idx.Len()}, nil
	})
	if regErr != nil {
		resp.Success = false
		resp.Error = regErr.Error()
		e.finalize(ctx, sessionID, resp, start, credits, costUSD)
		return resp, regErr
	}

	maxResults := e.cfg.Search.MaxResults
	if req.MaxResults > 0 {
		maxResults = req.MaxResults
	}
	if maxResults <= 0 {
		maxResults = 30
	}

	ranSearch := false
	var skipReasons []string

	// Visual search by reference image.
	var visual []model.SearchResult
	switch {
	case req.ImageURL == "":
		e.skipStage(resp, sessionID, "visual_search", "no image url supplied")
	case e.serpapi == nil:
		e.skipStage(resp, sessionID, "visual_search", "serpapi not configured")
		skipReasons = append(skipReasons, "serpapi not configured")
	default:
		ranSearch = true
		_ = e.trackStage(resp, sessionID, "visual_search", func() (map[string]any, error) {
			lens, err := e.serpapi.Lens(ctx, req.ImageURL)
			if lens != nil {
				// Credits are counted before the error check: a failed call
				// may still have been billed.
				credits += lens.CreditsUsed
				costUSD += e.calc.SerpAPISearches(lens.CreditsUsed)
			}
			if err != nil {
				return nil, err
			}
			visual = search.NormalizeVisualMatches(lens.VisualMatches, idx)
			resp.KnowledgeGraph = search.NormalizeKnowledgeGraph(lens.KnowledgeGraph)
			return map[string]any{"matches": len(visual)}, nil
		})
	}
	if visual != nil {
		resp.VisualMatches = visual
	}

	// Titles from visual matches feed the generated follow-up queries. The
	// stage always runs; with no visual results it completes empty.
	var queries []string
	_ = e.trackStage(resp, sessionID, "title_extraction", func() (map[string]any, error) {
		resp.ExtractedTitles = search.ExtractTitles(visual)
		queries = collectQueries(req.Queries, resp.ExtractedTitles, e.cfg.Search.MaxGeneratedQueries)
		return map[string]any{"titles": len(resp.ExtractedTitles), "queries": len(queries)}, nil
	})

	// Text search across user and generated queries.
	var web []model.SearchResult
	switch {
	case e.serper == nil:
		e.skipStage(resp, sessionID, "text_search", "serper not configured")
		if len(queries) > 0 {
			skipReasons = append(skipReasons, "serper not configured")
		}
	case len(queries) == 0:
		e.skipStage(resp, sessionID, "text_search", "no queries to run")
	default:
		ranSearch = true
		_ = e.trackStage(resp, sessionID, "text_search", func() (map[string]any, error) {
			results, qCredits, failures := e.textSearch(ctx, queries, idx, maxResults)
			web = results
			credits += qCredits
			costUSD += e.calc.SerperQueries(qCredits)
			meta := map[string]any{"queries": len(queries), "failed": failures, "results": len(web)}
			if failures == len(queries) {
				return meta, eris.Errorf("engine: all %d text queries failed", len(queries))
			}
			return meta, nil
		})
	}
	if web != nil {
		resp.WebResults = web
	}

	if !ranSearch {
		resp.Success = false
		resp.Error = "no search stage could run: " + strings.Join(skipReasons, "; ")
		e.finalize(ctx, sessionID, resp, start, credits, costUSD)
		return resp, nil
	}

	// Merge, rank, and truncate. Unknown domains are collected over the full
	// merged set so truncation cannot hide a new seller.
	var merged []model.SearchResult
	_ = e.trackStage(resp, sessionID, "merge", func() (map[string]any, error) {
		merged = search.Merge(visual, web)
		search.SortResults(merged)
		resp.UnknownDomains = search.UnknownDomains(merged)
		truncated := false
		if len(merged) > maxResults {
			merged = merged[:maxResults]
			truncated = true
		}
		return map[string]any{
			"merged":          len(merged),
			"unknown_domains": len(resp.UnknownDomains),
			"truncated":       truncated,
		}, nil
	})
	if merged != nil {
		resp.Results = merged
	}

	// Optional AI extraction and consensus. Never fails the session: the
	// parser falls back to heuristics internally.
	switch {
	case !req.Parse:
		e.skipStage(resp, sessionID, "parse", "not requested")
	case len(resp.Results) == 0:
		e.skipStage(resp, sessionID, "parse", "no results to parse")
	default:
		_ = e.trackStage(resp, sessionID, "parse", func() (map[string]any, error) {
			out := e.parser.Parse(ctx, resp.Results, itemContextString(req.Item, resp.KnowledgeGraph))
			resp.Analysis = &model.Analysis{
				ParsedResults: out.Results,
				Consensus:     out.Consensus,
				PriceSummary:  out.PriceSummary,
			}
			costUSD += e.calc.Claude(e.parseModel, out.Usage.InputTokens, out.Usage.OutputTokens,
				out.Usage.CacheCreationInputTokens, out.Usage.CacheReadInputTokens)
			return map[string]any{"parsed": len(out.Results), "used_ai": out.UsedAI}, nil
		})
	}

	// Optional visual re-verification against the reference image.
	switch {
	case !req.Verify:
		e.skipStage(resp, sessionID, "verify", "not requested")
	case req.ImageURL == "":
		e.skipStage(resp, sessionID, "verify", "no reference image")
	case e.comparator == nil:
		e.skipStage(resp, sessionID, "verify", "anthropic not configured")
	case len(resp.Results) == 0:
		e.skipStage(resp, sessionID, "verify", "no results to verify")
	default:
		_ = e.trackStage(resp, sessionID, "verify", func() (map[string]any, error) {
			zap.L().Debug("starting visual verification",
				zap.String("session_id", sessionID),
				zap.Float64("estimated_cost_usd", e.calc.EstimateVision(e.maxVerifications())))
			out := e.verifier.Verify(ctx, req.ImageURL, resp.Results)
			resp.Results = out.Results
			search.SortResults(resp.Results)
			resp.Verification = &out.Summary
			costUSD += e.calc.Claude(e.visionModel, out.Usage.InputTokens, out.Usage.OutputTokens,
				out.Usage.CacheCreationInputTokens, out.Usage.CacheReadInputTokens)
			return map[string]any{
				"attempted": out.Summary.Attempted,
				"verified":  out.Summary.Verified,
				"failed":    out.Summary.Failed,
				"filtered":  out.Filtered,
			}, nil
		})
	}

	e.finalize(ctx, sessionID, resp, start, credits, costUSD)
	return resp, nil
}

// textSearch fans the queries out over a bounded pool. Results land in
// per-query slots so no locking is needed; a failed query is logged and
// counted but never cancels its siblings. Credits are summed from every
// non-nil provider response, including failed ones.
func (e *Engine) textSearch(ctx context.Context, queries []string, idx *registry.DomainIndex, maxResults int) ([]model.SearchResult, int, int) {
	type outcome struct {
		results []model.SearchResult
		credits int
		failed  bool
	}
	outcomes := make([]outcome, len(queries))

	limit := e.cfg.Search.ParallelQueries
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, q := range queries {
		g.Go(func() error {
			sr, err := e.serper.Search(gctx, q, maxResults)
			if sr != nil {
				outcomes[i].credits = sr.CreditsUsed
			}
			if err != nil {
				zap.L().Warn("text query failed", zap.String("query", q), zap.Error(err))
				outcomes[i].failed = true
				return nil // one failed query must not cancel the rest
			}
			outcomes[i].results = search.NormalizeOrganicResults(sr.Organic, idx)
			return nil
		})
	}
	_ = g.Wait()

	var results []model.SearchResult
	var credits, failures int
	for _, o := range outcomes {
		credits += o.credits
		if o.failed {
			failures++
		}
		results = append(results, o.results...)
	}
	return results, credits, failures
}

// trackStage times fn, records a StageResult on the response, and notifies
// the observer. Metadata is kept even when fn fails.
func (e *Engine) trackStage(resp *model.SearchResponse, sessionID, name string, fn func() (map[string]any, error)) error {
	e.obs.StageStarted(sessionID, name)
	start := time.Now()
	meta, err := fn()
	elapsed := time.Since(start)

	sr := model.StageResult{
		Name:       name,
		Status:     model.StageComplete,
		DurationMS: elapsed.Milliseconds(),
		Metadata:   meta,
	}
	if err != nil {
		sr.Status = model.StageFailed
		sr.Error = err.Error()
		e.obs.StageFailed(sessionID, name, elapsed, err)
	} else {
		e.obs.StageCompleted(sessionID, name, elapsed, meta)
	}
	resp.Stages = append(resp.Stages, sr)
	return err
}

func (e *Engine) skipStage(resp *model.SearchResponse, sessionID, name, reason string) {
	e.obs.StageSkipped(sessionID, name, reason)
	resp.Stages = append(resp.Stages, model.StageResult{
		Name:     name,
		Status:   model.StageSkipped,
		Metadata: map[string]any{"reason": reason},
	})
}

// openSession registers the session with the store when one is wired;
// persistence failures degrade to a locally generated id.
func (e *Engine) openSession(ctx context.Context, req model.SearchRequest) string {
	if e.store == nil {
		return uuid.NewString()
	}
	s, err := e.store.CreateSession(ctx, req)
	if err != nil {
		zap.L().Warn("session create failed, continuing unpersisted", zap.Error(err))
		return uuid.NewString()
	}
	return s.ID
}

// finalize stamps the session stats, persists the outcome best-effort, and
// logs the session summary line.
func (e *Engine) finalize(ctx context.Context, sessionID string, resp *model.SearchResponse, start time.Time, credits int, costUSD float64) {
	resp.Stats = model.SessionStats{
		ResultCount:    len(resp.Results),
		CreditsUsed:    credits,
		ElapsedSeconds: time.Since(start).Seconds(),
		CostUSD:        costUSD,
	}
	if e.store != nil {
		if err := e.store.CompleteSession(ctx, sessionID, resp); err != nil {
			zap.L().Warn("session persist failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	zap.L().Info("research session finished",
		zap.String("session_id", sessionID),
		zap.Bool("success", resp.Success),
		zap.Int("results", resp.Stats.ResultCount),
		zap.Int("credits_used", credits),
		zap.Float64("cost_usd", costUSD),
		zap.Float64("elapsed_seconds", resp.Stats.ElapsedSeconds))
}

func (e *Engine) newResponse(req model.SearchRequest) *model.SearchResponse {
	return &model.SearchResponse{
		Success:        true,
		Configured:     e.cfg.ProviderStatus(),
		ImageURL:       req.ImageURL,
		VisualMatches:  []model.SearchResult{},
		WebResults:     []model.SearchResult{},
		Results:        []model.SearchResult{},
		UnknownDomains: []string{},
	}
}

func (e *Engine) maxVerifications() int {
	if e.cfg.Vision.MaxVerifications > 0 {
		return e.cfg.Vision.MaxVerifications
	}
	return 10
}

// collectQueries merges the caller's queries with generated ones, user
// queries first, deduplicated case-insensitively.
func collectQueries(userQueries []string, titles []model.ExtractedTitle, maxGenerated int) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" {
			return
		}
		key := strings.ToLower(q)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, q)
	}
	for _, q := range userQueries {
		add(q)
	}
	for _, q := range search.GenerateQueries(titles, maxGenerated) {
		add(q)
	}
	return out
}

// itemContextString flattens what is known about the item into the free-text
// context handed to the parser.
func itemContextString(item model.ItemContext, kg *model.KnowledgeGraph) string {
	var parts []string
	if item.Title != "" {
		parts = append(parts, "Title: "+item.Title)
	}
	if item.Artist != "" {
		parts = append(parts, "Artist: "+item.Artist)
	}
	if item.Notes != "" {
		parts = append(parts, "Notes: "+item.Notes)
	}
	if kg != nil && kg.Title != "" {
		parts = append(parts, "Recognized as: "+kg.Title)
	}
	return strings.Join(parts, ". ")
}
