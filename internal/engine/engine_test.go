package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/posterintel/poster-research/internal/config"
	"github.com/posterintel/poster-research/internal/model"
	"github.com/posterintel/poster-research/internal/parse"
	"github.com/posterintel/poster-research/internal/registry"
	"github.com/posterintel/poster-research/internal/store"
	"github.com/posterintel/poster-research/internal/vision"
	"github.com/posterintel/poster-research/pkg/anthropic"
	"github.com/posterintel/poster-research/pkg/serpapi"
	"github.com/posterintel/poster-research/pkg/serper"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type stubLoader struct {
	sellers   []model.Seller
	err       error
	gotFilter registry.Filter
}

func (s *stubLoader) ListSellers(_ context.Context, f registry.Filter) ([]model.Seller, error) {
	s.gotFilter = f
	return s.sellers, s.err
}

type fakeSerpAPI struct {
	resp      *serpapi.LensResponse
	err       error
	calls     int
	lastImage string
}

func (f *fakeSerpAPI) Lens(_ context.Context, imageURL string) (*serpapi.LensResponse, error) {
	f.calls++
	f.lastImage = imageURL
	return f.resp, f.err
}

type fakeSerper struct {
	mu    sync.Mutex
	resp  *serper.SearchResponse
	err   error
	calls []string
}

func (f *fakeSerper) Search(_ context.Context, query string, _ int) (*serper.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, query)
	return f.resp, f.err
}

func (f *fakeSerper) queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// stubAnthropic serves every CreateMessage call the same canned response.
// The verifier calls it from pool workers, hence the mutex.
type stubAnthropic struct {
	mu       sync.Mutex
	response *anthropic.MessageResponse
	err      error
	calls    int
}

func (s *stubAnthropic) CreateMessage(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.response, s.err
}

type fakeStore struct {
	mu          sync.Mutex
	session     *model.Session
	createErr   error
	completeErr error
	createReqs  []model.SearchRequest
	completed   map[string]*model.SearchResponse
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		session:   &model.Session{ID: "sess-123", Status: model.SessionRunning},
		completed: make(map[string]*model.SearchResponse),
	}
}

func (f *fakeStore) CreateSession(_ context.Context, req model.SearchRequest) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createReqs = append(f.createReqs, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.session, nil
}

func (f *fakeStore) CompleteSession(_ context.Context, sessionID string, resp *model.SearchResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completed[sessionID] = resp
	return nil
}

// The engine never touches the rest of the interface.

func (f *fakeStore) UpsertSeller(context.Context, model.Seller) (*model.Seller, error) {
	return nil, nil
}

func (f *fakeStore) GetSeller(context.Context, string) (*model.Seller, error) { return nil, nil }

func (f *fakeStore) DeleteSeller(context.Context, string) error { return nil }

func (f *fakeStore) ListSellers(context.Context, store.SellerFilter) ([]model.Seller, error) {
	return nil, nil
}

func (f *fakeStore) ImportSellers(context.Context, []model.Seller) (int, error) { return 0, nil }

func (f *fakeStore) GetSession(context.Context, string) (*model.Session, error) { return nil, nil }

func (f *fakeStore) ListSessions(context.Context, store.SessionFilter) ([]model.Session, error) {
	return nil, nil
}

func (f *fakeStore) Migrate(context.Context) error { return nil }

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) Close() error { return nil }

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingObserver) StageStarted(_, stage string) { r.record("start:" + stage) }

func (r *recordingObserver) StageCompleted(_, stage string, _ time.Duration, _ map[string]any) {
	r.record("complete:" + stage)
}

func (r *recordingObserver) StageFailed(_, stage string, _ time.Duration, _ error) {
	r.record("fail:" + stage)
}

func (r *recordingObserver) StageSkipped(_, stage, _ string) { r.record("skip:" + stage) }

func (r *recordingObserver) record(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Search.MaxResults = 30
	cfg.Search.MaxGeneratedQueries = 3
	cfg.Search.ParallelQueries = 3
	cfg.Parser.MaxAIResults = 30
	cfg.Parser.TierDecay = 0.15
	cfg.Parser.MinMatchConfidence = 0.3
	cfg.Vision.MaxVerifications = 10
	cfg.Vision.Concurrency = 5
	cfg.Anthropic.MaxTokens = 2048
	return cfg
}

func swannSeller() model.Seller {
	return model.Seller{
		ID:          "sel_swann",
		Name:        "Swann Galleries",
		Slug:        "swann-galleries",
		Category:    model.CategoryAuctionHouse,
		Domain:      "swanngalleries.com",
		Tier:        1,
		CanResearch: true,
		CanPrice:    true,
		Active:      true,
	}
}

func findStage(t *testing.T, resp *model.SearchResponse, name string) model.StageResult {
	t.Helper()
	for _, s := range resp.Stages {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("stage %q not in stage log %v", name, stageNames(resp))
	return model.StageResult{}
}

func stageNames(resp *model.SearchResponse) []string {
	out := make([]string, 0, len(resp.Stages))
	for _, s := range resp.Stages {
		out = append(out, s.Name)
	}
	return out
}

func TestRun_ImageAndTextEndToEnd(t *testing.T) {
	lens := &fakeSerpAPI{
		resp: &serpapi.LensResponse{
			VisualMatches: []serpapi.VisualMatch{
				{
					Position:  1,
					Title:     "Alphonse Mucha Job 1896 Original Poster",
					Link:      "https://www.swanngalleries.com/lots/mucha-job",
					Source:    "Swann Galleries",
					Thumbnail: "https://img.example/swann.jpg",
					Price:     &serpapi.LensPrice{Value: "$1,500.00", ExtractedValue: 1500, Currency: "$"},
				},
				{
					Position:  2,
					Title:     "Mucha Job Cigarette Advertisement Lithograph",
					Link:      "https://mysteryposters.com/mucha-job",
					Source:    "mysteryposters.com",
					Thumbnail: "https://img.example/mystery.jpg",
				},
			},
			KnowledgeGraph: []serpapi.KnowledgeGraphItem{
				{Title: "JOB", Subtitle: "Lithograph by Alphonse Mucha"},
			},
			CreditsUsed: 1,
		},
	}
	web := &fakeSerper{
		resp: &serper.SearchResponse{
			Organic: []serper.OrganicResult{
				{
					Title:    "Mucha JOB 1896 | Swann Auction Galleries",
					Link:     "https://www.swanngalleries.com/lots/mucha-job/",
					Snippet:  "Sold for $1,500 including premium.",
					Position: 1,
				},
			},
			CreditsUsed: 1,
		},
	}
	st := newFakeStore()
	loader := &stubLoader{sellers: []model.Seller{swannSeller()}}

	eng := New(Params{
		Config:   testConfig(),
		SerpAPI:  lens,
		Serper:   web,
		Registry: loader,
		Store:    st,
	})

	resp, err := eng.Run(context.Background(), model.SearchRequest{
		ImageURL: "https://photos.example/job.jpg",
	})
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.True(t, resp.Success)
	assert.Empty(t, resp.Error)
	assert.True(t, loader.gotFilter.ActiveOnly)
	assert.Equal(t, 1, lens.calls)
	assert.Equal(t, "https://photos.example/job.jpg", lens.lastImage)

	// Both extracted titles become follow-up queries, the trusted-seller
	// title first.
	require.Len(t, resp.ExtractedTitles, 2)
	assert.Equal(t, "Alphonse Mucha Job 1896 Original Poster", resp.ExtractedTitles[0].Title)
	assert.InDelta(t, 0.9, resp.ExtractedTitles[0].Confidence, 1e-9)
	assert.ElementsMatch(t, []string{
		"Alphonse Mucha Job 1896 Original Poster",
		"Mucha Job Cigarette Advertisement Lithograph poster",
	}, web.queries())

	// The web duplicate of the Swann lot collapses into the visual record.
	require.Len(t, resp.Results, 2)
	first := resp.Results[0]
	assert.Equal(t, "https://www.swanngalleries.com/lots/mucha-job", first.URL)
	assert.Equal(t, model.SourceVisual, first.Source)
	assert.True(t, first.KnownSeller)
	assert.Equal(t, "Swann Galleries", first.SellerName)
	assert.Equal(t, 1, first.SellerTier)
	require.NotNil(t, first.Price)
	assert.InDelta(t, 1500, first.Price.Value, 1e-9)
	assert.Equal(t, "USD", first.Price.Currency)
	assert.Equal(t, "https://img.example/swann.jpg", first.Thumbnail)
	assert.False(t, resp.Results[1].KnownSeller)

	assert.Equal(t, []string{"mysteryposters.com"}, resp.UnknownDomains)
	require.NotNil(t, resp.KnowledgeGraph)
	assert.Equal(t, "JOB", resp.KnowledgeGraph.Title)

	// One lens call plus two serper queries.
	assert.Equal(t, 3, resp.Stats.CreditsUsed)
	assert.InDelta(t, 0.017, resp.Stats.CostUSD, 1e-9)
	assert.Equal(t, 2, resp.Stats.ResultCount)
	assert.GreaterOrEqual(t, resp.Stats.ElapsedSeconds, 0.0)

	assert.Equal(t, model.StageComplete, findStage(t, resp, "registry").Status)
	assert.Equal(t, model.StageComplete, findStage(t, resp, "visual_search").Status)
	assert.Equal(t, model.StageComplete, findStage(t, resp, "title_extraction").Status)
	assert.Equal(t, model.StageComplete, findStage(t, resp, "text_search").Status)
	assert.Equal(t, model.StageComplete, findStage(t, resp, "merge").Status)
	assert.Equal(t, model.StageSkipped, findStage(t, resp, "parse").Status)
	assert.Equal(t, model.StageSkipped, findStage(t, resp, "verify").Status)

	// The finished session is persisted under the store-issued id.
	require.Contains(t, st.completed, "sess-123")
	assert.True(t, st.completed["sess-123"].Success)
}

func TestRun_ValidationFailure(t *testing.T) {
	st := newFakeStore()
	eng := New(Params{Config: testConfig(), Registry: &stubLoader{}, Store: st})

	resp, err := eng.Run(context.Background(), model.SearchRequest{})
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "image URL or at least one query")
	assert.Empty(t, resp.Stages)
	assert.Empty(t, st.createReqs)
}

func TestRun_RegistryErrorFatal(t *testing.T) {
	st := newFakeStore()
	loader := &stubLoader{err: errors.New("notion: listing query failed")}
	eng := New(Params{Config: testConfig(), Registry: loader, Store: st})

	resp, err := eng.Run(context.Background(), model.SearchRequest{Queries: []string{"mucha job poster"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load seller registry")

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "load seller registry")
	assert.Equal(t, model.StageFailed, findStage(t, resp, "registry").Status)

	// The failure is still persisted so the spend and the stage log survive.
	require.Contains(t, st.completed, "sess-123")
	assert.False(t, st.completed["sess-123"].Success)
}

func TestRun_TextOnly(t *testing.T) {
	web := &fakeSerper{
		resp: &serper.SearchResponse{
			Organic: []serper.OrganicResult{
				{Title: "1930s Ski Poster", Link: "https://posters.example/ski", Snippet: "Original vintage travel poster.", Position: 1},
			},
			CreditsUsed: 1,
		},
	}
	eng := New(Params{Config: testConfig(), Serper: web, Registry: &stubLoader{}})

	resp, err := eng.Run(context.Background(), model.SearchRequest{Queries: []string{"vintage ski poster"}})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Empty(t, resp.ImageURL)
	assert.Equal(t, []string{"vintage ski poster"}, web.queries())
	require.Len(t, resp.Results, 1)
	assert.Equal(t, model.SourceWeb, resp.Results[0].Source)
	assert.Empty(t, resp.VisualMatches)
	assert.Equal(t, 1, resp.Stats.CreditsUsed)

	visual := findStage(t, resp, "visual_search")
	assert.Equal(t, model.StageSkipped, visual.Status)
	assert.Equal(t, "no image url supplied", visual.Metadata["reason"])
}

func TestRun_NoSearchStageCouldRun(t *testing.T) {
	st := newFakeStore()
	eng := New(Params{Config: testConfig(), Registry: &stubLoader{}, Store: st})

	resp, err := eng.Run(context.Background(), model.SearchRequest{
		ImageURL: "https://photos.example/job.jpg",
		Queries:  []string{"mucha job poster"},
	})
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, "no search stage could run: serpapi not configured; serper not configured", resp.Error)
	assert.Equal(t, model.StageSkipped, findStage(t, resp, "visual_search").Status)
	assert.Equal(t, model.StageSkipped, findStage(t, resp, "text_search").Status)
	assert.NotContains(t, stageNames(resp), "merge")

	// Even an unrunnable session is persisted with its stage log.
	require.Contains(t, st.completed, "sess-123")
	assert.False(t, st.completed["sess-123"].Success)
}

func TestRun_VisualFailureStillCountsCredits(t *testing.T) {
	lens := &fakeSerpAPI{
		resp: &serpapi.LensResponse{CreditsUsed: 1},
		err:  errors.New("serpapi: rate limited (429)"),
	}
	web := &fakeSerper{
		resp: &serper.SearchResponse{
			Organic:     []serper.OrganicResult{{Title: "Mucha JOB", Link: "https://posters.example/job", Position: 1}},
			CreditsUsed: 1,
		},
	}
	eng := New(Params{Config: testConfig(), SerpAPI: lens, Serper: web, Registry: &stubLoader{}})

	resp, err := eng.Run(context.Background(), model.SearchRequest{
		ImageURL: "https://photos.example/job.jpg",
		Queries:  []string{"mucha job poster"},
	})
	require.NoError(t, err)

	// The failed lens call degrades the stage but not the session, and its
	// credit still shows up in the accounting.
	assert.True(t, resp.Success)
	visual := findStage(t, resp, "visual_search")
	assert.Equal(t, model.StageFailed, visual.Status)
	assert.Contains(t, visual.Error, "rate limited")
	assert.Empty(t, resp.VisualMatches)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 2, resp.Stats.CreditsUsed)
	assert.InDelta(t, 0.016, resp.Stats.CostUSD, 1e-9)
}

func TestRun_AllTextQueriesFailed(t *testing.T) {
	web := &fakeSerper{
		resp: &serper.SearchResponse{CreditsUsed: 1},
		err:  errors.New("serper: unreachable"),
	}
	eng := New(Params{Config: testConfig(), Serper: web, Registry: &stubLoader{}})

	resp, err := eng.Run(context.Background(), model.SearchRequest{
		Queries: []string{"mucha poster original", "affiche ancienne mucha"},
	})
	require.NoError(t, err)

	// The search was attempted, so the session itself is not a failure; the
	// stage log carries the damage and the credits are still counted.
	assert.True(t, resp.Success)
	text := findStage(t, resp, "text_search")
	assert.Equal(t, model.StageFailed, text.Status)
	assert.Contains(t, text.Error, "all 2 text queries failed")
	assert.Equal(t, 2, text.Metadata["failed"])
	assert.Empty(t, resp.Results)
	assert.Equal(t, 2, resp.Stats.CreditsUsed)
}

func TestRun_ParseStageHeuristic(t *testing.T) {
	web := &fakeSerper{
		resp: &serper.SearchResponse{
			Organic: []serper.OrganicResult{
				{
					Title:    "Mucha JOB Original Lithograph",
					Link:     "https://posters.example/job",
					Snippet:  "In stock. Buy now for $450.",
					Position: 1,
				},
			},
			CreditsUsed: 1,
		},
	}
	eng := New(Params{Config: testConfig(), Serper: web, Registry: &stubLoader{}})

	resp, err := eng.Run(context.Background(), model.SearchRequest{
		Queries: []string{"mucha job poster"},
		Parse:   true,
	})
	require.NoError(t, err)
	require.True(t, resp.Success)

	stage := findStage(t, resp, "parse")
	assert.Equal(t, model.StageComplete, stage.Status)
	assert.Equal(t, false, stage.Metadata["used_ai"])

	require.NotNil(t, resp.Analysis)
	require.Len(t, resp.Analysis.ParsedResults, 1)
	assert.Equal(t, model.StatusForSale, resp.Analysis.ParsedResults[0].Status)
	require.NotNil(t, resp.Analysis.PriceSummary.CurrentListings)
	assert.Equal(t, 1, resp.Analysis.PriceSummary.CurrentListings.Count)
	assert.InDelta(t, 450, resp.Analysis.PriceSummary.CurrentListings.High, 1e-9)
}

func TestRun_ParseSkippedWithoutResults(t *testing.T) {
	web := &fakeSerper{resp: &serper.SearchResponse{CreditsUsed: 1}}
	eng := New(Params{Config: testConfig(), Serper: web, Registry: &stubLoader{}})

	resp, err := eng.Run(context.Background(), model.SearchRequest{
		Queries: []string{"mucha job poster"},
		Parse:   true,
	})
	require.NoError(t, err)

	stage := findStage(t, resp, "parse")
	assert.Equal(t, model.StageSkipped, stage.Status)
	assert.Equal(t, "no results to parse", stage.Metadata["reason"])
	assert.Nil(t, resp.Analysis)
}

func TestRun_VerifyStage(t *testing.T) {
	lens := &fakeSerpAPI{
		resp: &serpapi.LensResponse{
			VisualMatches: []serpapi.VisualMatch{
				{
					Position:  1,
					Title:     "Alphonse Mucha Job 1896 Original Poster",
					Link:      "https://www.swanngalleries.com/lots/mucha-job",
					Thumbnail: "https://img.example/swann.jpg",
				},
			},
			CreditsUsed: 1,
		},
	}
	ai := &stubAnthropic{
		response: &anthropic.MessageResponse{
			Content: []anthropic.ContentBlock{{
				Type: "text",
				Text: `{"match_score": 92, "same_image": true, "same_style": true, "explanation": "Same plate and lettering."}`,
			}},
			Usage: anthropic.TokenUsage{InputTokens: 2100, OutputTokens: 90},
		},
	}
	eng := New(Params{
		Config:    testConfig(),
		SerpAPI:   lens,
		Anthropic: ai,
		Registry:  &stubLoader{sellers: []model.Seller{swannSeller()}},
	})

	resp, err := eng.Run(context.Background(), model.SearchRequest{
		ImageURL: "https://photos.example/job.jpg",
		Verify:   true,
	})
	require.NoError(t, err)
	require.True(t, resp.Success)

	stage := findStage(t, resp, "verify")
	assert.Equal(t, model.StageComplete, stage.Status)
	assert.Equal(t, 1, stage.Metadata["attempted"])
	assert.Equal(t, 1, stage.Metadata["verified"])

	require.NotNil(t, resp.Verification)
	assert.Equal(t, 1, resp.Verification.Attempted)
	assert.Equal(t, 1, resp.Verification.Verified)
	assert.Equal(t, 1, resp.Verification.SameImage)
	assert.Zero(t, resp.Verification.Failed)

	require.Len(t, resp.Results, 1)
	assert.True(t, resp.Results[0].Verification.Verified)
	assert.InDelta(t, 92, resp.Results[0].Verification.MatchScore, 1e-9)
	assert.Equal(t, 1, ai.calls)

	// One lens credit plus the sonnet comparison tokens.
	visionCost := (2100*3.00 + 90*15.00) / 1e6
	assert.InDelta(t, 0.015+visionCost, resp.Stats.CostUSD, 1e-9)
}

func TestRun_VerifySkippedWithoutComparator(t *testing.T) {
	lens := &fakeSerpAPI{
		resp: &serpapi.LensResponse{
			VisualMatches: []serpapi.VisualMatch{
				{Position: 1, Title: "Mucha JOB lithograph original", Link: "https://posters.example/job"},
			},
			CreditsUsed: 1,
		},
	}
	eng := New(Params{Config: testConfig(), SerpAPI: lens, Registry: &stubLoader{}})

	resp, err := eng.Run(context.Background(), model.SearchRequest{
		ImageURL: "https://photos.example/job.jpg",
		Verify:   true,
	})
	require.NoError(t, err)

	stage := findStage(t, resp, "verify")
	assert.Equal(t, model.StageSkipped, stage.Status)
	assert.Equal(t, "anthropic not configured", stage.Metadata["reason"])
	assert.Nil(t, resp.Verification)
}

func TestRun_StoreLifecycle(t *testing.T) {
	webResp := &serper.SearchResponse{
		Organic:     []serper.OrganicResult{{Title: "Mucha JOB", Link: "https://posters.example/job", Position: 1}},
		CreditsUsed: 1,
	}
	req := model.SearchRequest{Queries: []string{"mucha job poster"}}

	t.Run("persisted under store id", func(t *testing.T) {
		st := newFakeStore()
		eng := New(Params{Config: testConfig(), Serper: &fakeSerper{resp: webResp}, Registry: &stubLoader{}, Store: st})

		resp, err := eng.Run(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, resp.Success)

		require.Len(t, st.createReqs, 1)
		assert.Equal(t, req, st.createReqs[0])
		require.Contains(t, st.completed, "sess-123")
		assert.True(t, st.completed["sess-123"].Success)
	})

	t.Run("create failure degrades to local id", func(t *testing.T) {
		st := newFakeStore()
		st.createErr = errors.New("pg: connection refused")
		eng := New(Params{Config: testConfig(), Serper: &fakeSerper{resp: webResp}, Registry: &stubLoader{}, Store: st})

		resp, err := eng.Run(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, resp.Success)

		// Completion still happens, just under a locally generated id.
		require.Len(t, st.completed, 1)
		assert.NotContains(t, st.completed, "sess-123")
	})

	t.Run("complete failure is swallowed", func(t *testing.T) {
		st := newFakeStore()
		st.completeErr = errors.New("pg: connection reset")
		eng := New(Params{Config: testConfig(), Serper: &fakeSerper{resp: webResp}, Registry: &stubLoader{}, Store: st})

		resp, err := eng.Run(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, resp.Success)
	})
}

func TestRun_ObserverSequence(t *testing.T) {
	web := &fakeSerper{
		resp: &serper.SearchResponse{
			Organic:     []serper.OrganicResult{{Title: "Mucha JOB", Link: "https://posters.example/job", Position: 1}},
			CreditsUsed: 1,
		},
	}
	obs := &recordingObserver{}
	eng := New(Params{Config: testConfig(), Serper: web, Registry: &stubLoader{}, Observer: obs})

	_, err := eng.Run(context.Background(), model.SearchRequest{Queries: []string{"mucha job poster"}})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"start:registry", "complete:registry",
		"skip:visual_search",
		"start:title_extraction", "complete:title_extraction",
		"start:text_search", "complete:text_search",
		"start:merge", "complete:merge",
		"skip:parse",
		"skip:verify",
	}, obs.events)
}

func TestNew_Defaults(t *testing.T) {
	eng := New(Params{Config: testConfig(), Registry: &stubLoader{}})

	assert.Equal(t, parse.DefaultModel, eng.parseModel)
	assert.Equal(t, vision.DefaultModel, eng.visionModel)
	assert.Nil(t, eng.comparator)
	assert.NotNil(t, eng.parser)
	assert.NotNil(t, eng.verifier)
	assert.NotNil(t, eng.calc)
	assert.IsType(t, ZapObserver{}, eng.obs)
}

func TestCollectQueries(t *testing.T) {
	t.Parallel()

	titles := []model.ExtractedTitle{
		{Title: "Mucha Job", Confidence: 0.9},
		{Title: "Cappiello Le Thermogene Advertisement", Confidence: 0.5},
	}

	// User queries come first and win case-insensitive duplicates against
	// generated ones.
	got := collectQueries([]string{"Mucha JOB poster", "  "}, titles, 3)
	assert.Equal(t, []string{
		"Mucha JOB poster",
		"Cappiello Le Thermogene Advertisement poster",
	}, got)

	assert.Nil(t, collectQueries(nil, nil, 3))
	assert.Equal(t, []string{"ski poster 1930"}, collectQueries([]string{"ski poster 1930"}, nil, 3))

	// maxGenerated caps only the generated side.
	got = collectQueries(nil, titles, 1)
	assert.Equal(t, []string{"Mucha Job poster"}, got)
}

func TestItemContextString(t *testing.T) {
	t.Parallel()

	assert.Empty(t, itemContextString(model.ItemContext{}, nil))

	assert.Equal(t, "Artist: Mucha", itemContextString(model.ItemContext{Artist: "Mucha"}, nil))

	full := itemContextString(
		model.ItemContext{Title: "Job", Artist: "Alphonse Mucha", Notes: "linen backed"},
		&model.KnowledgeGraph{Title: "JOB (Mucha)"},
	)
	assert.Equal(t, "Title: Job. Artist: Alphonse Mucha. Notes: linen backed. Recognized as: JOB (Mucha)", full)
}
