// Package serpapi provides the SerpApi client used for Google Lens reverse
// image search. Calls are single-attempt: a 429 comes back as a
// resilience.RateLimitError and every other non-2xx as a provider error, so
// the session can report exactly what the provider did with its one credit.
package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/posterintel/poster-research/internal/resilience"
)

const defaultBaseURL = "https://serpapi.com"

// Client performs visual searches against SerpApi.
//
// Credits discipline: once the provider has been reached, the returned
// response is non-nil and CreditsUsed is set even when err is non-nil.
// A nil response means the provider was never contacted and no credit was
// consumed.
type Client interface {
	Lens(ctx context.Context, imageURL string) (*LensResponse, error)
}

// LensResponse is the Google Lens engine response.
type LensResponse struct {
	VisualMatches  []VisualMatch        `json:"visual_matches"`
	KnowledgeGraph []KnowledgeGraphItem `json:"knowledge_graph,omitempty"`

	// CreditsUsed is accounting state, not wire data.
	CreditsUsed int `json:"-"`
}

// VisualMatch is a single page carrying a visually similar image.
type VisualMatch struct {
	Position  int        `json:"position"`
	Title     string     `json:"title"`
	Link      string     `json:"link"`
	Source    string     `json:"source"`
	Thumbnail string     `json:"thumbnail,omitempty"`
	Price     *LensPrice `json:"price,omitempty"`
}

// LensPrice is the provider's pre-extracted price for a visual match.
type LensPrice struct {
	Value          string  `json:"value"`
	ExtractedValue float64 `json:"extracted_value"`
	Currency       string  `json:"currency"`
}

// KnowledgeGraphItem identifies the pictured item when Lens recognizes it.
type KnowledgeGraphItem struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Link     string `json:"link,omitempty"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default client-side throttle.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a SerpApi client. Lens searches are slow on the provider
// side, so the default timeout is generous and the default throttle is
// 1 req/s with a burst of 2.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 90 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(1, 2),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Lens(ctx context.Context, imageURL string) (*LensResponse, error) {
	if imageURL == "" {
		return nil, eris.New("serpapi: image URL is required")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "serpapi: rate limit")
	}

	q := url.Values{}
	q.Set("engine", "google_lens")
	q.Set("url", imageURL)
	q.Set("api_key", c.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search.json?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: create request")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	// The provider answered: the credit is spent regardless of what follows.
	reached := &LensResponse{CreditsUsed: 1}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return reached, eris.Wrap(err, "serpapi: read response")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := resilience.ParseRetryAfter(resp.Header.Get("Retry-After"))
		return reached, resilience.NewRateLimitError("serpapi", retryAfter)
	}
	if resp.StatusCode != http.StatusOK {
		return reached, eris.Errorf("serpapi: unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var result LensResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return reached, eris.Wrap(err, "serpapi: unmarshal response")
	}
	result.CreditsUsed = 1

	return &result, nil
}

// truncate keeps provider error bodies readable in wrapped errors.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return fmt.Sprintf("%s... (%d bytes)", b[:n], len(b))
}
