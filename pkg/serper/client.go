// Package serper provides the Serper Google search client used for text
// queries. Calls follow the same single-attempt discipline as pkg/serpapi:
// a 429 surfaces as a resilience.RateLimitError, other non-2xx statuses as
// provider errors, and credits are counted for any answered request.
package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/posterintel/poster-research/internal/resilience"
)

const (
	defaultBaseURL = "https://google.serper.dev"
	defaultNum     = 10
	maxNum         = 100
)

// Client performs web searches against the Serper API.
//
// Credits discipline: once the provider has been reached, the returned
// response is non-nil and CreditsUsed is set even when err is non-nil. A nil
// response means the provider was never contacted.
type Client interface {
	Search(ctx context.Context, query string, maxResults int) (*SearchResponse, error)
}

// searchRequest is the body for POST /search.
type searchRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num,omitempty"`
}

// SearchResponse is the Serper search response.
type SearchResponse struct {
	Organic []OrganicResult `json:"organic"`

	// Credits is what the provider reports for this call; CreditsUsed is the
	// accounting value the engine sums (falls back to 1 when the provider
	// omits it).
	Credits     int `json:"credits,omitempty"`
	CreditsUsed int `json:"-"`
}

// OrganicResult is a single organic web result.
type OrganicResult struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet,omitempty"`
	Position int    `json:"position"`
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

// NewClient creates a Serper client. The default throttle of 5 req/s keeps
// parallel query fan-out under the provider's account limits.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 5),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string, maxResults int) (*SearchResponse, error) {
	if query == "" {
		return nil, eris.New("serper: query is required")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "serper: rate limit")
	}

	num := maxResults
	if num <= 0 {
		num = defaultNum
	}
	if num > maxNum {
		num = maxNum
	}

	body, err := json.Marshal(searchRequest{Query: query, Num: num})
	if err != nil {
		return nil, eris.Wrap(err, "serper: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "serper: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "serper: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	// The provider answered: the credit is spent regardless of what follows.
	reached := &SearchResponse{CreditsUsed: 1}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return reached, eris.Wrap(err, "serper: read response")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := resilience.ParseRetryAfter(resp.Header.Get("Retry-After"))
		return reached, resilience.NewRateLimitError("serper", retryAfter)
	}
	if resp.StatusCode != http.StatusOK {
		return reached, eris.Errorf("serper: unexpected status %d: %s", resp.StatusCode, truncate(respBody, 200))
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return reached, eris.Wrap(err, "serper: unmarshal response")
	}
	result.CreditsUsed = 1
	if result.Credits > 0 {
		result.CreditsUsed = result.Credits
	}

	return &result, nil
}

// truncate keeps provider error bodies readable in wrapped errors.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return fmt.Sprintf("%s... (%d bytes)", b[:n], len(b))
}
