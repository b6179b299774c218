// Package pagespeed measures website performance through the Google
// PageSpeed Insights v5 API. The client preflights each URL with a HEAD
// probe so unreachable sites are reported as an absent source rather
// than burning API quota on a doomed call.
package pagespeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/codeforpakistan/watchtower-api/internal/logging"
	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/ratelimit"
	"github.com/codeforpakistan/watchtower-api/internal/scanerr"
	"github.com/codeforpakistan/watchtower-api/internal/types"
)

const (
	// DefaultBaseURL is the public PageSpeed Insights v5 endpoint.
	DefaultBaseURL = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"

	// DefaultTimeout bounds one analysis call. Lighthouse runs take a
	// while on slow sites, so this is generous.
	DefaultTimeout = 60 * time.Second

	// preflightTimeout bounds the reachability probe.
	preflightTimeout = 10 * time.Second

	// maxResponseBytes caps how much of a response body is read. Full
	// audit payloads run to a few megabytes.
	maxResponseBytes = 10 << 20

	source = "pagespeed"
)

// requestedCategories are the Lighthouse categories asked for on every call.
var requestedCategories = []string{"performance", "accessibility", "best-practices", "seo"}

// Config holds configuration for the PageSpeed client.
type Config struct {
	// APIKey authenticates against the Google API. Optional; anonymous
	// calls work with a much lower quota.
	APIKey string

	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string

	// Timeout bounds one analysis call. Default: 60s.
	Timeout time.Duration

	// Gate paces outbound calls. Optional.
	Gate *ratelimit.Gate

	// HTTPClient overrides the API transport, mainly for tests.
	HTTPClient *http.Client
}

// Client fetches performance metrics from PageSpeed Insights.
// It implements job.PerformanceFetcher.
type Client struct {
	apiKey    string
	baseURL   string
	gate      *ratelimit.Gate
	client    *http.Client
	preflight *http.Client
}

// NewClient creates a PageSpeed client with the given configuration.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &Client{
		apiKey:    cfg.APIKey,
		baseURL:   baseURL,
		gate:      cfg.Gate,
		client:    client,
		preflight: &http.Client{Timeout: preflightTimeout},
	}, nil
}

// Fetch runs a PageSpeed analysis for the website. An unreachable site
// produces a (nil, nil) absent result; API failures are classified per
// the scan error taxonomy so the retry executor can decide what to do.
func (c *Client) Fetch(ctx context.Context, website *models.Website, strategy types.ScanStrategy) (*models.PerformanceMetrics, error) {
	if website == nil {
		return nil, scanerr.Permanent(source, "website is required", nil)
	}

	if c.gate != nil {
		if err := c.gate.Acquire(ctx); err != nil {
			return nil, err
		}
	}

	if !c.reachable(ctx, website.URL) {
		if ctx.Err() != nil {
			return nil, classifyTransportError(ctx, ctx.Err())
		}
		logging.FromContext(ctx).WithField("url", website.URL).Warn("website unreachable, skipping performance scan")
		return nil, nil
	}

	body, err := c.analyze(ctx, website.URL, strategy)
	if err != nil {
		return nil, err
	}

	var parsed psiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, scanerr.Permanent(source, "failed to parse pagespeed response", err)
	}

	return convert(website.URL, &parsed)
}

// reachable probes the URL with a HEAD request. Anything but a
// sub-400 response counts as unreachable, matching what a visitor
// would experience.
func (c *Client) reachable(ctx context.Context, siteURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, siteURL, nil)
	if err != nil {
		return false
	}

	resp, err := c.preflight.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))

	return resp.StatusCode < http.StatusBadRequest
}

// analyze performs the API call and returns the raw response body.
func (c *Client) analyze(ctx context.Context, siteURL string, strategy types.ScanStrategy) ([]byte, error) {
	endpoint, err := c.buildQueryURL(siteURL, strategy)
	if err != nil {
		return nil, scanerr.Permanent(source, "failed to build query URL", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, scanerr.Permanent(source, "failed to build request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, scanerr.Transient(source, "failed to read pagespeed response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, scanerr.RateLimit(source)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, scanerr.Transient(source, fmt.Sprintf("pagespeed API returned %d: %s", resp.StatusCode, apiErrorMessage(body)), nil)
	default:
		return nil, scanerr.Permanent(source, fmt.Sprintf("pagespeed API returned %d: %s", resp.StatusCode, apiErrorMessage(body)), nil)
	}
}

// buildQueryURL assembles the API query with all requested categories.
func (c *Client) buildQueryURL(siteURL string, strategy types.ScanStrategy) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}

	query := base.Query()
	query.Set("url", siteURL)
	query.Set("strategy", string(strategy))
	if c.apiKey != "" {
		query.Set("key", c.apiKey)
	}
	for _, category := range requestedCategories {
		query.Add("category", category)
	}
	base.RawQuery = query.Encode()

	return base.String(), nil
}

// classifyTransportError maps request failures onto the error taxonomy:
// deadlines become Timeout, caller cancellation passes through untouched,
// everything else is a retryable network fault.
func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}

	var urlErr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &urlErr) && urlErr.Timeout()) {
		return scanerr.Timeout(source, "pagespeed call timed out", err)
	}

	return scanerr.Transient(source, "pagespeed request failed", err)
}

// apiErrorMessage pulls the error message out of a Google API error
// payload, falling back to a body snippet.
func apiErrorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}

	const snippet = 200
	if len(body) > snippet {
		body = body[:snippet]
	}
	return string(body)
}
