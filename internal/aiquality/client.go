// Package aiquality grades website quality with a language model behind
// an OpenAI-compatible chat-completions API. The page is fetched once,
// capped, and handed to the model, which must answer with a strict JSON
// verdict carrying the four dimension scores.
package aiquality

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeforpakistan/watchtower-api/internal/logging"
	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/ratelimit"
	"github.com/codeforpakistan/watchtower-api/internal/scanerr"
)

const (
	// DefaultBaseURL is the OpenAI API root; any compatible provider works.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the assessment model.
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout bounds one assessment call.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxContentBytes caps how much page HTML is handed to the model.
	DefaultMaxContentBytes = 128 << 10

	// pageFetchTimeout bounds the page download.
	pageFetchTimeout = 15 * time.Second

	source = "aiquality"
)

const systemPrompt = `You are a public-sector website quality auditor. Grade the website you are shown on four dimensions, each 0-100: accessibility (semantic structure, alt text, WCAG basics), design (layout, visual hierarchy, mobile friendliness), content (clarity, currency and usefulness of citizen information), usability (navigation, findability, forms). Respond with a single JSON object with numeric keys "accessibility", "design", "content", "usability", a short string "language_accessibility" describing local-language availability, and "recommendations", an array of short strings ordered by importance.`

// Config holds configuration for the AI quality client.
type Config struct {
	// APIKey authenticates against the provider. An empty key disables
	// the source entirely: assessments come back absent, not failed.
	APIKey string

	// BaseURL overrides the API root, mainly for tests and self-hosted
	// providers.
	BaseURL string

	// Model names the assessment model. Default: gpt-4o-mini.
	Model string

	// Timeout bounds one assessment call. Default: 60s.
	Timeout time.Duration

	// MaxContentBytes caps the page HTML handed to the model. Default: 128KiB.
	MaxContentBytes int64

	// Gate paces outbound calls. Optional.
	Gate *ratelimit.Gate

	// HTTPClient overrides the API transport, mainly for tests.
	HTTPClient *http.Client
}

// Client grades websites through a chat-completions API.
// It implements job.AIFetcher.
type Client struct {
	apiKey          string
	baseURL         string
	model           string
	maxContentBytes int64
	gate            *ratelimit.Gate
	client          *http.Client
	pageClient      *http.Client
}

// NewClient creates an AI quality client with the given configuration.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	maxContentBytes := cfg.MaxContentBytes
	if maxContentBytes <= 0 {
		maxContentBytes = DefaultMaxContentBytes
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &Client{
		apiKey:          cfg.APIKey,
		baseURL:         strings.TrimRight(baseURL, "/"),
		model:           model,
		maxContentBytes: maxContentBytes,
		gate:            cfg.Gate,
		client:          client,
		pageClient:      &http.Client{Timeout: pageFetchTimeout},
	}, nil
}

// Assess fetches the website's page and asks the model to grade it.
// A missing API key or an unreachable page produces a (nil, nil) absent
// result; API failures are classified per the scan error taxonomy.
func (c *Client) Assess(ctx context.Context, website *models.Website) (*models.AIAssessment, error) {
	if website == nil {
		return nil, scanerr.Permanent(source, "website is required", nil)
	}

	if c.apiKey == "" {
		logging.FromContext(ctx).Debug("no AI API key configured, skipping quality assessment")
		return nil, nil
	}

	if c.gate != nil {
		if err := c.gate.Acquire(ctx); err != nil {
			return nil, err
		}
	}

	page, err := c.fetchPage(ctx, website.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, classifyTransportError(ctx, err)
		}
		logging.FromContext(ctx).WithField("url", website.URL).WithError(err).Warn("page fetch failed, skipping quality assessment")
		return nil, nil
	}

	content, err := c.complete(ctx, buildUserPrompt(website, page))
	if err != nil {
		return nil, err
	}

	return parseVerdict(content, c.model)
}

// fetchPage downloads the page HTML, truncated to the configured cap.
func (c *Client) fetchPage(ctx context.Context, siteURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, siteURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html")

	resp, err := c.pageClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("page returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxContentBytes))
	if err != nil {
		return "", err
	}

	return string(body), nil
}

// complete sends the chat request and returns the model's reply content.
func (c *Client) complete(ctx context.Context, userPrompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", scanerr.Permanent(source, "failed to encode chat request", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", scanerr.Permanent(source, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", scanerr.Transient(source, "failed to read chat response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", scanerr.RateLimit(source)
	case resp.StatusCode >= http.StatusInternalServerError:
		return "", scanerr.Transient(source, fmt.Sprintf("AI API returned %d: %s", resp.StatusCode, apiErrorMessage(body)), nil)
	default:
		return "", scanerr.Permanent(source, fmt.Sprintf("AI API returned %d: %s", resp.StatusCode, apiErrorMessage(body)), nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", scanerr.Permanent(source, "failed to parse chat response", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", scanerr.Permanent(source, "chat response carries no content", nil)
	}

	return parsed.Choices[0].Message.Content, nil
}

// buildUserPrompt assembles the grading request for one website.
func buildUserPrompt(website *models.Website, page string) string {
	return fmt.Sprintf("Website: %s (%s)\nGovernment level: %s\n\nPage HTML (truncated):\n%s",
		website.Name, website.URL, website.Level, page)
}

// classifyTransportError maps request failures onto the error taxonomy.
func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}

	var urlErr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &urlErr) && urlErr.Timeout()) {
		return scanerr.Timeout(source, "AI call timed out", err)
	}

	return scanerr.Transient(source, "AI request failed", err)
}

// apiErrorMessage pulls the error message out of an API error payload,
// falling back to a body snippet.
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
