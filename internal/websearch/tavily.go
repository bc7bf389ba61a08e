// Package websearch provides a Tavily-backed web search tool.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dotcommander/betbox/internal/tools"
)

// DefaultEndpoint is Tavily's search API.
const DefaultEndpoint = "https://api.tavily.com/search"

// DefaultMaxResults is the number of results the tool asks for.
const DefaultMaxResults = 3

// Config configures a Client.
type Config struct {
	APIKey     string
	Endpoint   string
	MaxResults int
	HTTPClient *http.Client
}

// Client searches the web.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// Result is one search hit.
type Result struct {
	Title   string  `json:"title,omitempty"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// APIError is a non-2xx response from the search API.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("tavily: status %d", e.StatusCode)
	}
	return fmt.Sprintf("tavily: status %d: %s", e.StatusCode, e.Detail)
}

// New returns a client. The API key is required.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("tavily: api key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}, nil
}

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

type errorResponse struct {
	Detail struct {
		Error string `json:"error"`
	} `json:"detail"`
}

// Search runs query and returns at most MaxResults hits.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	payload, err := json.Marshal(searchRequest{Query: query, MaxResults: c.cfg.MaxResults})
	if err != nil {
		return nil, fmt.Errorf("tavily: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("tavily: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tavily: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er errorResponse
		_ = json.Unmarshal(body, &er)
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: er.Detail.Error}
	}

	var out searchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("tavily: decode response: %w", err)
	}
	if len(out.Results) > c.cfg.MaxResults {
		out.Results = out.Results[:c.cfg.MaxResults]
	}
	c.logger.Debug("web search", zap.String("query", query), zap.Int("results", len(out.Results)))
	return out.Results, nil
}

type searchArgs struct {
	Query string `json:"query" jsonschema:"search query to look up"`
}

// Tool returns the web_search tool spec.
func (c *Client) Tool() tools.Spec {
	return tools.Spec{
		Name:        "web_search",
		Description: "A search engine optimized for comprehensive, accurate, and trusted results. Useful for when you need to answer questions about current events. Input should be a search query.",
		Schema:      tools.Infer[searchArgs](),
		Invoke: func(ctx context.Context, raw json.RawMessage) (any, error) {
			args, err := tools.DecodeArgs[searchArgs](raw)
			if err != nil {
				return nil, err
			}
			results, err := c.Search(ctx, args.Query)
			if err != nil {
				return nil, err
			}
			return results, nil
		},
	}
}
