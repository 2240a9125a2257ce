package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultSearchTimeout = 15 * time.Second
	defaultSearchLimit   = 20

	// Search services are local-ish; a generous limiter still protects a
	// shared index from reflection runs hammering it.
	searchRateLimit = 10.0
	searchBurst     = 5
)

// ClientConfig configures the HTTP evidence client.
type ClientConfig struct {
	// BaseURL is the session search service endpoint.
	BaseURL string `koanf:"base_url"`

	// Timeout is the per-request timeout in seconds.
	Timeout int `koanf:"timeout"`
}

// HTTPClient queries the session search service over its HTTP query
// interface.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPClient creates an evidence search client.
func NewHTTPClient(cfg ClientConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("evidence search base URL required")
	}
	timeout := defaultSearchTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(searchRateLimit), searchBurst),
	}, nil
}

// searchResponse is the wire format of the search service.
type searchResponse struct {
	Results []Snippet `json:"results"`
}

// errorResponse is the wire format of search service errors.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Search runs one query against the search service.
func (c *HTTPClient) Search(ctx context.Context, q Query) ([]Snippet, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	params := url.Values{}
	params.Set("q", q.Text)
	params.Set("limit", strconv.Itoa(limit))
	if q.Days > 0 {
		params.Set("days", strconv.Itoa(q.Days))
	}
	if q.Agent != "" {
		params.Set("agent", q.Agent)
	}
	if q.Workspace != "" {
		params.Set("workspace", q.Workspace)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Code == "index_missing" {
			return nil, ErrIndexMissing
		}
		return nil, ErrNotFound
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return nil, ErrTimeout
	default:
		return nil, fmt.Errorf("search error (%d): %s", resp.StatusCode, string(body))
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return nil, ErrNotFound
	}
	return parsed.Results, nil
}

var _ Searcher = (*HTTPClient)(nil)
