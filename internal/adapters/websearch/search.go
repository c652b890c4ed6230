package websearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"enlitens/internal/adapters/config"
	"enlitens/pkg/errors"
	"enlitens/pkg/logger"
)

// Result is a single web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher answers queries against an external search API.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// HTTPSearcher queries a JSON search endpoint (SearXNG-compatible format).
type HTTPSearcher struct {
	endpoint   string
	apiKey     string
	maxResults int
	client     *http.Client
	log        *logger.Logger
}

// NewHTTPSearcher creates a searcher from config. Returns nil when no
// endpoint is configured; callers treat a nil searcher as disabled.
func NewHTTPSearcher(cfg config.WebSearchConfig) *HTTPSearcher {
	if cfg.Endpoint == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 12 * time.Second
	}
	return &HTTPSearcher{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		maxResults: cfg.MaxResults,
		client:     &http.Client{Timeout: timeout},
		log:        logger.Get().With("component", "web_search"),
	}
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (s *HTTPSearcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 || (s.maxResults > 0 && limit > s.maxResults) {
		limit = s.maxResults
	}

	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "parse search endpoint")
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "create search request")
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send search request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read search response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("search API error (%d): %s", resp.StatusCode, string(body))
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.Wrap(err, "unmarshal search response")
	}

	results := make([]Result, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Content})
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	s.log.Debugf("Search %q returned %d results", query, len(results))
	return results, nil
}
