// Package newsapi provides a minimal client for the NewsAPI.org v2 API.
package newsapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL  = "https://newsapi.org/v2"
	defaultPageSize = 10
)

// Client fetches articles from NewsAPI.
type Client interface {
	Everything(ctx context.Context, req EverythingRequest) (*EverythingResponse, error)
}

// EverythingRequest holds query parameters for GET /everything.
type EverythingRequest struct {
	Query    string
	Language string
	SortBy   string
	PageSize int
}

// EverythingResponse is the response from GET /everything.
type EverythingResponse struct {
	Status       string    `json:"status"`
	TotalResults int       `json:"totalResults"`
	Articles     []Article `json:"articles"`
}

// Article is a single news article.
type Article struct {
	Source      Source `json:"source"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

// Source identifies the publisher.
type Source struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a NewsAPI client.
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
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Everything(ctx context.Context, req EverythingRequest) (*EverythingResponse, error) {
	if req.Query == "" {
		return nil, eris.New("newsapi: query cannot be empty")
	}
	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.Language == "" {
		req.Language = "en"
	}
	if req.SortBy == "" {
		req.SortBy = "relevancy"
	}

	params := url.Values{}
	params.Set("q", req.Query)
	params.Set("language", req.Language)
	params.Set("sortBy", req.SortBy)
	params.Set("pageSize", strconv.Itoa(req.PageSize))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/everything?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "newsapi: create request")
	}
	httpReq.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "newsapi: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "newsapi: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("newsapi: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result EverythingResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "newsapi: unmarshal response")
	}
	if result.Status != "ok" {
		return nil, eris.Errorf("newsapi: api status %q", result.Status)
	}

	return &result, nil
}
