// Package mediastack provides a minimal client for the MediaStack news API.
package mediastack

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
	defaultBaseURL = "https://api.mediastack.com/v1"
	defaultLimit   = 10
)

// Client fetches news items from MediaStack.
type Client interface {
	News(ctx context.Context, req NewsRequest) (*NewsResponse, error)
}

// NewsRequest holds query parameters for GET /news.
type NewsRequest struct {
	Keywords  string
	Languages string
	Limit     int
}

// NewsResponse is the response from GET /news.
type NewsResponse struct {
	Data []Item `json:"data"`
}

// Item is a single news item.
type Item struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at"`
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
	accessKey string
	baseURL   string
	http      *http.Client
}

// NewClient creates a MediaStack client.
func NewClient(accessKey string, opts ...Option) Client {
	c := &httpClient{
		accessKey: accessKey,
		baseURL:   defaultBaseURL,
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

func (c *httpClient) News(ctx context.Context, req NewsRequest) (*NewsResponse, error) {
	if req.Keywords == "" {
		return nil, eris.New("mediastack: keywords cannot be empty")
	}
	if req.Limit <= 0 {
		req.Limit = defaultLimit
	}
	if req.Languages == "" {
		req.Languages = "en"
	}

	params := url.Values{}
	params.Set("access_key", c.accessKey)
	params.Set("keywords", req.Keywords)
	params.Set("languages", req.Languages)
	params.Set("limit", strconv.Itoa(req.Limit))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/news?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "mediastack: create request")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "mediastack: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "mediastack: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("mediastack: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result NewsResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "mediastack: unmarshal response")
	}

	return &result, nil
}
