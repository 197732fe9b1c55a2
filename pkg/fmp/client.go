// Package fmp provides a minimal client for the Financial Modeling Prep API.
package fmp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://financialmodelingprep.com/api/v3"

// Client fetches company fundamentals from Financial Modeling Prep.
type Client interface {
	Profile(ctx context.Context, symbol string) (*CompanyProfile, error)
	Quote(ctx context.Context, symbol string) (*Quote, error)
}

// CompanyProfile describes a listed company.
type CompanyProfile struct {
	Symbol      string  `json:"symbol"`
	CompanyName string  `json:"companyName"`
	Industry    string  `json:"industry"`
	Sector      string  `json:"sector"`
	MarketCap   float64 `json:"mktCap"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Website     string  `json:"website"`
}

// Quote is a point-in-time stock quote.
type Quote struct {
	Symbol           string  `json:"symbol"`
	Name             string  `json:"name"`
	Price            float64 `json:"price"`
	ChangePercentage float64 `json:"changesPercentage"`
	Volume           int64   `json:"volume"`
	MarketCap        float64 `json:"marketCap"`
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

// NewClient creates a Financial Modeling Prep client.
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

// Profile fetches the company profile for a symbol. Returns nil when the
// API has no record for the symbol.
func (c *httpClient) Profile(ctx context.Context, symbol string) (*CompanyProfile, error) {
	var profiles []CompanyProfile
	if err := c.get(ctx, "/profile/"+url.PathEscape(symbol), &profiles); err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, nil
	}
	return &profiles[0], nil
}

// Quote fetches the latest quote for a symbol. Returns nil when the API has
// no record for the symbol.
func (c *httpClient) Quote(ctx context.Context, symbol string) (*Quote, error) {
	var quotes []Quote
	if err := c.get(ctx, "/quote/"+url.PathEscape(symbol), &quotes); err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, nil
	}
	return &quotes[0], nil
}

func (c *httpClient) get(ctx context.Context, path string, dst any) error {
	if c.apiKey == "" {
		return eris.New("fmp: api key not configured")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?apikey="+url.QueryEscape(c.apiKey), nil)
	if err != nil {
		return eris.Wrap(err, "fmp: create request")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return eris.Wrap(err, "fmp: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "fmp: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("fmp: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return eris.Wrap(json.Unmarshal(respBody, dst), "fmp: unmarshal response")
}
