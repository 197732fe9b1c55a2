// Package alphavantage provides a minimal client for the Alpha Vantage
// stock data API.
package alphavantage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://www.alphavantage.co"

// Client fetches daily time series and company fundamentals from
// Alpha Vantage.
type Client interface {
	LatestDaily(ctx context.Context, symbol string) (*DailyQuote, error)
	CompanyOverview(ctx context.Context, symbol string) (map[string]string, error)
}

// DailyQuote is the most recent point of a daily time series. Values
// are kept as the API's decimal strings.
type DailyQuote struct {
	Symbol string
	Date   string
	Open   string
	High   string
	Low    string
	Close  string
	Volume string
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

// NewClient creates an Alpha Vantage client.
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

// LatestDaily fetches the compact daily time series for a symbol and
// returns its most recent point. Returns nil when the series is empty.
func (c *httpClient) LatestDaily(ctx context.Context, symbol string) (*DailyQuote, error) {
	var payload struct {
		Series map[string]struct {
			Open   string `json:"1. open"`
			High   string `json:"2. high"`
			Low    string `json:"3. low"`
			Close  string `json:"4. close"`
			Volume string `json:"5. volume"`
		} `json:"Time Series (Daily)"`
	}
	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", symbol)
	params.Set("outputsize", "compact")
	if err := c.get(ctx, params, &payload); err != nil {
		return nil, err
	}
	if len(payload.Series) == 0 {
		return nil, nil
	}

	// Dates are ISO formatted, so the lexicographic maximum is the
	// latest trading day.
	var latest string
	for date := range payload.Series {
		if date > latest {
			latest = date
		}
	}
	point := payload.Series[latest]
	return &DailyQuote{
		Symbol: symbol,
		Date:   latest,
		Open:   point.Open,
		High:   point.High,
		Low:    point.Low,
		Close:  point.Close,
		Volume: point.Volume,
	}, nil
}

// CompanyOverview fetches company fundamentals for a symbol as the
// API's flat field map. Returns nil when the API has no record.
func (c *httpClient) CompanyOverview(ctx context.Context, symbol string) (map[string]string, error) {
	var overview map[string]string
	params := url.Values{}
	params.Set("function", "OVERVIEW")
	params.Set("symbol", symbol)
	if err := c.get(ctx, params, &overview); err != nil {
		return nil, err
	}
	if len(overview) == 0 {
		return nil, nil
	}
	return overview, nil
}

func (c *httpClient) get(ctx context.Context, params url.Values, dst any) error {
	if c.apiKey == "" {
		return eris.New("alphavantage: api key not configured")
	}
	params.Set("apikey", c.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/query?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "alphavantage: create request")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return eris.Wrap(err, "alphavantage: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "alphavantage: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("alphavantage: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return eris.Wrap(json.Unmarshal(respBody, dst), "alphavantage: unmarshal response")
}
