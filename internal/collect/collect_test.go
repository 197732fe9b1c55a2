package collect

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/resilience"
	"github.com/sells-group/market-intel/pkg/alphavantage"
	"github.com/sells-group/market-intel/pkg/fmp"
	"github.com/sells-group/market-intel/pkg/mediastack"
	"github.com/sells-group/market-intel/pkg/newsapi"
	"github.com/sells-group/market-intel/pkg/serpapi"
	"github.com/sells-group/market-intel/pkg/tavily"
)

type stubTavily struct {
	results map[string][]tavily.Result
	err     error
	calls   atomic.Int32

	mu     sync.Mutex
	depths []string
}

func (s *stubTavily) Search(_ context.Context, req tavily.SearchRequest) (*tavily.SearchResponse, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.depths = append(s.depths, req.SearchDepth)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &tavily.SearchResponse{Query: req.Query, Results: s.results[req.Query]}, nil
}

type stubSerp struct {
	results map[string][]serpapi.OrganicResult
	err     error
}

func (s *stubSerp) Search(_ context.Context, req serpapi.SearchRequest) (*serpapi.SearchResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &serpapi.SearchResponse{OrganicResults: s.results[req.Query]}, nil
}

type stubAlpha struct {
	daily    *alphavantage.DailyQuote
	overview map[string]string
	err      error
}

func (s *stubAlpha) LatestDaily(context.Context, string) (*alphavantage.DailyQuote, error) {
	return s.daily, s.err
}

func (s *stubAlpha) CompanyOverview(context.Context, string) (map[string]string, error) {
	return s.overview, s.err
}

type stubNews struct {
	articles []newsapi.Article
	err      error
}

func (s *stubNews) Everything(context.Context, newsapi.EverythingRequest) (*newsapi.EverythingResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &newsapi.EverythingResponse{Status: "ok", Articles: s.articles}, nil
}

type stubMedia struct {
	items []mediastack.Item
}

func (s *stubMedia) News(context.Context, mediastack.NewsRequest) (*mediastack.NewsResponse, error) {
	return &mediastack.NewsResponse{Data: s.items}, nil
}

type stubFMP struct {
	profile *fmp.CompanyProfile
	quote   *fmp.Quote
	err     error
}

func (s *stubFMP) Profile(context.Context, string) (*fmp.CompanyProfile, error) {
	return s.profile, s.err
}

func (s *stubFMP) Quote(context.Context, string) (*fmp.Quote, error) {
	return s.quote, s.err
}

type stubFetcher struct {
	mu      sync.Mutex
	fetched []string
}

func (s *stubFetcher) Fetch(_ context.Context, link string) model.Document {
	s.mu.Lock()
	s.fetched = append(s.fetched, link)
	s.mu.Unlock()
	return model.Document{Source: link, Title: "Page " + link, Summary: "body", FullText: "body text", URL: link}
}

func fastCaller() *resilience.Caller {
	cfg := resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
		ShouldRetry:    func(error) bool { return true },
	}
	return resilience.NewCaller(resilience.WithRetryConfig(cfg))
}

func testState(t *testing.T, query string) *model.RunState {
	t.Helper()
	state, err := model.NewRunState("Technology", query, "")
	require.NoError(t, err)
	state.OutputDir = t.TempDir()
	return state
}

func TestExtractSymbol(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
	}{
		{"AAPL stock outlook", "AAPL"},
		{"compare MSFT and GOOG", "MSFT"},
		{"cloud infrastructure trends", ""},
		{"the IPO market", "IPO"},
		{"TOOLONG ticker", ""},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ExtractSymbol(tc.in), tc.in)
	}
}

func TestDedupeURLs(t *testing.T) {
	t.Parallel()
	urls := []string{
		"https://b.example.com",
		"https://a.example.com",
		"https://b.example.com",
		"",
		"https://c.example.com",
	}
	covered := map[string]bool{"https://c.example.com": true}

	got := dedupeURLs(urls, covered)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, got)

	// Same input in a different order yields the same output.
	again := dedupeURLs([]string{"https://a.example.com", "https://c.example.com", "https://b.example.com"}, covered)
	assert.Equal(t, got, again)
}

func TestCollectorRun(t *testing.T) {
	state := testState(t, "AAPL market")

	newsQuery := "AAPL market Technology news trends developments emerging technologies"
	compQuery := "AAPL market Technology competitor landscape key players market share"
	tv := &stubTavily{results: map[string][]tavily.Result{
		newsQuery: {
			{Title: "One", URL: "https://news.example.com/one"},
			{Title: "Two", URL: "https://news.example.com/two"},
		},
		compQuery: {
			{Title: "Two", URL: "https://news.example.com/two"},
			{Title: "Direct", URL: "https://direct.example.com/story"},
		},
	}}
	news := &stubNews{articles: []newsapi.Article{{
		Source:      newsapi.Source{Name: "Wire"},
		Title:       "Direct story",
		Description: "desc",
		Content:     "content",
		URL:         "https://direct.example.com/story",
	}}}
	media := &stubMedia{items: []mediastack.Item{{
		Title: "Media story", Description: "md", URL: "https://media.example.com/item", Source: "ms",
	}}}
	fin := &stubFMP{
		profile: &fmp.CompanyProfile{Symbol: "AAPL", CompanyName: "Apple Inc."},
		quote:   &fmp.Quote{Symbol: "AAPL", Price: 190.5},
	}
	fetcher := &stubFetcher{}

	c := NewCollector(Clients{Tavily: tv, NewsAPI: news, MediaStack: media, FMP: fin}, fetcher, fastCaller(), Config{})
	require.NoError(t, c.Run(context.Background(), state))

	require.Len(t, tv.depths, 2)
	for _, depth := range tv.depths {
		assert.Equal(t, "advanced", depth)
	}

	// Direct articles first, then the fetched pages in sorted URL order.
	require.Len(t, state.CollectedDocuments, 4)
	assert.Equal(t, "Direct story", state.CollectedDocuments[0].Title)
	assert.Equal(t, "Media story", state.CollectedDocuments[1].Title)
	assert.Equal(t, "https://news.example.com/one", state.CollectedDocuments[2].URL)
	assert.Equal(t, "https://news.example.com/two", state.CollectedDocuments[3].URL)
	assert.ElementsMatch(t,
		[]string{"https://news.example.com/one", "https://news.example.com/two"},
		fetcher.fetched)

	require.Len(t, state.FinancialItems, 2)
	assert.Equal(t, "company_profile", state.FinancialItems[0].Kind)
	assert.Equal(t, "AAPL", state.FinancialItems[0].Symbol)
	assert.Equal(t, "stock_quote", state.FinancialItems[1].Kind)

	for _, name := range []string{
		"technology_data_sources.json",
		"technology_data_sources.csv",
		"technology_data_sources.xlsx",
	} {
		_, err := os.Stat(filepath.Join(state.OutputDir, name))
		assert.NoError(t, err, name)
	}

	data, err := os.ReadFile(filepath.Join(state.OutputDir, "technology_data_sources.json"))
	require.NoError(t, err)
	var docs []model.Document
	require.NoError(t, json.Unmarshal(data, &docs))
	assert.Len(t, docs, 4)
}

func TestCollectorRunRequiresSearchClient(t *testing.T) {
	t.Parallel()
	state := testState(t, "")
	c := NewCollector(Clients{}, &stubFetcher{}, fastCaller(), Config{})
	err := c.Run(context.Background(), state)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSearchNotConfigured)
}

func TestCollectorRunDegradesOnProviderFailure(t *testing.T) {
	state := testState(t, "fintech")

	tv := &stubTavily{err: eris.New("search down")}
	news := &stubNews{err: eris.New("news down")}
	c := NewCollector(Clients{Tavily: tv, NewsAPI: news}, &stubFetcher{}, fastCaller(), Config{})

	require.NoError(t, c.Run(context.Background(), state))
	assert.Empty(t, state.CollectedDocuments)
	assert.Empty(t, state.FinancialItems)
	// Both query variants were attempted, with retries.
	assert.GreaterOrEqual(t, tv.calls.Load(), int32(2))
}

func TestCollectorRunDedupesDirectProviders(t *testing.T) {
	state := testState(t, "shared story")

	shared := "https://direct.example.com/shared"
	tv := &stubTavily{results: map[string][]tavily.Result{}}
	news := &stubNews{articles: []newsapi.Article{{
		Source: newsapi.Source{Name: "Wire"}, Title: "From NewsAPI", URL: shared,
	}}}
	media := &stubMedia{items: []mediastack.Item{
		{Title: "From MediaStack", URL: shared, Source: "ms"},
		{Title: "Unique", URL: "https://media.example.com/unique", Source: "ms"},
	}}
	c := NewCollector(Clients{Tavily: tv, NewsAPI: news, MediaStack: media}, &stubFetcher{}, fastCaller(), Config{})

	require.NoError(t, c.Run(context.Background(), state))
	require.Len(t, state.CollectedDocuments, 2)
	assert.Equal(t, "From NewsAPI", state.CollectedDocuments[0].Title)
	assert.Equal(t, "Unique", state.CollectedDocuments[1].Title)
}

func TestCollectorRunMergesSerpResults(t *testing.T) {
	state := testState(t, "ai chips")

	newsQuery := "ai chips Technology news trends developments emerging technologies"
	compQuery := "ai chips Technology competitor landscape key players market share"
	tv := &stubTavily{results: map[string][]tavily.Result{
		newsQuery: {{Title: "Tavily hit", URL: "https://news.example.com/tavily"}},
	}}
	serp := &stubSerp{results: map[string][]serpapi.OrganicResult{
		newsQuery: {
			{Title: "Serp hit", Link: "https://news.example.com/serp"},
			{Title: "Overlap", Link: "https://news.example.com/tavily"},
		},
		compQuery: {{Title: "Rival", Link: "https://news.example.com/rival"}},
	}}
	fetcher := &stubFetcher{}
	c := NewCollector(Clients{Tavily: tv, SerpAPI: serp}, fetcher, fastCaller(), Config{})

	require.NoError(t, c.Run(context.Background(), state))
	assert.ElementsMatch(t,
		[]string{"https://news.example.com/tavily", "https://news.example.com/serp", "https://news.example.com/rival"},
		fetcher.fetched)
}

func TestCollectorRunSerpFailureDegrades(t *testing.T) {
	state := testState(t, "ai chips")

	tv := &stubTavily{results: map[string][]tavily.Result{}}
	serp := &stubSerp{err: eris.New("serp down")}
	c := NewCollector(Clients{Tavily: tv, SerpAPI: serp}, &stubFetcher{}, fastCaller(), Config{})

	require.NoError(t, c.Run(context.Background(), state))
	assert.Empty(t, state.CollectedDocuments)
}

func TestCollectorRunAlphaVantageRecords(t *testing.T) {
	state := testState(t, "TSLA outlook")

	tv := &stubTavily{results: map[string][]tavily.Result{}}
	alpha := &stubAlpha{
		daily:    &alphavantage.DailyQuote{Symbol: "TSLA", Date: "2026-08-28", Close: "234.75"},
		overview: map[string]string{"Name": "Tesla Inc", "Sector": "CONSUMER CYCLICAL"},
	}
	fin := &stubFMP{quote: &fmp.Quote{Symbol: "TSLA", Price: 234.75}}
	c := NewCollector(Clients{Tavily: tv, FMP: fin, AlphaVantage: alpha}, &stubFetcher{}, fastCaller(), Config{})

	require.NoError(t, c.Run(context.Background(), state))
	require.Len(t, state.FinancialItems, 3)

	// FMP records precede Alpha Vantage records.
	assert.Equal(t, "stock_quote", state.FinancialItems[0].Kind)
	assert.Equal(t, "daily_time_series_latest", state.FinancialItems[1].Kind)
	assert.Equal(t, "AlphaVantage", state.FinancialItems[1].Provider)
	assert.Equal(t, "234.75", state.FinancialItems[1].Data["close"])
	assert.Equal(t, "company_overview", state.FinancialItems[2].Kind)
	assert.Equal(t, "Tesla Inc", state.FinancialItems[2].Data["Name"])
}

func TestCollectorRunSkipsFinancialWithoutSymbol(t *testing.T) {
	state := testState(t, "renewable energy storage")

	tv := &stubTavily{results: map[string][]tavily.Result{}}
	fin := &stubFMP{err: eris.New("should not be called")}
	c := NewCollector(Clients{Tavily: tv, FMP: fin}, &stubFetcher{}, fastCaller(), Config{})

	require.NoError(t, c.Run(context.Background(), state))
	assert.Empty(t, state.FinancialItems)
}
