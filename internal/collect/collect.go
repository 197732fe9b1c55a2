// Package collect gathers raw market documents and financial data from
// external providers ahead of synthesis.
package collect

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/resilience"
	"github.com/sells-group/market-intel/pkg/alphavantage"
	"github.com/sells-group/market-intel/pkg/fmp"
	"github.com/sells-group/market-intel/pkg/mediastack"
	"github.com/sells-group/market-intel/pkg/newsapi"
	"github.com/sells-group/market-intel/pkg/serpapi"
	"github.com/sells-group/market-intel/pkg/tavily"
)

const defaultConcurrency = 5

// ErrSearchNotConfigured reports a missing credential for the primary
// search provider. The orchestrator aborts the run when collection
// returns it; every other provider error degrades.
var ErrSearchNotConfigured = eris.New("collect: tavily search client not configured")

// symbolPattern matches the first plausible stock ticker in a query.
var symbolPattern = regexp.MustCompile(`\b([A-Z]{1,5})\b`)

// Config tunes the collection stage.
type Config struct {
	Concurrency  int     `yaml:"concurrency" mapstructure:"concurrency"`
	FetchRPS     float64 `yaml:"fetch_rps" mapstructure:"fetch_rps"`
	SkipArtifact bool    `yaml:"skip_artifacts" mapstructure:"skip_artifacts"`
}

// Clients groups the provider clients feeding the collection stage.
// Tavily is the only hard requirement; every other client may be nil
// and its provider is skipped.
type Clients struct {
	Tavily       tavily.Client
	SerpAPI      serpapi.Client
	NewsAPI      newsapi.Client
	MediaStack   mediastack.Client
	FMP          fmp.Client
	AlphaVantage alphavantage.Client
}

// Collector runs the data collection stage.
type Collector struct {
	clients Clients
	fetcher PageFetcher
	caller  *resilience.Caller
	cfg     Config
}

// NewCollector wires a Collector. Nil optional clients are skipped at
// run time; a nil caller gets a default retry-and-cache caller whose
// retry policy treats every provider error as retryable.
func NewCollector(clients Clients, fetcher PageFetcher, caller *resilience.Caller, cfg Config) *Collector {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if fetcher == nil {
		fetcher = NewFetcher(cfg.FetchRPS)
	}
	if caller == nil {
		retryAll := resilience.DefaultRetryConfig()
		retryAll.ShouldRetry = func(error) bool { return true }
		caller = resilience.NewCaller(resilience.WithRetryConfig(retryAll))
	}
	return &Collector{
		clients: clients,
		fetcher: fetcher,
		caller:  caller,
		cfg:     cfg,
	}
}

// Run executes the collection stage against state, populating
// CollectedDocuments and FinancialItems and writing the data-source
// artifacts into the run workspace. Only a missing search credential
// is fatal; provider failures degrade to empty results.
func (c *Collector) Run(ctx context.Context, state *model.RunState) error {
	if c.clients.Tavily == nil {
		return ErrSearchNotConfigured
	}
	log := zap.L().With(zap.String("run_id", state.RunID), zap.String("domain", state.Domain))

	term := state.QueryOrDomain()
	newsQuery := strings.TrimSpace(fmt.Sprintf("%s %s news trends developments emerging technologies", state.Query, state.Domain))
	competitorQuery := strings.TrimSpace(fmt.Sprintf("%s %s competitor landscape key players market share", state.Query, state.Domain))

	var (
		newsURLs       []string
		competitorURLs []string
		articles       []model.Document
		mediaItems     []model.Document
		financial      []model.FinancialRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	g.Go(func() error {
		newsURLs = c.searchURLs(gctx, newsQuery)
		return nil
	})
	g.Go(func() error {
		competitorURLs = c.searchURLs(gctx, competitorQuery)
		return nil
	})
	g.Go(func() error {
		articles = c.fetchNewsAPI(gctx, term)
		return nil
	})
	g.Go(func() error {
		mediaItems = c.fetchMediaStack(gctx, term)
		return nil
	})
	g.Go(func() error {
		financial = c.fetchFinancial(gctx, term)
		return nil
	})
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "collect: provider fan-out")
	}

	// Merge direct-fetch articles, keeping the first document per URL so a
	// story carried by both providers appears once.
	direct := make([]model.Document, 0, len(articles)+len(mediaItems))
	covered := make(map[string]bool, len(articles)+len(mediaItems))
	for _, doc := range append(articles, mediaItems...) {
		if doc.URL != "" {
			if covered[doc.URL] {
				continue
			}
			covered[doc.URL] = true
		}
		direct = append(direct, doc)
	}

	remaining := dedupeURLs(append(newsURLs, competitorURLs...), covered)
	log.Info("collect: search complete",
		zap.Int("direct_articles", len(direct)),
		zap.Int("urls_to_fetch", len(remaining)),
		zap.Int("financial_items", len(financial)))

	fetched := make([]model.Document, len(remaining))
	fg, fctx := errgroup.WithContext(ctx)
	fg.SetLimit(c.cfg.Concurrency)
	for i, link := range remaining {
		fg.Go(func() error {
			fetched[i] = c.fetcher.Fetch(fctx, link)
			return nil
		})
	}
	if err := fg.Wait(); err != nil {
		return eris.Wrap(err, "collect: page fetch")
	}

	state.CollectedDocuments = append(direct, fetched...)
	state.FinancialItems = financial

	if !c.cfg.SkipArtifact && state.OutputDir != "" {
		if err := writeArtifacts(state.OutputDir, state.Domain, state.CollectedDocuments); err != nil {
			log.Warn("collect: artifact write failed", zap.Error(err))
		}
	}
	log.Info("collect: stage complete", zap.Int("documents", len(state.CollectedDocuments)))
	return nil
}

// searchURLs asks each configured search provider for result URLs and
// unions their hits. Failures are logged and yield an empty
// contribution from the failing provider.
func (c *Collector) searchURLs(ctx context.Context, query string) []string {
	sig := resilience.Signature("tavily_search", query)
	resp, err := resilience.CallAs(ctx, c.caller, sig, func(ctx context.Context) (*tavily.SearchResponse, error) {
		return c.clients.Tavily.Search(ctx, tavily.SearchRequest{Query: query, SearchDepth: "advanced"})
	})
	var urls []string
	if err != nil {
		zap.L().Error("tavily search failed", zap.String("query", query), zap.Error(err))
	} else {
		for _, r := range resp.Results {
			if r.URL != "" {
				urls = append(urls, r.URL)
			}
		}
	}

	urls = append(urls, c.serpURLs(ctx, query)...)
	zap.L().Info("search returned urls", zap.String("query", query), zap.Int("count", len(urls)))
	return urls
}

// serpURLs asks SerpAPI for organic result links. A nil client yields
// nothing; failures are logged and degrade.
func (c *Collector) serpURLs(ctx context.Context, query string) []string {
	if c.clients.SerpAPI == nil {
		return nil
	}
	sig := resilience.Signature("serpapi_search", query)
	resp, err := resilience.CallAs(ctx, c.caller, sig, func(ctx context.Context) (*serpapi.SearchResponse, error) {
		return c.clients.SerpAPI.Search(ctx, serpapi.SearchRequest{Query: query})
	})
	if err != nil {
		zap.L().Error("serpapi search failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	urls := make([]string, 0, len(resp.OrganicResults))
	for _, r := range resp.OrganicResults {
		if r.Link != "" {
			urls = append(urls, r.Link)
		}
	}
	return urls
}

func (c *Collector) fetchNewsAPI(ctx context.Context, query string) []model.Document {
	if c.clients.NewsAPI == nil {
		return nil
	}
	sig := resilience.Signature("newsapi_everything", query)
	resp, err := resilience.CallAs(ctx, c.caller, sig, func(ctx context.Context) (*newsapi.EverythingResponse, error) {
		return c.clients.NewsAPI.Everything(ctx, newsapi.EverythingRequest{Query: query})
	})
	if err != nil {
		zap.L().Error("newsapi fetch failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	docs := make([]model.Document, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		docs = append(docs, model.Document{
			Source:   "NewsAPI: " + a.Source.Name,
			Title:    a.Title,
			Summary:  a.Description,
			FullText: a.Content,
			URL:      a.URL,
		})
	}
	return docs
}

func (c *Collector) fetchMediaStack(ctx context.Context, query string) []model.Document {
	if c.clients.MediaStack == nil {
		return nil
	}
	sig := resilience.Signature("mediastack_news", query)
	resp, err := resilience.CallAs(ctx, c.caller, sig, func(ctx context.Context) (*mediastack.NewsResponse, error) {
		return c.clients.MediaStack.News(ctx, mediastack.NewsRequest{Keywords: query})
	})
	if err != nil {
		zap.L().Error("mediastack fetch failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	docs := make([]model.Document, 0, len(resp.Data))
	for _, item := range resp.Data {
		docs = append(docs, model.Document{
			Source:  "MediaStack: " + item.Source,
			Title:   item.Title,
			Summary: item.Description,
			URL:     item.URL,
		})
	}
	return docs
}

// fetchFinancial pulls financial data for the first ticker-like token
// in the query, if any, from each configured financial provider.
func (c *Collector) fetchFinancial(ctx context.Context, query string) []model.FinancialRecord {
	if c.clients.FMP == nil && c.clients.AlphaVantage == nil {
		return nil
	}
	symbol := ExtractSymbol(query)
	if symbol == "" {
		zap.L().Warn("no stock symbol found in query, skipping financial data", zap.String("query", query))
		return nil
	}

	records := c.fetchFMP(ctx, symbol)
	return append(records, c.fetchAlphaVantage(ctx, symbol)...)
}

func (c *Collector) fetchFMP(ctx context.Context, symbol string) []model.FinancialRecord {
	if c.clients.FMP == nil {
		return nil
	}

	var records []model.FinancialRecord
	profileSig := resilience.Signature("fmp_profile", symbol)
	profile, err := resilience.CallAs(ctx, c.caller, profileSig, func(ctx context.Context) (*fmp.CompanyProfile, error) {
		return c.clients.FMP.Profile(ctx, symbol)
	})
	if err != nil {
		zap.L().Error("fmp profile fetch failed", zap.String("symbol", symbol), zap.Error(err))
	} else if profile != nil {
		records = append(records, model.FinancialRecord{
			Provider: "FMP",
			Kind:     "company_profile",
			Symbol:   symbol,
			Data: map[string]any{
				"companyName": profile.CompanyName,
				"industry":    profile.Industry,
				"sector":      profile.Sector,
				"mktCap":      profile.MarketCap,
				"price":       profile.Price,
				"description": profile.Description,
				"website":     profile.Website,
			},
		})
	}

	quoteSig := resilience.Signature("fmp_quote", symbol)
	quote, err := resilience.CallAs(ctx, c.caller, quoteSig, func(ctx context.Context) (*fmp.Quote, error) {
		return c.clients.FMP.Quote(ctx, symbol)
	})
	if err != nil {
		zap.L().Error("fmp quote fetch failed", zap.String("symbol", symbol), zap.Error(err))
	} else if quote != nil {
		records = append(records, model.FinancialRecord{
			Provider: "FMP",
			Kind:     "stock_quote",
			Symbol:   symbol,
			Data: map[string]any{
				"name":              quote.Name,
				"price":             quote.Price,
				"changesPercentage": quote.ChangePercentage,
				"volume":            quote.Volume,
				"marketCap":         quote.MarketCap,
			},
		})
	}
	return records
}

func (c *Collector) fetchAlphaVantage(ctx context.Context, symbol string) []model.FinancialRecord {
	if c.clients.AlphaVantage == nil {
		return nil
	}

	var records []model.FinancialRecord
	dailySig := resilience.Signature("alphavantage_daily", symbol)
	daily, err := resilience.CallAs(ctx, c.caller, dailySig, func(ctx context.Context) (*alphavantage.DailyQuote, error) {
		return c.clients.AlphaVantage.LatestDaily(ctx, symbol)
	})
	if err != nil {
		zap.L().Error("alphavantage daily fetch failed", zap.String("symbol", symbol), zap.Error(err))
	} else if daily != nil {
		records = append(records, model.FinancialRecord{
			Provider: "AlphaVantage",
			Kind:     "daily_time_series_latest",
			Symbol:   symbol,
			Data: map[string]any{
				"date":   daily.Date,
				"open":   daily.Open,
				"high":   daily.High,
				"low":    daily.Low,
				"close":  daily.Close,
				"volume": daily.Volume,
			},
		})
	}

	overviewSig := resilience.Signature("alphavantage_overview", symbol)
	overview, err := resilience.CallAs(ctx, c.caller, overviewSig, func(ctx context.Context) (map[string]string, error) {
		return c.clients.AlphaVantage.CompanyOverview(ctx, symbol)
	})
	if err != nil {
		zap.L().Error("alphavantage overview fetch failed", zap.String("symbol", symbol), zap.Error(err))
	} else if len(overview) > 0 {
		data := make(map[string]any, len(overview))
		for k, v := range overview {
			data[k] = v
		}
		records = append(records, model.FinancialRecord{
			Provider: "AlphaVantage",
			Kind:     "company_overview",
			Symbol:   symbol,
			Data:     data,
		})
	}
	return records
}

// ExtractSymbol returns the first all-caps token of one to five
// letters in s, or "" when none is present.
func ExtractSymbol(s string) string {
	match := symbolPattern.FindStringSubmatch(s)
	if match == nil {
		return ""
	}
	return match[1]
}

// dedupeURLs drops duplicates and already-covered URLs, returning the
// rest in sorted order so repeated runs process pages deterministically.
func dedupeURLs(urls []string, covered map[string]bool) []string {
	seen := make(map[string]bool, len(urls))
	var out []string
	for _, u := range urls {
		if u == "" || seen[u] || covered[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
