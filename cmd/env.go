package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-intel/internal/chat"
	"github.com/sells-group/market-intel/internal/collect"
	"github.com/sells-group/market-intel/internal/index"
	"github.com/sells-group/market-intel/internal/pipeline"
	"github.com/sells-group/market-intel/internal/report"
	"github.com/sells-group/market-intel/internal/resilience"
	"github.com/sells-group/market-intel/internal/store"
	"github.com/sells-group/market-intel/internal/synthesis"
	"github.com/sells-group/market-intel/pkg/alphavantage"
	anthropicpkg "github.com/sells-group/market-intel/pkg/anthropic"
	"github.com/sells-group/market-intel/pkg/fmp"
	"github.com/sells-group/market-intel/pkg/mediastack"
	"github.com/sells-group/market-intel/pkg/newsapi"
	"github.com/sells-group/market-intel/pkg/serpapi"
	"github.com/sells-group/market-intel/pkg/tavily"
)

// appEnv bundles the wired services behind the commands.
type appEnv struct {
	store    store.Store
	pipeline *pipeline.Pipeline
	chat     *chat.Service
}

func (e *appEnv) Close() {
	if e.store != nil {
		_ = e.store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "market_intel.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv wires the full pipeline environment from configuration.
// Providers without credentials are left unset; the stages degrade.
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	// External provider calls retry on any error, matching the
	// all-or-nothing posture of the upstream APIs.
	retryAll := resilience.DefaultRetryConfig()
	retryAll.ShouldRetry = func(error) bool { return true }
	caller := resilience.NewCaller(
		resilience.WithRetryConfig(retryAll),
		resilience.WithCache(cfg.Cache.Size, time.Duration(cfg.Cache.TTLSecs)*time.Second),
	)

	var tavilyClient tavily.Client
	if cfg.Tavily.Key != "" {
		var opts []tavily.Option
		if cfg.Tavily.BaseURL != "" {
			opts = append(opts, tavily.WithBaseURL(cfg.Tavily.BaseURL))
		}
		tavilyClient = tavily.NewClient(cfg.Tavily.Key, opts...)
	}
	var serpClient serpapi.Client
	if cfg.SerpAPI.Key != "" {
		var opts []serpapi.Option
		if cfg.SerpAPI.BaseURL != "" {
			opts = append(opts, serpapi.WithBaseURL(cfg.SerpAPI.BaseURL))
		}
		serpClient = serpapi.NewClient(cfg.SerpAPI.Key, opts...)
	}
	var newsClient newsapi.Client
	if cfg.NewsAPI.Key != "" {
		var opts []newsapi.Option
		if cfg.NewsAPI.BaseURL != "" {
			opts = append(opts, newsapi.WithBaseURL(cfg.NewsAPI.BaseURL))
		}
		newsClient = newsapi.NewClient(cfg.NewsAPI.Key, opts...)
	}
	var mediaClient mediastack.Client
	if cfg.MediaStack.Key != "" {
		var opts []mediastack.Option
		if cfg.MediaStack.BaseURL != "" {
			opts = append(opts, mediastack.WithBaseURL(cfg.MediaStack.BaseURL))
		}
		mediaClient = mediastack.NewClient(cfg.MediaStack.Key, opts...)
	}
	var fmpClient fmp.Client
	if cfg.FMP.Key != "" {
		var opts []fmp.Option
		if cfg.FMP.BaseURL != "" {
			opts = append(opts, fmp.WithBaseURL(cfg.FMP.BaseURL))
		}
		fmpClient = fmp.NewClient(cfg.FMP.Key, opts...)
	}
	var alphaClient alphavantage.Client
	if cfg.AlphaVantage.Key != "" {
		var opts []alphavantage.Option
		if cfg.AlphaVantage.BaseURL != "" {
			opts = append(opts, alphavantage.WithBaseURL(cfg.AlphaVantage.BaseURL))
		}
		alphaClient = alphavantage.NewClient(cfg.AlphaVantage.Key, opts...)
	}

	var aiClient anthropicpkg.Client
	var completer synthesis.Completer
	if cfg.Anthropic.Key != "" {
		aiClient = anthropicpkg.NewClient(cfg.Anthropic.Key)
		completer = synthesis.NewModelCompleter(aiClient, cfg.Anthropic.Model)
	}

	collector := collect.NewCollector(collect.Clients{
		Tavily:       tavilyClient,
		SerpAPI:      serpClient,
		NewsAPI:      newsClient,
		MediaStack:   mediaClient,
		FMP:          fmpClient,
		AlphaVantage: alphaClient,
	}, nil, caller, cfg.Collect)
	registry := index.NewRegistry()

	p := pipeline.New(
		cfg.Pipeline,
		st,
		collector,
		synthesis.New(completer),
		registry,
		index.NewAnswerer(registry, completer),
		report.NewReporter(completer),
	)

	return &appEnv{
		store:    st,
		pipeline: p,
		chat:     chat.NewService(st, aiClient, cfg.Anthropic.Model),
	}, nil
}
