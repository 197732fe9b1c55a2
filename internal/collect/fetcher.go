package collect

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/market-intel/internal/model"
)

const (
	summaryLimit = 1000
	maxPageBody  = 2 << 20
	fetchTimeout = 20 * time.Second
)

var blankLines = regexp.MustCompile(`\n\s*\n`)

// PageFetcher resolves a URL into a readable document.
type PageFetcher interface {
	Fetch(ctx context.Context, link string) model.Document
}

// Fetcher downloads a page over plain HTTP and extracts the readable
// article text. Failures never propagate as errors: the returned
// document records what went wrong instead, so one dead link cannot
// sink a collection run.
type Fetcher struct {
	http    *http.Client
	limiter *rate.Limiter
}

// NewFetcher returns a Fetcher throttled to rps requests per second.
func NewFetcher(rps float64) *Fetcher {
	if rps <= 0 {
		rps = 2
	}
	return &Fetcher{
		http: &http.Client{
			Timeout: fetchTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Fetch downloads link and extracts its readable content.
func (f *Fetcher) Fetch(ctx context.Context, link string) model.Document {
	if err := f.limiter.Wait(ctx); err != nil {
		return failedDoc(link, err)
	}
	parsed, err := url.Parse(link)
	if err != nil {
		return failedDoc(link, eris.Wrap(err, "fetch page: parse url"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return failedDoc(link, eris.Wrap(err, "fetch page: build request"))
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.http.Do(req)
	if err != nil {
		return failedDoc(link, eris.Wrap(err, "fetch page: request"))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return failedDoc(link, eris.Errorf("fetch page: unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBody))
	if err != nil {
		return failedDoc(link, eris.Wrap(err, "fetch page: read body"))
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), parsed)
	if err != nil {
		return failedDoc(link, eris.Wrap(err, "fetch page: extract content"))
	}

	text := strings.TrimSpace(blankLines.ReplaceAllString(article.TextContent, "\n\n"))
	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = baseName(link)
	}
	if title == "" {
		title = "Untitled Document"
	}
	return model.Document{
		Source:   link,
		Title:    title,
		Summary:  truncateRunes(text, summaryLimit),
		FullText: text,
		URL:      link,
	}
}

func failedDoc(link string, err error) model.Document {
	zap.L().Warn("page fetch failed", zap.String("url", link), zap.Error(err))
	return model.Document{
		Source:  link,
		Title:   "Failed to Load: " + baseName(link),
		Summary: err.Error(),
		URL:     link,
	}
}

func baseName(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return link
	}
	base := path.Base(parsed.Path)
	if base == "." || base == "/" {
		return parsed.Host
	}
	return base
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
