// Package rssfeed pulls RSS/Atom feeds and converts their entries into
// raw mentions for the detection pipeline.
package rssfeed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vkuksa/trendwatch/internal/core/domain"
	"github.com/vkuksa/trendwatch/internal/platform/observability"
)

const (
	headerUserAgent  = "User-Agent"
	defaultUserAgent = "TrendWatch/1.0 (Trend Monitor)"
	defaultTimeout   = 30 * time.Second
	maxFeedBytes     = 5 * 1024 * 1024

	fetchStatusOK    = "ok"
	fetchStatusError = "error"

	logFieldFeed = "feed_url"

	errFmtFetchFeed = "fetch feed %s: %w"
	errFmtParseFeed = "parse feed %s: %w"
)

// Feed is one configured source.
type Feed struct {
	URL        string
	SourceType domain.SourceType
	SourceTier int
}

// Fetcher downloads configured feeds under a global rate limit plus a
// per-domain limit, so a many-feed deployment stays polite to each host.
type Fetcher struct {
	feeds          []Feed
	client         *http.Client
	parser         *gofeed.Parser
	globalLimiter  *rate.Limiter
	domainLimiters map[string]*rate.Limiter
	mu             sync.Mutex
	logger         zerolog.Logger
	now            func() time.Time
}

// New creates a fetcher over the given feeds. rps bounds total request
// rate across all feeds.
func New(feeds []Feed, rps float64, timeout time.Duration, logger zerolog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	if rps <= 0 {
		rps = 2
	}

	return &Fetcher{
		feeds:          feeds,
		client:         &http.Client{Timeout: timeout},
		parser:         gofeed.NewParser(),
		globalLimiter:  rate.NewLimiter(rate.Limit(rps), 5),
		domainLimiters: make(map[string]*rate.Limiter),
		logger:         logger,
		now:            time.Now,
	}
}

// FetchAll pulls every configured feed sequentially and returns the
// combined mentions. A failing feed is logged and skipped; one broken
// host never blanks the whole ingestion cycle.
func (f *Fetcher) FetchAll(ctx context.Context) []domain.RawMention {
	var mentions []domain.RawMention

	for _, feed := range f.feeds {
		batch, err := f.Fetch(ctx, feed)
		if err != nil {
			observability.FeedFetches.WithLabelValues(fetchStatusError).Inc()
			f.logger.Warn().Err(err).Str(logFieldFeed, feed.URL).Msg("feed fetch failed")

			continue
		}

		observability.FeedFetches.WithLabelValues(fetchStatusOK).Inc()
		mentions = append(mentions, batch...)
	}

	return mentions
}

// Fetch pulls a single feed and converts its items.
func (f *Fetcher) Fetch(ctx context.Context, feed Feed) ([]domain.RawMention, error) {
	if err := f.globalLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf(errFmtFetchFeed, feed.URL, err)
	}

	if err := f.domainLimiter(hostOf(feed.URL)).Wait(ctx); err != nil {
		return nil, fmt.Errorf(errFmtFetchFeed, feed.URL, err)
	}

	start := f.now()

	parsed, err := f.fetchFeed(ctx, feed.URL)

	observability.FeedFetchDurationSeconds.Observe(f.now().Sub(start).Seconds())

	if err != nil {
		return nil, err
	}

	mentions := make([]domain.RawMention, 0, len(parsed.Items))

	for _, item := range parsed.Items {
		if item.Link == "" || strings.TrimSpace(item.Title) == "" {
			continue
		}

		mentions = append(mentions, domain.RawMention{
			Title:        item.Title,
			URL:          item.Link,
			PublishedAt:  f.publishedAt(item),
			SourceDomain: hostOf(item.Link),
			SourceType:   feed.SourceType,
			SourceTier:   feed.SourceTier,
		})
	}

	return mentions, nil
}

func (f *Fetcher) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf(errFmtFetchFeed, feedURL, err)
	}

	req.Header.Set(headerUserAgent, defaultUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf(errFmtFetchFeed, feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed %s: status %d", feedURL, resp.StatusCode)
	}

	parsed, err := f.parser.Parse(http.MaxBytesReader(nil, resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf(errFmtParseFeed, feedURL, err)
	}

	return parsed, nil
}

// publishedAt resolves an item timestamp through a fallback chain:
// parsed published, parsed updated, lenient parse of the raw published
// string, then fetch time.
func (f *Fetcher) publishedAt(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}

	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}

	if item.Published != "" {
		if t, err := dateparse.ParseAny(item.Published); err == nil {
			return t
		}
	}

	return f.now()
}

func (f *Fetcher) domainLimiter(domain string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	if limiter, ok := f.domainLimiters[domain]; ok {
		return limiter
	}

	limiter := rate.NewLimiter(1, 2) // 1 req/sec per host
	f.domainLimiters[domain] = limiter

	return limiter
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	return strings.ToLower(strings.TrimPrefix(u.Host, "www."))
}
