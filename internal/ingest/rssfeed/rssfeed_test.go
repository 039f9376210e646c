package rssfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vkuksa/trendwatch/internal/core/domain"
)

const testFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
	<title>Policy Wire</title>
	<item>
		<title>EU Announces Tariff Review</title>
		<link>https://www.policywire.example.com/eu-tariff-review</link>
		<pubDate>Mon, 02 Mar 2026 09:30:00 GMT</pubDate>
	</item>
	<item>
		<title></title>
		<link>https://policywire.example.com/untitled</link>
	</item>
	<item>
		<title>Senate Passes Budget Amendment</title>
		<link>https://policywire.example.com/senate-budget</link>
	</item>
</channel>
</rss>`

func testFetcher(feeds []Feed) *Fetcher {
	return New(feeds, 100, time.Second, zerolog.Nop())
}

func TestFetch_ConvertsItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(testFeedXML))
	}))
	defer srv.Close()

	feed := Feed{URL: srv.URL, SourceType: domain.SourceNews, SourceTier: 1}

	mentions, err := testFetcher([]Feed{feed}).Fetch(context.Background(), feed)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if len(mentions) != 2 {
		t.Fatalf("got %d mentions, want 2 (untitled item dropped)", len(mentions))
	}

	first := mentions[0]

	if first.Title != "EU Announces Tariff Review" {
		t.Errorf("Title = %q", first.Title)
	}

	if first.SourceDomain != "policywire.example.com" {
		t.Errorf("SourceDomain = %q, want www-stripped host", first.SourceDomain)
	}

	if first.SourceType != domain.SourceNews {
		t.Errorf("SourceType = %q", first.SourceType)
	}

	want := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	if !first.PublishedAt.Equal(want) {
		t.Errorf("PublishedAt = %v, want %v", first.PublishedAt, want)
	}

	// Item without a date falls back to fetch time.
	if mentions[1].PublishedAt.IsZero() {
		t.Error("missing pubDate should fall back to fetch time, got zero")
	}
}

func TestFetchAll_SkipsFailingFeed(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testFeedXML))
	}))
	defer good.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	fetcher := testFetcher([]Feed{
		{URL: bad.URL, SourceType: domain.SourceNews},
		{URL: good.URL, SourceType: domain.SourceNews},
	})

	mentions := fetcher.FetchAll(context.Background())

	if len(mentions) != 2 {
		t.Fatalf("got %d mentions, want 2 from the healthy feed", len(mentions))
	}
}

func TestFetch_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	feed := Feed{URL: srv.URL, SourceType: domain.SourceNews}

	if _, err := testFetcher([]Feed{feed}).Fetch(context.Background(), feed); err == nil {
		t.Error("expected error for non-200 feed response")
	}
}
