package normalizer

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/vkuksa/trendwatch/internal/core/domain"
	apperrors "github.com/vkuksa/trendwatch/internal/core/errors"
)

const testErrCanonicalize = "CanonicalizeURL(%q) error = %v"

func TestCanonicalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips utm parameters",
			in:   "https://example.com/story?utm_source=tw&utm_medium=social&id=5",
			want: "https://example.com/story?id=5",
		},
		{
			name: "strips fbclid and ref",
			in:   "https://example.com/story?fbclid=abc&ref=home",
			want: "https://example.com/story",
		},
		{
			name: "lowercases host and drops www",
			in:   "HTTP://WWW.Example.COM/Story",
			want: "https://example.com/Story",
		},
		{
			name: "drops trailing slash",
			in:   "https://example.com/story/",
			want: "https://example.com/story",
		},
		{
			name: "sorts surviving query parameters",
			in:   "https://example.com/s?b=2&a=1",
			want: "https://example.com/s?a=1&b=2",
		},
		{
			name: "drops fragment",
			in:   "https://example.com/story#comments",
			want: "https://example.com/story",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalizeURL(tt.in)
			if err != nil {
				t.Fatalf(testErrCanonicalize, tt.in, err)
			}

			if got != tt.want {
				t.Errorf("CanonicalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestContentHashStableUnderURLVariation(t *testing.T) {
	published := time.Date(2025, 6, 1, 14, 22, 0, 0, time.UTC)

	variants := []string{
		"https://www.example.com/story?utm_source=rss",
		"http://example.com/story/",
		"https://example.com/story?fbclid=xyz",
	}

	var hashes []string

	for _, v := range variants {
		canonical, err := CanonicalizeURL(v)
		if err != nil {
			t.Fatalf(testErrCanonicalize, v, err)
		}

		hashes = append(hashes, ContentHash("Senate Passes Bill", canonical, published, "example.com"))
	}

	for i := 1; i < len(hashes); i++ {
		if hashes[i] != hashes[0] {
			t.Errorf("hash for variant %d = %s, want %s", i, hashes[i], hashes[0])
		}
	}
}

func TestContentHashDiffersAcrossSources(t *testing.T) {
	published := time.Now()

	a := ContentHash("Title", "https://example.com/a", published, "example.com")
	b := ContentHash("Title", "https://example.com/a", published, "other.com")

	if a == b {
		t.Errorf("expected distinct hashes for distinct source domains")
	}
}

func TestNormalizeMalformedInput(t *testing.T) {
	n := New()

	tests := []struct {
		name string
		raw  domain.RawMention
	}{
		{
			name: "empty title",
			raw:  domain.RawMention{Title: "   ", URL: "https://example.com/a"},
		},
		{
			name: "entity-only title collapsing to empty",
			raw:  domain.RawMention{Title: "\x00\x01", URL: "https://example.com/a"},
		},
		{
			name: "empty url",
			raw:  domain.RawMention{Title: "Headline", URL: ""},
		},
		{
			name: "url without host",
			raw:  domain.RawMention{Title: "Headline", URL: "/relative/path"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := n.Normalize(tt.raw); !apperrors.Is(err, apperrors.ErrMalformedInput) {
				t.Errorf("Normalize() error = %v, want ErrMalformedInput", err)
			}
		})
	}
}

func TestNormalizePrefersCanonicalForRedirectWrappers(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	n := NewWithClock(func() time.Time { return fixed })

	mention, err := n.Normalize(domain.RawMention{
		Title:        "EU Proposes Tariff Review",
		URL:          "https://news.google.com/rss/articles/abc123",
		CanonicalURL: "https://reuters.com/world/eu-tariff-review",
		SourceDomain: "reuters.com",
		SourceType:   domain.SourceNews,
		SourceTier:   1,
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if mention.CanonicalURL != "https://reuters.com/world/eu-tariff-review" {
		t.Errorf("CanonicalURL = %q, want canonical target", mention.CanonicalURL)
	}

	if !mention.DiscoveredAt.Equal(fixed) {
		t.Errorf("DiscoveredAt = %v, want injected clock time", mention.DiscoveredAt)
	}
}

func TestNormalizeKeepsWrapperWithoutCanonical(t *testing.T) {
	n := New()

	mention, err := n.Normalize(domain.RawMention{
		Title:      "Some Story",
		URL:        "https://news.google.com/rss/articles/abc123",
		SourceType: domain.SourceNews,
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if mention.CanonicalURL != "https://news.google.com/rss/articles/abc123" {
		t.Errorf("CanonicalURL = %q, want wrapper url fallback", mention.CanonicalURL)
	}

	if mention.SourceDomain != "news.google.com" {
		t.Errorf("SourceDomain = %q, want derived from url", mention.SourceDomain)
	}
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "decodes html entities",
			in:   "Senate &amp; House Pass Bill",
			want: "Senate & House Pass Bill",
		},
		{
			name: "strips control characters",
			in:   "Breaking\x00 News\a",
			want: "Breaking News",
		},
		{
			name: "collapses whitespace",
			in:   "  A   B\t\nC  ",
			want: "A B C",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeText(tt.in); got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeClampsSourceTier(t *testing.T) {
	n := New()

	mention, err := n.Normalize(domain.RawMention{
		Title:      "Headline",
		URL:        "https://example.com/a",
		SourceTier: 9,
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if mention.SourceTier != 3 {
		t.Errorf("SourceTier = %d, want clamped to 3", mention.SourceTier)
	}
}

func TestNormalizeTruncatesOnRuneBoundary(t *testing.T) {
	n := New()

	// 499 ASCII bytes followed by a 3-byte rune straddling the headline
	// byte limit.
	title := strings.Repeat("a", 499) + "€ and more"

	mention, err := n.Normalize(domain.RawMention{
		Title: title,
		URL:   "https://example.com/long-headline",
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if !utf8.ValidString(mention.Headline) {
		t.Errorf("Headline %q is not valid UTF-8", mention.Headline)
	}

	if strings.ContainsRune(mention.Headline, '€') {
		t.Errorf("Headline kept a rune past the length limit: %q", mention.Headline)
	}
}
