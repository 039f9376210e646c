// Package normalizer canonicalizes raw evidence items into uniform Mention
// records: URL canonicalization, content hashing, and text cleaning. It is
// the boundary between ingestion connectors and the detection pipeline.
package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/vkuksa/trendwatch/internal/core/domain"
	apperrors "github.com/vkuksa/trendwatch/internal/core/errors"
)

const (
	wwwPrefix      = "www."
	maxHeadlineLen = 500
)

// trackingParams are query parameters stripped during URL canonicalization.
// Prefix entries (ending in *) match any parameter with that prefix.
var trackingParams = map[string]struct{}{
	"ref":        {},
	"fbclid":     {},
	"gclid":      {},
	"igshid":     {},
	"mc_cid":     {},
	"mc_eid":     {},
	"cmpid":      {},
	"ocid":       {},
	"smid":       {},
	"partner":    {},
	"source":     {},
	"ito":        {},
	"share_type": {},
}

// redirectWrapperDomains are aggregator hosts whose URLs wrap the real
// article URL. When the raw payload carries a canonical link we prefer it;
// otherwise the wrapper URL is kept as-is.
var redirectWrapperDomains = map[string]struct{}{
	"news.google.com":      {},
	"feedproxy.google.com": {},
	"t.co":                 {},
	"lnkd.in":              {},
	"apple.news":           {},
}

// Normalizer converts RawMention payloads into canonical Mentions. It is
// stateless and safe for concurrent use.
type Normalizer struct {
	now func() time.Time
}

// New creates a Normalizer using the wall clock for DiscoveredAt.
func New() *Normalizer {
	return &Normalizer{now: time.Now}
}

// NewWithClock creates a Normalizer with an injected clock for tests.
func NewWithClock(now func() time.Time) *Normalizer {
	return &Normalizer{now: now}
}

// Normalize canonicalizes a raw mention. It is a pure function over the
// input plus the clock: no side effects beyond the return value.
// Returns ErrMalformedInput when the title or URL is empty after
// sanitization; callers should drop such mentions rather than aggregate them.
func (n *Normalizer) Normalize(raw domain.RawMention) (domain.Mention, error) {
	headline := SanitizeText(raw.Title)
	if headline == "" {
		return domain.Mention{}, fmt.Errorf("empty title: %w", apperrors.ErrMalformedInput)
	}

	canonicalURL, err := CanonicalizeURL(pickURL(raw))
	if err != nil {
		return domain.Mention{}, fmt.Errorf("canonicalize url %q: %w", raw.URL, err)
	}

	sourceDomain := strings.ToLower(strings.TrimSpace(raw.SourceDomain))
	if sourceDomain == "" {
		sourceDomain = domainOf(canonicalURL)
	}

	tier := raw.SourceTier
	if tier < 1 || tier > 3 {
		tier = 3
	}

	return domain.Mention{
		SourceType:    raw.SourceType,
		SourceDomain:  sourceDomain,
		CanonicalURL:  canonicalURL,
		ContentHash:   ContentHash(headline, canonicalURL, raw.PublishedAt, sourceDomain),
		PublishedAt:   raw.PublishedAt,
		DiscoveredAt:  n.now(),
		Headline:      truncate(headline, maxHeadlineLen),
		SourceTier:    tier,
		Entities:      raw.Entities,
		PolicyDomains: raw.PolicyDomains,
		Geographies:   raw.Geographies,
		IsEventPhrase: raw.IsEventPhrase,
	}, nil
}

// pickURL prefers the canonical link for redirect-wrapper domains, falling
// back to the raw URL when no canonical is available.
func pickURL(raw domain.RawMention) string {
	rawURL := strings.TrimSpace(raw.URL)

	canonical := strings.TrimSpace(raw.CanonicalURL)
	if canonical == "" {
		return rawURL
	}

	if _, ok := redirectWrapperDomains[domainOf(rawURL)]; ok {
		return canonical
	}

	return rawURL
}

// CanonicalizeURL strips tracking parameters, lowercases scheme and host,
// removes the www prefix and trailing slashes, and sorts the remaining
// query parameters so equivalent URLs canonicalize identically.
func CanonicalizeURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("empty url: %w", apperrors.ErrMalformedInput)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", apperrors.ErrMalformedInput)
	}

	if parsed.Host == "" {
		return "", fmt.Errorf("url without host: %w", apperrors.ErrMalformedInput)
	}

	parsed.Scheme = "https"
	parsed.Host = strings.TrimPrefix(strings.ToLower(parsed.Host), wwwPrefix)
	parsed.Fragment = ""
	parsed.RawQuery = cleanQuery(parsed.Query())
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")

	return parsed.String(), nil
}

func cleanQuery(values url.Values) string {
	for key := range values {
		lower := strings.ToLower(key)
		if _, ok := trackingParams[lower]; ok || strings.HasPrefix(lower, "utm_") {
			delete(values, key)
		}
	}

	// url.Values.Encode sorts keys, keeping parameter order deterministic.
	return values.Encode()
}

// ContentHash computes a collision-resistant digest over the normalized
// title, canonical URL, publish date rounded to the hour, and source
// domain. SHA-256 keeps collision probability negligible at scale where
// 32-bit hashes are known to collide.
func ContentHash(title, canonicalURL string, publishedAt time.Time, sourceDomain string) string {
	rounded := publishedAt.UTC().Truncate(time.Hour).Format(time.RFC3339)

	h := sha256.New()
	h.Write([]byte(strings.ToLower(title)))
	h.Write([]byte{0})
	h.Write([]byte(canonicalURL))
	h.Write([]byte{0})
	h.Write([]byte(rounded))
	h.Write([]byte{0})
	h.Write([]byte(sourceDomain))

	return hex.EncodeToString(h.Sum(nil))
}

// SanitizeText decodes HTML entities, strips control characters, and
// collapses whitespace runs.
func SanitizeText(text string) string {
	text = html.UnescapeString(text)

	var b strings.Builder

	lastSpace := false

	for _, r := range text {
		if unicode.IsControl(r) {
			continue
		}

		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
			}

			lastSpace = true

			continue
		}

		lastSpace = false

		b.WriteRune(r)
	}

	return strings.TrimSpace(b.String())
}

func domainOf(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}

	return strings.TrimPrefix(strings.ToLower(parsed.Host), wwwPrefix)
}

// truncate cuts on a rune boundary so a multi-byte headline never ends
// in an invalid UTF-8 fragment.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return strings.TrimSpace(s[:cut])
}
