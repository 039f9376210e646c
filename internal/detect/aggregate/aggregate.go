// Package aggregate groups normalized mentions into candidate topics,
// accumulating per-topic counts, source diversity, and label quality ahead
// of velocity and quality scoring.
package aggregate

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/vkuksa/trendwatch/internal/core/domain"
)

// Window bounds one detection pass over the mention stream.
type Window struct {
	Start time.Time
	End   time.Time
}

// Aggregator is a pure transform over a mention window. Blocklists and
// quality gates are injected configuration, never ambient globals.
type Aggregator struct {
	cfg    Config
	titler cases.Caser
}

// New creates an Aggregator with the given configuration.
func New(cfg Config) *Aggregator {
	cfg.applyDefaults()

	return &Aggregator{cfg: cfg, titler: cases.Title(language.English)}
}

// Aggregate groups mentions by normalized topic key and computes windowed
// counts. Topics failing quality gates are retained with
// PassesQualityGate=false rather than discarded, so they can accumulate
// evidence in later passes. Persistence happens elsewhere, after scoring.
func (a *Aggregator) Aggregate(mentions []domain.Mention, window Window) []domain.TopicAggregate {
	groups := make(map[string][]domain.Mention)

	for _, mention := range mentions {
		label := topicLabel(mention)

		key := TopicKey(label)
		if key == "" || a.blocked(key, mention.Headline) {
			continue
		}

		groups[key] = append(groups[key], mention)
	}

	aggregates := make([]domain.TopicAggregate, 0, len(groups))

	for key, group := range groups {
		aggregates = append(aggregates, a.buildAggregate(key, group, window))
	}

	sort.Slice(aggregates, func(i, j int) bool {
		if aggregates[i].Current24h != aggregates[j].Current24h {
			return aggregates[i].Current24h > aggregates[j].Current24h
		}

		return aggregates[i].EventKey < aggregates[j].EventKey
	})

	return aggregates
}

func (a *Aggregator) buildAggregate(key string, group []domain.Mention, window Window) domain.TopicAggregate {
	title, quality, isEvent := a.bestLabel(group)

	agg := domain.TopicAggregate{
		EventKey:           key,
		EventTitle:         title,
		IsEventPhrase:      isEvent,
		LabelQuality:       quality,
		Mentions:           group,
		SourceCountDeduped: distinctDomains(group),
		Current1h:          countDedupedSince(group, window.End.Add(-time.Hour)),
		Current24h:         countDedupedSince(group, window.End.Add(-24*time.Hour)),
		PolicyDomains:      unionStrings(group, func(m domain.Mention) []string { return m.PolicyDomains }),
		Geographies:        unionStrings(group, func(m domain.Mention) []string { return m.Geographies }),
	}

	agg.PassesQualityGate = a.passesQualityGate(agg)

	return agg
}

// passesQualityGate applies the tunable eligibility thresholds. Single-token
// topics need more mentions and more distinct domains than multi-word ones.
func (a *Aggregator) passesQualityGate(agg domain.TopicAggregate) bool {
	minMentions := a.cfg.MinMentions
	minDomains := a.cfg.MinDomains

	if isSingleToken(agg.EventKey) {
		minMentions = a.cfg.SingleTokenMinMentions
		minDomains = a.cfg.SingleTokenMinDomains
	}

	return agg.Current24h >= minMentions && agg.SourceCountDeduped >= minDomains
}

// bestLabel selects the display label for a topic group: prefer an
// event-phrase headline, then any entity label, then a title-cased
// fallback generated from the most common headline.
func (a *Aggregator) bestLabel(group []domain.Mention) (string, domain.LabelQuality, bool) {
	for _, mention := range group {
		if mention.IsEventPhrase && mention.Headline != "" {
			return mention.Headline, domain.LabelEventPhrase, true
		}
	}

	for _, mention := range group {
		if len(mention.Entities) > 0 && mention.Entities[0] != "" {
			return mention.Entities[0], domain.LabelEntityOnly, false
		}
	}

	for _, mention := range group {
		if mention.Headline != "" {
			return a.titler.String(strings.ToLower(mention.Headline)), domain.LabelFallbackGenerated, false
		}
	}

	return "", domain.LabelUnknown, false
}

// blocked reports whether a topic key is pure noise. Plain blocklist
// entries reject outright. Ambiguous entries (short acronyms that also
// read as common words) reject only when a configured co-occurring
// keyword confirms the noise reading.
func (a *Aggregator) blocked(key, headline string) bool {
	tokens := strings.Fields(key)
	if len(tokens) != 1 {
		return false
	}

	token := tokens[0]
	if _, ok := a.cfg.blocklistSet[token]; ok {
		return true
	}

	cooccur, ok := a.cfg.AmbiguousBlocklist[token]
	if !ok {
		return false
	}

	headlineLower := strings.ToLower(headline)

	for _, signal := range cooccur {
		if strings.Contains(headlineLower, strings.ToLower(signal)) {
			return true
		}
	}

	return false
}

// topicLabel picks the raw string a mention contributes to topic grouping:
// event-phrase headlines group by the full phrase, otherwise by the primary
// extracted entity, with the headline as last resort when extraction came
// back empty or partial.
func topicLabel(mention domain.Mention) string {
	if mention.IsEventPhrase {
		return mention.Headline
	}

	if len(mention.Entities) > 0 && mention.Entities[0] != "" {
		return mention.Entities[0]
	}

	return mention.Headline
}

// TopicKey normalizes a topic label into its grouping key: lowercase,
// punctuation stripped, stopwords removed, and remaining tokens sorted so
// word-order variations map to the same semantic key.
func TopicKey(label string) string {
	tokens := tokenize(label)
	if len(tokens) == 0 {
		return ""
	}

	sort.Strings(tokens)

	return strings.Join(tokens, " ")
}

func tokenize(label string) []string {
	words := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(words))
	seen := make(map[string]struct{})

	for _, word := range words {
		if stopWords[word] {
			continue
		}

		if _, ok := seen[word]; ok {
			continue
		}

		seen[word] = struct{}{}

		tokens = append(tokens, word)
	}

	return tokens
}

func isSingleToken(key string) bool {
	return !strings.Contains(key, " ")
}

// distinctDomains counts unique source domains across the whole group.
func distinctDomains(group []domain.Mention) int {
	domains := make(map[string]struct{})

	for _, mention := range group {
		if mention.SourceDomain != "" {
			domains[mention.SourceDomain] = struct{}{}
		}
	}

	return len(domains)
}

// countDedupedSince counts mentions published after cutoff, deduplicated by
// source domain: the same domain reporting the same topic twice within the
// window counts once toward diversity, though all mentions stay as evidence.
func countDedupedSince(group []domain.Mention, cutoff time.Time) int {
	domains := make(map[string]struct{})

	for _, mention := range group {
		if mention.PublishedAt.Before(cutoff) {
			continue
		}

		domains[mention.SourceDomain] = struct{}{}
	}

	return len(domains)
}

func unionStrings(group []domain.Mention, pick func(domain.Mention) []string) []string {
	seen := make(map[string]struct{})

	var out []string

	for _, mention := range group {
		for _, value := range pick(mention) {
			lower := strings.ToLower(strings.TrimSpace(value))
			if lower == "" {
				continue
			}

			if _, ok := seen[lower]; ok {
				continue
			}

			seen[lower] = struct{}{}

			out = append(out, value)
		}
	}

	sort.Strings(out)

	return out
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"as": true, "it": true, "its": true, "this": true, "that": true,
}
