// Package cluster detects near-duplicate topics via string similarity,
// merges them under a canonical representative, and preserves merge
// provenance. Clustering runs before persistence, never as an advisory
// tagging pass: the persistence layer only accepts this package's output.
package cluster

import (
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/vkuksa/trendwatch/internal/core/domain"
	"github.com/vkuksa/trendwatch/internal/detect/velocity"
)

// Default similarity weights: word overlap is weighted more heavily than
// edit distance. Both are tunable.
const (
	defaultJaccardWeight       = 0.7
	defaultEditWeight          = 0.3
	defaultSimilarityThreshold = 0.75
)

// ScoredTopic is one fully scored candidate passing into clustering.
type ScoredTopic struct {
	Agg        domain.TopicAggregate
	Velocity   velocity.ZScoreResult
	Breakdown  domain.ScoreBreakdown
	IsTrending bool
	IsBreaking bool
	Stage      domain.TrendStage
}

// Cluster is a merged group of near-duplicate topics. Exactly one member,
// the representative, stays trending; merged-away members keep their
// history for audit but are demoted.
type Cluster struct {
	ID             string
	Representative ScoredTopic
	Merged         []ScoredTopic
	MergedFrom     []string
}

// Config tunes similarity computation.
type Config struct {
	// Threshold is the similarity above which two topics merge.
	Threshold float64

	// JaccardWeight and EditWeight combine token-overlap and
	// edit-distance similarity. They should sum to 1.
	JaccardWeight float64
	EditWeight    float64

	// Aliases expands abbreviations before comparing, so "EU" and
	// "European Union" count as the same evidence.
	Aliases map[string][]string
}

// DefaultAliases returns the built-in abbreviation expansions.
func DefaultAliases() map[string][]string {
	return map[string][]string{
		"eu":  {"european", "union"},
		"un":  {"united", "nations"},
		"uk":  {"united", "kingdom"},
		"usa": {"united", "states"},
	}
}

func (c *Config) applyDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = defaultSimilarityThreshold
	}

	if c.JaccardWeight <= 0 && c.EditWeight <= 0 {
		c.JaccardWeight = defaultJaccardWeight
		c.EditWeight = defaultEditWeight
	}

	if c.Aliases == nil {
		c.Aliases = DefaultAliases()
	}
}

// Engine clusters scored topics. The id generator is injectable for
// deterministic tests.
type Engine struct {
	cfg   Config
	newID func() string
}

// New creates an Engine with the given configuration.
func New(cfg Config) *Engine {
	cfg.applyDefaults()

	return &Engine{cfg: cfg, newID: uuid.NewString}
}

// NewWithIDs creates an Engine with an injected id generator.
func NewWithIDs(cfg Config, newID func() string) *Engine {
	e := New(cfg)
	e.newID = newID

	return e
}

// Cluster groups near-duplicate topics and merges each group under its
// canonical representative. Input order does not affect the result:
// topics are sorted by key first so cluster assignment is deterministic.
func (e *Engine) Cluster(topics []ScoredTopic) []Cluster {
	sorted := make([]ScoredTopic, len(topics))
	copy(sorted, topics)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Agg.EventKey < sorted[j].Agg.EventKey
	})

	assigned := make([]bool, len(sorted))
	clusters := make([]Cluster, 0, len(sorted))

	for i := range sorted {
		if assigned[i] {
			continue
		}

		assigned[i] = true
		group := []ScoredTopic{sorted[i]}

		for j := i + 1; j < len(sorted); j++ {
			if assigned[j] {
				continue
			}

			if Similarity(sorted[i].Agg.EventTitle, sorted[j].Agg.EventTitle, e.cfg) > e.cfg.Threshold {
				assigned[j] = true

				group = append(group, sorted[j])
			}
		}

		clusters = append(clusters, e.merge(group))
	}

	return clusters
}

// merge selects the representative and folds the remaining members into
// it: evidence accumulates, velocity/confidence keep their maximum,
// mention sets union, and provenance is recorded flat (never chained).
func (e *Engine) merge(group []ScoredTopic) Cluster {
	sortByPriority(group)

	rep := group[0]
	cluster := Cluster{ID: e.newID()}

	for _, member := range group[1:] {
		rep.Agg.Mentions = unionMentions(rep.Agg.Mentions, member.Agg.Mentions)
		rep.Agg.Current1h += member.Agg.Current1h
		rep.Agg.Current24h += member.Agg.Current24h
		rep.Agg.SourceCountDeduped = distinctDomains(rep.Agg.Mentions)

		if member.Velocity.ZScore > rep.Velocity.ZScore {
			rep.Velocity = member.Velocity
		}

		if member.Breakdown.FinalScore > rep.Breakdown.FinalScore {
			rep.Breakdown = member.Breakdown
		}

		rep.IsTrending = rep.IsTrending || member.IsTrending
		rep.IsBreaking = rep.IsBreaking || member.IsBreaking

		// Demoted members never reach the store as trending rows.
		member.IsTrending = false
		member.Agg.ClusterID = cluster.ID

		cluster.Merged = append(cluster.Merged, member)
		cluster.MergedFrom = append(cluster.MergedFrom, member.Agg.EventKey)
	}

	rep.Agg.ClusterID = cluster.ID
	cluster.Representative = rep

	return cluster
}

// sortByPriority orders candidates for representative selection: prefer
// event-phrase labels, then higher confidence, then higher source count,
// with lexicographic key order as the deterministic tiebreak.
func sortByPriority(group []ScoredTopic) {
	sort.Slice(group, func(i, j int) bool {
		a, b := group[i], group[j]

		if a.Agg.IsEventPhrase != b.Agg.IsEventPhrase {
			return a.Agg.IsEventPhrase
		}

		if a.Breakdown.FinalScore != b.Breakdown.FinalScore {
			return a.Breakdown.FinalScore > b.Breakdown.FinalScore
		}

		if a.Agg.SourceCountDeduped != b.Agg.SourceCountDeduped {
			return a.Agg.SourceCountDeduped > b.Agg.SourceCountDeduped
		}

		return a.Agg.EventKey < b.Agg.EventKey
	})
}

// Similarity combines token-overlap Jaccard similarity with normalized
// edit-distance similarity. Labels are compared in a normalized form:
// lowercased, stopwords dropped, abbreviations expanded via aliases, and
// inflection suffixes stripped, so "Reviews Tariffs" and "Tariff Review"
// count as matching evidence. Malformed input (empty labels) degrades to
// similarity 0 rather than propagating an error.
func Similarity(a, b string, cfg Config) float64 {
	(&cfg).applyDefaults()

	tokensA := normalizedTokens(a, cfg.Aliases)
	tokensB := normalizedTokens(b, cfg.Aliases)

	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	return cfg.JaccardWeight*jaccard(tokensA, tokensB) +
		cfg.EditWeight*editSimilarity(sortedJoin(tokensA), sortedJoin(tokensB))
}

var similarityStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "by": {}, "for": {}, "in": {},
	"of": {}, "on": {}, "the": {}, "to": {}, "with": {},
}

func normalizedTokens(label string, aliases map[string][]string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	set := make(map[string]struct{}, len(words))

	for _, word := range words {
		if _, ok := similarityStopwords[word]; ok {
			continue
		}

		if expansion, ok := aliases[word]; ok {
			for _, expanded := range expansion {
				set[stem(expanded)] = struct{}{}
			}

			continue
		}

		set[stem(word)] = struct{}{}
	}

	return set
}

// stem strips common inflection suffixes so "fires", "fired" and "fire"
// compare equal. Deliberately crude: over-stripping is harmless because
// both sides pass through the same rules.
func stem(word string) string {
	switch {
	case len(word) > 5 && strings.HasSuffix(word, "ing"):
		return word[:len(word)-3]
	case len(word) > 4 && strings.HasSuffix(word, "ed"):
		return word[:len(word)-2]
	case len(word) > 4 && strings.HasSuffix(word, "es"):
		return word[:len(word)-2]
	case len(word) > 3 && strings.HasSuffix(word, "s"):
		return word[:len(word)-1]
	}

	return word
}

func sortedJoin(tokens map[string]struct{}) string {
	out := make([]string, 0, len(tokens))
	for token := range tokens {
		out = append(out, token)
	}

	sort.Strings(out)

	return strings.Join(out, " ")
}

func jaccard(a, b map[string]struct{}) float64 {
	intersection := 0

	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}

// editSimilarity is 1 - levenshtein(a,b)/max(len(a),len(b)) over
// lowercased runes.
func editSimilarity(a, b string) float64 {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))

	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}

	if longest == 0 {
		return 0
	}

	return 1.0 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}

	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i

		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}

			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func minInt(values ...int) int {
	m := values[0]

	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}

	return m
}

func unionMentions(a, b []domain.Mention) []domain.Mention {
	seen := make(map[string]struct{}, len(a))
	for _, mention := range a {
		seen[mention.ContentHash] = struct{}{}
	}

	out := a

	for _, mention := range b {
		if _, ok := seen[mention.ContentHash]; ok {
			continue
		}

		seen[mention.ContentHash] = struct{}{}

		out = append(out, mention)
	}

	return out
}

func distinctDomains(mentions []domain.Mention) int {
	domains := make(map[string]struct{})

	for _, mention := range mentions {
		if mention.SourceDomain != "" {
			domains[mention.SourceDomain] = struct{}{}
		}
	}

	return len(domains)
}
