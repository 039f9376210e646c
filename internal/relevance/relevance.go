// Package relevance computes bounded, explainable per-organization
// relevance scores for trend events. The score decomposes into a static
// profile match, a learned-affinity component, and an exploration bonus;
// the components always sum to the total and each respects its cap.
package relevance

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vkuksa/trendwatch/internal/core/domain"
	apperrors "github.com/vkuksa/trendwatch/internal/core/errors"
)

const (
	errFmtAffinityBounds = "affinity %s/%s score %.2f: %w"
	errFmtComponentCap   = "%s component %.1f exceeds cap %.1f: %w"
)

// Config tunes relevance scoring and ranking.
type Config struct {
	// Sub-caps of the profile component. Their sum is the profile cap.
	DomainMatchPoints    float64
	FocusMatchPoints     float64
	WatchlistMatchPoints float64

	// ExplorationBonus is granted to topics the organization has little
	// learned history with. ExplorationCeiling is the affinity component
	// below which the bonus fires.
	ExplorationBonus   float64
	ExplorationCeiling float64

	// BreakingFallbackPoints scores breaking trends for organizations
	// with no declared profile at all, so a true cold start still ranks
	// something instead of erroring or returning zeros.
	BreakingFallbackPoints float64

	// TopN is the ranked list size. Diversity enforcement happens before
	// truncation to TopN.
	TopN int
}

func (c *Config) applyDefaults() {
	if c.DomainMatchPoints <= 0 {
		c.DomainMatchPoints = 35
	}

	if c.FocusMatchPoints <= 0 {
		c.FocusMatchPoints = 20
	}

	if c.WatchlistMatchPoints <= 0 {
		c.WatchlistMatchPoints = 15
	}

	if c.ExplorationBonus <= 0 {
		c.ExplorationBonus = domain.ExplorationComponentCap
	}

	if c.ExplorationCeiling <= 0 {
		c.ExplorationCeiling = 5
	}

	if c.BreakingFallbackPoints <= 0 {
		c.BreakingFallbackPoints = 25
	}

	if c.TopN <= 0 {
		c.TopN = 20
	}
}

// Scorer computes per-organization relevance. It is read-only over trend
// events and affinities, so scoring across organizations can run in
// parallel.
type Scorer struct {
	cfg Config
	now func() time.Time
}

func New(cfg Config) *Scorer {
	cfg.applyDefaults()

	return &Scorer{cfg: cfg, now: time.Now}
}

func NewWithClock(cfg Config, now func() time.Time) *Scorer {
	s := New(cfg)
	s.now = now

	return s
}

// ScoreForOrg computes one organization's relevance for one trend event.
// Returns ErrAffinityBoundsViolation when a stored affinity is outside
// its bounds; stored corruption must halt scoring, not silently skew it.
func (s *Scorer) ScoreForOrg(org domain.OrgProfile, trend domain.TrendEvent, affinities []domain.OrgTopicAffinity) (domain.OrgRelevanceScore, error) {
	if err := validateAffinities(affinities); err != nil {
		return domain.OrgRelevanceScore{}, err
	}

	reasons := make([]string, 0, 4)

	profile := s.profileComponent(org, trend, &reasons)
	affinity := s.affinityComponent(trend, affinities, &reasons)

	exploration := 0.0
	isNewOpportunity := false

	if affinity < s.cfg.ExplorationCeiling {
		exploration = s.cfg.ExplorationBonus
		isNewOpportunity = true

		reasons = append(reasons, "New opportunity: unexplored topic")
	}

	if len(reasons) == 0 {
		reasons = append(reasons, "General trend signal")
	}

	score := domain.OrgRelevanceScore{
		OrganizationID:       org.ID,
		TrendEventID:         trend.ID,
		ProfileComponent:     profile,
		AffinityComponent:    affinity,
		ExplorationComponent: exploration,
		IsNewOpportunity:     isNewOpportunity,
		Reasons:              reasons,
		ComputedAt:           s.now(),
	}

	score.RelevanceScore = profile + affinity + exploration
	if score.RelevanceScore > domain.RelevanceScoreCap {
		score.RelevanceScore = domain.RelevanceScoreCap
	}

	if err := validateComponents(score); err != nil {
		return domain.OrgRelevanceScore{}, err
	}

	return score, nil
}

// profileComponent matches the declared profile against the trend's tags.
// It never reads learned history, which is what keeps cold-start
// organizations competitive.
func (s *Scorer) profileComponent(org domain.OrgProfile, trend domain.TrendEvent, reasons *[]string) float64 {
	component := 0.0

	if matched, name := matchAny(org.Domains, trend.PolicyDomains); matched {
		component += s.cfg.DomainMatchPoints

		*reasons = append(*reasons, fmt.Sprintf("Matches declared domain: %s", name))
	}

	if matched, name := matchFocus(org.FocusAreas, trend); matched {
		component += s.cfg.FocusMatchPoints

		*reasons = append(*reasons, fmt.Sprintf("Matches focus area: %s", name))
	}

	if matched, name := matchWatchlist(org.Watchlist, trend); matched {
		component += s.cfg.WatchlistMatchPoints

		*reasons = append(*reasons, fmt.Sprintf("Watchlist match: %s", name))
	}

	// True cold start: no declared profile at all. Fall back to breaking
	// news signals so the organization still gets a usable feed.
	if component == 0 && len(org.Domains) == 0 && len(org.FocusAreas) == 0 && len(org.Watchlist) == 0 {
		if trend.IsBreaking || trend.TrendStage == domain.StageSurging {
			component = s.cfg.BreakingFallbackPoints

			*reasons = append(*reasons, "Breaking news signal")
		}
	}

	if component > domain.ProfileComponentCap {
		component = domain.ProfileComponentCap
	}

	return component
}

// affinityComponent averages the matched affinities (never takes the
// maximum) so one over-represented topic cannot dominate, then scales
// the [0.2, 0.95] average into the 0-20 range.
func (s *Scorer) affinityComponent(trend domain.TrendEvent, affinities []domain.OrgTopicAffinity, reasons *[]string) float64 {
	sum := 0.0
	matched := 0

	for _, affinity := range affinities {
		if !affinityMatches(affinity.Topic, trend) {
			continue
		}

		sum += affinity.AffinityScore
		matched++
	}

	if matched == 0 {
		return 0
	}

	average := sum / float64(matched)
	component := average * domain.AffinityComponentCap

	if component > domain.AffinityComponentCap {
		component = domain.AffinityComponentCap
	}

	*reasons = append(*reasons, fmt.Sprintf("Learned affinity across %d matched topics (avg %.2f)", matched, average))

	return component
}

// RankForOrg scores every qualifying trend and returns the top-N with the
// diversity guarantee: every declared domain with at least one qualifying
// trend appears in the output. Diversity slots are reserved before
// truncation; checking after truncation would silently break the
// guarantee.
func (s *Scorer) RankForOrg(org domain.OrgProfile, trends []domain.TrendEvent, affinities []domain.OrgTopicAffinity) ([]domain.OrgRelevanceScore, error) {
	type scoredTrend struct {
		trend domain.TrendEvent
		score domain.OrgRelevanceScore
	}

	// One timestamp for the whole ranking. Readers select the latest
	// pass by computed_at, so per-score clocks would tear a ranking
	// apart into single-row "passes".
	computedAt := s.now()

	scored := make([]scoredTrend, 0, len(trends))

	for _, trend := range trends {
		if !trend.IsTrending || !trend.IsClusterRepresentative {
			continue
		}

		score, err := s.ScoreForOrg(org, trend, affinities)
		if err != nil {
			return nil, err
		}

		scored = append(scored, scoredTrend{trend: trend, score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score.RelevanceScore != scored[j].score.RelevanceScore {
			return scored[i].score.RelevanceScore > scored[j].score.RelevanceScore
		}

		return scored[i].trend.EventKey < scored[j].trend.EventKey
	})

	selected := make([]int, 0, s.cfg.TopN)
	taken := make(map[int]bool, s.cfg.TopN)

	// Reserve one slot per declared domain that has a qualifying trend.
	for _, declared := range org.Domains {
		for i, st := range scored {
			if taken[i] || !containsFold(st.trend.PolicyDomains, declared) {
				continue
			}

			selected = append(selected, i)
			taken[i] = true

			break
		}

		if len(selected) >= s.cfg.TopN {
			break
		}
	}

	// Fill remaining slots in rank order.
	for i := range scored {
		if len(selected) >= s.cfg.TopN {
			break
		}

		if taken[i] {
			continue
		}

		selected = append(selected, i)
		taken[i] = true
	}

	sort.Slice(selected, func(a, b int) bool { return selected[a] < selected[b] })

	out := make([]domain.OrgRelevanceScore, 0, len(selected))
	for _, i := range selected {
		score := scored[i].score
		score.ComputedAt = computedAt
		out = append(out, score)
	}

	return out, nil
}

func validateAffinities(affinities []domain.OrgTopicAffinity) error {
	for _, affinity := range affinities {
		if affinity.AffinityScore < domain.AffinityScoreMin || affinity.AffinityScore > domain.AffinityScoreMax {
			return fmt.Errorf(errFmtAffinityBounds,
				affinity.OrganizationID, affinity.Topic, affinity.AffinityScore, apperrors.ErrAffinityBoundsViolation)
		}
	}

	return nil
}

func validateComponents(score domain.OrgRelevanceScore) error {
	for _, component := range []struct {
		name  string
		value float64
		limit float64
	}{
		{"profile", score.ProfileComponent, domain.ProfileComponentCap},
		{"affinity", score.AffinityComponent, domain.AffinityComponentCap},
		{"exploration", score.ExplorationComponent, domain.ExplorationComponentCap},
		{"total", score.RelevanceScore, domain.RelevanceScoreCap},
	} {
		if component.value < 0 || component.value > component.limit {
			return fmt.Errorf(errFmtComponentCap,
				component.name, component.value, component.limit, apperrors.ErrScoringInconsistency)
		}
	}

	return nil
}

func matchAny(declared, tagged []string) (bool, string) {
	for _, want := range declared {
		if containsFold(tagged, want) {
			return true, want
		}
	}

	return false, ""
}

// matchFocus looks for a focus area in the trend's tags, title, and key.
func matchFocus(focusAreas []string, trend domain.TrendEvent) (bool, string) {
	haystack := strings.ToLower(trend.EventTitle + " " + trend.EventKey)

	for _, focus := range focusAreas {
		if containsFold(trend.PolicyDomains, focus) || strings.Contains(haystack, strings.ToLower(focus)) {
			return true, focus
		}
	}

	return false, ""
}

func matchWatchlist(watchlist []string, trend domain.TrendEvent) (bool, string) {
	haystack := strings.ToLower(trend.EventTitle + " " + trend.EventKey)

	for _, term := range watchlist {
		if strings.Contains(haystack, strings.ToLower(term)) {
			return true, term
		}
	}

	return false, ""
}

// affinityMatches reports whether a learned topic applies to a trend: the
// topic matches a tagged policy domain, or all its tokens appear in the
// event key.
func affinityMatches(topic string, trend domain.TrendEvent) bool {
	if containsFold(trend.PolicyDomains, topic) {
		return true
	}

	keyTokens := make(map[string]struct{})
	for _, token := range strings.Fields(strings.ToLower(trend.EventKey)) {
		keyTokens[token] = struct{}{}
	}

	topicTokens := strings.Fields(strings.ToLower(topic))
	if len(topicTokens) == 0 {
		return false
	}

	for _, token := range topicTokens {
		if _, ok := keyTokens[token]; !ok {
			return false
		}
	}

	return true
}

func containsFold(haystack []string, needle string) bool {
	for _, candidate := range haystack {
		if strings.EqualFold(candidate, needle) {
			return true
		}
	}

	return false
}
