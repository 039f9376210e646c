// Package score computes the composite confidence score for topic
// aggregates: a velocity/corroboration/activity base with a chain of
// multiplicative, floored penalty modifiers. Every factor is named in the
// output so scoring decisions stay explainable and auditable.
package score

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/vkuksa/trendwatch/internal/core/domain"
	apperrors "github.com/vkuksa/trendwatch/internal/core/errors"
	"github.com/vkuksa/trendwatch/internal/detect/velocity"
)

// Scorer computes confidence scores and trend stages. Stateless, safe for
// concurrent use across topics.
type Scorer struct {
	cfg Config
	now func() time.Time
}

// New creates a Scorer with the given configuration.
func New(cfg Config) *Scorer {
	cfg.applyDefaults()

	return &Scorer{cfg: cfg, now: time.Now}
}

// NewWithClock creates a Scorer with an injected clock for tests.
func NewWithClock(cfg Config, now func() time.Time) *Scorer {
	s := New(cfg)
	s.now = now

	return s
}

// Score computes the full breakdown for one topic:
//
//	rawScore = velocity(0-50) + corroboration(0-30) + activity(0-20)
//	finalScore = rawScore * recencyDecay * combinedPenalty
//
// where combinedPenalty multiplies the evergreen, single-token, and
// label-quality penalties, floored by the high-volume override when the
// story is too big to bury. Returns ErrScoringInconsistency if any
// component escapes its cap; that is a formula bug, not a data problem,
// and the caller must halt the pass.
func (s *Scorer) Score(agg domain.TopicAggregate, vel velocity.ZScoreResult, firstSeenAt time.Time) (domain.ScoreBreakdown, error) {
	volume24h := countMentionsSince(agg.Mentions, s.now().Add(-24*time.Hour))

	breakdown := domain.ScoreBreakdown{
		Velocity:            velocityComponent(vel.ZScore),
		Corroboration:       corroborationComponent(agg.SourceCountDeduped),
		Activity:            activityComponent(volume24h),
		RecencyDecay:        s.recencyDecay(firstSeenAt),
		EvergreenPenalty:    s.evergreenPenalty(agg.EventKey, vel.ZScore),
		SingleTokenPenalty:  s.singleTokenPenalty(agg.EventKey),
		LabelQualityPenalty: s.labelQualityPenalty(agg.LabelQuality),
	}

	if err := validateComponents(breakdown); err != nil {
		return domain.ScoreBreakdown{}, err
	}

	raw := breakdown.Velocity + breakdown.Corroboration + breakdown.Activity
	penalty := s.combinedPenalty(breakdown, volume24h)
	breakdown.FinalScore = clamp(raw*breakdown.RecencyDecay*penalty, 0, 100)

	return breakdown, nil
}

// CombinedPenalty exposes the post-override penalty multiplier for a
// breakdown, used by audit output and tests.
func (s *Scorer) CombinedPenalty(breakdown domain.ScoreBreakdown, volume24h int) float64 {
	return s.combinedPenalty(breakdown, volume24h)
}

func (s *Scorer) combinedPenalty(breakdown domain.ScoreBreakdown, volume24h int) float64 {
	penalty := breakdown.EvergreenPenalty * breakdown.SingleTokenPenalty * breakdown.LabelQualityPenalty

	// High-volume override: legitimately huge stories must not be
	// mathematically erased by compounding penalties.
	if volume24h >= s.cfg.HighVolumeThreshold && penalty < s.cfg.HighVolumeFloor {
		penalty = s.cfg.HighVolumeFloor
	}

	return penalty
}

// IsTrending decides trending eligibility from the aggregation gate and
// the final score. Velocity alone never gates trending.
func (s *Scorer) IsTrending(agg domain.TopicAggregate, breakdown domain.ScoreBreakdown) bool {
	return agg.PassesQualityGate && breakdown.FinalScore >= s.cfg.TrendingMinScore
}

// IsBreaking flags corroborated, sharply spiking topics.
func (s *Scorer) IsBreaking(vel velocity.ZScoreResult, breakdown domain.ScoreBreakdown) bool {
	return vel.ZScore >= s.cfg.BreakingZ && vel.IsCorroborated && breakdown.FinalScore >= s.cfg.TrendingMinScore
}

// Stage classifies the trend lifecycle phase. Raw last-hour volume is
// considered independently of z-score: a topic with very high absolute
// volume is surging even when its z-score is modest against an elevated
// baseline, so perpetually-discussed-but-currently-spiking topics are not
// mislabeled stable.
func (s *Scorer) Stage(agg domain.TopicAggregate, vel velocity.ZScoreResult) domain.TrendStage {
	volume1h := countMentionsSince(agg.Mentions, s.now().Add(-time.Hour))

	// Volume-based override takes precedence over z-score classification.
	if volume1h >= s.cfg.SurgeVolume1h {
		return domain.StageSurging
	}

	switch {
	case vel.ZScore >= s.cfg.SurgeZ:
		return domain.StageSurging
	case vel.ZScore >= s.cfg.EmergingZ:
		return domain.StageEmerging
	case vel.ZScore <= s.cfg.DecliningZ:
		return domain.StageDeclining
	default:
		return domain.StageStable
	}
}

func velocityComponent(z float64) float64 {
	return clamp(math.Max(0, z)*defaultVelocityPointsPerZ, 0, VelocityCap)
}

func corroborationComponent(distinctDomains int) float64 {
	return clamp(float64(distinctDomains)*defaultCorroborationPoints, 0, CorroborationCap)
}

func activityComponent(volume24h int) float64 {
	return clamp(float64(volume24h)*defaultActivityPointsPer, 0, ActivityCap)
}

// recencyDecay decays linearly with topic age down to the configured
// floor, never fully zeroing out a still-active topic.
func (s *Scorer) recencyDecay(firstSeenAt time.Time) float64 {
	if firstSeenAt.IsZero() {
		return 1.0
	}

	ageHours := s.now().Sub(firstSeenAt).Hours()
	if ageHours <= 0 {
		return 1.0
	}

	decay := 1.0 - ageHours/float64(s.cfg.RecencyDecayHours)

	return math.Max(s.cfg.RecencyFloor, decay)
}

// evergreenPenalty penalizes configured perpetually-discussed terms. The
// penalty relaxes linearly as z-score rises, reaching 1.0 at RelaxZ: a
// true spike in an evergreen topic still scores competitively while
// background-noise mentions do not. The floor is deliberately non-trivial.
func (s *Scorer) evergreenPenalty(eventKey string, z float64) float64 {
	if !s.isEvergreen(eventKey) {
		return 1.0
	}

	relax := clamp(math.Max(0, z)/s.cfg.EvergreenRelaxZ, 0, 1)

	return s.cfg.EvergreenFloor + (1.0-s.cfg.EvergreenFloor)*relax
}

// isEvergreen matches the whole topic key against the evergreen set.
// Event phrases that merely contain an evergreen entity ("senate passes
// bill") are distinct events, not evergreen background, and must not match.
func (s *Scorer) isEvergreen(eventKey string) bool {
	_, ok := s.cfg.evergreenSet[eventKey]

	return ok
}

// singleTokenPenalty stacks on the evergreen penalty for single-word
// labels, bounded so legitimate single-word breaking entities can still
// surface.
func (s *Scorer) singleTokenPenalty(eventKey string) float64 {
	if strings.Contains(eventKey, " ") {
		return 1.0
	}

	return math.Max(s.cfg.SingleTokenFloor, s.cfg.SingleTokenPenalty)
}

func (s *Scorer) labelQualityPenalty(quality domain.LabelQuality) float64 {
	switch quality {
	case domain.LabelEventPhrase:
		return 1.0
	case domain.LabelEntityOnly:
		return s.cfg.EntityOnlyPenalty
	case domain.LabelFallbackGenerated, domain.LabelUnknown:
		return s.cfg.FallbackPenalty
	default:
		return s.cfg.FallbackPenalty
	}
}

func validateComponents(b domain.ScoreBreakdown) error {
	checks := []struct {
		name  string
		value float64
		cap   float64
	}{
		{"velocity", b.Velocity, VelocityCap},
		{"corroboration", b.Corroboration, CorroborationCap},
		{"activity", b.Activity, ActivityCap},
	}

	for _, check := range checks {
		if check.value < 0 || check.value > check.cap {
			return fmt.Errorf("%s component %.2f outside [0, %.0f]: %w",
				check.name, check.value, check.cap, apperrors.ErrScoringInconsistency)
		}
	}

	for _, factor := range []struct {
		name  string
		value float64
	}{
		{"recency decay", b.RecencyDecay},
		{"evergreen penalty", b.EvergreenPenalty},
		{"single-token penalty", b.SingleTokenPenalty},
		{"label-quality penalty", b.LabelQualityPenalty},
	} {
		if factor.value <= 0 || factor.value > 1 {
			return fmt.Errorf("%s factor %.2f outside (0, 1]: %w",
				factor.name, factor.value, apperrors.ErrScoringInconsistency)
		}
	}

	return nil
}

func countMentionsSince(mentions []domain.Mention, cutoff time.Time) int {
	count := 0

	for _, mention := range mentions {
		if !mention.PublishedAt.Before(cutoff) {
			count++
		}
	}

	return count
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}
