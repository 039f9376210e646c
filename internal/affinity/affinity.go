// Package affinity learns per-organization topic preferences from real
// outcome signals via an exponential moving average, and decays stale
// learned affinities on a schedule. Self-declared affinities are never
// touched by decay.
package affinity

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/vkuksa/trendwatch/internal/core/domain"
	apperrors "github.com/vkuksa/trendwatch/internal/core/errors"
	"github.com/vkuksa/trendwatch/internal/platform/observability"
)

const (
	logFieldOrg   = "organization_id"
	logFieldTopic = "topic"

	errFmtUpdate       = "update affinity %s/%s: %w"
	errFmtDecay        = "decay stale affinities: %w"
	errFmtSignalRange  = "outcome signal %.2f outside [0, 1]: %w"
	errFmtClampEscaped = "clamped score %.2f escaped [%.2f, %.2f]: %w"
)

// AuditEntry records one affinity mutation for the append-only audit log.
type AuditEntry struct {
	OrganizationID string
	Topic          string
	OldScore       float64
	NewScore       float64
	Signal         float64
	Action         string
	At             time.Time
}

// Audit actions.
const (
	AuditActionUpdate = "update"
	AuditActionDecay  = "decay"
)

// Store is the persistence surface for learned affinities. Affinity
// returns ErrNotFound for unseen (org, topic) pairs.
type Store interface {
	Affinity(ctx context.Context, orgID, topic string) (domain.OrgTopicAffinity, error)
	SaveAffinity(ctx context.Context, affinity domain.OrgTopicAffinity) error
	StaleLearnedAffinities(ctx context.Context, unusedSince time.Time) ([]domain.OrgTopicAffinity, error)
	AppendAudit(ctx context.Context, entry AuditEntry) error
}

// Config tunes learning and decay.
type Config struct {
	// Alpha is the EMA learning rate.
	Alpha float64

	// InitialScore seeds the EMA for a first-ever outcome on a topic.
	InitialScore float64

	// DecayFactor multiplies stale learned affinities; DecayFloor stops
	// decay from erasing history entirely.
	DecayFactor float64
	DecayFloor  float64

	// StaleAfter is how long an affinity may go unused before decay
	// applies.
	StaleAfter time.Duration
}

func (c *Config) applyDefaults() {
	if c.Alpha <= 0 {
		c.Alpha = 0.3
	}

	if c.InitialScore <= 0 {
		c.InitialScore = 0.5
	}

	if c.DecayFactor <= 0 {
		c.DecayFactor = 0.95
	}

	if c.DecayFloor <= 0 {
		c.DecayFloor = 0.3
	}

	if c.StaleAfter <= 0 {
		c.StaleAfter = 30 * 24 * time.Hour
	}
}

// Learner is the sole writer of the affinity store.
type Learner struct {
	cfg    Config
	store  Store
	logger *zerolog.Logger
	now    func() time.Time
}

func New(cfg Config, store Store, logger *zerolog.Logger) *Learner {
	cfg.applyDefaults()

	return &Learner{cfg: cfg, store: store, logger: logger, now: time.Now}
}

func NewWithClock(cfg Config, store Store, logger *zerolog.Logger, now func() time.Time) *Learner {
	learner := New(cfg, store, logger)
	learner.now = now

	return learner
}

// UpdateAffinity folds one outcome signal into the organization's learned
// affinity for a topic:
//
//	newScore = alpha*signal + (1-alpha)*oldScore, clamped to [0.2, 0.95]
//
// The signal must come from measured downstream performance; it is
// validated to [0, 1] and rejected as malformed outside that range.
func (l *Learner) UpdateAffinity(ctx context.Context, orgID, topic string, outcomeSignal float64) (domain.OrgTopicAffinity, error) {
	if math.IsNaN(outcomeSignal) || outcomeSignal < 0 || outcomeSignal > 1 {
		return domain.OrgTopicAffinity{}, fmt.Errorf(errFmtSignalRange, outcomeSignal, apperrors.ErrMalformedInput)
	}

	current, err := l.store.Affinity(ctx, orgID, topic)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			return domain.OrgTopicAffinity{}, fmt.Errorf(errFmtUpdate, orgID, topic, err)
		}

		current = domain.OrgTopicAffinity{
			OrganizationID: orgID,
			Topic:          topic,
			AffinityScore:  l.cfg.InitialScore,
			Source:         domain.AffinityLearned,
		}
	}

	oldScore := current.AffinityScore
	newScore := l.cfg.Alpha*outcomeSignal + (1-l.cfg.Alpha)*oldScore

	newScore, err = clampScore(newScore)
	if err != nil {
		return domain.OrgTopicAffinity{}, fmt.Errorf(errFmtUpdate, orgID, topic, err)
	}

	current.AffinityScore = newScore
	current.TimesUsed++
	current.LastUsedAt = l.now()

	if err := l.store.SaveAffinity(ctx, current); err != nil {
		return domain.OrgTopicAffinity{}, fmt.Errorf(errFmtUpdate, orgID, topic, err)
	}

	if err := l.audit(ctx, AuditEntry{
		OrganizationID: orgID,
		Topic:          topic,
		OldScore:       oldScore,
		NewScore:       newScore,
		Signal:         outcomeSignal,
		Action:         AuditActionUpdate,
		At:             current.LastUsedAt,
	}); err != nil {
		return domain.OrgTopicAffinity{}, fmt.Errorf(errFmtUpdate, orgID, topic, err)
	}

	observability.AffinityUpdatesTotal.WithLabelValues(string(current.Source)).Inc()

	l.logger.Info().
		Str(logFieldOrg, orgID).
		Str(logFieldTopic, topic).
		Float64("old", oldScore).
		Float64("new", newScore).
		Float64("signal", outcomeSignal).
		Msg("affinity updated")

	return current, nil
}

// DecayStale multiplies every learned affinity unused for longer than the
// staleness window by the decay factor, floored. Errors are returned to
// the caller for alerting; a decay job that swallows failures would let
// stale history steer relevance forever.
func (l *Learner) DecayStale(ctx context.Context, now time.Time) ([]domain.OrgTopicAffinity, error) {
	stale, err := l.store.StaleLearnedAffinities(ctx, now.Add(-l.cfg.StaleAfter))
	if err != nil {
		return nil, fmt.Errorf(errFmtDecay, err)
	}

	decayed := make([]domain.OrgTopicAffinity, 0, len(stale))

	for _, affinity := range stale {
		// The store query filters on source, but a corrupted row must
		// not end up decayed anyway.
		if affinity.Source != domain.AffinityLearned {
			continue
		}

		oldScore := affinity.AffinityScore

		newScore := oldScore * l.cfg.DecayFactor
		if newScore < l.cfg.DecayFloor {
			newScore = l.cfg.DecayFloor
		}

		if newScore == oldScore {
			continue
		}

		affinity.AffinityScore = newScore

		if err := l.store.SaveAffinity(ctx, affinity); err != nil {
			return decayed, fmt.Errorf(errFmtDecay, err)
		}

		if err := l.audit(ctx, AuditEntry{
			OrganizationID: affinity.OrganizationID,
			Topic:          affinity.Topic,
			OldScore:       oldScore,
			NewScore:       newScore,
			Action:         AuditActionDecay,
			At:             now,
		}); err != nil {
			return decayed, fmt.Errorf(errFmtDecay, err)
		}

		observability.AffinityDecayedTotal.Inc()

		decayed = append(decayed, affinity)
	}

	l.logger.Info().Int("decayed", len(decayed)).Int("stale", len(stale)).Msg("affinity decay complete")

	return decayed, nil
}

func (l *Learner) audit(ctx context.Context, entry AuditEntry) error {
	return l.store.AppendAudit(ctx, entry)
}

// clampScore bounds a score to [0.2, 0.95] and verifies the clamp held.
// A post-clamp escape (NaN arithmetic upstream) is a bounds violation,
// not a tolerable rounding artifact.
func clampScore(score float64) (float64, error) {
	if score < domain.AffinityScoreMin {
		score = domain.AffinityScoreMin
	}

	if score > domain.AffinityScoreMax {
		score = domain.AffinityScoreMax
	}

	if math.IsNaN(score) || score < domain.AffinityScoreMin || score > domain.AffinityScoreMax {
		return 0, fmt.Errorf(errFmtClampEscaped,
			score, domain.AffinityScoreMin, domain.AffinityScoreMax, apperrors.ErrAffinityBoundsViolation)
	}

	return score, nil
}
