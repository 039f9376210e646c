// Package detect orchestrates a detection pass: normalize raw mentions,
// aggregate them into topics, compute velocity against baselines, score,
// cluster near-duplicates, and persist. Persistence takes clustering
// output only, so an unclustered pass cannot reach the store.
package detect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vkuksa/trendwatch/internal/core/domain"
	coreerrors "github.com/vkuksa/trendwatch/internal/core/errors"
	"github.com/vkuksa/trendwatch/internal/detect/aggregate"
	"github.com/vkuksa/trendwatch/internal/detect/cluster"
	"github.com/vkuksa/trendwatch/internal/detect/score"
	"github.com/vkuksa/trendwatch/internal/detect/velocity"
	"github.com/vkuksa/trendwatch/internal/ingest/normalizer"
	"github.com/vkuksa/trendwatch/internal/platform/observability"
)

const (
	LogFieldCorrelationID = "correlation_id"
	logFieldEventKey      = "event_key"

	dropReasonMalformed = "malformed"

	errFmtPass        = "detection pass %s: %w"
	errFmtScoreTopic  = "score topic %s: %w"
	errFmtPersist     = "persist clusters: %w"
	errFmtLoadContext = "load scoring context: %w"
)

// Store is the persistence surface a detection pass needs. SaveClusters
// is the only write path for trend events and is idempotent per event
// key within a pass.
type Store interface {
	Baselines(ctx context.Context, eventKeys []string) (map[string]velocity.Baseline, error)
	FirstSeen(ctx context.Context, eventKeys []string) (map[string]time.Time, error)
	SaveClusters(ctx context.Context, clusters []cluster.Cluster) error
	RecordObservations(ctx context.Context, observedAt time.Time, counts map[string]int) error
}

// Config tunes pass execution.
type Config struct {
	// Workers bounds concurrent per-topic scoring.
	Workers int

	// PassTimeout aborts a pass that exceeds its deadline.
	PassTimeout time.Duration

	// PersistAttempts and PersistBackoff control retry of transient
	// persistence failures.
	PersistAttempts int
	PersistBackoff  time.Duration
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 8
	}

	if c.PassTimeout <= 0 {
		c.PassTimeout = 2 * time.Minute
	}

	if c.PersistAttempts <= 0 {
		c.PersistAttempts = 3
	}

	if c.PersistBackoff <= 0 {
		c.PersistBackoff = time.Second
	}
}

// Summary reports what one pass did.
type Summary struct {
	CorrelationID string
	Ingested      int
	Dropped       int
	Topics        int
	Merged        int
	Trending      int
}

// Detector runs detection passes over batches of raw mentions.
type Detector struct {
	cfg        Config
	normalizer *normalizer.Normalizer
	aggregator *aggregate.Aggregator
	velocity   *velocity.Engine
	scorer     *score.Scorer
	clusterer  *cluster.Engine
	store      Store
	logger     *zerolog.Logger
	now        func() time.Time
}

func New(
	cfg Config,
	norm *normalizer.Normalizer,
	agg *aggregate.Aggregator,
	vel *velocity.Engine,
	scorer *score.Scorer,
	clusterer *cluster.Engine,
	store Store,
	logger *zerolog.Logger,
) *Detector {
	cfg.applyDefaults()

	return &Detector{
		cfg:        cfg,
		normalizer: norm,
		aggregator: agg,
		velocity:   vel,
		scorer:     scorer,
		clusterer:  clusterer,
		store:      store,
		logger:     logger,
		now:        time.Now,
	}
}

// RunPass executes one detection pass over a batch of raw mentions.
// Malformed mentions are dropped with a warning; advisory scoring errors
// are logged and counted; a scoring inconsistency aborts the whole pass.
func (d *Detector) RunPass(ctx context.Context, raws []domain.RawMention) (Summary, error) {
	correlationID := uuid.New().String()
	logger := d.logger.With().Str(LogFieldCorrelationID, correlationID).Logger()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.PassTimeout)
	defer cancel()

	start := d.now()
	summary := Summary{CorrelationID: correlationID, Ingested: len(raws)}

	logger.Info().Int("mentions", len(raws)).Msg("Starting detection pass")

	mentions := d.normalizeBatch(logger, raws, &summary)

	now := d.now()
	window := aggregate.Window{Start: now.Add(-24 * time.Hour), End: now}

	aggregates := d.aggregator.Aggregate(mentions, window)
	summary.Topics = len(aggregates)
	observability.TopicsAggregated.Set(float64(len(aggregates)))

	scored, err := d.scoreConcurrently(ctx, logger, aggregates)
	if err != nil {
		observability.DetectPasses.WithLabelValues("failed").Inc()

		return summary, fmt.Errorf(errFmtPass, correlationID, err)
	}

	clusters := d.clusterer.Cluster(scored)
	for _, c := range clusters {
		summary.Merged += len(c.Merged)

		if c.Representative.IsTrending {
			summary.Trending++
		}
	}

	observability.TopicsMerged.Add(float64(summary.Merged))
	observability.TrendingEvents.Set(float64(summary.Trending))

	if err := d.persistWithRetry(ctx, logger, clusters); err != nil {
		observability.DetectPasses.WithLabelValues("failed").Inc()

		return summary, fmt.Errorf(errFmtPass, correlationID, err)
	}

	if err := d.recordObservations(ctx, aggregates); err != nil {
		// Baseline bookkeeping is best-effort; the pass output is
		// already durable.
		logger.Warn().Err(err).Msg("failed to record baseline observations")
	}

	observability.DetectPasses.WithLabelValues("ok").Inc()
	observability.DetectPassDurationSeconds.Observe(d.now().Sub(start).Seconds())

	logger.Info().
		Int("topics", summary.Topics).
		Int("merged", summary.Merged).
		Int("trending", summary.Trending).
		Int("dropped", summary.Dropped).
		Msg("Detection pass complete")

	return summary, nil
}

func (d *Detector) normalizeBatch(logger zerolog.Logger, raws []domain.RawMention, summary *Summary) []domain.Mention {
	mentions := make([]domain.Mention, 0, len(raws))

	for _, raw := range raws {
		mention, err := d.normalizer.Normalize(raw)
		if err != nil {
			summary.Dropped++

			observability.MentionsDropped.WithLabelValues(dropReasonMalformed).Inc()
			logger.Warn().Err(err).Str("url", raw.URL).Msg("dropping malformed mention")

			continue
		}

		observability.MentionsIngested.WithLabelValues(string(mention.SourceType)).Inc()

		mentions = append(mentions, mention)
	}

	return mentions
}

// scoreConcurrently scores every aggregate on a bounded worker pool.
// Insufficient history is advisory and never fails the pass; a scoring
// inconsistency cancels remaining work and aborts.
func (d *Detector) scoreConcurrently(ctx context.Context, logger zerolog.Logger, aggregates []domain.TopicAggregate) ([]cluster.ScoredTopic, error) {
	keys := make([]string, len(aggregates))
	for i, agg := range aggregates {
		keys[i] = agg.EventKey
	}

	baselines, err := d.store.Baselines(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf(errFmtLoadContext, err)
	}

	firstSeen, err := d.store.FirstSeen(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf(errFmtLoadContext, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		fatalErr error
	)

	sem := make(chan struct{}, d.cfg.Workers)
	scored := make([]cluster.ScoredTopic, len(aggregates))

	for i := range aggregates {
		select {
		case <-ctx.Done():
			wg.Wait()

			return nil, ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			topic, err := d.scoreTopic(aggregates[i], baselines, firstSeen, logger)
			if err != nil {
				mu.Lock()
				if fatalErr == nil {
					fatalErr = err
				}
				mu.Unlock()

				cancel()

				return
			}

			scored[i] = topic
		}(i)
	}

	wg.Wait()

	if fatalErr != nil {
		return nil, fatalErr
	}

	return scored, nil
}

func (d *Detector) scoreTopic(
	agg domain.TopicAggregate,
	baselines map[string]velocity.Baseline,
	firstSeen map[string]time.Time,
	logger zerolog.Logger,
) (cluster.ScoredTopic, error) {
	// Velocity works on raw mention volume; the deduped counts on the
	// aggregate exist for corroboration, not rate estimation.
	raw24h := rawVolumeSince(agg.Mentions, d.now().Add(-24*time.Hour))

	vel, err := d.velocity.ComputeVelocity(agg.EventKey, raw24h, baselines[agg.EventKey])
	if err != nil {
		if !coreerrors.Is(err, coreerrors.ErrInsufficientHistory) {
			return cluster.ScoredTopic{}, fmt.Errorf(errFmtScoreTopic, agg.EventKey, err)
		}

		observability.InsufficientHistoryTotal.Inc()
		logger.Debug().Str(logFieldEventKey, agg.EventKey).Msg("scoring against synthetic baseline")
	}

	seenAt, ok := firstSeen[agg.EventKey]
	if !ok {
		seenAt = d.now()
	}

	agg.ZScoreVelocity = vel.ZScore
	agg.Baseline7d = vel.BaselineUsed
	agg.Baseline30d = vel.Baseline30d

	breakdown, err := d.scorer.Score(agg, vel, seenAt)
	if err != nil {
		// Scoring inconsistencies indicate a bug, never bad input.
		return cluster.ScoredTopic{}, fmt.Errorf(errFmtScoreTopic, agg.EventKey, err)
	}

	return cluster.ScoredTopic{
		Agg:        agg,
		Velocity:   vel,
		Breakdown:  breakdown,
		IsTrending: d.scorer.IsTrending(agg, breakdown),
		IsBreaking: d.scorer.IsBreaking(vel, breakdown),
		Stage:      d.scorer.Stage(agg, vel),
	}, nil
}

// persistWithRetry retries transient persistence failures with a fixed
// backoff before giving up.
func (d *Detector) persistWithRetry(ctx context.Context, logger zerolog.Logger, clusters []cluster.Cluster) error {
	var lastErr error

	for attempt := 1; attempt <= d.cfg.PersistAttempts; attempt++ {
		lastErr = d.store.SaveClusters(ctx, clusters)
		if lastErr == nil {
			return nil
		}

		if attempt == d.cfg.PersistAttempts {
			break
		}

		observability.PersistRetriesTotal.Inc()
		logger.Warn().Err(lastErr).Int("attempt", attempt).Msg("persist failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf(errFmtPersist, ctx.Err())
		case <-time.After(d.cfg.PersistBackoff * time.Duration(attempt)):
		}
	}

	return fmt.Errorf(errFmtPersist, lastErr)
}

func rawVolumeSince(mentions []domain.Mention, cutoff time.Time) int {
	count := 0

	for _, mention := range mentions {
		if !mention.PublishedAt.Before(cutoff) {
			count++
		}
	}

	return count
}

func (d *Detector) recordObservations(ctx context.Context, aggregates []domain.TopicAggregate) error {
	if len(aggregates) == 0 {
		return nil
	}

	counts := make(map[string]int, len(aggregates))
	for _, agg := range aggregates {
		counts[agg.EventKey] = len(agg.Mentions)
	}

	return d.store.RecordObservations(ctx, d.now(), counts)
}
