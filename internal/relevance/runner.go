package relevance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vkuksa/trendwatch/internal/core/domain"
	"github.com/vkuksa/trendwatch/internal/platform/observability"
)

const (
	defaultRunnerWorkers = 4
	defaultTrendLimit    = 200

	logFieldCorrelationID = "correlation_id"
	logFieldOrg           = "organization_id"
	logFieldOrgs          = "organizations"
	logFieldScores        = "scores"
)

// RunnerStore is the persistence surface of the relevance pass.
type RunnerStore interface {
	OrgProfiles(ctx context.Context) ([]domain.OrgProfile, error)
	TrendingRepresentatives(ctx context.Context, limit int) ([]domain.TrendEvent, error)
	AffinitiesForOrg(ctx context.Context, orgID string) ([]domain.OrgTopicAffinity, error)
	SaveRelevanceScores(ctx context.Context, orgID string, scores []domain.OrgRelevanceScore) error
}

// RunnerConfig tunes the pass orchestration.
type RunnerConfig struct {
	// Workers bounds the number of organizations scored concurrently.
	Workers int

	// TrendLimit caps how many trending representatives the pass loads.
	TrendLimit int
}

func (c *RunnerConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = defaultRunnerWorkers
	}

	if c.TrendLimit <= 0 {
		c.TrendLimit = defaultTrendLimit
	}
}

// Runner executes one relevance pass: load the trending set once, then
// score and rank it for every organization in parallel. A failing
// organization is logged and skipped; its stored ranking simply stays at
// the previous pass.
type Runner struct {
	cfg    RunnerConfig
	scorer *Scorer
	store  RunnerStore
	logger *zerolog.Logger
}

func NewRunner(cfg RunnerConfig, scorer *Scorer, store RunnerStore, logger *zerolog.Logger) *Runner {
	cfg.applyDefaults()

	return &Runner{cfg: cfg, scorer: scorer, store: store, logger: logger}
}

// RunPass scores every organization against the current trending set.
func (r *Runner) RunPass(ctx context.Context) error {
	logger := r.logger.With().Str(logFieldCorrelationID, uuid.NewString()).Logger()
	start := time.Now()

	defer func() {
		observability.RelevancePassDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	orgs, err := r.store.OrgProfiles(ctx)
	if err != nil {
		return fmt.Errorf("relevance pass: %w", err)
	}

	trends, err := r.store.TrendingRepresentatives(ctx, r.cfg.TrendLimit)
	if err != nil {
		return fmt.Errorf("relevance pass: %w", err)
	}

	if len(orgs) == 0 || len(trends) == 0 {
		logger.Debug().Int(logFieldOrgs, len(orgs)).Int("trends", len(trends)).Msg("relevance pass: nothing to score")

		return nil
	}

	var wg sync.WaitGroup

	sem := make(chan struct{}, r.cfg.Workers)

	for _, org := range orgs {
		select {
		case <-ctx.Done():
			wg.Wait()

			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)

		go func(org domain.OrgProfile) {
			defer wg.Done()
			defer func() { <-sem }()

			r.scoreOrg(ctx, logger, org, trends)
		}(org)
	}

	wg.Wait()

	logger.Info().Int(logFieldOrgs, len(orgs)).Int("trends", len(trends)).Msg("relevance pass complete")

	return nil
}

func (r *Runner) scoreOrg(ctx context.Context, logger zerolog.Logger, org domain.OrgProfile, trends []domain.TrendEvent) {
	affinities, err := r.store.AffinitiesForOrg(ctx, org.ID)
	if err != nil {
		logger.Error().Err(err).Str(logFieldOrg, org.ID).Msg("load affinities failed")

		return
	}

	scores, err := r.scorer.RankForOrg(org, trends, affinities)
	if err != nil {
		logger.Error().Err(err).Str(logFieldOrg, org.ID).Msg("ranking failed")

		return
	}

	if err := r.store.SaveRelevanceScores(ctx, org.ID, scores); err != nil {
		logger.Error().Err(err).Str(logFieldOrg, org.ID).Msg("save relevance scores failed")

		return
	}

	observability.RelevanceScoresComputed.Add(float64(len(scores)))
	logger.Debug().Str(logFieldOrg, org.ID).Int(logFieldScores, len(scores)).Msg("organization scored")
}
