// Package app provides the application bootstrap and runtime orchestration.
//
// The App type wires together all dependencies and exposes methods to run
// different operational modes:
//
//   - Detect mode: scheduled ingestion and trend-detection passes
//   - Relevance mode: scheduled per-organization relevance scoring
//   - Decay mode: weekly affinity decay
//   - Serve mode: the ranked-trends API and outcome feedback endpoint
//
// Each mode can be run independently or combined based on deployment needs.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vkuksa/trendwatch/internal/affinity"
	"github.com/vkuksa/trendwatch/internal/api"
	"github.com/vkuksa/trendwatch/internal/core/domain"
	"github.com/vkuksa/trendwatch/internal/detect"
	"github.com/vkuksa/trendwatch/internal/detect/aggregate"
	"github.com/vkuksa/trendwatch/internal/detect/cluster"
	"github.com/vkuksa/trendwatch/internal/detect/score"
	"github.com/vkuksa/trendwatch/internal/detect/velocity"
	"github.com/vkuksa/trendwatch/internal/ingest/entities"
	"github.com/vkuksa/trendwatch/internal/ingest/normalizer"
	"github.com/vkuksa/trendwatch/internal/ingest/rssfeed"
	"github.com/vkuksa/trendwatch/internal/platform/config"
	"github.com/vkuksa/trendwatch/internal/platform/observability"
	"github.com/vkuksa/trendwatch/internal/platform/worker"
	"github.com/vkuksa/trendwatch/internal/relevance"
	"github.com/vkuksa/trendwatch/internal/storage"
)

const (
	taskDetect     = "trend-detection"
	taskRelevance  = "relevance-scoring"
	taskDecayCheck = "decay-check"
	taskDecay      = "affinity decay"

	decayCheckInterval = 10 * time.Minute
)

// App holds the application dependencies and provides methods to run
// different modes.
type App struct {
	cfg      *config.Config
	database *storage.DB
	logger   *zerolog.Logger
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, database *storage.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

// StartHealthServer starts the health check and metrics server.
func (a *App) StartHealthServer(ctx context.Context) error {
	srv := observability.NewServer(a.database, a.cfg.HealthPort, a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

// RunDetect runs scheduled detection passes, or a single pass when once
// is set.
func (a *App) RunDetect(ctx context.Context, once bool) error {
	a.logger.Info().Msg("starting detect mode")

	fetcher := a.newFetcher()
	enricher := entities.NewEnricher(a.newExtractionProvider(), *a.logger)
	detector := a.newDetector()

	runPass := func(ctx context.Context) {
		defer worker.RecoverPanic(a.logger, taskDetect)

		a.detectPass(ctx, fetcher, enricher, detector)
	}

	if once {
		runPass(ctx)

		return nil
	}

	return worker.TickerLoop(ctx, worker.TickerConfig{
		Name: taskDetect,
		Tasks: []worker.Task{
			{Name: taskDetect, Interval: a.cfg.DetectInterval, Run: runPass, RunOnStart: true},
		},
		Logger: a.logger,
	})
}

// detectPass fetches, enriches, and detects under the detection advisory
// lock, so concurrent replicas never run overlapping passes.
func (a *App) detectPass(ctx context.Context, fetcher *rssfeed.Fetcher, enricher *entities.Enricher, detector *detect.Detector) {
	acquired, err := a.database.TryAcquireAdvisoryLock(ctx, storage.LockDetectionPass)
	if err != nil {
		a.logger.Error().Err(err).Msg("detection lock acquisition failed")

		return
	}

	if !acquired {
		a.logger.Info().Msg("detection pass already running elsewhere, skipping")

		return
	}

	defer func() {
		if err := a.database.ReleaseAdvisoryLock(ctx, storage.LockDetectionPass); err != nil {
			a.logger.Warn().Err(err).Msg("detection lock release failed")
		}
	}()

	raws := fetcher.FetchAll(ctx)
	raws = enricher.Enrich(ctx, raws)

	summary, err := detector.RunPass(ctx, raws)
	if err != nil {
		a.logger.Error().Err(err).Msg("detection pass failed")

		return
	}

	a.logger.Info().
		Int("ingested", summary.Ingested).
		Int("dropped", summary.Dropped).
		Int("topics", summary.Topics).
		Int("trending", summary.Trending).
		Msg("detection pass complete")
}

// RunRelevance runs scheduled relevance passes, or a single pass when
// once is set.
func (a *App) RunRelevance(ctx context.Context, once bool) error {
	a.logger.Info().Msg("starting relevance mode")

	runner := relevance.NewRunner(
		relevance.RunnerConfig{},
		relevance.New(relevance.Config{
			ExplorationBonus: a.cfg.ExplorationBonus,
			TopN:             a.cfg.RelevanceTopN,
		}),
		a.database,
		a.logger,
	)

	runPass := func(ctx context.Context) {
		defer worker.RecoverPanic(a.logger, taskRelevance)

		if err := runner.RunPass(ctx); err != nil {
			a.logger.Error().Err(err).Msg("relevance pass failed")
		}
	}

	if once {
		runPass(ctx)

		return nil
	}

	return worker.TickerLoop(ctx, worker.TickerConfig{
		Name: taskRelevance,
		Tasks: []worker.Task{
			{Name: taskRelevance, Interval: a.cfg.RelevanceInterval, Run: runPass, RunOnStart: true},
		},
		Logger: a.logger,
	})
}

// RunDecay runs the weekly affinity decay schedule, or one decay pass
// immediately when once is set.
func (a *App) RunDecay(ctx context.Context, once bool) error {
	a.logger.Info().Msg("starting decay mode")

	learner := a.newLearner()

	if once {
		a.decayPass(ctx, learner)

		return nil
	}

	scheduler := worker.NewWeeklyScheduler(a.logger)
	scheduler.AddTask(&worker.WeeklyTask{
		Name: taskDecay,
		Day:  time.Weekday(a.cfg.DecayWeekday),
		Hour: a.cfg.DecayHourUTC,
		Run: func(ctx context.Context, _ *zerolog.Logger) error {
			a.decayPass(ctx, learner)

			return nil
		},
	})

	return worker.TickerLoop(ctx, worker.TickerConfig{
		Name: taskDecayCheck,
		Tasks: []worker.Task{
			{Name: taskDecayCheck, Interval: decayCheckInterval, Run: scheduler.CheckAndRun},
		},
		Logger: a.logger,
	})
}

func (a *App) decayPass(ctx context.Context, learner *affinity.Learner) {
	acquired, err := a.database.TryAcquireAdvisoryLock(ctx, storage.LockDecayPass)
	if err != nil {
		a.logger.Error().Err(err).Msg("decay lock acquisition failed")

		return
	}

	if !acquired {
		a.logger.Info().Msg("decay pass already running elsewhere, skipping")

		return
	}

	defer func() {
		if err := a.database.ReleaseAdvisoryLock(ctx, storage.LockDecayPass); err != nil {
			a.logger.Warn().Err(err).Msg("decay lock release failed")
		}
	}()

	decayed, err := learner.DecayStale(ctx, time.Now())
	if err != nil {
		a.logger.Error().Err(err).Int("decayed", len(decayed)).Msg("decay pass failed")

		return
	}

	a.logger.Info().Int("decayed", len(decayed)).Msg("decay pass complete")
}

// RunServe runs the API server.
func (a *App) RunServe(ctx context.Context) error {
	a.logger.Info().Msg("starting serve mode")

	handler := api.NewHandler(a.database, a.newLearner(), a.logger)
	srv := api.NewServer(handler, a.cfg.APIPort, a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}

	return nil
}

func (a *App) newFetcher() *rssfeed.Fetcher {
	feeds := make([]rssfeed.Feed, 0, len(a.cfg.FeedURLs))
	for _, url := range a.cfg.FeedURLs {
		feeds = append(feeds, rssfeed.Feed{URL: url, SourceType: domain.SourceNews, SourceTier: 2})
	}

	return rssfeed.New(feeds, a.cfg.FeedFetchRPS, a.cfg.FeedFetchTimeout, *a.logger)
}

// newExtractionProvider returns the LLM provider when configured, nil
// otherwise. A nil provider means the heuristic extractor handles
// everything.
func (a *App) newExtractionProvider() entities.Provider {
	if a.cfg.ExtractionMode != "llm" || a.cfg.LLMAPIKey == "" {
		return nil
	}

	return entities.NewOpenAIProvider(a.cfg.LLMAPIKey, a.cfg.LLMModel, a.cfg.ExtractionRPS, *a.logger)
}

func (a *App) newDetector() *detect.Detector {
	return detect.New(
		detect.Config{
			Workers:         a.cfg.DetectWorkers,
			PassTimeout:     a.cfg.DetectPassTimeout,
			PersistAttempts: a.cfg.PersistAttempts,
			PersistBackoff:  a.cfg.PersistBackoff,
		},
		normalizer.New(),
		aggregate.New(aggregate.Config{Blocklist: a.blocklist()}),
		velocity.New(velocity.Config{}),
		score.New(score.Config{
			EvergreenTerms:      a.evergreenTerms(),
			EvergreenFloor:      a.cfg.EvergreenFloor,
			RecencyDecayHours:   a.cfg.RecencyDecayHours,
			RecencyFloor:        a.cfg.RecencyFloor,
			HighVolumeThreshold: a.cfg.HighVolumeOverride,
			TrendingMinScore:    a.cfg.TrendingMinScore,
		}),
		cluster.New(cluster.Config{
			Threshold:     a.cfg.ClusterSimilarityThreshold,
			JaccardWeight: a.cfg.ClusterJaccardWeight,
			EditWeight:    a.cfg.ClusterEditWeight,
		}),
		a.database,
		a.logger,
	)
}

func (a *App) newLearner() *affinity.Learner {
	return affinity.New(affinity.Config{
		Alpha:       a.cfg.AffinityAlpha,
		DecayFactor: a.cfg.AffinityDecay,
		DecayFloor:  a.cfg.AffinityDecayFloor,
		StaleAfter:  a.cfg.AffinityStaleAfter,
	}, a.database, a.logger)
}

func (a *App) blocklist() []string {
	if len(a.cfg.BlocklistTokens) > 0 {
		return a.cfg.BlocklistTokens
	}

	return aggregate.DefaultBlocklist()
}

func (a *App) evergreenTerms() []string {
	if len(a.cfg.EvergreenTerms) > 0 {
		return a.cfg.EvergreenTerms
	}

	return score.DefaultEvergreenTerms()
}
