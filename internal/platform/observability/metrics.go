package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MentionsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trend_mentions_ingested_total",
		Help: "The total number of raw mentions ingested",
	}, []string{"source_type"})

	MentionsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trend_mentions_dropped_total",
		Help: "Total number of dropped mentions by reason",
	}, []string{"reason"})

	DetectPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trend_detect_passes_total",
		Help: "The total number of detection passes by outcome",
	}, []string{"status"})

	DetectPassDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trend_detect_pass_duration_seconds",
		Help:    "Duration in seconds of a full detection pass",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
	})

	TopicsAggregated = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trend_topics_aggregated",
		Help: "Number of topic aggregates produced by the last detection pass",
	})

	TrendingEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trend_trending_events",
		Help: "Number of trending representatives persisted by the last detection pass",
	})

	TopicsMerged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trend_topics_merged_total",
		Help: "Total number of near-duplicate topics merged by clustering",
	})

	InsufficientHistoryTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trend_insufficient_history_total",
		Help: "Total number of topics scored against synthetic or thin baselines",
	})

	PersistRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trend_persist_retries_total",
		Help: "Total number of retried trend event persistence attempts",
	})

	RelevancePassDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trend_relevance_pass_duration_seconds",
		Help:    "Duration in seconds of a relevance scoring pass across organizations",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
	})

	RelevanceScoresComputed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trend_relevance_scores_computed_total",
		Help: "Total number of per-organization relevance scores computed",
	})

	AffinityUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trend_affinity_updates_total",
		Help: "Total number of affinity updates by source",
	}, []string{"source"})

	AffinityDecayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trend_affinity_decayed_total",
		Help: "Total number of stale learned affinities decayed",
	})

	FeedFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trend_feed_fetches_total",
		Help: "The total number of feed fetch attempts by outcome",
	}, []string{"status"})

	FeedFetchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trend_feed_fetch_duration_seconds",
		Help:    "Duration of a single feed fetch",
		Buckets: prometheus.DefBuckets,
	})

	EntityExtractionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trend_entity_extraction_duration_seconds",
		Help:    "Duration of entity extraction requests",
		Buckets: prometheus.DefBuckets,
	})

	EntityExtractionFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trend_entity_extraction_fallbacks_total",
		Help: "Total number of mentions labeled by the heuristic fallback extractor",
	})

	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trend_api_requests_total",
		Help: "The total number of API requests by endpoint and status",
	}, []string{"endpoint", "status"})
)
