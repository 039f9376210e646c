// Package config loads runtime configuration from the environment, with
// an optional .env file for local development. Every scoring and decay
// tunable has a calibrated default; only the database DSN is required.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`
	HealthPort  int    `env:"HEALTH_PORT" envDefault:"8080"`
	APIPort     int    `env:"API_PORT" envDefault:"8081"`

	// Ingestion
	FeedURLs         []string      `env:"FEED_URLS" envSeparator:","`
	FeedFetchRPS     float64       `env:"FEED_FETCH_RPS" envDefault:"2"`
	FeedFetchTimeout time.Duration `env:"FEED_FETCH_TIMEOUT" envDefault:"30s"`

	// Entity extraction
	LLMAPIKey          string        `env:"LLM_API_KEY"`
	LLMModel           string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMTimeout         time.Duration `env:"LLM_TIMEOUT" envDefault:"30s"`
	ExtractionMode     string        `env:"EXTRACTION_MODE" envDefault:"heuristic"`
	ExtractionRPS      float64       `env:"EXTRACTION_RPS" envDefault:"2"`
	BlocklistTokens    []string      `env:"BLOCKLIST_TOKENS" envSeparator:","`
	EvergreenTerms     []string      `env:"EVERGREEN_TERMS" envSeparator:","`

	// Detection pass
	DetectInterval     time.Duration `env:"DETECT_INTERVAL" envDefault:"10m"`
	DetectPassTimeout  time.Duration `env:"DETECT_PASS_TIMEOUT" envDefault:"2m"`
	DetectWorkers      int           `env:"DETECT_WORKERS" envDefault:"8"`
	PersistAttempts    int           `env:"PERSIST_ATTEMPTS" envDefault:"3"`
	PersistBackoff     time.Duration `env:"PERSIST_BACKOFF" envDefault:"1s"`
	TrendingMinScore   float64       `env:"TRENDING_MIN_SCORE" envDefault:"50"`
	RecencyDecayHours  int           `env:"RECENCY_DECAY_HOURS" envDefault:"36"`
	RecencyFloor       float64       `env:"RECENCY_FLOOR" envDefault:"0.4"`
	EvergreenFloor     float64       `env:"EVERGREEN_FLOOR" envDefault:"0.30"`
	HighVolumeOverride int           `env:"HIGH_VOLUME_OVERRIDE" envDefault:"20"`

	// Clustering
	ClusterSimilarityThreshold float64 `env:"CLUSTER_SIMILARITY_THRESHOLD" envDefault:"0.75"`
	ClusterJaccardWeight       float64 `env:"CLUSTER_JACCARD_WEIGHT" envDefault:"0.7"`
	ClusterEditWeight          float64 `env:"CLUSTER_EDIT_WEIGHT" envDefault:"0.3"`

	// Relevance pass
	RelevanceInterval time.Duration `env:"RELEVANCE_INTERVAL" envDefault:"15m"`
	RelevanceTopN     int           `env:"RELEVANCE_TOP_N" envDefault:"20"`
	ExplorationBonus  float64       `env:"EXPLORATION_BONUS" envDefault:"10"`

	// Affinity learning and decay
	AffinityAlpha      float64       `env:"AFFINITY_ALPHA" envDefault:"0.3"`
	AffinityDecay      float64       `env:"AFFINITY_DECAY_FACTOR" envDefault:"0.95"`
	AffinityDecayFloor float64       `env:"AFFINITY_DECAY_FLOOR" envDefault:"0.3"`
	AffinityStaleAfter time.Duration `env:"AFFINITY_STALE_AFTER" envDefault:"720h"`
	DecayWeekday       int           `env:"DECAY_WEEKDAY" envDefault:"0"`
	DecayHourUTC       int           `env:"DECAY_HOUR_UTC" envDefault:"3"`

	// Database pool
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"10"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"2"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	return cfg, nil
}
