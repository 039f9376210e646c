// Package velocity computes z-score velocity for topics against rolling
// historical baselines. History itself lives in an external time-series
// store; this package only computes the statistic given that history.
package velocity

import (
	"fmt"
	"math"

	apperrors "github.com/vkuksa/trendwatch/internal/core/errors"
)

// Defaults for the reference calibration. All are tunable via Config.
const (
	defaultStddevFloor        = 0.5
	defaultColdStartDivisor   = 3.0
	defaultColdStartZCap      = 5.0
	defaultMinObservations    = 48
	defaultMinCorroboration   = 3
	defaultBreakingZThreshold = 4.0
)

// Baseline is the rolling per-topic history handed in by the caller.
// ObservationCount is the number of hourly samples behind the statistics.
type Baseline struct {
	Mean7d           float64
	Stddev7d         float64
	Mean30d          float64
	Stddev30d        float64
	ObservationCount int
}

// ZScoreResult carries the computed velocity with its provenance.
type ZScoreResult struct {
	ZScore         float64
	BaselineUsed   float64
	Baseline30d    float64
	IsCorroborated bool
	IsSynthetic    bool
}

// Config tunes velocity computation.
type Config struct {
	// StddevFloor prevents division blow-up for near-constant-rate topics.
	StddevFloor float64

	// ColdStartDivisor derives the synthetic baseline for topics without
	// history: baseline = currentRate / divisor. A synthetic baseline near
	// zero would manufacture extreme z-scores for brand-new topics.
	ColdStartDivisor float64

	// ColdStartZCap caps the z-score for topics with fewer than
	// MinObservations historical samples.
	ColdStartZCap float64

	// MinObservations is the history size below which the cap applies.
	MinObservations int

	// MinCorroboration is the 24h deduped mention count required for the
	// corroborated flag.
	MinCorroboration int
}

func (c *Config) applyDefaults() {
	if c.StddevFloor <= 0 {
		c.StddevFloor = defaultStddevFloor
	}

	if c.ColdStartDivisor <= 0 {
		c.ColdStartDivisor = defaultColdStartDivisor
	}

	if c.ColdStartZCap <= 0 {
		c.ColdStartZCap = defaultColdStartZCap
	}

	if c.MinObservations <= 0 {
		c.MinObservations = defaultMinObservations
	}

	if c.MinCorroboration <= 0 {
		c.MinCorroboration = defaultMinCorroboration
	}
}

// Engine computes z-score velocity. It is stateless and safe for
// concurrent use across topics.
type Engine struct {
	cfg Config
}

// New creates an Engine with the given configuration.
func New(cfg Config) *Engine {
	cfg.applyDefaults()

	return &Engine{cfg: cfg}
}

// ComputeVelocity returns the z-score of the topic's current rate against
// its 7-day baseline. For cold topics it substitutes a conservative
// synthetic baseline and returns ErrInsufficientHistory alongside a valid
// result; callers proceed with the dampened velocity rather than failing.
//
// Velocity alone must not gate trending: rare topics score
// disproportionately high here and evergreen topics score low. The quality
// scorer corrects for both.
func (e *Engine) ComputeVelocity(topicKey string, current24h int, history Baseline) (ZScoreResult, error) {
	currentRate := float64(current24h) / 24.0

	if history.ObservationCount == 0 || history.Mean7d <= 0 {
		return e.syntheticVelocity(topicKey, current24h, currentRate)
	}

	stddev := math.Max(history.Stddev7d, e.cfg.StddevFloor)
	z := (currentRate - history.Mean7d) / stddev

	result := ZScoreResult{
		ZScore:         z,
		BaselineUsed:   history.Mean7d,
		Baseline30d:    history.Mean30d,
		IsCorroborated: current24h >= e.cfg.MinCorroboration,
	}

	if history.ObservationCount < e.cfg.MinObservations {
		result.ZScore = capMagnitude(z, e.cfg.ColdStartZCap)
		result.IsSynthetic = true

		return result, fmt.Errorf("topic %s: %d observations: %w",
			topicKey, history.ObservationCount, apperrors.ErrInsufficientHistory)
	}

	return result, nil
}

// syntheticVelocity handles topics with no usable history. The baseline is
// currentRate/divisor rather than zero, and the z-score is capped, so
// brand-new topics cannot manufacture artificially extreme spikes.
func (e *Engine) syntheticVelocity(topicKey string, current24h int, currentRate float64) (ZScoreResult, error) {
	baseline := currentRate / e.cfg.ColdStartDivisor
	stddev := math.Max(baseline, e.cfg.StddevFloor)
	z := capMagnitude((currentRate-baseline)/stddev, e.cfg.ColdStartZCap)

	return ZScoreResult{
		ZScore:         z,
		BaselineUsed:   baseline,
		IsCorroborated: current24h >= e.cfg.MinCorroboration,
		IsSynthetic:    true,
	}, fmt.Errorf("topic %s: no baseline history: %w", topicKey, apperrors.ErrInsufficientHistory)
}

func capMagnitude(z, limit float64) float64 {
	if z > limit {
		return limit
	}

	if z < -limit {
		return -limit
	}

	return z
}
