package score

import (
	"sort"
	"strings"
)

// Reference calibration. Every value is tunable via Config; the penalty
// floors in particular are deliberately non-trivial so stacked penalties
// cannot mathematically erase a legitimately huge story.
const (
	defaultVelocityPointsPerZ  = 10.0
	defaultCorroborationPoints = 5.0
	defaultActivityPointsPer   = 0.8

	defaultEvergreenFloor  = 0.30
	defaultEvergreenRelaxZ = 3.0

	defaultSingleTokenPenalty = 0.75
	defaultSingleTokenFloor   = 0.60

	defaultEntityOnlyPenalty = 0.85
	defaultFallbackPenalty   = 0.70

	defaultRecencyDecayHours = 36
	defaultRecencyFloor      = 0.40

	defaultHighVolumeThreshold = 20
	defaultHighVolumeFloor     = 0.50

	defaultTrendingMinScore = 50.0
	defaultSurgeVolume1h    = 20
	defaultSurgeZ           = 3.0
	defaultEmergingZ        = 1.5
	defaultDecliningZ       = -1.0
	defaultBreakingZ        = 4.0
)

// Component caps for the composite confidence formula.
const (
	VelocityCap      = 50.0
	CorroborationCap = 30.0
	ActivityCap      = 20.0
)

// Config tunes the quality scorer. The evergreen set is injected,
// versioned configuration, not an ambient global.
type Config struct {
	// EvergreenTerms are perpetually-discussed entities/terms that need a
	// genuine spike, not mere presence, to trend.
	EvergreenTerms []string

	// EvergreenFloor bounds the evergreen penalty from below. An overly
	// aggressive floor buries high-volume evergreen stories entirely; keep
	// it at or above 0.30.
	EvergreenFloor float64

	// EvergreenRelaxZ is the z-score at which the evergreen penalty fully
	// relaxes to 1.0.
	EvergreenRelaxZ float64

	// SingleTokenPenalty stacks on the evergreen penalty for single-word
	// labels; SingleTokenFloor bounds their product contribution.
	SingleTokenPenalty float64
	SingleTokenFloor   float64

	// EntityOnlyPenalty and FallbackPenalty grade label quality relative
	// to well-formed event phrases.
	EntityOnlyPenalty float64
	FallbackPenalty   float64

	// RecencyDecayHours and RecencyFloor control the smooth score decay
	// from first detection. The floor keeps still-active topics alive.
	RecencyDecayHours int
	RecencyFloor      float64

	// HighVolumeThreshold and HighVolumeFloor implement the high-volume
	// override: past the threshold the combined penalty multiplier never
	// drops below the floor, regardless of penalty stacking.
	HighVolumeThreshold int
	HighVolumeFloor     float64

	// TrendingMinScore is the final-score bar for IsTrending.
	TrendingMinScore float64

	// Stage thresholds. SurgeVolume1h is the absolute last-hour volume
	// that forces "surging" independent of z-score.
	SurgeVolume1h int
	SurgeZ        float64
	EmergingZ     float64
	DecliningZ    float64
	BreakingZ     float64

	evergreenSet map[string]struct{}
}

// DefaultEvergreenTerms is the reference evergreen set.
func DefaultEvergreenTerms() []string {
	return []string{
		"trump", "biden", "putin", "congress", "senate", "white house",
		"supreme court", "ukraine", "china", "economy", "inflation",
	}
}

func (c *Config) applyDefaults() {
	if c.EvergreenTerms == nil {
		c.EvergreenTerms = DefaultEvergreenTerms()
	}

	if c.EvergreenFloor <= 0 {
		c.EvergreenFloor = defaultEvergreenFloor
	}

	if c.EvergreenRelaxZ <= 0 {
		c.EvergreenRelaxZ = defaultEvergreenRelaxZ
	}

	if c.SingleTokenPenalty <= 0 {
		c.SingleTokenPenalty = defaultSingleTokenPenalty
	}

	if c.SingleTokenFloor <= 0 {
		c.SingleTokenFloor = defaultSingleTokenFloor
	}

	if c.EntityOnlyPenalty <= 0 {
		c.EntityOnlyPenalty = defaultEntityOnlyPenalty
	}

	if c.FallbackPenalty <= 0 {
		c.FallbackPenalty = defaultFallbackPenalty
	}

	if c.RecencyDecayHours <= 0 {
		c.RecencyDecayHours = defaultRecencyDecayHours
	}

	if c.RecencyFloor <= 0 {
		c.RecencyFloor = defaultRecencyFloor
	}

	if c.HighVolumeThreshold <= 0 {
		c.HighVolumeThreshold = defaultHighVolumeThreshold
	}

	if c.HighVolumeFloor <= 0 {
		c.HighVolumeFloor = defaultHighVolumeFloor
	}

	if c.TrendingMinScore <= 0 {
		c.TrendingMinScore = defaultTrendingMinScore
	}

	if c.SurgeVolume1h <= 0 {
		c.SurgeVolume1h = defaultSurgeVolume1h
	}

	if c.SurgeZ <= 0 {
		c.SurgeZ = defaultSurgeZ
	}

	if c.EmergingZ <= 0 {
		c.EmergingZ = defaultEmergingZ
	}

	if c.DecliningZ >= 0 {
		c.DecliningZ = defaultDecliningZ
	}

	if c.BreakingZ <= 0 {
		c.BreakingZ = defaultBreakingZ
	}

	// Terms are normalized the same way topic keys are (lowercase, sorted
	// tokens) so multi-word entries like "white house" match their keys.
	c.evergreenSet = make(map[string]struct{}, len(c.EvergreenTerms))
	for _, term := range c.EvergreenTerms {
		tokens := strings.Fields(strings.ToLower(strings.TrimSpace(term)))
		sort.Strings(tokens)
		c.evergreenSet[strings.Join(tokens, " ")] = struct{}{}
	}
}
