package aggregate

import "strings"

// Default quality-gate thresholds. All of these are tunable via Config;
// the defaults match the reference calibration.
const (
	defaultMinMentions            = 3
	defaultMinDomains             = 2
	defaultSingleTokenMinMentions = 8
	defaultSingleTokenMinDomains  = 4
)

// Config carries the injected aggregation settings. A zero Config gets
// reference defaults applied by New.
type Config struct {
	// Blocklist rejects pure-noise single tokens outright
	// (e.g. "breaking", "video", "update").
	Blocklist []string

	// AmbiguousBlocklist maps short tokens that double as legitimate
	// acronyms to the co-occurring keywords that confirm the noise
	// reading. Without a confirming keyword the token passes through.
	AmbiguousBlocklist map[string][]string

	// MinMentions and MinDomains gate multi-word topics.
	MinMentions int
	MinDomains  int

	// SingleTokenMinMentions and SingleTokenMinDomains gate single-word
	// topics, which need stronger evidence to trend.
	SingleTokenMinMentions int
	SingleTokenMinDomains  int

	blocklistSet map[string]struct{}
}

// DefaultBlocklist is the reference noise-token set.
func DefaultBlocklist() []string {
	return []string{"breaking", "video", "update", "live", "watch", "news", "report", "exclusive"}
}

func (c *Config) applyDefaults() {
	if c.Blocklist == nil {
		c.Blocklist = DefaultBlocklist()
	}

	if c.MinMentions <= 0 {
		c.MinMentions = defaultMinMentions
	}

	if c.MinDomains <= 0 {
		c.MinDomains = defaultMinDomains
	}

	if c.SingleTokenMinMentions <= 0 {
		c.SingleTokenMinMentions = defaultSingleTokenMinMentions
	}

	if c.SingleTokenMinDomains <= 0 {
		c.SingleTokenMinDomains = defaultSingleTokenMinDomains
	}

	c.blocklistSet = make(map[string]struct{}, len(c.Blocklist))
	for _, token := range c.Blocklist {
		c.blocklistSet[strings.ToLower(strings.TrimSpace(token))] = struct{}{}
	}
}
