// Package domain holds the shared data model for the trend detection and
// scoring engine: mentions, topic aggregates, trend events, organization
// profiles, and learned affinities.
package domain

import "time"

// SourceType classifies where a mention was observed.
type SourceType string

// Source type values.
const (
	SourceNews       SourceType = "news"
	SourceSocial     SourceType = "social"
	SourceGovernment SourceType = "government"
)

// LabelQuality grades how well a topic label describes an event.
type LabelQuality string

// Label quality values, from best to worst.
const (
	LabelEventPhrase       LabelQuality = "event_phrase"
	LabelEntityOnly        LabelQuality = "entity_only"
	LabelFallbackGenerated LabelQuality = "fallback_generated"
	LabelUnknown           LabelQuality = "unknown"
)

// TrendStage classifies the lifecycle phase of a trend.
type TrendStage string

// Trend stage values.
const (
	StageEmerging  TrendStage = "emerging"
	StageSurging   TrendStage = "surging"
	StageStable    TrendStage = "stable"
	StageDeclining TrendStage = "declining"
)

// AffinitySource distinguishes declared preferences from learned ones.
// Only learned affinities are subject to decay.
type AffinitySource string

// Affinity source values.
const (
	AffinitySelfDeclared AffinitySource = "self_declared"
	AffinityLearned      AffinitySource = "learned_outcome"
)

// RawMention is the ingestion-boundary payload produced by connectors.
// CanonicalURL is optional; when present it takes precedence over URL
// for redirect-wrapper sources.
type RawMention struct {
	Title         string
	URL           string
	CanonicalURL  string
	PublishedAt   time.Time
	SourceDomain  string
	SourceType    SourceType
	SourceTier    int
	Entities      []string
	PolicyDomains []string
	Geographies   []string
	IsEventPhrase bool
}

// Mention is one normalized, immutable observation of content referencing
// a topic. ContentHash is stable under URL query-parameter, protocol, and
// trailing-slash variation.
type Mention struct {
	SourceType    SourceType
	SourceDomain  string
	CanonicalURL  string
	ContentHash   string
	PublishedAt   time.Time
	DiscoveredAt  time.Time
	Headline      string
	SourceTier    int
	Entities      []string
	PolicyDomains []string
	Geographies   []string
	IsEventPhrase bool
}

// TopicAggregate accumulates evidence for one candidate trend during a
// detection pass. SourceCountDeduped counts distinct source domains and
// is always <= len(Mentions).
type TopicAggregate struct {
	EventKey           string
	EventTitle         string
	IsEventPhrase      bool
	LabelQuality       LabelQuality
	Mentions           []Mention
	SourceCountDeduped int
	Current1h          int
	Current24h         int
	Baseline7d         float64
	Baseline30d        float64
	ZScoreVelocity     float64
	PassesQualityGate  bool
	PolicyDomains      []string
	Geographies        []string
	ClusterID          string
}

// ScoreBreakdown is the fully attributed output of the quality scorer.
// Every factor is named so scoring decisions stay auditable.
type ScoreBreakdown struct {
	Velocity            float64
	Corroboration       float64
	Activity            float64
	RecencyDecay        float64
	EvergreenPenalty    float64
	SingleTokenPenalty  float64
	LabelQualityPenalty float64
	FinalScore          float64
}

// TrendEvent is the persisted, externally visible trend record. Merged-away
// events keep IsTrending=false but are never deleted.
type TrendEvent struct {
	ID                      string
	EventKey                string
	EventTitle              string
	IsEventPhrase           bool
	LabelQuality            LabelQuality
	SourceCountDeduped      int
	MentionCount            int
	Current1h               int
	Current24h              int
	Baseline7d              float64
	Baseline30d             float64
	ZScoreVelocity          float64
	ConfidenceScore         float64
	Breakdown               ScoreBreakdown
	IsTrending              bool
	IsBreaking              bool
	TrendStage              TrendStage
	PolicyDomains           []string
	Geographies             []string
	FirstSeenAt             time.Time
	LastSeenAt              time.Time
	ClusterID               string
	MergedFrom              []string
	IsClusterRepresentative bool
}

// OrgProfile is an organization's declared scoring profile.
type OrgProfile struct {
	ID         string
	Name       string
	Domains    []string
	FocusAreas []string
	Watchlist  []string
}

// OrgTopicAffinity is one organization's learned preference strength for
// one topic. Score stays within [0.2, 0.95]. Self-declared entries are
// immutable to the decay process.
type OrgTopicAffinity struct {
	OrganizationID string
	Topic          string
	AffinityScore  float64
	Source         AffinitySource
	TimesUsed      int
	LastUsedAt     time.Time
}

// OrgRelevanceScore is one organization's computed relevance for one trend
// event. The three components always sum to RelevanceScore and each
// respects its cap (profile <=70, affinity <=20, exploration <=10).
type OrgRelevanceScore struct {
	OrganizationID       string
	TrendEventID         string
	RelevanceScore       float64
	ProfileComponent     float64
	AffinityComponent    float64
	ExplorationComponent float64
	IsNewOpportunity     bool
	Reasons              []string
	ComputedAt           time.Time
}

// Component caps for relevance scoring.
const (
	ProfileComponentCap     = 70.0
	AffinityComponentCap    = 20.0
	ExplorationComponentCap = 10.0
	RelevanceScoreCap       = 100.0
)

// Affinity score bounds.
const (
	AffinityScoreMin = 0.2
	AffinityScoreMax = 0.95
)
