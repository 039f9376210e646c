package cluster

import (
	"fmt"
	"testing"

	"github.com/vkuksa/trendwatch/internal/core/domain"
	"github.com/vkuksa/trendwatch/internal/detect/velocity"
)

const (
	errUnexpectedSimilarity   = "similarity(%q, %q) = %.3f, want %s"
	errUnexpectedClusterCount = "got %d clusters, want %d"
)

func TestSimilarityWordOrderIndependent(t *testing.T) {
	a := "Trump Fires FBI Director"
	b := "FBI Director Fired by Trump"

	sim := Similarity(a, b, Config{})
	if sim < 0.95 {
		t.Fatalf(errUnexpectedSimilarity, a, b, sim, ">= 0.95")
	}
}

func TestSimilarityAliasAndInflection(t *testing.T) {
	a := "EU Proposes Greenland Tariff Review"
	b := "European Union Reviews Greenland Tariffs"

	sim := Similarity(a, b, Config{})
	if sim <= 0.75 {
		t.Fatalf(errUnexpectedSimilarity, a, b, sim, "> 0.75")
	}
}

func TestSimilarityDissimilarLabels(t *testing.T) {
	a := "Senate Passes Infrastructure Bill"
	b := "EU Proposes Greenland Tariff Review"

	sim := Similarity(a, b, Config{})
	if sim > 0.4 {
		t.Fatalf(errUnexpectedSimilarity, a, b, sim, "<= 0.4")
	}
}

func TestSimilarityEmptyLabel(t *testing.T) {
	cases := []struct {
		a, b string
	}{
		{"", "Senate Passes Infrastructure Bill"},
		{"Senate Passes Infrastructure Bill", ""},
		{"", ""},
		{"   ", "!!!"},
	}

	for _, tc := range cases {
		if sim := Similarity(tc.a, tc.b, Config{}); sim != 0 {
			t.Errorf(errUnexpectedSimilarity, tc.a, tc.b, sim, "0")
		}
	}
}

func TestClusterMergesNearDuplicates(t *testing.T) {
	engine := testEngine()

	topics := []ScoredTopic{
		scoredTopic("greenland proposes review tariff", "EU Proposes Greenland Tariff Review", true, 72, 8),
		scoredTopic("european greenland reviews tariffs union", "European Union Reviews Greenland Tariffs", true, 55, 4),
	}

	clusters := engine.Cluster(topics)
	if len(clusters) != 1 {
		t.Fatalf(errUnexpectedClusterCount, len(clusters), 1)
	}

	got := clusters[0]

	if !got.Representative.IsTrending {
		t.Error("representative lost trending status in merge")
	}

	if got.Representative.Agg.EventTitle != "EU Proposes Greenland Tariff Review" {
		t.Errorf("representative = %q, want the higher-confidence topic", got.Representative.Agg.EventTitle)
	}

	if len(got.MergedFrom) != 1 || got.MergedFrom[0] != "european greenland reviews tariffs union" {
		t.Errorf("mergedFrom = %v, want the merged topic's key", got.MergedFrom)
	}

	if len(got.Merged) != 1 {
		t.Fatalf("got %d merged members, want 1", len(got.Merged))
	}

	if got.Merged[0].IsTrending {
		t.Error("merged member must be demoted, still trending")
	}

	if got.Representative.Agg.ClusterID != got.ID || got.Merged[0].Agg.ClusterID != got.ID {
		t.Error("cluster id not stamped on all members")
	}
}

func TestClusterKeepsDissimilarSeparate(t *testing.T) {
	engine := testEngine()

	topics := []ScoredTopic{
		scoredTopic("bill infrastructure passes senate", "Senate Passes Infrastructure Bill", true, 64, 8),
		scoredTopic("greenland proposes review tariff", "EU Proposes Greenland Tariff Review", true, 72, 6),
	}

	clusters := engine.Cluster(topics)
	if len(clusters) != 2 {
		t.Fatalf(errUnexpectedClusterCount, len(clusters), 2)
	}

	for _, c := range clusters {
		if len(c.MergedFrom) != 0 {
			t.Errorf("cluster %s has unexpected merges: %v", c.ID, c.MergedFrom)
		}
	}
}

func TestClusterRepresentativePriority(t *testing.T) {
	engine := testEngine()

	// An event-phrase label wins representative selection even against a
	// higher-confidence entity-only duplicate.
	phrase := scoredTopic("director fbi fires trump", "Trump Fires FBI Director", true, 58, 5)
	phrase.Agg.IsEventPhrase = true

	entity := scoredTopic("by director fbi fired trump", "FBI Director Fired by Trump", true, 80, 9)
	entity.Agg.IsEventPhrase = false

	clusters := engine.Cluster([]ScoredTopic{entity, phrase})
	if len(clusters) != 1 {
		t.Fatalf(errUnexpectedClusterCount, len(clusters), 1)
	}

	if !clusters[0].Representative.Agg.IsEventPhrase {
		t.Errorf("representative = %q, want the event-phrase topic", clusters[0].Representative.Agg.EventTitle)
	}
}

func TestClusterMergeAccumulatesEvidence(t *testing.T) {
	engine := testEngine()

	a := scoredTopic("director fbi fires trump", "Trump Fires FBI Director", true, 70, 3)
	a.Agg.Current1h = 5
	a.Agg.Current24h = 12
	a.Velocity.ZScore = 2.1
	a.Agg.Mentions = []domain.Mention{
		mention("hash-1", "reuters.com"),
		mention("hash-2", "apnews.com"),
	}

	b := scoredTopic("by director fbi fired trump", "FBI Director Fired by Trump", false, 40, 2)
	b.Agg.Current1h = 3
	b.Agg.Current24h = 7
	b.Velocity.ZScore = 3.4
	b.Agg.Mentions = []domain.Mention{
		mention("hash-2", "apnews.com"),
		mention("hash-3", "bbc.com"),
	}

	clusters := engine.Cluster([]ScoredTopic{a, b})
	if len(clusters) != 1 {
		t.Fatalf(errUnexpectedClusterCount, len(clusters), 1)
	}

	rep := clusters[0].Representative

	if rep.Agg.Current1h != 8 || rep.Agg.Current24h != 19 {
		t.Errorf("accumulated counts = %d/%d, want 8/19", rep.Agg.Current1h, rep.Agg.Current24h)
	}

	if len(rep.Agg.Mentions) != 3 {
		t.Errorf("got %d mentions after union, want 3 (hash-2 deduped)", len(rep.Agg.Mentions))
	}

	if rep.Agg.SourceCountDeduped != 3 {
		t.Errorf("sourceCountDeduped = %d, want 3", rep.Agg.SourceCountDeduped)
	}

	if rep.Velocity.ZScore != 3.4 {
		t.Errorf("z-score = %.1f, want the maximum across members (3.4)", rep.Velocity.ZScore)
	}

	if !rep.IsTrending {
		t.Error("representative must stay trending when any member was")
	}
}

func TestClusterDeterministicAcrossInputOrder(t *testing.T) {
	topics := []ScoredTopic{
		scoredTopic("director fbi fires trump", "Trump Fires FBI Director", true, 58, 5),
		scoredTopic("by director fbi fired trump", "FBI Director Fired by Trump", true, 80, 9),
		scoredTopic("bill infrastructure passes senate", "Senate Passes Infrastructure Bill", true, 64, 8),
	}

	reversed := []ScoredTopic{topics[2], topics[1], topics[0]}

	forward := testEngine().Cluster(topics)
	backward := testEngine().Cluster(reversed)

	if len(forward) != len(backward) {
		t.Fatalf("cluster count differs by input order: %d vs %d", len(forward), len(backward))
	}

	for i := range forward {
		if forward[i].Representative.Agg.EventKey != backward[i].Representative.Agg.EventKey {
			t.Errorf("representative %d differs by input order: %q vs %q",
				i, forward[i].Representative.Agg.EventKey, backward[i].Representative.Agg.EventKey)
		}
	}
}

func testEngine() *Engine {
	seq := 0

	return NewWithIDs(Config{}, func() string {
		seq++

		return fmt.Sprintf("cluster-%d", seq)
	})
}

func scoredTopic(key, title string, trending bool, score float64, sources int) ScoredTopic {
	return ScoredTopic{
		Agg: domain.TopicAggregate{
			EventKey:           key,
			EventTitle:         title,
			IsEventPhrase:      true,
			SourceCountDeduped: sources,
		},
		Velocity:   velocity.ZScoreResult{ZScore: 2.0},
		Breakdown:  domain.ScoreBreakdown{FinalScore: score},
		IsTrending: trending,
	}
}

func mention(hash, sourceDomain string) domain.Mention {
	return domain.Mention{ContentHash: hash, SourceDomain: sourceDomain}
}
