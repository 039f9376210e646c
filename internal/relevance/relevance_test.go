package relevance

import (
	"fmt"
	"testing"
	"time"

	"github.com/vkuksa/trendwatch/internal/core/domain"
	apperrors "github.com/vkuksa/trendwatch/internal/core/errors"
)

const errFmtScoreForOrg = "ScoreForOrg() error = %v"

func testScorer() *Scorer {
	return NewWithClock(Config{}, func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	})
}

func trendEvent(id, key, title string, policyDomains ...string) domain.TrendEvent {
	return domain.TrendEvent{
		ID:                      id,
		EventKey:                key,
		EventTitle:              title,
		PolicyDomains:           policyDomains,
		IsTrending:              true,
		IsClusterRepresentative: true,
	}
}

func TestScoreDecomposition(t *testing.T) {
	scorer := testScorer()

	org := domain.OrgProfile{
		ID:         "org-1",
		Domains:    []string{"Healthcare"},
		FocusAreas: []string{"drug pricing"},
		Watchlist:  []string{"medicare"},
	}

	affinities := []domain.OrgTopicAffinity{
		{OrganizationID: "org-1", Topic: "healthcare", AffinityScore: 0.8, Source: domain.AffinityLearned},
	}

	trend := trendEvent("t-1", "drug medicare pricing reform", "Medicare Drug Pricing Reform", "Healthcare")

	score, err := scorer.ScoreForOrg(org, trend, affinities)
	if err != nil {
		t.Fatalf(errFmtScoreForOrg, err)
	}

	sum := score.ProfileComponent + score.AffinityComponent + score.ExplorationComponent
	if score.RelevanceScore != sum {
		t.Errorf("relevanceScore %.1f != component sum %.1f", score.RelevanceScore, sum)
	}

	if score.ProfileComponent > domain.ProfileComponentCap {
		t.Errorf("profile %.1f exceeds cap", score.ProfileComponent)
	}

	if score.AffinityComponent > domain.AffinityComponentCap {
		t.Errorf("affinity %.1f exceeds cap", score.AffinityComponent)
	}

	if score.ExplorationComponent > domain.ExplorationComponentCap {
		t.Errorf("exploration %.1f exceeds cap", score.ExplorationComponent)
	}

	if score.RelevanceScore > domain.RelevanceScoreCap {
		t.Errorf("total %.1f exceeds cap", score.RelevanceScore)
	}

	if len(score.Reasons) == 0 {
		t.Error("reasons must never be empty")
	}
}

func TestColdStartFairness(t *testing.T) {
	scorer := testScorer()

	trend := trendEvent("t-1", "drug medicare pricing reform", "Medicare Drug Pricing Reform", "Healthcare")

	// Brand-new organization: declared domains, zero learned history.
	fresh := domain.OrgProfile{ID: "org-new", Domains: []string{"Healthcare"}}

	score, err := scorer.ScoreForOrg(fresh, trend, nil)
	if err != nil {
		t.Fatalf(errFmtScoreForOrg, err)
	}

	if score.RelevanceScore < 40 {
		t.Errorf("cold-start score = %.1f, want >= 40", score.RelevanceScore)
	}

	if !score.IsNewOpportunity {
		t.Error("zero-history topic should carry the exploration flag")
	}
}

func TestTrueColdStartFallsBackToBreakingSignals(t *testing.T) {
	scorer := testScorer()

	// No declared domains, no affinities: still a valid, non-zero score.
	org := domain.OrgProfile{ID: "org-empty"}

	breaking := trendEvent("t-1", "bill infrastructure passes senate", "Senate Passes Infrastructure Bill", "Infrastructure")
	breaking.IsBreaking = true

	score, err := scorer.ScoreForOrg(org, breaking, nil)
	if err != nil {
		t.Fatalf(errFmtScoreForOrg, err)
	}

	if score.RelevanceScore == 0 {
		t.Error("true cold start must still produce a usable score")
	}

	if len(score.Reasons) == 0 {
		t.Error("reasons must never be empty")
	}
}

func TestAffinityAveragedNotMaxed(t *testing.T) {
	scorer := testScorer()

	org := domain.OrgProfile{ID: "org-1", Domains: []string{"Healthcare"}}
	trend := trendEvent("t-1", "drug medicare pricing reform", "Medicare Drug Pricing Reform", "Healthcare", "Pharma")

	affinities := []domain.OrgTopicAffinity{
		{OrganizationID: "org-1", Topic: "healthcare", AffinityScore: 0.9},
		{OrganizationID: "org-1", Topic: "pharma", AffinityScore: 0.3},
	}

	score, err := scorer.ScoreForOrg(org, trend, affinities)
	if err != nil {
		t.Fatalf(errFmtScoreForOrg, err)
	}

	want := (0.9 + 0.3) / 2 * domain.AffinityComponentCap
	if score.AffinityComponent != want {
		t.Errorf("affinity component = %.1f, want averaged %.1f", score.AffinityComponent, want)
	}
}

func TestAffinityBoundsViolationSurfaces(t *testing.T) {
	scorer := testScorer()

	org := domain.OrgProfile{ID: "org-1", Domains: []string{"Healthcare"}}
	trend := trendEvent("t-1", "drug medicare pricing reform", "Medicare Drug Pricing Reform", "Healthcare")

	corrupted := []domain.OrgTopicAffinity{
		{OrganizationID: "org-1", Topic: "healthcare", AffinityScore: 1.4},
	}

	_, err := scorer.ScoreForOrg(org, trend, corrupted)
	if !apperrors.Is(err, apperrors.ErrAffinityBoundsViolation) {
		t.Fatalf("ScoreForOrg() error = %v, want ErrAffinityBoundsViolation", err)
	}
}

func TestScenarioDomainMatchBeatsNonMatch(t *testing.T) {
	scorer := testScorer()

	org := domain.OrgProfile{ID: "org-1", Domains: []string{"Healthcare"}}

	healthcare := trendEvent("t-hc", "drug medicare pricing reform", "Medicare Drug Pricing Reform", "Healthcare")
	foreign := trendEvent("t-fp", "greenland review tariff", "EU Proposes Greenland Tariff Review", "Foreign Policy")

	hcScore, err := scorer.ScoreForOrg(org, healthcare, nil)
	if err != nil {
		t.Fatalf(errFmtScoreForOrg, err)
	}

	fpScore, err := scorer.ScoreForOrg(org, foreign, nil)
	if err != nil {
		t.Fatalf(errFmtScoreForOrg, err)
	}

	if hcScore.RelevanceScore < fpScore.ProfileComponent {
		t.Errorf("matched-domain score %.1f < unmatched profile component %.1f",
			hcScore.RelevanceScore, fpScore.ProfileComponent)
	}
}

func TestRankDiversityGuarantee(t *testing.T) {
	scorer := testScorer()

	org := domain.OrgProfile{
		ID:        "org-1",
		Domains:   []string{"Healthcare", "Energy", "Education"},
		Watchlist: []string{"medicare"},
	}

	trends := make([]domain.TrendEvent, 0, 24)

	// A pile of high-scoring healthcare trends that would crowd out
	// everything else without the diversity reservation.
	for i := 0; i < 22; i++ {
		trends = append(trends, trendEvent(
			fmt.Sprintf("t-hc-%d", i),
			fmt.Sprintf("healthcare medicare topic%d", i),
			fmt.Sprintf("Medicare Topic %d", i),
			"Healthcare",
		))
	}

	trends = append(trends,
		trendEvent("t-en", "grid energy failure", "Energy Grid Failure", "Energy"),
		trendEvent("t-ed", "education funding cut", "Education Funding Cut", "Education"),
	)

	ranked, err := scorer.RankForOrg(org, trends, nil)
	if err != nil {
		t.Fatalf("RankForOrg() error = %v", err)
	}

	if len(ranked) > 20 {
		t.Fatalf("got %d results, want <= TopN (20)", len(ranked))
	}

	found := map[string]bool{}

	for _, score := range ranked {
		switch score.TrendEventID {
		case "t-en":
			found["Energy"] = true
		case "t-ed":
			found["Education"] = true
		default:
			found["Healthcare"] = true
		}
	}

	for _, declared := range org.Domains {
		if !found[declared] {
			t.Errorf("declared domain %s missing from top-20 despite a qualifying trend", declared)
		}
	}
}

func TestRankSkipsNonRepresentatives(t *testing.T) {
	scorer := testScorer()

	org := domain.OrgProfile{ID: "org-1", Domains: []string{"Healthcare"}}

	merged := trendEvent("t-merged", "drug pricing", "Drug Pricing", "Healthcare")
	merged.IsClusterRepresentative = false
	merged.IsTrending = false

	rep := trendEvent("t-rep", "drug medicare pricing reform", "Medicare Drug Pricing Reform", "Healthcare")

	ranked, err := scorer.RankForOrg(org, []domain.TrendEvent{merged, rep}, nil)
	if err != nil {
		t.Fatalf("RankForOrg() error = %v", err)
	}

	if len(ranked) != 1 || ranked[0].TrendEventID != "t-rep" {
		t.Errorf("ranked = %+v, want only the cluster representative", ranked)
	}
}

func TestExplorationFiresForUnexploredTopics(t *testing.T) {
	scorer := testScorer()

	org := domain.OrgProfile{ID: "org-1", Domains: []string{"Healthcare"}}

	affinities := []domain.OrgTopicAffinity{
		{OrganizationID: "org-1", Topic: "healthcare", AffinityScore: 0.9},
	}

	known := trendEvent("t-known", "drug medicare pricing", "Medicare Drug Pricing", "Healthcare")
	novel := trendEvent("t-novel", "grid energy failure", "Energy Grid Failure", "Energy")

	knownScore, err := scorer.ScoreForOrg(org, known, affinities)
	if err != nil {
		t.Fatalf(errFmtScoreForOrg, err)
	}

	novelScore, err := scorer.ScoreForOrg(org, novel, affinities)
	if err != nil {
		t.Fatalf(errFmtScoreForOrg, err)
	}

	if knownScore.IsNewOpportunity {
		t.Error("topic with strong learned history flagged as new opportunity")
	}

	if !novelScore.IsNewOpportunity {
		t.Error("unexplored topic missing the exploration flag")
	}

	if novelScore.ExplorationComponent != domain.ExplorationComponentCap {
		t.Errorf("exploration bonus = %.1f, want %.1f", novelScore.ExplorationComponent, domain.ExplorationComponentCap)
	}
}

func TestRankSharesOnePassTimestamp(t *testing.T) {
	scorer := New(Config{})

	org := domain.OrgProfile{ID: "org-1", Domains: []string{"Healthcare"}}

	trends := make([]domain.TrendEvent, 0, 50)
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("topic %d reform", i)
		trends = append(trends, trendEvent(fmt.Sprintf("t-%d", i), key, key, "Healthcare"))
	}

	ranked, err := scorer.RankForOrg(org, trends, nil)
	if err != nil {
		t.Fatalf("RankForOrg() error = %v", err)
	}

	if len(ranked) == 0 {
		t.Fatal("RankForOrg() returned no scores")
	}

	for _, score := range ranked[1:] {
		if !score.ComputedAt.Equal(ranked[0].ComputedAt) {
			t.Fatalf("computedAt %v differs from %v; a ranking must carry one pass timestamp",
				score.ComputedAt, ranked[0].ComputedAt)
		}
	}
}
