package relevance

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vkuksa/trendwatch/internal/core/domain"
)

type fakeRunnerStore struct {
	mu         sync.Mutex
	orgs       []domain.OrgProfile
	trends     []domain.TrendEvent
	affinities map[string][]domain.OrgTopicAffinity
	saved      map[string][]domain.OrgRelevanceScore
	failSaves  map[string]error
}

func newFakeRunnerStore() *fakeRunnerStore {
	return &fakeRunnerStore{
		affinities: make(map[string][]domain.OrgTopicAffinity),
		saved:      make(map[string][]domain.OrgRelevanceScore),
		failSaves:  make(map[string]error),
	}
}

func (f *fakeRunnerStore) OrgProfiles(context.Context) ([]domain.OrgProfile, error) {
	return f.orgs, nil
}

func (f *fakeRunnerStore) TrendingRepresentatives(context.Context, int) ([]domain.TrendEvent, error) {
	return f.trends, nil
}

func (f *fakeRunnerStore) AffinitiesForOrg(_ context.Context, orgID string) ([]domain.OrgTopicAffinity, error) {
	return f.affinities[orgID], nil
}

func (f *fakeRunnerStore) SaveRelevanceScores(_ context.Context, orgID string, scores []domain.OrgRelevanceScore) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failSaves[orgID]; err != nil {
		return err
	}

	f.saved[orgID] = scores

	return nil
}

func runnerTrend(key string) domain.TrendEvent {
	return domain.TrendEvent{
		ID:                      "event-" + key,
		EventKey:                key,
		EventTitle:              key,
		ConfidenceScore:         60,
		IsTrending:              true,
		IsClusterRepresentative: true,
		PolicyDomains:           []string{"healthcare"},
	}
}

func TestRunPass_ScoresEveryOrg(t *testing.T) {
	store := newFakeRunnerStore()
	store.orgs = []domain.OrgProfile{
		{ID: "org-a", Name: "A", Domains: []string{"healthcare"}},
		{ID: "org-b", Name: "B", Domains: []string{"energy"}},
	}
	store.trends = []domain.TrendEvent{runnerTrend("medicare expansion vote")}

	logger := zerolog.Nop()
	runner := NewRunner(RunnerConfig{}, New(Config{}), store, &logger)

	if err := runner.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if len(store.saved) != 2 {
		t.Fatalf("saved rankings for %d orgs, want 2", len(store.saved))
	}

	if len(store.saved["org-a"]) != 1 {
		t.Errorf("org-a scores = %d, want 1", len(store.saved["org-a"]))
	}
}

func TestRunPass_FailingOrgSkipped(t *testing.T) {
	store := newFakeRunnerStore()
	store.orgs = []domain.OrgProfile{
		{ID: "org-a", Name: "A", Domains: []string{"healthcare"}},
		{ID: "org-b", Name: "B", Domains: []string{"healthcare"}},
	}
	store.trends = []domain.TrendEvent{runnerTrend("medicare expansion vote")}
	store.failSaves["org-a"] = errors.New("connection reset")

	logger := zerolog.Nop()
	runner := NewRunner(RunnerConfig{}, New(Config{}), store, &logger)

	if err := runner.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if _, ok := store.saved["org-b"]; !ok {
		t.Error("healthy org was not scored after sibling failure")
	}

	if _, ok := store.saved["org-a"]; ok {
		t.Error("failed org unexpectedly present in saved scores")
	}
}

func TestRunPass_EmptyTrendSetIsNoop(t *testing.T) {
	store := newFakeRunnerStore()
	store.orgs = []domain.OrgProfile{{ID: "org-a", Name: "A"}}

	logger := zerolog.Nop()
	runner := NewRunner(RunnerConfig{}, New(Config{}), store, &logger)

	if err := runner.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if len(store.saved) != 0 {
		t.Errorf("saved = %v, want none", store.saved)
	}
}
