package entities

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vkuksa/trendwatch/internal/core/domain"
)

func TestHeuristic_EventPhrase(t *testing.T) {
	tests := []struct {
		title       string
		wantEvent   bool
		wantEntity  string
		wantDomains []string
	}{
		{
			title:       "EU Announces Tariff Review On Steel Imports",
			wantEvent:   true,
			wantEntity:  "eu",
			wantDomains: []string{"finance", "trade"},
		},
		{
			title:      "Senate Passes Healthcare Budget Amendment",
			wantEvent:  true,
			wantEntity: "senate",
		},
		{
			title:     "Ten Ways To Improve Your Garden",
			wantEvent: false,
		},
	}

	h := NewHeuristic()

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got := h.Extract(tt.title)

			if got.IsEventPhrase != tt.wantEvent {
				t.Errorf("IsEventPhrase = %v, want %v", got.IsEventPhrase, tt.wantEvent)
			}

			if tt.wantEntity != "" && !contains(got.Entities, tt.wantEntity) {
				t.Errorf("Entities = %v, want to contain %q", got.Entities, tt.wantEntity)
			}

			for _, d := range tt.wantDomains {
				if !contains(got.PolicyDomains, d) {
					t.Errorf("PolicyDomains = %v, want to contain %q", got.PolicyDomains, d)
				}
			}
		})
	}
}

func TestHeuristic_Geographies(t *testing.T) {
	got := NewHeuristic().Extract("Greenland Minerals Draw EU And US Attention")

	want := []string{"greenland", "eu", "us"}
	if !reflect.DeepEqual(got.Geographies, want) {
		t.Errorf("Geographies = %v, want %v", got.Geographies, want)
	}
}

type failingProvider struct{}

func (failingProvider) Extract(context.Context, string) (Extraction, error) {
	return Extraction{}, errors.New("provider down")
}

func TestEnricher_FallsBackToHeuristic(t *testing.T) {
	enricher := NewEnricher(failingProvider{}, zerolog.Nop())

	mentions := enricher.Enrich(context.Background(), []domain.RawMention{
		{Title: "EU Announces Tariff Review"},
	})

	if len(mentions[0].Entities) == 0 {
		t.Error("fallback heuristic produced no entities")
	}

	if !mentions[0].IsEventPhrase {
		t.Error("fallback heuristic missed the event phrase")
	}
}

func TestEnricher_SkipsAlreadyLabeled(t *testing.T) {
	enricher := NewEnricher(failingProvider{}, zerolog.Nop())

	mentions := enricher.Enrich(context.Background(), []domain.RawMention{
		{Title: "EU Announces Tariff Review", Entities: []string{"preset"}},
	})

	if !reflect.DeepEqual(mentions[0].Entities, []string{"preset"}) {
		t.Errorf("pre-labeled mention was re-extracted: %v", mentions[0].Entities)
	}
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}

	return false
}
