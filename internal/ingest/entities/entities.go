// Package entities labels raw mentions with extracted entities, an
// event-phrase flag, and policy-domain/geography tags. An LLM provider
// does the heavy lifting when configured; a keyword heuristic covers the
// rest and serves as the fallback when the provider fails.
package entities

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vkuksa/trendwatch/internal/core/domain"
	"github.com/vkuksa/trendwatch/internal/platform/observability"
)

const logFieldTitle = "title"

// Extraction is the label set produced for one headline.
type Extraction struct {
	Entities      []string
	PolicyDomains []string
	Geographies   []string

	// IsEventPhrase marks labels that describe a happening rather than a
	// bare entity, e.g. "eu announces tariff review" vs "eu".
	IsEventPhrase bool
}

// Provider extracts labels from a headline.
type Provider interface {
	Extract(ctx context.Context, title string) (Extraction, error)
}

// Enricher applies a Provider to mention batches, falling back to the
// heuristic extractor per-item on provider errors.
type Enricher struct {
	provider  Provider
	heuristic *Heuristic
	logger    zerolog.Logger
	now       func() time.Time
}

// NewEnricher builds an enricher. provider may be nil, in which case the
// heuristic handles everything.
func NewEnricher(provider Provider, logger zerolog.Logger) *Enricher {
	return &Enricher{
		provider:  provider,
		heuristic: NewHeuristic(),
		logger:    logger,
		now:       time.Now,
	}
}

// Enrich labels every mention in place and returns the batch. Mentions
// that already carry entities are left untouched, so replayed batches are
// not re-extracted.
func (e *Enricher) Enrich(ctx context.Context, mentions []domain.RawMention) []domain.RawMention {
	for i := range mentions {
		if len(mentions[i].Entities) > 0 {
			continue
		}

		extraction := e.extract(ctx, mentions[i].Title)

		mentions[i].Entities = extraction.Entities
		mentions[i].PolicyDomains = extraction.PolicyDomains
		mentions[i].Geographies = extraction.Geographies
		mentions[i].IsEventPhrase = extraction.IsEventPhrase
	}

	return mentions
}

func (e *Enricher) extract(ctx context.Context, title string) Extraction {
	start := e.now()
	defer func() {
		observability.EntityExtractionDurationSeconds.Observe(e.now().Sub(start).Seconds())
	}()

	if e.provider == nil {
		return e.heuristic.Extract(title)
	}

	extraction, err := e.provider.Extract(ctx, title)
	if err != nil {
		observability.EntityExtractionFallbacks.Inc()
		e.logger.Warn().Err(err).Str(logFieldTitle, title).Msg("extraction provider failed, using heuristic")

		return e.heuristic.Extract(title)
	}

	return extraction
}
