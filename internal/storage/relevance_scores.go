package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vkuksa/trendwatch/internal/core/domain"
)

const (
	errFmtSaveRelevance = "save relevance scores for org %s: %w"
	errFmtLoadRanked    = "load ranked trends for org %s: %w"

	upsertRelevanceScoreSQL = `
		INSERT INTO org_relevance_scores (
			organization_id, trend_event_id, relevance_score,
			profile_component, affinity_component, exploration_component,
			is_new_opportunity, reasons, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (organization_id, trend_event_id) DO UPDATE SET
			relevance_score = EXCLUDED.relevance_score,
			profile_component = EXCLUDED.profile_component,
			affinity_component = EXCLUDED.affinity_component,
			exploration_component = EXCLUDED.exploration_component,
			is_new_opportunity = EXCLUDED.is_new_opportunity,
			reasons = EXCLUDED.reasons,
			computed_at = EXCLUDED.computed_at`
)

// SaveRelevanceScores replaces an organization's ranked scores for the
// current pass in a single transaction, so readers never observe a
// half-written ranking.
func (db *DB) SaveRelevanceScores(ctx context.Context, orgID string, scores []domain.OrgRelevanceScore) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf(errFmtSaveRelevance, orgID, err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}

	for _, s := range scores {
		batch.Queue(upsertRelevanceScoreSQL,
			toUUID(s.OrganizationID), toUUID(s.TrendEventID), s.RelevanceScore,
			s.ProfileComponent, s.AffinityComponent, s.ExplorationComponent,
			s.IsNewOpportunity, s.Reasons, toTimestamptz(s.ComputedAt))
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf(errFmtSaveRelevance, orgID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf(errFmtSaveRelevance, orgID, err)
	}

	return nil
}

// RankedTrend joins a stored relevance score with its trend event, the
// shape the trends API serves.
type RankedTrend struct {
	Event domain.TrendEvent
	Score domain.OrgRelevanceScore
}

// RankedTrendsForOrg returns the organization's most recent ranking,
// highest relevance first. Only scores from the latest completed pass are
// returned.
func (db *DB) RankedTrendsForOrg(ctx context.Context, orgID string, limit int) ([]RankedTrend, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT
			t.id, t.event_key, t.event_title, t.is_event_phrase, t.label_quality,
			t.source_count_deduped, t.mention_count, t.current_1h, t.current_24h,
			t.z_score_velocity, t.confidence_score, t.is_trending, t.is_breaking, t.trend_stage,
			t.policy_domains, t.geographies, t.first_seen_at, t.last_seen_at, t.cluster_id,
			r.organization_id, r.relevance_score,
			r.profile_component, r.affinity_component, r.exploration_component,
			r.is_new_opportunity, r.reasons, r.computed_at
		FROM org_relevance_scores r
		JOIN trend_events t ON t.id = r.trend_event_id
		WHERE r.organization_id = $1
		  AND r.computed_at = (
			SELECT max(computed_at) FROM org_relevance_scores
			WHERE organization_id = $1
		  )
		ORDER BY r.relevance_score DESC, t.event_key
		LIMIT $2`,
		toUUID(orgID), limit)
	if err != nil {
		return nil, fmt.Errorf(errFmtLoadRanked, orgID, err)
	}
	defer rows.Close()

	var ranked []RankedTrend

	for rows.Next() {
		var (
			rt           RankedTrend
			labelQuality string
			stage        string
			computedAt   time.Time
		)

		if err := rows.Scan(
			&rt.Event.ID, &rt.Event.EventKey, &rt.Event.EventTitle, &rt.Event.IsEventPhrase, &labelQuality,
			&rt.Event.SourceCountDeduped, &rt.Event.MentionCount, &rt.Event.Current1h, &rt.Event.Current24h,
			&rt.Event.ZScoreVelocity, &rt.Event.ConfidenceScore, &rt.Event.IsTrending, &rt.Event.IsBreaking, &stage,
			&rt.Event.PolicyDomains, &rt.Event.Geographies, &rt.Event.FirstSeenAt, &rt.Event.LastSeenAt, &rt.Event.ClusterID,
			&rt.Score.OrganizationID, &rt.Score.RelevanceScore,
			&rt.Score.ProfileComponent, &rt.Score.AffinityComponent, &rt.Score.ExplorationComponent,
			&rt.Score.IsNewOpportunity, &rt.Score.Reasons, &computedAt,
		); err != nil {
			return nil, fmt.Errorf(errFmtLoadRanked, orgID, err)
		}

		rt.Event.LabelQuality = domain.LabelQuality(labelQuality)
		rt.Event.TrendStage = domain.TrendStage(stage)
		rt.Event.IsClusterRepresentative = true
		rt.Score.TrendEventID = rt.Event.ID
		rt.Score.ComputedAt = computedAt

		ranked = append(ranked, rt)
	}

	return dedupeRankedByClusterID(ranked), rows.Err()
}

// dedupeRankedByClusterID keeps the best-ranked row per cluster id, the
// same stale-representative defense dedupeByClusterID applies to the
// scoring read path.
func dedupeRankedByClusterID(ranked []RankedTrend) []RankedTrend {
	seen := make(map[string]bool, len(ranked))
	out := ranked[:0]

	for _, rt := range ranked {
		if rt.Event.ClusterID != "" {
			if seen[rt.Event.ClusterID] {
				continue
			}

			seen[rt.Event.ClusterID] = true
		}

		out = append(out, rt)
	}

	return out
}
