package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vkuksa/trendwatch/internal/core/domain"
	"github.com/vkuksa/trendwatch/internal/detect/cluster"
)

const (
	errFmtSaveCluster    = "save cluster %s: %w"
	errFmtTrendingEvents = "load trending events: %w"
)

// upsertTrendEventSQL merges instead of overwriting: evidence counts keep
// their maximum, first_seen_at its minimum, and merged_from accumulates as
// a flat set, so overlapping passes never lose concurrently written state.
const upsertTrendEventSQL = `
INSERT INTO trend_events (
	id, event_key, event_title, is_event_phrase, label_quality,
	source_count_deduped, mention_count, current_1h, current_24h,
	baseline_7d, baseline_30d, z_score_velocity, confidence_score,
	velocity_component, corroboration_component, activity_component,
	recency_decay, evergreen_penalty, single_token_penalty, label_quality_penalty,
	is_trending, is_breaking, trend_stage, policy_domains, geographies,
	first_seen_at, last_seen_at, cluster_id, merged_from, is_cluster_representative
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
	$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30
)
ON CONFLICT (event_key) DO UPDATE SET
	event_title = EXCLUDED.event_title,
	is_event_phrase = EXCLUDED.is_event_phrase,
	label_quality = EXCLUDED.label_quality,
	source_count_deduped = GREATEST(trend_events.source_count_deduped, EXCLUDED.source_count_deduped),
	mention_count = GREATEST(trend_events.mention_count, EXCLUDED.mention_count),
	current_1h = EXCLUDED.current_1h,
	current_24h = EXCLUDED.current_24h,
	baseline_7d = EXCLUDED.baseline_7d,
	baseline_30d = EXCLUDED.baseline_30d,
	z_score_velocity = EXCLUDED.z_score_velocity,
	confidence_score = EXCLUDED.confidence_score,
	velocity_component = EXCLUDED.velocity_component,
	corroboration_component = EXCLUDED.corroboration_component,
	activity_component = EXCLUDED.activity_component,
	recency_decay = EXCLUDED.recency_decay,
	evergreen_penalty = EXCLUDED.evergreen_penalty,
	single_token_penalty = EXCLUDED.single_token_penalty,
	label_quality_penalty = EXCLUDED.label_quality_penalty,
	is_trending = EXCLUDED.is_trending,
	is_breaking = EXCLUDED.is_breaking,
	trend_stage = EXCLUDED.trend_stage,
	policy_domains = EXCLUDED.policy_domains,
	geographies = EXCLUDED.geographies,
	first_seen_at = LEAST(trend_events.first_seen_at, EXCLUDED.first_seen_at),
	last_seen_at = GREATEST(trend_events.last_seen_at, EXCLUDED.last_seen_at),
	cluster_id = EXCLUDED.cluster_id,
	merged_from = ARRAY(SELECT DISTINCT unnest(trend_events.merged_from || EXCLUDED.merged_from)),
	is_cluster_representative = EXCLUDED.is_cluster_representative`

const selectTrendEventSQL = `
SELECT id, event_key, event_title, is_event_phrase, label_quality,
	source_count_deduped, mention_count, current_1h, current_24h,
	baseline_7d, baseline_30d, z_score_velocity, confidence_score,
	velocity_component, corroboration_component, activity_component,
	recency_decay, evergreen_penalty, single_token_penalty, label_quality_penalty,
	is_trending, is_breaking, trend_stage, policy_domains, geographies,
	first_seen_at, last_seen_at, cluster_id, merged_from, is_cluster_representative
FROM trend_events`

// SaveClusters is the only write path for trend events. It deliberately
// takes the clustering stage's output type: code that skipped clustering
// has nothing it can pass here. Each cluster commits atomically;
// a deadline mid-pass leaves whole clusters either written or untouched.
func (db *DB) SaveClusters(ctx context.Context, clusters []cluster.Cluster) error {
	now := time.Now()

	for _, c := range clusters {
		if err := db.saveCluster(ctx, c, now); err != nil {
			return fmt.Errorf(errFmtSaveCluster, c.ID, err)
		}
	}

	return nil
}

func (db *DB) saveCluster(ctx context.Context, c cluster.Cluster, now time.Time) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		//nolint:errcheck // rollback after commit is a no-op
		_ = tx.Rollback(ctx)
	}()

	rep := trendEventFromScored(c.Representative, c, true, now)
	if err := upsertTrendEvent(ctx, tx, rep); err != nil {
		return err
	}

	for _, member := range c.Merged {
		demoted := trendEventFromScored(member, c, false, now)
		if err := upsertTrendEvent(ctx, tx, demoted); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func upsertTrendEvent(ctx context.Context, tx pgx.Tx, event domain.TrendEvent) error {
	_, err := tx.Exec(ctx, upsertTrendEventSQL,
		toUUID(event.ID), event.EventKey, event.EventTitle, event.IsEventPhrase, string(event.LabelQuality),
		event.SourceCountDeduped, event.MentionCount, event.Current1h, event.Current24h,
		event.Baseline7d, event.Baseline30d, event.ZScoreVelocity, event.ConfidenceScore,
		event.Breakdown.Velocity, event.Breakdown.Corroboration, event.Breakdown.Activity,
		event.Breakdown.RecencyDecay, event.Breakdown.EvergreenPenalty,
		event.Breakdown.SingleTokenPenalty, event.Breakdown.LabelQualityPenalty,
		event.IsTrending, event.IsBreaking, string(event.TrendStage),
		event.PolicyDomains, event.Geographies,
		toTimestamptz(event.FirstSeenAt), toTimestamptz(event.LastSeenAt),
		event.ClusterID, event.MergedFrom, event.IsClusterRepresentative,
	)

	return err
}

// trendEventFromScored converts one clustered topic to its persisted
// form. Merged-away members keep their evidence but lose trending status.
func trendEventFromScored(topic cluster.ScoredTopic, c cluster.Cluster, representative bool, now time.Time) domain.TrendEvent {
	event := domain.TrendEvent{
		ID:                      uuid.NewString(),
		EventKey:                topic.Agg.EventKey,
		EventTitle:              topic.Agg.EventTitle,
		IsEventPhrase:           topic.Agg.IsEventPhrase,
		LabelQuality:            topic.Agg.LabelQuality,
		SourceCountDeduped:      topic.Agg.SourceCountDeduped,
		MentionCount:            len(topic.Agg.Mentions),
		Current1h:               topic.Agg.Current1h,
		Current24h:              topic.Agg.Current24h,
		Baseline7d:              topic.Agg.Baseline7d,
		Baseline30d:             topic.Agg.Baseline30d,
		ZScoreVelocity:          topic.Agg.ZScoreVelocity,
		ConfidenceScore:         topic.Breakdown.FinalScore,
		Breakdown:               topic.Breakdown,
		IsTrending:              topic.IsTrending && representative,
		IsBreaking:              topic.IsBreaking && representative,
		TrendStage:              topic.Stage,
		PolicyDomains:           topic.Agg.PolicyDomains,
		Geographies:             topic.Agg.Geographies,
		FirstSeenAt:             now,
		LastSeenAt:              now,
		ClusterID:               c.ID,
		MergedFrom:              []string{},
		IsClusterRepresentative: representative,
	}

	if representative {
		event.MergedFrom = c.MergedFrom
	}

	return event
}

// TrendingRepresentatives returns the currently trending cluster
// representatives ordered by confidence, for relevance scoring and the
// ranked API.
func (db *DB) TrendingRepresentatives(ctx context.Context, limit int) ([]domain.TrendEvent, error) {
	rows, err := db.Pool.Query(ctx,
		selectTrendEventSQL+`
		WHERE is_trending AND is_cluster_representative
		ORDER BY confidence_score DESC, event_key
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf(errFmtTrendingEvents, err)
	}
	defer rows.Close()

	events, err := scanTrendEvents(rows)
	if err != nil {
		return nil, err
	}

	return dedupeByClusterID(events), nil
}

// dedupeByClusterID keeps the first event per cluster id. A crashed pass
// can leave a stale representative next to a fresh one; the rows arrive
// best-first, so the highest-ranked survivor wins.
func dedupeByClusterID(events []domain.TrendEvent) []domain.TrendEvent {
	seen := make(map[string]bool, len(events))
	out := events[:0]

	for _, event := range events {
		if event.ClusterID != "" {
			if seen[event.ClusterID] {
				continue
			}

			seen[event.ClusterID] = true
		}

		out = append(out, event)
	}

	return out
}

// FirstSeen returns first-seen timestamps for the given event keys.
// Unknown keys are simply absent from the result.
func (db *DB) FirstSeen(ctx context.Context, eventKeys []string) (map[string]time.Time, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT event_key, first_seen_at FROM trend_events WHERE event_key = ANY($1)`, eventKeys)
	if err != nil {
		return nil, fmt.Errorf("load first seen: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)

	for rows.Next() {
		var (
			key string
			at  time.Time
		)

		if err := rows.Scan(&key, &at); err != nil {
			return nil, fmt.Errorf("scan first seen: %w", err)
		}

		out[key] = at
	}

	return out, rows.Err()
}

func scanTrendEvents(rows pgx.Rows) ([]domain.TrendEvent, error) {
	var events []domain.TrendEvent

	for rows.Next() {
		event, err := scanTrendEvent(rows)
		if err != nil {
			return nil, err
		}

		events = append(events, event)
	}

	return events, rows.Err()
}

func scanTrendEvent(row pgx.Row) (domain.TrendEvent, error) {
	var (
		event        domain.TrendEvent
		labelQuality string
		stage        string
	)

	if err := row.Scan(
		&event.ID, &event.EventKey, &event.EventTitle, &event.IsEventPhrase, &labelQuality,
		&event.SourceCountDeduped, &event.MentionCount, &event.Current1h, &event.Current24h,
		&event.Baseline7d, &event.Baseline30d, &event.ZScoreVelocity, &event.ConfidenceScore,
		&event.Breakdown.Velocity, &event.Breakdown.Corroboration, &event.Breakdown.Activity,
		&event.Breakdown.RecencyDecay, &event.Breakdown.EvergreenPenalty,
		&event.Breakdown.SingleTokenPenalty, &event.Breakdown.LabelQualityPenalty,
		&event.IsTrending, &event.IsBreaking, &stage, &event.PolicyDomains, &event.Geographies,
		&event.FirstSeenAt, &event.LastSeenAt, &event.ClusterID, &event.MergedFrom,
		&event.IsClusterRepresentative,
	); err != nil {
		return domain.TrendEvent{}, fmt.Errorf("scan trend event: %w", err)
	}

	event.LabelQuality = domain.LabelQuality(labelQuality)
	event.TrendStage = domain.TrendStage(stage)
	event.Breakdown.FinalScore = event.ConfidenceScore

	return event, nil
}
