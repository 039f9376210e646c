package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vkuksa/trendwatch/internal/detect/velocity"
)

const (
	hoursPerObservationWindow = 24.0

	errFmtRecordObservations = "record observations: %w"
	errFmtLoadBaselines      = "load baselines: %w"
)

// baselineSQL derives per-key hourly-rate statistics from recorded 24h
// volumes over the 7-day and 30-day windows.
const baselineSQL = `
SELECT event_key,
	COALESCE(avg(mention_count / $2) FILTER (WHERE observed_at >= now() - interval '7 days'), 0),
	COALESCE(stddev_samp(mention_count / $2) FILTER (WHERE observed_at >= now() - interval '7 days'), 0),
	COALESCE(avg(mention_count / $2) FILTER (WHERE observed_at >= now() - interval '30 days'), 0),
	COALESCE(stddev_samp(mention_count / $2) FILTER (WHERE observed_at >= now() - interval '30 days'), 0),
	count(*) FILTER (WHERE observed_at >= now() - interval '7 days')
FROM topic_observations
WHERE event_key = ANY($1)
GROUP BY event_key`

// RecordObservations appends one observation row per topic for baseline
// building. Observations are append-only; baselines are derived, never
// stored precomputed.
func (db *DB) RecordObservations(ctx context.Context, observedAt time.Time, counts map[string]int) error {
	batch := &pgx.Batch{}

	for eventKey, count := range counts {
		batch.Queue(
			`INSERT INTO topic_observations (event_key, observed_at, mention_count) VALUES ($1, $2, $3)`,
			eventKey, toTimestamptz(observedAt), count,
		)
	}

	results := db.Pool.SendBatch(ctx, batch)
	defer func() {
		_ = results.Close()
	}()

	for range counts {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf(errFmtRecordObservations, err)
		}
	}

	return nil
}

// Baselines returns hourly-rate baselines for the given event keys. Keys
// with no recorded history come back as zero baselines, which the
// velocity engine treats as a cold start.
func (db *DB) Baselines(ctx context.Context, eventKeys []string) (map[string]velocity.Baseline, error) {
	rows, err := db.Pool.Query(ctx, baselineSQL, eventKeys, hoursPerObservationWindow)
	if err != nil {
		return nil, fmt.Errorf(errFmtLoadBaselines, err)
	}
	defer rows.Close()

	out := make(map[string]velocity.Baseline, len(eventKeys))

	for rows.Next() {
		var (
			key      string
			baseline velocity.Baseline
		)

		if err := rows.Scan(&key,
			&baseline.Mean7d, &baseline.Stddev7d,
			&baseline.Mean30d, &baseline.Stddev30d,
			&baseline.ObservationCount,
		); err != nil {
			return nil, fmt.Errorf(errFmtLoadBaselines, err)
		}

		out[key] = baseline
	}

	return out, rows.Err()
}
