package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vkuksa/trendwatch/internal/affinity"
	"github.com/vkuksa/trendwatch/internal/core/domain"
	apperrors "github.com/vkuksa/trendwatch/internal/core/errors"
)

const (
	errFmtLoadAffinity  = "load affinity %s/%s: %w"
	errFmtSaveAffinity  = "save affinity %s/%s: %w"
	errFmtStale         = "load stale affinities: %w"
	errFmtAppendAudit   = "append affinity audit: %w"
	errFmtOrgAffinities = "load affinities for org %s: %w"
)

// appendAuditSQL column names must match the affinity_audit table in
// migrations; TestAppendAuditMatchesSchema cross-checks them.
const appendAuditSQL = `INSERT INTO affinity_audit (organization_id, topic, old_score, new_score, signal, action, recorded_at)
	 VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Affinity returns one organization's affinity for a topic, or
// ErrNotFound for an unseen pair.
func (db *DB) Affinity(ctx context.Context, orgID, topic string) (domain.OrgTopicAffinity, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT organization_id, topic, affinity_score, source, times_used, last_used_at
		 FROM org_topic_affinities
		 WHERE organization_id = $1 AND topic = $2`, toUUID(orgID), topic)

	aff, err := scanAffinity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OrgTopicAffinity{}, apperrors.ErrNotFound
		}

		return domain.OrgTopicAffinity{}, fmt.Errorf(errFmtLoadAffinity, orgID, topic, err)
	}

	return aff, nil
}

// AffinitiesForOrg returns every stored affinity for one organization.
func (db *DB) AffinitiesForOrg(ctx context.Context, orgID string) ([]domain.OrgTopicAffinity, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT organization_id, topic, affinity_score, source, times_used, last_used_at
		 FROM org_topic_affinities
		 WHERE organization_id = $1
		 ORDER BY topic`, toUUID(orgID))
	if err != nil {
		return nil, fmt.Errorf(errFmtOrgAffinities, orgID, err)
	}
	defer rows.Close()

	return scanAffinities(rows)
}

// SaveAffinity upserts keyed by (organization, topic).
func (db *DB) SaveAffinity(ctx context.Context, aff domain.OrgTopicAffinity) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO org_topic_affinities (organization_id, topic, affinity_score, source, times_used, last_used_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (organization_id, topic) DO UPDATE SET
			affinity_score = EXCLUDED.affinity_score,
			times_used = EXCLUDED.times_used,
			last_used_at = EXCLUDED.last_used_at`,
		toUUID(aff.OrganizationID), aff.Topic, aff.AffinityScore,
		string(aff.Source), aff.TimesUsed, toTimestamptz(aff.LastUsedAt))
	if err != nil {
		return fmt.Errorf(errFmtSaveAffinity, aff.OrganizationID, aff.Topic, err)
	}

	return nil
}

// StaleLearnedAffinities returns learned affinities unused since the
// cutoff. Self-declared rows are excluded in SQL; the decay job filters
// again anyway.
func (db *DB) StaleLearnedAffinities(ctx context.Context, unusedSince time.Time) ([]domain.OrgTopicAffinity, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT organization_id, topic, affinity_score, source, times_used, last_used_at
		 FROM org_topic_affinities
		 WHERE source = $1 AND last_used_at < $2
		 ORDER BY organization_id, topic`,
		string(domain.AffinityLearned), toTimestamptz(unusedSince))
	if err != nil {
		return nil, fmt.Errorf(errFmtStale, err)
	}
	defer rows.Close()

	return scanAffinities(rows)
}

// AppendAudit appends one row to the affinity audit log.
func (db *DB) AppendAudit(ctx context.Context, entry affinity.AuditEntry) error {
	_, err := db.Pool.Exec(ctx, appendAuditSQL,
		toUUID(entry.OrganizationID), entry.Topic, entry.OldScore, entry.NewScore,
		entry.Signal, entry.Action, toTimestamptz(entry.At))
	if err != nil {
		return fmt.Errorf(errFmtAppendAudit, err)
	}

	return nil
}

func scanAffinities(rows pgx.Rows) ([]domain.OrgTopicAffinity, error) {
	var out []domain.OrgTopicAffinity

	for rows.Next() {
		aff, err := scanAffinity(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, aff)
	}

	return out, rows.Err()
}

func scanAffinity(row pgx.Row) (domain.OrgTopicAffinity, error) {
	var (
		aff    domain.OrgTopicAffinity
		source string
	)

	if err := row.Scan(&aff.OrganizationID, &aff.Topic, &aff.AffinityScore,
		&source, &aff.TimesUsed, &aff.LastUsedAt); err != nil {
		return domain.OrgTopicAffinity{}, err
	}

	aff.Source = domain.AffinitySource(source)

	return aff, nil
}
