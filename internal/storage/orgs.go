package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vkuksa/trendwatch/internal/core/domain"
	apperrors "github.com/vkuksa/trendwatch/internal/core/errors"
)

const (
	errFmtLoadOrgs   = "load org profiles: %w"
	errFmtLoadOrg    = "load org profile: %w"
	errFmtUpsertOrg  = "upsert org profile %s: %w"
	selectOrgSQL     = `SELECT id, name, domains, focus_areas, watchlist FROM org_profiles`
	orgByAPIKeyWhere = ` WHERE api_key_hash = $1`
)

// OrgProfiles returns every registered organization, for the relevance
// scoring pass.
func (db *DB) OrgProfiles(ctx context.Context) ([]domain.OrgProfile, error) {
	rows, err := db.Pool.Query(ctx, selectOrgSQL+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf(errFmtLoadOrgs, err)
	}
	defer rows.Close()

	var orgs []domain.OrgProfile

	for rows.Next() {
		org, err := scanOrgProfile(rows)
		if err != nil {
			return nil, fmt.Errorf(errFmtLoadOrgs, err)
		}

		orgs = append(orgs, org)
	}

	return orgs, rows.Err()
}

// OrgProfileByAPIKey resolves an organization from a presented API key.
// Keys are stored hashed; the caller never learns whether the key or the
// organization was the missing part.
func (db *DB) OrgProfileByAPIKey(ctx context.Context, apiKey string) (domain.OrgProfile, error) {
	digest := sha256.Sum256([]byte(apiKey))

	row := db.Pool.QueryRow(ctx, selectOrgSQL+orgByAPIKeyWhere, hex.EncodeToString(digest[:]))

	org, err := scanOrgProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OrgProfile{}, apperrors.ErrOrganizationNotFound
		}

		return domain.OrgProfile{}, fmt.Errorf(errFmtLoadOrg, err)
	}

	return org, nil
}

// SaveOrgProfile upserts an organization's declared profile.
func (db *DB) SaveOrgProfile(ctx context.Context, org domain.OrgProfile) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO org_profiles (id, name, domains, focus_areas, watchlist)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			domains = EXCLUDED.domains,
			focus_areas = EXCLUDED.focus_areas,
			watchlist = EXCLUDED.watchlist`,
		toUUID(org.ID), org.Name, org.Domains, org.FocusAreas, org.Watchlist)
	if err != nil {
		return fmt.Errorf(errFmtUpsertOrg, org.ID, err)
	}

	return nil
}

func scanOrgProfile(row pgx.Row) (domain.OrgProfile, error) {
	var org domain.OrgProfile

	if err := row.Scan(&org.ID, &org.Name, &org.Domains, &org.FocusAreas, &org.Watchlist); err != nil {
		return domain.OrgProfile{}, err
	}

	return org, nil
}
