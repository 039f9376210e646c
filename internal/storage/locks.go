package storage

import (
	"context"
	"fmt"
)

// Advisory lock ids enforcing the single-writer role per table: exactly
// one detection pass writes trend events, exactly one decay job writes
// affinities.
const (
	LockDetectionPass int64 = 1001
	LockDecayPass     int64 = 1002
)

// TryAcquireAdvisoryLock attempts a non-blocking session lock. Returns
// false when another pass already holds it.
func (db *DB) TryAcquireAdvisoryLock(ctx context.Context, lockID int64) (bool, error) {
	var acquired bool

	if err := db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired); err != nil {
		return false, fmt.Errorf("try advisory lock %d: %w", lockID, err)
	}

	return acquired, nil
}

// ReleaseAdvisoryLock releases a previously acquired session lock.
func (db *DB) ReleaseAdvisoryLock(ctx context.Context, lockID int64) error {
	if _, err := db.Pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", lockID); err != nil {
		return fmt.Errorf("release advisory lock %d: %w", lockID, err)
	}

	return nil
}
