// Package errors provides centralized error definitions for the engine.
// Errors are organized by domain to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import "errors"

// Normalization errors. Per-mention, never fatal for a pass.
var (
	// ErrMalformedInput indicates a raw mention with an empty title or URL
	// after sanitization. Callers drop the mention and continue the batch.
	ErrMalformedInput = errors.New("malformed mention input")
)

// Velocity errors.
var (
	// ErrInsufficientHistory signals that baseline computation fell back to
	// the synthetic cold-start baseline. Advisory, not fatal: the caller
	// proceeds with dampened-confidence velocity.
	ErrInsufficientHistory = errors.New("insufficient baseline history")
)

// Scoring invariant errors. These indicate a broken formula, not bad data,
// and must halt the pass for operational review.
var (
	// ErrScoringInconsistency indicates a computed component exceeded its
	// stated cap.
	ErrScoringInconsistency = errors.New("scoring component cap violated")

	// ErrAffinityBoundsViolation indicates an affinity update escaped
	// [0.2, 0.95] after clamping, i.e. the clamp itself is buggy.
	ErrAffinityBoundsViolation = errors.New("affinity score out of bounds after clamp")
)

// Clustering errors.
var (
	// ErrClustering indicates the deduplication pass could not run at all.
	// Malformed individual labels degrade to similarity 0 instead.
	ErrClustering = errors.New("clustering failed")
)

// Lookup errors.
var (
	// ErrNotFound is a generic not found error.
	ErrNotFound = errors.New("not found")

	// ErrOrganizationNotFound indicates an unknown organization id or key.
	ErrOrganizationNotFound = errors.New("organization not found")
)

// Pass coordination errors.
var (
	// ErrPassAlreadyRunning indicates another instance holds the pass lock.
	ErrPassAlreadyRunning = errors.New("pass already running")
)

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
