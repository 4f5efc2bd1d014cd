// Package apperr defines the sentinel errors shared across layers.
package apperr

import "errors"

var (
	// ErrStoreUnavailable means the persistence backend could not be
	// opened. Fatal for the operation that hit it; surfaced to the user.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrTransactionFailed means a single write did not commit.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrEnrichmentFailed means the enrichment collaborator returned a
	// failure or an invalid payload. Recoverable via explicit retry.
	ErrEnrichmentFailed = errors.New("enrichment failed")

	// ErrValidationFailed means malformed input was rejected before any
	// write.
	ErrValidationFailed = errors.New("validation failed")

	// ErrNotFound is used at boundaries where an absent record must map to
	// a response. Repositories report absence as a nil result, not an error.
	ErrNotFound = errors.New("not found")
)
