package domain

import "errors"

var (
	// ErrLookupFailed is returned after the identity resolver exhausts its
	// retries on a hard (network/parse) error.
	ErrLookupFailed = errors.New("identity lookup failed")

	// ErrNotFound is a valid non-error outcome for record reads.
	ErrNotFound = errors.New("not found")

	// ErrSourceUnavailable marks an unreachable external collaborator.
	ErrSourceUnavailable = errors.New("external source unavailable")

	// ErrConflict marks a rejected persistence write. The processing result
	// is kept; the caller may retry the save independently.
	ErrConflict = errors.New("persistence conflict")
)
