package documents

import "errors"

var (
	// ErrNotFound is returned when a document does not exist or is not
	// visible to the requesting owner.
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned when a guarded status transition finds the
	// document in a different state than expected.
	ErrConflict = errors.New("document status conflict")
)
