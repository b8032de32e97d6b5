package store

import "errors"

// Persistence errors. They are always returned to the caller, wrapped with
// context, and can be matched with errors.Is.
var (
	// ErrNotFound indicates no record exists for the handle.
	ErrNotFound = errors.New("experiment not found")

	// ErrCorrupt indicates a record that cannot be decoded or violates the
	// experiment invariants.
	ErrCorrupt = errors.New("experiment record is corrupt")

	// ErrWriteFailed indicates the structured record could not be written.
	// The previous version, if any, is left intact.
	ErrWriteFailed = errors.New("experiment write failed")

	// ErrNotesWriteFailed indicates the notes artifact could not be written.
	// The structured record is unaffected.
	ErrNotesWriteFailed = errors.New("notes write failed")

	// ErrInvalidRecord indicates Save was given an experiment that does not
	// satisfy its invariants. Nothing is written.
	ErrInvalidRecord = errors.New("refusing to save invalid experiment")
)
