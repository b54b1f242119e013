package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// Error taxonomy.

	// ErrValidation is the class of every ValidationError.
	// Validation failures are fatal to the operation and never retried.
	ErrValidation = errors.New("validation failed")

	// ErrWrite is the class of every WriteError.
	// The whole write may be retried since writes are idempotent.
	ErrWrite = errors.New("write failed")

	// ErrIndex is the class of every IndexError.
	// Index failures are counted per record and never abort a scan.
	ErrIndex = errors.New("index failed")

	// Validation reasons.

	// ErrInvalidIdentifier indicates an entity, source, workflow or context
	// does not match the identifier pattern.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrInvalidDigest indicates a digest is not of the form algorithm:hex.
	ErrInvalidDigest = errors.New("invalid digest")

	// ErrPathTraversal indicates a resolved path escapes the repository root.
	ErrPathTraversal = errors.New("path escapes repository root")

	// ErrContentTooLarge indicates content exceeds the configured size limit.
	ErrContentTooLarge = errors.New("content too large")

	// ErrEmptyContent indicates zero-byte content.
	ErrEmptyContent = errors.New("empty content")

	// Write and index conditions.

	// ErrDigestCollision indicates a digest-suffixed filename is already
	// taken by different content.
	ErrDigestCollision = errors.New("digest-suffixed filename taken by different content")

	// ErrDuplicateContent indicates the digest is already catalogued at another path.
	ErrDuplicateContent = errors.New("duplicate content")

	// ErrIndexBusy indicates another indexer run holds the catalog lock.
	ErrIndexBusy = errors.New("another index run is in progress")

	// ErrLedgerImmutable indicates an attempt to rewrite a dedup ledger entry.
	ErrLedgerImmutable = errors.New("dedup ledger entries are append-only")
)

// ValidationError reports a rejected field. It is always fatal to the
// single operation and surfaced to the caller immediately.
type ValidationError struct {
	Field  string
	Value  string
	Reason error
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, reason error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("validation failed: %s: %v", e.Field, e.Reason)
	}
	return fmt.Sprintf("validation failed: %s %q: %v", e.Field, e.Value, e.Reason)
}

// Unwrap exposes both the taxonomy class and the reason.
func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Reason}
}

// WriteError reports which artifact failed and whether partial state
// was removed before the error surfaced.
type WriteError struct {
	Op        string
	Path      string
	CleanedUp bool
	Err       error
}

func (e *WriteError) Error() string {
	state := "partial state left in place"
	if e.CleanedUp {
		state = "partial state cleaned up"
	}
	return fmt.Sprintf("write failed: %s %s (%s): %v", e.Op, e.Path, state, e.Err)
}

// Unwrap exposes both the taxonomy class and the cause.
func (e *WriteError) Unwrap() []error {
	return []error{ErrWrite, e.Err}
}

// IndexError reports a failed record during a scan.
type IndexError struct {
	RecordID string
	Path     string
	Err      error
}

func (e *IndexError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("index failed: %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("index failed: %s (%s): %v", e.RecordID, e.Path, e.Err)
}

// Unwrap exposes both the taxonomy class and the cause.
func (e *IndexError) Unwrap() []error {
	return []error{ErrIndex, e.Err}
}
