package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent pipeline failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates a media type no extractor handles.
	ErrUnsupportedType = errors.New("unsupported type")

	// Per-file errors. These never abort a run.

	// ErrUnreadableFile indicates fingerprinting cannot proceed.
	// The file is excluded from the run and escalated for review.
	ErrUnreadableFile = errors.New("unreadable file")

	// ErrAmbiguousClassification indicates no rule matched or confidence
	// fell below the review floor. It is a routed outcome, not a failure.
	ErrAmbiguousClassification = errors.New("ambiguous classification")

	// ErrVerificationFailed indicates the copied bytes did not match the
	// source fingerprint. The original is preserved and never retried.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrCollisionUnresolved indicates every destination suffix was taken.
	ErrCollisionUnresolved = errors.New("collision unresolved")

	// ErrTransientIO indicates a timeout or lock contention.
	// Retried with bounded backoff, then escalated.
	ErrTransientIO = errors.New("transient I/O failure")

	// Fatal errors. These abort a run before any file is processed.

	// ErrRuleSet indicates the classification rules could not be loaded.
	ErrRuleSet = errors.New("invalid rule set")

	// ErrAuditUnavailable indicates the audit log cannot be opened or appended to.
	ErrAuditUnavailable = errors.New("audit log unavailable")

	// ErrStopping indicates the coordinator is shutting down.
	ErrStopping = errors.New("pipeline stopping")
)

// FileError attaches a path and operation to a per-file failure.
type FileError struct {
	Path string
	Op   string
	Err  error
}

// NewFileError wraps err with the path and operation that produced it.
func NewFileError(op, path string, err error) *FileError {
	return &FileError{Path: path, Op: op, Err: err}
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuditUnavailable) || errors.Is(err, ErrRuleSet)
}

// IsEscalation reports whether err is a per-file failure that must be
// surfaced for human review.
func IsEscalation(err error) bool {
	return errors.Is(err, ErrUnreadableFile) ||
		errors.Is(err, ErrVerificationFailed) ||
		errors.Is(err, ErrCollisionUnresolved) ||
		errors.Is(err, ErrTransientIO)
}
