package domain

import (
	"fmt"
	"time"
)

// MigrationState is a step of the per-file transfer state machine:
// Pending -> Copied -> Verified -> Finalized, with failure exits
// VerificationFailed and CollisionUnresolved.
type MigrationState string

const (
	StatePending             MigrationState = "pending"
	StateCopied              MigrationState = "copied"
	StateVerified            MigrationState = "verified"
	StateFinalized           MigrationState = "finalized"
	StateVerificationFailed  MigrationState = "verification_failed"
	StateCollisionUnresolved MigrationState = "collision_unresolved"
)

// String returns the string representation of the state.
func (s MigrationState) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition follows the state.
func (s MigrationState) IsTerminal() bool {
	return s == StateFinalized || s == StateVerificationFailed || s == StateCollisionUnresolved
}

// Outcome is the result recorded for an attempted transfer.
type Outcome string

const (
	OutcomeSucceeded          Outcome = "succeeded"
	OutcomeFailedVerification Outcome = "failed_verification"
	OutcomeFailedCollision    Outcome = "failed_collision"
	OutcomeSkippedDuplicate   Outcome = "skipped_duplicate"
	// OutcomePlanned is recorded by dry-run transfers.
	OutcomePlanned Outcome = "planned"
)

// MigrationMode controls whether the source is removed.
type MigrationMode string

const (
	// ModeMove removes the source once the destination is finalized.
	ModeMove MigrationMode = "move"
	// ModeCopy leaves the source in place.
	ModeCopy MigrationMode = "copy"
	// ModeDryRun performs no writes and records planned transfers.
	ModeDryRun MigrationMode = "dry-run"
)

// String returns the string representation of the mode.
func (m MigrationMode) String() string {
	return string(m)
}

// ParseMigrationMode converts a string to a MigrationMode.
func ParseMigrationMode(s string) (MigrationMode, error) {
	switch MigrationMode(s) {
	case ModeMove, ModeCopy, ModeDryRun:
		return MigrationMode(s), nil
	case "":
		return ModeCopy, nil
	default:
		return "", fmt.Errorf("%w: migration mode %q", ErrInvalidInput, s)
	}
}

// MigrationPurpose distinguishes routing from quarantine transfers.
type MigrationPurpose string

const (
	PurposeRoute      MigrationPurpose = "route"
	PurposeQuarantine MigrationPurpose = "quarantine"
	PurposeReview     MigrationPurpose = "review"
)

// MigrationRequest asks the executor to transfer one file.
type MigrationRequest struct {
	// Source is the record fingerprinted before the copy.
	Source FileRecord

	// Destination is the absolute target path.
	Destination string

	// Purpose is recorded on every audit event.
	Purpose MigrationPurpose

	// Confidence carries the classification confidence for the audit trail.
	Confidence float64

	// Reference names a related path, such as the canonical member for
	// a quarantined duplicate.
	Reference string
}

// MigrationRecord is one attempted transfer.
type MigrationRecord struct {
	Source            string
	Destination       string
	Outcome           Outcome
	State             MigrationState
	FingerprintBefore string
	FingerprintAfter  string
	Timestamp         time.Time
}
