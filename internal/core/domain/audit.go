package domain

import "time"

// EventKind identifies what an audit event records.
type EventKind string

const (
	// Migration transitions. State carries the new state.
	EventMigration EventKind = "migration"

	// EventSourceRemoved follows a finalized move.
	EventSourceRemoved EventKind = "source_removed"

	// EventRecovered records a crash-recovery action.
	EventRecovered EventKind = "recovered"

	// EventPlanned records a dry-run transfer.
	EventPlanned EventKind = "planned"

	// EventSkipped records a file already finalized by an earlier run.
	EventSkipped EventKind = "skipped"

	// EventDuplicate records a redundant member of a duplicate group.
	EventDuplicate EventKind = "duplicate_detected"

	// EventNearDuplicate records a candidate sent to review.
	EventNearDuplicate EventKind = "near_duplicate_flagged"

	// EventClassified records a classification result.
	EventClassified EventKind = "classified"

	// EventHeld records a file left in place pending review.
	EventHeld EventKind = "held_for_review"

	// EventEscalated records a per-file failure surfaced for review.
	EventEscalated EventKind = "escalated"

	// EventReviewResolved records a human disposition.
	EventReviewResolved EventKind = "review_resolved"

	// EventRunStarted and EventRunFinished bracket a pipeline run.
	EventRunStarted  EventKind = "run_started"
	EventRunFinished EventKind = "run_finished"
)

// AuditEvent is one entry of the append-only audit log.
type AuditEvent struct {
	// Seq is assigned by the log on append and is strictly increasing.
	Seq int64

	Timestamp time.Time
	RunID     string
	Kind      EventKind

	Source      string
	Destination string

	// TempPath is the temporary copy for migration events.
	TempPath string

	State   MigrationState
	Outcome Outcome
	Mode    MigrationMode
	Purpose MigrationPurpose

	Confidence        float64
	FingerprintBefore string
	FingerprintAfter  string
	RuleSetVersion    string

	// Detail is a free-form explanation, such as an error message or the
	// canonical path of a duplicate group.
	Detail string
}

// AuditFilter narrows an audit query. Zero fields match everything.
type AuditFilter struct {
	Source string
	Kind   EventKind
	RunID  string
	Since  int64
	Limit  int
}
