package driven

import (
	"context"
	"io"

	"github.com/custodia-labs/filer/internal/core/domain"
)

// AuditLog is the append-only, time-ordered record of every decision and
// transfer. It is the single durable source of truth for recovery.
// Implementations must serialise appends; a failed append must be
// reported as domain.ErrAuditUnavailable.
type AuditLog interface {
	// Append durably records an event and assigns its sequence number.
	Append(ctx context.Context, event *domain.AuditEvent) error

	// Events returns events matching the filter in sequence order.
	Events(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error)

	// LastMigration returns the latest migration-related event for a
	// source path. Returns nil and no error if there is none.
	LastMigration(ctx context.Context, source string) (*domain.AuditEvent, error)

	// FinalizedByFingerprint returns the earliest finalized route or
	// review transfer of the given content. Quarantine transfers are not
	// placements and are ignored. Returns nil and no error if there is none.
	FinalizedByFingerprint(ctx context.Context, fingerprint string) (*domain.AuditEvent, error)

	// Export writes every event as JSON lines.
	Export(ctx context.Context, w io.Writer) error

	// Close flushes and releases the log.
	Close() error
}
