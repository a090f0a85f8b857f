package driving

import (
	"context"
	"io"

	"github.com/custodia-labs/filer/internal/core/domain"
)

// AuditService exposes the audit log to operators.
type AuditService interface {
	// Events returns events matching the filter.
	Events(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error)

	// Export writes the whole log as JSON lines.
	Export(ctx context.Context, w io.Writer) error

	// Recover reconciles interrupted transfers from the audit log.
	Recover(ctx context.Context) (*RecoveryReport, error)
}

// RecoveryReport summarises a reconciliation pass.
type RecoveryReport struct {
	// Reset counts transfers discarded back to pending.
	Reset int

	// Completed counts transfers whose final step was finished.
	Completed int

	// Paths lists every source path touched.
	Paths []string
}
