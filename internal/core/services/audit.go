package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
	"github.com/custodia-labs/filer/internal/core/ports/driving"
)

// Ensure AuditService implements the interface.
var _ driving.AuditService = (*AuditService)(nil)

// AuditService exposes the audit log and runs recovery.
type AuditService struct {
	log      driven.AuditLog
	executor *MigrationExecutor
}

// NewAuditService creates an audit service. executor may be nil when
// recovery is not needed.
func NewAuditService(log driven.AuditLog, executor *MigrationExecutor) *AuditService {
	return &AuditService{log: log, executor: executor}
}

// Events returns events matching the filter.
func (s *AuditService) Events(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	events, err := s.log.Events(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuditUnavailable, err)
	}
	return events, nil
}

// Export writes the whole log as JSON lines.
func (s *AuditService) Export(ctx context.Context, w io.Writer) error {
	if err := s.log.Export(ctx, w); err != nil {
		if errors.Is(err, domain.ErrAuditUnavailable) {
			return err
		}
		return fmt.Errorf("exporting audit log: %w", err)
	}
	return nil
}

// Recover reconciles interrupted transfers from the audit log.
func (s *AuditService) Recover(ctx context.Context) (*driving.RecoveryReport, error) {
	if s.executor == nil {
		return nil, fmt.Errorf("%w: recovery needs a migration executor", domain.ErrInvalidInput)
	}
	return s.executor.Recover(ctx)
}
