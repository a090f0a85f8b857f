package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
	"github.com/custodia-labs/filer/internal/core/ports/driving"
	"github.com/custodia-labs/filer/internal/logger"
)

// Ensure ReviewService implements the interface.
var _ driving.ReviewService = (*ReviewService)(nil)

// PathLocker serialises work on a single path with the running pipeline.
type PathLocker interface {
	Acquire(ctx context.Context, path string) error
	Release(path string)
}

// ReviewService lists review items and applies human dispositions.
type ReviewService struct {
	queue        driven.ReviewQueue
	audit        driven.AuditLog
	fingerprints *FingerprintEngine
	executor     *MigrationExecutor
	locker       PathLocker
	runID        string
	now          func() time.Time
}

// NewReviewService creates a review service. locker may be nil when no
// pipeline runs alongside.
func NewReviewService(
	queue driven.ReviewQueue,
	audit driven.AuditLog,
	fingerprints *FingerprintEngine,
	executor *MigrationExecutor,
	locker PathLocker,
	runID string,
) *ReviewService {
	return &ReviewService{
		queue:        queue,
		audit:        audit,
		fingerprints: fingerprints,
		executor:     executor,
		locker:       locker,
		runID:        runID,
		now:          time.Now,
	}
}

// List returns review items with the given status.
func (s *ReviewService) List(ctx context.Context, status domain.ReviewStatus) ([]domain.ReviewItem, error) {
	return s.queue.List(ctx, status)
}

// Get retrieves a single review item.
func (s *ReviewService) Get(ctx context.Context, id string) (*domain.ReviewItem, error) {
	return s.queue.Get(ctx, id)
}

// Apply executes a disposition:
//   - KEEP closes the item, moving the file to Destination or to the
//     proposed destination when one outside the holding area exists.
//   - REMOVE quarantines the file.
//   - MERGE keeps one member of a near-duplicate pair and quarantines the other.
func (s *ReviewService) Apply(ctx context.Context, instr domain.ReviewInstruction) error {
	item, err := s.queue.Get(ctx, instr.ItemID)
	if err != nil {
		return err
	}
	if item.Status == domain.ReviewResolved {
		return fmt.Errorf("%w: review item %s is already resolved", domain.ErrInvalidInput, item.ID)
	}

	switch instr.Disposition {
	case domain.DispositionKeep:
		dest := instr.Destination
		if dest == "" && item.Kind == domain.ReviewClassification && item.Location == "" &&
			item.Proposed != "" && !domain.IsHoldingDestination(item.Proposed) {
			dest = item.Proposed
		}
		if dest != "" {
			err = s.route(ctx, item.Subject, item.Location, dest)
		}

	case domain.DispositionRemove:
		err = s.quarantine(ctx, item.Subject, item.Location, item.Counterpart)

	case domain.DispositionMerge:
		if item.Kind != domain.ReviewNearDuplicate {
			return fmt.Errorf("%w: MERGE applies only to near-duplicate items", domain.ErrInvalidInput)
		}
		keep := instr.Keep
		if keep == "" {
			keep = item.Counterpart
		}
		var drop, dropLocation string
		switch keep {
		case item.Counterpart:
			drop, dropLocation = item.Subject, item.Location
		case item.Subject:
			drop = item.Counterpart
		default:
			return fmt.Errorf("%w: %s is not a member of review item %s", domain.ErrInvalidInput, keep, item.ID)
		}
		err = s.quarantine(ctx, drop, dropLocation, keep)

	default:
		return fmt.Errorf("%w: disposition %q", domain.ErrInvalidInput, instr.Disposition)
	}
	if err != nil {
		return err
	}

	detail := string(instr.Disposition)
	if instr.Note != "" {
		detail += ": " + instr.Note
	}
	if err := s.audit.Append(ctx, &domain.AuditEvent{
		Timestamp:   s.now(),
		RunID:       s.runID,
		Kind:        domain.EventReviewResolved,
		Source:      item.Subject,
		Destination: item.Counterpart,
		Mode:        s.executor.Mode(),
		Detail:      detail,
	}); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAuditUnavailable, err)
	}

	if err := s.queue.Resolve(ctx, item.ID, instr.Disposition, instr.Note); err != nil {
		return fmt.Errorf("resolving review item: %w", err)
	}
	logger.Info("review item %s resolved: %s", item.ID, detail)
	return nil
}

func (s *ReviewService) route(ctx context.Context, subject, location, dest string) error {
	return s.withCurrent(ctx, subject, location, func(rec *domain.FileRecord) error {
		_, err := s.executor.Migrate(ctx, domain.MigrationRequest{
			Source:      *rec,
			Destination: s.executor.TaxonomyPath(dest),
			Purpose:     domain.PurposeReview,
			Confidence:  1.0,
		})
		return err
	})
}

func (s *ReviewService) quarantine(ctx context.Context, subject, location, reference string) error {
	return s.withCurrent(ctx, subject, location, func(rec *domain.FileRecord) error {
		_, err := s.executor.Quarantine(ctx, rec, reference)
		return err
	})
}

// withCurrent locks the file's current path, re-fingerprints it and runs fn.
func (s *ReviewService) withCurrent(ctx context.Context, subject, location string, fn func(*domain.FileRecord) error) error {
	path, err := s.currentPath(ctx, subject, location)
	if err != nil {
		return err
	}

	if s.locker != nil {
		if err := s.locker.Acquire(ctx, path); err != nil {
			return err
		}
		defer s.locker.Release(path)
	}

	rec, err := s.fingerprints.Fingerprint(ctx, domain.FileDescriptor{Path: path})
	if err != nil {
		return err
	}
	return fn(rec)
}

// maxPlacementHops bounds how far currentPath follows a file.
const maxPlacementHops = 16

// currentPath follows a file through its placements to where the pipeline
// last put it. Quarantine transfers are not followed.
func (s *ReviewService) currentPath(ctx context.Context, subject, location string) (string, error) {
	path := subject
	if location != "" {
		path = location
	}
	for range maxPlacementHops {
		last, err := s.audit.LastMigration(ctx, path)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrAuditUnavailable, err)
		}
		if !isPlacement(last) || last.Destination == path {
			break
		}
		path = last.Destination
	}
	return path, nil
}

func isPlacement(ev *domain.AuditEvent) bool {
	if ev == nil || ev.Purpose == domain.PurposeQuarantine || ev.Destination == "" {
		return false
	}
	switch ev.Kind {
	case domain.EventSourceRemoved:
		return true
	case domain.EventMigration:
		return ev.State == domain.StateFinalized
	}
	return false
}
