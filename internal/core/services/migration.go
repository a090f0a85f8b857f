package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
	"github.com/custodia-labs/filer/internal/core/ports/driving"
	"github.com/custodia-labs/filer/internal/logger"
)

// Hasher computes the exact fingerprint of a file.
type Hasher interface {
	Hash(ctx context.Context, path string) (string, error)
}

// MigrationExecutor performs verified, collision-safe transfers.
// Every state transition is appended to the audit log before the next
// one begins, so an interrupted transfer can always be reconstructed.
type MigrationExecutor struct {
	fs     driven.FileSystem
	audit  driven.AuditLog
	hasher Hasher
	cfg    domain.MigrationSettings
	paths  domain.PathSettings
	runID  string
	now    func() time.Time
}

// NewMigrationExecutor creates an executor.
func NewMigrationExecutor(
	fs driven.FileSystem,
	audit driven.AuditLog,
	hasher Hasher,
	cfg domain.MigrationSettings,
	paths domain.PathSettings,
	runID string,
) *MigrationExecutor {
	if cfg.Mode == "" {
		cfg.Mode = domain.ModeCopy
	}
	return &MigrationExecutor{
		fs:     fs,
		audit:  audit,
		hasher: hasher,
		cfg:    cfg,
		paths:  paths,
		runID:  runID,
		now:    time.Now,
	}
}

// Mode returns the configured migration mode.
func (x *MigrationExecutor) Mode() domain.MigrationMode {
	return x.cfg.Mode
}

// Route transfers a classified record to a destination relative to the
// taxonomy root.
func (x *MigrationExecutor) Route(
	ctx context.Context,
	rec *domain.FileRecord,
	relDest string,
	confidence float64,
) (*domain.MigrationRecord, error) {
	return x.Migrate(ctx, domain.MigrationRequest{
		Source:      *rec,
		Destination: x.TaxonomyPath(relDest),
		Purpose:     domain.PurposeRoute,
		Confidence:  confidence,
	})
}

// Quarantine transfers a redundant duplicate into the quarantine area.
// It is never a delete.
func (x *MigrationExecutor) Quarantine(
	ctx context.Context,
	rec *domain.FileRecord,
	canonical string,
) (*domain.MigrationRecord, error) {
	return x.Migrate(ctx, domain.MigrationRequest{
		Source:      *rec,
		Destination: x.QuarantinePath(rec.Path),
		Purpose:     domain.PurposeQuarantine,
		Reference:   canonical,
	})
}

// modeFor returns the mode a transfer from src runs in. Files under the
// taxonomy root are pipeline output, so they are moved even in copy mode.
func (x *MigrationExecutor) modeFor(src string) domain.MigrationMode {
	if x.cfg.Mode == domain.ModeCopy && within(x.paths.TaxonomyRoot, src) {
		return domain.ModeMove
	}
	return x.cfg.Mode
}

// TaxonomyPath resolves a destination relative to the taxonomy root.
func (x *MigrationExecutor) TaxonomyPath(relDest string) string {
	return filepath.Join(x.paths.TaxonomyRoot, filepath.FromSlash(relDest))
}

// QuarantinePath flattens a source path into a single quarantine file name.
func (x *MigrationExecutor) QuarantinePath(source string) string {
	flat := strings.TrimLeft(filepath.ToSlash(source), "/")
	flat = strings.ReplaceAll(flat, ":", "")
	flat = strings.ReplaceAll(flat, "/", "__")
	return filepath.Join(x.paths.QuarantineRoot, flat)
}

// Migrate runs Pending -> Copied -> Verified -> Finalized for one file.
// The source is removed only in move mode and only after Finalized.
// A deadline or cancellation on ctx bounds the copy only. Once the copy
// completes, the remaining steps run to completion.
func (x *MigrationExecutor) Migrate(ctx context.Context, req domain.MigrationRequest) (*domain.MigrationRecord, error) {
	src := req.Source.Path
	dest := req.Destination
	result := &domain.MigrationRecord{
		Source:            src,
		Destination:       dest,
		State:             domain.StatePending,
		FingerprintBefore: req.Source.Fingerprint,
		Timestamp:         x.now(),
	}

	if x.cfg.Mode == domain.ModeDryRun {
		return x.plan(ctx, req, result)
	}

	dir := filepath.Dir(dest)
	if err := x.fs.MkdirAll(dir); err != nil {
		return result, domain.NewFileError("mkdir", dir, errors.Join(domain.ErrTransientIO, err))
	}
	temp := filepath.Join(dir, "."+filepath.Base(dest)+"."+uuid.NewString()+".partial")

	if err := x.record(ctx, req, domain.StatePending, temp, dest, "", ""); err != nil {
		return result, err
	}

	if err := x.copy(ctx, src, temp); err != nil {
		_ = x.fs.Remove(temp)
		return result, err
	}

	// No interruption between copy and verification.
	stepCtx := context.WithoutCancel(ctx)

	result.State = domain.StateCopied
	if err := x.record(stepCtx, req, domain.StateCopied, temp, dest, "", ""); err != nil {
		return result, err
	}

	after, err := x.hasher.Hash(stepCtx, temp)
	if err != nil {
		// The copy could not be read back; the transfer is retried from Pending.
		_ = x.fs.Remove(temp)
		return result, domain.NewFileError("verify", temp, errors.Join(domain.ErrTransientIO, err))
	}
	result.FingerprintAfter = after
	if after != req.Source.Fingerprint {
		_ = x.fs.Remove(temp)
		detail := fmt.Sprintf("copied fingerprint %s does not match source", shortHash(after))
		result.State = domain.StateVerificationFailed
		result.Outcome = domain.OutcomeFailedVerification
		if err := x.record(stepCtx, req, domain.StateVerificationFailed, temp, dest, after, detail); err != nil {
			return result, err
		}
		return result, domain.NewFileError("verify", src, fmt.Errorf("%w: %s", domain.ErrVerificationFailed, detail))
	}

	result.State = domain.StateVerified
	if err := x.record(stepCtx, req, domain.StateVerified, temp, dest, after, ""); err != nil {
		return result, err
	}

	final, err := x.finalize(temp, dest)
	if err != nil {
		_ = x.fs.Remove(temp)
		if errors.Is(err, domain.ErrCollisionUnresolved) {
			result.State = domain.StateCollisionUnresolved
			result.Outcome = domain.OutcomeFailedCollision
			if recErr := x.record(stepCtx, req, domain.StateCollisionUnresolved, temp, dest, after, err.Error()); recErr != nil {
				return result, recErr
			}
		}
		return result, domain.NewFileError("rename", dest, err)
	}
	if err := x.fs.SyncDir(filepath.Dir(final)); err != nil {
		logger.Warn("syncing directory %s: %v", filepath.Dir(final), err)
	}

	result.Destination = final
	result.State = domain.StateFinalized
	result.Outcome = domain.OutcomeSucceeded
	if err := x.record(stepCtx, req, domain.StateFinalized, "", final, after, req.Reference); err != nil {
		return result, err
	}

	if x.modeFor(src) == domain.ModeMove {
		if err := x.removeSource(stepCtx, req, final); err != nil {
			return result, err
		}
	}

	logger.Debug("migrated %s -> %s", src, final)
	return result, nil
}

// plan records a dry-run transfer without touching the filesystem.
func (x *MigrationExecutor) plan(
	ctx context.Context,
	req domain.MigrationRequest,
	result *domain.MigrationRecord,
) (*domain.MigrationRecord, error) {
	final := req.Destination
	for i := 0; i <= x.cfg.MaxCollisionAttempts; i++ {
		candidate := suffixed(req.Destination, i)
		if _, err := x.fs.Stat(candidate); errors.Is(err, fs.ErrNotExist) {
			final = candidate
			break
		}
	}
	result.Destination = final
	result.Outcome = domain.OutcomePlanned

	err := x.append(ctx, &domain.AuditEvent{
		Kind:              domain.EventPlanned,
		Source:            req.Source.Path,
		Destination:       final,
		Purpose:           req.Purpose,
		Outcome:           domain.OutcomePlanned,
		Confidence:        req.Confidence,
		FingerprintBefore: req.Source.Fingerprint,
		Detail:            req.Reference,
	})
	return result, err
}

func (x *MigrationExecutor) copy(ctx context.Context, src, temp string) error {
	in, err := x.fs.Open(src)
	if err != nil {
		return domain.NewFileError("open", src, errors.Join(domain.ErrUnreadableFile, err))
	}
	defer in.Close()
	// Closing the source unblocks a read stalled past the deadline.
	stop := context.AfterFunc(ctx, func() { in.Close() })
	defer stop()

	out, err := x.fs.Create(temp)
	if err != nil {
		return domain.NewFileError("create", temp, errors.Join(domain.ErrTransientIO, err))
	}

	if _, err := io.Copy(out, &contextReader{ctx: ctx, r: in}); err != nil {
		out.Close()
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return domain.NewFileError("copy", src, classifyReadError(err))
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return domain.NewFileError("sync", temp, errors.Join(domain.ErrTransientIO, err))
	}
	if err := out.Close(); err != nil {
		return domain.NewFileError("close", temp, errors.Join(domain.ErrTransientIO, err))
	}
	return nil
}

// finalize renames temp to the first free name among dest, dest_1, dest_2...
func (x *MigrationExecutor) finalize(temp, dest string) (string, error) {
	for i := 0; i <= x.cfg.MaxCollisionAttempts; i++ {
		candidate := suffixed(dest, i)
		err := x.fs.RenameNoReplace(temp, candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", errors.Join(domain.ErrTransientIO, err)
		}
	}
	return "", fmt.Errorf("%w: %s has %d taken suffixes", domain.ErrCollisionUnresolved, dest, x.cfg.MaxCollisionAttempts)
}

func (x *MigrationExecutor) removeSource(ctx context.Context, req domain.MigrationRequest, final string) error {
	if err := x.fs.Remove(req.Source.Path); err != nil {
		// The destination is complete; recovery retries the removal.
		logger.Warn("removing source %s: %v", req.Source.Path, err)
		return nil
	}
	return x.append(ctx, &domain.AuditEvent{
		Kind:              domain.EventSourceRemoved,
		Source:            req.Source.Path,
		Destination:       final,
		Purpose:           req.Purpose,
		Mode:              x.modeFor(req.Source.Path),
		FingerprintBefore: req.Source.Fingerprint,
	})
}

func (x *MigrationExecutor) record(
	ctx context.Context,
	req domain.MigrationRequest,
	state domain.MigrationState,
	temp, dest, after, detail string,
) error {
	ev := &domain.AuditEvent{
		Kind:              domain.EventMigration,
		Source:            req.Source.Path,
		Destination:       dest,
		TempPath:          temp,
		State:             state,
		Purpose:           req.Purpose,
		Mode:              x.modeFor(req.Source.Path),
		Confidence:        req.Confidence,
		FingerprintBefore: req.Source.Fingerprint,
		FingerprintAfter:  after,
		Detail:            detail,
	}
	switch state {
	case domain.StateFinalized:
		ev.Outcome = domain.OutcomeSucceeded
	case domain.StateVerificationFailed:
		ev.Outcome = domain.OutcomeFailedVerification
	case domain.StateCollisionUnresolved:
		ev.Outcome = domain.OutcomeFailedCollision
	}
	return x.append(ctx, ev)
}

func (x *MigrationExecutor) append(ctx context.Context, ev *domain.AuditEvent) error {
	ev.Timestamp = x.now()
	ev.RunID = x.runID
	if ev.Mode == "" {
		ev.Mode = x.cfg.Mode
	}
	if err := x.audit.Append(ctx, ev); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAuditUnavailable, err)
	}
	return nil
}

// Recover replays the audit log and reconciles interrupted transfers.
// Transfers that stopped at Copied or earlier lose their temporary copy
// and return to Pending. Finalized moves whose source was not removed
// have the removal completed when the source still matches.
func (x *MigrationExecutor) Recover(ctx context.Context) (*driving.RecoveryReport, error) {
	events, err := x.audit.Events(ctx, domain.AuditFilter{})
	if err != nil {
		return nil, fmt.Errorf("%w: reading audit log: %v", domain.ErrAuditUnavailable, err)
	}

	last := make(map[string]domain.AuditEvent)
	for _, ev := range events {
		switch ev.Kind {
		case domain.EventMigration, domain.EventSourceRemoved, domain.EventRecovered:
			last[ev.Source] = ev
		}
	}

	sources := make([]string, 0, len(last))
	for src := range last {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	report := &driving.RecoveryReport{}
	for _, src := range sources {
		ev := last[src]
		if ev.Kind != domain.EventMigration {
			continue
		}

		switch ev.State {
		case domain.StatePending, domain.StateCopied:
			if err := x.reset(ctx, ev); err != nil {
				return report, err
			}
			report.Reset++
			report.Paths = append(report.Paths, src)

		case domain.StateVerified:
			completed, err := x.recoverVerified(ctx, ev)
			if err != nil {
				return report, err
			}
			if completed {
				report.Completed++
			} else {
				report.Reset++
			}
			report.Paths = append(report.Paths, src)

		case domain.StateFinalized:
			if ev.Mode != domain.ModeMove {
				continue
			}
			removed, err := x.completeRemoval(ctx, ev)
			if err != nil {
				return report, err
			}
			if removed {
				report.Completed++
				report.Paths = append(report.Paths, src)
			}
		}
	}

	if report.Reset+report.Completed > 0 {
		logger.Info("recovery: %d transfers reset, %d completed", report.Reset, report.Completed)
	}
	return report, nil
}

func (x *MigrationExecutor) reset(ctx context.Context, ev domain.AuditEvent) error {
	if ev.TempPath != "" {
		if err := x.fs.Remove(ev.TempPath); err != nil {
			logger.Warn("recovery: removing %s: %v", ev.TempPath, err)
		}
	}
	return x.append(ctx, &domain.AuditEvent{
		Kind:              domain.EventRecovered,
		Source:            ev.Source,
		Destination:       ev.Destination,
		TempPath:          ev.TempPath,
		State:             domain.StatePending,
		Purpose:           ev.Purpose,
		Mode:              ev.Mode,
		FingerprintBefore: ev.FingerprintBefore,
		Detail:            "discarded temporary copy from state " + ev.State.String(),
	})
}

// recoverVerified handles a crash after verification. If the temporary
// copy is gone, the rename may already have happened; a destination
// candidate carrying the source fingerprint is adopted as finalized.
func (x *MigrationExecutor) recoverVerified(ctx context.Context, ev domain.AuditEvent) (bool, error) {
	if _, err := x.fs.Stat(ev.TempPath); err == nil {
		return false, x.reset(ctx, ev)
	}

	for i := 0; i <= x.cfg.MaxCollisionAttempts; i++ {
		candidate := suffixed(ev.Destination, i)
		if _, err := x.fs.Stat(candidate); errors.Is(err, fs.ErrNotExist) {
			break
		}
		sum, err := x.hasher.Hash(ctx, candidate)
		if err != nil || sum != ev.FingerprintBefore {
			continue
		}
		if err := x.append(ctx, &domain.AuditEvent{
			Kind:              domain.EventMigration,
			Source:            ev.Source,
			Destination:       candidate,
			State:             domain.StateFinalized,
			Outcome:           domain.OutcomeSucceeded,
			Purpose:           ev.Purpose,
			Mode:              ev.Mode,
			FingerprintBefore: ev.FingerprintBefore,
			FingerprintAfter:  sum,
			Detail:            "recovered after interrupted rename",
		}); err != nil {
			return false, err
		}
		if ev.Mode == domain.ModeMove {
			ev.Destination = candidate
			if _, err := x.completeRemoval(ctx, ev); err != nil {
				return true, err
			}
		}
		return true, nil
	}

	return false, x.reset(ctx, ev)
}

// completeRemoval deletes the source of a finalized move if it still
// carries the fingerprint that was transferred.
func (x *MigrationExecutor) completeRemoval(ctx context.Context, ev domain.AuditEvent) (bool, error) {
	if _, err := x.fs.Stat(ev.Source); err != nil {
		return false, nil
	}
	sum, err := x.hasher.Hash(ctx, ev.Source)
	if err != nil || sum != ev.FingerprintBefore {
		logger.Warn("recovery: source %s changed since transfer, leaving it in place", ev.Source)
		return false, nil
	}
	if err := x.fs.Remove(ev.Source); err != nil {
		return false, domain.NewFileError("remove", ev.Source, errors.Join(domain.ErrTransientIO, err))
	}
	return true, x.append(ctx, &domain.AuditEvent{
		Kind:              domain.EventSourceRemoved,
		Source:            ev.Source,
		Destination:       ev.Destination,
		Purpose:           ev.Purpose,
		Mode:              ev.Mode,
		FingerprintBefore: ev.FingerprintBefore,
		Detail:            "completed by recovery",
	})
}

// suffixed returns dest for n == 0, otherwise dest with _n before the extension.
func suffixed(dest string, n int) string {
	if n == 0 {
		return dest
	}
	ext := filepath.Ext(dest)
	return strings.TrimSuffix(dest, ext) + "_" + strconv.Itoa(n) + ext
}

// within reports whether path lies strictly inside root.
func within(root, path string) bool {
	if root == "" {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
