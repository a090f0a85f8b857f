package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
)

// auditLog implements driven.AuditLog.
type auditLog struct {
	store *Store
}

var _ driven.AuditLog = (*auditLog)(nil)

const auditColumns = `seq, ts, run_id, kind, source, destination, temp_path, state, outcome, mode,
	purpose, confidence, fingerprint_before, fingerprint_after, ruleset_version, detail`

// Append records an event in its own transaction and assigns its sequence number.
func (s *auditLog) Append(ctx context.Context, event *domain.AuditEvent) error {
	if event == nil {
		return domain.ErrInvalidInput
	}

	s.store.appendMu.Lock()
	defer s.store.appendMu.Unlock()

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: starting append: %v", domain.ErrAuditUnavailable, err)
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO audit_events (ts, run_id, kind, source, destination, temp_path, state, outcome, mode,
			purpose, confidence, fingerprint_before, fingerprint_after, ruleset_version, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, formatNullableTime(event.Timestamp), event.RunID, string(event.Kind), event.Source,
		nullString(event.Destination), nullString(event.TempPath),
		nullString(string(event.State)), nullString(string(event.Outcome)),
		nullString(string(event.Mode)), nullString(string(event.Purpose)),
		event.Confidence, nullString(event.FingerprintBefore), nullString(event.FingerprintAfter),
		nullString(event.RuleSetVersion), nullString(event.Detail))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: inserting event: %v", domain.ErrAuditUnavailable, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: reading sequence: %v", domain.ErrAuditUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing event: %v", domain.ErrAuditUnavailable, err)
	}

	event.Seq = seq
	return nil
}

// Events returns events matching the filter in sequence order.
func (s *auditLog) Events(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	var where []string
	var args []any
	if filter.Source != "" {
		where = append(where, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.Since > 0 {
		where = append(where, "seq > ?")
		args = append(args, filter.Since)
	}

	query := "SELECT " + auditColumns + " FROM audit_events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent //nolint:prealloc // size unknown from query
	for rows.Next() {
		ev, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit events: %w", err)
	}
	return events, nil
}

// LastMigration returns the latest migration-related event for source.
// Returns nil and no error if there is none.
func (s *auditLog) LastMigration(ctx context.Context, source string) (*domain.AuditEvent, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+auditColumns+` FROM audit_events
		WHERE source = ? AND kind IN (?, ?, ?)
		ORDER BY seq DESC LIMIT 1
	`, source, string(domain.EventMigration), string(domain.EventSourceRemoved), string(domain.EventRecovered))

	ev, err := scanAuditEvent(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return ev, err
}

// FinalizedByFingerprint returns the earliest finalized placement of the content.
// Returns nil and no error if there is none.
func (s *auditLog) FinalizedByFingerprint(ctx context.Context, fingerprint string) (*domain.AuditEvent, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+auditColumns+` FROM audit_events
		WHERE fingerprint_before = ? AND kind = ? AND state = ? AND purpose != ?
		ORDER BY seq LIMIT 1
	`, fingerprint, string(domain.EventMigration), string(domain.StateFinalized), string(domain.PurposeQuarantine))

	ev, err := scanAuditEvent(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return ev, err
}

// Export writes every event as a JSON line.
func (s *auditLog) Export(ctx context.Context, w io.Writer) error {
	rows, err := s.store.db.QueryContext(ctx, "SELECT "+auditColumns+" FROM audit_events ORDER BY seq")
	if err != nil {
		return fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	enc := json.NewEncoder(w)
	for rows.Next() {
		ev, err := scanAuditEvent(rows)
		if err != nil {
			return err
		}
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("encoding event %d: %w", ev.Seq, err)
		}
	}
	return rows.Err()
}

// Close is a no-op; the owning Store closes the database.
func (s *auditLog) Close() error {
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAuditEvent(row scanner) (*domain.AuditEvent, error) {
	var ev domain.AuditEvent
	var ts, dest, temp, state, outcome, mode, purpose sql.NullString
	var fpBefore, fpAfter, version, detail sql.NullString
	var kind string

	if err := row.Scan(&ev.Seq, &ts, &ev.RunID, &kind, &ev.Source, &dest, &temp, &state, &outcome,
		&mode, &purpose, &ev.Confidence, &fpBefore, &fpAfter, &version, &detail); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning audit event: %w", err)
	}

	ev.Timestamp = parseNullableTime(ts)
	ev.Kind = domain.EventKind(kind)
	ev.Destination = stringOf(dest)
	ev.TempPath = stringOf(temp)
	ev.State = domain.MigrationState(stringOf(state))
	ev.Outcome = domain.Outcome(stringOf(outcome))
	ev.Mode = domain.MigrationMode(stringOf(mode))
	ev.Purpose = domain.MigrationPurpose(stringOf(purpose))
	ev.FingerprintBefore = stringOf(fpBefore)
	ev.FingerprintAfter = stringOf(fpAfter)
	ev.RuleSetVersion = stringOf(version)
	ev.Detail = stringOf(detail)
	return &ev, nil
}
