package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
)

// reviewQueue implements driven.ReviewQueue.
type reviewQueue struct {
	store *Store
}

var _ driven.ReviewQueue = (*reviewQueue)(nil)

const reviewColumns = `id, kind, status, subject, location, counterpart, proposed, score, reason,
	disposition, note, created_at, resolved_at`

// Enqueue adds an open item, assigning an ID if empty.
func (s *reviewQueue) Enqueue(ctx context.Context, item *domain.ReviewItem) error {
	if item == nil {
		return domain.ErrInvalidInput
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	item.Status = domain.ReviewOpen

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO review_items (id, kind, status, subject, location, counterpart, proposed, score,
			reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, string(item.Kind), string(item.Status), item.Subject,
		nullString(item.Location), nullString(item.Counterpart), nullString(item.Proposed),
		item.Score, nullString(item.Reason), formatNullableTime(item.CreatedAt))
	if err != nil {
		return fmt.Errorf("enqueueing review item: %w", err)
	}
	return nil
}

// Get retrieves an item by ID.
func (s *reviewQueue) Get(ctx context.Context, id string) (*domain.ReviewItem, error) {
	row := s.store.db.QueryRowContext(ctx, "SELECT "+reviewColumns+" FROM review_items WHERE id = ?", id)
	return scanReviewItem(row)
}

// List returns items with the given status, oldest first.
func (s *reviewQueue) List(ctx context.Context, status domain.ReviewStatus) ([]domain.ReviewItem, error) {
	query := "SELECT " + reviewColumns + " FROM review_items"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at, rowid"

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying review items: %w", err)
	}
	defer rows.Close()

	var items []domain.ReviewItem //nolint:prealloc // size unknown from query
	for rows.Next() {
		item, err := scanReviewItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating review items: %w", err)
	}
	return items, nil
}

// Resolve closes an item with a disposition.
func (s *reviewQueue) Resolve(ctx context.Context, id string, disposition domain.Disposition, note string) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE review_items SET status = ?, disposition = ?, note = ?, resolved_at = ?
		WHERE id = ?
	`, string(domain.ReviewResolved), string(disposition), nullString(note),
		formatNullableTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("resolving review item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolving review item: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanReviewItem(row scanner) (*domain.ReviewItem, error) {
	var item domain.ReviewItem
	var kind, status string
	var location, counterpart, proposed, reason, disposition, note, createdAt, resolvedAt sql.NullString

	if err := row.Scan(&item.ID, &kind, &status, &item.Subject, &location, &counterpart, &proposed,
		&item.Score, &reason, &disposition, &note, &createdAt, &resolvedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning review item: %w", err)
	}

	item.Kind = domain.ReviewKind(kind)
	item.Status = domain.ReviewStatus(status)
	item.Location = stringOf(location)
	item.Counterpart = stringOf(counterpart)
	item.Proposed = stringOf(proposed)
	item.Reason = stringOf(reason)
	item.Disposition = domain.Disposition(stringOf(disposition))
	item.Note = stringOf(note)
	item.CreatedAt = parseNullableTime(createdAt)
	item.ResolvedAt = parseNullableTime(resolvedAt)
	return &item, nil
}
