package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
)

var _ driven.SchedulerStore = (*schedulerStore)(nil)

const (
	taskColumns = `id, name, interval_seconds, enabled, last_run, next_run, last_success, last_error, failures`
	runColumns  = `task_id, run_id, started_at, ended_at, error, admitted, escalated`
)

// schedulerStore keeps task state in scheduler_tasks and one row per
// execution in scheduler_runs.
type schedulerStore struct {
	store *Store
}

func (s *schedulerStore) GetTask(ctx context.Context, taskID string) (*domain.ScheduledTask, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM scheduler_tasks WHERE id = ?`, taskID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading task %s: %w", taskID, err)
	}
	return task, nil
}

func (s *schedulerStore) ListTasks(ctx context.Context) ([]domain.ScheduledTask, error) {
	rows, err := s.store.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM scheduler_tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return collect(rows, scanTask)
}

func (s *schedulerStore) SaveTask(ctx context.Context, task *domain.ScheduledTask) error {
	if task == nil || task.ID == "" {
		return domain.ErrInvalidInput
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO scheduler_tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			interval_seconds = excluded.interval_seconds,
			enabled = excluded.enabled,
			last_run = excluded.last_run,
			next_run = excluded.next_run,
			last_success = excluded.last_success,
			last_error = excluded.last_error,
			failures = excluded.failures`,
		task.ID, task.Name, int64(task.Interval/time.Second), boolToInt(task.Enabled),
		formatNullableTime(task.LastRun), formatNullableTime(task.NextRun),
		formatNullableTime(task.LastSuccess), nullString(task.LastError), task.Failures)
	if err != nil {
		return fmt.Errorf("saving task %s: %w", task.ID, err)
	}
	return nil
}

func (s *schedulerStore) RecordResult(ctx context.Context, result *domain.TaskResult) error {
	if result == nil || result.TaskID == "" {
		return domain.ErrInvalidInput
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO scheduler_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.TaskID, nullString(result.RunID),
		formatNullableTime(result.StartedAt), formatNullableTime(result.EndedAt),
		nullString(result.Error), result.Admitted, result.Escalated)
	if err != nil {
		return fmt.Errorf("recording %s run: %w", result.TaskID, err)
	}
	return nil
}

// GetTaskHistory returns executions newest first. limit <= 0 returns all.
func (s *schedulerStore) GetTaskHistory(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM scheduler_runs
		WHERE task_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading %s history: %w", taskID, err)
	}
	return collect(rows, scanRun)
}

// PruneHistory keeps the newest keep executions of every task.
func (s *schedulerStore) PruneHistory(ctx context.Context, keep int) error {
	if keep < 0 {
		return domain.ErrInvalidInput
	}
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM scheduler_runs WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY task_id ORDER BY started_at DESC, id DESC) AS n
				FROM scheduler_runs
			) WHERE n > ?
		)`, keep)
	if err != nil {
		return fmt.Errorf("pruning scheduler runs: %w", err)
	}
	return nil
}

func scanTask(row scanner) (*domain.ScheduledTask, error) {
	var (
		t                  domain.ScheduledTask
		seconds            int64
		enabled            int
		lastRun, nextRun   sql.NullString
		succeeded, lastErr sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Name, &seconds, &enabled,
		&lastRun, &nextRun, &succeeded, &lastErr, &t.Failures); err != nil {
		return nil, err
	}
	t.Interval = time.Duration(seconds) * time.Second
	t.Enabled = enabled != 0
	t.LastRun = parseNullableTime(lastRun)
	t.NextRun = parseNullableTime(nextRun)
	t.LastSuccess = parseNullableTime(succeeded)
	t.LastError = stringOf(lastErr)
	return &t, nil
}

func scanRun(row scanner) (*domain.TaskResult, error) {
	var (
		r                  domain.TaskResult
		runID, errMsg      sql.NullString
		startedAt, endedAt sql.NullString
	)
	if err := row.Scan(&r.TaskID, &runID, &startedAt, &endedAt,
		&errMsg, &r.Admitted, &r.Escalated); err != nil {
		return nil, err
	}
	r.RunID = stringOf(runID)
	r.StartedAt = parseNullableTime(startedAt)
	r.EndedAt = parseNullableTime(endedAt)
	r.Error = stringOf(errMsg)
	return &r, nil
}

// collect drains rows through scan and closes them.
func collect[T any](rows *sql.Rows, scan func(scanner) (*T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
