package driven

import (
	"context"

	"github.com/custodia-labs/filer/internal/core/domain"
)

// SchedulerStore keeps scheduled task state and execution history so a
// restarted watcher resumes its cadence.
type SchedulerStore interface {
	// GetTask returns nil and no error when the task was never saved.
	GetTask(ctx context.Context, taskID string) (*domain.ScheduledTask, error)
	ListTasks(ctx context.Context) ([]domain.ScheduledTask, error)
	SaveTask(ctx context.Context, task *domain.ScheduledTask) error

	RecordResult(ctx context.Context, result *domain.TaskResult) error
	// GetTaskHistory returns executions newest first; limit <= 0 means all.
	GetTaskHistory(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error)
	// PruneHistory drops all but the newest keep executions per task.
	PruneHistory(ctx context.Context, keep int) error
}
