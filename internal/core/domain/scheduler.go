package domain

import "time"

// Built-in scheduler tasks.
const (
	TaskIDCorpusScan  = "corpus-scan"
	TaskIDMailboxPoll = "mailbox-poll"
)

// ScheduledTask is the persisted state of a recurring pipeline feed.
// A zero NextRun means the task is due immediately.
type ScheduledTask struct {
	ID       string
	Name     string
	Interval time.Duration
	Enabled  bool

	LastRun     time.Time
	NextRun     time.Time
	LastSuccess time.Time
	LastError   string

	// Failures counts consecutive failed runs and resets on success.
	Failures int
}

// Due reports whether the task should run at now.
func (t *ScheduledTask) Due(now time.Time) bool {
	return t.Enabled && (t.NextRun.IsZero() || !t.NextRun.After(now))
}

// TaskResult records one execution of a task against a pipeline run.
type TaskResult struct {
	TaskID    string
	RunID     string
	StartedAt time.Time
	EndedAt   time.Time
	Error     string

	// Admitted and Escalated are the run summary deltas the task produced.
	Admitted  int
	Escalated int
}

// Succeeded reports whether the execution finished without error.
func (r TaskResult) Succeeded() bool { return r.Error == "" }

// SchedulerConfig is the scheduler section of the settings.
type SchedulerConfig struct {
	Enabled     bool
	TaskConfigs map[string]TaskConfig
}

// TaskConfig enables a task and sets its interval.
type TaskConfig struct {
	Enabled  bool
	Interval time.Duration
}

// GetTaskConfig returns the config for a task, or the zero value.
func (c *SchedulerConfig) GetTaskConfig(taskID string) TaskConfig {
	return c.TaskConfigs[taskID]
}

// DefaultSchedulerConfig rescans the corpus hourly. Mailbox polling is
// opt-in since it needs an authorized token.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled: true,
		TaskConfigs: map[string]TaskConfig{
			TaskIDCorpusScan:  {Enabled: true, Interval: time.Hour},
			TaskIDMailboxPoll: {Enabled: false, Interval: 5 * time.Minute},
		},
	}
}
