package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
	"github.com/custodia-labs/filer/internal/core/ports/driving"
	"github.com/custodia-labs/filer/internal/logger"
)

var _ driving.Scheduler = (*Scheduler)(nil)

const (
	schedulerTick  = time.Minute
	historyKeep    = 100
	maxBackoffStep = 4
)

// Scheduler feeds periodic corpus scans and mailbox polls into a running
// pipeline. Task state survives restarts through the SchedulerStore.
type Scheduler struct {
	config    domain.SchedulerConfig
	store     driven.SchedulerStore
	ingestion driving.IngestionService
	scanners  func() []driven.Producer
	mailbox   driven.Producer
	tick      time.Duration
	now       func() time.Time

	mu      sync.Mutex
	stopCh  chan struct{}
	running map[string]bool
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. scanners builds fresh crawl producers
// for every corpus scan and may be nil, as may mailbox.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	ingestion driving.IngestionService,
	scanners func() []driven.Producer,
	mailbox driven.Producer,
) *Scheduler {
	return &Scheduler{
		config:    config,
		store:     store,
		ingestion: ingestion,
		scanners:  scanners,
		mailbox:   mailbox,
		tick:      schedulerTick,
		now:       time.Now,
		running:   make(map[string]bool),
	}
}

// Start registers the tasks and runs due ones until ctx ends or Stop is
// called. A second Start while running returns nil immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return nil
	}
	stop := make(chan struct{})
	s.stopCh = stop
	s.mu.Unlock()

	if err := s.register(ctx); err != nil {
		logger.Warn("scheduler: registering tasks: %v", err)
	}

	s.dispatch(ctx)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-ticker.C:
			s.dispatch(ctx)
		}
	}
}

// Stop ends the loop and waits for in-flight tasks.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

// register upserts the built-in tasks. A task without a feed is stored
// disabled so its history stays visible.
func (s *Scheduler) register(ctx context.Context) error {
	builtins := []struct {
		id, name string
		fed      bool
	}{
		{domain.TaskIDCorpusScan, "Corpus Scan", s.scanners != nil},
		{domain.TaskIDMailboxPoll, "Mailbox Poll", s.mailbox != nil},
	}
	for _, b := range builtins {
		cfg := s.config.GetTaskConfig(b.id)
		if cfg.Interval <= 0 {
			continue
		}
		cfg.Enabled = cfg.Enabled && b.fed
		if err := s.upsert(ctx, b.id, b.name, cfg); err != nil {
			return fmt.Errorf("%s: %w", b.id, err)
		}
	}
	return nil
}

// upsert saves a task, rescheduling it when its interval changed.
func (s *Scheduler) upsert(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		task = &domain.ScheduledTask{ID: id, Name: name, NextRun: s.now().Add(cfg.Interval)}
	} else if task.Interval != cfg.Interval {
		task.NextRun = s.now().Add(cfg.Interval)
	}
	task.Interval = cfg.Interval
	task.Enabled = cfg.Enabled
	return s.store.SaveTask(ctx, task)
}

// dispatch launches every due task not already running.
func (s *Scheduler) dispatch(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Warn("scheduler: listing tasks: %v", err)
		return
	}
	now := s.now()
	for i := range tasks {
		if tasks[i].Due(now) {
			s.launch(ctx, tasks[i])
		}
	}
}

func (s *Scheduler) launch(ctx context.Context, task domain.ScheduledTask) {
	producers, ok := s.producers(task.ID)
	if !ok {
		logger.Warn("scheduler: unknown task %q", task.ID)
		return
	}

	s.mu.Lock()
	if s.running[task.ID] {
		s.mu.Unlock()
		return
	}
	s.running[task.ID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, task.ID)
			s.mu.Unlock()
		}()

		result := s.execute(ctx, task.ID, producers)
		s.settle(ctx, &task, result)
	}()
}

// producers returns the feed for a task.
func (s *Scheduler) producers(taskID string) ([]driven.Producer, bool) {
	switch taskID {
	case domain.TaskIDCorpusScan:
		if s.scanners == nil {
			return nil, true
		}
		return s.scanners(), true
	case domain.TaskIDMailboxPoll:
		if s.mailbox == nil {
			return nil, true
		}
		return []driven.Producer{s.mailbox}, true
	}
	return nil, false
}

// execute consumes every producer, drains the pipeline and reports what
// the run summary gained meanwhile.
func (s *Scheduler) execute(ctx context.Context, taskID string, producers []driven.Producer) domain.TaskResult {
	result := domain.TaskResult{TaskID: taskID, StartedAt: s.now()}
	if s.ingestion == nil || len(producers) == 0 {
		result.EndedAt = s.now()
		return result
	}

	before := s.ingestion.Summary()
	var errs []error
	for _, p := range producers {
		if err := s.ingestion.Consume(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	if err := s.ingestion.Drain(ctx); err != nil {
		errs = append(errs, err)
	}
	after := s.ingestion.Summary()

	result.EndedAt = s.now()
	result.RunID = after.RunID
	result.Admitted = after.Admitted - before.Admitted
	result.Escalated = after.Escalated - before.Escalated
	if err := errors.Join(errs...); err != nil {
		result.Error = err.Error()
	}
	return result
}

// settle records the result and schedules the next run. Repeated
// failures stretch the interval up to maxBackoffStep times.
func (s *Scheduler) settle(ctx context.Context, task *domain.ScheduledTask, result domain.TaskResult) {
	task.LastRun = result.StartedAt
	task.LastError = result.Error
	if result.Succeeded() {
		task.Failures = 0
		task.LastSuccess = result.EndedAt
		logger.Info("scheduler: %s admitted %d files", task.ID, result.Admitted)
	} else {
		task.Failures++
		logger.Warn("scheduler: %s failed (%d in a row): %s", task.ID, task.Failures, result.Error)
	}
	task.NextRun = result.EndedAt.Add(task.Interval * time.Duration(backoffStep(task.Failures)))

	if err := s.store.SaveTask(ctx, task); err != nil {
		logger.Warn("scheduler: saving %s: %v", task.ID, err)
	}
	if err := s.store.RecordResult(ctx, &result); err != nil {
		logger.Warn("scheduler: recording %s: %v", task.ID, err)
	}
	if err := s.store.PruneHistory(ctx, historyKeep); err != nil {
		logger.Warn("scheduler: pruning history: %v", err)
	}
}

func backoffStep(failures int) int {
	step := 1
	for i := 1; i < failures && step < maxBackoffStep; i++ {
		step *= 2
	}
	return step
}
