package services

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
	"github.com/custodia-labs/filer/internal/core/ports/driving"
	"github.com/custodia-labs/filer/internal/logger"
)

// Ensure Coordinator implements the interface.
var _ driving.IngestionService = (*Coordinator)(nil)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("coordinator already started")

// Coordinator merges arrivals from every producer into a single queue
// ordered by observation time, and runs each file through fingerprinting,
// duplicate resolution, classification and migration. Work on one path
// is never concurrent; different paths run in parallel.
type Coordinator struct {
	fingerprints *FingerprintEngine
	resolver     *DuplicateResolver
	rules        *RuleEngine
	executor     *MigrationExecutor
	audit        driven.AuditLog
	review       driven.ReviewQueue
	fs           driven.FileSystem
	settings     domain.Settings
	runID        string
	now          func() time.Time

	mu       sync.Mutex
	queue    arrivalQueue
	paths    map[string]*pathState
	seq      uint64
	pending  int
	idle     chan struct{}
	released chan struct{}
	wake     chan struct{}
	started  bool
	fatal    error

	stopping atomic.Bool
	cancel   context.CancelFunc
	workers  *errgroup.Group
	done     chan struct{}

	debouncer *Debouncer

	summaryMu sync.Mutex
	summary   domain.RunSummary
}

type pathState struct {
	arrival  domain.Arrival
	queued   bool
	inFlight bool
	dirty    *domain.Arrival
}

// NewCoordinator creates a coordinator for one run.
func NewCoordinator(
	fingerprints *FingerprintEngine,
	resolver *DuplicateResolver,
	rules *RuleEngine,
	executor *MigrationExecutor,
	audit driven.AuditLog,
	review driven.ReviewQueue,
	fs driven.FileSystem,
	settings domain.Settings,
	runID string,
) *Coordinator {
	c := &Coordinator{
		fingerprints: fingerprints,
		resolver:     resolver,
		rules:        rules,
		executor:     executor,
		audit:        audit,
		review:       review,
		fs:           fs,
		settings:     settings,
		runID:        runID,
		now:          time.Now,
		paths:        make(map[string]*pathState),
		idle:         make(chan struct{}),
		released:     make(chan struct{}),
		wake:         make(chan struct{}, 1),
		summary:      domain.RunSummary{RunID: runID},
	}
	c.debouncer = NewDebouncer(fs.Stat, settings.Ingestion.QuietPeriod, c.settled)
	return c
}

// Start launches the dispatcher.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.workers = &errgroup.Group{}
	c.workers.SetLimit(c.workerCount())
	c.done = make(chan struct{})
	c.mu.Unlock()

	if err := c.event(ctx, &domain.AuditEvent{Kind: domain.EventRunStarted, Mode: c.executor.Mode()}); err != nil {
		cancel()
		return err
	}

	go c.dispatch(runCtx)
	logger.Info("pipeline %s started with %d workers", c.runID, c.workerCount())
	return nil
}

// Submit admits an arrival. Watch arrivals wait for their quiet period.
func (c *Coordinator) Submit(arrival domain.Arrival) {
	if c.stopping.Load() {
		logger.Debug("dropping %s: pipeline stopping", arrival.Descriptor.Path)
		return
	}
	if arrival.ObservedAt.IsZero() {
		arrival.ObservedAt = c.now()
	}

	if arrival.Kind == domain.ProducerWatch && c.settings.Ingestion.QuietPeriod > 0 {
		c.mu.Lock()
		c.pending++
		c.mu.Unlock()
		if !c.debouncer.Observe(arrival) {
			c.done1()
		}
		return
	}
	c.admit(arrival)
}

// settled receives arrivals from the debouncer.
func (c *Coordinator) settled(arrival domain.Arrival, ok bool) {
	if ok && !c.stopping.Load() {
		c.admit(arrival)
	}
	c.done1()
}

func (c *Coordinator) admit(arrival domain.Arrival) {
	path := arrival.Descriptor.Path

	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.paths[path]
	if !ok {
		st = &pathState{}
		c.paths[path] = st
	}

	switch {
	case st.queued:
		// Coalesce; the queue position of the first arrival is kept.
		st.arrival.Descriptor = arrival.Descriptor
		return
	case st.inFlight:
		if st.dirty == nil {
			c.pending++
		}
		st.dirty = &arrival
		return
	}

	st.arrival = arrival
	c.push(path, st)
	c.pending++

	c.summaryMu.Lock()
	c.summary.Admitted++
	c.summaryMu.Unlock()
}

// push enqueues a path; callers hold mu.
func (c *Coordinator) push(path string, st *pathState) {
	st.queued = true
	c.seq++
	heap.Push(&c.queue, &queuedArrival{path: path, observedAt: st.arrival.ObservedAt, seq: c.seq})
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Coordinator) dispatch(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		}

		for {
			c.mu.Lock()
			if c.queue.Len() == 0 {
				c.mu.Unlock()
				break
			}
			item := heap.Pop(&c.queue).(*queuedArrival)
			st := c.paths[item.path]
			st.queued = false
			if st.inFlight {
				// Held by a batch or a review; runs once released.
				a := st.arrival
				st.dirty = &a
				c.mu.Unlock()
				continue
			}
			st.inFlight = true
			arrival := st.arrival
			c.mu.Unlock()

			if ctx.Err() != nil {
				c.release(arrival.Descriptor.Path, true)
				return
			}
			c.workers.Go(func() error {
				defer c.release(arrival.Descriptor.Path, true)
				c.process(ctx, arrival)
				return nil
			})
		}
	}
}

// Acquire blocks until no other work holds path, then holds it.
func (c *Coordinator) Acquire(ctx context.Context, path string) error {
	for {
		c.mu.Lock()
		st, ok := c.paths[path]
		if !ok {
			st = &pathState{}
			c.paths[path] = st
		}
		if !st.inFlight {
			st.inFlight = true
			c.mu.Unlock()
			return nil
		}
		released := c.released
		c.mu.Unlock()

		select {
		case <-released:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Release gives up a path held by Acquire.
func (c *Coordinator) Release(path string) {
	c.release(path, false)
}

func (c *Coordinator) release(path string, counted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.paths[path]
	if !ok {
		return
	}
	st.inFlight = false
	if counted {
		c.pending--
	}
	if st.dirty != nil {
		st.arrival = *st.dirty
		st.dirty = nil
		if c.stopping.Load() {
			c.pending--
		} else {
			c.push(path, st)
		}
	}
	if !st.queued && !st.inFlight {
		delete(c.paths, path)
	}

	close(c.released)
	c.released = make(chan struct{})
	c.signalIdle()
}

func (c *Coordinator) done1() {
	c.mu.Lock()
	c.pending--
	c.signalIdle()
	c.mu.Unlock()
}

// signalIdle wakes Drain callers; callers hold mu.
func (c *Coordinator) signalIdle() {
	if c.pending == 0 {
		close(c.idle)
		c.idle = make(chan struct{})
	}
}

// Consume forwards a producer's arrivals until it finishes or ctx ends.
// Producer errors are logged and do not stop consumption.
func (c *Coordinator) Consume(ctx context.Context, producer driven.Producer) error {
	arrivals, errs := producer.Produce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				logger.Warn("%s: %v", producer.Name(), err)
			}

		case a, ok := <-arrivals:
			if !ok {
				return nil
			}
			if a.Kind == "" {
				a.Kind = producer.Kind()
			}
			c.Submit(a)
		}
	}
}

// Drain blocks until nothing is queued, debouncing or in flight.
func (c *Coordinator) Drain(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.pending <= 0 {
			fatal := c.fatal
			c.mu.Unlock()
			return fatal
		}
		idle := c.idle
		c.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop stops admission, cancels queued work and waits for in-flight files
// to finish their current atomic step.
func (c *Coordinator) Stop() error {
	if c.stopping.Swap(true) {
		return c.fatalErr()
	}
	c.debouncer.Stop()

	c.mu.Lock()
	started := c.started
	for c.queue.Len() > 0 {
		item := heap.Pop(&c.queue).(*queuedArrival)
		if st, ok := c.paths[item.path]; ok {
			st.queued = false
			if !st.inFlight {
				delete(c.paths, item.path)
			}
		}
		c.pending--
	}
	c.signalIdle()
	c.mu.Unlock()

	if started {
		c.cancel()
		<-c.done
		_ = c.workers.Wait()
	}

	ctx := context.Background()
	sum := c.Summary()
	if err := c.event(ctx, &domain.AuditEvent{
		Kind:   domain.EventRunFinished,
		Mode:   c.executor.Mode(),
		Detail: fmt.Sprintf("migrated=%d quarantined=%d held=%d skipped=%d escalated=%d planned=%d",
			sum.Migrated, sum.Quarantined, sum.Held, sum.Skipped, sum.Escalated, sum.Planned),
	}); err != nil {
		c.setFatal(err)
	}
	return c.fatalErr()
}

// Summary returns the per-outcome counts so far.
func (c *Coordinator) Summary() domain.RunSummary {
	c.summaryMu.Lock()
	defer c.summaryMu.Unlock()
	return c.summary
}

// RunBatch processes a complete inventory. Every arrival is fingerprinted
// before any is disposed, so the canonical member of each duplicate group
// is chosen over the whole batch rather than by arrival order.
func (c *Coordinator) RunBatch(ctx context.Context, arrivals []domain.Arrival) error {
	if c.stopping.Load() {
		return domain.ErrStopping
	}

	arrivals = uniqueArrivals(arrivals, c.now())
	for _, a := range arrivals {
		if err := c.Acquire(ctx, a.Descriptor.Path); err != nil {
			for _, held := range arrivals {
				if held.Descriptor.Path == a.Descriptor.Path {
					break
				}
				c.Release(held.Descriptor.Path)
			}
			return err
		}
	}
	defer func() {
		for _, a := range arrivals {
			c.Release(a.Descriptor.Path)
		}
	}()

	c.summaryMu.Lock()
	c.summary.Admitted += len(arrivals)
	c.summaryMu.Unlock()

	// Phase 1: fingerprint.
	records := make([]*domain.FileRecord, len(arrivals))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workerCount())
	for i, a := range arrivals {
		g.Go(func() error {
			rec, err := c.fingerprint(gctx, a)
			if err != nil {
				return c.escalateUnlessCancelled(gctx, a.Descriptor.Path, err)
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.setFatal(err)
		return err
	}

	// Phase 2: pin the canonical member of every group over the batch.
	var candidates []domain.FileRecord
	for _, rec := range records {
		if rec == nil {
			continue
		}
		skip, err := c.alreadyFinalized(ctx, rec)
		if err != nil {
			c.setFatal(err)
			return err
		}
		if !skip {
			candidates = append(candidates, *rec)
		}
	}
	c.resolver.Pin(candidates)

	// Phase 3: dispose canonical members first. A duplicate is only
	// quarantined once its canonical member was placed or forgotten.
	var canonical, rest []*domain.FileRecord
	for _, rec := range records {
		switch {
		case rec == nil:
		case c.resolver.IsRetained(*rec):
			canonical = append(canonical, rec)
		default:
			rest = append(rest, rec)
		}
	}
	for _, wave := range [][]*domain.FileRecord{canonical, rest} {
		g, gctx = errgroup.WithContext(ctx)
		g.SetLimit(c.workerCount())
		for _, rec := range wave {
			g.Go(func() error {
				return c.dispose(gctx, rec)
			})
		}
		if err := g.Wait(); err != nil {
			c.setFatal(err)
			return err
		}
	}
	return ctx.Err()
}

// process runs one arrival through the pipeline.
func (c *Coordinator) process(ctx context.Context, arrival domain.Arrival) {
	if c.stopping.Load() && ctx.Err() != nil {
		return
	}
	rec, err := c.fingerprint(ctx, arrival)
	if err != nil {
		if err := c.escalateUnlessCancelled(ctx, arrival.Descriptor.Path, err); err != nil {
			c.setFatal(err)
		}
		return
	}
	if err := c.dispose(ctx, rec); err != nil {
		c.setFatal(err)
	}
}

func (c *Coordinator) fingerprint(ctx context.Context, arrival domain.Arrival) (*domain.FileRecord, error) {
	var rec *domain.FileRecord
	err := retryTransient(ctx, c.settings.Retry, c.settings.Ingestion.FileTimeout,
		"fingerprint "+arrival.Descriptor.Path,
		func(ctx context.Context) error {
			r, err := c.fingerprints.Fingerprint(ctx, arrival.Descriptor)
			rec = r
			return err
		})
	if err != nil {
		return nil, err
	}
	rec.ObservedAt = arrival.ObservedAt
	return rec, nil
}

// alreadyFinalized reports whether this exact path and content was placed
// by an earlier run.
func (c *Coordinator) alreadyFinalized(ctx context.Context, rec *domain.FileRecord) (bool, error) {
	last, err := c.audit.LastMigration(ctx, rec.Path)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrAuditUnavailable, err)
	}
	return last != nil &&
		last.Kind == domain.EventMigration &&
		last.State == domain.StateFinalized &&
		last.FingerprintBefore == rec.Fingerprint, nil
}

// dispose decides and executes the fate of one fingerprinted record.
// Only fatal errors are returned; per-file failures are escalated.
func (c *Coordinator) dispose(ctx context.Context, rec *domain.FileRecord) error {
	if c.stopping.Load() && ctx.Err() != nil {
		return nil
	}

	skip, err := c.alreadyFinalized(ctx, rec)
	if err != nil {
		return err
	}
	if skip {
		c.count(func(s *domain.RunSummary) { s.Skipped++ })
		return c.event(ctx, &domain.AuditEvent{
			Kind:              domain.EventSkipped,
			Source:            rec.Path,
			Outcome:           domain.OutcomeSkippedDuplicate,
			FingerprintBefore: rec.Fingerprint,
			Detail:            "already finalized",
		})
	}

	placed, err := c.audit.FinalizedByFingerprint(ctx, rec.Fingerprint)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAuditUnavailable, err)
	}
	// A path whose content an earlier move already placed is a duplicate
	// of that placement, even though the bytes reappeared at the same path.
	if placed != nil && (placed.Source != rec.Path || placed.Mode == domain.ModeMove) {
		return c.quarantine(ctx, rec, placed.Destination)
	}

	canonical, isCanonical := c.resolver.Claim(*rec)
	if !isCanonical {
		return c.quarantine(ctx, rec, canonical.Path)
	}

	for _, cand := range c.resolver.NearCandidatesFor(*rec) {
		if err := c.flagNear(ctx, cand); err != nil {
			return err
		}
	}

	result := c.rules.Classify(rec)
	if err := c.event(ctx, &domain.AuditEvent{
		Kind:              domain.EventClassified,
		Source:            rec.Path,
		Destination:       result.Destination,
		Confidence:        result.Confidence,
		FingerprintBefore: rec.Fingerprint,
		RuleSetVersion:    result.RuleSetVersion,
		Detail:            string(result.Reason),
	}); err != nil {
		return err
	}

	if result.NeedsReview && !result.InHolding() && !c.settings.Classification.IncludeReview {
		return c.hold(ctx, rec, &result)
	}

	var record *domain.MigrationRecord
	err = retryTransient(ctx, c.settings.Retry, c.settings.Ingestion.FileTimeout, "migrate "+rec.Path, func(ctx context.Context) error {
		r, err := c.executor.Route(ctx, rec, result.Destination, result.Confidence)
		record = r
		return err
	})
	if err != nil {
		c.resolver.Forget(*rec)
		return c.escalateUnlessCancelled(ctx, rec.Path, err)
	}

	if record.Outcome == domain.OutcomePlanned {
		c.count(func(s *domain.RunSummary) { s.Planned++ })
	} else {
		c.count(func(s *domain.RunSummary) { s.Migrated++ })
	}

	if result.NeedsReview {
		return c.enqueue(ctx, &domain.ReviewItem{
			Kind:     domain.ReviewClassification,
			Subject:  rec.Path,
			Location: record.Destination,
			Proposed: result.Destination,
			Score:    result.Confidence,
			Reason:   string(result.Reason),
		})
	}
	return nil
}

func (c *Coordinator) quarantine(ctx context.Context, rec *domain.FileRecord, canonical string) error {
	if err := c.event(ctx, &domain.AuditEvent{
		Kind:              domain.EventDuplicate,
		Source:            rec.Path,
		FingerprintBefore: rec.Fingerprint,
		Detail:            canonical,
	}); err != nil {
		return err
	}

	var record *domain.MigrationRecord
	err := retryTransient(ctx, c.settings.Retry, c.settings.Ingestion.FileTimeout, "quarantine "+rec.Path, func(ctx context.Context) error {
		r, err := c.executor.Quarantine(ctx, rec, canonical)
		record = r
		return err
	})
	if err != nil {
		return c.escalateUnlessCancelled(ctx, rec.Path, err)
	}
	if record.Outcome == domain.OutcomePlanned {
		c.count(func(s *domain.RunSummary) { s.Planned++ })
	} else {
		c.count(func(s *domain.RunSummary) { s.Quarantined++ })
	}
	return nil
}

func (c *Coordinator) flagNear(ctx context.Context, cand domain.NearDuplicateCandidate) error {
	keep, remove := cand.Keeper()
	if err := c.event(ctx, &domain.AuditEvent{
		Kind:              domain.EventNearDuplicate,
		Source:            remove.Path,
		Destination:       keep.Path,
		Confidence:        cand.Score,
		FingerprintBefore: remove.Fingerprint,
		Detail: fmt.Sprintf("text=%.2f name=%.2f metadata=%.2f",
			cand.Signals.Text, cand.Signals.Name, cand.Signals.Metadata),
	}); err != nil {
		return err
	}
	c.count(func(s *domain.RunSummary) { s.NearFlagged++ })
	return c.enqueue(ctx, &domain.ReviewItem{
		Kind:        domain.ReviewNearDuplicate,
		Subject:     remove.Path,
		Counterpart: keep.Path,
		Score:       cand.Score,
		Reason:      "near duplicate",
	})
}

func (c *Coordinator) hold(ctx context.Context, rec *domain.FileRecord, result *domain.ClassificationResult) error {
	if err := c.event(ctx, &domain.AuditEvent{
		Kind:              domain.EventHeld,
		Source:            rec.Path,
		Destination:       result.Destination,
		Confidence:        result.Confidence,
		FingerprintBefore: rec.Fingerprint,
		RuleSetVersion:    result.RuleSetVersion,
		Detail:            string(result.Reason),
	}); err != nil {
		return err
	}
	c.count(func(s *domain.RunSummary) { s.Held++ })

	open, err := c.hasOpenItem(ctx, rec.Path, domain.ReviewClassification)
	if err != nil {
		logger.Warn("%v", err)
	}
	if open {
		return nil
	}
	return c.enqueue(ctx, &domain.ReviewItem{
		Kind:     domain.ReviewClassification,
		Subject:  rec.Path,
		Proposed: result.Destination,
		Score:    result.Confidence,
		Reason:   string(result.Reason),
	})
}

// escalateUnlessCancelled records a per-file failure for review. Fatal
// errors are returned; a cancelled file is left for the next run.
func (c *Coordinator) escalateUnlessCancelled(ctx context.Context, path string, err error) error {
	if domain.IsFatal(err) {
		return err
	}
	if ctx.Err() != nil {
		logger.Debug("abandoned %s: %v", path, ctx.Err())
		return nil
	}

	logger.Warn("escalating %s: %v", path, err)
	c.count(func(s *domain.RunSummary) { s.Escalated++ })
	if aerr := c.event(ctx, &domain.AuditEvent{
		Kind:   domain.EventEscalated,
		Source: path,
		Detail: err.Error(),
	}); aerr != nil {
		return aerr
	}
	return c.enqueue(ctx, &domain.ReviewItem{
		Kind:    domain.ReviewEscalation,
		Subject: path,
		Reason:  err.Error(),
	})
}

func (c *Coordinator) hasOpenItem(ctx context.Context, subject string, kind domain.ReviewKind) (bool, error) {
	items, err := c.review.List(ctx, domain.ReviewOpen)
	if err != nil {
		return false, fmt.Errorf("listing review queue: %w", err)
	}
	for _, it := range items {
		if it.Subject == subject && it.Kind == kind {
			return true, nil
		}
	}
	return false, nil
}

func (c *Coordinator) enqueue(ctx context.Context, item *domain.ReviewItem) error {
	item.CreatedAt = c.now()
	if err := c.review.Enqueue(ctx, item); err != nil {
		// The audit trail still holds the decision.
		logger.Error("enqueueing review item for %s: %v", item.Subject, err)
	}
	return nil
}

func (c *Coordinator) event(ctx context.Context, ev *domain.AuditEvent) error {
	ev.Timestamp = c.now()
	ev.RunID = c.runID
	if ev.Mode == "" {
		ev.Mode = c.executor.Mode()
	}
	if err := c.audit.Append(context.WithoutCancel(ctx), ev); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAuditUnavailable, err)
	}
	return nil
}

func (c *Coordinator) count(fn func(*domain.RunSummary)) {
	c.summaryMu.Lock()
	fn(&c.summary)
	c.summaryMu.Unlock()
}

func (c *Coordinator) setFatal(err error) {
	if !domain.IsFatal(err) {
		return
	}
	c.mu.Lock()
	if c.fatal == nil {
		c.fatal = err
		logger.Error("pipeline stopping: %v", err)
	}
	c.mu.Unlock()
	c.stopping.Store(true)
}

func (c *Coordinator) fatalErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal
}

func (c *Coordinator) workerCount() int {
	if c.settings.Ingestion.Workers <= 0 {
		return 1
	}
	return c.settings.Ingestion.Workers
}

// uniqueArrivals keeps the last descriptor per path, ordered by first
// observation time then path.
func uniqueArrivals(arrivals []domain.Arrival, now time.Time) []domain.Arrival {
	index := make(map[string]int, len(arrivals))
	var out []domain.Arrival
	for _, a := range arrivals {
		if a.ObservedAt.IsZero() {
			a.ObservedAt = now
		}
		if i, ok := index[a.Descriptor.Path]; ok {
			out[i].Descriptor = a.Descriptor
			continue
		}
		index[a.Descriptor.Path] = len(out)
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ObservedAt.Equal(out[j].ObservedAt) {
			return out[i].ObservedAt.Before(out[j].ObservedAt)
		}
		return out[i].Descriptor.Path < out[j].Descriptor.Path
	})
	return out
}

// queuedArrival is a heap entry; the arrival itself lives in pathState so
// later arrivals for the same path coalesce into it.
type queuedArrival struct {
	path       string
	observedAt time.Time
	seq        uint64
}

type arrivalQueue []*queuedArrival

func (q arrivalQueue) Len() int { return len(q) }

func (q arrivalQueue) Less(i, j int) bool {
	if !q[i].observedAt.Equal(q[j].observedAt) {
		return q[i].observedAt.Before(q[j].observedAt)
	}
	return q[i].seq < q[j].seq
}

func (q arrivalQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *arrivalQueue) Push(x any) { *q = append(*q, x.(*queuedArrival)) }

func (q *arrivalQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
