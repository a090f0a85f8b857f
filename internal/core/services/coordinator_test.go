package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/filer/internal/core/domain"
)

var reportsRule = domain.ClassificationRule{
	Name:       "reports",
	Signal:     domain.SignalFilename,
	Glob:       "*report*",
	Target:     "Reports",
	Confidence: 0.9,
}

var notesRule = domain.ClassificationRule{
	Name:       "notes",
	Signal:     domain.SignalExtension,
	Extensions: []string{".txt"},
	Target:     "Notes",
	Confidence: 0.9,
}

var draftsRule = domain.ClassificationRule{
	Name:       "drafts",
	Signal:     domain.SignalFilename,
	Glob:       "*draft*",
	Target:     "Drafts",
	Confidence: 0.5,
}

func drain(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Drain(ctx))
}

func start(t *testing.T, h *harness) {
	t.Helper()
	require.NoError(t, h.coordinator.Start(context.Background()))
	t.Cleanup(func() { _ = h.coordinator.Stop() })
}

func TestCoordinator_RunBatch_ExactDuplicates(t *testing.T) {
	h := newHarness(t, domain.ModeCopy, reportsRule)
	report := h.file(t, "report.pdf", "%PDF-1.4 quarterly report", base)
	dup := h.file(t, "report_copy.pdf", "%PDF-1.4 quarterly report", base)

	err := h.coordinator.RunBatch(context.Background(), []domain.Arrival{
		scanArrival(dup, base),
		scanArrival(report, base.Add(time.Second)),
	})
	require.NoError(t, err)

	assert.Equal(t, "%PDF-1.4 quarterly report", readFile(t, filepath.Join(h.taxonomy, "Reports", "report.pdf")))
	assert.FileExists(t, h.executor.QuarantinePath(dup))
	assert.NoFileExists(t, filepath.Join(h.taxonomy, "Reports", "report_copy.pdf"))

	duplicates := h.events(t, domain.EventDuplicate)
	require.Len(t, duplicates, 1)
	assert.Equal(t, dup, duplicates[0].Source)

	sum := h.coordinator.Summary()
	assert.Equal(t, 2, sum.Admitted)
	assert.Equal(t, 1, sum.Migrated)
	assert.Equal(t, 1, sum.Quarantined)
	assert.Zero(t, sum.Escalated)

	// Copy mode leaves every source in place.
	assert.FileExists(t, report)
	assert.FileExists(t, dup)
}

func TestCoordinator_RunBatch_IdempotentRerun(t *testing.T) {
	h := newHarness(t, domain.ModeCopy, reportsRule)
	report := h.file(t, "report.pdf", "%PDF report", base)
	dup := h.file(t, "report_copy.pdf", "%PDF report", base)
	arrivals := []domain.Arrival{scanArrival(report, base), scanArrival(dup, base)}
	require.NoError(t, h.coordinator.RunBatch(context.Background(), arrivals))
	migrations := len(h.events(t, domain.EventMigration))

	again := newHarnessWith(t, h.root, h.settings, h.audit, reportsRule)
	require.NoError(t, again.coordinator.RunBatch(context.Background(), arrivals))

	sum := again.coordinator.Summary()
	assert.Equal(t, 2, sum.Skipped)
	assert.Zero(t, sum.Migrated+sum.Quarantined)
	assert.Len(t, h.events(t, domain.EventMigration), migrations, "no transfer is repeated")
	assert.Len(t, h.events(t, domain.EventSkipped), 2)
	assert.NoFileExists(t, filepath.Join(h.taxonomy, "Reports", "report_1.pdf"))
}

func TestCoordinator_RunBatch_CrossRunDuplicate(t *testing.T) {
	h := newHarness(t, domain.ModeCopy, reportsRule)
	report := h.file(t, "report.pdf", "%PDF report", base)
	require.NoError(t, h.coordinator.RunBatch(context.Background(), []domain.Arrival{scanArrival(report, base)}))

	late := h.file(t, "later/report (1).pdf", "%PDF report", base.Add(day))
	again := newHarnessWith(t, h.root, h.settings, h.audit, reportsRule)
	require.NoError(t, again.coordinator.RunBatch(context.Background(), []domain.Arrival{scanArrival(late, base)}))

	assert.Equal(t, 1, again.coordinator.Summary().Quarantined)
	assert.FileExists(t, again.executor.QuarantinePath(late))

	duplicates := h.events(t, domain.EventDuplicate)
	require.Len(t, duplicates, 1)
	assert.Equal(t, filepath.Join(h.taxonomy, "Reports", "report.pdf"), duplicates[0].Detail)
}

func TestCoordinator_RunBatch_MovedContentReappearing(t *testing.T) {
	h := newHarness(t, domain.ModeMove, reportsRule)
	report := h.file(t, "report.pdf", "%PDF report", base)
	require.NoError(t, h.coordinator.RunBatch(context.Background(), []domain.Arrival{scanArrival(report, base)}))
	require.NoFileExists(t, report)

	// The same bytes come back at the same path.
	h.file(t, "report.pdf", "%PDF report", base)
	again := newHarnessWith(t, h.root, h.settings, h.audit, reportsRule)
	require.NoError(t, again.coordinator.RunBatch(context.Background(), []domain.Arrival{scanArrival(report, base.Add(day))}))

	entries, err := os.ReadDir(filepath.Join(h.taxonomy, "Reports"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "report.pdf", entries[0].Name())

	sum := again.coordinator.Summary()
	assert.Equal(t, 1, sum.Quarantined)
	assert.Zero(t, sum.Migrated)
	assert.FileExists(t, again.executor.QuarantinePath(report))

	duplicates := h.events(t, domain.EventDuplicate)
	require.Len(t, duplicates, 1)
	assert.Equal(t, filepath.Join(h.taxonomy, "Reports", "report.pdf"), duplicates[0].Detail)
}

func TestCoordinator_RunBatch_FailedCanonicalPromotesDuplicate(t *testing.T) {
	h := newHarness(t, domain.ModeCopy, reportsRule)
	h.settings.Migration.MaxCollisionAttempts = 1
	h.executor = NewMigrationExecutor(h.fs, h.audit, h.fingerprints, h.settings.Migration, h.settings.Paths, "run-test")
	h.rebuild()
	writeFile(t, filepath.Join(h.taxonomy, "Reports", "report.pdf"), "taken", base)
	writeFile(t, filepath.Join(h.taxonomy, "Reports", "report_1.pdf"), "taken", base)

	// report.pdf is newest and wins the tie-break, but its name is taken.
	report := h.file(t, "report.pdf", "%PDF report", base.Add(day))
	older := h.file(t, "old report.pdf", "%PDF report", base)

	require.NoError(t, h.coordinator.RunBatch(context.Background(), []domain.Arrival{
		scanArrival(report, base),
		scanArrival(older, base),
	}))

	sum := h.coordinator.Summary()
	assert.Equal(t, 1, sum.Escalated)
	assert.Equal(t, 1, sum.Migrated)
	assert.Zero(t, sum.Quarantined)
	assert.Equal(t, "%PDF report", readFile(t, filepath.Join(h.taxonomy, "Reports", "old report.pdf")))
	assert.NoFileExists(t, h.executor.QuarantinePath(older))
	assert.Empty(t, h.events(t, domain.EventDuplicate))
}

func TestCoordinator_RunBatch_StalledCopyTimesOut(t *testing.T) {
	h := newHarness(t, domain.ModeCopy, reportsRule)
	h.settings.Ingestion.FileTimeout = 50 * time.Millisecond
	h.settings.Retry.MaxAttempts = 2
	h.executor = NewMigrationExecutor(stallingFS{h.fs}, h.audit, h.fingerprints,
		h.settings.Migration, h.settings.Paths, "run-test")
	h.rebuild()
	report := h.file(t, "report.pdf", "%PDF report", base)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.coordinator.RunBatch(ctx, []domain.Arrival{scanArrival(report, base)}))
	require.NoError(t, ctx.Err(), "the worker is released by the per-file timeout")

	sum := h.coordinator.Summary()
	assert.Equal(t, 1, sum.Escalated)
	assert.Zero(t, sum.Migrated)

	escalated := h.events(t, domain.EventEscalated)
	require.Len(t, escalated, 1)
	assert.Contains(t, escalated[0].Detail, "failed after 2 attempts")
	assertNoPartials(t, filepath.Join(h.taxonomy, "Reports"))
	assert.FileExists(t, report)
}

func TestCoordinator_RunBatch_NoMatchGoesToUnsorted(t *testing.T) {
	h := newHarness(t, domain.ModeMove, reportsRule)
	photo := h.file(t, "holiday.jpg", "\xff\xd8\xff", base)

	require.NoError(t, h.coordinator.RunBatch(context.Background(), []domain.Arrival{scanArrival(photo, base)}))

	dest := filepath.Join(h.taxonomy, "09_Inbox", "01_Unsorted", "holiday.jpg")
	assert.FileExists(t, dest)
	assert.NoFileExists(t, photo)

	items := h.openItems(t)
	require.Len(t, items, 1)
	assert.Equal(t, domain.ReviewClassification, items[0].Kind)
	assert.Equal(t, photo, items[0].Subject)
	assert.Equal(t, dest, items[0].Location)
	assert.Equal(t, string(domain.ReviewReasonNoMatch), items[0].Reason)
	assert.Zero(t, items[0].Score)

	classified := h.events(t, domain.EventClassified)
	require.Len(t, classified, 1)
	assert.Zero(t, classified[0].Confidence)
	assert.Equal(t, "test", classified[0].RuleSetVersion)
}

func TestCoordinator_RunBatch_LowConfidenceIsHeld(t *testing.T) {
	h := newHarness(t, domain.ModeMove, draftsRule)
	draft := h.file(t, "draft memo.docx", "PK draft", base)

	require.NoError(t, h.coordinator.RunBatch(context.Background(), []domain.Arrival{scanArrival(draft, base)}))

	assert.FileExists(t, draft, "held files stay in place")
	assert.Empty(t, h.events(t, domain.EventMigration))
	assert.Len(t, h.events(t, domain.EventHeld), 1)
	assert.Equal(t, 1, h.coordinator.Summary().Held)

	items := h.openItems(t)
	require.Len(t, items, 1)
	assert.Equal(t, "Drafts/draft memo.docx", items[0].Proposed)
	assert.Empty(t, items[0].Location)

	// Holding again does not enqueue a second item.
	again := newHarnessWith(t, h.root, h.settings, h.audit, draftsRule)
	again.review = h.review
	again.rebuild()
	require.NoError(t, again.coordinator.RunBatch(context.Background(), []domain.Arrival{scanArrival(draft, base)}))
	assert.Len(t, h.openItems(t), 1)
}

func TestCoordinator_RunBatch_IncludeReviewRoutes(t *testing.T) {
	h := newHarness(t, domain.ModeCopy, draftsRule)
	h.settings.Classification.IncludeReview = true
	h.rebuild()
	draft := h.file(t, "draft.txt", "draft", base)

	require.NoError(t, h.coordinator.RunBatch(context.Background(), []domain.Arrival{scanArrival(draft, base)}))

	dest := filepath.Join(h.taxonomy, "Drafts", "draft.txt")
	assert.FileExists(t, dest)
	items := h.openItems(t)
	require.Len(t, items, 1)
	assert.Equal(t, dest, items[0].Location)
	assert.Equal(t, string(domain.ReviewReasonLowConfidence), items[0].Reason)
}

func TestCoordinator_RunBatch_EscalatesUnreadable(t *testing.T) {
	h := newHarness(t, domain.ModeCopy, notesRule)
	empty := h.file(t, "empty.txt", "", base)
	good := h.file(t, "good.txt", "fine", base)

	require.NoError(t, h.coordinator.RunBatch(context.Background(), []domain.Arrival{
		scanArrival(empty, base), scanArrival(good, base),
	}))

	sum := h.coordinator.Summary()
	assert.Equal(t, 1, sum.Escalated)
	assert.Equal(t, 1, sum.Migrated)

	escalated := h.events(t, domain.EventEscalated)
	require.Len(t, escalated, 1)
	assert.Equal(t, empty, escalated[0].Source)
	assert.Contains(t, escalated[0].Detail, "zero-byte")

	items := h.openItems(t)
	require.Len(t, items, 1)
	assert.Equal(t, domain.ReviewEscalation, items[0].Kind)
}

func TestCoordinator_RunBatch_NearDuplicatesFlaggedNotRemoved(t *testing.T) {
	h := newHarness(t, domain.ModeCopy, notesRule)
	v1 := h.file(t, "memo_v1.txt", "The engagement terms are attached for review.", base)
	v2 := h.file(t, "memo_v2.txt", "The engagement terms are attached for review.\n", base)

	require.NoError(t, h.coordinator.RunBatch(context.Background(), []domain.Arrival{
		scanArrival(v1, base), scanArrival(v2, base),
	}))

	sum := h.coordinator.Summary()
	assert.Equal(t, 2, sum.Migrated)
	assert.Equal(t, 1, sum.NearFlagged)
	assert.Zero(t, sum.Quarantined)

	flagged := h.events(t, domain.EventNearDuplicate)
	require.Len(t, flagged, 1)
	assert.GreaterOrEqual(t, flagged[0].Confidence, h.settings.Dedup.NearThreshold)

	var near []domain.ReviewItem
	for _, it := range h.openItems(t) {
		if it.Kind == domain.ReviewNearDuplicate {
			near = append(near, it)
		}
	}
	require.Len(t, near, 1)
	assert.ElementsMatch(t, []string{v1, v2}, []string{near[0].Subject, near[0].Counterpart})
}

func TestCoordinator_RunBatch_DryRun(t *testing.T) {
	h := newHarness(t, domain.ModeDryRun, reportsRule)
	report := h.file(t, "report.pdf", "%PDF", base)
	dup := h.file(t, "report_copy.pdf", "%PDF", base)

	require.NoError(t, h.coordinator.RunBatch(context.Background(), []domain.Arrival{
		scanArrival(report, base), scanArrival(dup, base),
	}))

	assert.Equal(t, 2, h.coordinator.Summary().Planned)
	assert.NoDirExists(t, h.taxonomy)
	assert.NoDirExists(t, h.quarantine)
	assert.Len(t, h.events(t, domain.EventPlanned), 2)
}

func TestCoordinator_RunBatch_AuditFailureIsFatal(t *testing.T) {
	h := newHarness(t, domain.ModeMove, reportsRule)
	report := h.file(t, "report.pdf", "%PDF", base)
	h.audit.FailAppend = errors.New("disk full")

	err := h.coordinator.RunBatch(context.Background(), []domain.Arrival{scanArrival(report, base)})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuditUnavailable)

	assert.FileExists(t, report)
	assert.NoDirExists(t, h.taxonomy)

	err = h.coordinator.Stop()
	assert.ErrorIs(t, err, domain.ErrAuditUnavailable)
	assert.ErrorIs(t, h.coordinator.RunBatch(context.Background(), nil), domain.ErrStopping)
}

func TestCoordinator_Start_AuditFailure(t *testing.T) {
	h := newHarness(t, domain.ModeCopy)
	h.audit.FailAppend = errors.New("read-only filesystem")

	err := h.coordinator.Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuditUnavailable)
}

func TestCoordinator_StartTwice(t *testing.T) {
	h := newHarness(t, domain.ModeCopy)
	start(t, h)
	assert.ErrorIs(t, h.coordinator.Start(context.Background()), ErrAlreadyStarted)
}

func TestCoordinator_Streaming_RetainsFirstArrival(t *testing.T) {
	h := newHarness(t, domain.ModeCopy, notesRule)
	h.settings.Ingestion.Workers = 1
	h.rebuild()

	first := h.file(t, "z/first.txt", "same text", base)
	second := h.file(t, "a.txt", "same text", base.Add(day))

	// Submitted out of order; the queue orders by observation time.
	h.coordinator.Submit(scanArrival(second, base.Add(time.Minute)))
	h.coordinator.Submit(scanArrival(first, base))
	start(t, h)
	drain(t, h.coordinator)

	assert.FileExists(t, filepath.Join(h.taxonomy, "Notes", "first.txt"))
	assert.FileExists(t, h.executor.QuarantinePath(second))

	classified := h.events(t, domain.EventClassified)
	require.Len(t, classified, 1)
	assert.Equal(t, first, classified[0].Source)
}

func TestCoordinator_Consume(t *testing.T) {
	h := newHarness(t, domain.ModeCopy, notesRule)
	a := h.file(t, "a.txt", "alpha", base)
	b := h.file(t, "b.txt", "beta", base)
	start(t, h)

	producer := &sliceProducer{
		name:     "scan inbox",
		kind:     domain.ProducerScan,
		arrivals: []domain.Arrival{{Descriptor: domain.FileDescriptor{Path: a}}, {Descriptor: domain.FileDescriptor{Path: b}}},
		errs:     []error{errors.New("root path error: /missing")},
	}
	require.NoError(t, h.coordinator.Consume(context.Background(), producer))
	drain(t, h.coordinator)

	sum := h.coordinator.Summary()
	assert.Equal(t, 2, sum.Admitted)
	assert.Equal(t, 2, sum.Migrated)
}

func TestCoordinator_WatchArrivalsAreDebounced(t *testing.T) {
	h := newHarness(t, domain.ModeCopy, notesRule)
	path := h.file(t, "scan.txt", "scanned", base)
	start(t, h)

	h.coordinator.Submit(domain.Arrival{Kind: domain.ProducerWatch, Descriptor: domain.FileDescriptor{Path: path}})
	h.coordinator.Submit(domain.Arrival{Kind: domain.ProducerWatch, Descriptor: domain.FileDescriptor{Path: path}})
	drain(t, h.coordinator)

	sum := h.coordinator.Summary()
	assert.Equal(t, 1, sum.Admitted)
	assert.Equal(t, 1, sum.Migrated)
}

func TestCoordinator_WatchArrivalForVanishedFile(t *testing.T) {
	h := newHarness(t, domain.ModeCopy, notesRule)
	path := h.file(t, "temp.txt", "gone soon", base)
	start(t, h)

	h.coordinator.Submit(domain.Arrival{Kind: domain.ProducerWatch, Descriptor: domain.FileDescriptor{Path: path}})
	require.NoError(t, os.Remove(path))
	drain(t, h.coordinator)

	assert.Zero(t, h.coordinator.Summary().Admitted)
	assert.Empty(t, h.events(t, domain.EventEscalated))
}

func TestCoordinator_PathWorkIsSerialised(t *testing.T) {
	h := newHarness(t, domain.ModeCopy, notesRule)
	path := h.file(t, "locked.txt", "contents", base)
	start(t, h)

	require.NoError(t, h.coordinator.Acquire(context.Background(), path))
	h.coordinator.Submit(scanArrival(path, base))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, h.events(t, domain.EventClassified), "held path must not be processed")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.coordinator.Acquire(ctx, path), context.DeadlineExceeded)

	h.coordinator.Release(path)
	drain(t, h.coordinator)
	assert.Len(t, h.events(t, domain.EventClassified), 1)
}

func TestCoordinator_StopDropsLaterArrivals(t *testing.T) {
	h := newHarness(t, domain.ModeCopy, notesRule)
	path := h.file(t, "late.txt", "late", base)
	start(t, h)

	require.NoError(t, h.coordinator.Stop())
	h.coordinator.Submit(scanArrival(path, base))
	drain(t, h.coordinator)

	assert.Zero(t, h.coordinator.Summary().Admitted)
	finished := h.events(t, domain.EventRunFinished)
	require.Len(t, finished, 1)
	assert.Len(t, h.events(t, domain.EventRunStarted), 1)

	// Stop is idempotent.
	assert.NoError(t, h.coordinator.Stop())
}

func TestUniqueArrivals(t *testing.T) {
	now := base.Add(time.Hour)
	in := []domain.Arrival{
		{Descriptor: domain.FileDescriptor{Path: "/b", Size: 1}, ObservedAt: base.Add(time.Minute)},
		{Descriptor: domain.FileDescriptor{Path: "/a"}, ObservedAt: base.Add(time.Minute)},
		{Descriptor: domain.FileDescriptor{Path: "/b", Size: 2}, ObservedAt: base},
		{Descriptor: domain.FileDescriptor{Path: "/c"}},
	}

	out := uniqueArrivals(in, now)

	require.Len(t, out, 3)
	assert.Equal(t, "/a", out[0].Descriptor.Path)
	assert.Equal(t, "/b", out[1].Descriptor.Path)
	assert.Equal(t, int64(2), out[1].Descriptor.Size, "the latest descriptor wins")
	assert.Equal(t, "/c", out[2].Descriptor.Path)
	assert.True(t, out[2].ObservedAt.Equal(now))
}
