package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/filer/internal/adapters/driven/filesystem/local"
	"github.com/custodia-labs/filer/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
	"github.com/custodia-labs/filer/internal/extractors"
	"github.com/custodia-labs/filer/internal/extractors/plaintext"
)

// harness wires a complete pipeline over a temporary directory.
type harness struct {
	root       string
	inbox      string
	taxonomy   string
	quarantine string

	fs           *local.FS
	audit        *memory.AuditLog
	review       *memory.ReviewQueue
	index        *memory.FingerprintIndex
	settings     domain.Settings
	fingerprints *FingerprintEngine
	resolver     *DuplicateResolver
	rules        *RuleEngine
	executor     *MigrationExecutor
	coordinator  *Coordinator
}

func testSettings(root string, mode domain.MigrationMode) domain.Settings {
	s := domain.DefaultSettings()
	s.Paths.TaxonomyRoot = filepath.Join(root, "practice")
	s.Paths.QuarantineRoot = filepath.Join(root, "_duplicates")
	s.Migration.Mode = mode
	s.Ingestion.QuietPeriod = 20 * time.Millisecond
	s.Ingestion.FileTimeout = 5 * time.Second
	s.Retry.InitialBackoff = time.Millisecond
	s.Retry.MaxBackoff = 5 * time.Millisecond
	return s
}

func newHarness(t *testing.T, mode domain.MigrationMode, rules ...domain.ClassificationRule) *harness {
	t.Helper()
	root := t.TempDir()
	settings := testSettings(root, mode)
	return newHarnessWith(t, root, settings, memory.NewAuditLog(), rules...)
}

// newHarnessWith builds a harness that shares an audit log, for runs
// following an earlier one.
func newHarnessWith(
	t *testing.T,
	root string,
	settings domain.Settings,
	audit *memory.AuditLog,
	rules ...domain.ClassificationRule,
) *harness {
	t.Helper()
	h := &harness{
		root:       root,
		inbox:      filepath.Join(root, "inbox"),
		taxonomy:   settings.Paths.TaxonomyRoot,
		quarantine: settings.Paths.QuarantineRoot,
		fs:         local.New(),
		audit:      audit,
		review:     memory.NewReviewQueue(),
		index:      memory.NewFingerprintIndex(settings.Dedup.Bands),
		settings:   settings,
	}
	require.NoError(t, os.MkdirAll(h.inbox, 0o755))

	registry := extractors.NewRegistry(plaintext.New())
	h.fingerprints = NewFingerprintEngine(h.fs, registry, settings.Fingerprint)
	h.resolver = NewDuplicateResolver(h.index, settings.Dedup)

	engine, err := NewRuleEngine(domain.RuleSet{
		Version:     "test",
		Rules:       rules,
		Identifiers: clientIdentifiers,
		ReviewFloor: settings.Classification.ReviewFloor,
	})
	require.NoError(t, err)
	h.rules = engine

	h.executor = NewMigrationExecutor(h.fs, h.audit, h.fingerprints, settings.Migration, settings.Paths, "run-test")
	h.rebuild()
	return h
}

// rebuild replaces the coordinator after a settings change.
func (h *harness) rebuild() {
	h.coordinator = NewCoordinator(h.fingerprints, h.resolver, h.rules, h.executor,
		h.audit, h.review, h.fs, h.settings, "run-test")
}

// file writes content under the inbox with the given modification time.
func (h *harness) file(t *testing.T, name, content string, modified time.Time) string {
	t.Helper()
	path := filepath.Join(h.inbox, name)
	writeFile(t, path, content, modified)
	return path
}

func (h *harness) events(t *testing.T, kind domain.EventKind) []domain.AuditEvent {
	t.Helper()
	events, err := h.audit.Events(context.Background(), domain.AuditFilter{Kind: kind})
	require.NoError(t, err)
	return events
}

func (h *harness) openItems(t *testing.T) []domain.ReviewItem {
	t.Helper()
	items, err := h.review.List(context.Background(), domain.ReviewOpen)
	require.NoError(t, err)
	return items
}

func writeFile(t *testing.T, path, content string, modified time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	if !modified.IsZero() {
		require.NoError(t, os.Chtimes(path, modified, modified))
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func scanArrival(path string, observed time.Time) domain.Arrival {
	return domain.Arrival{
		Kind:       domain.ProducerScan,
		Descriptor: domain.FileDescriptor{Path: path},
		ObservedAt: observed,
	}
}

// failingExtractor fails every extraction.
type failingExtractor struct{}

func (failingExtractor) SupportedMediaTypes() []string { return []string{"text/plain"} }
func (failingExtractor) Priority() int                 { return 50 }

func (failingExtractor) Extract(context.Context, *domain.RawFile) (*domain.Extraction, error) {
	return nil, errors.New("corrupt file")
}

// fixedHasher returns a fixed digest for every path.
type fixedHasher struct {
	sum string
	err error
}

func (h fixedHasher) Hash(context.Context, string) (string, error) {
	return h.sum, h.err
}

// flakyHasher fails its first calls, then defers to next.
type flakyHasher struct {
	next     Hasher
	failures int
}

func (h *flakyHasher) Hash(ctx context.Context, path string) (string, error) {
	if h.failures > 0 {
		h.failures--
		return "", errors.New("input/output error")
	}
	return h.next.Hash(ctx, path)
}

// cancellingHasher cancels the caller's context before hashing, as a
// shutdown arriving right after the copy would.
type cancellingHasher struct {
	next   Hasher
	cancel context.CancelFunc
}

func (h cancellingHasher) Hash(ctx context.Context, path string) (string, error) {
	h.cancel()
	return h.next.Hash(ctx, path)
}

// stallingFS opens sources whose reads block until they are closed.
type stallingFS struct {
	*local.FS
}

func (stallingFS) Open(string) (io.ReadCloser, error) {
	return &stalledReader{closed: make(chan struct{})}, nil
}

type stalledReader struct {
	once   sync.Once
	closed chan struct{}
}

func (r *stalledReader) Read([]byte) (int, error) {
	<-r.closed
	return 0, os.ErrClosed
}

func (r *stalledReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

var (
	_ driven.TextExtractor = failingExtractor{}
	_ driven.FileSystem    = stallingFS{}
	_ Hasher               = fixedHasher{}
	_ Hasher               = (*flakyHasher)(nil)
	_ Hasher               = cancellingHasher{}
)

var (
	day  = 24 * time.Hour
	base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
)
