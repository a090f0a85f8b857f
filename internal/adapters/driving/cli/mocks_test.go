package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
	"github.com/custodia-labs/filer/internal/core/ports/driving"
)

// mockSettings implements driving.SettingsService.
type mockSettings struct {
	settings domain.Settings
	err      error
}

func (m *mockSettings) Get() (*domain.Settings, error) {
	if m.err != nil {
		return nil, m.err
	}
	s := m.settings
	return &s, nil
}

func (m *mockSettings) GetDefaults() domain.Settings { return domain.DefaultSettings() }

// mockReview implements driving.ReviewService.
type mockReview struct {
	items   []domain.ReviewItem
	applied []domain.ReviewInstruction
	status  domain.ReviewStatus
	err     error
}

func (m *mockReview) List(_ context.Context, status domain.ReviewStatus) ([]domain.ReviewItem, error) {
	m.status = status
	return m.items, m.err
}

func (m *mockReview) Get(_ context.Context, id string) (*domain.ReviewItem, error) {
	for i := range m.items {
		if m.items[i].ID == id {
			it := m.items[i]
			return &it, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockReview) Apply(_ context.Context, instr domain.ReviewInstruction) error {
	if m.err != nil {
		return m.err
	}
	m.applied = append(m.applied, instr)
	return nil
}

// mockAudit implements driving.AuditService.
type mockAudit struct {
	events  []domain.AuditEvent
	filter  domain.AuditFilter
	report  driving.RecoveryReport
	recover error
}

func (m *mockAudit) Events(_ context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	m.filter = filter
	return m.events, nil
}

func (m *mockAudit) Export(_ context.Context, w io.Writer) error {
	_, err := io.WriteString(w, "{\"Seq\":1}\n")
	return err
}

func (m *mockAudit) Recover(context.Context) (*driving.RecoveryReport, error) {
	if m.recover != nil {
		return nil, m.recover
	}
	r := m.report
	return &r, nil
}

// mockRules implements driving.RuleService.
type mockRules struct {
	ruleSet domain.RuleSet
	diffs   []driving.RuleDiff
	records []domain.FileRecord
	err     error
}

func (m *mockRules) Validate(context.Context, string) (*domain.RuleSet, error) {
	if m.err != nil {
		return nil, m.err
	}
	rs := m.ruleSet
	return &rs, nil
}

func (m *mockRules) Diff(_ context.Context, _, _ string, records []domain.FileRecord) ([]driving.RuleDiff, error) {
	m.records = records
	return m.diffs, m.err
}

// mockIngestion implements driving.IngestionService.
type mockIngestion struct {
	started  bool
	stopped  bool
	batch    []domain.Arrival
	batchErr error
	stopErr  error
	summary  domain.RunSummary
}

func (m *mockIngestion) Start(context.Context) error                   { m.started = true; return nil }
func (m *mockIngestion) Submit(domain.Arrival)                         {}
func (m *mockIngestion) Consume(context.Context, driven.Producer) error { return nil }
func (m *mockIngestion) Drain(context.Context) error                   { return nil }
func (m *mockIngestion) Summary() domain.RunSummary                    { return m.summary }

func (m *mockIngestion) RunBatch(_ context.Context, arrivals []domain.Arrival) error {
	m.batch = arrivals
	m.summary.Admitted = len(arrivals)
	m.summary.Migrated = len(arrivals)
	return m.batchErr
}

func (m *mockIngestion) Stop() error {
	m.stopped = true
	return m.stopErr
}

// sliceProducer emits fixed arrivals and errors.
type sliceProducer struct {
	name     string
	kind     domain.ProducerKind
	arrivals []domain.Arrival
	errs     []error
}

func (p *sliceProducer) Name() string              { return p.name }
func (p *sliceProducer) Kind() domain.ProducerKind { return p.kind }

func (p *sliceProducer) Produce(ctx context.Context) (<-chan domain.Arrival, <-chan error) {
	out := make(chan domain.Arrival)
	errs := make(chan error, len(p.errs))
	go func() {
		defer close(errs)
		defer close(out)
		for _, err := range p.errs {
			errs <- err
		}
		for _, a := range p.arrivals {
			select {
			case out <- a:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errs
}

func descriptors(paths ...string) []domain.Arrival {
	out := make([]domain.Arrival, len(paths))
	for i, p := range paths {
		out[i] = domain.Arrival{Descriptor: domain.FileDescriptor{Path: p, Size: int64(10 * (i + 1))}}
	}
	return out
}

// testEnv is a runtime assembled from mocks.
type testEnv struct {
	settings  *mockSettings
	review    *mockReview
	audit     *mockAudit
	rules     *mockRules
	ingestion *mockIngestion
	opts      []PipelineOptions
	inventory []domain.Arrival
	scanned   []string
	hashErr   map[string]error
	runtime   *Runtime
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		settings:  &mockSettings{settings: domain.DefaultSettings()},
		review:    &mockReview{},
		audit:     &mockAudit{},
		rules:     &mockRules{},
		ingestion: &mockIngestion{},
		hashErr:   make(map[string]error),
	}
	env.runtime = &Runtime{
		Settings: env.settings,
		Rules:    env.rules,
		Review:   env.review,
		Audit:    env.audit,
		NewPipeline: func(_ context.Context, o PipelineOptions) (*Pipeline, error) {
			env.opts = append(env.opts, o)
			s, err := env.settings.Get()
			if err != nil {
				return nil, err
			}
			if o.Mode != "" {
				s.Migration.Mode = o.Mode
			}
			env.ingestion.summary.RunID = "run-1"
			return &Pipeline{RunID: "run-1", Settings: s, Ingestion: env.ingestion, Review: env.review, Audit: env.audit}, nil
		},
		Inventory: func(path string) driven.Producer {
			return &sliceProducer{name: "inventory " + path, kind: domain.ProducerScan, arrivals: env.inventory}
		},
		Scan: func(_ *domain.Settings, roots []string) driven.Producer {
			env.scanned = append(env.scanned, roots...)
			return &sliceProducer{name: "scan", kind: domain.ProducerScan, arrivals: env.inventory}
		},
		Fingerprint: func(_ context.Context, d domain.FileDescriptor) (*domain.FileRecord, error) {
			if err := env.hashErr[d.Path]; err != nil {
				return nil, err
			}
			return &domain.FileRecord{FileDescriptor: d, Fingerprint: "sum-" + d.Path}, nil
		},
		Hash: func(_ context.Context, path string) (string, error) {
			if err := env.hashErr[path]; err != nil {
				return "", err
			}
			return "sum-" + path, nil
		},
	}
	SetRuntime(env.runtime)
	t.Cleanup(func() { SetRuntime(nil) })
	return env
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		resetFlags()
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

// resetFlags restores every flag to its default, which cobra keeps
// between executions.
func resetFlags() {
	var reset func(c *cobra.Command)
	reset = func(c *cobra.Command) {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				_ = sv.Replace(nil)
			} else {
				_ = f.Value.Set(f.DefValue)
			}
			f.Changed = false
		})
		for _, sub := range c.Commands() {
			reset(sub)
		}
	}
	reset(rootCmd)
	opts = Options{}
}

var errBoom = errors.New("boom")
