package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
	"github.com/custodia-labs/filer/internal/core/ports/driving"
	"github.com/custodia-labs/filer/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

// Options are the global flags every command shares.
type Options struct {
	ConfigPath string
	DataDir    string
	Verbose    bool
}

// PipelineOptions override settings for a single run.
type PipelineOptions struct {
	Mode          domain.MigrationMode
	RulesFile     string
	IncludeReview bool
}

// Pipeline is one run of the coordinator together with the services that
// must share its admission lock.
type Pipeline struct {
	RunID     string
	Settings  *domain.Settings
	Ingestion driving.IngestionService
	Review    driving.ReviewService
	Audit     driving.AuditService
}

// Runtime holds everything the commands need. main builds it once the
// global flags are parsed.
type Runtime struct {
	Settings driving.SettingsService
	Rules    driving.RuleService
	Review   driving.ReviewService
	Audit    driving.AuditService

	// MailboxAuth is nil when no mailbox client is configured.
	MailboxAuth driving.MailboxAuthService

	NewPipeline  func(ctx context.Context, opts PipelineOptions) (*Pipeline, error)
	NewScheduler func(settings *domain.Settings, ingestion driving.IngestionService) driving.Scheduler

	Inventory func(path string) driven.Producer
	Scan      func(settings *domain.Settings, roots []string) driven.Producer
	Watch     func(settings *domain.Settings, roots []string) driven.Producer
	Mailbox   func(ctx context.Context, settings domain.MailboxSettings) (driven.Producer, error)

	Fingerprint func(ctx context.Context, d domain.FileDescriptor) (*domain.FileRecord, error)
	Hash        func(ctx context.Context, path string) (string, error)

	// Close releases the stores opened for the runtime.
	Close func() error
}

// SetupFunc builds the runtime from the global flags.
type SetupFunc func(opts Options) (*Runtime, error)

var (
	opts  Options
	setup SetupFunc
	app   *Runtime
)

// annotationNoSetup marks commands that run without a runtime.
const annotationNoSetup = "no-setup"

var rootCmd = &cobra.Command{
	Use:   "filer",
	Short: "Deduplicate and classify a document corpus into a taxonomy",
	Long: `filer fingerprints every incoming file, quarantines exact duplicates,
flags near duplicates for review, classifies the rest with an ordered rule
set and moves or copies them into the taxonomy with verified transfers.

Every decision is written to an append-only audit log.`,
	SilenceUsage:      true,
	PersistentPreRunE: prepare,
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		return closeRuntime()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ~/.filer/config.toml)")
	rootCmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "directory for the audit database (default ~/.filer/data)")
	rootCmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")
}

// SetRuntime installs a ready runtime; setup is then skipped.
func SetRuntime(r *Runtime) {
	app = r
}

// Execute runs the root command. setup is called once, before the first
// command that needs services.
func Execute(fn SetupFunc) error {
	setup = fn
	return rootCmd.Execute()
}

func prepare(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(opts.Verbose)
	if cmd.Annotations[annotationNoSetup] != "" || app != nil || setup == nil {
		return nil
	}
	r, err := setup(opts)
	if err != nil {
		return err
	}
	app = r
	return nil
}

func closeRuntime() error {
	if app == nil || app.Close == nil {
		return nil
	}
	err := app.Close()
	app.Close = nil
	return err
}

// requireRuntime returns the runtime or a configuration error.
func requireRuntime() (*Runtime, error) {
	if app == nil {
		return nil, errors.New("filer is not configured")
	}
	return app, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Shutdown releases the runtime if a command failed before its post-run hook.
func Shutdown() error {
	return closeRuntime()
}
