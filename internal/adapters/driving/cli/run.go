package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
	"github.com/custodia-labs/filer/internal/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process an inventory or a directory scan as one batch",
	Long: `Recovers interrupted transfers, then fingerprints, deduplicates,
classifies and migrates every file in the inventory CSV or under the
scanned directories. Exact duplicates are resolved across the whole batch
before any file is moved.

Without --inventory, --scan or --mailbox, the configured
ingestion.scan_roots are used. --mailbox adds one mailbox poll to the batch.`,
	RunE: runRun,
}

var (
	runInventory     string
	runScan          []string
	runMode          string
	runRules         string
	runIncludeReview bool
	runMailbox       bool
)

func init() {
	runCmd.Flags().StringVar(&runInventory, "inventory", "", "inventory CSV to process")
	runCmd.Flags().StringSliceVar(&runScan, "scan", nil, "directories to scan (repeatable)")
	runCmd.Flags().StringVar(&runMode, "mode", "", "migration mode: move, copy or dry-run")
	runCmd.Flags().StringVar(&runRules, "rules", "", "rule file (overrides paths.rules_file)")
	runCmd.Flags().BoolVar(&runIncludeReview, "include-review", false,
		"migrate low-confidence files to their proposed destination instead of holding them")
	runCmd.Flags().BoolVar(&runMailbox, "mailbox", false, "also poll the mailbox once")
	runCmd.MarkFlagsMutuallyExclusive("inventory", "scan")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	rt, err := requireRuntime()
	if err != nil {
		return err
	}
	pipelineOpts, err := pipelineOptions(runMode, runRules, runIncludeReview)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	p, err := rt.NewPipeline(ctx, pipelineOpts)
	if err != nil {
		return err
	}
	if err := recoverRun(ctx, cmd, p); err != nil {
		return err
	}

	producers, err := batchProducers(ctx, rt, p.Settings)
	if err != nil {
		return err
	}

	var arrivals []domain.Arrival
	for _, producer := range producers {
		got, err := collect(ctx, producer)
		if err != nil {
			return err
		}
		arrivals = append(arrivals, got...)
	}
	cmd.Printf("Run %s: %d files (%s mode)\n", p.RunID, len(arrivals), p.Settings.Migration.Mode)

	if err := p.Ingestion.Start(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	go progress(cmd, p.Ingestion.Summary, done)
	runErr := p.Ingestion.RunBatch(ctx, arrivals)
	close(done)

	stopErr := p.Ingestion.Stop()
	printSummary(cmd, p.Ingestion.Summary())

	if errors.Is(runErr, context.Canceled) {
		cmd.Println(yellow("Interrupted; unfinished files will be picked up by the next run."))
		runErr = nil
	}
	if err := errors.Join(runErr, stopErr); err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	return nil
}

func pipelineOptions(mode, rules string, includeReview bool) (PipelineOptions, error) {
	o := PipelineOptions{RulesFile: rules, IncludeReview: includeReview}
	if mode != "" {
		m, err := domain.ParseMigrationMode(mode)
		if err != nil {
			return o, err
		}
		o.Mode = m
	}
	return o, nil
}

// recoverRun reconciles interrupted transfers before anything is admitted.
func recoverRun(ctx context.Context, cmd *cobra.Command, p *Pipeline) error {
	report, err := p.Audit.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recovery failed: %w", err)
	}
	if report.Reset > 0 || report.Completed > 0 {
		cmd.Printf("Recovered interrupted transfers: %d reset, %d completed\n", report.Reset, report.Completed)
	}
	return nil
}

func batchProducers(ctx context.Context, rt *Runtime, settings *domain.Settings) ([]driven.Producer, error) {
	var producers []driven.Producer
	switch {
	case runInventory != "":
		producers = append(producers, rt.Inventory(runInventory))
	case len(runScan) > 0:
		producers = append(producers, rt.Scan(settings, runScan))
	case len(settings.Ingestion.ScanRoots) > 0 && !runMailbox:
		producers = append(producers, rt.Scan(settings, settings.Ingestion.ScanRoots))
	}

	if runMailbox {
		if rt.Mailbox == nil {
			return nil, errors.New("mailbox producer not configured")
		}
		mailbox, err := rt.Mailbox(ctx, settings.Mailbox)
		if err != nil {
			return nil, fmt.Errorf("connecting to mailbox: %w", err)
		}
		producers = append(producers, mailbox)
	}

	if len(producers) == 0 {
		return nil, errors.New("nothing to process: pass --inventory, --scan or --mailbox, or set ingestion.scan_roots")
	}
	return producers, nil
}

// collect drains a producer into a slice. Producer errors are per-entry
// and only logged.
func collect(ctx context.Context, producer driven.Producer) ([]domain.Arrival, error) {
	arrivals, errs := producer.Produce(ctx)
	var out []domain.Arrival
	for arrivals != nil || errs != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case a, ok := <-arrivals:
			if !ok {
				arrivals = nil
				continue
			}
			if a.Kind == "" {
				a.Kind = producer.Kind()
			}
			out = append(out, a)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("%s: %v", producer.Name(), err)
		}
	}
	logger.Debug("%s produced %d arrivals", producer.Name(), len(out))
	return out, nil
}
