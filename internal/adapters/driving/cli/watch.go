package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/filer/internal/core/ports/driven"
	"github.com/custodia-labs/filer/internal/logger"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir...]",
	Short: "Process files continuously as they arrive",
	Long: `Watches the given directories (or ingestion.watch_roots) and processes
each new or changed file once it has stopped changing. When enabled, the
mailbox poller and the periodic corpus scan feed the same pipeline.

Runs until interrupted.`,
	RunE: runWatch,
}

var (
	watchMode          string
	watchRules         string
	watchIncludeReview bool
)

func init() {
	watchCmd.Flags().StringVar(&watchMode, "mode", "", "migration mode: move, copy or dry-run")
	watchCmd.Flags().StringVar(&watchRules, "rules", "", "rule file (overrides paths.rules_file)")
	watchCmd.Flags().BoolVar(&watchIncludeReview, "include-review", false,
		"migrate low-confidence files to their proposed destination instead of holding them")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	rt, err := requireRuntime()
	if err != nil {
		return err
	}
	pipelineOpts, err := pipelineOptions(watchMode, watchRules, watchIncludeReview)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	p, err := rt.NewPipeline(ctx, pipelineOpts)
	if err != nil {
		return err
	}
	settings := p.Settings

	roots := args
	if len(roots) == 0 {
		roots = settings.Ingestion.WatchRoots
	}
	if len(roots) == 0 && !settings.Mailbox.Enabled {
		return fmt.Errorf("nothing to watch: pass directories or set ingestion.watch_roots")
	}

	if err := recoverRun(ctx, cmd, p); err != nil {
		return err
	}
	if err := p.Ingestion.Start(ctx); err != nil {
		return err
	}

	var producers []driven.Producer
	if len(roots) > 0 {
		producers = append(producers, rt.Watch(settings, roots))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, producer := range producers {
		g.Go(func() error {
			return p.Ingestion.Consume(gctx, producer)
		})
	}

	if settings.Scheduler.Enabled && rt.NewScheduler != nil {
		scheduler := rt.NewScheduler(settings, p.Ingestion)
		go func() {
			if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("scheduler stopped: %v", err)
			}
		}()
		defer func() { _ = scheduler.Stop() }()
	}

	cmd.Printf("Watching %d directories (run %s, %s mode). Press Ctrl+C to stop.\n",
		len(roots), p.RunID, settings.Migration.Mode)

	<-ctx.Done()
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("watch: %v", err)
	}

	stopErr := p.Ingestion.Stop()
	printSummary(cmd, p.Ingestion.Summary())
	if stopErr != nil {
		return fmt.Errorf("pipeline stopped: %w", stopErr)
	}
	return nil
}
