package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/filer/internal/core/domain"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect, export and reconcile the audit log",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	RunE:  runAuditList,
}

var auditExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export the audit log as JSON lines",
	Long:  `Writes every audit event as one JSON object per line to the file, or to stdout.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditExport,
}

var auditRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Reconcile transfers interrupted by a crash",
	Long: `Replays the audit log and finishes or discards every transfer that did
not reach its final state. filer run does this automatically.`,
	RunE: runAuditRecover,
}

var (
	auditPath  string
	auditKind  string
	auditRunID string
	auditLimit int
)

func init() {
	auditListCmd.Flags().StringVar(&auditPath, "path", "", "only events for this source path")
	auditListCmd.Flags().StringVar(&auditKind, "kind", "", "only events of this kind (e.g. migration, duplicate_detected)")
	auditListCmd.Flags().StringVar(&auditRunID, "run", "", "only events of this run")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 0, "maximum number of events")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditExportCmd)
	auditCmd.AddCommand(auditRecoverCmd)
	rootCmd.AddCommand(auditCmd)
}

func runAuditList(cmd *cobra.Command, _ []string) error {
	rt, err := requireRuntime()
	if err != nil {
		return err
	}

	events, err := rt.Audit.Events(context.Background(), domain.AuditFilter{
		Source: auditPath,
		Kind:   domain.EventKind(auditKind),
		RunID:  auditRunID,
		Limit:  auditLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	if len(events) == 0 {
		cmd.Println("No events.")
		return nil
	}

	for i := range events {
		ev := &events[i]
		kind := string(ev.Kind)
		if ev.State != "" {
			kind += "/" + string(ev.State)
		}
		cmd.Printf("%6d  %s  %-28s  %s", ev.Seq, ev.Timestamp.Format("2006-01-02 15:04:05"), kind, ev.Source)
		if ev.Destination != "" {
			cmd.Printf(" -> %s", ev.Destination)
		}
		if ev.Detail != "" {
			cmd.Printf("  %s", gray(oneLine(ev.Detail)))
		}
		cmd.Println()
	}
	return nil
}

func runAuditExport(cmd *cobra.Command, args []string) error {
	rt, err := requireRuntime()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return rt.Audit.Export(context.Background(), cmd.OutOrStdout())
	}

	f, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	if err := rt.Audit.Export(context.Background(), f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing export file: %w", err)
	}
	cmd.Printf("Audit log exported to %s\n", args[0])
	return nil
}

func runAuditRecover(cmd *cobra.Command, _ []string) error {
	rt, err := requireRuntime()
	if err != nil {
		return err
	}

	report, err := rt.Audit.Recover(context.Background())
	if err != nil {
		return fmt.Errorf("recovery failed: %w", err)
	}

	if len(report.Paths) == 0 {
		cmd.Println("Nothing to recover.")
		return nil
	}
	for _, p := range report.Paths {
		cmd.Printf("  %s\n", p)
	}
	cmd.Printf("%d reset, %d completed\n", report.Reset, report.Completed)
	return nil
}
