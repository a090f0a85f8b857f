package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/logger"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Validate rule files and compare their outcomes",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check that a rule file parses and compiles",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesValidate,
}

var rulesDiffCmd = &cobra.Command{
	Use:   "diff [old] [new]",
	Short: "Show how a rule change would reclassify an inventory",
	Long: `Fingerprints every file in the inventory, classifies it with both rule
files and lists the files whose destination, confidence or review flag
would change. Nothing is moved.`,
	Args: cobra.ExactArgs(2),
	RunE: runRulesDiff,
}

var rulesDiffInventory string

func init() {
	rulesDiffCmd.Flags().StringVar(&rulesDiffInventory, "inventory", "", "inventory CSV to classify")
	_ = rulesDiffCmd.MarkFlagRequired("inventory")

	rulesCmd.AddCommand(rulesValidateCmd)
	rulesCmd.AddCommand(rulesDiffCmd)
	rootCmd.AddCommand(rulesCmd)
}

func runRulesValidate(cmd *cobra.Command, args []string) error {
	rt, err := requireRuntime()
	if err != nil {
		return err
	}

	rs, err := rt.Rules.Validate(context.Background(), args[0])
	if err != nil {
		return err
	}

	cmd.Printf("%s %s is valid\n", green("✓"), args[0])
	cmd.Printf("  Version:      %s\n", rs.Version)
	cmd.Printf("  Rules:        %d\n", len(rs.Rules))
	cmd.Printf("  Review floor: %.2f\n", rs.ReviewFloor)
	for i, r := range rs.Rules {
		cmd.Printf("  %3d. %-24s %-10s -> %s (%.2f)\n", i+1, r.Name, r.Signal, r.Target, r.Confidence)
	}
	return nil
}

func runRulesDiff(cmd *cobra.Command, args []string) error {
	rt, err := requireRuntime()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	arrivals, err := collect(ctx, rt.Inventory(rulesDiffInventory))
	if err != nil {
		return err
	}

	records := make([]domain.FileRecord, 0, len(arrivals))
	for _, a := range arrivals {
		rec, err := rt.Fingerprint(ctx, a.Descriptor)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			logger.Warn("skipping %s: %v", a.Descriptor.Path, err)
			continue
		}
		records = append(records, *rec)
	}

	diffs, err := rt.Rules.Diff(ctx, args[0], args[1], records)
	if err != nil {
		return err
	}

	if len(diffs) == 0 {
		cmd.Printf("No changes across %d files.\n", len(records))
		return nil
	}
	for _, d := range diffs {
		cmd.Println(d.Path)
		cmd.Printf("  %s %s (%.2f%s)\n", red("-"), d.Before.Destination, d.Before.Confidence, reviewMark(d.Before))
		cmd.Printf("  %s %s (%.2f%s)\n", green("+"), d.After.Destination, d.After.Confidence, reviewMark(d.After))
	}
	cmd.Printf("\n%d of %d files change\n", len(diffs), len(records))
	return nil
}

func reviewMark(r domain.ClassificationResult) string {
	if !r.NeedsReview {
		return ""
	}
	return fmt.Sprintf(", review: %s", r.Reason)
}
