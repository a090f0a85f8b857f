package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/filer/internal/core/domain"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "List and resolve items awaiting human review",
	Long: `Near duplicates, low-confidence or unmatched classifications and
escalated failures wait in the review queue until resolved with
KEEP, REMOVE or MERGE.`,
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open review items",
	RunE:  runReviewList,
}

var reviewShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a review item",
	Args:  cobra.ExactArgs(1),
	RunE:  runReviewShow,
}

var reviewResolveCmd = &cobra.Command{
	Use:   "resolve [id] [KEEP|REMOVE|MERGE]",
	Short: "Resolve a review item",
	Long: `Applies a disposition to a review item:

  KEEP    keep the file; with --dest, move it to that taxonomy path
  REMOVE  move the file to the quarantine area
  MERGE   keep one member of a near-duplicate pair (--keep, default the
          older placement) and quarantine the other`,
	Args: cobra.ExactArgs(2),
	RunE: runReviewResolve,
}

var (
	reviewListAll bool
	reviewKeep    string
	reviewDest    string
	reviewNote    string
)

func init() {
	reviewListCmd.Flags().BoolVar(&reviewListAll, "all", false, "include resolved items")
	reviewResolveCmd.Flags().StringVar(&reviewKeep, "keep", "", "MERGE: path of the member to keep")
	reviewResolveCmd.Flags().StringVar(&reviewDest, "dest", "", "KEEP: destination relative to the taxonomy root")
	reviewResolveCmd.Flags().StringVar(&reviewNote, "note", "", "note recorded with the decision")

	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewShowCmd)
	reviewCmd.AddCommand(reviewResolveCmd)
	rootCmd.AddCommand(reviewCmd)
}

func runReviewList(cmd *cobra.Command, _ []string) error {
	rt, err := requireRuntime()
	if err != nil {
		return err
	}

	status := domain.ReviewOpen
	if reviewListAll {
		status = ""
	}
	items, err := rt.Review.List(context.Background(), status)
	if err != nil {
		return fmt.Errorf("failed to list review items: %w", err)
	}

	if len(items) == 0 {
		cmd.Println("No review items.")
		return nil
	}

	cmd.Printf("%-36s  %-14s  %-5s  %s\n", "ID", "KIND", "SCORE", "SUBJECT")
	for i := range items {
		it := &items[i]
		line := fmt.Sprintf("%-36s  %-14s  %5.2f  %s", it.ID, it.Kind, it.Score, shorten(it.Subject, 70))
		if it.Status == domain.ReviewResolved {
			line = gray(line + "  [" + string(it.Disposition) + "]")
		}
		cmd.Println(line)
	}
	cmd.Printf("\n%d item(s)\n", len(items))
	return nil
}

func runReviewShow(cmd *cobra.Command, args []string) error {
	rt, err := requireRuntime()
	if err != nil {
		return err
	}

	it, err := rt.Review.Get(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get review item: %w", err)
	}

	cmd.Printf("ID:          %s\n", it.ID)
	cmd.Printf("Kind:        %s\n", it.Kind)
	cmd.Printf("Status:      %s\n", it.Status)
	cmd.Printf("Subject:     %s\n", it.Subject)
	if it.Location != "" {
		cmd.Printf("Location:    %s\n", it.Location)
	}
	if it.Counterpart != "" {
		cmd.Printf("Counterpart: %s\n", it.Counterpart)
	}
	if it.Proposed != "" {
		cmd.Printf("Proposed:    %s\n", it.Proposed)
	}
	cmd.Printf("Score:       %.2f\n", it.Score)
	cmd.Printf("Reason:      %s\n", oneLine(it.Reason))
	cmd.Printf("Created:     %s\n", it.CreatedAt.Format("2006-01-02 15:04:05"))
	if it.Status == domain.ReviewResolved {
		cmd.Printf("Disposition: %s\n", it.Disposition)
		if it.Note != "" {
			cmd.Printf("Note:        %s\n", it.Note)
		}
	}
	return nil
}

func runReviewResolve(cmd *cobra.Command, args []string) error {
	rt, err := requireRuntime()
	if err != nil {
		return err
	}

	disposition, err := domain.ParseDisposition(args[1])
	if err != nil {
		return err
	}

	instr := domain.ReviewInstruction{
		ItemID:      args[0],
		Disposition: disposition,
		Keep:        reviewKeep,
		Destination: reviewDest,
		Note:        reviewNote,
	}
	if err := rt.Review.Apply(context.Background(), instr); err != nil {
		return fmt.Errorf("failed to resolve review item: %w", err)
	}

	cmd.Printf("%s %s resolved: %s\n", green("✓"), args[0], disposition)
	return nil
}
