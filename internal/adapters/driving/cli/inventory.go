package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/filer/internal/connectors/inventory"
	"github.com/custodia-labs/filer/internal/logger"
)

var inventoryCmd = &cobra.Command{
	Use:   "inventory [dir...]",
	Short: "Write an inventory CSV of the files under directories",
	Long: `Scans the directories and writes one row per file with its size, dates,
media type and sha256. The output can be reviewed, edited and passed to
filer run --inventory.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInventoryCmd,
}

var inventoryOutput string

func init() {
	inventoryCmd.Flags().StringVarP(&inventoryOutput, "output", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(inventoryCmd)
}

func runInventoryCmd(cmd *cobra.Command, args []string) error {
	rt, err := requireRuntime()
	if err != nil {
		return err
	}
	settings, err := rt.Settings.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	var out io.Writer = cmd.OutOrStdout()
	if inventoryOutput != "" {
		f, err := os.Create(inventoryOutput)
		if err != nil {
			return fmt.Errorf("creating inventory file: %w", err)
		}
		defer f.Close()
		out = f
	}

	arrivals, err := collect(ctx, rt.Scan(settings, args))
	if err != nil {
		return err
	}

	w := inventory.NewWriter(out)
	var failed int
	for _, a := range arrivals {
		sum, err := rt.Hash(ctx, a.Descriptor.Path)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			logger.Warn("hashing %s: %v", a.Descriptor.Path, err)
			sum = inventory.HashError
			failed++
		}
		if err := w.Write(a.Descriptor, sum); err != nil {
			return fmt.Errorf("writing inventory: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing inventory: %w", err)
	}

	if inventoryOutput != "" {
		cmd.Printf("Wrote %d files to %s", len(arrivals), inventoryOutput)
		if failed > 0 {
			cmd.Printf(" (%s)", yellow(fmt.Sprintf("%d unreadable", failed)))
		}
		cmd.Println()
	}
	return nil
}
