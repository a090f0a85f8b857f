package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/filer/internal/core/domain"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// progress prints a live admitted/processed line while a run drains.
// Output that is not a terminal gets no progress line.
func progress(cmd *cobra.Command, summary func() domain.RunSummary, done <-chan struct{}) {
	if !isTerminal(cmd.OutOrStdout()) {
		return
	}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	last := -1
	for {
		select {
		case <-done:
			cmd.Print("\r\033[K")
			return
		case <-ticker.C:
			s := summary()
			n := processed(s)
			if n != last {
				cmd.Printf("\rProcessing... %d/%d files", n, s.Admitted)
				last = n
			}
		}
	}
}

func processed(s domain.RunSummary) int {
	return s.Migrated + s.Quarantined + s.Held + s.Skipped + s.Escalated + s.Planned
}

// printSummary writes the per-outcome counts of a run.
func printSummary(cmd *cobra.Command, s domain.RunSummary) {
	cmd.Printf("\n%s\n", cyan("=== Run "+s.RunID+" ==="))
	cmd.Printf("  Admitted:     %d\n", s.Admitted)
	cmd.Printf("  Migrated:     %s\n", green(s.Migrated))
	cmd.Printf("  Quarantined:  %d\n", s.Quarantined)
	if s.Planned > 0 {
		cmd.Printf("  Planned:      %d\n", s.Planned)
	}
	cmd.Printf("  Skipped:      %s\n", gray(s.Skipped))
	cmd.Printf("  Held:         %s\n", yellow(s.Held))
	cmd.Printf("  Near pairs:   %s\n", yellow(s.NearFlagged))
	escalated := fmt.Sprint(s.Escalated)
	if s.Escalated > 0 {
		escalated = red(s.Escalated)
	}
	cmd.Printf("  Escalated:    %s\n", escalated)
}

// shorten keeps the tail of long paths for tabular output.
func shorten(path string, max int) string {
	if len(path) <= max || max < 4 {
		return path
	}
	return "..." + path[len(path)-max+3:]
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
