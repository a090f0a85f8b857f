package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/filer/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show the effective settings",
	Long: `Prints the settings resolved from the config file and defaults.

Settings are edited in ~/.filer/config.toml (or the file given with --config).`,
	RunE: runSettingsShow,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	rt, err := requireRuntime()
	if err != nil {
		return err
	}
	if rt.Settings == nil {
		return errors.New("settings service not configured")
	}

	settings, err := rt.Settings.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Paths]")
	cmd.Printf("  Taxonomy root:   %s\n", settings.Paths.TaxonomyRoot)
	cmd.Printf("  Quarantine root: %s\n", settings.Paths.QuarantineRoot)
	cmd.Printf("  Rules file:      %s\n", settings.Paths.RulesFile)
	cmd.Printf("  Data dir:        %s\n", orDefault(settings.Paths.DataDir, "(default)"))
	cmd.Println()

	cmd.Println("[Migration]")
	cmd.Printf("  Mode:            %s\n", settings.Migration.Mode)
	cmd.Printf("  Max collisions:  %d\n", settings.Migration.MaxCollisionAttempts)
	cmd.Println()

	cmd.Println("[Dedup]")
	cmd.Printf("  Near threshold:  %.2f\n", settings.Dedup.NearThreshold)
	cmd.Printf("  Bands:           %d\n", settings.Dedup.Bands)
	cmd.Printf("  Size tolerance:  %.0f%%\n", settings.Dedup.SizeTolerance*100)
	cmd.Printf("  Date tolerance:  %s\n", settings.Dedup.DateTolerance)
	cmd.Println()

	cmd.Println("[Classification]")
	cmd.Printf("  Review floor:    %.2f\n", settings.Classification.ReviewFloor)
	cmd.Printf("  Include review:  %s\n", yesNo(settings.Classification.IncludeReview))
	cmd.Println()

	cmd.Println("[Ingestion]")
	cmd.Printf("  Workers:         %d\n", settings.Ingestion.Workers)
	cmd.Printf("  File timeout:    %s\n", settings.Ingestion.FileTimeout)
	cmd.Printf("  Quiet period:    %s\n", settings.Ingestion.QuietPeriod)
	cmd.Printf("  Scan roots:      %s\n", listOrNone(settings.Ingestion.ScanRoots))
	cmd.Printf("  Watch roots:     %s\n", listOrNone(settings.Ingestion.WatchRoots))
	cmd.Println()

	cmd.Println("[Mailbox]")
	cmd.Printf("  Enabled:         %s\n", yesNo(settings.Mailbox.Enabled))
	if settings.Mailbox.Enabled {
		cmd.Printf("  Query:           %s\n", orDefault(settings.Mailbox.Query, "(all mail)"))
		cmd.Printf("  Spool dir:       %s\n", settings.Mailbox.SpoolDir)
		cmd.Printf("  Token file:      %s\n", settings.Mailbox.TokenFile)
		cmd.Printf("  Client ID:       %s\n", orDefault(settings.Mailbox.ClientID, "(not set)"))
		if settings.Mailbox.ClientSecret != "" {
			cmd.Printf("  Client secret:   %s\n", maskSecret(settings.Mailbox.ClientSecret))
		} else {
			cmd.Printf("  Client secret:   (not set)\n")
		}
	}
	cmd.Println()

	cmd.Println("[Scheduler]")
	cmd.Printf("  Enabled:         %s\n", yesNo(settings.Scheduler.Enabled))
	for _, id := range []string{domain.TaskIDCorpusScan, domain.TaskIDMailboxPoll} {
		tc := settings.Scheduler.TaskConfigs[id]
		cmd.Printf("  %-16s %s every %s\n", id+":", yesNo(tc.Enabled), tc.Interval)
	}
	return nil
}

// maskSecret shows only the ends of a credential.
func maskSecret(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
