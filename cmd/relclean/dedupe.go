package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stackwatch/relclean/internal/dedup"
	"github.com/stackwatch/relclean/internal/report"
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Merge or rename duplicate release records",
	Long: `Process every duplicate release group and either merge it into one
canonical record or rename its members to restore uniqueness.

The audit report (CSV, one row per affected release) goes to stdout; progress
and summary go to stderr. A failed merge aborts the run: already-processed
groups keep their results, unprocessed groups are untouched, and the run can
safely be restarted from the top.

Thresholds are tunable via RELCLEAN_* environment variables (see
internal/dedup).

Examples:
  relclean dedupe --db releases.db > audit.csv   # live run
  relclean dedupe --dry-run                      # preview decisions only`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		cfg, err := dedup.ConfigFromEnv()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		// stdout belongs to the CSV report; everything human goes to stderr
		if dryRun {
			fmt.Fprintf(os.Stderr, "%s\n", color.YellowString("DRY RUN MODE - no records will be modified"))
		}
		fmt.Fprintf(os.Stderr, "Using %s\n", cfg)

		writer := report.NewCSVWriter(os.Stdout)
		engine, err := dedup.New(store, writer, cfg, dryRun)
		if err != nil {
			return err
		}

		startTime := time.Now()
		summary, runErr := engine.Run(cmd.Context())

		// Flush whatever was reported even when the run aborted midway;
		// a truncated report plus the error is the documented behavior.
		if err := writer.Flush(); err != nil {
			if runErr != nil {
				return runErr
			}
			return err
		}
		if runErr != nil {
			return runErr
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(os.Stderr, "\n%s Processed %d duplicate group(s) in %s\n",
			green("✓"), summary.GroupsProcessed, time.Since(startTime).Round(time.Millisecond))
		fmt.Fprintf(os.Stderr, "  Merged:          %d group(s)\n", summary.GroupsMerged)
		fmt.Fprintf(os.Stderr, "  Renamed:         %d group(s)\n", summary.GroupsRenamed)
		fmt.Fprintf(os.Stderr, "  Releases:        %d\n", summary.ReleasesProcessed)
		fmt.Fprintf(os.Stderr, "  Orphans deleted: %d\n", summary.OrphansDeleted)
		if dryRun {
			fmt.Fprintf(os.Stderr, "\nRun without --dry-run to apply these changes\n")
		}
		return nil
	},
}

func init() {
	dedupeCmd.Flags().Bool("dry-run", false, "Report decisions without modifying any records")
	rootCmd.AddCommand(dedupeCmd)
}
