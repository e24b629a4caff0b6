package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the remaining duplicate release surface",
	Long: `Census of duplicate (organization, version) pairs in the datastore.

Read-only; useful before a run to gauge scope and after one to confirm the
dataset is clean.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := store.GetDuplicateStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to gather statistics: %w", err)
		}

		fmt.Printf("Releases:            %d\n", stats.TotalReleases)
		fmt.Printf("Duplicate groups:    %d\n", stats.DuplicateGroups)
		fmt.Printf("Duplicate releases:  %d\n", stats.DuplicateReleases)
		fmt.Printf("Largest group:       %d\n", stats.LargestGroupSize)
		fmt.Printf("Runs recorded:       %d\n", stats.RunsRecorded)

		if stats.DuplicateGroups == 0 {
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Fprintf(os.Stderr, "\n%s No duplicate releases found\n", green("✓"))
		} else {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Fprintf(os.Stderr, "\n%s Run 'relclean dedupe --dry-run' to preview the cleanup\n", yellow("⚠"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
