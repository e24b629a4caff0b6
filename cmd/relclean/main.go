// Command relclean repairs duplicate release records in the monitoring
// datastore, merging duplicates into canonical records or renaming them to
// restore uniqueness.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stackwatch/relclean/internal/storage"
)

// store is shared by all subcommands, opened by the root pre-run
var store storage.Storage

var rootCmd = &cobra.Command{
	Use:   "relclean",
	Short: "Deduplicate release version records",
	Long: `relclean cleans up duplicate release records - rows sharing an
organization and version string - by merging them into one canonical record
or renaming them with a project qualifier.

The database path comes from --db or the RELCLEAN_DB environment variable.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		store, err = storage.NewStorage(cmd.Context(), &storage.Config{
			Path: viper.GetString("db"),
		})
		if err != nil {
			return fmt.Errorf("failed to open datastore: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("db", storage.DefaultConfig().Path, "SQLite database path")
	_ = viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindEnv("db", "RELCLEAN_DB")
}

func main() {
	// Single top-level trap: print the failure and exit non-zero. Failures
	// are deliberately never reported into the monitoring product this tool
	// is cleaning up; that would pollute the data being repaired.
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
