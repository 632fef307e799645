package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/recenthistory/cmd/recenthistory/commands"
	"github.com/teranos/recenthistory/errors"
	"github.com/teranos/recenthistory/logger"
)

var rootCmd = &cobra.Command{
	Use:   "recenthistory",
	Short: "Cron scheduler that keeps a bounded window of recent job executions",
	Long: `recenthistory runs cron-scheduled jobs and records every firing in a
bounded execution history (in memory, SQLite or PostgreSQL).

Available commands:
  run      - Start the scheduler with the configured jobs
  history  - Inspect and maintain recorded execution history
  am       - Manage configuration ("I am")
  version  - Show version information

Examples:
  recenthistory run                     # Run scheduler in foreground
  recenthistory history ls --limit 20   # Last 20 executions
  recenthistory history stats           # Executed and failed totals
  recenthistory am show --format json   # Effective configuration`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.HistoryCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := errors.FlattenHints(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}
