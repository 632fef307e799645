package commands

import (
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/recenthistory/am"
	"github.com/teranos/recenthistory/errors"
	"github.com/teranos/recenthistory/internal/daemon"
	"github.com/teranos/recenthistory/logger"
	"github.com/teranos/recenthistory/sym"
)

// RunCmd starts the scheduler in the foreground
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: sym.Pulse + " Run the scheduler in the foreground",
	Long: sym.Pulse + ` Run the scheduler with the jobs from am.toml.

Every firing is recorded in the configured history store. The scheduler
runs until interrupted (Ctrl+C or SIGTERM), then waits for running jobs
up to scheduler.stop_timeout_seconds.

Example:
  recenthistory run
  recenthistory run --metrics 127.0.0.1:9464`,
	RunE: runScheduler,
}

func init() {
	RunCmd.Flags().String("metrics", "", "Serve Prometheus metrics on this address (overrides metrics.address)")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if addr, _ := cmd.Flags().GetString("metrics"); addr != "" {
		cfg.Metrics.Address = addr
	}

	d, err := daemon.New(cfg, logger.ComponentLogger("recenthistory"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pterm.Info.Printfln("Scheduler %s running %d jobs (history: %s)",
		cfg.Scheduler.Name, len(cfg.Scheduler.Jobs), historyLabel(cfg))
	if addr := d.MetricsAddr(); addr != "" {
		pterm.Info.Printfln("Metrics on http://%s/metrics", addr)
	}
	if err := d.Run(ctx); err != nil {
		return err
	}
	pterm.Success.Println("Scheduler stopped cleanly")
	return nil
}

func historyLabel(cfg *am.Config) string {
	if !cfg.History.Enabled() {
		return "disabled"
	}
	return cfg.History.Store
}

