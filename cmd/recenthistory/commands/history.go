package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/recenthistory/am"
	"github.com/teranos/recenthistory/errors"
	"github.com/teranos/recenthistory/history"
	"github.com/teranos/recenthistory/history/stores"
	"github.com/teranos/recenthistory/history/view"
	"github.com/teranos/recenthistory/internal/util"
	"github.com/teranos/recenthistory/logger"
	"github.com/teranos/recenthistory/sym"
)

// HistoryCmd groups the execution history commands
var HistoryCmd = &cobra.Command{
	Use:   "history",
	Short: sym.AT + " Inspect and maintain recorded execution history",
	Long: sym.AT + ` Inspect and maintain the execution history of the configured scheduler.

The store is opened from the history and database sections of am.toml.
The memory store only lives inside a running scheduler, so these commands
are useful with the sqlite and postgres stores.

Examples:
  recenthistory history ls                  # Last 100 executions, newest first
  recenthistory history ls --by job -l 5    # Last 5 executions of every job
  recenthistory history stats               # Executed and failed totals
  recenthistory history purge               # Apply retention now
  recenthistory history clear --yes         # Delete all history of this scheduler`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var historyLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recent executions",
	RunE:  runHistoryLs,
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show executed and failed totals",
	RunE:  runHistoryStats,
}

var historyPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Apply the retention policy now",
	RunE:  runHistoryPurge,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all entries and counters of the scheduler",
	RunE:  runHistoryClear,
}

// Output formats for history commands.
const (
	formatTable = "table"
	formatJSON  = "json"
)

func init() {
	HistoryCmd.PersistentFlags().String("scheduler", "", "Scheduler name (default: scheduler.name)")

	historyLsCmd.Flags().IntP("limit", "l", view.RecentSize, "Maximum executions (per job or trigger with --by)")
	historyLsCmd.Flags().String("by", "", "Group by job or trigger")
	historyLsCmd.Flags().StringP("format", "f", formatTable, "Output format: table, json")
	historyStatsCmd.Flags().StringP("format", "f", formatTable, "Output format: table, json")
	historyClearCmd.Flags().Bool("yes", false, "Confirm deletion")

	HistoryCmd.AddCommand(historyLsCmd)
	HistoryCmd.AddCommand(historyStatsCmd)
	HistoryCmd.AddCommand(historyPurgeCmd)
	HistoryCmd.AddCommand(historyClearCmd)
}

// openHistoryStore opens the configured store bound to the scheduler name.
// The returned func releases it.
func openHistoryStore(cmd *cobra.Command) (history.Store, func(), error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load config")
	}
	if !cfg.History.Enabled() {
		return nil, nil, errors.WithHint(
			errors.Wrap(errors.ErrNotConfigured, "history is disabled"),
			"set history.store in am.toml")
	}

	log := logger.ComponentLogger("history")
	opts := cfg.HistoryOptions()
	opts.BackgroundPurge = false
	opts.Logger = log

	store, err := stores.Default(log).Create(cmd.Context(), cfg.History.Store, opts)
	if err != nil {
		return nil, nil, err
	}

	name, _ := cmd.Flags().GetString("scheduler")
	if name == "" {
		name = cfg.Scheduler.Name
	}
	store.SetSchedulerName(name)

	return store, func() {
		if err := history.Close(store); err != nil {
			log.Warnw("Failed to close history store", logger.FieldError, err)
		}
	}, nil
}

func runHistoryLs(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	by, _ := cmd.Flags().GetString("by")
	format, _ := cmd.Flags().GetString("format")
	if err := checkFormat(format); err != nil {
		return err
	}

	store, closeStore, err := openHistoryStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	rows, err := listRows(cmd.Context(), store, by, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format == formatJSON {
		return writeJSON(out, rows)
	}
	writeRows(out, rows)
	return nil
}

// listRows returns newest-first rows, or rows grouped by key with each
// group newest first when by is set.
func listRows(ctx context.Context, store history.Store, by string, limit int) ([]view.Row, error) {
	var (
		entries []*history.Entry
		err     error
	)
	switch strings.ToLower(by) {
	case "":
		entries, err = store.FilterLast(ctx, limit)
	case "job":
		entries, err = store.FilterLastOfEveryJob(ctx, limit)
	case "trigger":
		entries, err = store.FilterLastOfEveryTrigger(ctx, limit)
	default:
		return nil, errors.NewInvalidRequestError("--by must be job or trigger, got %q", by)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read history")
	}

	now := time.Now()
	rows := make([]view.Row, 0, len(entries))
	// Groups arrive oldest first; flip each group, keep group order.
	key := groupKey(by)
	for start := 0; start < len(entries); {
		end := start + 1
		for end < len(entries) && key(entries[end]) == key(entries[start]) {
			end++
		}
		for i := end - 1; i >= start; i-- {
			rows = append(rows, view.NewRow(entries[i], now))
		}
		start = end
	}
	return rows, nil
}

func groupKey(by string) history.KeyFunc {
	switch strings.ToLower(by) {
	case "job":
		return history.ByJob
	case "trigger":
		return history.ByTrigger
	}
	return func(*history.Entry) string { return "" }
}

func writeRows(out io.Writer, rows []view.Row) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "No executions recorded")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FIRED (UTC)\tJOB\tTRIGGER\tSTATE\tDURATION\tERROR")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s.%s\t%s.%s\t%s\t%s\t%s\n",
			r.ActualFireTime, r.JobGroup, r.JobName, r.TriggerGroup, r.TriggerName,
			r.State, r.Duration, util.Truncate(firstLine(r.Error), errorWidth))
	}
	w.Flush()
}

// errorWidth caps the error column of the ls table.
const errorWidth = 80

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// Stats is the output of history stats.
type Stats struct {
	Scheduler string             `json:"scheduler"`
	Executed  int                `json:"executed"`
	Failed    int                `json:"failed"`
	Recent    map[view.State]int `json:"recent"`
}

func runHistoryStats(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if err := checkFormat(format); err != nil {
		return err
	}

	store, closeStore, err := openHistoryStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	hctx := history.NewContext()
	hctx.SetStore(store)
	reader := view.NewReader(hctx)

	ctx := cmd.Context()
	overview, err := reader.Overview(ctx)
	if err != nil {
		return err
	}
	recent, err := reader.Recent(ctx)
	if err != nil {
		return err
	}

	stats := Stats{
		Scheduler: store.SchedulerName(),
		Executed:  overview.Executed,
		Failed:    overview.Failed,
		Recent:    map[view.State]int{},
	}
	for _, r := range recent.Rows {
		stats.Recent[r.State]++
	}

	out := cmd.OutOrStdout()
	if format == formatJSON {
		return writeJSON(out, stats)
	}
	fmt.Fprintf(out, "Scheduler: %s\n", stats.Scheduler)
	fmt.Fprintf(out, "Executed:  %s\n", counter(stats.Executed))
	fmt.Fprintf(out, "Failed:    %s\n", counter(stats.Failed))
	fmt.Fprintf(out, "Recent:    %d finished, %d failed, %d running, %d vetoed\n",
		stats.Recent[view.StateFinished], stats.Recent[view.StateFailed],
		stats.Recent[view.StateRunning], stats.Recent[view.StateVetoed])
	return nil
}

func counter(v int) string {
	if v == history.CounterOverflow {
		return "overflow"
	}
	return fmt.Sprint(v)
}

func runHistoryPurge(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openHistoryStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Purge(cmd.Context()); err != nil {
		return errors.Wrap(err, "failed to purge history")
	}
	pterm.Success.WithWriter(cmd.OutOrStdout()).Println("History purged")
	return nil
}

// schedulerDataClearer is implemented by stores that can drop all data of
// their scheduler.
type schedulerDataClearer interface {
	ClearSchedulerData(ctx context.Context) error
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return errors.WithHint(
			errors.NewInvalidRequestError("refusing to delete history without confirmation"),
			"re-run with --yes")
	}

	store, closeStore, err := openHistoryStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	clearer, ok := store.(schedulerDataClearer)
	if !ok {
		return errors.NewInvalidRequestError("the configured history store does not support clear")
	}
	if err := clearer.ClearSchedulerData(cmd.Context()); err != nil {
		return err
	}
	pterm.Success.WithWriter(cmd.OutOrStdout()).Printfln("History of %s cleared", store.SchedulerName())
	return nil
}

func checkFormat(format string) error {
	if format != formatTable && format != formatJSON {
		return errors.NewInvalidRequestError("unsupported format: %s (supported: table, json)", format)
	}
	return nil
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}
