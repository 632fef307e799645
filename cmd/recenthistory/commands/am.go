package commands

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/recenthistory/am"
	"github.com/teranos/recenthistory/errors"
	"github.com/teranos/recenthistory/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.AM + " Manage recenthistory configuration",
	Long: sym.AM + ` am — Manage recenthistory configuration ("I am")

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (RECENTHISTORY_* prefix)
3. Project config (./am.toml, searching up directories)
4. User config (~/.recenthistory/am.toml)
5. System config (/etc/recenthistory/am.toml)
6. Default values

Examples:
  recenthistory am show                  # Show current configuration
  recenthistory am show --format json    # Show configuration in JSON format
  recenthistory am get history.store     # Get specific config value
  recenthistory am validate              # Validate current configuration`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective configuration from all sources",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., history.store, database.path)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show which configuration files are read",
	RunE:  runAmWhere,
}

func init() {
	amShowCmd.Flags().StringP("format", "f", am.FormatTOML, "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	format, _ := cmd.Flags().GetString("format")
	data, err := cfg.Render(format)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	if !am.GetViper().IsSet(key) {
		return errors.NewNotFoundError("configuration key %q", key)
	}
	fmt.Fprintln(cmd.OutOrStdout(), am.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}

	out := cmd.OutOrStdout()
	for _, path := range am.ConfigPaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		keys, err := am.UnknownKeys(path)
		if err != nil {
			return err
		}
		for _, key := range keys {
			pterm.Warning.WithWriter(out).Printfln("%s: unknown key %s", path, key)
		}
	}
	pterm.Success.WithWriter(out).Println("Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Configuration cascade (later overrides earlier):")
	fmt.Fprintln(out, "  [DEFAULT]  Built-in defaults")
	for _, path := range am.ConfigPaths() {
		status := "missing"
		if _, err := os.Stat(path); err == nil {
			status = "found"
		}
		fmt.Fprintf(out, "  [FILE]     %s (%s)\n", path, status)
	}
	fmt.Fprintf(out, "  [ENV]      %s_* environment variables\n", am.EnvPrefix)
	return nil
}
