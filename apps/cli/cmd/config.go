package cmd

import (
	"fmt"
	"strings"

	"github.com/handleui/buildlens/apps/cli/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage buildlens configuration",
	Long: `View and change the global buildlens configuration.

Settings:
  api-key        Anthropic API key for ask-for-help
  model          Claude model for ask-for-help
  ask-for-help   Attach ask-for-help fixes to errors (true/false)
  timeout        Maximum time per ask-for-help request
  log-level      debug, info, warn or error

Environment variables override the file: ANTHROPIC_API_KEY and
BUILDLENS_LOG_LEVEL. A .buildlens.yaml in the project can set workspace,
disable_parsers, ask_for_help and tag_separator.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE:  runConfigPath,
}

var configSetCmd = &cobra.Command{
	Use:       "set <key> <value>",
	Short:     "Change a setting",
	Args:      cobra.ExactArgs(2),
	ValidArgs: config.Keys,
	RunE:      runConfigSet,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configSetCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg := appConfig
	w := cmd.OutOrStdout()

	apiKey := config.MaskAPIKey(cfg.APIKey.Value)
	if apiKey == "" {
		apiKey = "(not set)"
	}

	rows := []struct {
		key, value string
		source     config.ValueSource
	}{
		{"api-key", apiKey, cfg.APIKey.Source},
		{"model", cfg.Model.Value, cfg.Model.Source},
		{"ask-for-help", fmt.Sprint(cfg.AskForHelp.Value), cfg.AskForHelp.Source},
		{"timeout", cfg.Timeout.Value.String(), cfg.Timeout.Source},
		{"log-level", cfg.LogLevel.Value, cfg.LogLevel.Source},
	}
	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "%-14s %-28s %s\n", r.key, r.value, contextStyle.Render("("+r.source.String()+")"))
	}

	if p := cfg.Project; p != nil && p.Path != "" {
		_, _ = fmt.Fprintf(w, "\nproject %s\n", p.Path)
		if p.Workspace != "" {
			_, _ = fmt.Fprintf(w, "  workspace       %s\n", p.Workspace)
		}
		if len(p.DisableParsers) > 0 {
			_, _ = fmt.Fprintf(w, "  disable_parsers %s\n", strings.Join(p.DisableParsers, ", "))
		}
		if p.TagSeparator != "" {
			_, _ = fmt.Fprintf(w, "  tag_separator   %q\n", p.TagSeparator)
		}
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	path, err := config.Path()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if err := appConfig.Set(args[0], args[1]); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s updated\n", args[0])
	return nil
}
