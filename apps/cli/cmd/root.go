package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/handleui/buildlens/apps/cli/internal/config"
	"github.com/handleui/buildlens/apps/cli/internal/logging"
	"github.com/handleui/buildlens/apps/cli/internal/signal"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const (
	brandingColor = "42"  // Green
	commandColor  = "15"  // Pure white for command name
	contextColor  = "241" // Gray
)

var (
	// Global flags shared across commands
	verbose   bool
	logFormat string
)

// appConfig holds the loaded configuration, available to all commands.
// Initialized in PersistentPreRunE.
var appConfig = config.Defaults()

// logger is configured from flags and config in PersistentPreRunE.
var logger = slog.New(slog.DiscardHandler)

var warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

var (
	brandingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(brandingColor))
	commandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(commandColor))
	contextStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(contextColor))
)

var rootCmd = &cobra.Command{
	Use:   "buildlens",
	Short: "Turn Gradle and Android build logs into structured diagnostics",
	Long: `buildlens reads the console output of Gradle builds, including the
interleaved output of parallel tasks, and reports every compiler error and
warning with its file, line and column.

Recognized output:
  - Java and Kotlin compilers, including deprecation notes
  - Android Gradle plugin (AGPBI) messages and data binding errors
  - Gradle failures, version catalogs and declarative build files
  - CMake, ndk-build and clang output of native builds

Tag lines as "<task>|<line>" to keep concurrent tasks apart.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		printBranding(cmd)

		wd, err := os.Getwd()
		if err != nil {
			wd = ""
		}
		cfg, configErr := config.Load(wd)
		if configErr != nil {
			if isConfigCommand(cmd) {
				return configErr
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n",
				warnStyle.Render("⚠"),
				contextStyle.Render(fmt.Sprintf("Config error: %v", configErr)))
			cfg = config.Defaults()
		}
		appConfig = cfg

		level, err := config.ParseLevel(cfg.LogLevel.Value)
		if err != nil {
			level = slog.LevelWarn
		}
		if verbose {
			level = slog.LevelDebug
		}
		l, err := logging.New(cmd.ErrOrStderr(), level, logFormat)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
}

// printBranding prints the version banner when stderr is a terminal.
func printBranding(cmd *cobra.Command) {
	if !isatty.IsTerminal(os.Stderr.Fd()) || cmd.ErrOrStderr() != os.Stderr {
		return
	}
	versionText := brandingStyle.Render(fmt.Sprintf("buildlens v%s", Version))
	commandText := commandStyle.Render(cmd.Name())
	_, _ = fmt.Fprintf(os.Stderr, "%s %s\n", versionText, commandText)
}

func isConfigCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c == configCmd {
			return true
		}
	}
	return false
}

// Execute runs the root command with signal handling
func Execute() error {
	ctx, stop := signal.Setup(context.Background())
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatText, "log format: text, json")

	rootCmd.SetHelpTemplate(fmt.Sprintf(`%s
{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}{{if or .Runnable .HasSubCommands}}{{.UsageString}}{{end}}`, brandingStyle.Render(fmt.Sprintf("buildlens v%s", Version))))
}
