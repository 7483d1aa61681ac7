package cmd

import (
	"fmt"
	"os"

	"github.com/handleui/buildlens/apps/cli/internal/update"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var noUpdateCheck bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and check for updates",
	RunE:  runVersion,
}

func init() {
	versionCmd.Flags().BoolVar(&noUpdateCheck, "no-check", false, "skip the update check")
}

func runVersion(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(w, "buildlens v%s\n", Version)

	if noUpdateCheck || os.Getenv("BUILDLENS_NO_UPDATE_CHECK") == "1" {
		return nil
	}
	if latest, ok := update.NewChecker().Check(cmd.Context(), Version); ok {
		_, _ = fmt.Fprintf(w, "%s %s available: %s\n",
			warnStyle.Render("⬆"), latest, contextStyle.Render(update.InstallHint))
	}
	return nil
}
