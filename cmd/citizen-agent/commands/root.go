package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// DefaultSettingsPath is the settings file consulted when --config is not
// given.
const DefaultSettingsPath = ".citizen-agent.env"

var (
	// Global flags
	settingsPath string
	verbose      bool
	logFilePath  string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "citizen-agent",
		Short: "Citizen Agent CLI - provision agent identities in a directory tenant",
		Long: `Citizen Agent CLI provisions everything an autonomous agent needs to act
inside a directory tenant: the blueprint app registration, the agent's
service principal identity, a linked directory user, delegated permission
grants, a product license, and optionally an RBAC role on an AI Foundry
resource plus a mail change-notification webhook.

Runs are idempotent: every phase finds existing resources by name before
creating anything, so a failed run can simply be repeated.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&settingsPath, "config", "c", DefaultSettingsPath, "settings file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&logFilePath, "log-file", "", "also write JSON logs to this file")

	// Add subcommands
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newSetupCommand())
	rootCmd.AddCommand(newBlueprintCommand())
	rootCmd.AddCommand(newIdentityCommand())
	rootCmd.AddCommand(newUserCommand())
	rootCmd.AddCommand(newPermissionsCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
