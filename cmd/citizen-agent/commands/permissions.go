package commands

import (
	"github.com/spf13/cobra"

	"github.com/lcarli/Citizen-Agent-CLI/pkg/config"
	"github.com/lcarli/Citizen-Agent-CLI/pkg/provision"
)

func newPermissionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Manage the delegated permission grant",
	}
	cmd.AddCommand(newPermissionsGrantCommand())
	return cmd
}

func newPermissionsGrantCommand() *cobra.Command {
	var flags config.SetupConfig

	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Provision only the delegated permission grant",
		Long: `Find or create the OAuth2 permission grant binding the agent identity
to the directory API for the agent user. The identity and user must
already exist.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSinglePhase(cmd, flags, provision.PhasePermissionGrant, "")
		},
	}

	addConfigFlags(cmd, &flags)
	return cmd
}
