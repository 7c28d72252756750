package commands

import (
	"github.com/spf13/cobra"

	"github.com/lcarli/Citizen-Agent-CLI/pkg/config"
	"github.com/lcarli/Citizen-Agent-CLI/pkg/provision"
)

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage the agent directory user",
	}
	cmd.AddCommand(newUserCreateCommand())
	return cmd
}

func newUserCreateCommand() *cobra.Command {
	var flags config.SetupConfig

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Provision only the agent directory user",
		Long: `Find or create the agent's directory user. When the agent identity
already exists it is linked via an extension attribute; otherwise the
user is created unlinked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSinglePhase(cmd, flags, provision.PhaseAgentUser, "")
		},
	}

	addConfigFlags(cmd, &flags)
	return cmd
}
