package commands

import (
	"github.com/spf13/cobra"

	"github.com/lcarli/Citizen-Agent-CLI/pkg/config"
	"github.com/lcarli/Citizen-Agent-CLI/pkg/provision"
)

func newIdentityCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage the agent identity",
	}
	cmd.AddCommand(newIdentityCreateCommand())
	return cmd
}

func newIdentityCreateCommand() *cobra.Command {
	var (
		flags           config.SetupConfig
		blueprintSecret string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Provision only the agent identity",
		Long: `Find or create the agent identity (service principal). The blueprint
app must already exist; creation authenticates as the blueprint itself,
so a standalone run needs the blueprint's client secret via
--blueprint-secret.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSinglePhase(cmd, flags, provision.PhaseAgentIdentity, blueprintSecret)
		},
	}

	addConfigFlags(cmd, &flags)
	cmd.Flags().StringVar(&blueprintSecret, "blueprint-secret", "", "client secret of the existing blueprint app")
	return cmd
}
