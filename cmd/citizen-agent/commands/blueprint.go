package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lcarli/Citizen-Agent-CLI/pkg/config"
	"github.com/lcarli/Citizen-Agent-CLI/pkg/provision"
)

func newBlueprintCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blueprint",
		Short: "Manage the blueprint app registration",
	}
	cmd.AddCommand(newBlueprintCreateCommand())
	return cmd
}

func newBlueprintCreateCommand() *cobra.Command {
	var flags config.SetupConfig

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Provision only the blueprint app registration",
		Long: `Find or create the blueprint app registration, attach its identifier
URI, and mint a client secret when the app is created in this run. A
pre-existing app is reused as-is; its secret cannot be recovered.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSinglePhase(cmd, flags, provision.PhaseBlueprint, "")
		},
	}

	addConfigFlags(cmd, &flags)
	return cmd
}

// runSinglePhase wires a runtime and executes one phase standalone.
func runSinglePhase(cmd *cobra.Command, flags config.SetupConfig, phase, blueprintSecret string) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := newRuntime(ctx, cfg, runtimeOptions{blueprintSecret: blueprintSecret})
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	if err := rt.seq.RunSinglePhase(ctx, phase); err != nil {
		rt.reportFailure(err)
		return err
	}
	fmt.Printf("Phase %s complete. Details written to %s\n", phase, cfg.OutputPath)
	return nil
}
