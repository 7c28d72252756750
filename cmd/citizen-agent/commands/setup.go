package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lcarli/Citizen-Agent-CLI/pkg/config"
)

func newSetupCommand() *cobra.Command {
	var (
		flags         config.SetupConfig
		metricsAddr   string
		traceEndpoint string
	)

	cmd := &cobra.Command{
		Use:     "setup",
		Aliases: []string{"all"},
		Short:   "Run the full provisioning sequence",
		Long: `Run every provisioning phase in order:

  1. authenticate against the tenant
  2. find or create the blueprint app registration and its client secret
  3. find or create the agent identity (service principal)
  4. find or create the agent directory user
  5. find or create the delegated permission grant
  6. assign the product license (skipped without --license-sku)
  7. assign the Foundry RBAC role (skipped without --foundry-resource-id)
  8. create the mail webhook subscription (skipped without --webhook-url)

Every phase is idempotent: resources are found by name before anything is
created, so the command can be rerun after a failure.`,
		Example: `  # Full setup with client credentials
  citizen-agent setup --tenant-id t --client-id c --client-secret s \
    --blueprint-name "Agent Blueprint" --identity-name "Agent" \
    --user-upn agent@contoso.com --license-sku SKU_ID

  # Interactive device-code login, minimal phases
  citizen-agent setup --interactive --tenant-id t \
    --blueprint-name "Agent Blueprint" --identity-name "Agent" \
    --user-upn agent@contoso.com --skip-foundry`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			rt, err := newRuntime(ctx, cfg, runtimeOptions{
				metricsAddr:   metricsAddr,
				traceEndpoint: traceEndpoint,
			})
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			out, err := rt.seq.Run(ctx)
			if err != nil {
				rt.reportFailure(err)
				return err
			}

			logger := rt.tel.Logger.Zerolog()
			logger.Info().
				Str("output", cfg.OutputPath).
				Msg("Provisioning completed")
			fmt.Printf("Setup complete. Blueprint appId=%s identity=%s user=%s\n",
				out.Blueprint.AppID, out.AgentIdentity.ID, out.AgentUser.UPN)
			fmt.Printf("Details written to %s\n", cfg.OutputPath)
			return nil
		},
	}

	addConfigFlags(cmd, &flags)
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	cmd.Flags().StringVar(&traceEndpoint, "trace-endpoint", "", "export OTLP traces to this collector endpoint")

	return cmd
}

// addConfigFlags registers the shared provisioning flags on a command.
func addConfigFlags(cmd *cobra.Command, flags *config.SetupConfig) {
	cmd.Flags().StringVar(&flags.TenantID, "tenant-id", "", "directory tenant ID")
	cmd.Flags().StringVar(&flags.ClientID, "client-id", "", "orchestrator application (client) ID")
	cmd.Flags().StringVar(&flags.ClientSecret, "client-secret", "", "orchestrator client secret")
	cmd.Flags().BoolVar(&flags.Interactive, "interactive", false, "use the device-code login instead of client credentials")
	cmd.Flags().StringVar(&flags.BlueprintName, "blueprint-name", "", "display name of the blueprint app registration")
	cmd.Flags().StringVar(&flags.IdentityName, "identity-name", "", "display name of the agent identity")
	cmd.Flags().StringVar(&flags.UserPrincipalName, "user-upn", "", "user principal name of the agent user")
	cmd.Flags().StringVar(&flags.UserDisplayName, "user-display-name", "", "display name of the agent user (defaults to the identity name)")
	cmd.Flags().StringVar(&flags.GrantScope, "grant-scope", "", "delegated permission scopes, space separated")
	cmd.Flags().StringVar(&flags.LicenseSKU, "license-sku", "", "license SKU ID to assign to the agent user")
	cmd.Flags().StringVar(&flags.FoundryResourceID, "foundry-resource-id", "", "Azure resource ID of the AI Foundry resource")
	cmd.Flags().StringVar(&flags.FoundryRole, "foundry-role", "", "RBAC role to assign on the Foundry resource")
	cmd.Flags().BoolVar(&flags.SkipFoundry, "skip-foundry", false, "skip the Foundry role assignment phase")
	cmd.Flags().StringVar(&flags.WebhookURL, "webhook-url", "", "HTTPS endpoint for mail change notifications")
	cmd.Flags().BoolVar(&flags.SkipWebhook, "skip-webhook", false, "skip the webhook subscription phase")
	cmd.Flags().StringVarP(&flags.OutputPath, "output", "o", "", "path of the setup output document")
}
