package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lcarli/Citizen-Agent-CLI/pkg/config"
)

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a settings file interactively",
		Long: `Walk through the provisioning settings and write them to a settings
file, so later runs only need 'citizen-agent setup'. Secrets entered here
are stored in the file; keep it out of version control.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(cmd.InOrStdin())
			ask := func(prompt, def string) string {
				if def != "" {
					fmt.Printf("%s [%s]: ", prompt, def)
				} else {
					fmt.Printf("%s: ", prompt)
				}
				line, _ := reader.ReadString('\n')
				line = strings.TrimSpace(line)
				if line == "" {
					return def
				}
				return line
			}

			cfg := config.SetupConfig{}
			cfg.TenantID = ask("Tenant ID", "")
			interactive := ask("Use device-code login instead of client credentials? (y/N)", "n")
			cfg.Interactive = strings.EqualFold(interactive, "y") || strings.EqualFold(interactive, "yes")
			if !cfg.Interactive {
				cfg.ClientID = ask("Client ID", "")
				cfg.ClientSecret = ask("Client secret", "")
			}
			cfg.BlueprintName = ask("Blueprint app display name", "")
			cfg.IdentityName = ask("Agent identity display name", cfg.BlueprintName)
			cfg.UserPrincipalName = ask("Agent user principal name", "")
			cfg.LicenseSKU = ask("License SKU ID (empty to skip licensing)", "")
			cfg.FoundryResourceID = ask("Foundry resource ID (empty to skip role assignment)", "")
			if cfg.FoundryResourceID != "" {
				cfg.FoundryRole = ask("Foundry role", config.DefaultFoundryRole)
			}
			cfg.WebhookURL = ask("Webhook notification URL (empty to skip)", "")
			cfg.OutputPath = ask("Setup output path", config.DefaultOutputPath)

			cfg.Defaults()
			if err := cfg.Validate(); err != nil {
				return err
			}

			if _, err := os.Stat(settingsPath); err == nil {
				overwrite := ask(fmt.Sprintf("%s exists, overwrite? (y/N)", settingsPath), "n")
				if !strings.EqualFold(overwrite, "y") && !strings.EqualFold(overwrite, "yes") {
					fmt.Println("Aborted.")
					return nil
				}
			}

			if err := cfg.Save(settingsPath); err != nil {
				return fmt.Errorf("failed to write settings file: %w", err)
			}
			fmt.Printf("Settings written to %s\n", settingsPath)
			return nil
		},
	}

	return cmd
}
