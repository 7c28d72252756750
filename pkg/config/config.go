// Package config loads, merges and validates the Citizen Agent CLI
// configuration. Settings live in a flat key-value file; environment
// variables and command-line flags override it.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/lcarli/Citizen-Agent-CLI/pkg/provision"
)

// DefaultOutputPath is the default setup output document.
const DefaultOutputPath = "citizen-agent-setup.json"

// DefaultFoundryRole is the RBAC role assigned on the Foundry resource when
// none is configured.
const DefaultFoundryRole = "Azure AI User"

// SetupConfig is the full configuration for a provisioning run.
type SetupConfig struct {
	// TenantID is the directory tenant to provision into.
	TenantID string `validate:"required"`

	// ClientID and ClientSecret authenticate the orchestrator itself.
	// Required unless Interactive is set.
	ClientID     string `validate:"required_if=Interactive false"`
	ClientSecret string `validate:"required_if=Interactive false"`

	// Interactive selects the device-code login instead of client
	// credentials.
	Interactive bool

	// BlueprintName is the display name of the root app registration.
	BlueprintName string `validate:"required"`

	// IdentityName is the display name of the agent identity.
	IdentityName string `validate:"required"`

	// UserPrincipalName and UserDisplayName define the agent user.
	UserPrincipalName string `validate:"required"`
	UserDisplayName   string

	// GrantScope is the delegated permission scope for the OAuth2 grant.
	GrantScope string

	// LicenseSKU is the license SKU assigned to the agent user. Empty
	// skips the license phase with a warning.
	LicenseSKU string

	// FoundryResourceID and FoundryRole configure the optional RBAC
	// assignment. An empty resource ID skips the phase.
	FoundryResourceID string
	FoundryRole       string
	SkipFoundry       bool

	// WebhookURL configures the optional change-notification
	// subscription. Empty skips the phase.
	WebhookURL  string
	SkipWebhook bool

	// OutputPath is where the setup output document is written.
	OutputPath string
}

// Defaults fills unset optional fields.
func (c *SetupConfig) Defaults() {
	if c.OutputPath == "" {
		c.OutputPath = DefaultOutputPath
	}
	if c.FoundryRole == "" {
		c.FoundryRole = DefaultFoundryRole
	}
	if c.GrantScope == "" {
		c.GrantScope = "User.Read Mail.ReadWrite Mail.Send"
	}
	if c.UserDisplayName == "" {
		c.UserDisplayName = c.IdentityName
	}
}

// fieldFlag maps config keys to the CLI flag reported in validation
// failures.
var fieldFlag = map[string]string{
	"TenantID":          "--tenant-id",
	"ClientID":          "--client-id",
	"ClientSecret":      "--client-secret",
	"BlueprintName":     "--blueprint-name",
	"IdentityName":      "--identity-name",
	"UserPrincipalName": "--user-upn",
}

// Validate checks required fields and returns a configuration error listing
// every missing flag at once, so the operator fixes one invocation, not six.
func (c *SetupConfig) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	ok := false
	if verrs, ok = err.(validator.ValidationErrors); !ok {
		return provision.NewConfigurationError(err.Error())
	}

	var missing []string
	for _, fe := range verrs {
		if flag, known := fieldFlag[fe.Field()]; known {
			missing = append(missing, flag)
		} else {
			missing = append(missing, fe.Field())
		}
	}
	sort.Strings(missing)
	return provision.NewConfigurationError(
		fmt.Sprintf("missing required configuration: %s", strings.Join(missing, ", ")))
}

// Load reads the settings file at path and overlays process environment
// variables. A missing file is not an error: flags alone can carry a full
// configuration.
func Load(path string) (*SetupConfig, error) {
	values := map[string]string{}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			fileValues, err := godotenv.Read(path)
			if err != nil {
				return nil, provision.NewConfigurationError(
					fmt.Sprintf("failed to read settings file %s: %v", path, err))
			}
			values = fileValues
		}
	}

	cfg := &SetupConfig{}
	read := func(key string) string {
		if env, ok := os.LookupEnv("CITIZEN_AGENT_" + key); ok {
			return env
		}
		return values[key]
	}
	readBool := func(key string) bool {
		v, _ := strconv.ParseBool(read(key))
		return v
	}

	cfg.TenantID = read("TENANT_ID")
	cfg.ClientID = read("CLIENT_ID")
	cfg.ClientSecret = read("CLIENT_SECRET")
	cfg.Interactive = readBool("INTERACTIVE")
	cfg.BlueprintName = read("BLUEPRINT_NAME")
	cfg.IdentityName = read("IDENTITY_NAME")
	cfg.UserPrincipalName = read("USER_UPN")
	cfg.UserDisplayName = read("USER_DISPLAY_NAME")
	cfg.GrantScope = read("GRANT_SCOPE")
	cfg.LicenseSKU = read("LICENSE_SKU")
	cfg.FoundryResourceID = read("FOUNDRY_RESOURCE_ID")
	cfg.FoundryRole = read("FOUNDRY_ROLE")
	cfg.SkipFoundry = readBool("SKIP_FOUNDRY")
	cfg.WebhookURL = read("WEBHOOK_URL")
	cfg.SkipWebhook = readBool("SKIP_WEBHOOK")
	cfg.OutputPath = read("OUTPUT_PATH")

	return cfg, nil
}

// Save writes the configuration to a flat key-value settings file.
func (c *SetupConfig) Save(path string) error {
	values := map[string]string{
		"TENANT_ID":           c.TenantID,
		"CLIENT_ID":           c.ClientID,
		"CLIENT_SECRET":       c.ClientSecret,
		"INTERACTIVE":         strconv.FormatBool(c.Interactive),
		"BLUEPRINT_NAME":      c.BlueprintName,
		"IDENTITY_NAME":       c.IdentityName,
		"USER_UPN":            c.UserPrincipalName,
		"USER_DISPLAY_NAME":   c.UserDisplayName,
		"GRANT_SCOPE":         c.GrantScope,
		"LICENSE_SKU":         c.LicenseSKU,
		"FOUNDRY_RESOURCE_ID": c.FoundryResourceID,
		"FOUNDRY_ROLE":        c.FoundryRole,
		"WEBHOOK_URL":         c.WebhookURL,
		"OUTPUT_PATH":         c.OutputPath,
	}
	for k, v := range values {
		if v == "" {
			delete(values, k)
		}
	}
	return godotenv.Write(values, path)
}

// Merge overlays non-zero fields from other onto c. Commands use it to apply
// explicitly set flags over the file-and-environment configuration.
func (c *SetupConfig) Merge(other SetupConfig) {
	if other.TenantID != "" {
		c.TenantID = other.TenantID
	}
	if other.ClientID != "" {
		c.ClientID = other.ClientID
	}
	if other.ClientSecret != "" {
		c.ClientSecret = other.ClientSecret
	}
	if other.Interactive {
		c.Interactive = true
	}
	if other.BlueprintName != "" {
		c.BlueprintName = other.BlueprintName
	}
	if other.IdentityName != "" {
		c.IdentityName = other.IdentityName
	}
	if other.UserPrincipalName != "" {
		c.UserPrincipalName = other.UserPrincipalName
	}
	if other.UserDisplayName != "" {
		c.UserDisplayName = other.UserDisplayName
	}
	if other.GrantScope != "" {
		c.GrantScope = other.GrantScope
	}
	if other.LicenseSKU != "" {
		c.LicenseSKU = other.LicenseSKU
	}
	if other.FoundryResourceID != "" {
		c.FoundryResourceID = other.FoundryResourceID
	}
	if other.FoundryRole != "" {
		c.FoundryRole = other.FoundryRole
	}
	if other.SkipFoundry {
		c.SkipFoundry = true
	}
	if other.WebhookURL != "" {
		c.WebhookURL = other.WebhookURL
	}
	if other.SkipWebhook {
		c.SkipWebhook = true
	}
	if other.OutputPath != "" {
		c.OutputPath = other.OutputPath
	}
}
