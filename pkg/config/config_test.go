package config

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lcarli/Citizen-Agent-CLI/pkg/provision"
)

func validConfig() *SetupConfig {
	return &SetupConfig{
		TenantID:          "tenant-1",
		ClientID:          "client-1",
		ClientSecret:      "secret-1",
		BlueprintName:     "Acme-Blueprint",
		IdentityName:      "Acme-Agent",
		UserPrincipalName: "acme.agent@contoso.com",
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestValidate_ListsEveryMissingFlag(t *testing.T) {
	cfg := &SetupConfig{}
	err := cfg.Validate()

	var perr *provision.Error
	if !errors.As(err, &perr) {
		t.Fatalf("Expected classified error, got %v", err)
	}
	if perr.Class != provision.ClassConfiguration {
		t.Errorf("Expected configuration class, got %s", perr.Class)
	}

	for _, flag := range []string{
		"--tenant-id", "--client-id", "--client-secret",
		"--blueprint-name", "--identity-name", "--user-upn",
	} {
		if !strings.Contains(perr.Message, flag) {
			t.Errorf("Expected %s in the message, got %q", flag, perr.Message)
		}
	}
}

func TestValidate_InteractiveSkipsCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.ClientID = ""
	cfg.ClientSecret = ""
	cfg.Interactive = true

	if err := cfg.Validate(); err != nil {
		t.Errorf("Interactive mode must not require credentials, got %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.env")

	cfg := validConfig()
	cfg.LicenseSKU = "sku-123"
	cfg.WebhookURL = "https://hooks.contoso.com/agent"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.TenantID != cfg.TenantID {
		t.Errorf("TenantID: expected %q, got %q", cfg.TenantID, loaded.TenantID)
	}
	if loaded.BlueprintName != cfg.BlueprintName {
		t.Errorf("BlueprintName: expected %q, got %q", cfg.BlueprintName, loaded.BlueprintName)
	}
	if loaded.LicenseSKU != "sku-123" {
		t.Errorf("LicenseSKU: expected sku-123, got %q", loaded.LicenseSKU)
	}
	if loaded.WebhookURL != cfg.WebhookURL {
		t.Errorf("WebhookURL: expected %q, got %q", cfg.WebhookURL, loaded.WebhookURL)
	}
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	if err != nil {
		t.Fatalf("Missing file must not fail, got %v", err)
	}
	if cfg.TenantID != "" {
		t.Errorf("Expected empty config, got %+v", cfg)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.env")
	cfg := validConfig()
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	t.Setenv("CITIZEN_AGENT_TENANT_ID", "tenant-env")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.TenantID != "tenant-env" {
		t.Errorf("Expected environment to win, got %q", loaded.TenantID)
	}
}

func TestMerge_FlagsWin(t *testing.T) {
	cfg := validConfig()
	cfg.Merge(SetupConfig{TenantID: "tenant-flag", SkipWebhook: true})

	if cfg.TenantID != "tenant-flag" {
		t.Errorf("Expected flag override, got %q", cfg.TenantID)
	}
	if !cfg.SkipWebhook {
		t.Error("Expected SkipWebhook set")
	}
	if cfg.BlueprintName != "Acme-Blueprint" {
		t.Errorf("Unset flags must not clobber, got %q", cfg.BlueprintName)
	}
}

func TestDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.Defaults()

	if cfg.OutputPath != DefaultOutputPath {
		t.Errorf("Expected default output path, got %q", cfg.OutputPath)
	}
	if cfg.FoundryRole != DefaultFoundryRole {
		t.Errorf("Expected default foundry role, got %q", cfg.FoundryRole)
	}
	if cfg.UserDisplayName != cfg.IdentityName {
		t.Errorf("Expected user display name to default to identity name, got %q", cfg.UserDisplayName)
	}
}
