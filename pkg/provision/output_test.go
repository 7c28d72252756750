package provision

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOutputRecorderFlushesEveryMerge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setup.json")
	rec := NewOutputRecorder(path, "tenant-1")

	err := rec.RecordBlueprint(
		&BlueprintApp{ObjectID: "app-oid", AppID: "app-client-id"},
		&ClientSecret{SecretText: "s3cret", Expiry: time.Date(2027, 8, 29, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("RecordBlueprint() error = %v", err)
	}

	// Already on disk before any later phase runs.
	var partial SetupOutput
	readOutput(t, path, &partial)
	if partial.Blueprint.AppID != "app-client-id" || partial.Blueprint.ClientSecret != "s3cret" {
		t.Errorf("partial document = %+v", partial.Blueprint)
	}
	if partial.Blueprint.SecretExpiry != "2027-08-29T00:00:00Z" {
		t.Errorf("SecretExpiry = %q", partial.Blueprint.SecretExpiry)
	}

	if err := rec.RecordAgentIdentity(&AgentIdentity{ObjectID: "sp-oid"}); err != nil {
		t.Fatalf("RecordAgentIdentity() error = %v", err)
	}
	var merged SetupOutput
	readOutput(t, path, &merged)
	if merged.AgentIdentity.ID != "sp-oid" {
		t.Errorf("AgentIdentity.ID = %q, want sp-oid", merged.AgentIdentity.ID)
	}
	if merged.Blueprint.ServicePrincipalID != "sp-oid" {
		t.Errorf("ServicePrincipalID = %q, want sp-oid", merged.Blueprint.ServicePrincipalID)
	}
	if merged.Blueprint.AppID != "app-client-id" {
		t.Errorf("earlier sections lost across merges: %+v", merged.Blueprint)
	}
}

func TestOutputRecorderPreexistingAppOmitsSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setup.json")
	rec := NewOutputRecorder(path, "tenant-1")

	if err := rec.RecordBlueprint(&BlueprintApp{ObjectID: "app-oid", AppID: "app-client-id"}, nil); err != nil {
		t.Fatalf("RecordBlueprint() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	var blueprint map[string]any
	if err := json.Unmarshal(raw["blueprint"], &blueprint); err != nil {
		t.Fatalf("decoding blueprint section: %v", err)
	}
	if _, ok := blueprint["clientSecret"]; ok {
		t.Error("clientSecret serialized for a pre-existing app")
	}
}

func TestOutputRecorderLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	rec := NewOutputRecorder(filepath.Join(dir, "setup.json"), "tenant-1")
	if err := rec.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "setup.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory contents = %v, want only setup.json", names)
	}
}

func readOutput(t *testing.T, path string, out *SetupOutput) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decoding output: %v", err)
	}
}
