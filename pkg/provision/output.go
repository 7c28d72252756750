package provision

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// BlueprintOutput is the blueprint section of the setup output.
type BlueprintOutput struct {
	AppID              string `json:"appId,omitempty"`
	ObjectID           string `json:"objectId,omitempty"`
	ServicePrincipalID string `json:"servicePrincipalId,omitempty"`
	ClientSecret       string `json:"clientSecret,omitempty"`
	SecretExpiry       string `json:"secretExpiry,omitempty"`
}

// AgentIdentityOutput is the agent identity section of the setup output.
type AgentIdentityOutput struct {
	ID string `json:"id,omitempty"`
}

// AgentUserOutput is the agent user section of the setup output.
type AgentUserOutput struct {
	ID  string `json:"id,omitempty"`
	UPN string `json:"upn,omitempty"`
}

// PermissionsOutput is the permissions section of the setup output.
type PermissionsOutput struct {
	OAuth2GrantID  string `json:"oauth2GrantId,omitempty"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
}

// SetupOutput is the aggregate result document: every phase appends to it
// and it is the unit of persistence and resumability. A rerun's finders
// rediscover the same resources by name; the document is the operator
// hand-off artifact.
type SetupOutput struct {
	TenantID      string              `json:"tenantId"`
	GeneratedAt   time.Time           `json:"generatedAt"`
	Blueprint     BlueprintOutput     `json:"blueprint"`
	AgentIdentity AgentIdentityOutput `json:"agentIdentity"`
	AgentUser     AgentUserOutput     `json:"agentUser"`
	Permissions   PermissionsOutput   `json:"permissions"`
	FoundryRole   string              `json:"foundryRoleAssignment,omitempty"`
}

// OutputRecorder accumulates phase results and persists them after every
// merge, so a crash mid-run still leaves a partial, useful document.
type OutputRecorder struct {
	path   string
	output SetupOutput
}

// NewOutputRecorder creates a recorder writing to path.
func NewOutputRecorder(path, tenantID string) *OutputRecorder {
	return &OutputRecorder{
		path: path,
		output: SetupOutput{
			TenantID:    tenantID,
			GeneratedAt: time.Now().UTC(),
		},
	}
}

// Output returns the accumulated document.
func (r *OutputRecorder) Output() *SetupOutput {
	return &r.output
}

// RecordBlueprint merges the blueprint phase result. The secret is empty
// when the app pre-existed.
func (r *OutputRecorder) RecordBlueprint(app *BlueprintApp, secret *ClientSecret) error {
	r.output.Blueprint.AppID = app.AppID
	r.output.Blueprint.ObjectID = app.ObjectID
	if secret != nil {
		r.output.Blueprint.ClientSecret = secret.SecretText
		if !secret.Expiry.IsZero() {
			r.output.Blueprint.SecretExpiry = secret.Expiry.UTC().Format(time.RFC3339)
		}
	}
	return r.Flush()
}

// RecordAgentIdentity merges the identity phase result. The identity is the
// blueprint's service principal, so both sections reference it.
func (r *OutputRecorder) RecordAgentIdentity(identity *AgentIdentity) error {
	r.output.AgentIdentity.ID = identity.ObjectID
	r.output.Blueprint.ServicePrincipalID = identity.ObjectID
	return r.Flush()
}

// RecordAgentUser merges the user phase result.
func (r *OutputRecorder) RecordAgentUser(user *AgentUser) error {
	r.output.AgentUser.ID = user.ObjectID
	r.output.AgentUser.UPN = user.UserPrincipalName
	return r.Flush()
}

// RecordPermissionGrant merges the grant phase result.
func (r *OutputRecorder) RecordPermissionGrant(grant *PermissionGrant) error {
	r.output.Permissions.OAuth2GrantID = grant.ObjectID
	return r.Flush()
}

// RecordSubscription merges the webhook phase result.
func (r *OutputRecorder) RecordSubscription(subscriptionID string) error {
	r.output.Permissions.SubscriptionID = subscriptionID
	return r.Flush()
}

// RecordFoundryRole merges the RBAC phase result.
func (r *OutputRecorder) RecordFoundryRole(role string) error {
	r.output.FoundryRole = role
	return r.Flush()
}

// Flush writes the document atomically: a temp file rename, so a crash
// during a write never leaves a truncated document behind.
func (r *OutputRecorder) Flush() error {
	data, err := json.MarshalIndent(r.output, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal setup output: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".setup-output-*")
	if err != nil {
		return fmt.Errorf("failed to create temp output file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write setup output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close setup output: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to persist setup output: %w", err)
	}
	return nil
}
