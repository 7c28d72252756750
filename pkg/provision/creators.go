package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrBlueprintSecretUnavailable is the hard dependency gate of the identity
// phase: the agent identity is created by authenticating as the blueprint,
// which requires a secret minted in this run. A pre-existing blueprint has
// no retrievable secret (the directory never re-reveals one), so the run
// aborts instead of attempting a degraded path.
var ErrBlueprintSecretUnavailable = &Error{
	Class: ClassAuthentication,
	Code:  "BlueprintSecretUnavailable",
	Message: "no client secret available for the blueprint; the directory cannot " +
		"re-reveal a secret for a pre-existing application",
	Suggestions: []string{
		"delete the existing blueprint application and rerun setup",
		"or rotate a new secret on the application and run 'identity create' with it",
	},
}

// Permission sets required by each create operation, reported on 403.
var (
	permsApplication = []string{"Application.ReadWrite.All"}
	permsUser        = []string{"User.ReadWrite.All"}
	permsGrant       = []string{"DelegatedPermissionGrant.ReadWrite.All"}
	permsLicense     = []string{"User.ReadWrite.All", "Organization.Read.All"}
	permsWebhook     = []string{"Subscription.ReadWrite.All"}
)

// Creators implements the "create X" operations. Each create's own response
// is authoritative for the identifiers it returns; callers never re-find to
// confirm a create.
type Creators struct {
	dir     Directory
	auth    BlueprintAuthenticator
	factory DirectoryFactory
}

// NewCreators creates creators bound to a directory client. auth and
// factory serve the identity phase's credential hand-off.
func NewCreators(dir Directory, auth BlueprintAuthenticator, factory DirectoryFactory) *Creators {
	return &Creators{dir: dir, auth: auth, factory: factory}
}

// CreateBlueprintApp registers the root application.
func (c *Creators) CreateBlueprintApp(ctx context.Context, displayName string) (*BlueprintApp, error) {
	var created applicationResource
	err := c.dir.Post(ctx, "applications", applicationResource{
		DisplayName:    displayName,
		SignInAudience: "AzureADMyOrg",
	}, &created)
	if err != nil {
		return nil, decorate(err, permsApplication)
	}
	return &BlueprintApp{
		ObjectID:    created.ID,
		AppID:       created.AppID,
		DisplayName: created.DisplayName,
	}, nil
}

// AttachIdentifierURI sets the api://{appId} identifier URI on the
// blueprint.
func (c *Creators) AttachIdentifierURI(ctx context.Context, app *BlueprintApp) error {
	err := c.dir.Patch(ctx, "applications/"+app.ObjectID, applicationResource{
		IdentifierUris: []string{"api://" + app.AppID},
	})
	return decorate(err, permsApplication)
}

// CreateClientSecret mints a new client secret on the blueprint. The secret
// text exists only in this response; it is never retrievable again.
func (c *Creators) CreateClientSecret(ctx context.Context, appObjectID string) (*ClientSecret, error) {
	var created passwordCredentialResponse
	err := c.dir.Post(ctx, "applications/"+appObjectID+"/addPassword", passwordCredentialRequest{
		PasswordCredential: passwordCredentialBody{
			DisplayName: "citizen-agent-setup",
			EndDateTime: time.Now().AddDate(1, 0, 0).UTC().Format(time.RFC3339),
		},
	}, &created)
	if err != nil {
		return nil, decorate(err, permsApplication)
	}

	expiry, _ := time.Parse(time.RFC3339, created.EndDateTime)
	return &ClientSecret{SecretText: created.SecretText, Expiry: expiry}, nil
}

// CreateAgentIdentity creates the agent's service principal by presenting
// the blueprint's credentials, not the orchestrator's ambient token. An
// empty secret fails fast with the gate error before any network call.
func (c *Creators) CreateAgentIdentity(ctx context.Context, tenantID string, blueprint *BlueprintApp, secret string) (*AgentIdentity, error) {
	if secret == "" {
		return nil, ErrBlueprintSecretUnavailable
	}

	blueprintTokens := c.auth.ClientCredentials(tenantID, blueprint.AppID, secret)
	blueprintDir := c.factory(blueprintTokens)

	var created servicePrincipalResource
	err := blueprintDir.Post(ctx, "servicePrincipals", servicePrincipalResource{
		AppID: blueprint.AppID,
	}, &created)
	if err != nil {
		return nil, decorate(err, permsApplication)
	}
	return &AgentIdentity{ObjectID: created.ID, DisplayName: created.DisplayName}, nil
}

// AgentUserInput carries the inputs for user creation.
type AgentUserInput struct {
	UserPrincipalName string
	DisplayName       string
	IdentityObjectID  string
}

// CreateAgentUser creates the directory user linked to the agent identity.
// The generated password is throwaway: the account authenticates through its
// identity, never interactively.
func (c *Creators) CreateAgentUser(ctx context.Context, in AgentUserInput) (*AgentUser, error) {
	enabled := true
	var created userResource
	err := c.dir.Post(ctx, "users", userResource{
		DisplayName:       in.DisplayName,
		UserPrincipalName: in.UserPrincipalName,
		MailNickname:      mailNickname(in.UserPrincipalName),
		AccountEnabled:    &enabled,
		PasswordProfile: &passwordProfile{
			ForceChangePasswordNextSignIn: false,
			Password:                      generatePassword(),
		},
		OnPremisesExtensionAttributes: &extensionAttributes{
			ExtensionAttribute1: in.IdentityObjectID,
		},
	}, &created)
	if err != nil {
		return nil, decorate(err, permsUser)
	}
	return &AgentUser{
		ObjectID:          created.ID,
		UserPrincipalName: created.UserPrincipalName,
		DisplayName:       created.DisplayName,
	}, nil
}

// CreatePermissionGrant creates a delegated-scope consent record binding the
// client identity to the resource, optionally for a single principal.
func (c *Creators) CreatePermissionGrant(ctx context.Context, clientID, resourceID, principalID, scope string) (*PermissionGrant, error) {
	consentType := "AllPrincipals"
	if principalID != "" {
		consentType = "Principal"
	}

	var created oauth2GrantResource
	err := c.dir.Post(ctx, "oauth2PermissionGrants", oauth2GrantResource{
		ClientID:    clientID,
		ConsentType: consentType,
		PrincipalID: principalID,
		ResourceID:  resourceID,
		Scope:       scope,
	}, &created)
	if err != nil {
		return nil, decorate(err, permsGrant)
	}
	return &PermissionGrant{
		ObjectID:    created.ID,
		ClientID:    created.ClientID,
		ResourceID:  created.ResourceID,
		PrincipalID: created.PrincipalID,
		Scope:       created.Scope,
	}, nil
}

// AssignLicense assigns the configured license SKU to the agent user.
func (c *Creators) AssignLicense(ctx context.Context, userObjectID, skuID string) error {
	err := c.dir.Post(ctx, "users/"+userObjectID+"/assignLicense", licenseAssignRequest{
		AddLicenses:    []licenseSKU{{SKUID: skuID}},
		RemoveLicenses: []string{},
	}, nil)
	return decorate(err, permsLicense)
}

// CreateSubscription creates a change-notification subscription for the
// agent user's messages. Rich notification resources live on the beta
// surface, so this call uses a beta-pinned view of the client.
func (c *Creators) CreateSubscription(ctx context.Context, notificationURL, resource string) (string, error) {
	var created subscriptionResource
	err := c.dir.Beta().Post(ctx, "subscriptions", subscriptionResource{
		ChangeType:         "created",
		NotificationURL:    notificationURL,
		Resource:           resource,
		ExpirationDateTime: time.Now().Add(71 * time.Hour).UTC().Format(time.RFC3339),
		ClientState:        uuid.New().String(),
	}, &created)
	if err != nil {
		return "", decorate(err, permsWebhook)
	}
	return created.ID, nil
}

// decorate attaches the operation's required-permission list to
// insufficient-permission failures and passes everything else through.
func decorate(err error, perms []string) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok && e.Class == ClassInsufficientPermissions {
		return e.WithPermissions(perms...)
	}
	return err
}

// mailNickname derives a mail nickname from the local part of the UPN.
func mailNickname(upn string) string {
	for i, r := range upn {
		if r == '@' {
			return upn[:i]
		}
	}
	return upn
}

// generatePassword produces a random throwaway password satisfying the
// directory's complexity rules.
func generatePassword() string {
	return fmt.Sprintf("Ca!9%s", uuid.New().String())
}
