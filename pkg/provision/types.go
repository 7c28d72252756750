package provision

import "time"

// Phase names, in execution order.
const (
	PhaseAuth            = "auth"
	PhaseBlueprint       = "blueprint"
	PhaseAgentIdentity   = "identity"
	PhaseAgentUser       = "user"
	PhasePermissionGrant = "permissions"
	PhaseLicense         = "license"
	PhaseRoleAssignment  = "foundry-role"
	PhaseWebhook         = "webhook"
)

// BlueprintApp is the local projection of the root app registration. The
// global AppID is the stable cross-system identifier consumed by downstream
// phases; ObjectID is the directory-local object.
type BlueprintApp struct {
	ObjectID    string `json:"objectId"`
	AppID       string `json:"appId"`
	DisplayName string `json:"displayName"`
}

// ClientSecret is a freshly minted blueprint credential. The directory never
// re-reveals a prior secret, so SecretText is only ever populated for a
// secret created in this run.
type ClientSecret struct {
	SecretText string    `json:"secretText"`
	Expiry     time.Time `json:"expiry"`
}

// AgentIdentity is the service-principal-like object representing the agent,
// created via credential delegation from its blueprint.
type AgentIdentity struct {
	ObjectID    string `json:"objectId"`
	DisplayName string `json:"displayName"`
}

// AgentUser is the directory user record linked to an agent identity.
type AgentUser struct {
	ObjectID          string `json:"objectId"`
	UserPrincipalName string `json:"userPrincipalName"`
	DisplayName       string `json:"displayName"`
}

// PermissionGrant is a delegated-scope consent record. At most one grant may
// exist per (ClientID, ResourceID, PrincipalID) triple.
type PermissionGrant struct {
	ObjectID    string `json:"objectId"`
	ClientID    string `json:"clientId"`
	ResourceID  string `json:"resourceId"`
	PrincipalID string `json:"principalId"`
	Scope       string `json:"scope"`
}

// Wire-level request/response shapes for the directory API.

type applicationResource struct {
	ID             string   `json:"id,omitempty"`
	AppID          string   `json:"appId,omitempty"`
	DisplayName    string   `json:"displayName,omitempty"`
	SignInAudience string   `json:"signInAudience,omitempty"`
	IdentifierUris []string `json:"identifierUris,omitempty"`
}

type servicePrincipalResource struct {
	ID                   string `json:"id,omitempty"`
	AppID                string `json:"appId,omitempty"`
	DisplayName          string `json:"displayName,omitempty"`
	ServicePrincipalType string `json:"servicePrincipalType,omitempty"`
}

type userResource struct {
	ID                string           `json:"id,omitempty"`
	DisplayName       string           `json:"displayName,omitempty"`
	UserPrincipalName string           `json:"userPrincipalName,omitempty"`
	MailNickname      string           `json:"mailNickname,omitempty"`
	AccountEnabled    *bool            `json:"accountEnabled,omitempty"`
	PasswordProfile   *passwordProfile `json:"passwordProfile,omitempty"`
	// Parent-identity reference linking the user to its agent identity.
	OnPremisesExtensionAttributes *extensionAttributes `json:"onPremisesExtensionAttributes,omitempty"`
}

type passwordProfile struct {
	ForceChangePasswordNextSignIn bool   `json:"forceChangePasswordNextSignIn"`
	Password                      string `json:"password"`
}

type extensionAttributes struct {
	ExtensionAttribute1 string `json:"extensionAttribute1,omitempty"`
}

type passwordCredentialRequest struct {
	PasswordCredential passwordCredentialBody `json:"passwordCredential"`
}

type passwordCredentialBody struct {
	DisplayName string `json:"displayName"`
	EndDateTime string `json:"endDateTime,omitempty"`
}

type passwordCredentialResponse struct {
	SecretText  string `json:"secretText"`
	EndDateTime string `json:"endDateTime"`
}

type oauth2GrantResource struct {
	ID          string `json:"id,omitempty"`
	ClientID    string `json:"clientId"`
	ConsentType string `json:"consentType"`
	PrincipalID string `json:"principalId,omitempty"`
	ResourceID  string `json:"resourceId"`
	Scope       string `json:"scope"`
}

type licenseAssignRequest struct {
	AddLicenses    []licenseSKU `json:"addLicenses"`
	RemoveLicenses []string     `json:"removeLicenses"`
}

type licenseSKU struct {
	SKUID string `json:"skuId"`
}

type licenseDetailResource struct {
	ID    string `json:"id,omitempty"`
	SKUID string `json:"skuId"`
}

type subscriptionResource struct {
	ID                 string `json:"id,omitempty"`
	ChangeType         string `json:"changeType"`
	NotificationURL    string `json:"notificationUrl"`
	Resource           string `json:"resource"`
	ExpirationDateTime string `json:"expirationDateTime"`
	ClientState        string `json:"clientState,omitempty"`
}

// listResponse is the standard collection envelope of the directory API.
type listResponse[T any] struct {
	Value []T `json:"value"`
}
