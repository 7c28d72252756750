package provision

import (
	"context"
	"net/url"
)

// Directory is the REST surface of the remote identity-and-directory API.
// Implementations return classified *Error values (directory, authentication,
// insufficient-permissions) for non-2xx responses; DELETE treats 404 as
// success.
type Directory interface {
	// Get performs a GET and decodes the JSON response into out.
	Get(ctx context.Context, path string, query url.Values, out any) error

	// Post performs a POST with a JSON body and decodes the response into
	// out when out is non-nil.
	Post(ctx context.Context, path string, body, out any) error

	// Patch performs a PATCH with a JSON body.
	Patch(ctx context.Context, path string, body any) error

	// Delete performs a DELETE. A 404 response is success.
	Delete(ctx context.Context, path string) error

	// Beta returns a view of the same underlying client pinned to the
	// beta API version. The receiver is not mutated; there is no
	// restoration to forget.
	Beta() Directory
}

// TokenSource acquires bearer tokens. The sequencer's ambient source
// authenticates as the operator; the identity creator builds a second,
// scoped source that authenticates as the blueprint.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// BlueprintAuthenticator mints a token source from blueprint credentials.
// The agent-identity phase uses it for the credential hand-off: the identity
// is created by presenting the blueprint's client ID and freshly minted
// secret, not the orchestrator's own token.
type BlueprintAuthenticator interface {
	ClientCredentials(tenantID, clientID, clientSecret string) TokenSource
}

// DirectoryFactory builds a Directory bound to a token source. The identity
// creator uses it to obtain a directory handle that calls as the blueprint.
type DirectoryFactory func(tokens TokenSource) Directory

// RunRecorder persists run/phase/event history. The SQLite store implements
// it; a nil recorder disables history.
type RunRecorder interface {
	RecordRunStarted(ctx context.Context, runID string) error
	RecordPhase(ctx context.Context, runID, phase, outcome, detail string) error
	RecordRunCompleted(ctx context.Context, runID, status string) error
}

// RoleAssigner assigns an RBAC role on a resource for a principal. The
// Azure CLI shell-out helper implements it.
type RoleAssigner interface {
	// SignedInObjectID returns the object ID of the signed-in principal.
	SignedInObjectID(ctx context.Context) (string, error)

	// AssignRole assigns role on scope to the principal with assigneeID.
	// principalType disambiguates the assignee kind, "ServicePrincipal"
	// or "User".
	AssignRole(ctx context.Context, assigneeID, principalType, role, scope string) error
}
