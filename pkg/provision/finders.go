package provision

import (
	"context"
	"fmt"
	"net/url"
)

// GraphResourceAppID is the well-known application ID of the directory API's
// own service principal, the resource side of every delegated grant.
const GraphResourceAppID = "00000003-0000-0000-c000-000000000000"

// findFirst runs a filtered list query and returns the first element
// matching the predicate, or the internal absent signal. Every per-resource
// finder is this strategy with a different predicate; the directory's
// filtered listing is eventually consistent, so callers never use a finder
// to confirm their own create.
func findFirst[T any](ctx context.Context, dir Directory, path, filter, resource string, match func(T) bool) (T, error) {
	var zero T
	query := url.Values{}
	if filter != "" {
		query.Set("$filter", filter)
	}

	var page listResponse[T]
	if err := dir.Get(ctx, path, query, &page); err != nil {
		return zero, err
	}
	for _, item := range page.Value {
		if match(item) {
			return item, nil
		}
	}
	return zero, NewNotFoundError(resource)
}

// Finders implements the "does X already exist" lookups for every resource
// kind. Absence is reported as the internal not-found signal, never as an
// operator-facing error.
type Finders struct {
	dir Directory
}

// NewFinders creates finders bound to a directory client.
func NewFinders(dir Directory) *Finders {
	return &Finders{dir: dir}
}

// FindBlueprintApp looks up an app registration by display name. The filter
// matches on display name; the predicate re-checks exact equality because
// the directory's filter comparison is case-insensitive.
func (f *Finders) FindBlueprintApp(ctx context.Context, displayName string) (*BlueprintApp, error) {
	app, err := findFirst(ctx, f.dir, "applications",
		fmt.Sprintf("displayName eq '%s'", escapeFilter(displayName)),
		"application "+displayName,
		func(a applicationResource) bool { return a.DisplayName == displayName })
	if err != nil {
		return nil, err
	}
	return &BlueprintApp{ObjectID: app.ID, AppID: app.AppID, DisplayName: app.DisplayName}, nil
}

// FindAgentIdentity looks up the agent's service principal by display name,
// disambiguating on the service principal type.
func (f *Finders) FindAgentIdentity(ctx context.Context, displayName string) (*AgentIdentity, error) {
	sp, err := findFirst(ctx, f.dir, "servicePrincipals",
		fmt.Sprintf("displayName eq '%s'", escapeFilter(displayName)),
		"agent identity "+displayName,
		func(s servicePrincipalResource) bool {
			return s.DisplayName == displayName
		})
	if err != nil {
		return nil, err
	}
	return &AgentIdentity{ObjectID: sp.ID, DisplayName: sp.DisplayName}, nil
}

// FindAgentUser looks up a directory user by principal name.
func (f *Finders) FindAgentUser(ctx context.Context, upn string) (*AgentUser, error) {
	user, err := findFirst(ctx, f.dir, "users",
		fmt.Sprintf("userPrincipalName eq '%s'", escapeFilter(upn)),
		"user "+upn,
		func(u userResource) bool { return u.UserPrincipalName == upn })
	if err != nil {
		return nil, err
	}
	return &AgentUser{
		ObjectID:          user.ID,
		UserPrincipalName: user.UserPrincipalName,
		DisplayName:       user.DisplayName,
	}, nil
}

// FindPermissionGrant looks up an existing delegated grant for the client.
// A grant is a duplicate only when its resource matches AND, if a principal
// is supplied, the principal matches too; a resource-only match with a
// different principal is a different grant and creation proceeds.
func (f *Finders) FindPermissionGrant(ctx context.Context, clientID, resourceID, principalID string) (*PermissionGrant, error) {
	grant, err := findFirst(ctx, f.dir, "oauth2PermissionGrants",
		fmt.Sprintf("clientId eq '%s'", escapeFilter(clientID)),
		"permission grant for client "+clientID,
		func(g oauth2GrantResource) bool {
			if g.ResourceID != resourceID {
				return false
			}
			if principalID != "" && g.PrincipalID != principalID {
				return false
			}
			return true
		})
	if err != nil {
		return nil, err
	}
	return &PermissionGrant{
		ObjectID:    grant.ID,
		ClientID:    grant.ClientID,
		ResourceID:  grant.ResourceID,
		PrincipalID: grant.PrincipalID,
		Scope:       grant.Scope,
	}, nil
}

// FindAssignedLicense checks whether the user already holds the given
// license SKU. licenseDetails cannot be filtered server-side, so the
// predicate does the matching.
func (f *Finders) FindAssignedLicense(ctx context.Context, userObjectID, skuID string) (string, error) {
	detail, err := findFirst(ctx, f.dir, "users/"+userObjectID+"/licenseDetails", "",
		"license "+skuID,
		func(d licenseDetailResource) bool { return d.SKUID == skuID })
	if err != nil {
		return "", err
	}
	return detail.SKUID, nil
}

// FindDirectoryResourcePrincipal resolves the directory API's own service
// principal in this tenant, the resource side of the permission grant.
func (f *Finders) FindDirectoryResourcePrincipal(ctx context.Context) (string, error) {
	sp, err := findFirst(ctx, f.dir, "servicePrincipals",
		fmt.Sprintf("appId eq '%s'", GraphResourceAppID),
		"directory API service principal",
		func(s servicePrincipalResource) bool { return s.AppID == GraphResourceAppID })
	if err != nil {
		return "", err
	}
	return sp.ID, nil
}

// FindSubscription looks up an existing change-notification subscription for
// the given notification URL and watched resource. Subscriptions cannot be
// filtered server-side, so the predicate does all the work.
func (f *Finders) FindSubscription(ctx context.Context, notificationURL, resource string) (string, error) {
	sub, err := findFirst(ctx, f.dir, "subscriptions", "",
		"subscription for "+notificationURL,
		func(s subscriptionResource) bool {
			return s.NotificationURL == notificationURL && s.Resource == resource
		})
	if err != nil {
		return "", err
	}
	return sub.ID, nil
}

// escapeFilter escapes single quotes for OData filter literals.
func escapeFilter(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\'' {
			out = append(out, '\'')
		}
		out = append(out, r)
	}
	return string(out)
}
