// Package auth acquires bearer tokens for the directory API, via either a
// client-credential exchange or an interactive device-code login.
package auth

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"

	"github.com/lcarli/Citizen-Agent-CLI/pkg/provision"
)

// DefaultScope is the directory API default scope for app-only tokens.
const DefaultScope = "https://graph.microsoft.com/.default"

// ClientCredentialSource exchanges a client ID and secret for app-only
// tokens. The last token is cached and reused while valid; the exchange
// itself runs under the caller's context so cancellation reaches the HTTP
// call.
type ClientCredentialSource struct {
	cfg *clientcredentials.Config

	mu  sync.Mutex
	tok *oauth2.Token
}

// NewClientCredentialSource creates a token source for the given tenant and
// client credentials.
func NewClientCredentialSource(tenantID, clientID, clientSecret string) *ClientCredentialSource {
	return &ClientCredentialSource{
		cfg: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID),
			Scopes:       []string{DefaultScope},
		},
	}
}

// Token returns a bearer token, acquiring or refreshing as needed.
func (s *ClientCredentialSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tok.Valid() {
		return s.tok.AccessToken, nil
	}

	tok, err := s.cfg.Token(ctx)
	if err != nil {
		return "", provision.NewAuthenticationError("client credential exchange failed", err)
	}
	s.tok = tok
	return tok.AccessToken, nil
}

// DevicePrompt displays the device-code login instructions to the operator.
type DevicePrompt func(verificationURI, userCode string)

// DeviceCodeSource acquires delegated tokens via the device-code flow. The
// interactive exchange happens on the first Token call; subsequent calls
// reuse and refresh the cached token.
type DeviceCodeSource struct {
	config *oauth2.Config
	prompt DevicePrompt

	mu     sync.Mutex
	source oauth2.TokenSource
}

// NewDeviceCodeSource creates an interactive token source for the given
// tenant and public client.
func NewDeviceCodeSource(tenantID, clientID string, prompt DevicePrompt) *DeviceCodeSource {
	return &DeviceCodeSource{
		config: &oauth2.Config{
			ClientID: clientID,
			Endpoint: microsoft.AzureADEndpoint(tenantID),
			Scopes:   []string{DefaultScope},
		},
		prompt: prompt,
	}
}

// Token returns a bearer token, running the device-code flow on first use.
func (s *DeviceCodeSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil {
		response, err := s.config.DeviceAuth(ctx)
		if err != nil {
			return "", provision.NewAuthenticationError("device authorization request failed", err)
		}
		if s.prompt != nil {
			s.prompt(response.VerificationURI, response.UserCode)
		}
		tok, err := s.config.DeviceAccessToken(ctx, response)
		if err != nil {
			return "", provision.NewAuthenticationError("device code login failed", err)
		}
		s.source = s.config.TokenSource(ctx, tok)
	}

	tok, err := s.source.Token()
	if err != nil {
		return "", provision.NewAuthenticationError("token refresh failed", err)
	}
	return tok.AccessToken, nil
}

// Authenticator mints scoped token sources. It implements
// provision.BlueprintAuthenticator for the credential hand-off in the
// agent-identity phase.
type Authenticator struct{}

// ClientCredentials returns a token source that authenticates as the given
// client. The identity phase calls this with the blueprint's app ID and its
// freshly minted secret.
func (Authenticator) ClientCredentials(tenantID, clientID, clientSecret string) provision.TokenSource {
	return NewClientCredentialSource(tenantID, clientID, clientSecret)
}
