package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/lcarli/Citizen-Agent-CLI/pkg/provision"
)

func newTestSource(tokenURL string) *ClientCredentialSource {
	cfg := &clientcredentials.Config{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		TokenURL:     tokenURL,
		Scopes:       []string{DefaultScope},
	}
	return &ClientCredentialSource{cfg: cfg}
}

func TestClientCredentialSource_Token(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if err := r.ParseForm(); err != nil {
			t.Fatalf("Failed to parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "client_credentials" {
			t.Errorf("Expected client_credentials grant, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-abc","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	source := newTestSource(server.URL)

	tok, err := source.Token(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if tok != "tok-abc" {
		t.Errorf("Expected tok-abc, got %q", tok)
	}

	// A second call reuses the cached token.
	if _, err := source.Token(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected the token endpoint hit once, got %d", calls)
	}
}

func TestClientCredentialSource_HonorsCancellation(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	source := newTestSource(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The server would answer successfully, so the only way this fails
	// is the cancelled context reaching the exchange.
	_, err := source.Token(ctx)
	if err == nil {
		t.Fatal("Expected an error from a cancelled context")
	}
	if calls != 0 {
		t.Errorf("Expected no exchange after cancellation, got %d calls", calls)
	}
}

func TestClientCredentialSource_FailureIsAuthenticationClass(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer server.Close()

	source := newTestSource(server.URL)

	_, err := source.Token(context.Background())
	var perr *provision.Error
	if !errors.As(err, &perr) {
		t.Fatalf("Expected classified error, got %v", err)
	}
	if perr.Class != provision.ClassAuthentication {
		t.Errorf("Expected authentication class, got %s", perr.Class)
	}
}
