package graph

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/lcarli/Citizen-Agent-CLI/pkg/provision"
)

type staticTokens string

func (s staticTokens) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

func TestClient_GetDecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1.0/applications" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("Expected bearer token, got %q", got)
		}
		if got := r.URL.Query().Get("$filter"); got != "displayName eq 'Acme'" {
			t.Errorf("Unexpected filter %q", got)
		}
		w.Write([]byte(`{"value":[{"id":"obj-1","appId":"app-1"}]}`))
	}))
	defer server.Close()

	client := NewClient(staticTokens("tok-123"), WithBaseURL(server.URL))

	var out struct {
		Value []struct {
			ID    string `json:"id"`
			AppID string `json:"appId"`
		} `json:"value"`
	}
	query := url.Values{"$filter": []string{"displayName eq 'Acme'"}}
	if err := client.Get(context.Background(), "applications", query, &out); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(out.Value) != 1 || out.Value[0].ID != "obj-1" {
		t.Errorf("Unexpected decode result: %+v", out)
	}
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		class  provision.ErrorClass
		code   string
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"error":{"code":"InvalidAuthenticationToken","message":"token expired"}}`,
			class:  provision.ClassAuthentication,
			code:   "InvalidAuthenticationToken",
		},
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			body:   `{"error":{"code":"Authorization_RequestDenied","message":"insufficient privileges"}}`,
			class:  provision.ClassInsufficientPermissions,
			code:   "Authorization_RequestDenied",
		},
		{
			name:   "not found",
			status: http.StatusNotFound,
			body:   `{"error":{"code":"Request_ResourceNotFound","message":"no such object"}}`,
			class:  provision.ClassNotFound,
			code:   "Request_ResourceNotFound",
		},
		{
			name:   "server error",
			status: http.StatusServiceUnavailable,
			body:   `{"error":{"code":"ServiceUnavailable","message":"try again"}}`,
			class:  provision.ClassDirectoryAPI,
			code:   "ServiceUnavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(staticTokens("tok"), WithBaseURL(server.URL))
			err := client.Get(context.Background(), "applications", nil, nil)

			var perr *provision.Error
			if !errors.As(err, &perr) {
				t.Fatalf("Expected classified error, got %v", err)
			}
			if perr.Class != tt.class {
				t.Errorf("Expected class %s, got %s", tt.class, perr.Class)
			}
			if perr.Status != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, perr.Status)
			}
			if perr.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, perr.Code)
			}
		})
	}
}

func TestClient_DeleteTreats404AsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"Request_ResourceNotFound","message":"gone"}}`))
	}))
	defer server.Close()

	client := NewClient(staticTokens("tok"), WithBaseURL(server.URL))
	if err := client.Delete(context.Background(), "applications/obj-1"); err != nil {
		t.Errorf("DELETE on a missing resource must succeed, got %v", err)
	}
}

func TestClient_BetaIsScopedNotMutating(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(staticTokens("tok"), WithBaseURL(server.URL))
	beta := client.Beta()

	if err := beta.Get(context.Background(), "subscriptions", nil, nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// The shared handle must still call v1.0 after the beta call.
	if err := client.Get(context.Background(), "applications", nil, nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if paths[0] != "/beta/subscriptions" {
		t.Errorf("Expected beta path, got %s", paths[0])
	}
	if paths[1] != "/v1.0/applications" {
		t.Errorf("Version override leaked into the shared handle: %s", paths[1])
	}
}

func TestClient_ObserverSeesStatusAndMethod(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"new"}`))
	}))
	defer server.Close()

	var gotMethod string
	var gotStatus int
	client := NewClient(staticTokens("tok"),
		WithBaseURL(server.URL),
		WithObserver(func(method string, status int, _ time.Duration) {
			gotMethod, gotStatus = method, status
		}),
	)

	var out struct {
		ID string `json:"id"`
	}
	if err := client.Post(context.Background(), "servicePrincipals", map[string]string{"appId": "a"}, &out); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if gotMethod != http.MethodPost || gotStatus != http.StatusCreated {
		t.Errorf("Observer saw %s/%d", gotMethod, gotStatus)
	}
	if out.ID != "new" {
		t.Errorf("Expected decoded id, got %q", out.ID)
	}
}
