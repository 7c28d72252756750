package provision

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"configuration", NewConfigurationError("bad"), ExitConfigurationInvalid},
		{"authentication", NewAuthenticationError("no token", nil), ExitAuthenticationFailure},
		{"directory", NewDirectoryError("boom", 500, "", nil), ExitDirectoryAPIFailure},
		{"permissions", NewPermissionsError("denied", nil, nil), ExitInsufficientPermissions},
		{"retry exhausted", NewRetryExhaustedError("create user", 3, nil), ExitRetryExhausted},
		{"unclassified", errors.New("plain"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCodeFor(tt.err); got != tt.want {
				t.Errorf("ExitCodeFor() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFromHTTPClassification(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{401, ClassAuthentication},
		{403, ClassInsufficientPermissions},
		{404, ClassNotFound},
		{429, ClassDirectoryAPI},
		{500, ClassDirectoryAPI},
		{400, ClassDirectoryAPI},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := FromHTTP("request failed", tt.status, "SomeCode", nil)
			if err.Class != tt.want {
				t.Errorf("FromHTTP(%d).Class = %s, want %s", tt.status, err.Class, tt.want)
			}
			if err.Status != tt.status {
				t.Errorf("Status = %d, want %d", err.Status, tt.status)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", NewDirectoryError("boom", 503, "", nil), true},
		{"throttled", NewDirectoryError("slow down", 429, "", nil), true},
		{"bad request", NewDirectoryError("nope", 400, "", nil), false},
		{"authentication", NewAuthenticationError("no token", nil), false},
		{"permissions", NewPermissionsError("denied", nil, nil), false},
		{"configuration", NewConfigurationError("bad flag"), false},
		{"not found", NewNotFoundError("application x"), false},
		// Plain errors are transport-level and worth another attempt.
		{"unclassified", errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(NewNotFoundError("user x")) {
		t.Error("IsNotFound() = false for not-found error")
	}
	wrapped := fmt.Errorf("lookup: %w", NewNotFoundError("user x"))
	if !IsNotFound(wrapped) {
		t.Error("IsNotFound() = false for wrapped not-found error")
	}
	if IsNotFound(NewDirectoryError("boom", 500, "", nil)) {
		t.Error("IsNotFound() = true for directory error")
	}
}

func TestErrorIsMatchesClassAndCode(t *testing.T) {
	if !errors.Is(ErrBlueprintSecretUnavailable, ErrBlueprintSecretUnavailable) {
		t.Error("sentinel does not match itself")
	}
	other := NewAuthenticationError("token acquisition failed", nil)
	if errors.Is(other, ErrBlueprintSecretUnavailable) {
		t.Error("generic authentication error matched the secret-gate sentinel")
	}
}

func TestWithPermissions(t *testing.T) {
	err := FromHTTP("create failed", 403, "Authorization_RequestDenied", nil).
		WithPermissions("Application.ReadWrite.All", "Directory.ReadWrite.All")
	if len(err.Permissions) != 2 {
		t.Fatalf("Permissions = %v, want 2 entries", err.Permissions)
	}
	if len(err.Suggestions) == 0 || !strings.Contains(err.Suggestions[0], "Application.ReadWrite.All") {
		t.Errorf("Suggestions = %v, missing required permission", err.Suggestions)
	}

	// Attaching permissions to another class is a no-op.
	dir := NewDirectoryError("boom", 500, "", nil).WithPermissions("User.ReadWrite.All")
	if len(dir.Permissions) != 0 {
		t.Errorf("Permissions on directory error = %v, want none", dir.Permissions)
	}
}

func TestRetryExhaustedWrapsCause(t *testing.T) {
	cause := NewDirectoryError("throttled", 429, "TooManyRequests", nil)
	err := NewRetryExhaustedError("assign license", 3, cause)
	if err.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", err.Attempts)
	}
	var inner *Error
	if !errors.As(errors.Unwrap(err), &inner) || inner.Status != 429 {
		t.Errorf("Unwrap() = %v, want the throttling cause", errors.Unwrap(err))
	}
}
