// Package provision implements the multi-phase provisioning orchestrator for
// the Citizen Agent CLI: the phase sequencer, the per-resource find-or-create
// operations, the retry/propagation-wait policy, and the setup output
// recorder.
package provision

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorClass classifies a provisioning failure. The class drives whether the
// sequencer retries, skips, or aborts, and which process exit code the CLI
// reports.
type ErrorClass string

const (
	// ClassAuthentication indicates the orchestrator could not acquire or
	// use a token. Never retried.
	ClassAuthentication ErrorClass = "authentication"

	// ClassDirectoryAPI indicates the directory API rejected or failed a
	// request. Retried only when the status is transient (5xx or 429).
	ClassDirectoryAPI ErrorClass = "directory_api"

	// ClassConfiguration indicates invalid or incomplete configuration.
	// Detected pre-flight; never reaches the sequencer.
	ClassConfiguration ErrorClass = "configuration"

	// ClassNotFound is the internal "resource absent" signal returned by
	// finders. It is never surfaced to the operator as an error.
	ClassNotFound ErrorClass = "not_found"

	// ClassInsufficientPermissions indicates the caller lacks directory
	// permissions. Carries the list of permissions that should be granted.
	ClassInsufficientPermissions ErrorClass = "insufficient_permissions"

	// ClassRetryExhausted wraps the last failure after the retry budget is
	// spent. Always fatal at the phase level.
	ClassRetryExhausted ErrorClass = "retry_exhausted"
)

// Exit codes by error class, so automation can distinguish failure
// categories without parsing text.
const (
	ExitOK                      = 0
	ExitFailure                 = 1
	ExitConfigurationInvalid    = 2
	ExitAuthenticationFailure   = 3
	ExitDirectoryAPIFailure     = 4
	ExitInsufficientPermissions = 5
	ExitRetryExhausted          = 6
)

// Error is a classified provisioning error.
type Error struct {
	// Class is the error classification.
	Class ErrorClass

	// Message is the human-readable error message.
	Message string

	// Status is the HTTP status for directory API failures, 0 otherwise.
	Status int

	// Code is the machine-readable provider error code, if any.
	Code string

	// Permissions lists the permissions the caller should have been
	// granted, for insufficient-permission failures.
	Permissions []string

	// Attempts is the attempt count for retry-exhausted failures.
	Attempts int

	// Suggestions are actionable remediation hints shown in the fatal
	// banner.
	Suggestions []string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Class, e.Message)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status=%d", e.Status)
		if e.Code != "" {
			fmt.Fprintf(&b, ", code=%s", e.Code)
		}
		b.WriteString(")")
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// ExitCode returns the process exit code for this error class.
func (e *Error) ExitCode() int {
	switch e.Class {
	case ClassConfiguration:
		return ExitConfigurationInvalid
	case ClassAuthentication:
		return ExitAuthenticationFailure
	case ClassDirectoryAPI:
		return ExitDirectoryAPIFailure
	case ClassInsufficientPermissions:
		return ExitInsufficientPermissions
	case ClassRetryExhausted:
		return ExitRetryExhausted
	default:
		return ExitFailure
	}
}

// NewAuthenticationError creates an authentication failure.
func NewAuthenticationError(message string, err error) *Error {
	return &Error{
		Class:   ClassAuthentication,
		Message: message,
		Err:     err,
		Suggestions: []string{
			"verify tenant ID, client ID and client secret",
			"check that admin consent was granted for the application",
		},
	}
}

// NewDirectoryError creates a directory API failure carrying the HTTP status
// and the provider error code.
func NewDirectoryError(message string, status int, code string, err error) *Error {
	return &Error{
		Class:   ClassDirectoryAPI,
		Message: message,
		Status:  status,
		Code:    code,
		Err:     err,
	}
}

// NewConfigurationError creates a configuration failure.
func NewConfigurationError(message string) *Error {
	return &Error{Class: ClassConfiguration, Message: message}
}

// NewNotFoundError creates the internal absent-resource signal.
func NewNotFoundError(resource string) *Error {
	return &Error{Class: ClassNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

// NewPermissionsError creates an insufficient-permissions failure carrying
// the permission list the caller needs.
func NewPermissionsError(message string, required []string, err error) *Error {
	return &Error{
		Class:       ClassInsufficientPermissions,
		Message:     message,
		Permissions: required,
		Err:         err,
		Suggestions: []string{
			fmt.Sprintf("grant the application these permissions: %s", strings.Join(required, ", ")),
			"an administrator must consent to the granted permissions",
		},
	}
}

// NewRetryExhaustedError wraps the last underlying failure with the attempt
// count after the retry budget is spent.
func NewRetryExhaustedError(operation string, attempts int, err error) *Error {
	return &Error{
		Class:    ClassRetryExhausted,
		Message:  fmt.Sprintf("%s did not succeed", operation),
		Attempts: attempts,
		Err:      err,
	}
}

// WithPermissions attaches the required-permission list to an
// insufficient-permissions error. Other classes are returned unchanged.
func (e *Error) WithPermissions(required ...string) *Error {
	if e.Class == ClassInsufficientPermissions {
		e.Permissions = required
		e.Suggestions = []string{
			fmt.Sprintf("grant the application these permissions: %s", strings.Join(required, ", ")),
			"an administrator must consent to the granted permissions",
		}
	}
	return e
}

// FromHTTP classifies a non-2xx directory API response. 401 is an
// authentication failure, 403 an insufficient-permissions failure, 404 the
// internal absent signal; everything else is a directory API failure whose
// retry eligibility follows from the status.
func FromHTTP(message string, status int, code string, err error) *Error {
	switch status {
	case http.StatusUnauthorized:
		e := NewAuthenticationError(message, err)
		e.Status = status
		e.Code = code
		return e
	case http.StatusForbidden:
		e := &Error{
			Class:   ClassInsufficientPermissions,
			Message: message,
			Status:  status,
			Code:    code,
			Err:     err,
		}
		return e
	case http.StatusNotFound:
		e := NewNotFoundError(message)
		e.Status = status
		e.Code = code
		return e
	default:
		return NewDirectoryError(message, status, code, err)
	}
}

// IsNotFound reports whether err is the internal absent signal.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Class == ClassNotFound
}

// IsRetryable reports whether err may succeed on retry. Only directory API
// failures with a transient status qualify; authentication and configuration
// failures never do.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		// Unclassified errors are treated as transient: network-level
		// failures arrive as plain errors from the HTTP client.
		return err != nil
	}
	if e.Class != ClassDirectoryAPI {
		return false
	}
	return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

// ClassOf returns the classification of err, or ClassDirectoryAPI's zero
// value "" for unclassified errors.
func ClassOf(err error) ErrorClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// ExitCodeFor returns the process exit code for an arbitrary error.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.ExitCode()
	}
	return ExitFailure
}
