// Package azcli shells out to the Azure CLI for control-plane operations the
// directory API does not cover, specifically RBAC role assignment on Azure
// resources. The operator's existing `az login` session supplies the
// credentials.
package azcli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Runner executes an az invocation and returns its stdout. Tests inject a
// fake; production uses execRunner.
type Runner func(ctx context.Context, args ...string) ([]byte, error)

func execRunner(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "az", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("az %s: %s", strings.Join(args, " "), msg)
	}
	return stdout.Bytes(), nil
}

// Client runs role-assignment operations through the Azure CLI.
type Client struct {
	run    Runner
	logger zerolog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithRunner overrides the command runner.
func WithRunner(run Runner) Option {
	return func(c *Client) { c.run = run }
}

// New creates an Azure CLI client.
func New(logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		run:    execRunner,
		logger: logger.With().Str("component", "azcli").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Available reports whether the az binary is on PATH. Callers use it to
// decide between running and skipping the role-assignment phase.
func Available() bool {
	_, err := exec.LookPath("az")
	return err == nil
}

// SignedInObjectID returns the object ID of the principal behind the current
// az session.
func (c *Client) SignedInObjectID(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "ad", "signed-in-user", "show", "--query", "id", "--output", "json")
	if err != nil {
		return "", fmt.Errorf("failed to resolve signed-in user: %w", err)
	}

	var id string
	if err := json.Unmarshal(bytes.TrimSpace(out), &id); err != nil {
		return "", fmt.Errorf("failed to parse signed-in user ID: %w", err)
	}
	if id == "" {
		return "", fmt.Errorf("signed-in user has no object ID")
	}
	return id, nil
}

// AssignRole assigns role on scope to the principal with assigneeID.
// principalType is the assignee kind, "ServicePrincipal" or "User". An
// assignment that already exists is success; the CLI reports it as a
// conflict.
func (c *Client) AssignRole(ctx context.Context, assigneeID, principalType, role, scope string) error {
	c.logger.Debug().
		Str("assignee", assigneeID).
		Str("principalType", principalType).
		Str("role", role).
		Str("scope", scope).
		Msg("creating role assignment")

	_, err := c.run(ctx,
		"role", "assignment", "create",
		"--assignee-object-id", assigneeID,
		"--assignee-principal-type", principalType,
		"--role", role,
		"--scope", scope,
		"--output", "json")
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			c.logger.Debug().Msg("role assignment already exists")
			return nil
		}
		return fmt.Errorf("failed to assign role %q: %w", role, err)
	}
	return nil
}
