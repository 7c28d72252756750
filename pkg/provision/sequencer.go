package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lcarli/Citizen-Agent-CLI/pkg/telemetry"
)

// Spec carries the user-supplied inputs for a provisioning run.
type Spec struct {
	TenantID          string
	BlueprintName     string
	IdentityName      string
	UserPrincipalName string
	UserDisplayName   string
	GrantScope        string

	// BlueprintSecret supplies a known blueprint secret for standalone
	// phase runs; the full sequence always mints its own.
	BlueprintSecret string

	LicenseSKU string

	FoundryResourceID string
	FoundryRole       string
	SkipFoundry       bool

	WebhookURL  string
	SkipWebhook bool
}

// Waits tunes the propagation policy. The zero value is unusable; use
// DefaultWaits. Tests shrink everything to milliseconds.
type Waits struct {
	// AppPollAttempts and AppPollDelay bound the poll-until-visible loop
	// after creating the blueprint app.
	AppPollAttempts int
	AppPollDelay    time.Duration

	// Fixed sleeps after secret, identity and user creation. These model
	// the window where a resource is visible but not yet
	// authorization-usable, which polling cannot detect.
	SecretPropagation   time.Duration
	IdentityPropagation time.Duration
	UserPropagation     time.Duration

	// RetryAttempts and RetryDelay bound RetryWithBackoff around creates
	// that race with remote propagation.
	RetryAttempts int
	RetryDelay    time.Duration
}

// DefaultWaits returns the tuned production propagation policy.
func DefaultWaits() Waits {
	return Waits{
		AppPollAttempts:     12,
		AppPollDelay:        5 * time.Second,
		SecretPropagation:   10 * time.Second,
		IdentityPropagation: 15 * time.Second,
		UserPropagation:     10 * time.Second,
		RetryAttempts:       3,
		RetryDelay:          10 * time.Second,
	}
}

// Options wires a Sequencer. Finders, Creators, Recorder, Events and Tokens
// are required; Store, Metrics, Tracer and Roles are optional.
type Options struct {
	Spec     Spec
	Finders  *Finders
	Creators *Creators
	Recorder *OutputRecorder
	Events   *telemetry.EventSink
	Tokens   TokenSource
	Waits    Waits

	Store   RunRecorder
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer
	Roles   RoleAssigner
}

// Sequencer executes the fixed phase list in order, wiring each phase's
// output into the next phase's input, applying find-or-create idempotency
// at each step, and invoking the retry policy around operations known to
// race with remote propagation.
type Sequencer struct {
	spec     Spec
	finders  *Finders
	creators *Creators
	recorder *OutputRecorder
	events   *telemetry.EventSink
	tokens   TokenSource
	waits    Waits

	store   RunRecorder
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	roles   RoleAssigner

	runID string

	// Per-run state threaded between phases. One phase produces each
	// field; later phases consume it read-only.
	blueprint *BlueprintApp
	secret    *ClientSecret
	identity  *AgentIdentity
	user      *AgentUser
}

// NewSequencer creates a sequencer from options.
func NewSequencer(opts Options) *Sequencer {
	waits := opts.Waits
	if waits.AppPollAttempts == 0 {
		waits = DefaultWaits()
	}
	return &Sequencer{
		spec:     opts.Spec,
		finders:  opts.Finders,
		creators: opts.Creators,
		recorder: opts.Recorder,
		events:   opts.Events,
		tokens:   opts.Tokens,
		waits:    waits,
		store:    opts.Store,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
		roles:    opts.Roles,
	}
}

// Run executes the full phase sequence. The returned output is always the
// accumulated document, partial on failure, and it has been flushed to disk
// by the time Run returns.
func (s *Sequencer) Run(ctx context.Context) (*SetupOutput, error) {
	s.runID = uuid.New().String()
	s.events.Publish(telemetry.Event{
		Type:    telemetry.EventTypeRunStarted,
		RunID:   s.runID,
		Message: fmt.Sprintf("Provisioning run %s started", s.runID),
	})
	if s.store != nil {
		if err := s.store.RecordRunStarted(ctx, s.runID); err != nil {
			s.events.Warning(s.runID, "", fmt.Sprintf("run history unavailable: %v", err))
		}
	}
	if s.metrics != nil {
		s.metrics.RecordRunStarted()
	}

	phases := []struct {
		name string
		fn   func(context.Context) error
	}{
		{PhaseAuth, s.authPhase},
		{PhaseBlueprint, s.blueprintPhase},
		{PhaseAgentIdentity, s.identityPhase},
		{PhaseAgentUser, s.userPhase},
		{PhasePermissionGrant, s.grantPhase},
		{PhaseLicense, s.licensePhase},
		{PhaseRoleAssignment, s.foundryPhase},
		{PhaseWebhook, s.webhookPhase},
	}

	for _, phase := range phases {
		if err := s.runPhase(ctx, phase.name, phase.fn); err != nil {
			// The partial document still flushes so the operator can
			// inspect what succeeded and a rerun can resume.
			if flushErr := s.recorder.Flush(); flushErr != nil {
				s.events.Warning(s.runID, phase.name,
					fmt.Sprintf("failed to flush partial output: %v", flushErr))
			}
			s.finishRun(ctx, "failed")
			return s.recorder.Output(), err
		}
	}

	if err := s.recorder.Flush(); err != nil {
		s.finishRun(ctx, "failed")
		return s.recorder.Output(), fmt.Errorf("failed to write setup output: %w", err)
	}
	s.finishRun(ctx, "succeeded")
	return s.recorder.Output(), nil
}

func (s *Sequencer) finishRun(ctx context.Context, status string) {
	eventType := telemetry.EventTypeRunCompleted
	level := telemetry.EventLevelInfo
	if status != "succeeded" {
		eventType = telemetry.EventTypeRunFailed
		level = telemetry.EventLevelError
	}
	s.events.Publish(telemetry.Event{
		Type:    eventType,
		RunID:   s.runID,
		Message: fmt.Sprintf("Provisioning run %s %s", s.runID, status),
		Level:   level,
	})
	if s.store != nil {
		_ = s.store.RecordRunCompleted(ctx, s.runID, status)
	}
	if s.metrics != nil {
		s.metrics.RecordRunCompleted(status)
	}
}

// errSkipPhase signals a policy skip from inside a phase body.
type errSkipPhase struct{ reason string }

func (e errSkipPhase) Error() string { return "phase skipped: " + e.reason }

func (s *Sequencer) runPhase(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	s.events.PhaseStarted(s.runID, name)

	phaseCtx := ctx
	var span trace.Span
	if s.tracer != nil {
		phaseCtx, span = s.tracer.Start(ctx, "phase."+name,
			attribute.String("run.id", s.runID))
	}

	err := fn(phaseCtx)

	duration := time.Since(start)
	switch e := err.(type) {
	case nil:
		if span != nil {
			span.End()
		}
		s.events.PhaseCompleted(s.runID, name, duration)
		s.recordPhase(ctx, name, "succeeded", "", duration)
		return nil
	case errSkipPhase:
		if span != nil {
			span.End()
		}
		s.events.PhaseSkipped(s.runID, name, e.reason)
		s.recordPhase(ctx, name, "skipped", e.reason, duration)
		return nil
	default:
		if span != nil {
			telemetry.RecordError(span, err)
			span.End()
		}
		s.events.Fatal(s.runID, name, err)
		s.recordPhase(ctx, name, "failed", err.Error(), duration)
		if s.metrics != nil {
			s.metrics.RecordError(string(ClassOf(err)))
		}
		return err
	}
}

func (s *Sequencer) recordPhase(ctx context.Context, name, outcome, detail string, duration time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordPhase(name, outcome, duration)
	}
	if s.store != nil {
		_ = s.store.RecordPhase(ctx, s.runID, name, outcome, detail)
	}
}

// authPhase acquires the ambient token so credential problems surface
// before any resource is touched.
func (s *Sequencer) authPhase(ctx context.Context) error {
	s.events.Step(s.runID, PhaseAuth, "acquiring directory token")
	if _, err := s.tokens.Token(ctx); err != nil {
		return err
	}
	s.events.Step(s.runID, PhaseAuth, "token acquired")
	return nil
}

// blueprintPhase finds or creates the root app registration and, for an app
// created in this run, mints its client secret.
func (s *Sequencer) blueprintPhase(ctx context.Context) error {
	name := s.spec.BlueprintName

	existing, err := s.finders.FindBlueprintApp(ctx, name)
	switch {
	case err == nil:
		// Pre-existing app: its secret is not retrievable. The
		// identity phase gates on this if the identity must be
		// created.
		s.events.Step(s.runID, PhaseBlueprint,
			fmt.Sprintf("application %q already exists (appId %s)", name, existing.AppID))
		s.blueprint = existing
		return s.recorder.RecordBlueprint(existing, nil)
	case !IsNotFound(err):
		return err
	}

	s.events.Step(s.runID, PhaseBlueprint, fmt.Sprintf("creating application %q", name))
	created, err := RetryWithBackoff(ctx, "create blueprint application",
		func(ctx context.Context) (*BlueprintApp, error) {
			return s.creators.CreateBlueprintApp(ctx, name)
		}, s.waits.RetryAttempts, s.waits.RetryDelay, s.notify(PhaseBlueprint))
	if err != nil {
		return err
	}
	s.blueprint = created

	// The create response is authoritative for the identifiers; polling
	// only establishes that dependent operations can see the app.
	s.events.Step(s.runID, PhaseBlueprint, "waiting for application to become visible")
	_, visible, err := PollUntil(ctx,
		func(ctx context.Context) (*BlueprintApp, error) {
			return s.finders.FindBlueprintApp(ctx, name)
		},
		func(app *BlueprintApp) bool { return app != nil && app.AppID == created.AppID },
		s.waits.AppPollAttempts, s.waits.AppPollDelay)
	if err != nil {
		return err
	}
	if !visible {
		return NewRetryExhaustedError("waiting for application propagation",
			s.waits.AppPollAttempts, nil)
	}

	if err := s.creators.AttachIdentifierURI(ctx, created); err != nil {
		return err
	}
	s.events.Step(s.runID, PhaseBlueprint, "identifier URI attached")

	secret, err := s.creators.CreateClientSecret(ctx, created.ObjectID)
	if err != nil {
		// The identity phase requires the secret; continuing without
		// it would only defer the failure past more remote writes.
		return err
	}
	s.secret = secret
	s.events.Step(s.runID, PhaseBlueprint, "client secret created")

	if err := s.recorder.RecordBlueprint(created, secret); err != nil {
		return err
	}

	// The secret is visible immediately but not authorization-usable
	// until it propagates; polling cannot observe that.
	return s.propagationWait(ctx, PhaseBlueprint, "client secret", s.waits.SecretPropagation)
}

// identityPhase finds or creates the agent identity via the blueprint
// credential hand-off.
func (s *Sequencer) identityPhase(ctx context.Context) error {
	name := s.spec.IdentityName

	existing, err := s.finders.FindAgentIdentity(ctx, name)
	switch {
	case err == nil:
		s.events.Step(s.runID, PhaseAgentIdentity,
			fmt.Sprintf("agent identity %q already exists", name))
		s.identity = existing
		return s.recorder.RecordAgentIdentity(existing)
	case !IsNotFound(err):
		return err
	}

	secretText := s.spec.BlueprintSecret
	if s.secret != nil {
		secretText = s.secret.SecretText
	}

	s.events.Step(s.runID, PhaseAgentIdentity,
		"creating agent identity using blueprint credentials")
	created, err := RetryWithBackoff(ctx, "create agent identity",
		func(ctx context.Context) (*AgentIdentity, error) {
			return s.creators.CreateAgentIdentity(ctx, s.spec.TenantID, s.blueprint, secretText)
		}, s.waits.RetryAttempts, s.waits.RetryDelay, s.notify(PhaseAgentIdentity))
	if err != nil {
		return err
	}
	created.DisplayName = name
	s.identity = created

	if err := s.recorder.RecordAgentIdentity(created); err != nil {
		return err
	}
	return s.propagationWait(ctx, PhaseAgentIdentity, "agent identity", s.waits.IdentityPropagation)
}

// userPhase finds or creates the agent user linked to the identity.
func (s *Sequencer) userPhase(ctx context.Context) error {
	upn := s.spec.UserPrincipalName

	existing, err := s.finders.FindAgentUser(ctx, upn)
	switch {
	case err == nil:
		s.events.Step(s.runID, PhaseAgentUser,
			fmt.Sprintf("user %q already exists", upn))
		s.user = existing
		return s.recorder.RecordAgentUser(existing)
	case !IsNotFound(err):
		return err
	}

	input := AgentUserInput{
		UserPrincipalName: upn,
		DisplayName:       s.spec.UserDisplayName,
	}
	if s.identity != nil {
		input.IdentityObjectID = s.identity.ObjectID
	}

	s.events.Step(s.runID, PhaseAgentUser, fmt.Sprintf("creating user %q", upn))
	created, err := RetryWithBackoff(ctx, "create agent user",
		func(ctx context.Context) (*AgentUser, error) {
			return s.creators.CreateAgentUser(ctx, input)
		}, s.waits.RetryAttempts, s.waits.RetryDelay, s.notify(PhaseAgentUser))
	if err != nil {
		return err
	}
	s.user = created

	if err := s.recorder.RecordAgentUser(created); err != nil {
		return err
	}
	return s.propagationWait(ctx, PhaseAgentUser, "agent user", s.waits.UserPropagation)
}

// grantPhase finds or creates the delegated permission grant, keyed on the
// (client, resource, principal) triple.
func (s *Sequencer) grantPhase(ctx context.Context) error {
	if s.identity == nil || s.user == nil {
		return NewConfigurationError("permission grant requires the agent identity and user")
	}

	resourceID, err := s.finders.FindDirectoryResourcePrincipal(ctx)
	if err != nil {
		if IsNotFound(err) {
			return NewDirectoryError("directory API service principal not found in tenant", 0, "", nil)
		}
		return err
	}

	existing, err := s.finders.FindPermissionGrant(ctx, s.identity.ObjectID, resourceID, s.user.ObjectID)
	switch {
	case err == nil:
		s.events.Step(s.runID, PhasePermissionGrant, "permission grant already exists")
		return s.recorder.RecordPermissionGrant(existing)
	case !IsNotFound(err):
		return err
	}

	s.events.Step(s.runID, PhasePermissionGrant,
		fmt.Sprintf("granting scope %q", s.spec.GrantScope))
	created, err := s.creators.CreatePermissionGrant(ctx,
		s.identity.ObjectID, resourceID, s.user.ObjectID, s.spec.GrantScope)
	if err != nil {
		return err
	}
	return s.recorder.RecordPermissionGrant(created)
}

// licensePhase assigns the configured license SKU to the agent user. No SKU
// configured is a policy skip, with a warning because an unlicensed agent
// user has no mailbox.
func (s *Sequencer) licensePhase(ctx context.Context) error {
	if s.spec.LicenseSKU == "" {
		s.events.Warning(s.runID, PhaseLicense,
			"no license SKU configured; the agent user will have no mailbox")
		return errSkipPhase{reason: "no license SKU configured"}
	}
	if s.user == nil {
		return NewConfigurationError("license assignment requires the agent user")
	}

	_, err := s.finders.FindAssignedLicense(ctx, s.user.ObjectID, s.spec.LicenseSKU)
	switch {
	case err == nil:
		s.events.Step(s.runID, PhaseLicense, "license already assigned")
		return nil
	case !IsNotFound(err):
		return err
	}

	s.events.Step(s.runID, PhaseLicense,
		fmt.Sprintf("assigning license %s to %s", s.spec.LicenseSKU, s.user.UserPrincipalName))
	_, err = RetryWithBackoff(ctx, "assign license",
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.creators.AssignLicense(ctx, s.user.ObjectID, s.spec.LicenseSKU)
		}, s.waits.RetryAttempts, s.waits.RetryDelay, s.notify(PhaseLicense))
	return err
}

// foundryPhase assigns the configured RBAC role on the Foundry resource.
// Skipped when disabled or unconfigured.
func (s *Sequencer) foundryPhase(ctx context.Context) error {
	if s.spec.SkipFoundry {
		return errSkipPhase{reason: "disabled by flag"}
	}
	if s.spec.FoundryResourceID == "" {
		return errSkipPhase{reason: "no Foundry resource configured"}
	}
	if s.roles == nil {
		return errSkipPhase{reason: "Azure CLI helper unavailable"}
	}

	assignee := ""
	principalType := "ServicePrincipal"
	if s.identity != nil {
		assignee = s.identity.ObjectID
	} else {
		id, err := s.roles.SignedInObjectID(ctx)
		if err != nil {
			return err
		}
		assignee = id
		principalType = "User"
	}

	s.events.Step(s.runID, PhaseRoleAssignment,
		fmt.Sprintf("assigning role %q on %s", s.spec.FoundryRole, s.spec.FoundryResourceID))
	if err := s.roles.AssignRole(ctx, assignee, principalType, s.spec.FoundryRole, s.spec.FoundryResourceID); err != nil {
		return err
	}
	return s.recorder.RecordFoundryRole(s.spec.FoundryRole)
}

// webhookPhase creates the change-notification subscription for the agent
// user's messages. Skipped when no URL is configured; skip is a policy
// outcome and leaves the exit code untouched.
func (s *Sequencer) webhookPhase(ctx context.Context) error {
	if s.spec.SkipWebhook {
		return errSkipPhase{reason: "disabled by flag"}
	}
	if s.spec.WebhookURL == "" {
		return errSkipPhase{reason: "no URL provided"}
	}
	if s.user == nil {
		return NewConfigurationError("webhook subscription requires the agent user")
	}

	resource := fmt.Sprintf("users/%s/messages", s.user.ObjectID)

	existingID, err := s.finders.FindSubscription(ctx, s.spec.WebhookURL, resource)
	switch {
	case err == nil:
		s.events.Step(s.runID, PhaseWebhook, "subscription already exists")
		return s.recorder.RecordSubscription(existingID)
	case !IsNotFound(err):
		return err
	}

	s.events.Step(s.runID, PhaseWebhook,
		fmt.Sprintf("subscribing %s to %s", s.spec.WebhookURL, resource))
	subscriptionID, err := s.creators.CreateSubscription(ctx, s.spec.WebhookURL, resource)
	if err != nil {
		return err
	}
	return s.recorder.RecordSubscription(subscriptionID)
}

// RunSinglePhase runs one phase's find-or-create logic standalone, for
// operator-driven partial re-runs. Upstream identifiers are rediscovered
// through finders, never created.
func (s *Sequencer) RunSinglePhase(ctx context.Context, phase string) error {
	s.runID = uuid.New().String()

	resolve := func(deps ...string) error {
		for _, dep := range deps {
			switch dep {
			case PhaseBlueprint:
				app, err := s.finders.FindBlueprintApp(ctx, s.spec.BlueprintName)
				if err != nil {
					if IsNotFound(err) {
						return NewConfigurationError(fmt.Sprintf(
							"blueprint %q does not exist; run 'blueprint create' first",
							s.spec.BlueprintName))
					}
					return err
				}
				s.blueprint = app
			case PhaseAgentIdentity:
				identity, err := s.finders.FindAgentIdentity(ctx, s.spec.IdentityName)
				if err != nil {
					if IsNotFound(err) {
						return NewConfigurationError(fmt.Sprintf(
							"agent identity %q does not exist; run 'identity create' first",
							s.spec.IdentityName))
					}
					return err
				}
				s.identity = identity
			case PhaseAgentUser:
				user, err := s.finders.FindAgentUser(ctx, s.spec.UserPrincipalName)
				if err != nil {
					if IsNotFound(err) {
						return NewConfigurationError(fmt.Sprintf(
							"user %q does not exist; run 'user create' first",
							s.spec.UserPrincipalName))
					}
					return err
				}
				s.user = user
			}
		}
		return nil
	}

	switch phase {
	case PhaseBlueprint:
		return s.runPhase(ctx, PhaseBlueprint, s.blueprintPhase)
	case PhaseAgentIdentity:
		if err := resolve(PhaseBlueprint); err != nil {
			return err
		}
		return s.runPhase(ctx, PhaseAgentIdentity, s.identityPhase)
	case PhaseAgentUser:
		if err := resolve(PhaseAgentIdentity); err != nil && !isMissingDependency(err) {
			return err
		}
		return s.runPhase(ctx, PhaseAgentUser, s.userPhase)
	case PhasePermissionGrant:
		if err := resolve(PhaseAgentIdentity, PhaseAgentUser); err != nil {
			return err
		}
		return s.runPhase(ctx, PhasePermissionGrant, s.grantPhase)
	default:
		return NewConfigurationError(fmt.Sprintf("unknown phase %q", phase))
	}
}

// isMissingDependency reports a configuration error raised by dependency
// resolution, which user create tolerates: an unlinked user is valid.
func isMissingDependency(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Class == ClassConfiguration
}

// notify adapts the event sink to the retry countdown callback.
func (s *Sequencer) notify(phase string) RetryNotify {
	return func(attempt, maxAttempts int, remaining time.Duration) {
		s.events.RetryWait(s.runID, phase, attempt, maxAttempts, remaining)
		if s.metrics != nil {
			s.metrics.RecordRetry(phase)
		}
	}
}

// propagationWait performs a cancellable fixed sleep between phases.
func (s *Sequencer) propagationWait(ctx context.Context, phase, what string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	s.events.Step(s.runID, phase,
		fmt.Sprintf("waiting %s for %s propagation", d, what))
	return sleepCancellable(ctx, d)
}
