package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/lcarli/Citizen-Agent-CLI/pkg/auth"
	"github.com/lcarli/Citizen-Agent-CLI/pkg/azcli"
	"github.com/lcarli/Citizen-Agent-CLI/pkg/config"
	"github.com/lcarli/Citizen-Agent-CLI/pkg/graph"
	"github.com/lcarli/Citizen-Agent-CLI/pkg/provision"
	"github.com/lcarli/Citizen-Agent-CLI/pkg/stores"
	"github.com/lcarli/Citizen-Agent-CLI/pkg/telemetry"
)

// deviceClientID is the well-known Azure CLI application ID, used for the
// device-code login when the operator has not registered their own client.
const deviceClientID = "04b07795-8ddb-461a-bbee-02f9e1bf7b46"

// historyDBPath is the SQLite run-history database, created next to the
// working directory's settings file.
const historyDBPath = "citizen-agent-history.db"

// runtime bundles the wired components behind a command invocation.
type runtime struct {
	cfg   *config.SetupConfig
	tel   *telemetry.Telemetry
	store *stores.SQLiteStore
	seq   *provision.Sequencer
}

// loadConfig merges the settings file, environment, and explicit flags, then
// applies defaults and validates.
func loadConfig(flags config.SetupConfig) (*config.SetupConfig, error) {
	cfg, err := config.Load(settingsPath)
	if err != nil {
		return nil, err
	}
	cfg.Merge(flags)
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runtimeOptions carries per-command wiring knobs.
type runtimeOptions struct {
	// blueprintSecret supplies a known secret for standalone identity
	// creation.
	blueprintSecret string

	// metricsAddr optionally serves /metrics while the run is in flight.
	metricsAddr string

	// traceEndpoint optionally exports OTLP spans.
	traceEndpoint string
}

// newRuntime wires telemetry, auth, the directory client, run history, and
// the sequencer for a validated configuration.
func newRuntime(ctx context.Context, cfg *config.SetupConfig, opts runtimeOptions) (*runtime, error) {
	telCfg := telemetry.DefaultConfig()
	if verbose {
		telCfg.Logging.Level = "debug"
	}
	telCfg.Logging.FilePath = logFilePath
	if opts.metricsAddr != "" {
		telCfg.Metrics.ListenAddress = opts.metricsAddr
	}
	if opts.traceEndpoint != "" {
		telCfg.Tracing.Enabled = true
		telCfg.Tracing.Exporter = "otlp"
		telCfg.Tracing.Endpoint = opts.traceEndpoint
		telCfg.Tracing.Insecure = true
	}

	tel, err := telemetry.New(telCfg)
	if err != nil {
		return nil, provision.NewConfigurationError(fmt.Sprintf("telemetry setup failed: %v", err))
	}
	if err := tel.Metrics.StartServer(); err != nil {
		return nil, err
	}

	logger := tel.Logger.Zerolog()
	subscribeConsole(tel.Events, logger)

	tokens := buildTokenSource(cfg)
	client := graph.NewClient(tokens, graph.WithObserver(tel.Metrics.RecordDirectoryRequest))

	store := openHistoryStore(ctx, cfg.TenantID, logger)
	var recorder provision.RunRecorder
	if store != nil {
		recorder = store
		persistEvents(ctx, tel.Events, store, logger)
	}

	var roles provision.RoleAssigner
	if azcli.Available() {
		roles = azcli.New(logger)
	} else {
		logger.Debug().Msg("az CLI not found on PATH; role assignment will be skipped")
	}

	seq := provision.NewSequencer(provision.Options{
		Spec: provision.Spec{
			TenantID:          cfg.TenantID,
			BlueprintName:     cfg.BlueprintName,
			IdentityName:      cfg.IdentityName,
			UserPrincipalName: cfg.UserPrincipalName,
			UserDisplayName:   cfg.UserDisplayName,
			GrantScope:        cfg.GrantScope,
			BlueprintSecret:   opts.blueprintSecret,
			LicenseSKU:        cfg.LicenseSKU,
			FoundryResourceID: cfg.FoundryResourceID,
			FoundryRole:       cfg.FoundryRole,
			SkipFoundry:       cfg.SkipFoundry,
			WebhookURL:        cfg.WebhookURL,
			SkipWebhook:       cfg.SkipWebhook,
		},
		Finders:  provision.NewFinders(client),
		Creators: provision.NewCreators(client, auth.Authenticator{}, newDirectory),
		Recorder: provision.NewOutputRecorder(cfg.OutputPath, cfg.TenantID),
		Events:   tel.Events,
		Tokens:   tokens,
		Waits:    provision.DefaultWaits(),
		Store:    recorder,
		Metrics:  tel.Metrics,
		Tracer:   tel.Tracer,
		Roles:    roles,
	})

	return &runtime{cfg: cfg, tel: tel, store: store, seq: seq}, nil
}

// newDirectory builds a directory client for a token source. The identity
// creator uses it for the blueprint-scoped client.
func newDirectory(tokens provision.TokenSource) provision.Directory {
	return graph.NewClient(tokens)
}

// buildTokenSource selects between client credentials and the device-code
// login.
func buildTokenSource(cfg *config.SetupConfig) provision.TokenSource {
	if !cfg.Interactive {
		return auth.NewClientCredentialSource(cfg.TenantID, cfg.ClientID, cfg.ClientSecret)
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = deviceClientID
	}
	return auth.NewDeviceCodeSource(cfg.TenantID, clientID, func(verificationURI, userCode string) {
		fmt.Fprintf(os.Stderr, "\nTo sign in, open %s and enter the code %s\n\n", verificationURI, userCode)
	})
}

// openHistoryStore opens and migrates the run-history database. History is
// best-effort: a broken database degrades to a warning, never a failed run.
func openHistoryStore(ctx context.Context, tenantID string, logger zerolog.Logger) *stores.SQLiteStore {
	store, err := stores.NewSQLiteStore(stores.Config{Path: historyDBPath, TenantID: tenantID})
	if err != nil {
		logger.Warn().Err(err).Msg("run history disabled")
		return nil
	}
	if err := store.Init(ctx); err != nil {
		logger.Warn().Err(err).Msg("run history disabled")
		return nil
	}
	if err := store.Migrate(ctx); err != nil {
		logger.Warn().Err(err).Msg("run history disabled")
		_ = store.Close()
		return nil
	}
	return store
}

// subscribeConsole renders provisioning events through the structured
// logger.
func subscribeConsole(events *telemetry.EventSink, logger zerolog.Logger) {
	events.Subscribe(func(e telemetry.Event) {
		entry := logger.Info()
		switch e.Level {
		case telemetry.EventLevelWarning:
			entry = logger.Warn()
		case telemetry.EventLevelError:
			entry = logger.Error()
		}
		if e.Phase != "" {
			entry = entry.Str("phase", e.Phase)
		}
		entry.Msg(e.Message)
	})
}

// persistEvents copies every published event into the history database.
func persistEvents(ctx context.Context, events *telemetry.EventSink, store *stores.SQLiteStore, logger zerolog.Logger) {
	events.Subscribe(func(e telemetry.Event) {
		if e.RunID == "" {
			return
		}
		err := store.AppendEvent(ctx, &stores.EventRecord{
			ID:        e.ID,
			RunID:     e.RunID,
			Phase:     e.Phase,
			Type:      e.Type,
			Level:     e.Level,
			Message:   e.Message,
			Timestamp: e.Timestamp,
		})
		if err != nil {
			logger.Debug().Err(err).Msg("failed to persist event")
		}
	})
}

// close releases the runtime's resources.
func (r *runtime) close(ctx context.Context) {
	if r.store != nil {
		_ = r.store.Close()
	}
	_ = r.tel.Shutdown(ctx)
}

// reportFailure prints the classified-error banner with its remediation
// suggestions and the log file pointer.
func (r *runtime) reportFailure(err error) {
	logger := r.tel.Logger.Zerolog()
	logger.Error().Err(err).Msg("Provisioning failed")

	var perr *provision.Error
	if errors.As(err, &perr) {
		for _, s := range perr.Suggestions {
			fmt.Fprintf(os.Stderr, "  hint: %s\n", s)
		}
		if len(perr.Permissions) > 0 {
			fmt.Fprintf(os.Stderr, "  required permissions: %v\n", perr.Permissions)
		}
	}
	if logFile := r.tel.Logger.LogFile(); logFile != "" {
		fmt.Fprintf(os.Stderr, "  full log: %s\n", logFile)
	}
}
