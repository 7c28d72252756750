package telemetry

import (
	"context"
)

// Telemetry combines logging, tracing, metrics, and event publishing for a
// provisioning run.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventSink
	Config  *Config
}

// New creates a telemetry instance from configuration.
func New(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  NewEventSink(),
		Config:  cfg,
	}, nil
}

// Shutdown flushes and closes all telemetry components.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := t.Tracer.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if err := t.Metrics.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := t.Logger.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
